package collector

import (
	"context"
	"time"
)

// Draft is a canonical item before signature and persistence. Unknown
// publish times are nil, never the zero time.
type Draft struct {
	Title       string
	Link        string
	Summary     string
	PublishedAt *time.Time
	Extra       map[string]any
}

// Fetcher is one unit of ingestion work: a source feed or a region search query.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]Draft, error)
}
