package collector

import (
	"context"
	"time"

	"github.com/LJTian/countywire/internal/catalog"
)

// SourceFeed fetches one catalog source through the resolver.
type SourceFeed struct {
	Resolver *Resolver
	Source   catalog.Source

	// ResolvedURL is set after a successful Fetch.
	ResolvedURL string
}

func (f *SourceFeed) Name() string {
	return "feed:" + f.Source.Key()
}

func (f *SourceFeed) Fetch(ctx context.Context) ([]Draft, error) {
	feed, err := f.Resolver.Resolve(ctx, f.Source)
	if err != nil {
		return nil, err
	}
	f.ResolvedURL = feed.URL
	return feed.Items, nil
}

// SearchQuery runs one region/query pair over a fixed window.
type SearchQuery struct {
	Adapter    *SearchAdapter
	Region     catalog.Region
	Query      string
	Start, End time.Time
}

func (q *SearchQuery) Name() string {
	return "search:" + q.Region.String() + ":" + q.Query
}

func (q *SearchQuery) Fetch(ctx context.Context) ([]Draft, error) {
	return q.Adapter.Search(ctx, q.Region, q.Query, q.Start, q.End)
}
