package storage

import (
	"time"

	"gorm.io/datatypes"
)

// Source is a catalog entry as persisted. Rows are never deleted; sources
// dropped from or disabled in the catalog keep their row with Enabled=false.
type Source struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	State    string `gorm:"size:2;not null;uniqueIndex:idx_source_identity,priority:1" json:"state"`
	County   string `gorm:"size:128;not null;uniqueIndex:idx_source_identity,priority:2" json:"county"`
	Name     string `gorm:"size:256;not null;uniqueIndex:idx_source_identity,priority:3" json:"name"`
	Tier     string `gorm:"size:64" json:"tier"`
	FeedURL  string `gorm:"size:1024" json:"feedUrl"`
	Homepage string `gorm:"size:1024" json:"homepage"`
	Enabled  bool   `gorm:"index" json:"enabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Item is a canonical feed entry or search result. (SourceID, ContentSignature)
// is unique; the same title and link under another source is another row.
type Item struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	SourceID         uint              `gorm:"not null;uniqueIndex:idx_item_signature,priority:1" json:"sourceId"`
	State            string            `gorm:"size:2;index:idx_item_region,priority:1" json:"state"`
	County           string            `gorm:"size:128;index:idx_item_region,priority:2" json:"county"`
	Title            string            `gorm:"size:1024" json:"title"`
	URL              string            `gorm:"size:2048" json:"url"`
	PublishedAt      *time.Time        `gorm:"index" json:"publishedAt"`
	Summary          string            `gorm:"size:1200" json:"summary"`
	ContentSignature string            `gorm:"size:40;not null;uniqueIndex:idx_item_signature,priority:2" json:"contentSignature"`
	ExtraData        datatypes.JSONMap `json:"extraData"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusFailed    = "failed"

	DefaultCategory = "roundup"
)

// Story is one synthesized roundup. At most one exists per
// (state, county, category, window_start, window_end).
type Story struct {
	ID            uint                        `gorm:"primaryKey" json:"id"`
	State         string                      `gorm:"size:2;not null;uniqueIndex:idx_story_window,priority:1" json:"state"`
	County        string                      `gorm:"size:128;not null;uniqueIndex:idx_story_window,priority:2" json:"county"`
	Category      string                      `gorm:"size:64;not null;default:roundup;uniqueIndex:idx_story_window,priority:3" json:"category"`
	Title         string                      `gorm:"size:512" json:"title"`
	Dek           string                      `gorm:"size:512" json:"dek"`
	Body          string                      `gorm:"type:text" json:"body"`
	Bullets       datatypes.JSONSlice[string] `json:"bullets"`
	WindowStart   time.Time                   `gorm:"not null;uniqueIndex:idx_story_window,priority:4" json:"windowStart"`
	WindowEnd     time.Time                   `gorm:"not null;uniqueIndex:idx_story_window,priority:5" json:"windowEnd"`
	Model         string                      `gorm:"size:128" json:"model"`
	PromptVersion string                      `gorm:"size:32" json:"promptVersion"`
	Status        string                      `gorm:"size:16;index" json:"status"`

	CreatedAt time.Time `gorm:"index" json:"createdAt"`

	Citations []StoryCitation `gorm:"foreignKey:StoryID" json:"citations,omitempty"`
}

// StoryCitation ties a story to an item that was offered to the generator.
// Title, URL and PublishedAt are copied so the citation survives pruning.
type StoryCitation struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	StoryID     uint       `gorm:"not null;index" json:"storyId"`
	ItemID      uint       `gorm:"index" json:"itemId"`
	Position    int        `json:"position"`
	Title       string     `gorm:"size:1024" json:"title"`
	URL         string     `gorm:"size:2048" json:"url"`
	PublishedAt *time.Time `json:"publishedAt"`
}
