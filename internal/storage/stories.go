package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStoryExists is returned when the (region, category, window) slot is taken.
var ErrStoryExists = errors.New("story already exists for window")

const storyListCacheTTL = 5 * time.Minute

// RegionItem is an item read back for synthesis, with its source name.
type RegionItem struct {
	ID          uint       `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Summary     string     `json:"summary"`
	PublishedAt *time.Time `json:"publishedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	SourceName  string     `json:"sourceName"`
}

// UseItemMapping points the synthesis read path at the table the writer
// fills through m. The mapping is bound against the live table and must
// locate a region and a time for every row.
func (s *Store) UseItemMapping(m FieldMapping) error {
	b, err := bind(s.DB, m)
	if err != nil {
		return err
	}
	if err := b.readable(); err != nil {
		return err
	}
	s.items = b
	return nil
}

func (s *Store) itemMapping() *boundMapping {
	if s.items != nil {
		return s.items
	}
	return &boundMapping{FieldMapping: DefaultItemMapping(), idColumn: "id"}
}

// ItemsForRegion returns items of the region that fall in [start, end): by
// published_at, or by created_at when the publication time is unknown.
// Newest first, unknown timestamps last.
func (s *Store) ItemsForRegion(ctx context.Context, state, county string, start, end time.Time, limit int) ([]RegionItem, error) {
	if limit <= 0 {
		limit = 40
	}
	m := s.itemMapping()
	quote := func(col string) string { return s.DB.Statement.Quote("it." + col) }
	expr := func(field, fallback string) string {
		if !m.has(field) {
			return fallback
		}
		return quote(m.column(field))
	}

	id := "0"
	if m.idColumn != "" {
		id = quote(m.idColumn)
	}
	published := expr(FieldPublishedAt, "NULL")
	created := expr(FieldCreatedAt, published)
	sourceName := "''"
	if m.has(FieldSourceID) {
		sourceName = "sources.name"
	}

	q := s.DB.WithContext(ctx).
		Table(s.DB.Statement.Quote(m.Table)+" AS it").
		Select(strings.Join([]string{
			id + " AS id",
			expr(FieldTitle, "''") + " AS title",
			expr(FieldLink, "''") + " AS url",
			expr(FieldSummary, "''") + " AS summary",
			published + " AS published_at",
			created + " AS created_at",
			sourceName + " AS source_name",
		}, ", "))

	if m.has(FieldSourceID) {
		q = q.Joins("JOIN sources ON sources.id = "+quote(m.column(FieldSourceID))).
			Where("sources.state = ? AND sources.county = ?", state, county)
	} else {
		q = q.Where(quote(m.column(FieldState))+" = ? AND "+quote(m.column(FieldCounty))+" = ?", state, county)
	}

	from, to := start.UTC(), end.UTC()
	switch {
	case m.has(FieldPublishedAt) && m.has(FieldCreatedAt):
		q = q.Where("("+published+" >= ? AND "+published+" < ?) OR ("+published+" IS NULL AND "+created+" >= ? AND "+created+" < ?)",
			from, to, from, to)
	default:
		// only one timestamp is mapped; created falls back to published
		q = q.Where(created+" >= ? AND "+created+" < ?", from, to)
	}

	order := created + " DESC"
	if m.has(FieldPublishedAt) {
		order = published + " IS NULL, " + published + " DESC"
	}
	if m.idColumn != "" {
		order += ", " + id + " DESC"
	}

	var out []RegionItem
	if err := q.Order(order).Limit(limit).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("items for %s/%s from %s: %w", state, county, m.Table, err)
	}
	return out, nil
}

func (s *Store) StoryExists(ctx context.Context, state, county, category string, start, end time.Time) (bool, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&Story{}).
		Where("state = ? AND county = ? AND category = ? AND window_start = ? AND window_end = ?",
			state, county, category, start.UTC(), end.UTC()).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("story exists %s/%s: %w", state, county, err)
	}
	return n > 0, nil
}

// CreateStory inserts the story and its citations in one transaction. A
// concurrent writer that got the window first yields ErrStoryExists.
func (s *Store) CreateStory(ctx context.Context, story *Story, citations []StoryCitation) error {
	story.WindowStart = story.WindowStart.UTC()
	story.WindowEnd = story.WindowEnd.UTC()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Omit("Citations").Clauses(clause.OnConflict{DoNothing: true}).Create(story)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return ErrStoryExists
			}
			return fmt.Errorf("insert story: %w", res.Error)
		}
		if res.RowsAffected == 0 || story.ID == 0 {
			return ErrStoryExists
		}
		if len(citations) == 0 {
			return nil
		}
		for i := range citations {
			citations[i].StoryID = story.ID
		}
		if err := tx.Create(&citations).Error; err != nil {
			return fmt.Errorf("insert citations: %w", err)
		}
		story.Citations = citations
		return nil
	})
}

// StoryFilter narrows ListStories; empty fields match everything.
type StoryFilter struct {
	State  string
	County string
	Limit  int
}

// ListStories returns the newest stories first, cached in Redis for a few minutes.
func (s *Store) ListStories(ctx context.Context, f StoryFilter) ([]Story, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 20
	}
	cacheKey := fmt.Sprintf("stories:list:%s:%s:%d", f.State, f.County, f.Limit)

	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []Story
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var list []Story
	db := s.DB.WithContext(ctx).Model(&Story{})
	if f.State != "" {
		db = db.Where("state = ?", f.State)
	}
	if f.County != "" {
		db = db.Where("county = ?", f.County)
	}
	if err := db.Order("window_end DESC").Order("id DESC").Limit(f.Limit).Find(&list).Error; err != nil {
		return nil, err
	}

	if s.Redis != nil && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, storyListCacheTTL).Err()
		}
	}
	return list, nil
}

// GetStory loads one story with its citations in position order.
func (s *Store) GetStory(ctx context.Context, id uint) (*Story, error) {
	story := &Story{}
	err := s.DB.WithContext(ctx).
		Preload("Citations", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(story, id).Error
	if err != nil {
		return nil, err
	}
	return story, nil
}
