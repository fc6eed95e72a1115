package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/countywire/internal/processor"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrRowRejected marks an item the destination cannot hold. It is counted,
// never fatal.
var ErrRowRejected = errors.New("row rejected")

type WriteResult int

const (
	ResultInserted WriteResult = iota + 1
	ResultDuplicate
	ResultRejected
)

func (r WriteResult) String() string {
	switch r {
	case ResultInserted:
		return "inserted"
	case ResultDuplicate:
		return "duplicate"
	case ResultRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// WriteCounts tallies results for one unit of work.
type WriteCounts struct {
	Inserted  int `json:"inserted"`
	Duplicate int `json:"duplicate"`
	Rejected  int `json:"rejected"`
}

func (c *WriteCounts) Add(r WriteResult) {
	switch r {
	case ResultInserted:
		c.Inserted++
	case ResultDuplicate:
		c.Duplicate++
	default:
		c.Rejected++
	}
}

func (c *WriteCounts) Merge(o WriteCounts) {
	c.Inserted += o.Inserted
	c.Duplicate += o.Duplicate
	c.Rejected += o.Rejected
}

// ItemWriter persists canonical items through a field mapping that was
// checked against the live table when the writer was built.
type ItemWriter struct {
	db      *gorm.DB
	mapping *boundMapping
	log     *zap.Logger
	now     func() time.Time
}

// NewItemWriter binds the mapping to the destination. A missing table or
// column is returned as an error and should stop the process.
func NewItemWriter(db *gorm.DB, mapping FieldMapping, log *zap.Logger) (*ItemWriter, error) {
	b, err := bind(db, mapping)
	if err != nil {
		return nil, err
	}
	log.Info("field mapping bound",
		zap.String("table", mapping.Table),
		zap.Int("version", mapping.Version),
		zap.Strings("conflict", mapping.ConflictColumns),
		zap.Bool("fill_region_columns", mapping.Flags.FillRegionColumns),
		zap.Bool("upsert_on_conflict", mapping.Flags.UpsertOnConflict))
	return &ItemWriter{db: db, mapping: b, log: log, now: time.Now}, nil
}

// Write stores one item for the given source.
func (w *ItemWriter) Write(ctx context.Context, ref SourceRef, it processor.Item) (WriteResult, error) {
	row, err := w.buildRow(ref, it)
	if err != nil {
		return ResultRejected, err
	}

	db := w.db.WithContext(ctx)
	m := w.mapping
	switch {
	case len(m.ConflictColumns) > 0 && !m.Flags.UpsertOnConflict:
		return w.insertIgnore(db, row)
	case len(m.ConflictColumns) > 0:
		return w.upsert(db, row)
	default:
		return w.insertOnly(db, row)
	}
}

// WriteAll writes items in order and keeps going past per-row failures.
func (w *ItemWriter) WriteAll(ctx context.Context, ref SourceRef, items []processor.Item) WriteCounts {
	var counts WriteCounts
	for _, it := range items {
		res, err := w.Write(ctx, ref, it)
		if err != nil {
			level := w.log.Warn
			if !errors.Is(err, ErrRowRejected) {
				level = w.log.Error
			}
			level("item not written",
				zap.String("source", ref.Name),
				zap.String("link", it.Link),
				zap.Error(err))
		}
		counts.Add(res)
	}
	return counts
}

func (w *ItemWriter) buildRow(ref SourceRef, it processor.Item) (map[string]any, error) {
	m := w.mapping
	values := map[string]any{
		FieldSourceID:  ref.ID,
		FieldTitle:     it.Title,
		FieldLink:      it.Link,
		FieldSummary:   it.Summary,
		FieldSignature: it.Signature,
	}
	if it.Signature == "" {
		values[FieldSignature] = processor.Signature(it.Title, it.Link)
	}
	if it.PublishedAt != nil {
		values[FieldPublishedAt] = it.PublishedAt.UTC()
	}
	if len(it.Extra) > 0 {
		values[FieldExtra] = datatypes.JSONMap(it.Extra)
	}
	if m.Flags.FillRegionColumns {
		values[FieldState] = ref.State
		values[FieldCounty] = ref.County
	}
	now := w.now().UTC()
	values[FieldCreatedAt] = now
	values[FieldUpdatedAt] = now

	row := make(map[string]any, len(m.Columns))
	content := 0
	for field, col := range m.Columns {
		v, ok := values[field]
		if !ok || isEmpty(v) {
			if _, required := m.notNull[field]; required {
				return nil, fmt.Errorf("%w: no value for NOT NULL column %s", ErrRowRejected, col)
			}
			continue
		}
		row[col] = v
		switch field {
		case FieldTitle, FieldLink, FieldSummary:
			content++
		}
	}
	if content == 0 {
		return nil, fmt.Errorf("%w: no content column could be populated", ErrRowRejected)
	}
	return row, nil
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case uint:
		return x == 0
	}
	return false
}

func (w *ItemWriter) conflictColumns() []clause.Column {
	cols := make([]clause.Column, 0, len(w.mapping.ConflictColumns))
	for _, f := range w.mapping.ConflictColumns {
		cols = append(cols, clause.Column{Name: w.mapping.column(f)})
	}
	return cols
}

func (w *ItemWriter) insertIgnore(db *gorm.DB, row map[string]any) (WriteResult, error) {
	res := db.Table(w.mapping.Table).
		Clauses(clause.OnConflict{Columns: w.conflictColumns(), DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return ResultRejected, fmt.Errorf("insert into %s: %w", w.mapping.Table, res.Error)
	}
	if res.RowsAffected == 0 {
		return ResultDuplicate, nil
	}
	return ResultInserted, nil
}

func (w *ItemWriter) upsert(db *gorm.DB, row map[string]any) (WriteResult, error) {
	key := make(map[string]any, len(w.mapping.ConflictColumns))
	isKey := make(map[string]bool, len(w.mapping.ConflictColumns))
	for _, f := range w.mapping.ConflictColumns {
		col := w.mapping.column(f)
		key[col] = row[col]
		isKey[col] = true
	}
	exists, err := w.exists(db, key)
	if err != nil {
		return ResultRejected, err
	}

	var update []string
	for col := range row {
		if isKey[col] || col == w.mapping.column(FieldCreatedAt) {
			continue
		}
		update = append(update, col)
	}
	onConflict := clause.OnConflict{Columns: w.conflictColumns()}
	if len(update) == 0 {
		onConflict.DoNothing = true
	} else {
		onConflict.DoUpdates = clause.AssignmentColumns(update)
	}

	if err := db.Table(w.mapping.Table).Clauses(onConflict).Create(row).Error; err != nil {
		return ResultRejected, fmt.Errorf("upsert into %s: %w", w.mapping.Table, err)
	}
	if exists {
		return ResultDuplicate, nil
	}
	return ResultInserted, nil
}

func (w *ItemWriter) insertOnly(db *gorm.DB, row map[string]any) (WriteResult, error) {
	key := make(map[string]any, 2)
	if w.mapping.has(FieldSourceID) {
		col := w.mapping.column(FieldSourceID)
		key[col] = row[col]
	}
	for _, f := range []string{FieldSignature, FieldLink, FieldTitle} {
		col := w.mapping.column(f)
		if v, ok := row[col]; ok && w.mapping.has(f) {
			key[col] = v
			break
		}
	}
	exists, err := w.exists(db, key)
	if err != nil {
		return ResultRejected, err
	}
	if exists {
		return ResultDuplicate, nil
	}

	if err := db.Table(w.mapping.Table).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ResultDuplicate, nil
		}
		return ResultRejected, fmt.Errorf("insert into %s: %w", w.mapping.Table, err)
	}
	return ResultInserted, nil
}

func (w *ItemWriter) exists(db *gorm.DB, key map[string]any) (bool, error) {
	if len(key) == 0 {
		return false, nil
	}
	var n int64
	if err := db.Table(w.mapping.Table).Where(key).Limit(1).Count(&n).Error; err != nil {
		return false, fmt.Errorf("probe %s: %w", w.mapping.Table, err)
	}
	return n > 0, nil
}
