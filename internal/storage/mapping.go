package storage

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// CurrentMappingVersion is the only field-mapping document version this
// build understands.
const CurrentMappingVersion = 1

// Logical item fields a mapping can bind to physical columns.
const (
	FieldSourceID    = "source_id"
	FieldState       = "state"
	FieldCounty      = "county"
	FieldTitle       = "title"
	FieldLink        = "link"
	FieldPublishedAt = "published_at"
	FieldSummary     = "summary"
	FieldSignature   = "signature"
	FieldExtra       = "extra"
	FieldCreatedAt   = "created_at"
	FieldUpdatedAt   = "updated_at"
)

var knownFields = map[string]struct{}{
	FieldSourceID: {}, FieldState: {}, FieldCounty: {}, FieldTitle: {}, FieldLink: {},
	FieldPublishedAt: {}, FieldSummary: {}, FieldSignature: {}, FieldExtra: {},
	FieldCreatedAt: {}, FieldUpdatedAt: {},
}

var (
	ErrTableMissing    = errors.New("destination table does not exist")
	ErrColumnMissing   = errors.New("mapped column does not exist")
	ErrUnmappedNotNull = errors.New("destination has a NOT NULL column the mapping never fills")
	ErrNotReadable     = errors.New("mapping cannot be read back by region and time")
)

// MappingFlags are the named switches that replace per-variant writer code.
type MappingFlags struct {
	FillRegionColumns bool `yaml:"fill_region_columns"`
	UpsertOnConflict  bool `yaml:"upsert_on_conflict"`
}

// FieldMapping describes how canonical items land in the destination table.
type FieldMapping struct {
	Version         int               `yaml:"version"`
	Table           string            `yaml:"table"`
	Columns         map[string]string `yaml:"columns"`
	ConflictColumns []string          `yaml:"conflict_columns"`
	Required        []string          `yaml:"required"`
	Flags           MappingFlags      `yaml:"flags"`
}

// DefaultItemMapping matches the Item model.
func DefaultItemMapping() FieldMapping {
	return FieldMapping{
		Version: CurrentMappingVersion,
		Table:   "items",
		Columns: map[string]string{
			FieldSourceID:    "source_id",
			FieldState:       "state",
			FieldCounty:      "county",
			FieldTitle:       "title",
			FieldLink:        "url",
			FieldPublishedAt: "published_at",
			FieldSummary:     "summary",
			FieldSignature:   "content_signature",
			FieldExtra:       "extra_data",
			FieldCreatedAt:   "created_at",
			FieldUpdatedAt:   "updated_at",
		},
		ConflictColumns: []string{FieldSourceID, FieldSignature},
		Flags:           MappingFlags{FillRegionColumns: true},
	}
}

// LoadFieldMapping reads a mapping document; an empty path yields the default.
func LoadFieldMapping(path string) (FieldMapping, error) {
	if path == "" {
		return DefaultItemMapping(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return FieldMapping{}, fmt.Errorf("read field mapping %s: %w", path, err)
	}
	var m FieldMapping
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return FieldMapping{}, fmt.Errorf("parse field mapping %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return FieldMapping{}, fmt.Errorf("field mapping %s: %w", path, err)
	}
	return m, nil
}

// Validate checks the document on its own, without touching the database.
func (m FieldMapping) Validate() error {
	var errs []error
	if m.Version != CurrentMappingVersion {
		errs = append(errs, fmt.Errorf("unsupported version %d (want %d)", m.Version, CurrentMappingVersion))
	}
	if strings.TrimSpace(m.Table) == "" {
		errs = append(errs, errors.New("table is required"))
	}
	physical := make(map[string]string)
	for field, col := range m.Columns {
		if _, ok := knownFields[field]; !ok {
			errs = append(errs, fmt.Errorf("unknown field %q", field))
		}
		if strings.TrimSpace(col) == "" {
			errs = append(errs, fmt.Errorf("field %q maps to an empty column", field))
		}
		if other, dup := physical[col]; dup {
			errs = append(errs, fmt.Errorf("column %q mapped by both %q and %q", col, other, field))
		}
		physical[col] = field
	}
	if !m.has(FieldTitle) && !m.has(FieldLink) {
		errs = append(errs, errors.New("at least one of title or link must be mapped"))
	}
	for _, f := range m.ConflictColumns {
		if !m.has(f) {
			errs = append(errs, fmt.Errorf("conflict field %q is not mapped", f))
		}
	}
	for _, f := range m.Required {
		if !m.has(f) {
			errs = append(errs, fmt.Errorf("required field %q is not mapped", f))
		}
	}
	if m.Flags.UpsertOnConflict && len(m.ConflictColumns) == 0 {
		errs = append(errs, errors.New("upsert_on_conflict needs conflict_columns"))
	}
	if m.Flags.FillRegionColumns && (!m.has(FieldState) || !m.has(FieldCounty)) {
		errs = append(errs, errors.New("fill_region_columns needs state and county mapped"))
	}
	return errors.Join(errs...)
}

func (m FieldMapping) has(field string) bool {
	_, ok := m.Columns[field]
	return ok
}

func (m FieldMapping) column(field string) string {
	return m.Columns[field]
}

// boundMapping is a mapping checked against the live table.
type boundMapping struct {
	FieldMapping
	// notNull holds logical fields whose column refuses NULL and has no default.
	notNull map[string]struct{}
	// idColumn is the single-column primary key, empty when there is none.
	idColumn string
}

// readable reports whether synthesis can select rows of one region inside a
// time window: region through source_id or filled state/county columns, time
// through published_at or created_at.
func (b *boundMapping) readable() error {
	var errs []error
	byRegion := b.has(FieldState) && b.has(FieldCounty) && b.Flags.FillRegionColumns
	if !b.has(FieldSourceID) && !byRegion {
		errs = append(errs, errors.New("needs source_id, or state and county with fill_region_columns"))
	}
	if !b.has(FieldPublishedAt) && !b.has(FieldCreatedAt) {
		errs = append(errs, errors.New("needs published_at or created_at"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %w", ErrNotReadable, b.Table, errors.Join(errs...))
	}
	return nil
}

// bind introspects the destination once and fails fast on drift.
func bind(db *gorm.DB, m FieldMapping) (*boundMapping, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	migrator := db.Migrator()
	if !migrator.HasTable(m.Table) {
		return nil, fmt.Errorf("%w: %s", ErrTableMissing, m.Table)
	}
	columnTypes, err := migrator.ColumnTypes(m.Table)
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", m.Table, err)
	}

	byColumn := make(map[string]gorm.ColumnType, len(columnTypes))
	var keys []string
	for _, ct := range columnTypes {
		byColumn[strings.ToLower(ct.Name())] = ct
		if pk, ok := ct.PrimaryKey(); ok && pk {
			keys = append(keys, ct.Name())
		}
	}

	fieldOf := make(map[string]string, len(m.Columns))
	var missing []string
	for field, col := range m.Columns {
		if _, ok := byColumn[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
			continue
		}
		fieldOf[strings.ToLower(col)] = field
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s.%s", ErrColumnMissing, m.Table, strings.Join(missing, ", "))
	}

	b := &boundMapping{FieldMapping: m, notNull: make(map[string]struct{})}
	switch {
	case len(keys) == 1:
		b.idColumn = keys[0]
	case len(keys) == 0:
		if ct, ok := byColumn["id"]; ok {
			b.idColumn = ct.Name()
		}
	}
	for _, f := range m.Required {
		b.notNull[f] = struct{}{}
	}
	var unmapped []string
	for name, ct := range byColumn {
		if !enforcesNotNull(ct) {
			continue
		}
		field, mapped := fieldOf[name]
		if !mapped {
			unmapped = append(unmapped, name)
			continue
		}
		b.notNull[field] = struct{}{}
	}
	if len(unmapped) > 0 {
		sort.Strings(unmapped)
		return nil, fmt.Errorf("%w: %s.%s", ErrUnmappedNotNull, m.Table, strings.Join(unmapped, ", "))
	}
	return b, nil
}

func enforcesNotNull(ct gorm.ColumnType) bool {
	if pk, ok := ct.PrimaryKey(); ok && pk {
		return false
	}
	if auto, ok := ct.AutoIncrement(); ok && auto {
		return false
	}
	if def, ok := ct.DefaultValue(); ok && def != "" {
		return false
	}
	nullable, ok := ct.Nullable()
	return ok && !nullable
}
