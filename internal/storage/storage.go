package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LJTian/countywire/internal/catalog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the handle to the durable store and the cache. It is created once
// in main, passed to every component and closed on exit.
type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
	log   *zap.Logger

	// items is where ingested rows live; nil means the migrated items table.
	items *boundMapping
}

// NewStore opens Postgres and Redis. A failed Redis ping is logged and the
// cache is still used; every cache read falls back to the database.
func NewStore(dsn, redisAddr string, autoMigrate bool, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis ping failed", zap.String("addr", redisAddr), zap.Error(err))
	}

	return New(db, rdb, autoMigrate, log)
}

// New wraps already-open connections.
func New(db *gorm.DB, rdb *redis.Client, autoMigrate bool, log *zap.Logger) (*Store, error) {
	if autoMigrate {
		if err := db.AutoMigrate(&Source{}, &Item{}, &Story{}, &StoryCitation{}); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return &Store{DB: db, Redis: rdb, log: log}, nil
}

// GormConfig is shared by every dialect; unique violations surface as
// gorm.ErrDuplicatedKey.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}
}

func (s *Store) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if sqlDB, err := s.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	} else {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SourceRef is what the writer needs to scope an item to its source.
type SourceRef struct {
	ID     uint
	State  string
	County string
	Name   string
}

// EnsureSource creates the source on first sight and keeps its descriptive
// fields and enabled flag in line with the catalog afterwards.
func (s *Store) EnsureSource(ctx context.Context, src catalog.Source) (SourceRef, error) {
	db := s.DB.WithContext(ctx)

	identity := db.Where("state = ? AND county = ? AND name = ?", src.State, src.County, src.Name).Session(&gorm.Session{})

	// Find instead of First: a first-seen source is not an error worth logging.
	row := &Source{}
	res := identity.Limit(1).Find(row)
	switch {
	case res.Error != nil:
		return SourceRef{}, fmt.Errorf("load source %s: %w", src.Key(), res.Error)
	case res.RowsAffected == 0:
		row = &Source{
			State:    src.State,
			County:   src.County,
			Name:     src.Name,
			Tier:     src.Tier,
			FeedURL:  src.FeedURL,
			Homepage: src.Homepage,
			Enabled:  src.Enabled,
		}
		if err := db.Create(row).Error; err != nil {
			if !errors.Is(err, gorm.ErrDuplicatedKey) {
				return SourceRef{}, fmt.Errorf("create source %s: %w", src.Key(), err)
			}
			// a concurrent run created it first
			row = &Source{}
			if err := identity.First(row).Error; err != nil {
				return SourceRef{}, fmt.Errorf("load source %s: %w", src.Key(), err)
			}
		}
	default:
		if row.Tier != src.Tier || row.FeedURL != src.FeedURL || row.Homepage != src.Homepage || row.Enabled != src.Enabled {
			err := db.Model(row).Updates(map[string]any{
				"tier":     src.Tier,
				"feed_url": src.FeedURL,
				"homepage": src.Homepage,
				"enabled":  src.Enabled,
			}).Error
			if err != nil {
				return SourceRef{}, fmt.Errorf("update source %s: %w", src.Key(), err)
			}
		}
	}
	return SourceRef{ID: row.ID, State: row.State, County: row.County, Name: row.Name}, nil
}

// SyncSources upserts every catalog source, enabled or not, and returns refs
// keyed by catalog.Source.Key().
func (s *Store) SyncSources(ctx context.Context, sources []catalog.Source) (map[string]SourceRef, error) {
	refs := make(map[string]SourceRef, len(sources))
	for _, src := range sources {
		ref, err := s.EnsureSource(ctx, src)
		if err != nil {
			return nil, err
		}
		refs[src.Key()] = ref
	}
	return refs, nil
}
