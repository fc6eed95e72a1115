package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/LJTian/countywire/internal/catalog"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "countywire.db")), GormConfig())
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store, err := New(db, rdb, true, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestEnsureSourceCreatesThenUpdates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	src := catalog.Source{State: "FL", County: "Bay", Name: "Panama City News Herald", Tier: "daily", FeedURL: "https://example.com/feed", Enabled: true}
	first, err := store.EnsureSource(ctx, src)
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	src.Enabled = false
	src.FeedURL = "https://example.com/rss"
	second, err := store.EnsureSource(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var row Source
	require.NoError(t, store.DB.First(&row, first.ID).Error)
	assert.False(t, row.Enabled)
	assert.Equal(t, "https://example.com/rss", row.FeedURL)

	var n int64
	store.DB.Model(&Source{}).Count(&n)
	assert.EqualValues(t, 1, n)
}

// traceRecorder keeps every error gorm would log for a statement.
type traceRecorder struct {
	logger.Interface
	errs []error
}

func (r *traceRecorder) LogMode(logger.LogLevel) logger.Interface { return r }

func (r *traceRecorder) Trace(_ context.Context, _ time.Time, _ func() (string, int64), err error) {
	if err != nil {
		r.errs = append(r.errs, err)
	}
}

func TestEnsureSourceFirstSightLogsNoError(t *testing.T) {
	store, _ := newTestStore(t)
	rec := &traceRecorder{Interface: logger.Discard}
	store.DB = store.DB.Session(&gorm.Session{Logger: rec})

	ref, err := store.EnsureSource(context.Background(), catalog.Source{State: "FL", County: "Bay", Name: "Star"})
	require.NoError(t, err)
	assert.NotZero(t, ref.ID)
	assert.Empty(t, rec.errs)
}

func TestSyncSourcesKeysByCatalogKey(t *testing.T) {
	store, _ := newTestStore(t)
	sources := []catalog.Source{
		{State: "FL", County: "Bay", Name: "A", Enabled: true},
		{State: "FL", County: "Bay", Name: "B", Enabled: false},
		{State: "AL", County: "Bay", Name: "A", Enabled: true},
	}
	refs, err := store.SyncSources(context.Background(), sources)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.NotEqual(t, refs["FL/Bay/A"].ID, refs["AL/Bay/A"].ID)
	assert.Equal(t, "AL", refs["AL/Bay/A"].State)
}

func TestRunSummariesRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRunSummary(ctx, "ingest", map[string]int{"attempted": 4}))
	got, err := store.LatestRunSummaries(ctx, "ingest", "synthesis")
	require.NoError(t, err)
	require.Contains(t, got, "ingest")
	assert.NotContains(t, got, "synthesis")
	assert.JSONEq(t, `{"attempted":4}`, string(got["ingest"]))
}

func TestResolveMissExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	assert.False(t, store.IsResolveMiss(ctx, "FL/Bay/A"))
	require.NoError(t, store.RememberResolveMiss(ctx, "FL/Bay/A", 0))
	assert.False(t, store.IsResolveMiss(ctx, "FL/Bay/A"), "zero ttl disables the cache")

	require.NoError(t, store.RememberResolveMiss(ctx, "FL/Bay/A", 30*time.Minute))
	assert.True(t, store.IsResolveMiss(ctx, "FL/Bay/A"))

	mr.FastForward(30*time.Minute + time.Second)
	assert.False(t, store.IsResolveMiss(ctx, "FL/Bay/A"))
}

func TestNilRedisIsTolerated(t *testing.T) {
	store, _ := newTestStore(t)
	store.Redis = nil
	ctx := context.Background()

	assert.NoError(t, store.SaveRunSummary(ctx, "ingest", struct{}{}))
	got, err := store.LatestRunSummaries(ctx, "ingest")
	assert.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, store.IsResolveMiss(ctx, "x"))
	_, err = store.ListStories(ctx, StoryFilter{})
	assert.NoError(t, err)
}
