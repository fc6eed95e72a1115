package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	runSummaryTTL  = 7 * 24 * time.Hour
	runSummaryKey  = "runs:last:%s"
	resolveMissKey = "resolve:miss:%s"
)

// SaveRunSummary keeps the latest summary of a stage. It is a no-op without Redis.
func (s *Store) SaveRunSummary(ctx context.Context, stage string, summary any) error {
	if s.Redis == nil {
		return nil
	}
	bs, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode %s summary: %w", stage, err)
	}
	return s.Redis.Set(ctx, fmt.Sprintf(runSummaryKey, stage), bs, runSummaryTTL).Err()
}

// LatestRunSummaries returns the stored summary of each stage that has one.
func (s *Store) LatestRunSummaries(ctx context.Context, stages ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(stages))
	if s.Redis == nil {
		return out, nil
	}
	for _, stage := range stages {
		bs, err := s.Redis.Get(ctx, fmt.Sprintf(runSummaryKey, stage)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s summary: %w", stage, err)
		}
		out[stage] = json.RawMessage(bs)
	}
	return out, nil
}

// IsResolveMiss reports whether a source recently failed feed resolution.
// Cache errors count as "not a miss" so the source is retried.
func (s *Store) IsResolveMiss(ctx context.Context, sourceKey string) bool {
	if s.Redis == nil {
		return false
	}
	n, err := s.Redis.Exists(ctx, fmt.Sprintf(resolveMissKey, sourceKey)).Result()
	return err == nil && n > 0
}

func (s *Store) RememberResolveMiss(ctx context.Context, sourceKey string, ttl time.Duration) error {
	if s.Redis == nil || ttl <= 0 {
		return nil
	}
	return s.Redis.Set(ctx, fmt.Sprintf(resolveMissKey, sourceKey), time.Now().UTC().Format(time.RFC3339), ttl).Err()
}
