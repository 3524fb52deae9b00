package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tilsley/snapsync/apps/snapsync/internal/snapshot"
)

const (
	redisIndexKey  = "runs:index"
	redisKeyPrefix = "run:"
)

// Compile-time check: *RedisRunStore implements snapshot.RunStore.
var _ snapshot.RunStore = (*RedisRunStore)(nil)

// RedisRunStore keeps run reports in Redis, indexed by start time.
type RedisRunStore struct {
	rdb       *redis.Client
	retention time.Duration
}

// NewRedisRunStore creates a RedisRunStore. A zero retention keeps reports forever.
func NewRedisRunStore(rdb *redis.Client, retention time.Duration) *RedisRunStore {
	return &RedisRunStore{rdb: rdb, retention: retention}
}

// Save upserts a report and (re)indexes it by StartedAt.
func (s *RedisRunStore) Save(ctx context.Context, report snapshot.RunReport) error {
	if report.RunID == "" {
		return errors.New("run report has no ID")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run %q: %w", report.RunID, err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, redisKeyPrefix+report.RunID, data, s.retention)
		p.ZAdd(ctx, redisIndexKey, redis.Z{
			Score:  float64(report.StartedAt.UnixMilli()),
			Member: report.RunID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save run %q: %w", report.RunID, err)
	}
	return nil
}

// Get retrieves a report by ID, returning nil if not found.
func (s *RedisRunStore) Get(ctx context.Context, runID string) (*snapshot.RunReport, error) {
	val, err := s.rdb.Get(ctx, redisKeyPrefix+runID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil //nolint:nilnil // caller checks nil value to detect "not found"
	}
	if err != nil {
		return nil, fmt.Errorf("get run %q: %w", runID, err)
	}
	var report snapshot.RunReport
	if err := json.Unmarshal(val, &report); err != nil {
		return nil, fmt.Errorf("unmarshal run %q: %w", runID, err)
	}
	return &report, nil
}

// List returns up to limit reports, newest first. Index entries whose report
// has expired are pruned and the index is read further until limit reports
// are found or it runs out.
func (s *RedisRunStore) List(ctx context.Context, limit int) ([]snapshot.RunReport, error) {
	if limit <= 0 {
		return []snapshot.RunReport{}, nil
	}

	result := make([]snapshot.RunReport, 0, limit)
	var start int64
	for len(result) < limit {
		page := int64(limit - len(result))
		ids, err := s.rdb.ZRevRange(ctx, redisIndexKey, start, start+page-1).Result()
		if err != nil {
			return nil, fmt.Errorf("list index: %w", err)
		}

		kept := 0
		for _, id := range ids {
			r, err := s.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			if r == nil {
				if err := s.rdb.ZRem(ctx, redisIndexKey, id).Err(); err != nil {
					return nil, fmt.Errorf("prune %q: %w", id, err)
				}
				continue
			}
			result = append(result, *r)
			kept++
		}
		if int64(len(ids)) < page {
			break
		}
		// Pruned members no longer shift the ranks that follow.
		start += int64(kept)
	}
	return result, nil
}
