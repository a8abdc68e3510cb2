package jobstore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"koru/internal/domain/ingest"
)

const (
	fieldTotal     = "total"
	fieldCompleted = "completed"
	fieldFailed    = "failed"
)

// RedisGroupStore keeps each group in one hash under
// <prefix>job:<groupID>. Counters are bumped with HINCRBY and the hash
// expires after retention.
type RedisGroupStore struct {
	client    redis.Cmdable
	prefix    string
	retention time.Duration
}

var _ GroupStore = (*RedisGroupStore)(nil)

func NewRedisGroupStore(client redis.Cmdable, prefix string, retention time.Duration) *RedisGroupStore {
	return &RedisGroupStore{client: client, prefix: prefix, retention: retention}
}

func (s *RedisGroupStore) key(groupID string) string {
	return s.prefix + "job:" + groupID
}

func (s *RedisGroupStore) Create(ctx context.Context, groupID string, total int) error {
	key := s.key(groupID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldTotal, total, fieldCompleted, 0, fieldFailed, 0)
		pipe.Expire(ctx, key, s.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create job group %s: %w", groupID, err)
	}
	return nil
}

func (s *RedisGroupStore) MarkDone(ctx context.Context, groupID string, taskErr error) error {
	field := fieldCompleted
	if taskErr != nil {
		field = fieldFailed
	}

	key := s.key(groupID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, field, 1)
		pipe.Expire(ctx, key, s.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record task result for job group %s: %w", groupID, err)
	}
	return nil
}

func (s *RedisGroupStore) Status(ctx context.Context, groupID string) (*ingest.GroupProgress, error) {
	values, err := s.client.HGetAll(ctx, s.key(groupID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job group %s: %w", groupID, err)
	}
	if _, ok := values[fieldTotal]; !ok {
		return nil, nil
	}
	return parseProgress(values)
}

func parseProgress(values map[string]string) (*ingest.GroupProgress, error) {
	var p ingest.GroupProgress
	for field, dst := range map[string]*int{
		fieldTotal:     &p.Total,
		fieldCompleted: &p.Completed,
		fieldFailed:    &p.Failed,
	} {
		raw, ok := values[field]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s counter %q: %w", field, raw, err)
		}
		*dst = n
	}
	return &p, nil
}
