package outcome

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	clierr "github.com/gustavo/tradeguard/internal/errors"
)

// ProcessedSet remembers execution IDs the engine has already acted on.
// Backend-approved executions may be re-offered by a stale read; membership
// here guarantees at most one signing prompt per execution.
type ProcessedSet interface {
	Mark(ctx context.Context, executionID string) error
	Contains(ctx context.Context, executionID string) (bool, error)
}

const (
	processedKey = "tradeguard:executions:processed"
	processedTTL = 7 * 24 * time.Hour
)

// RedisProcessedSet shares the processed set across engine restarts.
type RedisProcessedSet struct {
	client *redis.Client
}

func NewRedisProcessedSet(client *redis.Client) *RedisProcessedSet {
	return &RedisProcessedSet{client: client}
}

func (s *RedisProcessedSet) Mark(ctx context.Context, executionID string) error {
	if executionID == "" {
		return clierr.New(clierr.CodeValidation, "mark processed requires an execution id")
	}
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, processedKey, executionID)
	pipe.Expire(ctx, processedKey, processedTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return clierr.Wrap(clierr.CodeStore, "mark execution processed", err)
	}
	return nil
}

func (s *RedisProcessedSet) Contains(ctx context.Context, executionID string) (bool, error) {
	member, err := s.client.SIsMember(ctx, processedKey, executionID).Result()
	if err != nil {
		return false, clierr.Wrap(clierr.CodeStore, "check processed execution", err)
	}
	return member, nil
}

// MemoryProcessedSet is the in-process fallback used by tests and
// deployments without Redis.
type MemoryProcessedSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewMemoryProcessedSet() *MemoryProcessedSet {
	return &MemoryProcessedSet{ids: make(map[string]struct{})}
}

func (s *MemoryProcessedSet) Mark(_ context.Context, executionID string) error {
	if executionID == "" {
		return clierr.New(clierr.CodeValidation, "mark processed requires an execution id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[executionID] = struct{}{}
	return nil
}

func (s *MemoryProcessedSet) Contains(_ context.Context, executionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[executionID]
	return ok, nil
}
