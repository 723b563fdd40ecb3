package outcome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	clierr "github.com/gustavo/tradeguard/internal/errors"
)

// SessionLedger is the authoritative accumulator for session-key budget
// consumption. Apply must be exactly-once per execution ID and atomic across
// concurrent executions against the same session; the engine never
// increments usage locally.
type SessionLedger interface {
	// Apply adds amountUSD to the session's running total, once per
	// executionID, and returns the new total.
	Apply(ctx context.Context, sessionID, executionID string, amountUSD decimal.Decimal) (decimal.Decimal, error)
	// Usage returns the session's current running total.
	Usage(ctx context.Context, sessionID string) (decimal.Decimal, error)
}

const (
	usageKeyPrefix   = "tradeguard:session:usage:"
	appliedKeyPrefix = "tradeguard:session:applied:"
	appliedTTL       = 30 * 24 * time.Hour
)

// applyScript makes dedupe-then-increment a single atomic server-side step.
// KEYS[1] usage key, KEYS[2] applied marker; ARGV[1] amount, ARGV[2] TTL sec.
var applyScript = redis.NewScript(`
if redis.call('SETNX', KEYS[2], '1') == 0 then
	local current = redis.call('GET', KEYS[1])
	if current then return current end
	return '0'
end
redis.call('EXPIRE', KEYS[2], ARGV[2])
return redis.call('INCRBYFLOAT', KEYS[1], ARGV[1])
`)

// RedisLedger implements SessionLedger on Redis. All budget writes funnel
// through the backend's Redis so concurrent engines cannot double-spend.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(address, password string, db int) (*RedisLedger, error) {
	if address == "" {
		return nil, clierr.New(clierr.CodeUsage, "redis ledger requires an address")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, clierr.Wrap(clierr.CodeStore, "connect redis ledger", err)
	}
	return &RedisLedger{client: client}, nil
}

func (l *RedisLedger) Apply(ctx context.Context, sessionID, executionID string, amountUSD decimal.Decimal) (decimal.Decimal, error) {
	if sessionID == "" || executionID == "" {
		return decimal.Zero, clierr.New(clierr.CodeValidation, "ledger apply requires session and execution ids")
	}
	if amountUSD.IsNegative() {
		return decimal.Zero, clierr.New(clierr.CodeValidation, "ledger apply amount must not be negative")
	}
	keys := []string{
		usageKeyPrefix + sessionID,
		appliedKeyPrefix + executionID,
	}
	raw, err := applyScript.Run(ctx, l.client, keys,
		amountUSD.String(), int64(appliedTTL.Seconds())).Text()
	if err != nil {
		return decimal.Zero, clierr.Wrap(clierr.CodeStore, "apply session usage", err)
	}
	total, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, clierr.Wrap(clierr.CodeStore, fmt.Sprintf("parse ledger total %q", raw), err)
	}
	return total, nil
}

func (l *RedisLedger) Usage(ctx context.Context, sessionID string) (decimal.Decimal, error) {
	raw, err := l.client.Get(ctx, usageKeyPrefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return decimal.Zero, nil
		}
		return decimal.Zero, clierr.Wrap(clierr.CodeStore, "read session usage", err)
	}
	total, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, clierr.Wrap(clierr.CodeStore, fmt.Sprintf("parse session usage %q", raw), err)
	}
	return total, nil
}

func (l *RedisLedger) Close() error {
	return l.client.Close()
}

// MemoryLedger is the in-process SessionLedger used by tests and by
// single-process deployments without Redis.
type MemoryLedger struct {
	mu      sync.Mutex
	usage   map[string]decimal.Decimal
	applied map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		usage:   make(map[string]decimal.Decimal),
		applied: make(map[string]struct{}),
	}
}

func (l *MemoryLedger) Apply(_ context.Context, sessionID, executionID string, amountUSD decimal.Decimal) (decimal.Decimal, error) {
	if sessionID == "" || executionID == "" {
		return decimal.Zero, clierr.New(clierr.CodeValidation, "ledger apply requires session and execution ids")
	}
	if amountUSD.IsNegative() {
		return decimal.Zero, clierr.New(clierr.CodeValidation, "ledger apply amount must not be negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, done := l.applied[executionID]; done {
		return l.usage[sessionID], nil
	}
	l.applied[executionID] = struct{}{}
	l.usage[sessionID] = l.usage[sessionID].Add(amountUSD)
	return l.usage[sessionID], nil
}

func (l *MemoryLedger) Usage(_ context.Context, sessionID string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usage[sessionID], nil
}
