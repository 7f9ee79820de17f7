package event

import (
	"context"
	"sync"
	"time"

	"github.com/cdcgov/data-exchange-processing-status/report-sink/internal/models"
	"github.com/redis/go-redis/v9"
)

// DeliveryTracker counts deliveries for transports that do not report a
// redelivery count themselves.
type DeliveryTracker interface {
	// Attempt records a delivery of messageID and returns its delivery
	// count, starting at 1.
	Attempt(ctx context.Context, messageID string) (int, error)
	Forget(ctx context.Context, messageID string) error
}

type MemoryTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{counts: map[string]int{}}
}

func (t *MemoryTracker) Attempt(_ context.Context, messageID string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[messageID]++
	return t.counts[messageID], nil
}

func (t *MemoryTracker) Forget(_ context.Context, messageID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counts, messageID)
	return nil
}

const (
	redisKeyPrefix       = "report-sink:deliveries:"
	DefaultRedisCountTTL = 24 * time.Hour
)

// RedisTracker keeps delivery counts in Redis so they survive restarts and
// are shared between replicas.
type RedisTracker struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisTracker(connectionString string) (*RedisTracker, error) {
	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, err
	}
	return &RedisTracker{Client: redis.NewClient(opts), TTL: DefaultRedisCountTTL}, nil
}

func (t *RedisTracker) Attempt(ctx context.Context, messageID string) (int, error) {
	key := redisKeyPrefix + messageID
	ttl := t.TTL
	if ttl <= 0 {
		ttl = DefaultRedisCountTTL
	}
	var incr *redis.IntCmd
	_, err := t.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (t *RedisTracker) Forget(ctx context.Context, messageID string) error {
	return t.Client.Del(ctx, redisKeyPrefix+messageID).Err()
}

func (t *RedisTracker) Health(ctx context.Context) models.ServiceHealthResp {
	rsp := models.HealthyResp(models.REDIS_TRACKER)
	if err := t.Client.Ping(ctx).Err(); err != nil {
		return rsp.BuildErrorResponse(err)
	}
	return rsp
}

func (t *RedisTracker) Close() error {
	return t.Client.Close()
}
