package core

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// Counter keys tracked for the admin dashboard.
const (
	MetricLogins              = "metrics:logins"
	MetricCartMutations       = "metrics:cart_mutations"
	MetricCheckoutsCompleted  = "metrics:checkouts_completed"
	MetricCheckoutLinesFailed = "metrics:checkout_lines_failed"
)

// StoreMetrics is the aggregate counter snapshot.
type StoreMetrics struct {
	Logins              int64 `json:"logins"`
	CartMutations       int64 `json:"cart_mutations"`
	CheckoutsCompleted  int64 `json:"checkouts_completed"`
	CheckoutLinesFailed int64 `json:"checkout_lines_failed"`
}

// MetricsRedis is the subset of go-redis used for counters.
type MetricsRedis interface {
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// MetricsService keeps best-effort operation counters in redis. Counter
// errors are logged and never fail the calling operation.
type MetricsService struct {
	redis MetricsRedis
}

func NewMetricsService(redis MetricsRedis) *MetricsService {
	return &MetricsService{redis: redis}
}

// Incr bumps a counter by one.
func (s *MetricsService) Incr(ctx context.Context, key string) {
	s.Add(ctx, key, 1)
}

// Add bumps a counter by n.
func (s *MetricsService) Add(ctx context.Context, key string, n int64) {
	if s == nil || s.redis == nil {
		return
	}
	if err := s.redis.IncrBy(ctx, key, n).Err(); err != nil {
		log.Printf("metrics: incr %s failed: %v", key, err)
	}
}

// Overview returns the current counter values; missing keys read as zero.
func (s *MetricsService) Overview(ctx context.Context) (StoreMetrics, error) {
	var m StoreMetrics
	if s == nil || s.redis == nil {
		return m, nil
	}
	m.Logins = s.read(ctx, MetricLogins)
	m.CartMutations = s.read(ctx, MetricCartMutations)
	m.CheckoutsCompleted = s.read(ctx, MetricCheckoutsCompleted)
	m.CheckoutLinesFailed = s.read(ctx, MetricCheckoutLinesFailed)
	return m, nil
}

func (s *MetricsService) read(ctx context.Context, key string) int64 {
	val, err := s.redis.Get(ctx, key).Int64()
	if err != nil {
		return 0
	}
	return val
}
