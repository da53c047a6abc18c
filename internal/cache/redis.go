// Package cache provides a Redis-backed cache for rank histories.
// The cache is strictly best effort: a missing or unreachable Redis
// degrades every lookup to a miss and never surfaces an error.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/blogboost/ranktracker/internal/metrics"
	"github.com/blogboost/ranktracker/internal/rank"
)

const defaultTTL = 10 * time.Minute

// Config captures the Redis connection parameters.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Redis caches rank histories keyed by tracking ID, with a per-keyword
// index so a fresh snapshot can invalidate every affected entry.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	warned atomic.Bool
}

// NewRedis connects to Redis and verifies the connection. When no
// address is configured or the ping fails, the returned cache bypasses
// Redis entirely instead of failing.
func NewRedis(cfg Config, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	r := &Redis{ttl: ttl, logger: logger}
	if cfg.Addr == "" {
		logger.Info("history cache disabled, no redis address configured")
		return r
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, bypassing history cache", zap.Error(err))
		_ = client.Close()
		return r
	}
	r.client = client
	return r
}

func (r *Redis) disabled() bool {
	return r == nil || r.client == nil
}

func (r *Redis) warnOnce(err error) {
	if r.warned.CompareAndSwap(false, true) {
		r.logger.Warn("redis error, bypassing history cache", zap.Error(err))
	}
}

func historyKey(trackingID int64) string {
	return fmt.Sprintf("history:%d", trackingID)
}

func keywordKey(keyword string) string {
	return "history:kw:" + keyword
}

// Get returns the cached history for a tracking subscription.
func (r *Redis) Get(ctx context.Context, trackingID int64) (rank.RankHistory, bool) {
	if r.disabled() {
		return rank.RankHistory{}, false
	}
	b, err := r.client.Get(ctx, historyKey(trackingID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.warnOnce(err)
		}
		metrics.ObserveHistoryCache(false)
		return rank.RankHistory{}, false
	}
	var history rank.RankHistory
	if err := json.Unmarshal(b, &history); err != nil {
		metrics.ObserveHistoryCache(false)
		return rank.RankHistory{}, false
	}
	metrics.ObserveHistoryCache(true)
	return history, true
}

// Set stores the history and indexes it under its keyword. The index
// shares the entry TTL so it cannot outgrow the entries it points at
// for long.
func (r *Redis) Set(ctx context.Context, keyword string, history rank.RankHistory) {
	if r.disabled() {
		return
	}
	b, err := json.Marshal(history)
	if err != nil {
		return
	}
	key := historyKey(history.TrackingID)
	if err := r.client.Set(ctx, key, b, r.ttl).Err(); err != nil {
		r.warnOnce(err)
		return
	}
	if err := r.client.SAdd(ctx, keywordKey(keyword), key).Err(); err != nil {
		r.warnOnce(err)
		return
	}
	if err := r.client.Expire(ctx, keywordKey(keyword), r.ttl).Err(); err != nil {
		r.warnOnce(err)
	}
}

// InvalidateKeyword drops every cached history indexed under the keyword.
// Called after a collection lands a fresh snapshot.
func (r *Redis) InvalidateKeyword(ctx context.Context, keyword string) {
	if r.disabled() {
		return
	}
	keys, err := r.client.SMembers(ctx, keywordKey(keyword)).Result()
	if err != nil {
		r.warnOnce(err)
		return
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			r.warnOnce(err)
		}
	}
	if err := r.client.Del(ctx, keywordKey(keyword)).Err(); err != nil {
		r.warnOnce(err)
	}
}

// Close releases the underlying client.
func (r *Redis) Close() error {
	if r.disabled() {
		return nil
	}
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
