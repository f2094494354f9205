package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RateLimiter implements per-user per-command in-memory rate limiting
type RateLimiter struct {
	mu       sync.Mutex
	lastCall map[int64]map[string]time.Time
	limits   map[string]time.Duration
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		lastCall: make(map[int64]map[string]time.Time),
		limits: map[string]time.Duration{
			"/buy":          5 * time.Second,
			"/promo":        3 * time.Second,
			"/subscription": 5 * time.Second,
		},
	}
}

// IsLimited returns true if user is rate-limited for this command
func (r *RateLimiter) IsLimited(userID int64, cmd string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if r.lastCall[userID] == nil {
		r.lastCall[userID] = make(map[string]time.Time)
	}
	limit, ok := r.limits[cmd]
	if !ok {
		limit = time.Second // default limit
	}
	last := r.lastCall[userID][cmd]
	if now.Sub(last) < limit {
		return true
	}
	r.lastCall[userID][cmd] = now
	return false
}

const (
	promoAttemptsPerWindow = 5
	promoWindow            = 10 * time.Minute
)

// PromoGuard caps promocode attempts per user in a shared Redis window, so
// codes cannot be brute forced across restarts or replicas.
type PromoGuard struct {
	client *goredis.Client
	limit  int64
	window time.Duration
}

func NewPromoGuard(client *goredis.Client) *PromoGuard {
	return &PromoGuard{client: client, limit: promoAttemptsPerWindow, window: promoWindow}
}

// Allow counts an attempt and reports whether it is within the limit,
// with the time left in the window otherwise.
func (g *PromoGuard) Allow(ctx context.Context, userID int64) (bool, time.Duration, error) {
	count, ttl, err := g.incrementWindow(ctx, fmt.Sprintf("promo:attempts:%d", userID))
	if err != nil {
		return false, 0, err
	}
	return count <= g.limit, ttl, nil
}

func (g *PromoGuard) incrementWindow(ctx context.Context, key string) (int64, time.Duration, error) {
	count, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("increment rate key: %w", err)
	}
	if count == 1 {
		if err := g.client.Expire(ctx, key, g.window).Err(); err != nil {
			return 0, 0, fmt.Errorf("set rate key ttl: %w", err)
		}
	}
	ttl, err := g.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("read rate key ttl: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return count, ttl, nil
}
