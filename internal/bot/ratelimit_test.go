package bot

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestRateLimiter(t *testing.T) {
	r := NewRateLimiter()
	if r.IsLimited(1, "/buy") {
		t.Fatal("first call limited")
	}
	if !r.IsLimited(1, "/buy") {
		t.Error("second call within window not limited")
	}
	if r.IsLimited(2, "/buy") {
		t.Error("other user limited")
	}
	if r.IsLimited(1, "/help") {
		t.Error("other command limited")
	}
}

func TestPromoGuard(t *testing.T) {
	ctx := context.Background()
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer client.Close()
	guard := NewPromoGuard(client)

	for i := 1; i <= promoAttemptsPerWindow; i++ {
		allowed, _, err := guard.Allow(ctx, 42)
		if err != nil || !allowed {
			t.Fatalf("attempt %d: %v %v", i, allowed, err)
		}
	}
	allowed, wait, err := guard.Allow(ctx, 42)
	if err != nil || allowed {
		t.Fatalf("over limit: %v %v", allowed, err)
	}
	if wait <= 0 || wait > promoWindow {
		t.Errorf("wait: %v", wait)
	}
	if allowed, _, _ := guard.Allow(ctx, 43); !allowed {
		t.Error("other user blocked")
	}

	mr.FastForward(promoWindow + time.Second)
	if allowed, _, err := guard.Allow(ctx, 42); err != nil || !allowed {
		t.Errorf("after window: %v %v", allowed, err)
	}
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})

	return mr, client
}
