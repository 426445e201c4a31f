package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRateLimiter(t *testing.T) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRateLimiter(client, "test:rate_limit:"), mr
}

func TestRedisRateLimiterAdmitsUpToLimit(t *testing.T) {
	limiter, mr := newTestRateLimiter(t)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		allowed, _, err := limiter.Allow(ctx, ibanAlice, 2, time.Minute)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !allowed {
			t.Fatalf("attempt %d refused", i)
		}
	}

	allowed, retryAfter, err := limiter.Allow(ctx, ibanAlice, 2, time.Minute)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Fatalf("third attempt should be refused")
	}
	if retryAfter < 1 || retryAfter > 60 {
		t.Fatalf("unexpected retryAfter %d", retryAfter)
	}

	key := "test:rate_limit:transfer:" + ibanAlice
	if !mr.Exists(key) {
		t.Fatalf("expected counter key with trimmed prefix")
	}

	mr.FastForward(time.Minute + time.Second)
	if allowed, _, err := limiter.Allow(ctx, ibanAlice, 2, time.Minute); err != nil || !allowed {
		t.Fatalf("expected window reset, got allowed=%v err=%v", allowed, err)
	}
}

func TestRedisRateLimiterDoesNotCountRefusedAttempts(t *testing.T) {
	limiter, mr := newTestRateLimiter(t)
	ctx := context.Background()

	if allowed, _, _ := limiter.Allow(ctx, ibanAlice, 1, time.Minute); !allowed {
		t.Fatalf("first attempt refused")
	}
	for i := 0; i < 5; i++ {
		if allowed, _, _ := limiter.Allow(ctx, ibanAlice, 1, time.Minute); allowed {
			t.Fatalf("attempt over the limit admitted")
		}
	}

	got, err := mr.Get("test:rate_limit:transfer:" + ibanAlice)
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if got != "1" {
		t.Fatalf("counter = %s, want 1", got)
	}
}

func TestRedisRateLimiterNormalizesSender(t *testing.T) {
	limiter, _ := newTestRateLimiter(t)
	ctx := context.Background()

	if allowed, _, _ := limiter.Allow(ctx, "de89 3704 0044 0532 0130 00", 1, time.Minute); !allowed {
		t.Fatalf("first attempt refused")
	}
	if allowed, _, _ := limiter.Allow(ctx, ibanAlice, 1, time.Minute); allowed {
		t.Fatalf("formatted and compact IBAN should share one allowance")
	}
}

func TestRedisRateLimiterDisabled(t *testing.T) {
	var nilLimiter *RedisRateLimiter
	if allowed, _, err := nilLimiter.Allow(context.Background(), ibanAlice, 1, time.Minute); !allowed || err != nil {
		t.Fatalf("nil limiter should admit, got %v %v", allowed, err)
	}

	limiter, _ := newTestRateLimiter(t)
	if allowed, _, err := limiter.Allow(context.Background(), " ", 1, time.Minute); !allowed || err != nil {
		t.Fatalf("blank sender should admit, got %v %v", allowed, err)
	}
}

func TestTransferRateLimitCheck(t *testing.T) {
	limiter, _ := newTestRateLimiter(t)
	rl := TransferRateLimit{Limiter: limiter, Limit: 2, Window: time.Minute}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := rl.Check(ctx, ibanAlice); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	retryAfter, err := rl.Check(ctx, ibanAlice)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if retryAfter < 1 {
		t.Fatalf("expected positive retryAfter, got %d", retryAfter)
	}

	// Other senders have their own window.
	if _, err := rl.Check(ctx, ibanBob); err != nil {
		t.Fatalf("other sender limited: %v", err)
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(ctx context.Context, sender string, limit int, window time.Duration) (bool, int, error) {
	return false, 0, errors.New("redis unavailable")
}

func TestTransferRateLimitFailsOpen(t *testing.T) {
	rl := TransferRateLimit{Limiter: brokenLimiter{}, Limit: 1, Window: time.Minute}
	if _, err := rl.Check(context.Background(), ibanAlice); err != nil {
		t.Fatalf("expected limiter errors to be ignored, got %v", err)
	}
}
