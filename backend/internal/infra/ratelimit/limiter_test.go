package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// TestMemoryLimiterWindow 验证内存限流器的固定窗口行为。
func TestMemoryLimiterWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "user:1", 3, 50*time.Millisecond)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !result.Allowed {
			t.Fatalf("request %d should pass", i)
		}
		if result.Remaining != 3-i-1 {
			t.Fatalf("request %d remaining = %d, want %d", i, result.Remaining, 3-i-1)
		}
	}

	blocked, err := limiter.Allow(ctx, "user:1", 3, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if blocked.Allowed {
		t.Fatalf("fourth request should be blocked")
	}
	if blocked.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", blocked.RetryAfter)
	}

	// 其他 key 不受影响。
	other, err := limiter.Allow(ctx, "user:2", 3, 50*time.Millisecond)
	if err != nil || !other.Allowed {
		t.Fatalf("other key should pass, got %+v err=%v", other, err)
	}

	// 窗口过期后计数重置。
	time.Sleep(60 * time.Millisecond)
	reset, err := limiter.Allow(ctx, "user:1", 3, 50*time.Millisecond)
	if err != nil || !reset.Allowed {
		t.Fatalf("request after window should pass, got %+v err=%v", reset, err)
	}
}

// TestMemoryLimiterUnlimited 验证 limit<=0 时直接放行。
func TestMemoryLimiterUnlimited(t *testing.T) {
	limiter := NewMemoryLimiter()
	result, err := limiter.Allow(context.Background(), "user:1", 0, time.Minute)
	if err != nil || !result.Allowed {
		t.Fatalf("unlimited should pass, got %+v err=%v", result, err)
	}
}

// TestRedisLimiterWindow 验证 Redis 限流器的计数与恢复。
func TestRedisLimiterWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewRedisLimiter(client, "test")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Allow(ctx, "user:1", 2, time.Minute)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !result.Allowed {
			t.Fatalf("request %d should pass", i)
		}
	}

	blocked, err := limiter.Allow(ctx, "user:1", 2, time.Minute)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if blocked.Allowed || blocked.RetryAfter <= 0 {
		t.Fatalf("expected block with retry-after, got %+v", blocked)
	}

	count, ttl, err := limiter.Peek(ctx, "user:1")
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if count != 3 || ttl <= 0 {
		t.Fatalf("unexpected peek result: count=%d ttl=%v", count, ttl)
	}

	// 窗口到期后重新放行。
	mr.FastForward(time.Minute + time.Second)
	reset, err := limiter.Allow(ctx, "user:1", 2, time.Minute)
	if err != nil || !reset.Allowed {
		t.Fatalf("request after window should pass, got %+v err=%v", reset, err)
	}
}
