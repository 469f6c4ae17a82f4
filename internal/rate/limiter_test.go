package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	return mr, New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), cfg)
}

func testConfig() Config {
	return Config{
		EnableIPThrottle:    true,
		MaxLoginAttempts:    3,
		LoginCooldown:       15 * time.Minute,
		MaxCodeRequests:     2,
		CodeRequestCooldown: time.Hour,
	}
}

func TestLoginBudget(t *testing.T) {
	_, l := newTestLimiter(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.CheckLogin(ctx, "alice", "203.0.113.9"); err != nil {
			t.Fatalf("check %d failed: %v", i, err)
		}
		if err := l.IncrementLogin(ctx, "alice", "203.0.113.9"); err != nil {
			t.Fatalf("increment %d failed: %v", i, err)
		}
	}

	if err := l.IncrementLogin(ctx, "alice", "203.0.113.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "alice", "203.0.113.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited from check, got %v", err)
	}
}

func TestResetLoginClearsCounters(t *testing.T) {
	_, l := newTestLimiter(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		l.IncrementLogin(ctx, "alice", "203.0.113.9")
	}
	if err := l.CheckLogin(ctx, "alice", "203.0.113.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	if err := l.ResetLogin(ctx, "alice", "203.0.113.9"); err != nil {
		t.Fatalf("ResetLogin failed: %v", err)
	}
	if err := l.CheckLogin(ctx, "alice", "203.0.113.9"); err != nil {
		t.Fatalf("expected clean slate after reset, got %v", err)
	}

	attempts, err := l.LoginAttempts(ctx, "alice")
	if err != nil || attempts != 0 {
		t.Fatalf("expected 0 attempts, got %d / %v", attempts, err)
	}
}

func TestIPThrottleIndependentOfUsername(t *testing.T) {
	_, l := newTestLimiter(t, testConfig())
	ctx := context.Background()

	// Different usernames, same IP: the IP counter still fills up.
	l.IncrementLogin(ctx, "a1", "203.0.113.9")
	l.IncrementLogin(ctx, "a2", "203.0.113.9")
	l.IncrementLogin(ctx, "a3", "203.0.113.9")

	if err := l.IncrementLogin(ctx, "a4", "203.0.113.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on shared IP, got %v", err)
	}

	// A different IP is unaffected.
	if err := l.CheckLogin(ctx, "a5", "198.51.100.7"); err != nil {
		t.Fatalf("unrelated IP must pass: %v", err)
	}
}

func TestIPThrottleDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnableIPThrottle = false
	_, l := newTestLimiter(t, cfg)
	ctx := context.Background()

	l.IncrementLogin(ctx, "a1", "203.0.113.9")
	l.IncrementLogin(ctx, "a2", "203.0.113.9")
	l.IncrementLogin(ctx, "a3", "203.0.113.9")

	if err := l.IncrementLogin(ctx, "a4", "203.0.113.9"); err != nil {
		t.Fatalf("IP throttle disabled, expected pass: %v", err)
	}
}

func TestLoginWindowExpires(t *testing.T) {
	mr, l := newTestLimiter(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		l.IncrementLogin(ctx, "alice", "")
	}
	if err := l.CheckLogin(ctx, "alice", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(16 * time.Minute)

	if err := l.CheckLogin(ctx, "alice", ""); err != nil {
		t.Fatalf("expected fresh window after cooldown, got %v", err)
	}
}

func TestCodeRequestBudget(t *testing.T) {
	mr, l := newTestLimiter(t, testConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckCodeRequest(ctx, "alice@example.com"); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if err := l.CheckCodeRequest(ctx, "alice@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// Other addresses keep their own budget.
	if err := l.CheckCodeRequest(ctx, "bob@example.com"); err != nil {
		t.Fatalf("unrelated address must pass: %v", err)
	}

	mr.FastForward(61 * time.Minute)
	if err := l.CheckCodeRequest(ctx, "alice@example.com"); err != nil {
		t.Fatalf("expected fresh window after cooldown, got %v", err)
	}
}

func TestNilLimiterIsNoOp(t *testing.T) {
	var l *Limiter
	ctx := context.Background()

	if err := l.CheckLogin(ctx, "alice", "ip"); err != nil {
		t.Fatalf("nil limiter must pass: %v", err)
	}
	if err := l.IncrementLogin(ctx, "alice", "ip"); err != nil {
		t.Fatalf("nil limiter must pass: %v", err)
	}
	if err := l.CheckCodeRequest(ctx, "alice@example.com"); err != nil {
		t.Fatalf("nil limiter must pass: %v", err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	mr, l := newTestLimiter(t, testConfig())
	mr.Close()

	if err := l.IncrementLogin(context.Background(), "alice", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
