package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	EnableIPThrottle    bool
	MaxLoginAttempts    int
	LoginCooldown       time.Duration
	MaxCodeRequests     int
	CodeRequestCooldown time.Duration
}

// Limiter enforces per-identifier and per-IP budgets using Redis
// counters. A nil *Limiter is a no-op so callers can run without Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin reports whether the username+IP pair is still within the
// login attempt budget without consuming an attempt.
func (l *Limiter) CheckLogin(ctx context.Context, username, ip string) error {
	if l == nil {
		return nil
	}

	if err := l.checkCounter(ctx, loginUserKey(username), l.config.MaxLoginAttempts); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, loginIPKey(ip), l.config.MaxLoginAttempts); err != nil {
			return err
		}
	}

	return nil
}

// IncrementLogin records a failed login attempt for the username+IP pair.
func (l *Limiter) IncrementLogin(ctx context.Context, username, ip string) error {
	if l == nil {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, loginUserKey(username), l.config.LoginCooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, loginIPKey(ip), l.config.LoginCooldown)
		if err != nil {
			return err
		}
		if count > int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetLogin clears the failed-login counters after a successful login
// or password change.
func (l *Limiter) ResetLogin(ctx context.Context, username, ip string) error {
	if l == nil {
		return nil
	}

	keys := []string{loginUserKey(username)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, loginIPKey(ip))
	}

	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// CheckCodeRequest consumes one code-issuance attempt for the address.
// Verification and reset codes share a single budget per address.
func (l *Limiter) CheckCodeRequest(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, codeRequestKey(email), l.config.CodeRequestCooldown)
	if err != nil {
		return err
	}
	if count > int64(l.config.MaxCodeRequests) {
		return ErrRateLimited
	}

	return nil
}

// LoginAttempts returns the current failed-attempt counter for a
// username. Missing keys return zero and do not reveal account
// existence.
func (l *Limiter) LoginAttempts(ctx context.Context, username string) (int, error) {
	if l == nil {
		return 0, nil
	}

	count, err := l.redis.Get(ctx, loginUserKey(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string, maxAttempts int) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count > int64(maxAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func loginUserKey(username string) string { return "lg:" + username }
func loginIPKey(ip string) string         { return "lgi:" + ip }
func codeRequestKey(email string) string  { return "vc:" + email }
