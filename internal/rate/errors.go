package rate

import "errors"

var (
	// ErrRateLimited signals the counter for a key exceeded its budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport failures talking to Redis.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
