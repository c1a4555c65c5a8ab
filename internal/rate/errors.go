package rate

import "errors"

// ErrRateLimited is returned when an attempt budget is exhausted.
var ErrRateLimited = errors.New("rate limited")

// ErrRedisUnavailable wraps Redis transport failures so callers can
// distinguish an outage from a limit hit.
var ErrRedisUnavailable = errors.New("rate limiter redis unavailable")
