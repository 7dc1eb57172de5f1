// Package translate implements the segment translation sub-system: chunking,
// the LLM JSON contract, distributed rate limiting, content-addressed
// caching, and quality validation.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// bucketTTL keeps a minute counter alive long enough to cover clock skew
// between workers; two minutes outlives any reader of the bucket.
const bucketTTL = 2 * time.Minute

// RateLimiter throttles outbound LLM traffic below the provider's
// requests-per-minute quota. One counter per wall-clock UTC minute lives in
// Redis so all workers share the same budget. Accounting is approximate by
// design; the buffer factor leaves headroom for races.
type RateLimiter struct {
	rdb    redis.UniversalClient
	limit  int
	logger *slog.Logger

	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Usage is a point-in-time snapshot of the current minute's budget.
type Usage struct {
	Current   int     `json:"current"`
	Limit     int     `json:"limit"`
	Remaining int     `json:"remaining"`
	Percent   float64 `json:"percent"`
}

// NewRateLimiter creates a limiter enforcing floor(rpmLimit × bufferFactor)
// acquisitions per minute across all workers.
func NewRateLimiter(rdb redis.UniversalClient, rpmLimit int, bufferFactor float64, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		rdb:    rdb,
		limit:  int(math.Floor(float64(rpmLimit) * bufferFactor)),
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// bucketKey addresses the counter for the minute containing t.
func bucketKey(t time.Time) string {
	return "talkdub:ratelimit:" + t.UTC().Format("200601021504")
}

// Acquire blocks until a token for the current minute is available or the
// timeout elapses. Returns true on success, false when the wait exceeded
// timeout, and an error only for backend failures or context cancellation.
func (r *RateLimiter) Acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := r.now().Add(timeout)
	for {
		now := r.now()
		key := bucketKey(now)

		n, err := r.rdb.Incr(ctx, key).Result()
		if err != nil {
			return false, fmt.Errorf("translate: rate limiter incr: %w", err)
		}
		if n == 1 {
			// First acquirer of this minute owns setting the expiry.
			if err := r.rdb.Expire(ctx, key, bucketTTL).Err(); err != nil {
				return false, fmt.Errorf("translate: rate limiter expire: %w", err)
			}
		}
		if n <= int64(r.limit) {
			return true, nil
		}

		// Budget exhausted for this minute: wait for the next boundary.
		boundary := now.Truncate(time.Minute).Add(time.Minute)
		if boundary.After(deadline) {
			r.logger.Warn("rate limiter acquire timed out",
				"limit", r.limit,
				"timeout", timeout,
			)
			return false, nil
		}
		wait := boundary.Sub(now)
		r.logger.Debug("rate limit reached; waiting for next minute",
			"limit", r.limit,
			"wait", wait,
		)
		if err := r.sleep(ctx, wait); err != nil {
			return false, err
		}
	}
}

// CurrentUsage reports this minute's consumption for observability.
func (r *RateLimiter) CurrentUsage(ctx context.Context) (Usage, error) {
	n, err := r.rdb.Get(ctx, bucketKey(r.now())).Int()
	if err != nil && err != redis.Nil {
		return Usage{}, fmt.Errorf("translate: rate limiter usage: %w", err)
	}
	current := min(n, r.limit)
	u := Usage{
		Current:   current,
		Limit:     r.limit,
		Remaining: max(r.limit-current, 0),
	}
	if r.limit > 0 {
		u.Percent = float64(current) / float64(r.limit) * 100
	}
	return u, nil
}
