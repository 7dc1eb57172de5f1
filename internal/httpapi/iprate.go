package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// IPLimiter enforces fixed-window per-client request limits backed by redis.
// Counter keys expire on their own, so a redis outage degrades to fail-open
// rather than locking users out.
type IPLimiter struct {
	rdb    redis.UniversalClient
	logger *slog.Logger

	now func() time.Time
}

func NewIPLimiter(rdb redis.UniversalClient, logger *slog.Logger) *IPLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &IPLimiter{rdb: rdb, logger: logger, now: time.Now}
}

// Allow reports whether the client may make another request in the named
// bucket. The window is aligned to wall-clock boundaries so all instances
// agree on the counter key.
func (l *IPLimiter) Allow(ctx context.Context, bucket, clientIP string, limit int, window time.Duration) bool {
	slot := l.now().UTC().Truncate(window).Unix()
	key := fmt.Sprintf("iprate:%s:%s:%d", bucket, clientIP, slot)

	pipe := l.rdb.TxPipeline()
	count := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limit check failed, allowing request", "bucket", bucket, "error", err)
		return true
	}
	return count.Val() <= int64(limit)
}

// Middleware wraps a handler with a per-IP limit for one bucket.
func (l *IPLimiter) Middleware(bucket string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !l.Allow(r.Context(), bucket, ip, limit, window) {
				l.logger.Info("rate limit exceeded", "bucket", bucket, "ip", ip)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the requester's address, preferring the first
// X-Forwarded-For hop when a proxy added one.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
