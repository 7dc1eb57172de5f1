package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache memoises batch translations in Redis, keyed by a content hash of
// the source texts scoped by language pair. It is a performance aid and
// never a correctness dependency: misses and backend failures are silent.
type Cache struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a Cache whose entries expire after ttl.
func NewCache(rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}
}

// cacheKey derives the content-addressed key for a text batch: the first 16
// hex characters of sha256 over the JSON-encoded text list, scoped by the
// language pair. Text order and casing are significant.
func cacheKey(texts []string, srcLang, tgtLang string) string {
	raw, _ := json.Marshal(texts)
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("talkdub:trcache:%s:%s:%s", srcLang, tgtLang, hex.EncodeToString(sum[:])[:16])
}

// Get returns the cached translation list for the batch, or (nil, false) on
// a miss. Backend errors are logged and reported as misses.
func (c *Cache) Get(ctx context.Context, texts []string, srcLang, tgtLang string) ([]string, bool) {
	raw, err := c.rdb.Get(ctx, cacheKey(texts, srcLang, tgtLang)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("translation cache read failed", "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Warn("translation cache entry unreadable", "error", err)
		c.misses.Add(1)
		return nil, false
	}
	if len(out) != len(texts) {
		// A stale entry from a different batch shape; ignore it.
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return out, true
}

// CacheStats is a point-in-time snapshot of cache effectiveness since
// process start.
type CacheStats struct {
	Hits    int64
	Misses  int64
	HitRate float64
}

// Stats reports lookup counts accumulated by this process.
func (c *Cache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	s := CacheStats{Hits: hits, Misses: misses}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// Set stores the translation list for the batch. Failures are logged and
// swallowed.
func (c *Cache) Set(ctx context.Context, texts []string, srcLang, tgtLang string, translations []string) {
	raw, err := json.Marshal(translations)
	if err != nil {
		c.logger.Warn("translation cache encode failed", "error", err)
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(texts, srcLang, tgtLang), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("translation cache write failed", "error", err)
	}
}
