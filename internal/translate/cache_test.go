package translate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewCache(rdb, time.Hour, nil), mr
}

func TestCache_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	texts := []string{"こんにちは", "さようなら"}
	want := []string{"Hello", "Goodbye"}

	if _, ok := c.Get(ctx, texts, "ja", "en"); ok {
		t.Fatal("expected miss before Set")
	}

	c.Set(ctx, texts, "ja", "en", want)

	got, ok := c.Get(ctx, texts, "ja", "en")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Get = %v, want %v", got, want)
	}
}

func TestCache_KeySensitivity(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.Set(ctx, []string{"a", "b"}, "ja", "en", []string{"x", "y"})

	if _, ok := c.Get(ctx, []string{"b", "a"}, "ja", "en"); ok {
		t.Error("different text order must miss")
	}
	if _, ok := c.Get(ctx, []string{"A", "b"}, "ja", "en"); ok {
		t.Error("different casing must miss")
	}
	if _, ok := c.Get(ctx, []string{"a", "b"}, "ja", "de"); ok {
		t.Error("different language pair must miss")
	}
}

func TestCache_EntriesExpire(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	texts := []string{"hello"}
	c.Set(ctx, texts, "en", "fr", []string{"bonjour"})

	mr.FastForward(2 * time.Hour)

	if _, ok := c.Get(ctx, texts, "en", "fr"); ok {
		t.Error("entry should expire after TTL")
	}
}

func TestCache_BackendFailureIsSilentMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	mr.Close()

	if _, ok := c.Get(ctx, []string{"a"}, "ja", "en"); ok {
		t.Error("backend failure must surface as a miss")
	}
	// Set must not panic or error either.
	c.Set(ctx, []string{"a"}, "ja", "en", []string{"b"})
}

func TestCache_Stats(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	texts := []string{"hello"}

	c.Get(ctx, texts, "en", "fr") // miss
	c.Set(ctx, texts, "en", "fr", []string{"bonjour"})
	c.Get(ctx, texts, "en", "fr") // hit

	got := c.Stats()
	if got.Hits != 1 || got.Misses != 1 {
		t.Errorf("Stats() = %+v, want 1 hit and 1 miss", got)
	}
	if got.HitRate != 0.5 {
		t.Errorf("HitRate = %v, want 0.5", got.HitRate)
	}
}
