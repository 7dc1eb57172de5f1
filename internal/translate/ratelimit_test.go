package translate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, rpm int, buffer float64) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRateLimiter(rdb, rpm, buffer, nil), mr
}

func TestRateLimiter_EffectiveLimit(t *testing.T) {
	t.Parallel()
	rl, _ := newTestLimiter(t, 30, 0.9)
	if rl.limit != 27 {
		t.Errorf("effective limit = %d, want floor(30×0.9)=27", rl.limit)
	}
	rl2, _ := newTestLimiter(t, 10, 0.95)
	if rl2.limit != 9 {
		t.Errorf("effective limit = %d, want floor(10×0.95)=9", rl2.limit)
	}
}

func TestRateLimiter_AcquireWithinLimit(t *testing.T) {
	t.Parallel()
	rl, _ := newTestLimiter(t, 5, 1.0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := rl.Acquire(ctx, time.Second)
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("Acquire %d should succeed within limit", i)
		}
	}
}

func TestRateLimiter_TimesOutWhenExhausted(t *testing.T) {
	t.Parallel()
	rl, _ := newTestLimiter(t, 2, 1.0)
	// Pin the clock mid-minute so the next boundary is far beyond timeout.
	fixed := time.Date(2026, 8, 26, 12, 0, 10, 0, time.UTC)
	rl.now = func() time.Time { return fixed }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if ok, _ := rl.Acquire(ctx, time.Second); !ok {
			t.Fatalf("Acquire %d should succeed", i)
		}
	}
	ok, err := rl.Acquire(ctx, time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ok {
		t.Error("Acquire past the limit should time out, not succeed")
	}
}

func TestRateLimiter_NewMinuteFreshBudget(t *testing.T) {
	t.Parallel()
	rl, _ := newTestLimiter(t, 1, 1.0)
	current := time.Date(2026, 8, 26, 12, 0, 59, 0, time.UTC)
	var mu sync.Mutex
	rl.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	rl.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		current = current.Add(d)
		mu.Unlock()
		return nil
	}

	ctx := context.Background()
	if ok, _ := rl.Acquire(ctx, time.Minute); !ok {
		t.Fatal("first acquire should succeed")
	}
	// Second acquire exhausts this minute, sleeps over the boundary, then
	// succeeds against the fresh bucket.
	ok, err := rl.Acquire(ctx, time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !ok {
		t.Error("acquire should succeed after crossing the minute boundary")
	}
}

func TestRateLimiter_BoundUnderConcurrency(t *testing.T) {
	t.Parallel()
	const limit = 10
	rl, _ := newTestLimiter(t, limit, 1.0)
	fixed := time.Date(2026, 8, 26, 12, 0, 5, 0, time.UTC)
	rl.now = func() time.Time { return fixed }

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := rl.Acquire(context.Background(), time.Millisecond)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if granted.Load() > limit {
		t.Errorf("granted %d tokens in one minute, limit %d", granted.Load(), limit)
	}
}

func TestRateLimiter_CurrentUsage(t *testing.T) {
	t.Parallel()
	rl, _ := newTestLimiter(t, 10, 1.0)
	ctx := context.Background()

	u, err := rl.CurrentUsage(ctx)
	if err != nil {
		t.Fatalf("CurrentUsage: %v", err)
	}
	if u.Current != 0 || u.Remaining != 10 {
		t.Errorf("fresh usage = %+v", u)
	}

	for i := 0; i < 4; i++ {
		if _, err := rl.Acquire(ctx, time.Second); err != nil {
			t.Fatal(err)
		}
	}
	u, err = rl.CurrentUsage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if u.Current != 4 || u.Remaining != 6 || u.Percent != 40 {
		t.Errorf("usage after 4 acquires = %+v", u)
	}
}

func TestRateLimiter_BucketTTLSet(t *testing.T) {
	t.Parallel()
	rl, mr := newTestLimiter(t, 10, 1.0)
	fixed := time.Date(2026, 8, 26, 12, 0, 5, 0, time.UTC)
	rl.now = func() time.Time { return fixed }

	if _, err := rl.Acquire(context.Background(), time.Second); err != nil {
		t.Fatal(err)
	}
	key := bucketKey(fixed)
	ttl := mr.TTL(key)
	if ttl <= 0 || ttl > bucketTTL {
		t.Errorf("bucket TTL = %v, want (0, %v]", ttl, bucketTTL)
	}
}
