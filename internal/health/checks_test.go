package health

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/talkdub-lab/talkdub/internal/config"
	"github.com/talkdub-lab/talkdub/internal/job"
)

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	c := RedisChecker(rdb)
	if c.Name != "redis" {
		t.Errorf("Name = %q, want %q", c.Name, "redis")
	}
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check() error = %v, want nil", err)
	}

	mr.Close()
	if err := c.Check(context.Background()); err == nil {
		t.Error("Check() after redis shutdown = nil, want error")
	}
}

func TestDataDirChecker(t *testing.T) {
	data := config.DataConfig{BaseDir: t.TempDir()}
	if _, err := job.NewStore(data); err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	c := DataDirChecker(data)
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check() error = %v, want nil", err)
	}

	missing := DataDirChecker(config.DataConfig{BaseDir: "/nonexistent/talkdub"})
	if err := missing.Check(context.Background()); err == nil {
		t.Error("Check() for missing dir = nil, want error")
	}
}
