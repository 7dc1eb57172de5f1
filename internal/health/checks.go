package health

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/talkdub-lab/talkdub/internal/config"
)

// RedisChecker reports whether the redis backing the queue, PIN store, and
// caches answers a PING.
func RedisChecker(rdb redis.UniversalClient) Checker {
	return Checker{
		Name: "redis",
		Check: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			return nil
		},
	}
}

// DataDirChecker reports whether the job data directory is present and
// writable.
func DataDirChecker(data config.DataConfig) Checker {
	return Checker{
		Name: "data_dir",
		Check: func(_ context.Context) error {
			info, err := os.Stat(data.JobsDir())
			if err != nil {
				return fmt.Errorf("stat jobs dir: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a directory", data.JobsDir())
			}
			f, err := os.CreateTemp(data.JobsDir(), ".healthz-*")
			if err != nil {
				return fmt.Errorf("write probe: %w", err)
			}
			name := f.Name()
			f.Close()
			os.Remove(name)
			return nil
		},
	}
}
