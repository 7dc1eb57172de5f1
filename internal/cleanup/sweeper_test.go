package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/talkdub-lab/talkdub/internal/config"
	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/pin"
)

func newTestSweeper(t *testing.T) (*Sweeper, *job.Store, *pin.Store, config.DataConfig) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	data := config.DataConfig{BaseDir: t.TempDir()}
	store, err := job.NewStore(data)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	pins := pin.NewStore(rdb, 72*time.Hour, 5)
	retention := config.RetentionConfig{
		Delivery:  72 * time.Hour,
		PIN:       72 * time.Hour,
		FailedJob: 7 * 24 * time.Hour,
		Temp:      48 * time.Hour,
	}
	return NewSweeper(store, pins, data, retention, nil), store, pins, data
}

func seedJob(t *testing.T, store *job.Store, id string, status job.Status) *job.Job {
	t.Helper()
	j := job.New(id, job.Source{
		Platform: "youtube",
		VideoID:  "dQw4w9WgXcQ",
		URL:      "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	}, job.Languages{Src: "ja", Tgt: "en"}, "user@example.com")
	j.Status = status
	if err := store.Save(j); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return j
}

func TestSweepExpiredDelivery(t *testing.T) {
	sweeper, store, pins, _ := newTestSweeper(t)
	ctx := context.Background()

	j := seedJob(t, store, "job-exp-1", job.StatusCompleted)
	expires := time.Now().UTC().Add(-time.Hour)
	j.ExpiresAt = &expires
	if err := store.Save(j); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := pins.Generate(ctx, j.JobID); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	outDir := store.OutputDir(j.JobID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(outDir, "dub_en.wav"), []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	stats := sweeper.Sweep(ctx)
	if stats.ExpiredJobs != 1 {
		t.Fatalf("ExpiredJobs = %d, want 1", stats.ExpiredJobs)
	}

	got, err := store.Load(j.JobID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Status != job.StatusExpired {
		t.Errorf("Status = %s, want %s", got.Status, job.StatusExpired)
	}
	if _, err := os.Stat(outDir); !os.IsNotExist(err) {
		t.Errorf("output dir still present after sweep")
	}
	res, err := pins.Verify(ctx, j.JobID, "123456")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Outcome != pin.OutcomeNotFound {
		t.Errorf("pin outcome = %v, want %v", res.Outcome, pin.OutcomeNotFound)
	}
}

func TestSweepFreshJobsUntouched(t *testing.T) {
	sweeper, store, _, _ := newTestSweeper(t)

	completed := seedJob(t, store, "job-fresh-1", job.StatusCompleted)
	expires := time.Now().UTC().Add(48 * time.Hour)
	completed.ExpiresAt = &expires
	if err := store.Save(completed); err != nil {
		t.Fatalf("Save: %v", err)
	}
	seedJob(t, store, "job-fresh-2", job.StatusFailed)

	stats := sweeper.Sweep(context.Background())
	if stats.ExpiredJobs != 0 || stats.FailedJobs != 0 {
		t.Errorf("Sweep() = %+v, want nothing removed", stats)
	}
}

func TestSweepOldFailedJob(t *testing.T) {
	sweeper, store, _, _ := newTestSweeper(t)
	j := seedJob(t, store, "job-old-fail", job.StatusFailed)

	sweeper.now = func() time.Time { return time.Now().UTC().Add(8 * 24 * time.Hour) }
	stats := sweeper.Sweep(context.Background())
	if stats.FailedJobs != 1 {
		t.Fatalf("FailedJobs = %d, want 1", stats.FailedJobs)
	}
	if store.Exists(j.JobID) {
		t.Errorf("failed job record still present after sweep")
	}
}

func TestSweepStaleTempDirs(t *testing.T) {
	sweeper, _, _, data := newTestSweeper(t)

	stale := filepath.Join(data.TempDir(), "job-stale")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	old := time.Now().Add(-72 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	fresh := filepath.Join(data.TempDir(), "job-fresh")
	if err := os.MkdirAll(fresh, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	stats := sweeper.Sweep(context.Background())
	if stats.TempDirs != 1 {
		t.Fatalf("TempDirs = %d, want 1", stats.TempDirs)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale temp dir still present")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh temp dir removed: %v", err)
	}
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	sweeper, _, _, _ := newTestSweeper(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
