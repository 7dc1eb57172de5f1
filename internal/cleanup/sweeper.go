// Package cleanup removes expired deliveries, stale scratch space, and old
// failed job records on a schedule.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/talkdub-lab/talkdub/internal/config"
	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/pin"
)

// Stats counts what a single sweep removed.
type Stats struct {
	ExpiredJobs int
	FailedJobs  int
	TempDirs    int
	PINRecords  int
}

// Sweeper walks the data directory and enforces the retention policy.
type Sweeper struct {
	store     *job.Store
	pins      *pin.Store
	data      config.DataConfig
	retention config.RetentionConfig
	logger    *slog.Logger

	now func() time.Time
}

func NewSweeper(store *job.Store, pins *pin.Store, data config.DataConfig, retention config.RetentionConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:     store,
		pins:      pins,
		data:      data,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps immediately and then on every tick until the context ends.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats := s.Sweep(ctx)
		if stats != (Stats{}) {
			s.logger.Info("cleanup sweep finished",
				"expired_jobs", stats.ExpiredJobs,
				"failed_jobs", stats.FailedJobs,
				"temp_dirs", stats.TempDirs,
				"pin_records", stats.PINRecords)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep performs one full pass. Individual failures are logged and skipped
// so one bad record cannot stall retention for everything else.
func (s *Sweeper) Sweep(ctx context.Context) Stats {
	var stats Stats
	now := s.now().UTC()

	stats.ExpiredJobs = s.sweepExpired(ctx, now)
	stats.FailedJobs = s.sweepFailed(now)
	stats.TempDirs = s.sweepTempDirs(now)

	removed, err := s.pins.CleanupExpired(ctx)
	if err != nil {
		s.logger.Warn("pin cleanup failed", "error", err)
	}
	stats.PINRecords = removed

	return stats
}

// sweepExpired marks completed jobs past their delivery deadline as EXPIRED
// and removes their artifacts. The record itself stays so the status
// endpoint can report the expiry instead of a bare 404.
func (s *Sweeper) sweepExpired(ctx context.Context, now time.Time) int {
	ids, err := s.store.ListExpired(now)
	if err != nil {
		s.logger.Warn("listing expired jobs failed", "error", err)
		return 0
	}
	count := 0
	for _, id := range ids {
		if _, err := s.store.UpdateStatus(id, job.StatusExpired, "", ""); err != nil {
			s.logger.Warn("marking job expired failed", "job_id", id, "error", err)
			continue
		}
		for _, dir := range []string{s.store.OutputDir(id), s.store.RefAudioDir(id), s.store.TempDir(id)} {
			if err := os.RemoveAll(dir); err != nil {
				s.logger.Warn("removing artifacts failed", "job_id", id, "dir", dir, "error", err)
			}
		}
		if err := s.pins.Delete(ctx, id); err != nil {
			s.logger.Warn("removing pin record failed", "job_id", id, "error", err)
		}
		s.logger.Info("delivery expired", "job_id", id)
		count++
	}
	return count
}

// sweepFailed deletes failed jobs past the failed-job retention, keeping
// their logs for forensics.
func (s *Sweeper) sweepFailed(now time.Time) int {
	ids, err := s.store.ListFailedBefore(now.Add(-s.retention.FailedJob))
	if err != nil {
		s.logger.Warn("listing failed jobs failed", "error", err)
		return 0
	}
	count := 0
	for _, id := range ids {
		if err := s.store.Delete(id, true); err != nil {
			s.logger.Warn("deleting failed job failed", "job_id", id, "error", err)
			continue
		}
		s.logger.Info("failed job removed", "job_id", id)
		count++
	}
	return count
}

// sweepTempDirs removes orphaned scratch directories that have not been
// touched within the temp retention window.
func (s *Sweeper) sweepTempDirs(now time.Time) int {
	entries, err := os.ReadDir(s.data.TempDir())
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("listing temp dirs failed", "error", err)
		}
		return 0
	}
	cutoff := now.Add(-s.retention.Temp)
	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(s.data.TempDir(), e.Name())
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("removing temp dir failed", "dir", dir, "error", err)
			continue
		}
		count++
	}
	return count
}
