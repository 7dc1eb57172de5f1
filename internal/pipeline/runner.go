package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/observe"
)

// Runner executes a single phase with precondition checks, bounded retries,
// and metadata persistence. It never changes the job's status field; that
// remains the worker's responsibility.
type Runner struct {
	store      *job.Store
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
	metrics    *observe.Metrics

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner builds a Runner over store. maxRetries is the number of
// execution attempts per phase, backoff the base delay doubled after each
// failed attempt.
func NewRunner(store *job.Store, maxRetries int, backoff time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:      store,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		metrics:    observe.DefaultMetrics(),
		sleep:      sleepCtx,
	}
}

// Run drives phase through its attempts for the job in env. Unmet
// preconditions fail fast without calling Execute. On success the phase's
// metadata is merged into the persisted record. The returned Result of a
// failed run carries both the technical error and a user-facing message.
func (r *Runner) Run(ctx context.Context, phase Phase, env Env) Result {
	log := r.logger.With("job_id", env.Job.JobID, "phase", phase.ID())
	start := time.Now()

	if err := ValidatePreconditions(phase.ID(), env); err != nil {
		log.Error("phase preconditions not met", "error", err)
		r.metrics.RecordPhase(ctx, string(phase.ID()), "error", time.Since(start).Seconds())
		return Result{
			Err:          err,
			UserFriendly: TranslateError(err.Error()),
			DurationSec:  time.Since(start).Seconds(),
		}
	}

	log.Info("phase starting", "name", phase.Name())

	var lastErr error
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoff * (1 << (attempt - 1))
			log.Info("phase retrying", "attempt", attempt+1, "delay", delay)
			r.metrics.RecordPhaseRetry(ctx, string(phase.ID()))
			if err := r.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		res := r.runAttempt(ctx, phase, env)
		if res.Success {
			res.DurationSec = time.Since(start).Seconds()
			if err := r.persistMetadata(env.Job, phase, res); err != nil {
				log.Error("phase metadata persistence failed", "error", err)
				r.metrics.RecordPhase(ctx, string(phase.ID()), "error", res.DurationSec)
				return Result{
					Err:          err,
					UserFriendly: TranslateError(err.Error()),
					DurationSec:  res.DurationSec,
				}
			}
			log.Info("phase completed",
				"attempt", attempt+1,
				"duration_sec", fmt.Sprintf("%.2f", res.DurationSec))
			r.metrics.RecordPhase(ctx, string(phase.ID()), "ok", res.DurationSec)
			return res
		}

		lastErr = res.Err
		if lastErr == nil {
			lastErr = fmt.Errorf("pipeline: phase %s reported failure without error", phase.ID())
		}
		log.Warn("phase attempt failed",
			"attempt", attempt+1, "max_attempts", r.maxRetries, "error", lastErr)

		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
	}

	err := fmt.Errorf("pipeline: phase %s failed after %d attempts: %w", phase.ID(), r.maxRetries, lastErr)
	log.Error("phase failed", "error", err)
	r.metrics.RecordPhase(ctx, string(phase.ID()), "error", time.Since(start).Seconds())
	return Result{
		Err:          err,
		UserFriendly: TranslateError(lastErr.Error()),
		DurationSec:  time.Since(start).Seconds(),
	}
}

// runAttempt executes one attempt under the phase's own timeout.
func (r *Runner) runAttempt(ctx context.Context, phase Phase, env Env) Result {
	attemptCtx := ctx
	if t := phase.Timeout(); t > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	return phase.Execute(attemptCtx, env)
}

// persistMetadata merges a successful attempt's metadata into the stored
// record and refreshes the in-memory snapshot so later phases see it.
func (r *Runner) persistMetadata(j *job.Job, phase Phase, res Result) error {
	updated, err := r.store.Update(j.JobID, func(rec *job.Job) error {
		rec.CurrentPhase = string(phase.ID())
		if len(res.Metadata) == 0 {
			return nil
		}
		return job.ApplyMetadata(rec, res.Metadata)
	})
	if err != nil {
		return fmt.Errorf("pipeline: phase %s: update job %s: %w", phase.ID(), j.JobID, err)
	}
	*j = *updated
	return nil
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
