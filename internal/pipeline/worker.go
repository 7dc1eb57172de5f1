package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/observe"
)

// Notifier delivers job lifecycle mail. Implementations must tolerate being
// called with jobs that carry no user email.
type Notifier interface {
	JobCompleted(ctx context.Context, j *job.Job, statusURL string) error
	JobFailed(ctx context.Context, j *job.Job, userError string) error
}

// Worker consumes the job queue and runs one job at a time through the
// orchestrator. A single Worker gives the whole deployment its
// one-job-at-a-time guarantee.
type Worker struct {
	store        *job.Store
	queue        *job.Queue
	orchestrator *Orchestrator
	notifier     Notifier
	publicURL    string
	jobTimeout   time.Duration
	retention    time.Duration
	logger       *slog.Logger
	metrics      *observe.Metrics

	now func() time.Time
}

// WorkerConfig wires a Worker's collaborators.
type WorkerConfig struct {
	Store        *job.Store
	Queue        *job.Queue
	Orchestrator *Orchestrator
	Notifier     Notifier

	// PublicURL is the externally reachable base for status links in mail.
	PublicURL string

	// JobTimeout bounds one job's total pipeline time.
	JobTimeout time.Duration

	// Retention is how long a completed job's artifacts stay downloadable.
	Retention time.Duration

	Logger *slog.Logger

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics
}

// NewWorker builds a Worker from cfg.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Worker{
		store:        cfg.Store,
		queue:        cfg.Queue,
		orchestrator: cfg.Orchestrator,
		notifier:     cfg.Notifier,
		publicURL:    cfg.PublicURL,
		jobTimeout:   cfg.JobTimeout,
		retention:    cfg.Retention,
		logger:       logger,
		metrics:      cfg.Metrics,
		now:          time.Now,
	}
}

// Run blocks consuming the queue until ctx is canceled. Queue errors other
// than cancellation are logged and retried.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	for {
		id, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.logger.Info("worker stopping", "reason", ctx.Err())
				return ctx.Err()
			}
			w.logger.Error("queue receive failed", "error", err)
			if serr := sleepCtx(ctx, 5*time.Second); serr != nil {
				return serr
			}
			continue
		}
		w.metrics.QueueDepth.Add(ctx, -1)
		w.Process(ctx, id)
	}
}

// Process runs one job end to end: status transitions, the phase sequence
// under the job timeout, expiry stamping, and completion or failure mail.
func (w *Worker) Process(ctx context.Context, id string) {
	log := w.logger.With("job_id", id)

	j, err := w.store.Load(id)
	if err != nil {
		log.Error("job load failed", "error", err)
		return
	}
	if j.Status != job.StatusQueued {
		log.Warn("skipping job not in queued state", "status", j.Status)
		return
	}

	if _, err := w.store.UpdateStatus(id, job.StatusProcessing, string(Order[0]), ""); err != nil {
		log.Error("status update failed", "error", err)
		return
	}
	j.Status = job.StatusProcessing

	w.metrics.ActiveJobs.Add(ctx, 1)
	defer w.metrics.ActiveJobs.Add(ctx, -1)

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	env := Env{
		Job:      j,
		Scratch:  w.store.TempDir(id),
		Output:   w.store.OutputDir(id),
		RefAudio: w.store.RefAudioDir(id),
	}

	start := w.now()
	results := w.orchestrator.Run(jobCtx, env)
	summary := Summarize(results)
	elapsed := w.now().Sub(start).Seconds()
	log.Info("pipeline finished",
		"succeeded", summary.SuccessfulPhases,
		"failed", summary.FailedPhases,
		"duration_sec", fmt.Sprintf("%.1f", elapsed))

	if failedID, failed, ok := FirstFailure(results); ok {
		w.finishFailed(ctx, id, failedID, failed)
		w.metrics.RecordJob(ctx, string(job.StatusFailed), elapsed)
		return
	}
	w.finishCompleted(ctx, id)
	w.metrics.RecordJob(ctx, string(job.StatusCompleted), elapsed)
}

func (w *Worker) finishCompleted(ctx context.Context, id string) {
	log := w.logger.With("job_id", id)
	expires := w.now().UTC().Add(w.retention)

	updated, err := w.store.Update(id, func(j *job.Job) error {
		j.Status = job.StatusCompleted
		j.CurrentPhase = ""
		j.Error = ""
		j.ExpiresAt = &expires
		return nil
	})
	if err != nil {
		log.Error("completion update failed", "error", err)
		return
	}

	if w.notifier != nil && updated.UserEmail != "" {
		statusURL := fmt.Sprintf("%s/status/%s", w.publicURL, id)
		if err := w.notifier.JobCompleted(ctx, updated, statusURL); err != nil {
			log.Warn("completion mail failed", "error", err)
		}
	}
	log.Info("job completed", "expires_at", expires)
}

func (w *Worker) finishFailed(ctx context.Context, id string, phase ID, res Result) {
	log := w.logger.With("job_id", id, "phase", phase)

	userErr := res.UserFriendly
	if userErr == "" && res.Err != nil {
		userErr = TranslateError(res.Err.Error())
	}
	userErr = fmt.Sprintf("%s (failed during %s)", userErr, phase)

	// current_phase holds only while PROCESSING; the failing phase rides
	// along in the error text instead.
	updated, err := w.store.UpdateStatus(id, job.StatusFailed, "", userErr)
	if err != nil {
		log.Error("failure update failed", "error", err)
		return
	}

	if w.notifier != nil && updated.UserEmail != "" {
		if err := w.notifier.JobFailed(ctx, updated, userErr); err != nil {
			log.Warn("failure mail failed", "error", err)
		}
	}
	log.Error("job failed", "error", res.Err)
}
