// Package delivery guards access to finished job artifacts: PIN-checked,
// expiry-aware, download-capped archive delivery.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/pin"
)

// GateError is a user-visible delivery refusal with its HTTP status.
type GateError struct {
	Status  int
	Message string
}

func (e *GateError) Error() string {
	return fmt.Sprintf("delivery: %d: %s", e.Status, e.Message)
}

// Grant is a successful pass through the gate.
type Grant struct {
	// Job is the record after the download-count increment.
	Job *job.Job

	// OutputDir is the artifact directory to archive.
	OutputDir string
}

// Gate enforces the delivery policy for completed jobs.
type Gate struct {
	store        *job.Store
	pins         *pin.Store
	maxDownloads int
	logger       *slog.Logger

	now func() time.Time
}

// NewGate builds a Gate capping successful deliveries at maxDownloads.
func NewGate(store *job.Store, pins *pin.Store, maxDownloads int, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:        store,
		pins:         pins,
		maxDownloads: maxDownloads,
		logger:       logger,
		now:          time.Now,
	}
}

// Authorize runs the full gate sequence for one download request. On
// success the returned grant reflects a download count already incremented,
// atomically and at most up to the cap even under concurrent requests.
func (g *Gate) Authorize(ctx context.Context, jobID, pinCandidate string) (*Grant, *GateError) {
	if !g.store.Exists(jobID) {
		return nil, &GateError{http.StatusNotFound, "job not found"}
	}

	res, err := g.pins.Verify(ctx, jobID, pinCandidate)
	if err != nil {
		g.logger.Error("pin verification failed", "job_id", jobID, "error", err)
		return nil, &GateError{http.StatusInternalServerError, "PIN verification unavailable, please try again"}
	}
	switch res.Outcome {
	case pin.OutcomeOK:
	case pin.OutcomeNotFound:
		return nil, &GateError{http.StatusNotFound, "no PIN is active for this job; it may have expired"}
	case pin.OutcomeLocked:
		return nil, &GateError{http.StatusForbidden, "PIN locked after too many attempts; request a new delivery email"}
	default:
		return nil, &GateError{http.StatusForbidden, res.Message}
	}

	j, err := g.store.Load(jobID)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return nil, &GateError{http.StatusNotFound, "job not found"}
		}
		g.logger.Error("job load failed", "job_id", jobID, "error", err)
		return nil, &GateError{http.StatusInternalServerError, "job record unavailable"}
	}

	if j.Status != job.StatusCompleted {
		return nil, &GateError{http.StatusBadRequest,
			fmt.Sprintf("download not available: job status is '%s'", j.Status)}
	}
	if j.ExpiresAt != nil && g.now().After(*j.ExpiresAt) {
		return nil, &GateError{http.StatusGone, "the delivery has passed its retention deadline and was removed"}
	}
	if j.DownloadCount >= g.maxDownloads {
		return nil, &GateError{http.StatusTooManyRequests,
			fmt.Sprintf("download limit reached (max %d)", g.maxDownloads)}
	}

	errCap := errors.New("cap reached")
	updated, err := g.store.Update(jobID, func(rec *job.Job) error {
		if rec.DownloadCount >= g.maxDownloads {
			return errCap
		}
		rec.DownloadCount++
		return nil
	})
	if err != nil {
		if errors.Is(err, errCap) {
			return nil, &GateError{http.StatusTooManyRequests,
				fmt.Sprintf("download limit reached (max %d)", g.maxDownloads)}
		}
		g.logger.Error("download count update failed", "job_id", jobID, "error", err)
		return nil, &GateError{http.StatusInternalServerError, "job record unavailable"}
	}

	return &Grant{Job: updated, OutputDir: g.store.OutputDir(jobID)}, nil
}
