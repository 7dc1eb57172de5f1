// Package notify sends job lifecycle emails to users.
package notify

import (
	"context"
	"log/slog"

	"github.com/talkdub-lab/talkdub/internal/job"
)

// Notifier delivers job lifecycle notifications.
type Notifier interface {
	// JobCreated tells the user their job was accepted and hands over the
	// download PIN.
	JobCreated(ctx context.Context, j *job.Job, pinCode, statusURL string) error

	// JobCompleted tells the user their delivery is ready.
	JobCompleted(ctx context.Context, j *job.Job, statusURL string) error

	// JobFailed tells the user their job failed, with a readable reason.
	JobFailed(ctx context.Context, j *job.Job, userError string) error
}

// LogNotifier writes notifications to the log instead of sending mail.
// It is the fallback when no mail provider is configured.
type LogNotifier struct {
	logger *slog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) JobCreated(_ context.Context, j *job.Job, pinCode, statusURL string) error {
	n.logger.Info("notification: job created",
		"job_id", j.JobID, "email", j.UserEmail, "pin", pinCode, "status_url", statusURL)
	return nil
}

func (n *LogNotifier) JobCompleted(_ context.Context, j *job.Job, statusURL string) error {
	n.logger.Info("notification: job completed",
		"job_id", j.JobID, "email", j.UserEmail, "status_url", statusURL)
	return nil
}

func (n *LogNotifier) JobFailed(_ context.Context, j *job.Job, userError string) error {
	n.logger.Info("notification: job failed",
		"job_id", j.JobID, "email", j.UserEmail, "error", userError)
	return nil
}
