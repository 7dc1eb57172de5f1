package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/talkdub-lab/talkdub/internal/config"
	"github.com/talkdub-lab/talkdub/internal/job"
)

const resendEndpoint = "https://api.resend.com/emails"

// Resend sends notifications through the Resend HTTP API.
type Resend struct {
	apiKey   string
	from     string
	replyTo  string
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

var _ Notifier = (*Resend)(nil)

// NewResend builds a Resend notifier from the email configuration.
func NewResend(cfg config.EmailConfig, logger *slog.Logger) *Resend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resend{
		apiKey:   cfg.ResendAPIKey,
		from:     cfg.From,
		replyTo:  cfg.ReplyTo,
		endpoint: resendEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

// FromConfig returns a Resend notifier when an API key is configured and a
// LogNotifier otherwise.
func FromConfig(cfg config.EmailConfig, logger *slog.Logger) Notifier {
	if cfg.ResendAPIKey == "" {
		return NewLogNotifier(logger)
	}
	return NewResend(cfg, logger)
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

func (r *Resend) JobCreated(ctx context.Context, j *job.Job, pinCode, statusURL string) error {
	return r.send(ctx, j, createdMessage(j, pinCode, statusURL))
}

func (r *Resend) JobCompleted(ctx context.Context, j *job.Job, statusURL string) error {
	return r.send(ctx, j, completedMessage(j, statusURL))
}

func (r *Resend) JobFailed(ctx context.Context, j *job.Job, userError string) error {
	return r.send(ctx, j, failedMessage(j, userError))
}

func (r *Resend) send(ctx context.Context, j *job.Job, msg message) error {
	if j.UserEmail == "" {
		return nil
	}

	payload, err := json.Marshal(resendRequest{
		From:    r.from,
		To:      []string{j.UserEmail},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		ReplyTo: r.replyTo,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notify: resend returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var parsed resendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		r.logger.Warn("email sent but response unreadable", "job_id", j.JobID, "error", err)
		return nil
	}
	r.logger.Info("email sent",
		"job_id", j.JobID, "subject", msg.Subject, "resend_id", parsed.ID)
	return nil
}
