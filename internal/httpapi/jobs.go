package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/talkdub-lab/talkdub/internal/config"
	"github.com/talkdub-lab/talkdub/internal/job"
	"github.com/talkdub-lab/talkdub/internal/pipeline"
)

// duplicateWindow is how long a video id blocks resubmission.
const duplicateWindow = 24 * time.Hour

// referenceDurationSec is the video length the per-phase estimates are
// calibrated for.
const referenceDurationSec = 1800.0

var (
	videoIDExtractors = []*regexp.Regexp{
		regexp.MustCompile(`youtube\.com/watch\?(?:[^#]*&)?v=([a-zA-Z0-9_-]{11})(?:[^a-zA-Z0-9_-]|$)`),
		regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})(?:[^a-zA-Z0-9_-]|$)`),
		regexp.MustCompile(`youtube\.com/embed/([a-zA-Z0-9_-]{11})(?:[^a-zA-Z0-9_-]|$)`),
	}
)

type submission struct {
	VideoURL   string `json:"video_url"`
	SrcLang    string `json:"src_lang"`
	TgtLang    string `json:"tgt_lang"`
	Email      string `json:"email"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

func (s *submission) validate() error {
	var errs []error
	if extractVideoID(s.VideoURL) == "" {
		errs = append(errs, errors.New("video_url must be a YouTube watch, share, or embed URL"))
	}
	if !config.IsSupportedLanguage(s.SrcLang) {
		errs = append(errs, fmt.Errorf("src_lang %q is not supported (supported: %s)",
			s.SrcLang, supportedLanguageList()))
	}
	if !config.IsSupportedLanguage(s.TgtLang) {
		errs = append(errs, fmt.Errorf("tgt_lang %q is not supported (supported: %s)",
			s.TgtLang, supportedLanguageList()))
	}
	if s.SrcLang != "" && s.SrcLang == s.TgtLang {
		errs = append(errs, errors.New("src_lang and tgt_lang must differ"))
	}
	if _, err := mail.ParseAddress(s.Email); err != nil {
		errs = append(errs, errors.New("email is not a valid address"))
	}
	return errors.Join(errs...)
}

func supportedLanguageList() string {
	codes := make([]string, 0, len(config.SupportedLanguages))
	for code := range config.SupportedLanguages {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return strings.Join(codes, ", ")
}

// extractVideoID pulls the 11-character YouTube video id out of a URL, or
// returns "" when none is present.
func extractVideoID(url string) string {
	for _, re := range videoIDExtractors {
		if m := re.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}

type submissionAccepted struct {
	JobID               string `json:"job_id"`
	Status              string `json:"status"`
	EstimatedCompletion string `json:"estimated_completion,omitempty"`
	StatusURL           string `json:"status_url"`
	DownloadURL         string `json:"download_url,omitempty"`
	Message             string `json:"message"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var sub submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "request body is not valid JSON")
		return
	}
	if err := sub.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	videoID := extractVideoID(sub.VideoURL)

	existing, err := s.store.FindRecentByVideo(videoID, duplicateWindow)
	if err != nil {
		s.logger.Error("duplicate check failed", "video_id", videoID, "error", err)
		writeError(w, http.StatusInternalServerError, "job store unavailable")
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusOK, submissionAccepted{
			JobID:     existing.JobID,
			Status:    "ALREADY_QUEUED",
			Message:   "this video is already queued or processed",
			StatusURL: fmt.Sprintf("/api/v1/jobs/%s/status", existing.JobID),
		})
		return
	}

	j := job.New(uuid.NewString(), job.Source{
		Platform: "youtube",
		VideoID:  videoID,
		URL:      sub.VideoURL,
	}, job.Languages{Src: sub.SrcLang, Tgt: sub.TgtLang}, sub.Email)

	if err := s.store.Save(j); err != nil {
		s.logger.Error("job save failed", "job_id", j.JobID, "error", err)
		writeError(w, http.StatusInternalServerError, "job store unavailable")
		return
	}

	pinCode, err := s.pins.Generate(r.Context(), j.JobID)
	if err != nil {
		s.logger.Error("pin generation failed", "job_id", j.JobID, "error", err)
		writeError(w, http.StatusInternalServerError, "job could not be queued")
		return
	}

	if err := s.queue.Enqueue(r.Context(), j.JobID); err != nil {
		s.logger.Error("enqueue failed", "job_id", j.JobID, "error", err)
		writeError(w, http.StatusInternalServerError, "job could not be queued")
		return
	}
	s.metrics.QueueDepth.Add(r.Context(), 1)

	statusURL := fmt.Sprintf("%s/status/%s", s.publicURL, j.JobID)
	if err := s.notifier.JobCreated(r.Context(), j, pinCode, statusURL); err != nil {
		// The job is queued either way; the PIN also rides along in the
		// completion mail path via the created record.
		s.logger.Warn("created email failed", "job_id", j.JobID, "error", err)
	}

	s.logger.Info("job queued",
		"job_id", j.JobID, "video_id", videoID,
		"src_lang", sub.SrcLang, "tgt_lang", sub.TgtLang)

	writeJSON(w, http.StatusAccepted, submissionAccepted{
		JobID:               j.JobID,
		Status:              string(job.StatusQueued),
		EstimatedCompletion: s.calculateETA(j),
		StatusURL:           fmt.Sprintf("/api/v1/jobs/%s/status", j.JobID),
		DownloadURL:         fmt.Sprintf("/api/v1/jobs/%s/download", j.JobID),
		Message:             "job accepted; you will be notified by email when processing finishes",
	})
}

type statusResponse struct {
	JobID               string       `json:"job_id"`
	Status              job.Status   `json:"status"`
	CurrentPhase        string       `json:"current_phase,omitempty"`
	Progress            job.Progress `json:"progress"`
	CreatedAt           time.Time    `json:"created_at"`
	EstimatedCompletion string       `json:"estimated_completion,omitempty"`
	DownloadAvailable   bool         `json:"download_available"`
	DownloadExpiresAt   *time.Time   `json:"download_expires_at,omitempty"`
	Error               string       `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	j, err := s.store.Load(id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("job load failed", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "job store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		JobID:               j.JobID,
		Status:              j.Status,
		CurrentPhase:        j.CurrentPhase,
		Progress:            j.Progress,
		CreatedAt:           j.CreatedAt,
		EstimatedCompletion: s.calculateETA(j),
		DownloadAvailable:   j.Status == job.StatusCompleted,
		DownloadExpiresAt:   j.ExpiresAt,
		Error:               j.Error,
	})
}

// calculateETA predicts completion from the registry's per-phase estimates,
// scaled by the media duration once it is known. Before the first phase has
// reported anything the 24 h ceiling applies.
func (s *Server) calculateETA(j *job.Job) string {
	switch j.Status {
	case job.StatusCompleted, job.StatusFailed, job.StatusExpired:
		return ""
	}

	phase := pipeline.ID(j.CurrentPhase)
	remaining := pipeline.EstimatedRemaining(phase)
	if remaining <= 0 || j.Media.DurationSec <= 0 {
		return j.CreatedAt.Add(24 * time.Hour).UTC().Format(time.RFC3339)
	}
	scale := j.Media.DurationSec / referenceDurationSec
	if scale < 0.1 {
		scale = 0.1
	}
	eta := s.now().UTC().Add(time.Duration(float64(remaining) * scale))
	return eta.Format(time.RFC3339)
}
