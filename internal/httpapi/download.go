package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/talkdub-lab/talkdub/internal/delivery"
)

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	pinCode := r.Header.Get("X-PIN")
	if pinCode == "" {
		writeError(w, http.StatusUnprocessableEntity, "X-PIN header is required")
		return
	}

	grant, gerr := s.gate.Authorize(r.Context(), id, pinCode)
	if gerr != nil {
		s.metrics.RecordDownload(r.Context(), "denied")
		writeError(w, gerr.Status, gerr.Message)
		return
	}
	j := grant.Job

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", delivery.ArchiveFileName(j.Languages.Tgt)))
	w.Header().Set("X-Download-Count", strconv.Itoa(j.DownloadCount))
	if j.ExpiresAt != nil {
		w.Header().Set("X-Expires-At", j.ExpiresAt.UTC().Format(time.RFC3339))
	}

	if err := delivery.BuildArchive(w, grant.OutputDir, j); err != nil {
		// Headers are already gone, so the client sees a truncated zip.
		s.logger.Error("archive build failed", "job_id", id, "error", err)
		return
	}

	s.metrics.RecordDownload(r.Context(), "ok")
	s.logger.Info("delivery downloaded",
		"job_id", id, "download_count", j.DownloadCount)
}
