package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/talkdub-lab/talkdub/internal/config"
)

// ErrNotFound is returned when no record exists for the requested job id.
var ErrNotFound = errors.New("job: not found")

// ErrCorrupted is returned when a record exists but cannot be parsed. A
// corrupted record is never mutated; the condition is operator-visible.
var ErrCorrupted = errors.New("job: record corrupted")

// Store persists job records as one JSON document per job under the jobs
// directory, atomically replaced on every save. It also owns the per-job
// reference-audio, output, scratch, and log directories so that Delete can
// reclaim everything a job touched.
//
// Store is safe for concurrent use. Mutating operations on the same job id
// are serialised so that read-modify-write sequences lose no updates.
type Store struct {
	jobs     string
	refAudio string
	output   string
	temp     string
	logs     string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a Store over the directory layout in data, creating the
// jobs directory if needed.
func NewStore(data config.DataConfig) (*Store, error) {
	if err := os.MkdirAll(data.JobsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("job: create jobs dir: %w", err)
	}
	return &Store{
		jobs:     data.JobsDir(),
		refAudio: data.RefAudioDir(),
		output:   data.OutputDir(),
		temp:     data.TempDir(),
		logs:     data.LogsDir(),
		locks:    map[string]*sync.Mutex{},
	}, nil
}

// RefAudioDir returns the reference-audio directory for the given job.
func (s *Store) RefAudioDir(id string) string { return filepath.Join(s.refAudio, id) }

// OutputDir returns the artifact directory for the given job.
func (s *Store) OutputDir(id string) string { return filepath.Join(s.output, id) }

// TempDir returns the scratch directory for the given job.
func (s *Store) TempDir(id string) string { return filepath.Join(s.temp, id) }

// lock returns the mutex guarding mutations of the given job id.
func (s *Store) lock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	return m
}

func (s *Store) path(id string) string {
	return filepath.Join(s.jobs, id+".json")
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("job: invalid id %q", id)
	}
	return nil
}

// Exists reports whether a record for id is present.
func (s *Store) Exists(id string) bool {
	if validID(id) != nil {
		return false
	}
	_, err := os.Stat(s.path(id))
	return err == nil
}

// Load reads and parses the record for id. Returns [ErrNotFound] if no
// record exists and [ErrCorrupted] if the document cannot be parsed.
func (s *Store) Load(id string) (*Job, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("job: read %s: %w", id, err)
	}
	j := &Job{}
	if err := json.Unmarshal(raw, j); err != nil {
		return nil, fmt.Errorf("job %s: %w: %v", id, ErrCorrupted, err)
	}
	return j, nil
}

// Save persists j atomically: the document is written to a sibling temporary
// file and renamed over the final path, so readers never observe a partially
// written record. UpdatedAt is refreshed.
func (s *Store) Save(j *Job) error {
	if err := validID(j.JobID); err != nil {
		return err
	}
	j.UpdatedAt = time.Now().UTC()
	raw, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("job: marshal %s: %w", j.JobID, err)
	}

	final := s.path(j.JobID)
	tmp, err := os.CreateTemp(s.jobs, j.JobID+".*.tmp")
	if err != nil {
		return fmt.Errorf("job: create temp for %s: %w", j.JobID, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("job: write temp for %s: %w", j.JobID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("job: sync temp for %s: %w", j.JobID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("job: close temp for %s: %w", j.JobID, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("job: replace %s: %w", j.JobID, err)
	}
	return nil
}

// Update applies fn to the current record under the per-job lock and
// persists the result. The sequence load → fn → save is atomic with respect
// to other Update callers, which is what makes counter increments safe.
func (s *Store) Update(id string, fn func(*Job) error) (*Job, error) {
	m := s.lock(id)
	m.Lock()
	defer m.Unlock()

	j, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	if err := fn(j); err != nil {
		return nil, err
	}
	if err := s.Save(j); err != nil {
		return nil, err
	}
	return j, nil
}

// UpdateStatus transitions the record to status, recording the active phase
// and last error. An empty phase clears current_phase; an empty errMsg
// leaves the error field untouched unless the status leaves FAILED.
func (s *Store) UpdateStatus(id string, status Status, phase, errMsg string) (*Job, error) {
	return s.Update(id, func(j *Job) error {
		if !status.IsValid() {
			return fmt.Errorf("job: invalid status %q", status)
		}
		j.Status = status
		j.CurrentPhase = phase
		if errMsg != "" {
			j.Error = errMsg
		}
		if status != StatusFailed && errMsg == "" {
			j.Error = ""
		}
		return nil
	})
}

// Delete removes the job record together with its reference-audio, output,
// and scratch directories. When keepLogs is true the per-job log directory
// survives for forensics.
func (s *Store) Delete(id string, keepLogs bool) error {
	if err := validID(id); err != nil {
		return err
	}
	m := s.lock(id)
	m.Lock()
	defer m.Unlock()

	var errs []error
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("job: remove record %s: %w", id, err))
	}
	for _, dir := range []string{s.RefAudioDir(id), s.OutputDir(id), s.TempDir(id)} {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("job: remove %s: %w", dir, err))
		}
	}
	if !keepLogs {
		if err := os.RemoveAll(filepath.Join(s.logs, id)); err != nil {
			errs = append(errs, fmt.Errorf("job: remove logs for %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// ListExpired returns the ids of completed jobs whose delivery expiry lies
// before now. Unreadable records are skipped; corruption is reported via
// Load on direct access, not here.
func (s *Store) ListExpired(now time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.jobs)
	if err != nil {
		return nil, fmt.Errorf("job: list records: %w", err)
	}
	var expired []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		j, err := s.Load(id)
		if err != nil {
			continue
		}
		if j.Status == StatusCompleted && j.ExpiresAt != nil && now.After(*j.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	return expired, nil
}

// ListFailedBefore returns the ids of failed jobs whose last update lies
// before the cutoff. Unreadable records are skipped.
func (s *Store) ListFailedBefore(cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(s.jobs)
	if err != nil {
		return nil, fmt.Errorf("job: list records: %w", err)
	}
	var stale []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		j, err := s.Load(id)
		if err != nil {
			continue
		}
		if j.Status == StatusFailed && j.UpdatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale, nil
}

// FindRecentByVideo returns the most recent non-expired job for the given
// video id created within the window, or nil when none exists. Used to
// deduplicate resubmissions of the same video.
func (s *Store) FindRecentByVideo(videoID string, window time.Duration) (*Job, error) {
	entries, err := os.ReadDir(s.jobs)
	if err != nil {
		return nil, fmt.Errorf("job: list records: %w", err)
	}
	cutoff := time.Now().UTC().Add(-window)
	var newest *Job
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		j, err := s.Load(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		if j.Source.VideoID != videoID || j.CreatedAt.Before(cutoff) {
			continue
		}
		if j.Status == StatusExpired || j.Status == StatusFailed {
			continue
		}
		if newest == nil || j.CreatedAt.After(newest.CreatedAt) {
			newest = j
		}
	}
	return newest, nil
}
