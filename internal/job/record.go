// Package job owns the durable per-submission state of a dubbing job: the
// versioned record schema, the atomic filesystem store, and the Redis-backed
// work queue.
package job

import (
	"fmt"
	"time"
)

// SchemaVersion is the current job record format version. Stored in every
// record; bumped on incompatible schema changes.
const SchemaVersion = 2

// Status is the lifecycle state of a job. Transitions are monotonic except
// for PROCESSING ⇄ PAUSED.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusPaused     Status = "PAUSED"
	StatusExpired    Status = "EXPIRED"
)

// IsValid reports whether s is a recognised job status.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusPaused, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether s permits no further processing.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

// CanTransitionTo reports whether the s → next transition is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusProcessing || next == StatusFailed || next == StatusExpired
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed || next == StatusPaused
	case StatusPaused:
		return next == StatusProcessing || next == StatusFailed
	case StatusCompleted:
		return next == StatusExpired
	}
	return false
}

// TranslationStatus tracks a segment's progress through the translation phase.
type TranslationStatus string

const (
	TranslationPending   TranslationStatus = "pending"
	TranslationCompleted TranslationStatus = "completed"
	TranslationFailed    TranslationStatus = "failed"
)

// FallbackMode selects how a speaker's voice is synthesised when no usable
// reference audio exists.
type FallbackMode string

const (
	// FallbackNormal clones the speaker's voice from reference audio.
	FallbackNormal FallbackMode = "normal"

	// FallbackPresetVoice uses a neutral preset voice.
	FallbackPresetVoice FallbackMode = "preset_voice"
)

// Job is the durable record of one dubbing submission. It is persisted as a
// single JSON document and atomically replaced on every update.
type Job struct {
	JobID         string     `json:"job_id"`
	SchemaVersion int        `json:"schema_version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Status        Status     `json:"status"`
	CurrentPhase  string     `json:"current_phase,omitempty"`
	Source        Source     `json:"source"`
	Languages     Languages  `json:"languages"`
	Media         Media      `json:"media"`
	Params        Params     `json:"pipeline_params"`
	Speakers      []Speaker  `json:"speakers,omitempty"`
	Segments      []Segment  `json:"segments,omitempty"`
	Outputs       *Outputs   `json:"outputs,omitempty"`
	Progress      Progress   `json:"progress"`
	Error         string     `json:"error,omitempty"`
	UserEmail     string     `json:"user_email"`
	WebhookURL    string     `json:"webhook_url,omitempty"`
	DownloadCount int        `json:"download_count"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Source identifies the submitted video. Fixed after creation.
type Source struct {
	Platform string `json:"platform"`
	VideoID  string `json:"video_id"`
	URL      string `json:"url"`
}

// Languages is the fixed source/target language pair of a job.
type Languages struct {
	Src string `json:"src_lang"`
	Tgt string `json:"tgt_lang"`
}

// Media holds properties of the source audio, filled by the download phase.
type Media struct {
	// DurationSec is the audio length in seconds. Positive once set.
	DurationSec float64 `json:"duration_sec"`
}

// Params are the per-job processing tunables, fixed at creation.
type Params struct {
	MaxAtempo           float64 `json:"max_atempo"`
	MaxOverlapSec       float64 `json:"max_overlap_sec"`
	MaxOverlapRatio     float64 `json:"max_overlap_ratio"`
	OverlapDuckDB       float64 `json:"overlap_duck_db"`
	HallucinationPolicy string  `json:"hallucination_policy"`
	TimelineReference   string  `json:"timeline_reference"`
}

// DefaultParams returns the standard pipeline tunables applied to new jobs.
func DefaultParams() Params {
	return Params{
		MaxAtempo:           1.3,
		MaxOverlapSec:       2.0,
		MaxOverlapRatio:     0.25,
		OverlapDuckDB:       -6.0,
		HallucinationPolicy: "silence",
		TimelineReference:   "ffprobe",
	}
}

// Progress tracks user-visible completion. Monotonic non-decreasing.
type Progress struct {
	CompletedSegments int     `json:"completed_segments"`
	TotalSegments     int     `json:"total_segments"`
	Percent           float64 `json:"percent"`
}

// Outputs holds the final artifact paths, filled at finalization.
type Outputs struct {
	DubPath      string `json:"dub_path"`
	SegmentsPath string `json:"segments_path"`
	ManifestPath string `json:"manifest_path"`
}

// Speaker holds per-speaker reference-audio metadata, populated by the
// ref_audio phase.
type Speaker struct {
	SpeakerID       string       `json:"speaker_id"`
	RefWavPath      string       `json:"ref_wav_path,omitempty"`
	RefText         string       `json:"ref_text,omitempty"`
	RefLang         string       `json:"ref_lang,omitempty"`
	FallbackMode    FallbackMode `json:"fallback_mode"`
	RefQualityScore float64      `json:"ref_quality_score"`
}

// Segment is one time-bounded portion of source audio with its recognised
// text and downstream translated/synthesised state. Segments are ordered by
// Start.
type Segment struct {
	SegID          string       `json:"seg_id"`
	Start          float64      `json:"start"`
	End            float64      `json:"end"`
	SrcText        string       `json:"src_text"`
	TgtText        string       `json:"tgt_text,omitempty"`
	SpeakerID      string       `json:"speaker_id,omitempty"`
	Flags          SegmentFlags `json:"flags"`
	Whisper        WhisperInfo  `json:"whisper"`
	VADSpeechRatio float64      `json:"vad_speech_ratio"`
	Translation    SegmentStep  `json:"translation"`
	TTS            TTSStep      `json:"tts"`
	Timing         Timing       `json:"timing"`
}

// SegmentFlags marks special handling applied to a segment.
type SegmentFlags struct {
	SuspectedHallucination bool `json:"suspected_hallucination"`
	Silenced               bool `json:"silenced"`
	Shortened              bool `json:"shortened"`
}

// WhisperInfo carries recogniser confidence data used by the hallucination
// filter.
type WhisperInfo struct {
	NoSpeechProb float64      `json:"no_speech_prob"`
	AvgLogprob   float64      `json:"avg_logprob"`
	Words        []WordTiming `json:"words,omitempty"`
}

// WordTiming is a word-level timestamp from the recogniser.
type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SegmentStep tracks a segment through the translation phase.
type SegmentStep struct {
	Provider string            `json:"provider,omitempty"`
	Retries  int               `json:"retries"`
	Status   TranslationStatus `json:"status"`
}

// TTSStep tracks a segment through the synthesis phase.
type TTSStep struct {
	WavPath string            `json:"wav_path,omitempty"`
	Status  TranslationStatus `json:"status"`
	Retries int               `json:"retries"`
}

// Timing holds the segment's placement on the output timeline, filled by the
// timeline phase.
type Timing struct {
	TTSDuration    float64 `json:"tts_duration"`
	FinalStart     float64 `json:"final_start"`
	FinalEnd       float64 `json:"final_end"`
	AtempoApplied  float64 `json:"atempo_applied"`
	OverlapApplied float64 `json:"overlap_applied"`
}

// SegID formats the stable zero-padded segment ordinal for index i.
func SegID(i int) string {
	return fmt.Sprintf("seg_%04d", i)
}

// New creates a fresh QUEUED job record with [DefaultParams].
func New(id string, src Source, langs Languages, email string) *Job {
	now := time.Now().UTC()
	return &Job{
		JobID:         id,
		SchemaVersion: SchemaVersion,
		CreatedAt:     now,
		UpdatedAt:     now,
		Status:        StatusQueued,
		Source:        src,
		Languages:     langs,
		Params:        DefaultParams(),
		UserEmail:     email,
	}
}
