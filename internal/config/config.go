// Package config provides the configuration schema and loader for the
// TalkDub dubbing service.
package config

import (
	"path/filepath"
	"time"
)

// LogLevel controls log verbosity for the TalkDub binaries.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SupportedLanguages is the closed set of language codes TalkDub can dub
// between, mapped to their display names.
var SupportedLanguages = map[string]string{
	"ja": "日本語",
	"zh": "中文",
	"en": "English",
	"de": "Deutsch",
	"fr": "Français",
	"it": "Italiano",
	"es": "Español",
	"pt": "Português",
	"ru": "Русский",
	"ko": "한국어",
}

// IsSupportedLanguage reports whether code is in [SupportedLanguages].
func IsSupportedLanguage(code string) bool {
	_, ok := SupportedLanguages[code]
	return ok
}

// Config is the root configuration structure for TalkDub.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Data      DataConfig      `yaml:"data"`
	Redis     RedisConfig     `yaml:"redis"`
	LLM       LLMConfig       `yaml:"llm"`
	Email     EmailConfig     `yaml:"email"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Retention RetentionConfig `yaml:"retention"`
	Limits    LimitsConfig    `yaml:"limits"`
	Engines   EnginesConfig   `yaml:"engines"`
}

// ServerConfig holds network and logging settings for the API server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// PublicURL is the externally reachable base URL used in notification
	// links (e.g., "https://dub.example.com").
	PublicURL string `yaml:"public_url"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	CORSOrigins []string `yaml:"cors_origins"`
}

// DataConfig holds the persisted-state directory layout. All paths are
// derived from BaseDir; see the accessor methods.
type DataConfig struct {
	// BaseDir is the root of all persisted state (e.g., "/var/lib/talkdub").
	BaseDir string `yaml:"base_dir"`
}

// JobsDir returns the directory holding one JSON document per job.
func (d DataConfig) JobsDir() string { return filepath.Join(d.BaseDir, "jobs") }

// RefAudioDir returns the per-job reference-audio directory root.
func (d DataConfig) RefAudioDir() string { return filepath.Join(d.BaseDir, "ref_audio") }

// OutputDir returns the per-job artifact directory root.
func (d DataConfig) OutputDir() string { return filepath.Join(d.BaseDir, "output") }

// TempDir returns the per-job scratch directory root.
func (d DataConfig) TempDir() string { return filepath.Join(d.BaseDir, "temp") }

// LogsDir returns the per-job processing-log directory root.
func (d DataConfig) LogsDir() string { return filepath.Join(d.BaseDir, "logs") }

// RedisConfig holds the connection settings for the job queue, PIN store,
// rate limiter, and translation cache.
type RedisConfig struct {
	// URL is a redis connection URL (e.g., "redis://localhost:6379/0").
	URL string `yaml:"url"`
}

// LLMConfig selects and configures the translation model provider.
type LLMConfig struct {
	// Provider is the any-llm provider name (e.g., "groq", "openai",
	// "ollama").
	Provider string `yaml:"provider"`

	// APIKey is the provider credential. Supports ${VAR} expansion; when
	// empty the provider's conventional environment variable applies.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects the translation model
	// (e.g., "llama-3.3-70b-versatile").
	Model string `yaml:"model"`

	// Temperature is the sampling temperature for batch translation.
	Temperature float64 `yaml:"temperature"`

	// RPMLimit is the provider's requests-per-minute quota.
	RPMLimit int `yaml:"rpm_limit"`

	// RPMBuffer scales RPMLimit down so the limiter stays under quota
	// despite its minute-granular accounting. Range (0, 1].
	RPMBuffer float64 `yaml:"rpm_buffer"`

	// CacheTTL is how long cached segment translations remain valid.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// EmailConfig configures completion and failure notifications.
type EmailConfig struct {
	// ResendAPIKey authenticates against the Resend HTTP API. When empty,
	// notifications are logged instead of sent.
	ResendAPIKey string `yaml:"resend_api_key"`

	// From is the sender address (e.g., "TalkDub <noreply@dub.example.com>").
	From string `yaml:"from"`

	// ReplyTo is the reply-to address. May be empty.
	ReplyTo string `yaml:"reply_to"`
}

// PipelineConfig holds the per-job processing tunables.
type PipelineConfig struct {
	// MaxRetries bounds attempts per phase.
	MaxRetries int `yaml:"max_retries"`

	// BackoffBase is the base delay for exponential inter-attempt backoff.
	// Attempt n sleeps BackoffBase * 2^(n-1).
	BackoffBase time.Duration `yaml:"backoff_base"`

	// JobTimeout is the overall wall-clock limit for one job.
	JobTimeout time.Duration `yaml:"job_timeout"`

	// ChunkCharLimit caps the summed source-text length per translation
	// chunk.
	ChunkCharLimit int `yaml:"chunk_char_limit"`

	// ChunkSegLimit caps the segment count per translation chunk.
	ChunkSegLimit int `yaml:"chunk_seg_limit"`

	// MaxAtempo is the maximum tempo stretch applied during timeline
	// fitting.
	MaxAtempo float64 `yaml:"max_atempo"`

	// MaxOverlapSec is the per-segment overlap allowance in seconds.
	MaxOverlapSec float64 `yaml:"max_overlap_sec"`

	// MaxOverlapRatio is the overlap allowance as a fraction of segment
	// duration.
	MaxOverlapRatio float64 `yaml:"max_overlap_ratio"`

	// OverlapDuckDB is the gain in dB applied to background audio under
	// overlapped speech.
	OverlapDuckDB float64 `yaml:"overlap_duck_db"`
}

// RetentionConfig holds garbage-collection deadlines.
type RetentionConfig struct {
	// Delivery is how long completed artifacts remain downloadable.
	Delivery time.Duration `yaml:"delivery"`

	// PIN is the PIN record lifetime.
	PIN time.Duration `yaml:"pin"`

	// FailedJob is how long failed job records are kept.
	FailedJob time.Duration `yaml:"failed_job"`

	// Temp is how long orphaned scratch directories survive.
	Temp time.Duration `yaml:"temp"`
}

// LimitsConfig holds the abuse-prevention knobs on the HTTP surface and
// the delivery gate.
type LimitsConfig struct {
	// SubmissionsPerHour caps job submissions per client address.
	SubmissionsPerHour int `yaml:"submissions_per_hour"`

	// DownloadsPerMinute caps download requests per client address.
	DownloadsPerMinute int `yaml:"downloads_per_minute"`

	// StatusPerMinute caps status polls per client address.
	StatusPerMinute int `yaml:"status_per_minute"`

	// MaxDownloads caps successful deliveries per job.
	MaxDownloads int `yaml:"max_downloads"`

	// MaxPINAttempts caps PIN verification attempts per job.
	MaxPINAttempts int `yaml:"max_pin_attempts"`
}

// EnginesConfig names the external audio-processing commands the pipeline
// shells out to. Empty values use the conventional name resolved on PATH.
type EnginesConfig struct {
	YTDLP     string `yaml:"ytdlp"`
	FFmpeg    string `yaml:"ffmpeg"`
	FFprobe   string `yaml:"ffprobe"`
	Demucs    string `yaml:"demucs"`
	WhisperX  string `yaml:"whisperx"`
	SileroVAD string `yaml:"silero_vad"`
	QwenTTS   string `yaml:"qwen_tts"`
}
