package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidLLMProviders lists the provider names known to work for translation.
// Used by [Validate] to warn about unrecognised provider names.
var ValidLLMProviders = []string{"groq", "openai", "anthropic", "ollama", "gemini", "deepseek", "mistral"}

// Defaults returns a [Config] populated with the documented default values.
// Loading a file overrides only the fields it mentions.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Data: DataConfig{
			BaseDir: "data",
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379/0",
		},
		LLM: LLMConfig{
			Provider:    "groq",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.3,
			RPMLimit:    30,
			RPMBuffer:   0.9,
			CacheTTL:    7 * 24 * time.Hour,
		},
		Pipeline: PipelineConfig{
			MaxRetries:      3,
			BackoffBase:     5 * time.Second,
			JobTimeout:      24 * time.Hour,
			ChunkCharLimit:  2000,
			ChunkSegLimit:   30,
			MaxAtempo:       1.3,
			MaxOverlapSec:   2.0,
			MaxOverlapRatio: 0.25,
			OverlapDuckDB:   -6.0,
		},
		Retention: RetentionConfig{
			Delivery:  72 * time.Hour,
			PIN:       72 * time.Hour,
			FailedJob: 7 * 24 * time.Hour,
			Temp:      48 * time.Hour,
		},
		Limits: LimitsConfig{
			SubmissionsPerHour: 3,
			DownloadsPerMinute: 2,
			StatusPerMinute:    10,
			MaxDownloads:       5,
			MaxPINAttempts:     5,
		},
	}
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Defaults] and
// validates the result. Useful in tests where configs are constructed from
// string literals. ${VAR} references in credential fields are expanded from
// the environment.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.LLM.APIKey = os.ExpandEnv(cfg.LLM.APIKey)
	cfg.Email.ResendAPIKey = os.ExpandEnv(cfg.Email.ResendAPIKey)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}

	// Data
	if cfg.Data.BaseDir == "" {
		errs = append(errs, errors.New("data.base_dir is required"))
	}

	// Redis
	if cfg.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required"))
	}

	// LLM
	if cfg.LLM.Provider == "" {
		errs = append(errs, errors.New("llm.provider is required"))
	} else if !slices.Contains(ValidLLMProviders, cfg.LLM.Provider) {
		slog.Warn("unknown LLM provider name — may be a typo or third-party provider",
			"name", cfg.LLM.Provider,
			"known", ValidLLMProviders,
		)
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", cfg.LLM.Temperature))
	}
	if cfg.LLM.RPMLimit <= 0 {
		errs = append(errs, fmt.Errorf("llm.rpm_limit %d must be positive", cfg.LLM.RPMLimit))
	}
	if cfg.LLM.RPMBuffer <= 0 || cfg.LLM.RPMBuffer > 1 {
		errs = append(errs, fmt.Errorf("llm.rpm_buffer %.2f is out of range (0, 1]", cfg.LLM.RPMBuffer))
	}
	if cfg.LLM.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("llm.cache_ttl %s must not be negative", cfg.LLM.CacheTTL))
	}

	// Email
	if cfg.Email.ResendAPIKey != "" && cfg.Email.From == "" {
		errs = append(errs, errors.New("email.from is required when email.resend_api_key is set"))
	}
	if cfg.Email.ResendAPIKey == "" {
		slog.Warn("email.resend_api_key is empty; notifications will be logged instead of sent")
	}

	// Pipeline
	if cfg.Pipeline.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("pipeline.max_retries %d must be at least 1", cfg.Pipeline.MaxRetries))
	}
	if cfg.Pipeline.BackoffBase <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.backoff_base %s must be positive", cfg.Pipeline.BackoffBase))
	}
	if cfg.Pipeline.JobTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.job_timeout %s must be positive", cfg.Pipeline.JobTimeout))
	}
	if cfg.Pipeline.ChunkCharLimit < 1 {
		errs = append(errs, fmt.Errorf("pipeline.chunk_char_limit %d must be at least 1", cfg.Pipeline.ChunkCharLimit))
	}
	if cfg.Pipeline.ChunkSegLimit < 1 {
		errs = append(errs, fmt.Errorf("pipeline.chunk_seg_limit %d must be at least 1", cfg.Pipeline.ChunkSegLimit))
	}
	if cfg.Pipeline.MaxAtempo < 1.0 || cfg.Pipeline.MaxAtempo > 2.0 {
		errs = append(errs, fmt.Errorf("pipeline.max_atempo %.2f is out of range [1.0, 2.0]", cfg.Pipeline.MaxAtempo))
	}
	if cfg.Pipeline.MaxOverlapRatio < 0 || cfg.Pipeline.MaxOverlapRatio > 1 {
		errs = append(errs, fmt.Errorf("pipeline.max_overlap_ratio %.2f is out of range [0, 1]", cfg.Pipeline.MaxOverlapRatio))
	}

	// Retention
	if cfg.Retention.Delivery <= 0 {
		errs = append(errs, fmt.Errorf("retention.delivery %s must be positive", cfg.Retention.Delivery))
	}
	if cfg.Retention.PIN <= 0 {
		errs = append(errs, fmt.Errorf("retention.pin %s must be positive", cfg.Retention.PIN))
	}
	if cfg.Retention.FailedJob <= 0 {
		errs = append(errs, fmt.Errorf("retention.failed_job %s must be positive", cfg.Retention.FailedJob))
	}
	if cfg.Retention.Temp <= 0 {
		errs = append(errs, fmt.Errorf("retention.temp %s must be positive", cfg.Retention.Temp))
	}

	// Limits
	if cfg.Limits.SubmissionsPerHour < 1 {
		errs = append(errs, fmt.Errorf("limits.submissions_per_hour %d must be at least 1", cfg.Limits.SubmissionsPerHour))
	}
	if cfg.Limits.DownloadsPerMinute < 1 {
		errs = append(errs, fmt.Errorf("limits.downloads_per_minute %d must be at least 1", cfg.Limits.DownloadsPerMinute))
	}
	if cfg.Limits.StatusPerMinute < 1 {
		errs = append(errs, fmt.Errorf("limits.status_per_minute %d must be at least 1", cfg.Limits.StatusPerMinute))
	}
	if cfg.Limits.MaxDownloads < 1 {
		errs = append(errs, fmt.Errorf("limits.max_downloads %d must be at least 1", cfg.Limits.MaxDownloads))
	}
	if cfg.Limits.MaxPINAttempts < 1 {
		errs = append(errs, fmt.Errorf("limits.max_pin_attempts %d must be at least 1", cfg.Limits.MaxPINAttempts))
	}

	return errors.Join(errs...)
}
