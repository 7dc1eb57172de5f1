package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/talkdub-lab/talkdub/internal/config"
)

func TestDefaults_AreValid(t *testing.T) {
	t.Parallel()
	if err := config.Validate(config.Defaults()); err != nil {
		t.Fatalf("Defaults() should validate cleanly, got: %v", err)
	}
}

func TestLoadFromReader_OverridesDefaults(t *testing.T) {
	yaml := `
server:
  listen_addr: ":9090"
  log_level: debug
pipeline:
  max_retries: 5
  backoff_base: 2s
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("Server.ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Pipeline.MaxRetries != 5 {
		t.Errorf("Pipeline.MaxRetries = %d, want 5", cfg.Pipeline.MaxRetries)
	}
	if cfg.Pipeline.BackoffBase != 2*time.Second {
		t.Errorf("Pipeline.BackoffBase = %s, want 2s", cfg.Pipeline.BackoffBase)
	}
	// Untouched fields keep their defaults.
	if cfg.Pipeline.ChunkCharLimit != 2000 {
		t.Errorf("Pipeline.ChunkCharLimit = %d, want default 2000", cfg.Pipeline.ChunkCharLimit)
	}
	if cfg.Limits.MaxPINAttempts != 5 {
		t.Errorf("Limits.MaxPINAttempts = %d, want default 5", cfg.Limits.MaxPINAttempts)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := `
server:
  listen_adr: ":8080"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for misspelled field, got nil")
	}
}

func TestLoadFromReader_ExpandsAPIKeyEnv(t *testing.T) {
	t.Setenv("TALKDUB_TEST_GROQ_KEY", "gsk_test123")
	yaml := `
llm:
  api_key: ${TALKDUB_TEST_GROQ_KEY}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "gsk_test123" {
		t.Errorf("LLM.APIKey = %q, want expanded env value", cfg.LLM.APIKey)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Server.LogLevel = "verbose"
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_RPMBufferRange(t *testing.T) {
	t.Parallel()
	for _, buf := range []float64{0, -0.5, 1.5} {
		cfg := config.Defaults()
		cfg.LLM.RPMBuffer = buf
		if err := config.Validate(cfg); err == nil {
			t.Errorf("Validate with rpm_buffer=%v should fail", buf)
		}
	}
	cfg := config.Defaults()
	cfg.LLM.RPMBuffer = 1.0
	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate with rpm_buffer=1.0 should pass, got: %v", err)
	}
}

func TestValidate_EmailFromRequiredWithKey(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Email.ResendAPIKey = "re_123"
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error when resend_api_key is set without from address")
	}
	if !strings.Contains(err.Error(), "email.from") {
		t.Errorf("error should mention email.from, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Pipeline.MaxRetries = 0
	cfg.Limits.MaxDownloads = 0
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "max_retries") {
		t.Errorf("error should mention max_retries, got: %v", err)
	}
	if !strings.Contains(errStr, "max_downloads") {
		t.Errorf("error should mention max_downloads, got: %v", err)
	}
}

func TestValidate_MaxAtempoRange(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Pipeline.MaxAtempo = 3.0
	if err := config.Validate(cfg); err == nil {
		t.Error("Validate with max_atempo=3.0 should fail")
	}
}
