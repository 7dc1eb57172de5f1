package config_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/talkdub-lab/talkdub/internal/config"
)

const sampleYAML = `
server:
  listen_addr: ":8080"
  public_url: https://dub.example.com
  log_level: info
  cors_origins:
    - https://dub.example.com

data:
  base_dir: /var/lib/talkdub

redis:
  url: redis://localhost:6379/0

llm:
  provider: groq
  model: llama-3.3-70b-versatile
  temperature: 0.3
  rpm_limit: 30
  rpm_buffer: 0.9

email:
  from: TalkDub <noreply@dub.example.com>

engines:
  ffmpeg: /usr/bin/ffmpeg
`

func TestLoadFromReader_SampleYAML(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.PublicURL != "https://dub.example.com" {
		t.Errorf("Server.PublicURL = %q", cfg.Server.PublicURL)
	}
	if cfg.Data.BaseDir != "/var/lib/talkdub" {
		t.Errorf("Data.BaseDir = %q", cfg.Data.BaseDir)
	}
	if cfg.LLM.Provider != "groq" {
		t.Errorf("LLM.Provider = %q, want groq", cfg.LLM.Provider)
	}
	if cfg.Engines.FFmpeg != "/usr/bin/ffmpeg" {
		t.Errorf("Engines.FFmpeg = %q", cfg.Engines.FFmpeg)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level config.LogLevel
		want  bool
	}{
		{config.LogDebug, true},
		{config.LogInfo, true},
		{config.LogWarn, true},
		{config.LogError, true},
		{config.LogLevel("trace"), false},
		{config.LogLevel(""), false},
	}
	for _, tt := range tests {
		if got := tt.level.IsValid(); got != tt.want {
			t.Errorf("LogLevel(%q).IsValid() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestIsSupportedLanguage(t *testing.T) {
	t.Parallel()
	for _, code := range []string{"ja", "zh", "en", "de", "fr", "it", "es", "pt", "ru", "ko"} {
		if !config.IsSupportedLanguage(code) {
			t.Errorf("IsSupportedLanguage(%q) = false, want true", code)
		}
	}
	for _, code := range []string{"", "jp", "EN", "nl", "japanese"} {
		if config.IsSupportedLanguage(code) {
			t.Errorf("IsSupportedLanguage(%q) = true, want false", code)
		}
	}
}

func TestDataConfig_DerivedPaths(t *testing.T) {
	t.Parallel()
	d := config.DataConfig{BaseDir: "/srv/talkdub"}
	tests := []struct {
		got  string
		want string
	}{
		{d.JobsDir(), filepath.Join("/srv/talkdub", "jobs")},
		{d.RefAudioDir(), filepath.Join("/srv/talkdub", "ref_audio")},
		{d.OutputDir(), filepath.Join("/srv/talkdub", "output")},
		{d.TempDir(), filepath.Join("/srv/talkdub", "temp")},
		{d.LogsDir(), filepath.Join("/srv/talkdub", "logs")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("derived path = %q, want %q", tt.got, tt.want)
		}
	}
}
