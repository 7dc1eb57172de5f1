package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
)

// ── modelCapabilities ─────────────────────────────────────────────────────────

// TestModelCapabilities_Llama33 checks llama-3.3-70b capabilities.
func TestModelCapabilities_Llama33(t *testing.T) {
	caps := modelCapabilities("llama-3.3-70b-versatile")
	if caps.ContextWindow != 128_000 {
		t.Errorf("llama-3.3-70b: expected context window 128000, got %d", caps.ContextWindow)
	}
	if caps.MaxOutputTokens != 32_768 {
		t.Errorf("llama-3.3-70b: expected MaxOutputTokens 32768, got %d", caps.MaxOutputTokens)
	}
}

// TestModelCapabilities_Llama31_8B checks llama-3.1-8b capabilities.
func TestModelCapabilities_Llama31_8B(t *testing.T) {
	caps := modelCapabilities("llama-3.1-8b-instant")
	if caps.ContextWindow != 128_000 {
		t.Errorf("llama-3.1-8b: expected context window 128000, got %d", caps.ContextWindow)
	}
	if caps.MaxOutputTokens != 8_192 {
		t.Errorf("llama-3.1-8b: expected MaxOutputTokens 8192, got %d", caps.MaxOutputTokens)
	}
}

// TestModelCapabilities_Qwen checks qwen model capabilities.
func TestModelCapabilities_Qwen(t *testing.T) {
	caps := modelCapabilities("qwen2.5-72b-instruct")
	if caps.ContextWindow != 131_072 {
		t.Errorf("qwen: expected context window 131072, got %d", caps.ContextWindow)
	}
}

// TestModelCapabilities_Mixtral checks mixtral-8x7b capabilities.
func TestModelCapabilities_Mixtral(t *testing.T) {
	caps := modelCapabilities("mixtral-8x7b-32768")
	if caps.ContextWindow != 32_768 {
		t.Errorf("mixtral-8x7b: expected context window 32768, got %d", caps.ContextWindow)
	}
	if caps.MaxOutputTokens != 4_096 {
		t.Errorf("mixtral-8x7b: expected MaxOutputTokens 4096, got %d", caps.MaxOutputTokens)
	}
}

// TestModelCapabilities_GPT4o checks gpt-4o capabilities.
func TestModelCapabilities_GPT4o(t *testing.T) {
	caps := modelCapabilities("gpt-4o")
	if caps.ContextWindow != 128_000 {
		t.Errorf("gpt-4o: expected context window 128000, got %d", caps.ContextWindow)
	}
	if caps.MaxOutputTokens != 16_384 {
		t.Errorf("gpt-4o: expected MaxOutputTokens 16384, got %d", caps.MaxOutputTokens)
	}
}

// TestModelCapabilities_Unknown checks that unknown models return safe defaults.
func TestModelCapabilities_Unknown(t *testing.T) {
	caps := modelCapabilities("my-custom-model")
	if caps.ContextWindow <= 0 {
		t.Error("unknown model: expected positive ContextWindow")
	}
	if caps.MaxOutputTokens <= 0 {
		t.Error("unknown model: expected positive MaxOutputTokens")
	}
}

// TestModelCapabilities_CaseInsensitive checks that model name matching is case-insensitive.
func TestModelCapabilities_CaseInsensitive(t *testing.T) {
	lower := modelCapabilities("llama-3.3-70b-versatile")
	upper := modelCapabilities("LLAMA-3.3-70B-VERSATILE")
	if lower.ContextWindow != upper.ContextWindow {
		t.Errorf("case should not matter: got %d vs %d", lower.ContextWindow, upper.ContextWindow)
	}
}

// ── Constructor ───────────────────────────────────────────────────────────────

// TestNew_EmptyProviderName checks that an empty provider name returns an error.
func TestNew_EmptyProviderName(t *testing.T) {
	_, err := New("", "llama-3.3-70b-versatile")
	if err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

// TestNew_EmptyModel checks that an empty model name returns an error.
func TestNew_EmptyModel(t *testing.T) {
	_, err := New("groq", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks that an unsupported provider returns an error.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

// TestNew_Groq_WithAPIKey checks that the Groq provider constructs successfully with an API key.
func TestNew_Groq_WithAPIKey(t *testing.T) {
	p, err := NewGroq("llama-3.3-70b-versatile", anyllmlib.WithAPIKey("gsk_test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.model != "llama-3.3-70b-versatile" {
		t.Errorf("expected model llama-3.3-70b-versatile, got %q", p.model)
	}
}

// TestNew_Ollama_NoAPIKey checks that Ollama works without an API key.
func TestNew_Ollama_NoAPIKey(t *testing.T) {
	p, err := NewOllama("llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// TestConvenienceConstructors checks that the convenience constructors delegate correctly.
func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (*Provider, error)
	}{
		{"NewGroq", func() (*Provider, error) { return NewGroq("llama-3.3-70b-versatile", anyllmlib.WithAPIKey("gsk_test")) }},
		{"NewOpenAI", func() (*Provider, error) { return NewOpenAI("gpt-4o", anyllmlib.WithAPIKey("sk-test")) }},
		{"NewOllama", func() (*Provider, error) { return NewOllama("llama3") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.fn()
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tt.name, err)
			}
			if p == nil {
				t.Fatalf("%s: expected non-nil provider", tt.name)
			}
		})
	}
}

// ── Capabilities ──────────────────────────────────────────────────────────────

// TestCapabilities_ReturnsForModel checks that Capabilities() delegates to modelCapabilities.
func TestCapabilities_ReturnsForModel(t *testing.T) {
	p := &Provider{model: "llama-3.3-70b-versatile"}
	caps := p.Capabilities()
	expected := modelCapabilities("llama-3.3-70b-versatile")
	if caps.ContextWindow != expected.ContextWindow {
		t.Errorf("expected ContextWindow %d, got %d", expected.ContextWindow, caps.ContextWindow)
	}
	if caps.MaxOutputTokens != expected.MaxOutputTokens {
		t.Errorf("expected MaxOutputTokens %d, got %d", expected.MaxOutputTokens, caps.MaxOutputTokens)
	}
}
