package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/talkdub-lab/talkdub/pkg/provider/llm"
	"github.com/talkdub-lab/talkdub/pkg/provider/llm/mock"
)

func TestGuardedProviderForwardsCompletions(t *testing.T) {
	inner := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "hallo"},
	}
	g := Guard(inner, BreakerConfig{Name: "groq"}, nil)

	resp, err := g.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "hallo" {
		t.Errorf("Content = %q, want %q", resp.Content, "hallo")
	}
	if len(inner.CompleteCalls) != 1 {
		t.Errorf("inner calls = %d, want 1", len(inner.CompleteCalls))
	}
}

func TestGuardedProviderTripsOnRepeatedFailure(t *testing.T) {
	errDown := errors.New("connection refused")
	inner := &mock.Provider{CompleteErr: errDown}
	g := Guard(inner, BreakerConfig{Name: "groq", Threshold: 3, Cooldown: time.Minute}, nil)

	req := llm.CompletionRequest{Messages: []llm.Message{{Role: "user", Content: "x"}}}
	for i := 0; i < 3; i++ {
		if _, err := g.Complete(context.Background(), req); !errors.Is(err, errDown) {
			t.Fatalf("Complete() #%d error = %v, want %v", i, err, errDown)
		}
	}

	// Breaker is open now; the inner provider must not be reached.
	if _, err := g.Complete(context.Background(), req); !errors.Is(err, ErrOpen) {
		t.Fatalf("Complete() while open error = %v, want %v", err, ErrOpen)
	}
	if len(inner.CompleteCalls) != 3 {
		t.Errorf("inner calls = %d, want 3", len(inner.CompleteCalls))
	}
}

func TestGuardedProviderCapabilities(t *testing.T) {
	inner := &mock.Provider{
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 131072},
	}
	g := Guard(inner, BreakerConfig{Name: "groq"}, nil)

	if caps := g.Capabilities(); caps.ContextWindow != 131072 {
		t.Errorf("Capabilities().ContextWindow = %d, want 131072", caps.ContextWindow)
	}
}
