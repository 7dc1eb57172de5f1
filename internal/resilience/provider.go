package resilience

import (
	"context"
	"log/slog"

	"github.com/talkdub-lab/talkdub/pkg/provider/llm"
)

// GuardedProvider wraps an [llm.Provider] with a [Breaker] so a sustained
// provider outage is rejected fast instead of waiting out each request.
// The translation retry loop treats [ErrOpen] as transient, so jobs keep
// backing off and recover once the provider does.
type GuardedProvider struct {
	inner   llm.Provider
	breaker *Breaker
}

var _ llm.Provider = (*GuardedProvider)(nil)

// Guard wraps provider with a circuit breaker. A nil logger falls back to
// slog.Default().
func Guard(provider llm.Provider, cfg BreakerConfig, logger *slog.Logger) *GuardedProvider {
	return &GuardedProvider{
		inner:   provider,
		breaker: NewBreaker(cfg, logger),
	}
}

// Complete forwards to the inner provider through the breaker.
func (g *GuardedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var resp *llm.CompletionResponse
	err := g.breaker.Do(func() error {
		var err error
		resp, err = g.inner.Complete(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Capabilities reports the inner provider's capabilities.
func (g *GuardedProvider) Capabilities() llm.ModelCapabilities {
	return g.inner.Capabilities()
}
