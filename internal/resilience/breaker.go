// Package resilience provides a circuit breaker for the outbound LLM calls
// the translation pipeline makes.
//
// [Breaker] is a classic three-state breaker (closed, open, half-open).
// [GuardedProvider] wraps an [llm.Provider] with one so that a provider
// outage fails fast instead of burning the per-phase retry budget on calls
// that cannot succeed.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not yet elapsed.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrOpen] until the cooldown elapses.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through. Probes
	// all succeeding closes the breaker; any probe failing re-opens it.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels the breaker in log lines.
	Name string

	// Threshold is the consecutive-failure count that opens the breaker.
	// Default 5.
	Threshold int

	// Cooldown is how long the breaker stays open before allowing probes.
	// Default 30s.
	Cooldown time.Duration

	// Probes is the number of half-open calls that must all succeed to
	// close the breaker again. Default 3.
	Probes int
}

// Breaker is a three-state circuit breaker. Safe for concurrent use.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	probes    int
	logger    *slog.Logger

	// now is swapped by tests.
	now func() time.Time

	mu         sync.Mutex
	state      State
	failures   int
	openedAt   time.Time
	probeCalls int
	probeOK    int
}

// NewBreaker creates a Breaker. A nil logger falls back to slog.Default().
func NewBreaker(cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		probes:    cfg.Probes,
		logger:    logger,
		now:       time.Now,
	}
}

// Do runs fn unless the breaker is open. Half-open admits at most the
// configured number of probes; excess calls are rejected with [ErrOpen].
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probeCalls = 0
		b.probeOK = 0
		b.logger.Info("circuit half-open", "name", b.name)
	case StateHalfOpen:
		if b.probeCalls >= b.probes {
			b.mu.Unlock()
			return ErrOpen
		}
	}
	probing := b.state == StateHalfOpen
	if probing {
		b.probeCalls++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	if probing {
		b.state = StateOpen
		b.openedAt = b.now()
		b.failures = b.threshold
		b.logger.Warn("circuit re-opened by failed probe", "name", b.name)
		return
	}
	b.failures++
	if b.state == StateClosed && b.failures >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
		b.logger.Warn("circuit opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		b.probeOK++
		if b.probeOK >= b.probes {
			b.state = StateClosed
			b.failures = 0
			b.logger.Info("circuit closed after successful probes", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker state. An open breaker whose cooldown has
// elapsed reports half-open; the transition itself happens on the next Do.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}
