// Package resilience keeps transcription and model calls flowing when a
// cloud provider degrades.
//
// Each configured provider gets a [Breaker] that tracks consecutive call
// failures. A tripped breaker takes the provider out of rotation for a cool
// down period, so a meeting in progress does not burn its 20-second chunk
// cadence on a dead endpoint; [STTFallback] and [LLMFallback] route around
// it to the next configured provider. Nothing here retries: a failed chunk
// or completion is failed once, and only fresh requests are redirected.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrProviderUnavailable is returned by [Breaker.Do] while the breaker is
// open and the cool down has not elapsed.
var ErrProviderUnavailable = errors.New("resilience: provider unavailable")

// State is a breaker's operating mode.
type State int

const (
	// StateClosed forwards every call; the provider is considered healthy.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrProviderUnavailable] until the
	// cool down elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through after the
	// cool down. Probes decide whether the breaker closes or re-opens.
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

// BreakerConfig tunes a [Breaker]. The defaults are sized to the recording
// cycle: three failed chunks in a row is a minute of lost meeting audio,
// and a 40-second cool down lets roughly two chunks route to a fallback
// before the primary is probed again.
type BreakerConfig struct {
	// Provider labels the guarded provider in log lines, e.g. "stt/whisper".
	Provider string

	// TripAfter is how many consecutive failures open the breaker. Default: 3.
	TripAfter int

	// CoolDown is how long an open breaker rejects calls before probing.
	// Default: 40s.
	CoolDown time.Duration

	// ProbeQuota is how many probe calls the half-open state allows; that
	// many consecutive probe successes close the breaker again. Default: 2.
	ProbeQuota int
}

// Breaker takes one provider out of rotation after repeated failures and
// probes it back in after a cool down.
type Breaker struct {
	provider   string
	tripAfter  int
	coolDown   time.Duration
	probeQuota int

	mu         sync.Mutex
	state      State
	failures   int
	openedAt   time.Time
	probesUsed int
	probesOK   int
}

// NewBreaker creates a closed [Breaker]; zero config fields get defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 3
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 40 * time.Second
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = 2
	}
	return &Breaker{
		provider:   cfg.Provider,
		tripAfter:  cfg.TripAfter,
		coolDown:   cfg.CoolDown,
		probeQuota: cfg.ProbeQuota,
	}
}

// Do runs fn when the breaker allows it and feeds the outcome back into the
// breaker's accounting. While open it returns [ErrProviderUnavailable]
// without calling fn.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	callErr := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if callErr != nil {
		b.noteFailure(probe)
	} else {
		b.noteSuccess(probe)
	}
	return callErr
}

// admit decides whether a call may proceed, moving an open breaker to
// half-open when its cool down has elapsed. It reports whether the admitted
// call counts as a probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil

	case StateOpen:
		if time.Since(b.openedAt) < b.coolDown {
			return false, ErrProviderUnavailable
		}
		b.state = StateHalfOpen
		b.probesUsed = 0
		b.probesOK = 0
		slog.Info("probing recovering provider", "provider", b.provider)
		fallthrough

	default: // StateHalfOpen
		if b.probesUsed >= b.probeQuota {
			return false, ErrProviderUnavailable
		}
		b.probesUsed++
		return true, nil
	}
}

// noteFailure records a failed call. Caller holds b.mu.
func (b *Breaker) noteFailure(probe bool) {
	if probe {
		// One failed probe is enough: back to open for another cool down.
		b.trip()
		return
	}
	b.failures++
	if b.failures >= b.tripAfter {
		b.trip()
	}
}

// noteSuccess records a successful call. Caller holds b.mu.
func (b *Breaker) noteSuccess(probe bool) {
	if probe {
		b.probesOK++
		if b.probesOK >= b.probeQuota {
			b.state = StateClosed
			b.failures = 0
			slog.Info("provider recovered", "provider", b.provider)
		}
		return
	}
	b.failures = 0
}

// trip opens the breaker and starts the cool down. Caller holds b.mu.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = time.Now()
	b.failures = b.tripAfter
	slog.Warn("provider taken out of rotation",
		"provider", b.provider, "cool_down", b.coolDown)
}

// State returns the breaker's mode. An open breaker whose cool down has
// elapsed reports half-open; the transition itself happens on the next Do.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && time.Since(b.openedAt) >= b.coolDown {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears its failure accounting.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probesUsed = 0
	b.probesOK = 0
	slog.Info("breaker reset", "provider", b.provider)
}
