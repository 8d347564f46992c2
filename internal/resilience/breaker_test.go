package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerClosedForwardsCalls(t *testing.T) {
	b := NewBreaker(BreakerConfig{Provider: "stt/test"})

	calls := 0
	for i := 0; i < 5; i++ {
		err := b.Do(func() error {
			calls++
			return nil
		})
		if err != nil {
			t.Fatalf("Do() unexpected error: %v", err)
		}
	}
	if calls != 5 {
		t.Errorf("calls = %d, want 5", calls)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed", b.State())
	}
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Provider: "stt/test", TripAfter: 3, CoolDown: time.Hour})

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return errTest }); !errors.Is(err, errTest) {
			t.Fatalf("Do() error = %v, want the call error", err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open after %d failures", b.State(), 3)
	}

	err := b.Do(func() error {
		t.Fatal("open breaker must not forward calls")
		return nil
	})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("Do() error = %v, want ErrProviderUnavailable", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{Provider: "stt/test", TripAfter: 2, CoolDown: time.Hour})

	_ = b.Do(func() error { return errTest })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return errTest })

	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed; non-consecutive failures must not trip", b.State())
	}
}

func TestBreakerProbesAfterCoolDown(t *testing.T) {
	b := NewBreaker(BreakerConfig{Provider: "llm/test", TripAfter: 1, CoolDown: 20 * time.Millisecond, ProbeQuota: 2})

	_ = b.Do(func() error { return errTest })
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	time.Sleep(30 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open after cool down", b.State())
	}

	// Two successful probes close the breaker.
	for i := 0; i < 2; i++ {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe %d unexpected error: %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed after successful probes", b.State())
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{Provider: "llm/test", TripAfter: 1, CoolDown: 20 * time.Millisecond, ProbeQuota: 2})

	_ = b.Do(func() error { return errTest })
	time.Sleep(30 * time.Millisecond)

	if err := b.Do(func() error { return errTest }); !errors.Is(err, errTest) {
		t.Fatalf("probe error = %v, want the call error", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open after failed probe", b.State())
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Do() error = %v, want ErrProviderUnavailable during new cool down", err)
	}
}

func TestBreakerProbeQuotaBoundsHalfOpenCalls(t *testing.T) {
	b := NewBreaker(BreakerConfig{Provider: "stt/test", TripAfter: 1, CoolDown: 10 * time.Millisecond, ProbeQuota: 1})

	_ = b.Do(func() error { return errTest })
	time.Sleep(20 * time.Millisecond)

	// One successful probe with quota 1 closes immediately.
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe unexpected error: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed", b.State())
	}
}

func TestBreakerReset(t *testing.T) {
	b := NewBreaker(BreakerConfig{Provider: "stt/test", TripAfter: 1, CoolDown: time.Hour})

	_ = b.Do(func() error { return errTest })
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}

	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed after reset", b.State())
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("Do() after reset = %v, want nil", err)
	}
}

func TestStateString(t *testing.T) {
	cases := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tc := range cases {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
