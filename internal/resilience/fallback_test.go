package resilience

import (
	"context"
	"errors"
	"testing"
)

var errTest = errors.New("backend failure")

func TestExecuteWithResult_PrimarySuccess(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 3},
	})
	fg.AddFallback("secondary", "secondary")

	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "primary" {
		t.Fatalf("result = %q, want primary", got)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 3},
	})
	fg.AddFallback("secondary", "secondary")

	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "secondary" {
		t.Fatalf("result = %q, want secondary", got)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 3},
	})
	fg.AddFallback("secondary", "secondary")

	_, err := ExecuteWithResult(fg, func(v string) (string, error) {
		return "", errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestExecuteWithResult_SkipsOpenBreaker(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 1},
	})
	fg.AddFallback("secondary", "secondary")

	// Trip the primary's breaker.
	_, _ = ExecuteWithResult(fg, func(v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	})

	var tried []string
	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		tried = append(tried, v)
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "secondary" {
		t.Fatalf("result = %q, want secondary", got)
	}
	if len(tried) != 1 || tried[0] != "secondary" {
		t.Fatalf("tried = %v, want only secondary", tried)
	}
}

func TestExecuteWithResult_PermanentErrorSkipsFailover(t *testing.T) {
	permanent := errors.New("bad request")
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 1},
		Permanent:      func(err error) bool { return errors.Is(err, permanent) },
	})
	fg.AddFallback("secondary", "secondary")

	var tried []string
	_, err := ExecuteWithResult(fg, func(v string) (string, error) {
		tried = append(tried, v)
		return "", permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want the permanent error unwrapped", err)
	}
	if len(tried) != 1 {
		t.Fatalf("tried = %v, want only primary", tried)
	}

	// The breaker must not have counted the failure.
	got, err := ExecuteWithResult(fg, func(v string) (string, error) {
		return v, nil
	})
	if err != nil || got != "primary" {
		t.Fatalf("got %q, %v; want primary with nil error", got, err)
	}
}

func TestExecuteWithResult_ContextCancelIsPermanent(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 3},
	})
	fg.AddFallback("secondary", "secondary")

	var tried []string
	_, err := ExecuteWithResult(fg, func(v string) (string, error) {
		tried = append(tried, v)
		return "", context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(tried) != 1 {
		t.Fatalf("tried = %v, want only primary", tried)
	}
}
