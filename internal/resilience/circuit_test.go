package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func failN(cb *CircuitBreaker, n int) {
	for range n {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("classifier unavailable")
		})
	}
}

func TestCircuitBreaker_ClosedState_PassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	var calls int
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed state, got %s", cb.State())
	}
}

func TestCircuitBreaker_LatchesOpenForTheRun(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	failN(cb, 3)
	if !cb.Open() {
		t.Fatalf("expected open after 3 failures, got %s", cb.State())
	}

	// Hours later the latched breaker still rejects.
	cb.nowFunc = func() time.Time { return now.Add(12 * time.Hour) }
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		t.Error("should not be called when circuit is latched open")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}

	cb.Reset()
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after reset, got %s", cb.State())
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	failN(cb, 2)
	_ = cb.Execute(context.Background(), func(_ context.Context) error { return nil })
	failN(cb, 2)

	failures, state := cb.Counters()
	if state != CircuitClosed {
		t.Errorf("expected closed, got %s", state)
	}
	if failures != 2 {
		t.Errorf("expected 2 consecutive failures, got %d", failures)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     100 * time.Millisecond,
	})
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }

	failN(cb, 2)
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	cb.nowFunc = func() time.Time { return now.Add(150 * time.Millisecond) }
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", cb.State())
	}

	if err := cb.Execute(context.Background(), func(_ context.Context) error { return nil }); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailure_Reopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     100 * time.Millisecond,
	})
	now := time.Now()
	cb.nowFunc = func() time.Time { return now }
	failN(cb, 2)

	cb.nowFunc = func() time.Time { return now.Add(150 * time.Millisecond) }
	failN(cb, 1)

	_, state := cb.Counters()
	if state != CircuitOpen {
		t.Errorf("expected open after half-open failure, got %s", state)
	}
}

func TestCircuitBreaker_ShouldTripAndStateChange(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "reasoner",
		FailureThreshold: 1,
		ShouldTrip: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = cb.Execute(context.Background(), func(_ context.Context) error { return context.Canceled })
	if cb.Open() {
		t.Fatal("cancellation must not trip the breaker")
	}

	failN(cb, 1)
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("unexpected transitions %v", transitions)
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 100})

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cb.Execute(context.Background(), func(_ context.Context) error {
				if i%2 == 0 {
					return errors.New("fail")
				}
				return nil
			})
		}()
	}
	wg.Wait()
}

func TestExecuteVal(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})

	val, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) {
		return "rationale", nil
	})
	if err != nil || val != "rationale" {
		t.Fatalf("got %q, %v", val, err)
	}

	failN(cb, 1)
	val, err = ExecuteVal(context.Background(), cb, func(_ context.Context) (string, error) {
		return "unreachable", nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if val != "" {
		t.Errorf("expected zero value, got %q", val)
	}
}

func TestFromFailureLimit(t *testing.T) {
	cfg := FromFailureLimit("classifier", 5)
	if cfg.Name != "classifier" || cfg.FailureThreshold != 5 || cfg.ResetTimeout != 0 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if got := FromFailureLimit("x", 0).FailureThreshold; got != 3 {
		t.Errorf("expected default threshold 3, got %d", got)
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("CircuitState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
