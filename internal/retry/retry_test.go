package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func newTestRetrier(t *testing.T, policy Policy, pred Predicate) (*Retrier, *[]time.Duration) {
	t.Helper()

	r, err := New(policy, pred, nil)
	if err != nil {
		t.Fatalf("new retrier: %v", err)
	}

	waits := &[]time.Duration{}
	r.wait = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	r.rand = func() float64 { return 1 }

	return r, waits
}

func TestBackoffDelaysAreExponentialAndCapped(t *testing.T) {
	policy := Policy{Attempts: 4, BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	r, waits := newTestRetrier(t, policy, func(error) bool { return true })

	calls := 0
	_, err := Do(context.Background(), r, "op", func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	})

	if !errors.Is(err, errTransient) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}

	expected := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(*waits) != len(expected) {
		t.Fatalf("expected %d waits, got %v", len(expected), *waits)
	}
	for i, d := range expected {
		if (*waits)[i] != d {
			t.Fatalf("wait %d: expected %s, got %s", i, d, (*waits)[i])
		}
	}
}

func TestNonRetryableErrorStopsImmediately(t *testing.T) {
	policy := Policy{Attempts: 5, BaseDelay: time.Second, MaxDelay: 4 * time.Second}
	r, waits := newTestRetrier(t, policy, func(error) bool { return false })

	permanent := errors.New("permanent")
	calls := 0
	_, err := Do(context.Background(), r, "op", func(context.Context) (string, error) {
		calls++
		return "", permanent
	})

	if err != permanent {
		t.Fatalf("expected the exact error back, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single call, got %d", calls)
	}
	if len(*waits) != 0 {
		t.Fatalf("expected no waits, got %v", *waits)
	}
}

func TestSuccessShortCircuits(t *testing.T) {
	r, waits := newTestRetrier(t, DefaultPolicy(), func(error) bool { return true })

	calls := 0
	got, err := Do(context.Background(), r, "op", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errTransient
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 2 {
		t.Fatalf("expected ok after 2 calls, got %q after %d", got, calls)
	}
	// base 500ms plus the full 250ms jitter with rand pinned to 1
	if len(*waits) != 1 || (*waits)[0] != 750*time.Millisecond {
		t.Fatalf("unexpected waits: %v", *waits)
	}
}

func TestInvalidAttempts(t *testing.T) {
	if _, err := New(Policy{Attempts: 0}, nil, nil); !errors.Is(err, ErrInvalidAttempts) {
		t.Fatalf("expected ErrInvalidAttempts, got %v", err)
	}

	_, err := Do(context.Background(), &Retrier{}, "op", func(context.Context) (int, error) {
		t.Fatal("operation must not run")
		return 0, nil
	})
	if !errors.Is(err, ErrInvalidAttempts) {
		t.Fatalf("expected ErrInvalidAttempts, got %v", err)
	}
}

func TestCancelledWaitReturnsContextError(t *testing.T) {
	r, _ := newTestRetrier(t, DefaultPolicy(), func(error) bool { return true })
	r.wait = func(ctx context.Context, _ time.Duration) error { return context.DeadlineExceeded }

	err := Run(context.Background(), r, "op", func(context.Context) error { return errTransient })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		k      int
		expect time.Duration
	}{
		{name: "first retry", policy: Policy{BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}, k: 1, expect: 500 * time.Millisecond},
		{name: "doubles", policy: Policy{BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}, k: 3, expect: 2 * time.Second},
		{name: "capped", policy: Policy{BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}, k: 10, expect: 5 * time.Second},
		{name: "no overflow", policy: Policy{BaseDelay: time.Second, MaxDelay: time.Minute}, k: 200, expect: time.Minute},
		{name: "zero k", policy: Policy{BaseDelay: time.Second}, k: 0, expect: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Backoff(tt.k); got != tt.expect {
				t.Fatalf("expected %s, got %s", tt.expect, got)
			}
		})
	}
}
