package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lakecat/objectio"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDoSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnFatal(t *testing.T) {
	fatal := &objectio.FatalError{Cause: errors.New("access denied")}
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("Do() error = %v, want the fatal error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (fatal is never retried)", calls)
	}
}

func TestDoStopsOnInvalidLocation(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return objectio.ErrInvalidLocation
	})
	if !objectio.IsInvalidLocation(err) {
		t.Fatalf("Do() error = %v, want invalid location", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoHonorsResumeAfter(t *testing.T) {
	const hint = 20 * time.Millisecond

	calls := 0
	start := time.Now()
	err := Do(context.Background(), Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &objectio.ThrottledError{
				ResumeAt: time.Now().Add(hint),
				Message:  "throttled",
				Cause:    errors.New("SlowDown"),
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < hint {
		t.Errorf("resumed after %v, want at least the %v hint", elapsed, hint)
	}
}

func TestDoCapsResumeAfterAtMaxDelay(t *testing.T) {
	start := time.Now()
	calls := 0
	err := Do(context.Background(), Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &objectio.ThrottledError{
				ResumeAt: time.Now().Add(time.Hour),
				Message:  "throttled",
				Cause:    errors.New("SlowDown"),
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("waited %v, want the hint capped at MaxDelay", elapsed)
	}
}

func TestDoExhausted(t *testing.T) {
	transient := errors.New("connection reset")
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return transient
	})

	if !IsExhausted(err) {
		t.Fatalf("Do() error = %v, want exhausted", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}

	var ee *ExhaustedError
	if !errors.As(err, &ee) {
		t.Fatal("errors.As(*ExhaustedError) = false")
	}
	if ee.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", ee.Attempts)
	}
	if !errors.Is(err, transient) {
		t.Error("last error not preserved in chain")
	}
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, Config{
		MaxAttempts:  5,
		InitialDelay: time.Hour, // would hang without cancellation
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoSingleAttemptMinimum(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 0}, func(ctx context.Context) error {
		calls++
		return errors.New("transient")
	})
	if !IsExhausted(err) {
		t.Fatalf("Do() error = %v, want exhausted", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
