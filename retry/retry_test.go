package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var fastConfig = Config{
	MaxAttempts:  3,
	InitialDelay: time.Millisecond,
	MaxDelay:     5 * time.Millisecond,
	Multiplier:   2.0,
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig, func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != 42 {
		t.Errorf("result = %d, want 42", got)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRetriesTransientFailure(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastConfig, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q, want ok", got)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	sentinel := errors.New("down")
	_, err := Do(context.Background(), fastConfig, func() (int, error) {
		calls++
		return 0, sentinel
	})
	if err == nil {
		t.Fatal("Do succeeded, want error")
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("error = %v, want wrapped %v", err, sentinel)
	}
	if calls != fastConfig.MaxAttempts {
		t.Errorf("calls = %d, want %d", calls, fastConfig.MaxAttempts)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Do(ctx, fastConfig, func() (int, error) {
		calls++
		return 0, errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}
