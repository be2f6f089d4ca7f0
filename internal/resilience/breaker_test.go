package resilience

import (
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("store unavailable")

func TestBreakerClosedAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	if err := b.Do(func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)

	for i := 0; i < 3; i++ {
		_ = b.Do(func() error { return errDown })
	}

	err := b.Do(func() error { return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("expected state open, got %s", got)
	}
}

func TestBreakerHalfOpenAfterTimeout(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = b.Do(func() error { return errDown })
	}

	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen while open, got %v", err)
	}

	now = now.Add(2 * time.Second)

	called := false
	if err := b.Do(func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("expected probe to succeed, got %v", err)
	}
	if !called {
		t.Fatal("expected probe fn to be called")
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("expected state closed after probe success, got %s", got)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = b.Do(func() error { return errDown })
	}
	now = now.Add(2 * time.Second)

	_ = b.Do(func() error { return errDown })

	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen after failed probe, got %v", err)
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)

	_ = b.Do(func() error { return errDown })
	_ = b.Do(func() error { return errDown })
	_ = b.Do(func() error { return nil })
	_ = b.Do(func() error { return errDown })
	_ = b.Do(func() error { return errDown })

	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("expected breaker still closed, got %v", err)
	}
}
