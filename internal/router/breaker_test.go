package router

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if b.State() != "open" {
		t.Fatalf("state = %s, want open", b.State())
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	now = now.Add(time.Minute)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("half-open trial call failed: %v", err)
	}
	if b.State() != "closed" {
		t.Fatalf("state = %s, want closed", b.State())
	}
}

func TestBreakerDisabled(t *testing.T) {
	b := NewBreaker(0, time.Minute)
	for i := 0; i < 5; i++ {
		_ = b.Execute(func() error { return errors.New("x") })
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("disabled breaker rejected call: %v", err)
	}
}

func TestBreakerHalfOpenAdmitsOneCaller(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	boom := errors.New("boom")
	_ = b.Execute(func() error { return boom })
	now = now.Add(time.Minute)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	if b.State() != "half-open" {
		t.Fatalf("state = %s, want half-open", b.State())
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second half-open caller: expected ErrCircuitOpen, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if b.State() != "closed" {
		t.Fatalf("state = %s, want closed", b.State())
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("closed breaker rejected call: %v", err)
	}
}

func TestBreakerFailedTrialReopens(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	boom := errors.New("boom")
	_ = b.Execute(func() error { return boom })
	now = now.Add(time.Minute)
	if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("trial call: %v", err)
	}
	if b.State() != "open" {
		t.Fatalf("state = %s, want open", b.State())
	}
	now = now.Add(time.Minute)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("trial after second cooldown: %v", err)
	}
}
