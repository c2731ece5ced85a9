package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunner_AddRejectsInvalidSpec(t *testing.T) {
	r := NewRunner(nil)
	if err := r.Add("bad", "not a spec", func(context.Context) {}); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestRunner_RunsUntilCancelled(t *testing.T) {
	r := NewRunner(time.UTC)

	var calls atomic.Int32
	if err := r.Add("tick", "@every 1s", func(ctx context.Context) {
		if ctx.Err() == nil {
			calls.Add(1)
		}
	}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("task never ran")
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunner_CanRunAgain(t *testing.T) {
	r := NewRunner(time.UTC)

	var calls atomic.Int32
	if err := r.Add("tick", "@every 1s", func(context.Context) { calls.Add(1) }); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	for round := 1; round <= 2; round++ {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			r.Run(ctx)
			close(done)
		}()

		before := calls.Load()
		deadline := time.After(5 * time.Second)
		for calls.Load() == before {
			select {
			case <-deadline:
				t.Fatalf("round %d: task never ran", round)
			case <-time.After(50 * time.Millisecond):
			}
		}
		cancel()
		<-done
	}
}
