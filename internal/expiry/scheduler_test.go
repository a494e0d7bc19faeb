package expiry

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/classpoll/livepoll/internal/session"
)

func setupPoll(t *testing.T, durationSec int) (*session.Engine, *session.Store, *clockwork.FakeClock) {
	t.Helper()
	store := session.NewStore()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	engine := session.NewEngine(store, clock, nil)
	if _, err := engine.CreatePoll(context.Background(), "Q?", []string{"A", "B"}, durationSec, nil); err != nil {
		t.Fatalf("CreatePoll failed: %v", err)
	}
	return engine, store, clock
}

func TestCheckDeadline(t *testing.T) {
	ctx := context.Background()

	t.Run("before the deadline nothing happens", func(t *testing.T) {
		engine, store, clock := setupPoll(t, 30)
		s := New(engine, clock, DefaultTick)

		clock.Advance(29 * time.Second)
		s.checkDeadline(ctx)
		if !store.Read().CurrentPoll.IsActive {
			t.Error("poll expired before its deadline")
		}
	})

	t.Run("at the deadline the poll expires", func(t *testing.T) {
		engine, store, clock := setupPoll(t, 30)
		s := New(engine, clock, DefaultTick)

		clock.Advance(30 * time.Second)
		s.checkDeadline(ctx)
		if store.Read().CurrentPoll.IsActive {
			t.Error("poll still active at its deadline")
		}
	})

	t.Run("repeated checks after expiry are no-ops", func(t *testing.T) {
		engine, store, clock := setupPoll(t, 30)
		s := New(engine, clock, DefaultTick)

		clock.Advance(45 * time.Second)
		s.checkDeadline(ctx)
		first := store.Read()
		s.checkDeadline(ctx)
		s.checkDeadline(ctx)
		second := store.Read()
		if len(first.Polls) != len(second.Polls) || second.CurrentPoll.IsActive {
			t.Error("duplicate deadline checks must not change state")
		}
	})

	t.Run("no current poll is a no-op", func(t *testing.T) {
		store := session.NewStore()
		clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
		engine := session.NewEngine(store, clock, nil)
		s := New(engine, clock, DefaultTick)
		s.checkDeadline(ctx) // must not panic
	})
}

func TestRunExpiresOverduePoll(t *testing.T) {
	engine, store, clock := setupPoll(t, 30)
	s := New(engine, clock, DefaultTick)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	// Wait for the ticker to exist, then step past the deadline.
	clock.BlockUntil(1)
	clock.Advance(31 * time.Second)

	deadline := time.After(2 * time.Second)
	for store.Read().CurrentPoll.IsActive {
		select {
		case <-deadline:
			t.Fatal("scheduler did not expire the poll")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
