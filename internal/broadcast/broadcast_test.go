package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"github.com/classpoll/livepoll/internal/models"
	"github.com/classpoll/livepoll/internal/session"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	state := models.NewSessionState()
	state.Students = append(state.Students, models.Student{ID: "s1", Name: "Alice", JoinedAt: 42})

	data, err := encodeEnvelope("replica-a", 1000, state)
	if err != nil {
		t.Fatalf("encodeEnvelope failed: %v", err)
	}
	sender, decoded, err := decodeEnvelope(data)
	if err != nil {
		t.Fatalf("decodeEnvelope failed: %v", err)
	}
	if sender != "replica-a" {
		t.Errorf("sender = %q, want replica-a", sender)
	}
	if diff := cmp.Diff(state, decoded); diff != "" {
		t.Errorf("state mismatch (-sent +received):\n%s", diff)
	}
}

func TestDecodeEnvelopeGarbage(t *testing.T) {
	if _, _, err := decodeEnvelope([]byte("{{{")); !errors.Is(err, models.ErrDecodeSnapshot) {
		t.Errorf("decodeEnvelope error = %v, want ErrDecodeSnapshot", err)
	}
}

// Two replicas on a memory bus: commands on the writer replica converge the
// observer replica with no merge logic, last snapshot wins.
func TestMemoryBusConvergence(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	bus := NewMemoryBus()

	writerStore := session.NewStore()
	observerStore := session.NewStore()
	bus.Join(func(state models.SessionState) {
		observerStore.Replace(state)
	})
	writer := bus.Join(nil)
	engine := session.NewEngine(writerStore, clock, writer)

	id, err := engine.RegisterStudent(ctx, "Alice")
	if err != nil {
		t.Fatalf("RegisterStudent failed: %v", err)
	}
	if _, err := engine.CreatePoll(ctx, "Q?", []string{"A", "B"}, 30, nil); err != nil {
		t.Fatalf("CreatePoll failed: %v", err)
	}
	if err := engine.SubmitAnswer(ctx, id, "Alice", 1); err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}

	if diff := cmp.Diff(writerStore.Read(), observerStore.Read()); diff != "" {
		t.Errorf("observer replica diverged (-writer +observer):\n%s", diff)
	}
}

// The observer installs snapshots verbatim: a second writer's publish
// overwrites the first one's state entirely.
func TestMemoryBusLastSnapshotWins(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()

	observerStore := session.NewStore()
	bus.Join(func(state models.SessionState) {
		observerStore.Replace(state)
	})

	first := bus.Join(nil)
	second := bus.Join(nil)

	stateA := models.NewSessionState()
	stateA.Students = append(stateA.Students, models.Student{ID: "a", Name: "Alice"})
	stateB := models.NewSessionState()
	stateB.Students = append(stateB.Students, models.Student{ID: "b", Name: "Bob"})

	if err := first.Publish(ctx, stateA); err != nil {
		t.Fatalf("first Publish failed: %v", err)
	}
	if err := second.Publish(ctx, stateB); err != nil {
		t.Fatalf("second Publish failed: %v", err)
	}

	got := observerStore.Read()
	if len(got.Students) != 1 || got.Students[0].ID != "b" {
		t.Errorf("observer state = %+v, want last writer's snapshot", got.Students)
	}
}

func TestMultiPublisherFansOutAndJoinsErrors(t *testing.T) {
	ctx := context.Background()
	var calls int
	ok := publisherFunc(func(context.Context, models.SessionState) error {
		calls++
		return nil
	})
	boom := publisherFunc(func(context.Context, models.SessionState) error {
		calls++
		return errors.New("boom")
	})

	err := Multi(ok, nil, boom, ok).Publish(ctx, models.NewSessionState())
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if err == nil {
		t.Error("Multi must surface publisher errors")
	}
}

type publisherFunc func(ctx context.Context, state models.SessionState) error

func (f publisherFunc) Publish(ctx context.Context, state models.SessionState) error {
	return f(ctx, state)
}
