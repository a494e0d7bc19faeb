// Package expiry closes poll answering windows when their deadline passes.
package expiry

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/classpoll/livepoll/internal/models"
)

// DefaultTick is how often the scheduler compares the deadline to the clock.
const DefaultTick = time.Second

// PollExpirer is the slice of the engine the scheduler drives.
type PollExpirer interface {
	State() models.SessionState
	ExpirePoll(ctx context.Context)
}

// Scheduler issues the idempotent ExpirePoll command once the active poll's
// deadline passes. Every replica runs its own scheduler; because expiry is
// idempotent, duplicate transitions across replicas are harmless.
type Scheduler struct {
	engine PollExpirer
	clock  clockwork.Clock
	tick   time.Duration
}

// New creates a scheduler. A non-positive tick falls back to DefaultTick.
func New(engine PollExpirer, clock clockwork.Clock, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Scheduler{engine: engine, clock: clock, tick: tick}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("tick", s.tick).Msg("expiry scheduler started")

	ticker := s.clock.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("expiry scheduler shutting down")
			return
		case <-ticker.Chan():
			s.checkDeadline(ctx)
		}
	}
}

func (s *Scheduler) checkDeadline(ctx context.Context) {
	state := s.engine.State()
	poll := state.CurrentPoll
	if poll == nil || !poll.IsActive {
		return
	}
	if s.clock.Now().UnixMilli() < poll.ExpiresAt {
		return
	}
	log.Debug().Str("poll_id", poll.ID).Msg("poll deadline reached")
	s.engine.ExpirePoll(ctx)
}
