/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Seednode/pokerbox/poker"
)

// voteChance is the probability that a waiting participant votes on a tick.
const voteChance = 0.3

// Simulator stands in for the other participants of a session in demo
// mode: on every tick, each participant other than the viewer who has not
// voted yet may cast a random card. It is just another source of events
// for the state machine.
type Simulator struct {
	svc      *Service
	interval time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulator(svc *Service, interval time.Duration, rng *rand.Rand) *Simulator {
	return &Simulator{svc: svc, interval: interval, rng: rng}
}

// Tick runs one simulation step and reports whether any vote was cast.
// Outside an open round it does nothing.
func (sim *Simulator) Tick(ctx context.Context) (bool, error) {
	s := sim.svc

	s.mu.Lock()
	defer s.mu.Unlock()

	session, viewer, err := s.active(ctx)
	if errors.Is(err, poker.ErrNoSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if session.State() != poker.StateVoting {
		return false, nil
	}

	sim.mu.Lock()
	next := session
	for _, u := range session.Users {
		if u.ID == viewer.ID || u.HasVoted {
			continue
		}
		if sim.rng.Float64() >= voteChance {
			continue
		}

		card := session.CardSet[sim.rng.IntN(len(session.CardSet))]
		next, err = poker.Apply(next, poker.CastVote{UserID: u.ID, Value: card.Value})
		if err != nil {
			sim.mu.Unlock()
			return false, err
		}
	}
	sim.mu.Unlock()

	if next.VoteCount() == session.VoteCount() {
		return false, nil
	}

	if err := s.repo.SaveSession(ctx, next); err != nil {
		return false, err
	}
	s.notify()

	return true, nil
}

// Run ticks until ctx is cancelled.
func (sim *Simulator) Run(ctx context.Context) {
	ticker := sim.svc.clock.NewTicker(sim.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if _, err := sim.Tick(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("simulated vote failed")
			}
		}
	}
}
