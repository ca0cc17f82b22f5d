/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package poker

import (
	"fmt"
	"time"
)

// Event is anything that can move a session forward. The set of events is
// closed; see StartVoting, CastVote, RevealVotes, NewRound and AddUser.
type Event interface {
	apply(s *Session) error
}

// StartVoting opens a round: Idle or Revealed to Voting.
type StartVoting struct {
	ActorID string
}

// CastVote records (or replaces) a user's vote for the open round.
type CastVote struct {
	UserID string
	Value  string
}

// RevealVotes exposes the round's votes. Without Force every user must
// have voted first.
type RevealVotes struct {
	ActorID string
	Force   bool
}

// NewRound archives the revealed round and returns the session to Idle.
type NewRound struct {
	ActorID string
	At      time.Time
}

// AddUser appends a participant who is not the host.
type AddUser struct {
	User User
}

// Apply returns the session that results from e. s is never modified; on
// error the returned session equals s.
func Apply(s Session, e Event) (Session, error) {
	next := s.Clone()
	if err := e.apply(&next); err != nil {
		return s, err
	}
	return next, nil
}

func requireHost(s *Session, actorID string) error {
	if _, ok := s.User(actorID); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownUser, actorID)
	}
	if actorID != s.HostID {
		return ErrNotHost
	}
	return nil
}

func clearVotes(s *Session) {
	for i := range s.Users {
		s.Users[i].HasVoted = false
		s.Users[i].Vote = ""
	}
}

func (e StartVoting) apply(s *Session) error {
	if err := requireHost(s, e.ActorID); err != nil {
		return err
	}
	if s.State() == StateVoting {
		return fmt.Errorf("%w: voting is already in progress", ErrInvalidState)
	}

	clearVotes(s)
	s.IsVotingActive = true
	s.IsRevealed = false

	return nil
}

func (e CastVote) apply(s *Session) error {
	if s.State() != StateVoting {
		return fmt.Errorf("%w: voting is not open", ErrInvalidState)
	}

	idx := -1
	for i := range s.Users {
		if s.Users[i].ID == e.UserID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownUser, e.UserID)
	}
	if !s.HasCard(e.Value) {
		return fmt.Errorf("%w: %q is not in the card set", ErrInvalidVote, e.Value)
	}

	s.Users[idx].HasVoted = true
	s.Users[idx].Vote = e.Value

	return nil
}

func (e RevealVotes) apply(s *Session) error {
	if err := requireHost(s, e.ActorID); err != nil {
		return err
	}
	if s.State() != StateVoting {
		return fmt.Errorf("%w: nothing to reveal", ErrInvalidState)
	}
	if !e.Force && !s.AllVoted() {
		return fmt.Errorf("%w: waiting on %d of %d votes", ErrInvalidState, len(s.Users)-s.VoteCount(), len(s.Users))
	}

	s.IsRevealed = true

	return nil
}

func (e NewRound) apply(s *Session) error {
	if err := requireHost(s, e.ActorID); err != nil {
		return err
	}
	if s.State() != StateRevealed {
		return fmt.Errorf("%w: round has not been revealed", ErrInvalidState)
	}

	votes := make(map[string]string, len(s.Users))
	for _, u := range s.Users {
		if u.HasVoted && u.Vote != "" {
			votes[u.ID] = u.Vote
		}
	}

	s.VotingHistory = append(s.VotingHistory, Round{
		Number:    s.CurrentRound,
		Votes:     votes,
		Timestamp: e.At.UTC(),
	})
	s.CurrentRound++
	s.IsVotingActive = false
	s.IsRevealed = false
	clearVotes(s)

	return nil
}

func (e AddUser) apply(s *Session) error {
	if e.User.ID == "" {
		return &ValidationError{Field: "id", Message: "user id is required"}
	}
	if _, ok := s.User(e.User.ID); ok {
		return fmt.Errorf("%w: user %q already joined", ErrInvalidState, e.User.ID)
	}

	u := e.User
	u.IsHost = false
	u.HasVoted = false
	u.Vote = ""
	s.Users = append(s.Users, u)

	return nil
}
