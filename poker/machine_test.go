package poker

import (
	"errors"
	"testing"
	"time"
)

func newTestSession(t *testing.T, guests ...string) Session {
	t.Helper()

	cat, err := NewCatalog()
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	s, err := NewSession("ABC123", "Sprint 23 Planning", User{ID: "host", Name: "Alice"}, cat.Default().Cards)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	for _, id := range guests {
		s = mustApply(t, s, AddUser{User: User{ID: id, Name: id}})
	}

	return s
}

func mustApply(t *testing.T, s Session, e Event) Session {
	t.Helper()

	next, err := Apply(s, e)
	if err != nil {
		t.Fatalf("apply %T: %v", e, err)
	}
	if err := next.Validate(); err != nil {
		t.Fatalf("invariants after %T: %v", e, err)
	}
	if next.IsRevealed && !next.IsVotingActive {
		t.Fatalf("revealed without active voting after %T", e)
	}

	return next
}

func TestStartVotingClearsVotes(t *testing.T) {
	s := newTestSession(t, "bob", "carol")
	s = mustApply(t, s, StartVoting{ActorID: "host"})
	s = mustApply(t, s, CastVote{UserID: "host", Value: "5"})
	s = mustApply(t, s, CastVote{UserID: "bob", Value: "8"})
	s = mustApply(t, s, CastVote{UserID: "carol", Value: "?"})
	s = mustApply(t, s, RevealVotes{ActorID: "host"})

	s = mustApply(t, s, StartVoting{ActorID: "host"})

	if s.State() != StateVoting {
		t.Fatalf("state = %s, want %s", s.State(), StateVoting)
	}
	for _, u := range s.Users {
		if u.HasVoted || u.Vote != "" {
			t.Errorf("user %s kept vote %q (hasVoted=%v)", u.ID, u.Vote, u.HasVoted)
		}
	}
}

func TestStartVotingRequiresHost(t *testing.T) {
	s := newTestSession(t, "bob")

	got, err := Apply(s, StartVoting{ActorID: "bob"})
	if !errors.Is(err, ErrNotHost) {
		t.Fatalf("err = %v, want ErrNotHost", err)
	}
	if got.IsVotingActive {
		t.Fatal("non-host started voting")
	}

	if _, err := Apply(s, StartVoting{ActorID: "nobody"}); !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("err = %v, want ErrUnknownUser", err)
	}
}

func TestStartVotingWhileVoting(t *testing.T) {
	s := newTestSession(t)
	s = mustApply(t, s, StartVoting{ActorID: "host"})

	if _, err := Apply(s, StartVoting{ActorID: "host"}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
}

func TestCastVoteLastWriteWins(t *testing.T) {
	s := newTestSession(t, "bob")
	s = mustApply(t, s, StartVoting{ActorID: "host"})
	s = mustApply(t, s, CastVote{UserID: "bob", Value: "3"})
	s = mustApply(t, s, CastVote{UserID: "bob", Value: "13"})

	bob, _ := s.User("bob")
	if !bob.HasVoted || bob.Vote != "13" {
		t.Fatalf("bob = %+v, want vote 13", bob)
	}
}

func TestCastVoteRejections(t *testing.T) {
	idle := newTestSession(t, "bob")
	voting := mustApply(t, idle, StartVoting{ActorID: "host"})
	revealed := mustApply(t, voting, CastVote{UserID: "host", Value: "1"})
	revealed = mustApply(t, revealed, CastVote{UserID: "bob", Value: "1"})
	revealed = mustApply(t, revealed, RevealVotes{ActorID: "host"})

	tests := []struct {
		name    string
		session Session
		event   CastVote
		want    error
	}{
		{"not started", idle, CastVote{UserID: "bob", Value: "5"}, ErrInvalidState},
		{"after reveal", revealed, CastVote{UserID: "bob", Value: "5"}, ErrInvalidState},
		{"unknown user", voting, CastVote{UserID: "mallory", Value: "5"}, ErrUnknownUser},
		{"value outside card set", voting, CastVote{UserID: "bob", Value: "4"}, ErrInvalidVote},
		{"empty value", voting, CastVote{UserID: "bob", Value: ""}, ErrInvalidVote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.session, tt.event)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			bob, _ := got.User("bob")
			orig, _ := tt.session.User("bob")
			if bob != orig {
				t.Fatalf("rejected vote changed user: %+v -> %+v", orig, bob)
			}
		})
	}
}

func TestRevealRequiresEveryVote(t *testing.T) {
	s := newTestSession(t, "bob", "carol")
	s = mustApply(t, s, StartVoting{ActorID: "host"})
	s = mustApply(t, s, CastVote{UserID: "host", Value: "5"})
	s = mustApply(t, s, CastVote{UserID: "bob", Value: "8"})

	got, err := Apply(s, RevealVotes{ActorID: "host"})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if got.IsRevealed {
		t.Fatal("session revealed with a missing vote")
	}

	s = mustApply(t, s, CastVote{UserID: "carol", Value: "5"})
	s = mustApply(t, s, RevealVotes{ActorID: "host"})
	if s.State() != StateRevealed {
		t.Fatalf("state = %s, want %s", s.State(), StateRevealed)
	}
}

func TestForcedReveal(t *testing.T) {
	s := newTestSession(t, "bob")
	s = mustApply(t, s, StartVoting{ActorID: "host"})
	s = mustApply(t, s, CastVote{UserID: "host", Value: "5"})

	s = mustApply(t, s, RevealVotes{ActorID: "host", Force: true})
	if !s.IsRevealed {
		t.Fatal("forced reveal did not reveal")
	}

	if _, err := Apply(newTestSession(t), RevealVotes{ActorID: "host", Force: true}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("forced reveal while idle: err = %v, want ErrInvalidState", err)
	}
}

func TestRevealRequiresHost(t *testing.T) {
	s := newTestSession(t, "bob")
	s = mustApply(t, s, StartVoting{ActorID: "host"})
	s = mustApply(t, s, CastVote{UserID: "host", Value: "5"})
	s = mustApply(t, s, CastVote{UserID: "bob", Value: "5"})

	if _, err := Apply(s, RevealVotes{ActorID: "bob"}); !errors.Is(err, ErrNotHost) {
		t.Fatalf("err = %v, want ErrNotHost", err)
	}
}

func TestNewRoundArchivesVoters(t *testing.T) {
	at := time.Date(2026, time.October, 16, 9, 30, 0, 0, time.UTC)

	s := newTestSession(t, "bob", "carol")
	s = mustApply(t, s, StartVoting{ActorID: "host"})
	s = mustApply(t, s, CastVote{UserID: "host", Value: "5"})
	s = mustApply(t, s, CastVote{UserID: "bob", Value: "8"})
	s = mustApply(t, s, RevealVotes{ActorID: "host", Force: true})

	before := s.CurrentRound
	s = mustApply(t, s, NewRound{ActorID: "host", At: at})

	if s.CurrentRound != before+1 {
		t.Fatalf("round = %d, want %d", s.CurrentRound, before+1)
	}
	if len(s.VotingHistory) != 1 {
		t.Fatalf("history length = %d, want 1", len(s.VotingHistory))
	}

	r := s.VotingHistory[0]
	if r.Number != before {
		t.Errorf("archived round = %d, want %d", r.Number, before)
	}
	if !r.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", r.Timestamp, at)
	}
	if len(r.Votes) != 2 || r.Votes["host"] != "5" || r.Votes["bob"] != "8" {
		t.Errorf("votes = %v, want host:5 bob:8", r.Votes)
	}
	if _, ok := r.Votes["carol"]; ok {
		t.Error("non-voter carol archived")
	}

	if s.State() != StateIdle {
		t.Errorf("state = %s, want %s", s.State(), StateIdle)
	}
	if s.VoteCount() != 0 {
		t.Errorf("vote count = %d after new round", s.VoteCount())
	}
}

func TestNewRoundRequiresReveal(t *testing.T) {
	s := newTestSession(t)
	s = mustApply(t, s, StartVoting{ActorID: "host"})

	got, err := Apply(s, NewRound{ActorID: "host", At: time.Now()})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	if got.CurrentRound != 1 || len(got.VotingHistory) != 0 {
		t.Fatalf("rejected new round changed session: %+v", got)
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	s := newTestSession(t, "bob")
	s = mustApply(t, s, StartVoting{ActorID: "host"})

	_ = mustApply(t, s, CastVote{UserID: "bob", Value: "8"})

	if bob, _ := s.User("bob"); bob.HasVoted {
		t.Fatal("Apply mutated its input session")
	}
}

func TestAddUser(t *testing.T) {
	s := newTestSession(t)
	s = mustApply(t, s, AddUser{User: User{ID: "bob", Name: "Bob", IsHost: true, HasVoted: true, Vote: "5"}})

	bob, ok := s.User("bob")
	if !ok {
		t.Fatal("bob was not added")
	}
	if bob.IsHost || bob.HasVoted || bob.Vote != "" {
		t.Fatalf("added user kept flags: %+v", bob)
	}

	if _, err := Apply(s, AddUser{User: User{ID: "bob", Name: "Bob again"}}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("duplicate add: err = %v, want ErrInvalidState", err)
	}
}
