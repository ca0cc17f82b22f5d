/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package poker

import (
	"crypto/rand"
	"fmt"
	"io"
	"maps"
	"strings"
	"time"
)

const (
	sessionIDLength = 6
	userIDLength    = 13

	// PlaceholderHostID and PlaceholderHostName stand in for the host of a
	// session that was joined by id rather than created locally.
	PlaceholderHostID   = "host-id"
	PlaceholderHostName = "Session Host"
)

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsHost   bool   `json:"isHost"`
	HasVoted bool   `json:"hasVoted"`
	Vote     string `json:"vote,omitempty"`
}

// Round is the archived record of a finished round.
type Round struct {
	Number    int               `json:"roundNumber"`
	Votes     map[string]string `json:"votes"`
	Timestamp time.Time         `json:"timestamp"`
}

type Session struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	HostID         string  `json:"hostId"`
	Users          []User  `json:"users"`
	CurrentRound   int     `json:"currentRound"`
	IsVotingActive bool    `json:"isVotingActive"`
	IsRevealed     bool    `json:"isRevealed"`
	VotingHistory  []Round `json:"votingHistory"`
	CardSet        []Card  `json:"cardSet"`
}

// State is the round state derived from IsVotingActive and IsRevealed.
type State string

const (
	StateIdle     State = "idle"
	StateVoting   State = "voting"
	StateRevealed State = "revealed"
)

func (s Session) State() State {
	switch {
	case s.IsVotingActive && s.IsRevealed:
		return StateRevealed
	case s.IsVotingActive:
		return StateVoting
	default:
		return StateIdle
	}
}

// Status is the heading shown above the cards.
func (s Session) Status() string {
	switch s.State() {
	case StateRevealed:
		return "Voting Complete"
	case StateVoting:
		return "Voting in Progress"
	default:
		return "Ready to Vote"
	}
}

func (s Session) User(id string) (User, bool) {
	for _, u := range s.Users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

func (s Session) AllVoted() bool {
	for _, u := range s.Users {
		if !u.HasVoted {
			return false
		}
	}
	return true
}

func (s Session) VoteCount() int {
	n := 0
	for _, u := range s.Users {
		if u.HasVoted {
			n++
		}
	}
	return n
}

func (s Session) HasCard(value string) bool {
	_, ok := findCard(s.CardSet, value)
	return ok
}

// Validate checks the structural invariants of a session.
func (s Session) Validate() error {
	if s.IsRevealed && !s.IsVotingActive {
		return fmt.Errorf("%w: revealed while voting is inactive", ErrInvalidState)
	}
	if s.CurrentRound < 1 {
		return fmt.Errorf("%w: round %d", ErrInvalidState, s.CurrentRound)
	}
	if len(s.CardSet) == 0 {
		return &ValidationError{Field: "cardSet", Message: "Please select at least one card for voting"}
	}

	ids := make(map[string]bool, len(s.Users))
	hosts := 0
	for _, u := range s.Users {
		if ids[u.ID] {
			return fmt.Errorf("%w: duplicate user %q", ErrInvalidState, u.ID)
		}
		ids[u.ID] = true

		if u.IsHost {
			hosts++
			if u.ID != s.HostID {
				return fmt.Errorf("%w: host flag on %q but host is %q", ErrInvalidState, u.ID, s.HostID)
			}
		}
	}
	if hosts != 1 || !ids[s.HostID] {
		return fmt.Errorf("%w: session %s needs exactly one host", ErrInvalidState, s.ID)
	}

	return nil
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	if s.Users != nil {
		out.Users = make([]User, len(s.Users))
		copy(out.Users, s.Users)
	}
	out.CardSet = cloneCards(s.CardSet)
	if s.VotingHistory != nil {
		out.VotingHistory = make([]Round, len(s.VotingHistory))
		for i, r := range s.VotingHistory {
			r.Votes = maps.Clone(r.Votes)
			out.VotingHistory[i] = r
		}
	}
	return out
}

// NewSession creates a session with host as its only participant.
func NewSession(id, name string, host User, cards []Card) (Session, error) {
	name = strings.TrimSpace(name)
	host.Name = strings.TrimSpace(host.Name)
	if name == "" || host.Name == "" {
		return Session{}, &ValidationError{Field: "name", Message: "Please fill in all fields"}
	}
	if len(cards) == 0 {
		return Session{}, &ValidationError{Field: "cardSet", Message: "Please select at least one card for voting"}
	}

	host.IsHost = true
	host.HasVoted = false
	host.Vote = ""

	return Session{
		ID:            id,
		Name:          name,
		HostID:        host.ID,
		Users:         []User{host},
		CurrentRound:  1,
		VotingHistory: []Round{},
		CardSet:       cloneCards(cards),
	}, nil
}

// NewPlaceholderSession fabricates the session shell used when joining by
// id: a stand-in host plus the joining user. No remote lookup happens.
func NewPlaceholderSession(id string, joiner User, cards []Card) (Session, error) {
	id = NormalizeSessionID(id)
	joiner.Name = strings.TrimSpace(joiner.Name)
	if id == "" || joiner.Name == "" {
		return Session{}, &ValidationError{Field: "id", Message: "Please fill in all fields"}
	}

	s, err := NewSession(id, "Planning Session "+id, User{ID: PlaceholderHostID, Name: PlaceholderHostName}, cards)
	if err != nil {
		return Session{}, err
	}

	joiner.IsHost = false
	joiner.HasVoted = false
	joiner.Vote = ""
	s.Users = append(s.Users, joiner)

	return s, nil
}

// Redact hides every vote except the viewer's own until the round is
// revealed.
func Redact(s Session, viewerID string) Session {
	out := s.Clone()
	if out.IsRevealed {
		return out
	}
	for i := range out.Users {
		if out.Users[i].ID != viewerID {
			out.Users[i].Vote = ""
		}
	}
	return out
}

func NormalizeSessionID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// NewSessionID returns a 6 character upper-case base-36 token.
func NewSessionID() string {
	return randomToken(rand.Reader, "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ", sessionIDLength)
}

// NewUserID returns a 13 character lower-case base-36 token.
func NewUserID() string {
	return randomToken(rand.Reader, "0123456789abcdefghijklmnopqrstuvwxyz", userIDLength)
}

// randomToken draws n symbols of alphabet from r. Bytes at or above the
// largest multiple of len(alphabet) are discarded so every symbol is
// equally likely.
func randomToken(r io.Reader, alphabet string, n int) string {
	limit := 256 - 256%len(alphabet)

	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
