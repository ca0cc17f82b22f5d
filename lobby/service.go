/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package lobby runs planning poker sessions for a single browser profile.
package lobby

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/Seednode/pokerbox/poker"
	"github.com/Seednode/pokerbox/storage"
)

// View is what a profile's browser is allowed to see: its own user, the
// active session with other votes hidden until reveal, and the results.
type View struct {
	User    poker.User    `json:"user"`
	Session poker.Session `json:"session"`
	Status  string        `json:"status"`
	Results poker.Results `json:"results"`
	Average string        `json:"average,omitempty"`
	IsHost  bool          `json:"isHost"`
}

func newView(s poker.Session, u poker.User) View {
	if current, ok := s.User(u.ID); ok {
		u = current
	}

	v := View{
		User:    u,
		Session: poker.Redact(s, u.ID),
		Status:  s.Status(),
		Results: poker.Aggregate(s.Users, s.CardSet, s.IsRevealed),
		IsHost:  u.ID == s.HostID,
	}
	if v.Results.Revealed {
		v.Average = v.Results.AverageText()
	}

	return v
}

// Service serialises every operation of one profile and persists each
// change before returning.
type Service struct {
	mu      sync.Mutex
	repo    *storage.Repository
	catalog *poker.Catalog
	clock   clockwork.Clock

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

func New(repo *storage.Repository, catalog *poker.Catalog, clock clockwork.Clock) *Service {
	return &Service{
		repo:    repo,
		catalog: catalog,
		clock:   clock,
		subs:    make(map[chan struct{}]struct{}),
	}
}

// Subscribe returns a channel that receives a signal after every persisted
// change. Signals are coalesced; call cancel to stop receiving.
func (s *Service) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, ch)
		s.subMu.Unlock()
	}
}

func (s *Service) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// CardSet picks the cards for a new session: explicit cards win, then a
// preset id, then the default preset. A non-nil but empty cards is a custom
// set with nothing selected and is rejected.
func (s *Service) CardSet(presetID string, cards *[]poker.Card) ([]poker.Card, error) {
	if cards != nil {
		if len(*cards) == 0 {
			return nil, &poker.ValidationError{Field: "cardSet", Message: "Please select at least one card for voting"}
		}

		set := poker.NewCustomSet(nil)
		for _, c := range *cards {
			if err := set.Add(c.Value, c.Label); err != nil {
				return nil, err
			}
		}
		out := set.Cards()
		for i, c := range *cards {
			out[i].IsSpecial = c.IsSpecial
		}
		return out, nil
	}

	if presetID == "" {
		return s.catalog.Default().Cards, nil
	}

	p, ok := s.catalog.Lookup(presetID)
	if !ok {
		return nil, &poker.ValidationError{Field: "presetId", Message: fmt.Sprintf("unknown card set %q", presetID)}
	}

	return p.Cards, nil
}

// Create starts a new session hosted by userName and makes it active.
func (s *Service) Create(ctx context.Context, name, userName string, cards []poker.Card) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(name) == "" || strings.TrimSpace(userName) == "" {
		return View{}, &poker.ValidationError{Field: "name", Message: "Please fill in all fields"}
	}

	doc, err := s.repo.Load(ctx)
	if err != nil {
		return View{}, err
	}

	id := poker.NewSessionID()
	for {
		if _, exists := doc.Sessions[id]; !exists {
			break
		}
		id = poker.NewSessionID()
	}

	host := poker.User{ID: poker.NewUserID(), Name: userName}
	session, err := poker.NewSession(id, name, host, cards)
	if err != nil {
		return View{}, err
	}
	host = session.Users[0]

	if err := s.repo.Enter(ctx, session, host); err != nil {
		return View{}, err
	}

	log.Debug().Str("session", session.ID).Str("user", host.ID).Msg("session created")
	s.notify()

	return newView(session, host), nil
}

// Join enters a session by id. A session this profile already holds gains
// the new participant; any other id gets a placeholder session, since there
// is no registry to look it up in.
func (s *Service) Join(ctx context.Context, sessionID, userName string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID = poker.NormalizeSessionID(sessionID)
	if sessionID == "" || strings.TrimSpace(userName) == "" {
		return View{}, &poker.ValidationError{Field: "id", Message: "Please fill in all fields"}
	}

	user := poker.User{ID: poker.NewUserID(), Name: strings.TrimSpace(userName)}

	existing, ok, err := s.repo.Session(ctx, sessionID)
	if err != nil {
		return View{}, err
	}

	var session poker.Session
	if ok {
		session, err = poker.Apply(existing, poker.AddUser{User: user})
	} else {
		session, err = poker.NewPlaceholderSession(sessionID, user, s.catalog.Default().Cards)
	}
	if err != nil {
		return View{}, err
	}
	user, _ = session.User(user.ID)

	if err := s.repo.Enter(ctx, session, user); err != nil {
		return View{}, err
	}

	log.Debug().Str("session", session.ID).Str("user", user.ID).Bool("placeholder", !ok).Msg("session joined")
	s.notify()

	return newView(session, user), nil
}

// active loads the active session and user. Sessions stored with an empty
// card set are given the default preset; sessions that still break the
// session invariants are treated as missing.
func (s *Service) active(ctx context.Context) (poker.Session, poker.User, error) {
	doc, err := s.repo.Load(ctx)
	if err != nil {
		return poker.Session{}, poker.User{}, err
	}
	if doc.CurrentSessionID == nil || doc.CurrentUser == nil {
		return poker.Session{}, poker.User{}, poker.ErrNoSession
	}

	session, ok := doc.Sessions[*doc.CurrentSessionID]
	if !ok {
		return poker.Session{}, poker.User{}, poker.ErrNoSession
	}
	if len(session.CardSet) == 0 {
		session.CardSet = s.catalog.Default().Cards
	}
	if err := session.Validate(); err != nil {
		log.Warn().Err(err).Str("session", session.ID).Msg("ignoring inconsistent stored session")
		return poker.Session{}, poker.User{}, fmt.Errorf("%w: %s", poker.ErrNoSession, session.ID)
	}

	return session, *doc.CurrentUser, nil
}

// Resume returns the view of the active session, or poker.ErrNoSession.
func (s *Service) Resume(ctx context.Context) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, user, err := s.active(ctx)
	if err != nil {
		return View{}, err
	}

	return newView(session, user), nil
}

// ActiveSessionID returns the id of the active session, if any.
func (s *Service) ActiveSessionID(ctx context.Context) (string, bool, error) {
	return s.repo.CurrentSessionID(ctx)
}

func (s *Service) apply(ctx context.Context, build func(session poker.Session, user poker.User) poker.Event) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, user, err := s.active(ctx)
	if err != nil {
		return View{}, err
	}

	next, err := poker.Apply(session, build(session, user))
	if err != nil {
		return View{}, err
	}

	if err := s.repo.SaveSession(ctx, next); err != nil {
		return View{}, err
	}
	s.notify()

	return newView(next, user), nil
}

func (s *Service) StartVoting(ctx context.Context) (View, error) {
	return s.apply(ctx, func(_ poker.Session, u poker.User) poker.Event {
		return poker.StartVoting{ActorID: u.ID}
	})
}

func (s *Service) CastVote(ctx context.Context, value string) (View, error) {
	return s.apply(ctx, func(_ poker.Session, u poker.User) poker.Event {
		return poker.CastVote{UserID: u.ID, Value: value}
	})
}

func (s *Service) Reveal(ctx context.Context, force bool) (View, error) {
	return s.apply(ctx, func(_ poker.Session, u poker.User) poker.Event {
		return poker.RevealVotes{ActorID: u.ID, Force: force}
	})
}

func (s *Service) NewRound(ctx context.Context) (View, error) {
	return s.apply(ctx, func(_ poker.Session, u poker.User) poker.Event {
		return poker.NewRound{ActorID: u.ID, At: s.clock.Now()}
	})
}

// Leave forgets the active session and user; the session stays stored.
func (s *Service) Leave(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.ClearCurrent(ctx); err != nil {
		return err
	}
	s.notify()

	return nil
}
