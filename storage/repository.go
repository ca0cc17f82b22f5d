/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Seednode/pokerbox/poker"
	"github.com/rs/zerolog/log"
)

// Namespace prefixes every root document key.
const Namespace = "poker-planning-data"

// Document is the root document of one browser profile.
type Document struct {
	Sessions         map[string]poker.Session `json:"sessions"`
	CurrentUser      *poker.User              `json:"currentUser"`
	CurrentSessionID *string                  `json:"currentSessionId"`
}

func emptyDocument() Document {
	return Document{Sessions: make(map[string]poker.Session)}
}

// Repository reads and writes the root document stored under one key.
// Every write rewrites the whole document.
type Repository struct {
	store Store
	key   string
}

// NewRepository returns a repository for profile. An empty profile uses the
// bare namespace key.
func NewRepository(store Store, profile string) *Repository {
	key := Namespace
	if profile != "" {
		key = Namespace + ":" + profile
	}
	return &Repository{store: store, key: key}
}

// Load returns the stored document. A missing or unreadable document is
// replaced by an empty one; only store failures are returned.
func (r *Repository) Load(ctx context.Context) (Document, error) {
	data, ok, err := r.store.Get(ctx, r.key)
	if err != nil {
		return Document{}, err
	}
	if !ok {
		return emptyDocument(), nil
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Warn().Err(err).Str("key", r.key).Msg("discarding unreadable document")
		return emptyDocument(), nil
	}
	if doc.Sessions == nil {
		doc.Sessions = make(map[string]poker.Session)
	}

	return doc, nil
}

func (r *Repository) save(ctx context.Context, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return r.store.Put(ctx, r.key, data)
}

func (r *Repository) update(ctx context.Context, fn func(*Document)) error {
	doc, err := r.Load(ctx)
	if err != nil {
		return err
	}
	fn(&doc)
	return r.save(ctx, doc)
}

func (r *Repository) SaveSession(ctx context.Context, s poker.Session) error {
	return r.update(ctx, func(doc *Document) {
		doc.Sessions[s.ID] = s
	})
}

func (r *Repository) Session(ctx context.Context, id string) (poker.Session, bool, error) {
	doc, err := r.Load(ctx)
	if err != nil {
		return poker.Session{}, false, err
	}
	s, ok := doc.Sessions[id]
	return s, ok, nil
}

func (r *Repository) CurrentSessionID(ctx context.Context) (string, bool, error) {
	doc, err := r.Load(ctx)
	if err != nil || doc.CurrentSessionID == nil || *doc.CurrentSessionID == "" {
		return "", false, err
	}
	return *doc.CurrentSessionID, true, nil
}

// Enter stores a session and makes it, and u, the active pair in a single
// write.
func (r *Repository) Enter(ctx context.Context, s poker.Session, u poker.User) error {
	return r.update(ctx, func(doc *Document) {
		doc.Sessions[s.ID] = s
		doc.CurrentUser = &u
		doc.CurrentSessionID = &s.ID
	})
}

// ClearCurrent forgets the active user and session. The session itself is
// kept.
func (r *Repository) ClearCurrent(ctx context.Context) error {
	return r.update(ctx, func(doc *Document) {
		doc.CurrentUser = nil
		doc.CurrentSessionID = nil
	})
}
