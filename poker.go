// Planning poker routes
//
// Every browser profile is identified by a cookie and owns one root
// document in the store: its sessions, its active user and its active
// session id. Nothing is shared between profiles.
//
// Routes, relative to the mount path:
//   - GET  /presets             card set catalog
//   - GET  /state               view of the active session
//   - POST /sessions            create a session and host it
//   - GET  /sessions/:id        landing page for a shared link
//   - POST /sessions/:id/join   join by id
//   - POST /sessions/:id/events start_voting, vote, reveal, new_round
//   - GET  /sessions/:id/results
//   - GET  /sessions/:id/qr     PNG QR code of the shared link
//   - GET  /sessions/:id/ws     the same events in, fresh views out
//   - POST /leave               forget the active session

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/pokerbox/lobby"
	"github.com/Seednode/pokerbox/poker"
	"github.com/Seednode/pokerbox/storage"
)

const (
	profileCookieName = "pokerbox_id"
	maxBodyBytes      = 64 << 10
	writeWait         = 10 * time.Second
)

// ClientMessage is an event sent by a browser, over HTTP or the socket.
type ClientMessage struct {
	Type  string `json:"type"`            // "start_voting", "vote", "reveal", "new_round"
	Value string `json:"value,omitempty"` // vote
	Force bool   `json:"force,omitempty"` // reveal
}

type createRequest struct {
	Name     string       `json:"name"`
	UserName string       `json:"userName"`
	PresetID string       `json:"presetId,omitempty"`
	Cards    *[]poker.Card `json:"cards,omitempty"` // nil means no custom set
}

type joinRequest struct {
	UserName string `json:"userName"`
}

// ViewMessage carries a fresh view over the socket.
type ViewMessage struct {
	Type string     `json:"type"` // "view"
	View lobby.View `json:"view"`
}

// SimpleMessage is for notifications without a payload ("no_session").
type SimpleMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// ErrorMessage is sent only to the client whose event was rejected.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type table struct {
	svc        *lobby.Service
	lastActive time.Time
	conns      int

	sim     *lobby.Simulator
	stopSim context.CancelFunc
}

// tableManager holds one lobby service per browser profile so that all
// requests of a profile are serialised. Services idle for longer than
// idleTimeout are dropped; their documents stay in the store.
type tableManager struct {
	mu          sync.Mutex
	tables      map[string]*table
	idleTimeout time.Duration

	store   storage.Store
	catalog *poker.Catalog
	clock   clockwork.Clock

	// simulateEvery enables one vote simulator per connected profile.
	simulateEvery time.Duration
}

func newTableManager(store storage.Store, catalog *poker.Catalog, clock clockwork.Clock, idleTimeout time.Duration) *tableManager {
	return &tableManager{
		tables:      make(map[string]*table),
		idleTimeout: idleTimeout,
		store:       store,
		catalog:     catalog,
		clock:       clock,
	}
}

func (tm *tableManager) get(profileID string) *lobby.Service {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	t, ok := tm.tables[profileID]
	if !ok {
		t = &table{
			svc: lobby.New(storage.NewRepository(tm.store, profileID), tm.catalog, tm.clock),
		}
		tm.tables[profileID] = t
	}
	t.lastActive = tm.clock.Now()

	return t.svc
}

// attach marks a long-lived connection so the reaper leaves the table
// alone until the returned func is called. The first connection of a
// profile starts its simulator, if enabled, and the last one stops it.
func (tm *tableManager) attach(profileID string) (*lobby.Service, func()) {
	svc := tm.get(profileID)

	tm.mu.Lock()
	t := tm.tables[profileID]
	t.conns++
	if t.conns == 1 && tm.simulateEvery > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		t.sim = lobby.NewSimulator(svc, tm.simulateEvery, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
		t.stopSim = cancel
		go t.sim.Run(ctx)
	}
	tm.mu.Unlock()

	return svc, func() {
		tm.mu.Lock()
		defer tm.mu.Unlock()

		t.conns--
		t.lastActive = tm.clock.Now()
		if t.conns == 0 && t.stopSim != nil {
			t.stopSim()
			t.sim, t.stopSim = nil, nil
		}
	}
}

func (tm *tableManager) reap() int {
	cutoff := tm.clock.Now().Add(-tm.idleTimeout)

	tm.mu.Lock()
	defer tm.mu.Unlock()

	n := 0
	for id, t := range tm.tables {
		if t.conns == 0 && t.lastActive.Before(cutoff) {
			delete(tm.tables, id)
			n++
		}
	}
	return n
}

// reaperLoop periodically drops tables that have been idle longer than
// idleTimeout.
func (tm *tableManager) reaperLoop(ctx context.Context) {
	if tm.idleTimeout <= 0 {
		return
	}

	ticker := tm.clock.NewTicker(tm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := tm.reap(); n > 0 {
				log.Debug().Int("count", n).Msg("unloaded idle profiles")
			}
		}
	}
}

func getOrSetProfileID(cfg *Config, w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(profileCookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     profileCookieName,
		Value:    id,
		Path:     cfg.prefix + "/",
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("failed to write response")
	}
}

func writeError(cfg *Config, w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Str("ip", realIP(r)).Msg("request failed")
	}
	writeJSON(cfg, w, status, body)
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return &poker.ValidationError{Field: "body", Message: "Request body must be valid JSON."}
	}
	return nil
}

// dispatch turns a client message into a lobby operation.
func dispatch(ctx context.Context, cfg *Config, svc *lobby.Service, msg ClientMessage) (lobby.View, error) {
	switch msg.Type {
	case "start_voting":
		return svc.StartVoting(ctx)
	case "vote":
		return svc.CastVote(ctx, strings.TrimSpace(msg.Value))
	case "reveal":
		if msg.Force && !cfg.allowForceReveal {
			return lobby.View{}, &poker.ValidationError{Field: "force", Message: "Forced reveal is disabled on this server."}
		}
		return svc.Reveal(ctx, msg.Force)
	case "new_round":
		return svc.NewRound(ctx)
	default:
		return lobby.View{}, &poker.ValidationError{Field: "type", Message: "Unknown event type " + `"` + msg.Type + `".`}
	}
}

// requireActive checks that id names the profile's active session.
func requireActive(ctx context.Context, svc *lobby.Service, id string) error {
	active, ok, err := svc.ActiveSessionID(ctx)
	if err != nil {
		return err
	}
	if !ok || active != poker.NormalizeSessionID(id) {
		return poker.ErrNoSession
	}
	return nil
}

func servePresets(cfg *Config, tm *tableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(cfg, w, http.StatusOK, tm.catalog.Presets())
	}
}

func serveState(cfg *Config, tm *tableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		svc := tm.get(getOrSetProfileID(cfg, w, r))

		view, err := svc.Resume(r.Context())
		if err != nil {
			writeError(cfg, w, r, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, view)
	}
}

func serveCreate(cfg *Config, tm *tableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		svc := tm.get(getOrSetProfileID(cfg, w, r))

		var req createRequest
		if err := readJSON(r, &req); err != nil {
			writeError(cfg, w, r, err)
			return
		}

		cards, err := svc.CardSet(req.PresetID, req.Cards)
		if err != nil {
			writeError(cfg, w, r, err)
			return
		}

		view, err := svc.Create(r.Context(), req.Name, req.UserName, cards)
		if err != nil {
			writeError(cfg, w, r, err)
			return
		}

		logf(cfg, "POKER: %q created session %s for %s", view.User.Name, view.Session.ID, realIP(r))

		writeJSON(cfg, w, http.StatusCreated, view)
	}
}

func serveJoin(cfg *Config, tm *tableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		svc := tm.get(getOrSetProfileID(cfg, w, r))

		var req joinRequest
		if err := readJSON(r, &req); err != nil {
			writeError(cfg, w, r, err)
			return
		}

		view, err := svc.Join(r.Context(), ps.ByName("id"), req.UserName)
		if err != nil {
			writeError(cfg, w, r, err)
			return
		}

		logf(cfg, "POKER: %q joined session %s from %s", view.User.Name, view.Session.ID, realIP(r))

		writeJSON(cfg, w, http.StatusOK, view)
	}
}

func serveEvents(cfg *Config, tm *tableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		svc := tm.get(getOrSetProfileID(cfg, w, r))

		if err := requireActive(r.Context(), svc, ps.ByName("id")); err != nil {
			writeError(cfg, w, r, err)
			return
		}

		var msg ClientMessage
		if err := readJSON(r, &msg); err != nil {
			writeError(cfg, w, r, err)
			return
		}

		view, err := dispatch(r.Context(), cfg, svc, msg)
		if err != nil {
			writeError(cfg, w, r, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, view)
	}
}

func serveResults(cfg *Config, tm *tableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		svc := tm.get(getOrSetProfileID(cfg, w, r))

		if err := requireActive(r.Context(), svc, ps.ByName("id")); err != nil {
			writeError(cfg, w, r, err)
			return
		}

		view, err := svc.Resume(r.Context())
		if err != nil {
			writeError(cfg, w, r, err)
			return
		}

		writeJSON(cfg, w, http.StatusOK, view.Results)
	}
}

func serveLeave(cfg *Config, tm *tableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		svc := tm.get(getOrSetProfileID(cfg, w, r))

		if err := svc.Leave(r.Context()); err != nil {
			writeError(cfg, w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// serveQR renders a PNG QR code of the session's shared link.
func serveQR(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		id := poker.NormalizeSessionID(ps.ByName("id"))
		if id == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + strings.TrimSuffix(r.URL.Path, "/qr")

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type wsClient struct {
	conn      *websocket.Conn
	sessionID string

	send chan any
	done chan struct{}
}

func serveWS(cfg *Config, tm *tableManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		profileID := getOrSetProfileID(cfg, w, r)
		svc, detach := tm.attach(profileID)
		defer detach()

		if err := requireActive(r.Context(), svc, ps.ByName("id")); err != nil {
			writeError(cfg, w, r, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}
		conn.SetReadLimit(maxBodyBytes)
		_ = conn.SetReadDeadline(time.Time{})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes, unsubscribe := svc.Subscribe()
		defer unsubscribe()

		client := &wsClient{
			conn:      conn,
			sessionID: poker.NormalizeSessionID(ps.ByName("id")),
			send:      make(chan any, 8),
			done:      make(chan struct{}),
		}

		go client.writePump(ctx, svc, changes)

		logf(cfg, "POKER: Stream opened for session %s from %s", client.sessionID, realIP(r))

		client.readPump(ctx, cfg, svc)

		// Let the writer flush queued replies before the socket closes.
		close(client.send)
		<-client.done
	}
}

// reply queues err for this client only. It reports false once the writer
// has gone away.
func (c *wsClient) reply(err error) bool {
	_, body := errorStatus(err)

	select {
	case c.send <- ErrorMessage{Type: "error", Error: body.Error, Message: body.Message}:
		return true
	case <-c.done:
		return false
	}
}

func (c *wsClient) readPump(ctx context.Context, cfg *Config, svc *lobby.Service) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if !c.reply(&poker.ValidationError{Field: "message", Message: "Message must be valid JSON."}) {
				return
			}
			continue
		}

		// A stream serves the session it was opened for. Once the profile
		// has left it, the stream is finished.
		if err := requireActive(ctx, svc, c.sessionID); err != nil {
			c.reply(err)
			return
		}

		// Successful events reach every stream of the profile through the
		// change subscription; only failures are answered directly.
		if _, err := dispatch(ctx, cfg, svc, msg); err != nil {
			if !c.reply(err) {
				return
			}
		}
	}
}

func (c *wsClient) write(msg any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *wsClient) writeView(ctx context.Context, svc *lobby.Service) error {
	err := requireActive(ctx, svc, c.sessionID)
	if err == nil {
		var view lobby.View
		if view, err = svc.Resume(ctx); err == nil {
			return c.write(ViewMessage{Type: "view", View: view})
		}
	}
	if errors.Is(err, poker.ErrNoSession) {
		return c.write(SimpleMessage{Type: "no_session", Message: "There is no active session."})
	}
	return err
}

func (c *wsClient) writePump(ctx context.Context, svc *lobby.Service, changes <-chan struct{}) {
	defer func() {
		_ = c.conn.Close()
		close(c.done)
	}()

	if err := c.writeView(ctx, svc); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			if err := c.writeView(ctx, svc); err != nil {
				return
			}
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.write(msg); err != nil {
				return
			}
		}
	}
}

// registerPoker sets up the planning poker routes under path.
func registerPoker(cfg *Config, path string, mux *httprouter.Router, tm *tableManager, errs chan<- error) {
	base := cfg.prefix + path

	mux.GET(base+"/presets", servePresets(cfg, tm))
	mux.GET(base+"/state", serveState(cfg, tm))
	mux.POST(base+"/leave", serveLeave(cfg, tm))

	mux.POST(base+"/sessions", serveCreate(cfg, tm))
	mux.GET(base+"/sessions/:id", serveSessionPage(cfg, errs))
	mux.POST(base+"/sessions/:id/join", serveJoin(cfg, tm))
	mux.POST(base+"/sessions/:id/events", serveEvents(cfg, tm))
	mux.GET(base+"/sessions/:id/results", serveResults(cfg, tm))
	mux.GET(base+"/sessions/:id/qr", serveQR(cfg, errs))
	mux.GET(base+"/sessions/:id/ws", serveWS(cfg, tm))
}
