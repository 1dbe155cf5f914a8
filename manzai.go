// Manzai sessions
//
// One player gives hints about a hidden topic while the language model, as
// the straight man, guesses until it lands the word. Everyone connected to
// the same session sees the same stage.
//
// Features:
// - WebSockets per session ID: /play/:gameid and /play/:gameid/ws
// - All game state lives server-side in a game.Game, pushed as full snapshots
// - The client that picks the difficulty plays; everyone else watches
// - Wrong guesses are revealed line by line with a configurable pause
// - Analysis and script are requested together once the game ends
// - Finished games are written to the archive when one is configured
// - Sessions are reaped after a configurable idle timeout
// - Random 8-char session IDs via crypto/rand, with server-side collision check
// - QR code for spectators, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/manzai/archive"
	"github.com/Seednode/manzai/game"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// ClientMessage is everything a browser can send.
type ClientMessage struct {
	Type  string `json:"type"`            // "choose", "hint", "end", "replay"
	Level string `json:"level,omitempty"` // choose
	Text  string `json:"text,omitempty"`  // hint
}

// StateMessage is the full stage, sent after every change.
type StateMessage struct {
	Type string `json:"type"` // "state"
	game.State
	Session  string `json:"session"`
	Players  int    `json:"players"`
	Archived string `json:"archived,omitempty"`
	// Playing is true when the receiving client may give hints.
	Playing bool `json:"playing"`
}

// ErrorMessage goes only to the client whose request failed, unless the
// failure belongs to the whole session.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

var errSpectator = errors.New("manzai: spectators cannot play")

const (
	msgTopicFailed   = "お題の生成に失敗しました。もう一度お試しください。"
	msgRespondFailed = "エラーが発生しました。もう一度お試しください。"
)

// errorText turns a rejected move into something a player can act on.
func errorText(err error) string {
	switch {
	case errors.Is(err, game.ErrTooShort):
		return "もう少しヒントを出してからゲームを終了してください！"
	case errors.Is(err, game.ErrEmptyHint):
		return "ヒントを入力してください。"
	case errors.Is(err, game.ErrBusy):
		return "内海が考え中です。少し待ってください。"
	case errors.Is(err, game.ErrTurnLimit):
		return "ターン数の上限に達しました。"
	case errors.Is(err, errSpectator):
		return "観戦中は操作できません。"
	default:
		return "今はその操作はできません。"
	}
}

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
}

type action struct {
	client *Client
	msg    ClientMessage
}

type Session struct {
	id      string
	clients map[*Client]bool
	game    *game.Game
	// archived is the archive ID of the last concluded game.
	archived string
	// player is the cookie ID of whoever chose the difficulty.
	player string

	register chan *Client
	unreg    chan *Client
	actions  chan action

	mu sync.Mutex

	createdAt  time.Time
	lastActive time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	cfg      *Config
	director *game.Director
	store    *archive.Store

	// inflight tracks model calls and reveal timers.
	inflight sync.WaitGroup
}

func newSession(ctx context.Context, cfg *Config, id string, director *game.Director, store *archive.Store) *Session {
	now := time.Now()
	ctx, cancel := context.WithCancel(ctx)

	return &Session{
		id:         id,
		clients:    make(map[*Client]bool),
		game:       game.New(),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		actions:    make(chan action),
		createdAt:  now,
		lastActive: now,
		ctx:        ctx,
		cancel:     cancel,
		cfg:        cfg,
		director:   director,
		store:      store,
	}
}

func (s *Session) run() {
	for {
		select {
		case <-s.ctx.Done():
			s.closeAll()
			s.inflight.Wait()
			return

		case c := <-s.register:
			s.mu.Lock()
			s.lastActive = time.Now()
			s.clients[c] = true
			s.broadcastStateLocked()
			s.mu.Unlock()

		case c := <-s.unreg:
			s.mu.Lock()
			s.lastActive = time.Now()
			if _, ok := s.clients[c]; ok {
				delete(s.clients, c)
				close(c.send)
				s.broadcastStateLocked()
			}
			s.mu.Unlock()

		case a := <-s.actions:
			s.handle(a)
		}
	}
}

// stop ends the session and disconnects everyone.
func (s *Session) stop() {
	s.cancel()
}

func (s *Session) handle(a action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = time.Now()

	var err error
	switch a.msg.Type {
	case "choose":
		err = s.chooseLocked(a.client, game.ParseDifficulty(a.msg.Level))
	case "hint":
		if err = s.takeControlLocked(a.client); err == nil {
			err = s.hintLocked(a.msg.Text)
		}
	case "end":
		if err = s.takeControlLocked(a.client); err == nil {
			err = s.endLocked()
		}
	case "replay":
		if err = s.takeControlLocked(a.client); err == nil {
			s.game.Reset()
			s.archived = ""
			s.player = ""
			logf(s.cfg, "GAMES: Replay in %s", s.id)
			s.broadcastStateLocked()
		}
	default:
		return
	}

	if err != nil {
		s.sendLocked(a.client, ErrorMessage{Type: "error", Message: errorText(err)})
	}
}

// controlsLocked reports whether c may make moves. Anyone may while no one
// has chosen a difficulty, or once the player has left the session.
func (s *Session) controlsLocked(c *Client) bool {
	if s.player == "" || c.playerID == s.player {
		return true
	}

	for other := range s.clients {
		if other.playerID == s.player {
			return false
		}
	}

	return true
}

// takeControlLocked rejects spectators, handing the game to c if the
// player is gone.
func (s *Session) takeControlLocked(c *Client) error {
	if !s.controlsLocked(c) {
		return errSpectator
	}

	if s.player != "" && s.player != c.playerID {
		logf(s.cfg, "GAMES: Spectator took over %s", s.id)
	}
	s.player = c.playerID

	return nil
}

// async runs f off the hub goroutine so model calls never block it.
func (s *Session) async(f func()) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		f()
	}()
}

// pause waits d, returning false if the session ended first.
func (s *Session) pause(d time.Duration) bool {
	if d <= 0 {
		return s.ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// step applies f if the game is still on round, then broadcasts.
func (s *Session) step(round int, f func() error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.game.Round() != round {
		return false
	}
	if err := f(); err != nil {
		return false
	}

	s.broadcastStateLocked()

	return true
}

func (s *Session) chooseLocked(c *Client, level game.Difficulty) error {
	if err := s.game.Choose(level); err != nil {
		return err
	}

	s.player = c.playerID

	round := s.game.Round()
	s.broadcastStateLocked()

	s.async(func() { s.pickTopic(round, level) })

	return nil
}

func (s *Session) pickTopic(round int, level game.Difficulty) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.llmTimeout)
	topic, err := s.director.Topic(ctx, level)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.game.Round() != round {
		return
	}

	if err != nil {
		s.warn("topic generation failed", err)
		_ = s.game.Abandon()
		s.player = ""
		s.broadcastLocked(ErrorMessage{Type: "error", Message: msgTopicFailed})
		s.broadcastStateLocked()
		return
	}

	if err := s.game.Begin(topic); err != nil {
		return
	}

	logf(s.cfg, "GAMES: %s started on %s (%s)", s.id, level, topic.Category)

	s.broadcastStateLocked()
}

func (s *Session) hintLocked(text string) error {
	turn, err := s.game.Hint(text)
	if err != nil {
		return err
	}

	round := s.game.Round()
	s.broadcastStateLocked()

	s.async(func() { s.playTurn(round, turn) })

	return nil
}

// playTurn reveals the bot's answer to one hint. A correct guess, or the
// last turn, moves on to the summary; a wrong guess is denied and retracted
// with a pause before each line.
func (s *Session) playTurn(round int, turn game.Turn) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.llmTimeout)
	reply, err := s.director.Respond(ctx, turn)
	cancel()

	var outcome game.Outcome

	ok := s.step(round, func() error {
		if err != nil {
			s.warn("response generation failed", err)
			s.broadcastLocked(ErrorMessage{Type: "error", Message: msgRespondFailed})
			return s.game.Fail()
		}

		outcome, err = s.game.Answer(reply)
		return err
	})
	if !ok || err != nil {
		return
	}

	if outcome == game.OutcomeFinished {
		logf(s.cfg, "GAMES: %s finished on turn %d (correct: %t)", s.id, turn.Number, reply.IsCorrect)

		if !s.pause(s.cfg.finishDelay) {
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.game.Round() != round || s.game.Phase() != game.PhasePlaying {
			return
		}
		if err := s.endLocked(); err != nil {
			s.warn("could not end finished game", err)
		}

		return
	}

	if !s.pause(s.cfg.revealDelay) {
		return
	}
	if !s.step(round, func() error { return s.game.Deny(reply.Guess) }) {
		return
	}
	if !s.pause(s.cfg.revealDelay) {
		return
	}
	s.step(round, func() error { return s.game.Retract(reply.ResponseV2) })
}

func (s *Session) endLocked() error {
	if err := s.game.End(); err != nil {
		return err
	}

	round := s.game.Round()
	record := archive.Record{
		Session:    s.id,
		Difficulty: s.game.Difficulty(),
		Topic:      s.game.Topic().Topic,
		Category:   s.game.Topic().Category,
		Turns:      s.game.Turns(),
		History:    s.game.Lines(),
	}

	s.broadcastStateLocked()

	s.async(func() { s.conclude(round, record) })

	return nil
}

// conclude fetches the analysis and script, shows them, and archives the game.
func (s *Session) conclude(round int, record archive.Record) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.llmTimeout)
	summary := s.director.Summarize(ctx, record.Topic, record.History)
	cancel()

	if !s.step(round, func() error { return s.game.Conclude(summary.Analysis, summary.Script) }) {
		return
	}

	if s.store == nil {
		return
	}

	record.Analysis = &summary.Analysis
	record.Script = summary.Script

	id, err := s.store.Save(s.ctx, record)
	if err != nil {
		s.warn("archive failed", err)
		return
	}

	logf(s.cfg, "GAMES: Archived %s as %s", s.id, id)

	s.step(round, func() error {
		s.archived = id
		return nil
	})
}

func (s *Session) warn(msg string, err error) {
	if s.cfg.logger == nil {
		return
	}

	s.cfg.logger.Warn("GAMES: "+msg, zap.String("session", s.id), zap.Error(err))
}

func (s *Session) stateLocked(c *Client) StateMessage {
	return StateMessage{
		Type:     "state",
		State:    s.game.Snapshot(),
		Session:  s.id,
		Players:  len(s.clients),
		Archived: s.archived,
		Playing:  s.controlsLocked(c),
	}
}

// sendLocked queues msg for one client, dropping it if it cannot keep up.
func (s *Session) sendLocked(c *Client, msg any) {
	if _, ok := s.clients[c]; !ok {
		return
	}

	select {
	case c.send <- msg:
	default:
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Session) broadcastLocked(msg any) {
	for client := range s.clients {
		s.sendLocked(client, msg)
	}
}

func (s *Session) broadcastStateLocked() {
	for client := range s.clients {
		s.sendLocked(client, s.stateLocked(client))
	}
}

func (s *Session) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(s.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	playerCookieName = "manzai_id"
	maxMessageSize   = 4096
)

func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

type SessionManager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	idleTimeout time.Duration

	ctx      context.Context
	cfg      *Config
	director *game.Director
	store    *archive.Store
}

func newSessionManager(ctx context.Context, cfg *Config, director *game.Director, store *archive.Store) *SessionManager {
	sm := &SessionManager{
		sessions:    make(map[string]*Session),
		idleTimeout: cfg.sessionTimeout,
		ctx:         ctx,
		cfg:         cfg,
		director:    director,
		store:       store,
	}
	if sm.idleTimeout > 0 {
		go sm.reaperLoop()
	}
	return sm
}

func (sm *SessionManager) getSession(id string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if s, ok := sm.sessions[id]; ok {
		return s
	}

	s := newSession(sm.ctx, sm.cfg, id, sm.director, sm.store)
	sm.sessions[id] = s
	go s.run()
	return s
}

func (sm *SessionManager) count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return len(sm.sessions)
}

func (sm *SessionManager) newSessionID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		sm.mu.Lock()
		_, exists := sm.sessions[id]
		sm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reap stops every session idle since before cutoff.
func (sm *SessionManager) reap(cutoff time.Time) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	reaped := 0
	for id, s := range sm.sessions {
		s.mu.Lock()
		last := s.lastActive
		s.mu.Unlock()

		if last.Before(cutoff) {
			delete(sm.sessions, id)
			s.stop()
			reaped++

			logf(sm.cfg, "GAMES: Reaped %s after %s", id, time.Since(s.createdAt).Round(time.Second))
		}
	}

	return reaped
}

func (sm *SessionManager) reaperLoop() {
	ticker := time.NewTicker(sm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			return
		case <-ticker.C:
			sm.reap(time.Now().Add(-sm.idleTimeout))
		}
	}
}

func serveWSForManager(cfg *Config, sm *SessionManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		s := sm.getSession(gameID)

		// The hijacked connection never flushes w's headers, so a fresh
		// player cookie has to ride on the upgrade response.
		conn, err := upgrader.Upgrade(w, r, w.Header())
		if err != nil {
			if cfg.logger != nil {
				cfg.logger.Warn("GAMES: websocket upgrade failed", zap.String("session", gameID), zap.Error(err))
			}
			return
		}
		conn.SetReadLimit(maxMessageSize)

		client := &Client{
			conn:     conn,
			send:     make(chan any, 16),
			playerID: playerID,
		}

		select {
		case s.register <- client:
		case <-s.ctx.Done():
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: Player connected to %s from %s", gameID, realIP(r))

		go client.writePump()
		client.readPump(s)
	}
}

func (c *Client) readPump(s *Session) {
	defer func() {
		select {
		case s.unreg <- c:
		case <-s.ctx.Done():
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "choose", "hint", "end", "replay":
			select {
			case s.actions <- action{client: c, msg: msg}:
			case <-s.ctx.Done():
				return
			}
		default:
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	gameID := ps.ByName("gameid")
	if gameID == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(png)
}

func redirectNewGame(cfg *Config, path string, sm *SessionManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gameID := sm.newSessionID()
		logf(cfg, "GAMES: Created session %s%s/%s", cfg.prefix, path, gameID)
		http.Redirect(w, r, cfg.prefix+path+"/"+gameID, http.StatusTemporaryRedirect)
	}
}

func registerManzaiGame(ctx context.Context, cfg *Config, path string, mux *httprouter.Router, director *game.Director, store *archive.Store, errs chan<- error) *SessionManager {
	sm := newSessionManager(ctx, cfg, director, store)

	mux.GET(cfg.prefix+path, redirectNewGame(cfg, path, sm))

	mux.GET(cfg.prefix+path+"/:gameid", serveIndex(cfg, errs))

	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWSForManager(cfg, sm))

	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)

	return sm
}
