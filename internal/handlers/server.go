// internal/handlers/server.go
package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/auth"
	"github.com/jason-s-yu/uno/internal/game"
	"github.com/jason-s-yu/uno/internal/manager"
	"github.com/jason-s-yu/uno/internal/middleware"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/sirupsen/logrus"
)

// Server ties the game manager to the chat room connections.
type Server struct {
	Manager  *manager.Manager
	Sessions *auth.Sessions
	Hub      *Hub

	// TurnTimeout picks the inactivity limit of a mode; zero disables the timer.
	TurnTimeout func(game.Mode) time.Duration

	logger *logrus.Logger

	timersMu sync.Mutex
	timers   map[models.ChatID]*time.Timer
	closing  bool
}

// NewServer wires mgr and sessions to a fresh hub, with turn timeouts taken from each mode's rules.
func NewServer(logger *logrus.Logger, mgr *manager.Manager, sessions *auth.Sessions) *Server {
	return &Server{
		Manager:  mgr,
		Sessions: sessions,
		Hub:      NewHub(),
		TurnTimeout: func(mode game.Mode) time.Duration {
			return game.RulesFor(mode).TurnTimeout
		},
		logger: logger,
		timers: make(map[models.ChatID]*time.Timer),
	}
}

// Routes registers every endpoint behind the logging middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", HealthHandler)
	mux.HandleFunc("POST /auth/guest", GuestHandler(s.Sessions))
	mux.HandleFunc("GET /auth/me", MeHandler(s.Sessions))
	mux.HandleFunc("GET /chat/ws/{chatID}", ChatWSHandler(s.logger, s))
	return middleware.LogMiddleware(s.logger)(mux)
}

// Close stops every turn timer and disconnects all clients.
func (s *Server) Close() {
	s.timersMu.Lock()
	s.closing = true
	for chat, t := range s.timers {
		t.Stop()
		delete(s.timers, chat)
	}
	s.timersMu.Unlock()

	for _, conn := range s.Hub.All() {
		conn.Close(ServerShutdownError, "server shutting down")
	}
}

// HealthHandler answers load balancer probes.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// broadcast renders the chat's session for each of its connections and re-arms the turn timer.
func (s *Server) broadcast(chat models.ChatID) {
	for _, conn := range s.Hub.Connections(chat) {
		conn.Write(s.logger, s.stateFor(chat, conn.User.ID))
	}
	if v, err := s.Manager.View(chat, 0); err == nil {
		s.schedule(chat, &v.State)
	} else {
		s.schedule(chat, nil)
	}
}

// stateFor renders one user's view. A chat without a session renders an empty state.
func (s *Server) stateFor(chat models.ChatID, user models.UserID) stateMessage {
	v, err := s.Manager.View(chat, user)
	if err != nil {
		return stateMessage{Type: "state"}
	}
	return stateMessage{Type: "state", State: &v.State, Hand: v.Hand, Playable: v.Playable, Token: v.Token}
}

// schedule arms the inactivity timer for a running session, replacing any earlier one.
func (s *Server) schedule(chat models.ChatID, snap *game.Snapshot) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if t, ok := s.timers[chat]; ok {
		t.Stop()
		delete(s.timers, chat)
	}
	if s.closing || snap == nil || !snap.Started || snap.Finished {
		return
	}
	d := s.TurnTimeout(snap.Mode)
	if d <= 0 {
		return
	}
	gameID, gen := snap.GameID, snap.Generation
	s.timers[chat] = time.AfterFunc(d, func() { s.expire(chat, gameID, gen) })
}

// expire skips the current player if nothing happened since the timer was armed.
func (s *Server) expire(chat models.ChatID, gameID uuid.UUID, generation uint64) {
	v, err := s.Manager.View(chat, 0)
	if err != nil || v.State.GameID != gameID {
		return
	}
	skipped, err := s.Manager.SkipIdlePlayer(chat, generation)
	if err != nil {
		s.logger.WithError(err).WithField("chat", chat).Debug("turn timer expired without skipping")
		return
	}
	for _, conn := range s.Hub.Connections(chat) {
		conn.Write(s.logger, map[string]interface{}{"type": "skipped", "user": skipped})
	}
	s.broadcast(chat)
}
