// internal/manager/manager.go
package manager

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jason-s-yu/uno/internal/anticheat"
	"github.com/jason-s-yu/uno/internal/game"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/sirupsen/logrus"
)

// Recorder receives every applied action, e.g. the Redis historian queue.
type Recorder interface {
	Record(ctx context.Context, rec game.ActionRecord) error
}

// ResultStore persists a game once it finished or was ended.
type ResultStore interface {
	SaveResult(ctx context.Context, snap game.Snapshot) error
}

// Options configure a Manager. Zero values are usable.
type Options struct {
	Logger           *logrus.Logger
	Recorder         Recorder
	Results          ResultStore
	Tokens           *anticheat.Issuer
	MinPlayers       int
	MinPlayersToStay int
	// NewRand seeds each new game's shuffle; nil uses a random seed.
	NewRand func() *rand.Rand
	// PersistTimeout bounds each Recorder/ResultStore call.
	PersistTimeout time.Duration
	// PersistBuffer is how many persistence calls may wait before game actions block (256).
	PersistBuffer int
}

// persistJob is one Recorder or ResultStore call.
type persistJob func(ctx context.Context)

// Manager is the registry of every running session, keyed by chat and by user.
//
// Lock order is registry (mu) before session (Game.Mu). Structural changes (new, join, leave,
// end) hold mu for writing throughout; game actions resolve their game under a read lock,
// release it and only then take the session lock. Only a join, under mu, holds two session
// locks at once (the new game's, then the older one's).
type Manager struct {
	mu          sync.RWMutex
	chatGames   map[models.ChatID][]*game.Game
	userPlayers map[models.UserID][]*game.Player

	tokens   *anticheat.Issuer
	recorder Recorder
	results  ResultStore
	opts     Options
	log      *logrus.Logger

	// persistence calls run one at a time in the order they were queued
	persistMu   sync.Mutex
	persistCh   chan persistJob
	persistDone chan struct{}
	closed      bool
}

// New builds an empty registry.
func New(opts Options) (*Manager, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if opts.PersistBuffer <= 0 {
		opts.PersistBuffer = 256
	}
	tokens := opts.Tokens
	if tokens == nil {
		var err error
		if tokens, err = anticheat.NewIssuer(); err != nil {
			return nil, fmt.Errorf("creating token issuer: %w", err)
		}
	}
	m := &Manager{
		chatGames:   make(map[models.ChatID][]*game.Game),
		userPlayers: make(map[models.UserID][]*game.Player),
		tokens:      tokens,
		recorder:    opts.Recorder,
		results:     opts.Results,
		opts:        opts,
		log:         opts.Logger,
		persistCh:   make(chan persistJob, opts.PersistBuffer),
		persistDone: make(chan struct{}),
	}
	go m.persistLoop()
	return m, nil
}

// Close drains the persistence queue. Actions applied afterwards are no longer persisted.
func (m *Manager) Close() {
	m.persistMu.Lock()
	if !m.closed {
		m.closed = true
		close(m.persistCh)
	}
	m.persistMu.Unlock()
	<-m.persistDone
}

func (m *Manager) persistLoop() {
	defer close(m.persistDone)
	for job := range m.persistCh {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.PersistTimeout)
		job(ctx)
		cancel()
	}
}

// enqueue appends job to the persistence queue. Callers hold the session lock of the game
// the job belongs to, so a game's records are queued in action order.
func (m *Manager) enqueue(job persistJob) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	if m.closed {
		m.log.Warn("manager closed, dropping persistence call")
		return
	}
	m.persistCh <- job
}

// Tokens exposes the anti-replay issuer shared with the transport.
func (m *Manager) Tokens() *anticheat.Issuer { return m.tokens }

// NewGame pushes a new lobby onto the chat's stack. Older sessions in the chat are untouched.
func (m *Manager) NewGame(chat models.ChatID, mode game.Mode) *game.Game {
	rules := game.RulesFor(mode).WithThresholds(m.opts.MinPlayers, m.opts.MinPlayersToStay)
	var rng *rand.Rand
	if m.opts.NewRand != nil {
		rng = m.opts.NewRand()
	}
	g := game.New(chat, game.Options{
		Rules:  rules,
		Rand:   rng,
		Logger: logrus.NewEntry(m.log),
	})

	m.mu.Lock()
	m.chatGames[chat] = append(m.chatGames[chat], g)
	depth := len(m.chatGames[chat])
	m.mu.Unlock()

	m.advanceToken(chat)
	m.log.WithFields(logrus.Fields{"chat": chat, "game": g.ID, "mode": rules.Mode, "depth": depth}).Info("new game")
	return g
}

// topLocked returns the newest game of chat. Caller holds mu.
func (m *Manager) topLocked(chat models.ChatID) *game.Game {
	games := m.chatGames[chat]
	if len(games) == 0 {
		return nil
	}
	return games[len(games)-1]
}

// playerInChatLocked finds user's membership in chat. Caller holds mu.
func (m *Manager) playerInChatLocked(user models.UserID, chat models.ChatID) *game.Player {
	for _, p := range m.userPlayers[user] {
		if g := p.Game(); g != nil && g.Chat == chat {
			return p
		}
	}
	return nil
}

// JoinGame seats user in the newest game of chat. A membership the user still holds in an older
// game of the same chat is given up first.
func (m *Manager) JoinGame(user models.User, chat models.ChatID) (*game.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.topLocked(chat)
	if g == nil {
		return nil, game.ErrNoGameInChat
	}

	// g stays locked while the older seat is given up so the seat checked here is still
	// free when it is taken. Only structural ops hold two session locks, and they hold mu.
	g.Mu.Lock()
	defer g.Mu.Unlock()
	if err := g.CanAdd(user.ID); err != nil {
		return nil, err
	}

	if old := m.playerInChatLocked(user.ID, chat); old != nil {
		m.abandonLocked(user.ID, old)
	}

	p, err := g.AddPlayer(user)
	if err != nil {
		return nil, err
	}
	m.record(g.Record(user.ID, "action_join", nil))
	m.advanceToken(chat)

	m.userPlayers[user.ID] = append(m.userPlayers[user.ID], p)
	m.log.WithFields(logrus.Fields{"chat": chat, "game": g.ID, "user": user.ID}).Info("player joined")
	return p, nil
}

// abandonLocked removes user's seat in an older game. When that game would become unviable it
// is ended instead. Caller holds mu.
func (m *Manager) abandonLocked(user models.UserID, p *game.Player) {
	g := p.Game()
	g.Mu.Lock()
	_, err := g.RemovePlayer(user)
	if err == nil {
		m.record(g.Record(user, "action_leave", nil))
	}
	g.Mu.Unlock()
	switch {
	case err == nil:
		m.dropPlayerLocked(user, p)
	case errors.Is(err, game.ErrNotEnoughPlayers):
		m.removeGameLocked(g, user)
	default:
		m.log.WithError(err).WithField("user", user).Warn("could not leave previous game")
	}
}

// LeaveGame removes user from the newest game of chat.
func (m *Manager) LeaveGame(user models.UserID, chat models.ChatID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.topLocked(chat)
	if g == nil {
		return game.ErrNoGameInChat
	}
	g.Mu.Lock()
	p, err := g.RemovePlayer(user)
	if err == nil {
		m.record(g.Record(user, "action_leave", nil))
		m.advanceToken(chat)
	}
	g.Mu.Unlock()
	if errors.Is(err, game.ErrNotInGame) {
		return game.ErrNoGameInChat
	}
	if err != nil {
		return err
	}

	m.dropPlayerLocked(user, p)
	m.log.WithFields(logrus.Fields{"chat": chat, "game": g.ID, "user": user}).Info("player left")
	return nil
}

// dropPlayerLocked unregisters one membership, deleting the user entry when it empties.
// Caller holds mu.
func (m *Manager) dropPlayerLocked(user models.UserID, p *game.Player) {
	players := m.userPlayers[user]
	for i, q := range players {
		if q == p {
			players = append(players[:i], players[i+1:]...)
			break
		}
	}
	if len(players) == 0 {
		delete(m.userPlayers, user)
		return
	}
	m.userPlayers[user] = players
}

// EndGame removes the newest game of chat whatever its state, together with all its players.
// Authorization is the caller's concern.
func (m *Manager) EndGame(chat models.ChatID, by models.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.topLocked(chat)
	if g == nil {
		return game.ErrNoGameInChat
	}
	m.removeGameLocked(g, by)
	return nil
}

// removeGameLocked takes g out of its chat's stack and unregisters its players. Caller holds mu.
func (m *Manager) removeGameLocked(g *game.Game, by models.UserID) {
	g.Mu.Lock()
	g.MarkEnded()
	players := append([]*game.Player(nil), g.Players...)
	m.record(g.Record(by, "action_end_game", nil))
	m.saveResult(g.Snapshot())
	g.Mu.Unlock()

	for _, p := range players {
		m.dropPlayerLocked(p.ID(), p)
	}

	games := m.chatGames[g.Chat]
	for i, x := range games {
		if x == g {
			games = append(games[:i], games[i+1:]...)
			break
		}
	}
	if len(games) == 0 {
		delete(m.chatGames, g.Chat)
		m.tokens.Forget(g.Chat)
	} else {
		m.chatGames[g.Chat] = games
		m.advanceToken(g.Chat)
	}

	m.log.WithFields(logrus.Fields{"chat": g.Chat, "game": g.ID, "by": by, "remaining": len(games)}).Info("game ended")
}

// abort ends a session that reported a fatal error, if it is still registered.
func (m *Manager) abort(g *game.Game, cause error) {
	m.log.WithError(cause).WithFields(logrus.Fields{"chat": g.Chat, "game": g.ID}).Error("aborting broken session")
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.chatGames[g.Chat] {
		if x == g {
			m.removeGameLocked(g, 0)
			return
		}
	}
}

// GamesInChat returns a copy of chat's stack, oldest first.
func (m *Manager) GamesInChat(chat models.ChatID) []*game.Game {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*game.Game(nil), m.chatGames[chat]...)
}

// PlayersOf returns a copy of user's memberships.
func (m *Manager) PlayersOf(user models.UserID) []*game.Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*game.Player(nil), m.userPlayers[user]...)
}

// ChatIDs lists the chats with at least one session.
func (m *Manager) ChatIDs() []models.ChatID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]models.ChatID, 0, len(m.chatGames))
	for id := range m.chatGames {
		ids = append(ids, id)
	}
	return ids
}

// advanceToken starts a new render generation for chat.
func (m *Manager) advanceToken(chat models.ChatID) {
	if _, err := m.tokens.Advance(chat); err != nil {
		m.log.WithError(err).WithField("chat", chat).Error("failed to mint action token")
	}
}

// record queues an action for the recorder. Caller holds the game's session lock.
func (m *Manager) record(rec game.ActionRecord) {
	if m.recorder == nil {
		return
	}
	m.enqueue(func(ctx context.Context) {
		if err := m.recorder.Record(ctx, rec); err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{"game": rec.GameID, "action": rec.ActionType}).Warn("failed to record action")
		}
	})
}

// saveResult queues a final snapshot for the result store. Caller holds the game's session lock.
func (m *Manager) saveResult(snap game.Snapshot) {
	if m.results == nil {
		return
	}
	m.enqueue(func(ctx context.Context) {
		if err := m.results.SaveResult(ctx, snap); err != nil {
			m.log.WithError(err).WithField("game", snap.GameID).Warn("failed to save game result")
		}
	})
}
