// internal/manager/manager_test.go
package manager

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/game"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecorder struct {
	mu      sync.Mutex
	records []game.ActionRecord
	results []game.Snapshot
}

func (r *memRecorder) Record(_ context.Context, rec game.ActionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *memRecorder) SaveResult(_ context.Context, snap game.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, snap)
	return nil
}

func (r *memRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.ActionType)
	}
	return out
}

func newTestManager(t *testing.T, rec *memRecorder) *Manager {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	opts := Options{
		Logger:  logger,
		NewRand: func() *rand.Rand { return rand.New(rand.NewPCG(3, 5)) },
	}
	if rec != nil {
		opts.Recorder = rec
		opts.Results = rec
	}
	m, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func user(id int) models.User {
	return models.User{ID: models.UserID(id), FirstName: "user"}
}

const (
	chat0 models.ChatID = -1
	chat1 models.ChatID = -2
)

func TestNewGame(t *testing.T) {
	m := newTestManager(t, nil)
	g0 := m.NewGame(chat0, game.ModeClassic)
	g1 := m.NewGame(chat1, game.ModeClassic)
	g2 := m.NewGame(chat1, game.ModeWaffle)

	assert.Equal(t, []*game.Game{g0}, m.GamesInChat(chat0))
	assert.Equal(t, []*game.Game{g1, g2}, m.GamesInChat(chat1))
	assert.ElementsMatch(t, []models.ChatID{chat0, chat1}, m.ChatIDs())
	assert.Equal(t, game.ModeWaffle, g2.Rules.Mode)
	assert.True(t, g0.Open)
	assert.False(t, g0.Started)
}

func TestJoinGame(t *testing.T) {
	m := newTestManager(t, nil)

	_, err := m.JoinGame(user(0), chat0)
	assert.ErrorIs(t, err, game.ErrNoGameInChat)

	g0 := m.NewGame(chat0, game.ModeClassic)
	p, err := m.JoinGame(user(0), chat0)
	require.NoError(t, err)
	assert.Same(t, g0, p.Game())

	_, err = m.JoinGame(user(0), chat0)
	assert.ErrorIs(t, err, game.ErrAlreadyJoined)

	require.NoError(t, m.SetOpen(chat0, 0, false))
	_, err = m.JoinGame(user(1), chat0)
	assert.ErrorIs(t, err, game.ErrLobbyClosed)

	require.NoError(t, m.SetOpen(chat0, 0, true))
	_, err = m.JoinGame(user(1), chat0)
	require.NoError(t, err)

	assert.Len(t, g0.Players, 2)
	assert.Len(t, m.PlayersOf(0), 1)
	assert.Len(t, m.PlayersOf(1), 1)
}

func TestLeaveGame(t *testing.T) {
	m := newTestManager(t, nil)
	g := m.NewGame(chat0, game.ModeClassic)
	for i := 0; i < 2; i++ {
		_, err := m.JoinGame(user(i), chat0)
		require.NoError(t, err)
	}

	assert.ErrorIs(t, m.LeaveGame(2, chat0), game.ErrNoGameInChat)
	assert.ErrorIs(t, m.LeaveGame(0, chat1), game.ErrNoGameInChat)
	assert.ErrorIs(t, m.LeaveGame(0, chat0), game.ErrNotEnoughPlayers)

	_, err := m.JoinGame(user(2), chat0)
	require.NoError(t, err)
	require.NoError(t, m.LeaveGame(0, chat0))

	assert.Empty(t, m.PlayersOf(0))
	assert.Len(t, g.Players, 2)
	assert.Nil(t, g.Player(0))
}

func TestEndGame(t *testing.T) {
	m := newTestManager(t, nil)
	g0 := m.NewGame(chat0, game.ModeClassic)
	for i := 0; i < 2; i++ {
		_, err := m.JoinGame(user(i), chat0)
		require.NoError(t, err)
	}
	g1 := m.NewGame(chat0, game.ModeClassic)
	_, err := m.JoinGame(user(2), chat0)
	require.NoError(t, err)

	require.NoError(t, m.EndGame(chat0, 0))
	assert.Equal(t, []*game.Game{g0}, m.GamesInChat(chat0))
	assert.True(t, g1.Ended())
	assert.Empty(t, m.PlayersOf(2))
	assert.Len(t, m.PlayersOf(0), 1)

	require.NoError(t, m.EndGame(chat0, 0))
	assert.Empty(t, m.GamesInChat(chat0))
	assert.Empty(t, m.ChatIDs())
	for i := 0; i < 3; i++ {
		assert.Empty(t, m.PlayersOf(models.UserID(i)))
	}

	assert.ErrorIs(t, m.EndGame(chat0, 0), game.ErrNoGameInChat)
}

func TestJoinNewerGameLeavesOlderOne(t *testing.T) {
	m := newTestManager(t, nil)
	g0 := m.NewGame(chat0, game.ModeClassic)
	for i := 0; i < 3; i++ {
		_, err := m.JoinGame(user(i), chat0)
		require.NoError(t, err)
	}
	g1 := m.NewGame(chat0, game.ModeClassic)

	p, err := m.JoinGame(user(0), chat0)
	require.NoError(t, err)
	assert.Same(t, g1, p.Game())
	assert.Nil(t, g0.Player(0))
	assert.Len(t, m.PlayersOf(0), 1)

	// g0 would drop below two players, so it is ended instead
	_, err = m.JoinGame(user(1), chat0)
	require.NoError(t, err)
	assert.True(t, g0.Ended())
	assert.Equal(t, []*game.Game{g1}, m.GamesInChat(chat0))
	assert.Empty(t, m.PlayersOf(2))
}

func TestActionsBeforeAnyGame(t *testing.T) {
	m := newTestManager(t, nil)
	assert.ErrorIs(t, m.StartGame(chat0, 0), game.ErrNoGameInChat)
	_, err := m.DrawCards(chat0, 0)
	assert.ErrorIs(t, err, game.ErrNoGameInChat)
	_, err = m.SkipPlayer(chat0)
	assert.ErrorIs(t, err, game.ErrNoGameInChat)

	m.NewGame(chat0, game.ModeClassic)
	_, err = m.DrawCards(chat0, 9)
	assert.ErrorIs(t, err, game.ErrNotInGame)
}

func startedGame(t *testing.T, m *Manager, chat models.ChatID, n int) *game.Game {
	t.Helper()
	g := m.NewGame(chat, game.ModeClassic)
	for i := 0; i < n; i++ {
		_, err := m.JoinGame(user(i), chat)
		require.NoError(t, err)
	}
	require.NoError(t, m.StartGame(chat, 0))
	return g
}

func TestStartAndView(t *testing.T) {
	rec := &memRecorder{}
	m := newTestManager(t, rec)
	g := startedGame(t, m, chat0, 3)

	assert.ErrorIs(t, m.StartGame(chat0, 0), game.ErrGameAlreadyStarted)

	v, err := m.View(chat0, 0)
	require.NoError(t, err)
	assert.True(t, v.State.Started)
	assert.Len(t, v.Hand, 7)
	require.NotNil(t, v.State.CurrentPlayer)
	assert.Equal(t, models.UserID(0), v.State.CurrentPlayer.ID)
	assert.NotEmpty(t, v.Token)

	spectator, err := m.View(chat0, 42)
	require.NoError(t, err)
	assert.Empty(t, spectator.Hand)
	assert.Equal(t, g.ID, spectator.State.GameID)
	assert.Equal(t, v.Token, spectator.Token)

	m.Close()
	assert.Equal(t, []string{"action_join", "action_join", "action_join", "action_start"}, rec.types())
}

func TestVoluntaryDrawAndPass(t *testing.T) {
	m := newTestManager(t, nil)
	startedGame(t, m, chat0, 2)

	assert.ErrorIs(t, m.PassTurn(chat0, 0), game.ErrMustDrawFirst)
	_, err := m.DrawCards(chat0, 1)
	assert.ErrorIs(t, err, game.ErrNotYourTurn)

	drawn, err := m.DrawCards(chat0, 0)
	require.NoError(t, err)
	assert.Len(t, drawn, 1)
	require.NoError(t, m.PassTurn(chat0, 0))

	v, err := m.View(chat0, 0)
	require.NoError(t, err)
	assert.Len(t, v.Hand, 8)
	assert.Equal(t, models.UserID(1), v.State.CurrentPlayer.ID)
}

func TestSkipPlayer(t *testing.T) {
	m := newTestManager(t, nil)
	startedGame(t, m, chat0, 2)

	skipped, err := m.SkipPlayer(chat0)
	require.NoError(t, err)
	assert.Equal(t, models.UserID(0), skipped)

	v, err := m.View(chat0, 0)
	require.NoError(t, err)
	assert.Len(t, v.Hand, 8)
	assert.Equal(t, models.UserID(1), v.State.CurrentPlayer.ID)
}

func TestActionOnEndedGameIsRejected(t *testing.T) {
	m := newTestManager(t, nil)
	g := startedGame(t, m, chat0, 2)

	// simulate a removal that raced with a resolved action
	g.Mu.Lock()
	g.MarkEnded()
	g.Mu.Unlock()

	_, err := m.DrawCards(chat0, 0)
	assert.ErrorIs(t, err, game.ErrNoGameInChat)
	_, err = m.View(chat0, 0)
	assert.ErrorIs(t, err, game.ErrNoGameInChat)
}

// playOut drives a game with whatever the current player can do and returns the number of
// actions applied.
func playOut(t *testing.T, m *Manager, chat models.ChatID, limit int) int {
	t.Helper()
	applied := 0
	for i := 0; i < limit; i++ {
		v, err := m.View(chat, 0)
		require.NoError(t, err)
		if v.State.Finished {
			break
		}
		cur := v.State.CurrentPlayer.ID
		if v, err = m.View(chat, cur); err != nil {
			t.Fatal(err)
		}

		switch {
		case len(v.Playable) > 0:
			c := v.Playable[0]
			color := models.Color("")
			if c.IsWild() {
				color = models.Red
			}
			require.NoError(t, m.PlayCard(chat, cur, c, color))
		case v.State.BluffOpen && i%2 == 0:
			_, err := m.ChallengeBluff(chat, cur)
			require.NoError(t, err)
		default:
			_, err := m.DrawCards(chat, cur)
			if errors.Is(err, game.ErrAlreadyDrew) {
				require.NoError(t, m.PassTurn(chat, cur))
			} else {
				require.NoError(t, err)
			}
		}
		applied++
	}
	return applied
}

func TestPlayOutKeepsInvariants(t *testing.T) {
	rec := &memRecorder{}
	m := newTestManager(t, rec)
	g := startedGame(t, m, chat0, 4)

	playOut(t, m, chat0, 400)

	g.Mu.Lock()
	require.NoError(t, g.CheckInvariants())
	finished := g.Finished()
	g.Mu.Unlock()

	m.Close()
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if finished {
		require.Len(t, rec.results, 1)
		assert.True(t, rec.results[0].Finished)
		assert.NotNil(t, rec.results[0].Winner)
	}
	// one game, one queue: records arrive numbered 1..n in order
	for i, r := range rec.records {
		assert.Equal(t, i+1, r.ActionIndex)
	}
}

func TestRecordsArriveInActionOrder(t *testing.T) {
	rec := &memRecorder{}
	m := newTestManager(t, rec)
	const chats = 4
	for c := 0; c < chats; c++ {
		startedGame(t, m, models.ChatID(200+c), 3)
	}

	var wg sync.WaitGroup
	for c := 0; c < chats; c++ {
		chat := models.ChatID(200 + c)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 30; i++ {
				_, _ = m.SkipPlayer(chat)
			}
		}()
	}
	wg.Wait()
	m.Close()
	m.Close()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	next := make(map[uuid.UUID]int)
	for _, r := range rec.records {
		next[r.GameID]++
		assert.Equal(t, next[r.GameID], r.ActionIndex, "game %s", r.GameID)
	}
	assert.Len(t, next, chats)
}

func TestFullLobbySurvivesJoinAndStart(t *testing.T) {
	m := newTestManager(t, nil)
	g := m.NewGame(chat0, game.ModeWild)
	for i := 0; i < 12; i++ {
		_, err := m.JoinGame(user(i), chat0)
		require.NoError(t, err)
	}
	_, err := m.JoinGame(user(12), chat0)
	assert.ErrorIs(t, err, game.ErrTooManyPlayers)
	assert.Empty(t, m.PlayersOf(12))

	// twelve hands always fit; the starter may not, which is refused without ending the game
	if err := m.StartGame(chat0, 0); err != nil {
		assert.ErrorIs(t, err, game.ErrTooManyPlayers)
	}
	assert.False(t, g.Ended())
	assert.Equal(t, []*game.Game{g}, m.GamesInChat(chat0))
	assert.Len(t, m.PlayersOf(0), 1)
}

func TestRefusedJoinKeepsOlderSeat(t *testing.T) {
	m := newTestManager(t, nil)
	g0 := m.NewGame(chat0, game.ModeClassic)
	for i := 0; i < 2; i++ {
		_, err := m.JoinGame(user(i), chat0)
		require.NoError(t, err)
	}
	m.NewGame(chat0, game.ModeWild)
	for i := 100; i < 112; i++ {
		_, err := m.JoinGame(user(i), chat0)
		require.NoError(t, err)
	}

	_, err := m.JoinGame(user(0), chat0)
	assert.ErrorIs(t, err, game.ErrTooManyPlayers)
	assert.False(t, g0.Ended())
	require.Len(t, m.PlayersOf(0), 1)
	assert.Same(t, g0, m.PlayersOf(0)[0].Game())
	assert.NotNil(t, g0.Player(0))
}

func TestConcurrentChats(t *testing.T) {
	m := newTestManager(t, nil)
	const chats = 8

	var wg sync.WaitGroup
	for c := 0; c < chats; c++ {
		chat := models.ChatID(100 + c)
		startedGame(t, m, chat, 3)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				v, err := m.View(chat, 0)
				if err != nil || v.State.Finished {
					return
				}
				cur := v.State.CurrentPlayer.ID
				if _, err := m.DrawCards(chat, cur); err != nil {
					_ = m.PassTurn(chat, cur)
				}
				_, _ = m.View(chat, cur)
			}
		}()
		// a second writer racing on the same chat
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, _ = m.SkipPlayer(chat)
			}
		}()
	}
	wg.Wait()

	for _, chat := range m.ChatIDs() {
		for _, g := range m.GamesInChat(chat) {
			g.Mu.Lock()
			assert.NoError(t, g.CheckInvariants())
			g.Mu.Unlock()
		}
	}
}

func TestSkipIdlePlayerChecksGeneration(t *testing.T) {
	m := newTestManager(t, nil)
	g := startedGame(t, m, chat0, 2)

	g.Mu.Lock()
	gen := g.Generation()
	g.Mu.Unlock()

	_, err := m.DrawCards(chat0, 0)
	require.NoError(t, err)
	_, err = m.SkipIdlePlayer(chat0, gen)
	assert.ErrorIs(t, err, game.ErrStaleToken)

	g.Mu.Lock()
	gen = g.Generation()
	g.Mu.Unlock()
	skipped, err := m.SkipIdlePlayer(chat0, gen)
	require.NoError(t, err)
	assert.Equal(t, models.UserID(0), skipped)
}
