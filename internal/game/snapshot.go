// internal/game/snapshot.go
package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/models"
)

// PlayerSummary is the public view of one seat.
type PlayerSummary struct {
	User      models.User `json:"user"`
	CardCount int         `json:"cardCount"`
}

// Snapshot is a plain copy of the public game state, safe to hand to renderers and
// persistence after the lock is released.
type Snapshot struct {
	GameID          uuid.UUID       `json:"gameId"`
	Chat            models.ChatID   `json:"chat"`
	Mode            Mode            `json:"mode"`
	Open            bool            `json:"open"`
	Started         bool            `json:"started"`
	Finished        bool            `json:"finished"`
	Winner          *models.User    `json:"winner,omitempty"`
	CurrentPlayer   *models.User    `json:"currentPlayer,omitempty"`
	Direction       int             `json:"direction"`
	CurrentColor    models.Color    `json:"currentColor,omitempty"`
	PendingDraw     int             `json:"pendingDraw"`
	BluffOpen       bool            `json:"bluffOpen"`
	TopDiscard      *models.Card    `json:"topDiscard,omitempty"`
	DrawPileSize    int             `json:"drawPileSize"`
	DiscardPileSize int             `json:"discardPileSize"`
	Players         []PlayerSummary `json:"players"`
	Generation      uint64          `json:"generation"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Snapshot copies the public state. Caller holds Mu.
func (g *Game) Snapshot() Snapshot {
	s := Snapshot{
		GameID:          g.ID,
		Chat:            g.Chat,
		Mode:            g.Rules.Mode,
		Open:            g.Open,
		Started:         g.Started,
		Finished:        g.finished,
		Direction:       g.direction,
		CurrentColor:    g.color,
		PendingDraw:     g.pending,
		BluffOpen:       g.bluff != nil,
		DrawPileSize:    g.deck.DrawPileSize(),
		DiscardPileSize: g.deck.DiscardPileSize(),
		Players:         make([]PlayerSummary, 0, len(g.Players)),
		Generation:      g.generation,
		CreatedAt:       g.CreatedAt,
	}
	if g.winner != nil {
		w := g.winner.User
		s.Winner = &w
	}
	if cp := g.CurrentPlayer(); cp != nil && !g.finished {
		u := cp.User
		s.CurrentPlayer = &u
	}
	if top, err := g.deck.TopDiscard(); err == nil {
		s.TopDiscard = &top
	}
	for _, p := range g.Players {
		s.Players = append(s.Players, PlayerSummary{User: p.User, CardCount: len(p.hand)})
	}
	return s
}
