// internal/game/player.go
package game

import (
	"github.com/jason-s-yu/uno/internal/models"
)

// Player is one user's seat in one session.
type Player struct {
	User models.User `json:"user"`

	hand []models.Card
	game *Game
}

func newPlayer(user models.User, g *Game) *Player {
	return &Player{User: user, game: g}
}

// ID is a shortcut for the user's id.
func (p *Player) ID() models.UserID { return p.User.ID }

// Game returns the session this player belongs to.
func (p *Player) Game() *Game { return p.game }

// Hand returns a copy of the player's cards.
func (p *Player) Hand() []models.Card {
	out := make([]models.Card, len(p.hand))
	copy(out, p.hand)
	return out
}

// CardCount is the number of cards in hand.
func (p *Player) CardCount() int { return len(p.hand) }

// holds reports whether the hand contains at least one instance of c.
func (p *Player) holds(c models.Card) bool {
	for _, h := range p.hand {
		if h == c {
			return true
		}
	}
	return false
}

// take removes one instance of c from the hand.
func (p *Player) take(c models.Card) bool {
	for i, h := range p.hand {
		if h == c {
			p.hand = append(p.hand[:i], p.hand[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Player) give(cards ...models.Card) {
	p.hand = append(p.hand, cards...)
}

// hasColor reports whether the hand holds a non-wild card of the given color.
func hasColor(hand []models.Card, color models.Color) bool {
	for _, c := range hand {
		if !c.IsWild() && c.Color == color {
			return true
		}
	}
	return false
}
