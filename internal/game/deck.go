// internal/game/deck.go
package game

import (
	"errors"
	"math/rand/v2"
	"slices"

	"github.com/jason-s-yu/uno/internal/models"
)

// Deck holds the face-down draw pile and the face-up discard pile of one session.
// The last element of each slice is its top card. Not safe for concurrent use; the owning
// game's lock covers it.
type Deck struct {
	draw    []models.Card
	discard []models.Card
	total   int
	rng     *rand.Rand

	// reshuffles counts how often the discard pile was reclaimed, for logs.
	reshuffles int
}

// NewDeck builds and shuffles the card set of the given kind.
func NewDeck(kind DeckKind, rng *rand.Rand) *Deck {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	cards := buildCards(kind)
	d := &Deck{
		draw:  cards,
		total: len(cards),
		rng:   rng,
	}
	d.shuffle(d.draw)
	return d
}

// buildCards returns the unshuffled card set.
// Classic: per color one 0, two of every 1-9, Skip, Reverse and DrawTwo; four of each wild (108).
// Wild: per color one of 0-5 and four of every action; eight of each wild (88).
func buildCards(kind DeckKind) []models.Card {
	var cards []models.Card
	add := func(c models.Card, n int) {
		for i := 0; i < n; i++ {
			cards = append(cards, c)
		}
	}
	for _, color := range models.Colors {
		switch kind {
		case DeckWild:
			for _, r := range models.NumberRanks[:6] {
				add(models.Card{Color: color, Rank: r}, 1)
			}
			for _, r := range models.ActionRanks {
				add(models.Card{Color: color, Rank: r}, 4)
			}
		default:
			add(models.Card{Color: color, Rank: models.Zero}, 1)
			for _, r := range models.NumberRanks[1:] {
				add(models.Card{Color: color, Rank: r}, 2)
			}
			for _, r := range models.ActionRanks {
				add(models.Card{Color: color, Rank: r}, 2)
			}
		}
	}
	wilds := 4
	if kind == DeckWild {
		wilds = 8
	}
	add(models.Card{Color: models.Wild, Rank: models.WildCard}, wilds)
	add(models.Card{Color: models.Wild, Rank: models.WildDrawFour}, wilds)
	return cards
}

func (d *Deck) shuffle(cards []models.Card) {
	d.rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

// Total is the fixed number of cards the deck was built with.
func (d *Deck) Total() int { return d.total }

// DrawPileSize is the number of face-down cards.
func (d *Deck) DrawPileSize() int { return len(d.draw) }

// DiscardPileSize is the number of face-up cards.
func (d *Deck) DiscardPileSize() int { return len(d.discard) }

// Reshuffles reports how many times the discard pile has been reclaimed.
func (d *Deck) Reshuffles() int { return d.reshuffles }

// Draw removes n cards from the top of the draw pile, reclaiming the discard pile (minus its
// top card) whenever the draw pile runs out. On ErrDeckExhausted nothing is removed.
func (d *Deck) Draw(n int) ([]models.Card, error) {
	if n <= 0 {
		return nil, nil
	}
	if n > len(d.draw)+max(len(d.discard)-1, 0) {
		return nil, ErrDeckExhausted
	}
	out := make([]models.Card, 0, n)
	for len(out) < n {
		if len(d.draw) == 0 {
			d.reclaim()
		}
		top := len(d.draw) - 1
		out = append(out, d.draw[top])
		d.draw = d.draw[:top]
	}
	return out, nil
}

// reclaim moves everything but the top discard back into the draw pile and shuffles it.
func (d *Deck) reclaim() {
	if len(d.discard) <= 1 {
		return
	}
	top := d.discard[len(d.discard)-1]
	d.draw = append(d.draw, d.discard[:len(d.discard)-1]...)
	d.discard = []models.Card{top}
	d.shuffle(d.draw)
	d.reshuffles++
}

// TopDiscard peeks at the most recently played card.
func (d *Deck) TopDiscard() (models.Card, error) {
	if len(d.discard) == 0 {
		return models.Card{}, ErrEmptyDiscard
	}
	return d.discard[len(d.discard)-1], nil
}

// Discard puts a card face up on top of the discard pile.
func (d *Deck) Discard(c models.Card) {
	d.discard = append(d.discard, c)
}

// Return slides cards under the top discard so they are reclaimed on the next reshuffle.
// With an empty discard pile they go back into the draw pile instead.
func (d *Deck) Return(cards []models.Card) {
	if len(cards) == 0 {
		return
	}
	if len(d.discard) == 0 {
		d.draw = append(d.draw, cards...)
		d.shuffle(d.draw)
		return
	}
	top := d.discard[len(d.discard)-1]
	rest := append(d.discard[:len(d.discard)-1:len(d.discard)-1], cards...)
	d.discard = append(rest, top)
}

// errNoStarter means only special cards are left outside the hands.
var errNoStarter = errors.New("no number card left for the starter")

// flipStarter turns draw-pile cards face up until a number card lies on top.
// The special cards flipped on the way stay buried underneath it.
func (d *Deck) flipStarter() (models.Card, error) {
	if !slices.ContainsFunc(d.draw, isNumber) && !slices.ContainsFunc(d.discard, isNumber) {
		return models.Card{}, errNoStarter
	}
	for {
		cards, err := d.Draw(1)
		if err != nil {
			return models.Card{}, err
		}
		d.Discard(cards[0])
		if !cards[0].IsSpecial() {
			return cards[0], nil
		}
	}
}

func isNumber(c models.Card) bool { return !c.IsSpecial() }

// collect puts cards and the whole discard pile back into the draw pile and shuffles it.
func (d *Deck) collect(cards []models.Card) {
	d.draw = append(d.draw, d.discard...)
	d.draw = append(d.draw, cards...)
	d.discard = nil
	d.shuffle(d.draw)
}
