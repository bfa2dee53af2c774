// internal/models/card.go
package models

import (
	"fmt"
	"strings"
)

// Color is one of the four suit colors, or Wild for cards that take a chosen color.
type Color string

const (
	Red    Color = "r"
	Green  Color = "g"
	Blue   Color = "b"
	Yellow Color = "y"
	Wild   Color = "x"
)

// Colors lists the playable (choosable) colors in a fixed order.
var Colors = []Color{Red, Green, Blue, Yellow}

// Valid reports whether c is a known color, including Wild.
func (c Color) Valid() bool {
	switch c {
	case Red, Green, Blue, Yellow, Wild:
		return true
	}
	return false
}

// Choosable reports whether c may be picked as the color in force after a wild card.
func (c Color) Choosable() bool {
	return c.Valid() && c != Wild
}

// Name returns a readable color name for logs.
func (c Color) Name() string {
	switch c {
	case Red:
		return "red"
	case Green:
		return "green"
	case Blue:
		return "blue"
	case Yellow:
		return "yellow"
	case Wild:
		return "wild"
	}
	return "invalid"
}

// Rank is a card's face value.
type Rank string

const (
	Zero         Rank = "0"
	One          Rank = "1"
	Two          Rank = "2"
	Three        Rank = "3"
	Four         Rank = "4"
	Five         Rank = "5"
	Six          Rank = "6"
	Seven        Rank = "7"
	Eight        Rank = "8"
	Nine         Rank = "9"
	Skip         Rank = "skip"
	Reverse      Rank = "reverse"
	DrawTwo      Rank = "draw"
	WildCard     Rank = "colorchooser"
	WildDrawFour Rank = "draw_four"
)

// NumberRanks are the digit ranks in ascending order.
var NumberRanks = []Rank{Zero, One, Two, Three, Four, Five, Six, Seven, Eight, Nine}

// ActionRanks are the colored special ranks.
var ActionRanks = []Rank{Skip, Reverse, DrawTwo}

// IsNumber reports whether r is a digit rank.
func (r Rank) IsNumber() bool {
	return len(r) == 1 && r[0] >= '0' && r[0] <= '9'
}

// IsAction reports whether r is a colored special rank.
func (r Rank) IsAction() bool {
	return r == Skip || r == Reverse || r == DrawTwo
}

// IsWild reports whether r only exists on wild cards.
func (r Rank) IsWild() bool {
	return r == WildCard || r == WildDrawFour
}

// Card is an immutable value; two cards of the same color and rank are interchangeable.
type Card struct {
	Color Color `json:"color"`
	Rank  Rank  `json:"rank"`
}

// NewCard builds a card, validating that wild ranks sit on the wild color and nothing else does.
func NewCard(color Color, rank Rank) (Card, error) {
	if !color.Valid() {
		return Card{}, fmt.Errorf("invalid card color %q", color)
	}
	if !rank.IsNumber() && !rank.IsAction() && !rank.IsWild() {
		return Card{}, fmt.Errorf("invalid card rank %q", rank)
	}
	if rank.IsWild() != (color == Wild) {
		return Card{}, fmt.Errorf("rank %q cannot have color %q", rank, color)
	}
	return Card{Color: color, Rank: rank}, nil
}

// IsWild reports whether the card takes a chosen color when played.
func (c Card) IsWild() bool {
	return c.Color == Wild
}

// IsSpecial is true for every card that is not a plain number card.
func (c Card) IsSpecial() bool {
	return !c.Rank.IsNumber()
}

// String renders the card id, e.g. "r_5" or "x_draw_four".
func (c Card) String() string {
	return string(c.Color) + "_" + string(c.Rank)
}

// ParseCard is the inverse of String.
func ParseCard(s string) (Card, error) {
	color, rank, ok := strings.Cut(s, "_")
	if !ok {
		return Card{}, fmt.Errorf("malformed card id %q", s)
	}
	return NewCard(Color(color), Rank(rank))
}

// MarshalText lets cards travel as plain JSON strings.
func (c Card) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a card id.
func (c *Card) UnmarshalText(b []byte) error {
	parsed, err := ParseCard(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
