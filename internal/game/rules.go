// internal/game/rules.go
package game

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects one of the fixed rule variants.
type Mode string

const (
	ModeClassic Mode = "classic"
	ModeFast    Mode = "fast"
	ModeWild    Mode = "wild"
	ModeText    Mode = "text"
	ModeWaffle  Mode = "waffle"
)

// Modes lists every supported mode.
var Modes = []Mode{ModeClassic, ModeFast, ModeWild, ModeText, ModeWaffle}

// ParseMode accepts a mode name case-insensitively. An empty name means classic.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeClassic, nil
	}
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown game mode %q", s)
}

// DeckKind names the card set a mode plays with.
type DeckKind string

const (
	DeckClassic DeckKind = "classic"
	DeckWild    DeckKind = "wild"
)

// Rules are the parameters a mode selects. Games copy them at creation.
type Rules struct {
	Mode             Mode          `json:"mode"`
	Deck             DeckKind      `json:"deck"`
	Stacking         bool          `json:"stacking"`         // DrawTwo may be answered with DrawTwo
	BluffChallenge   bool          `json:"bluffChallenge"`   // WildDrawFour may be challenged
	TurnTimeout      time.Duration `json:"turnTimeout"`      // inactivity hint for the transport, 0 = none
	MinPlayers       int           `json:"minPlayers"`       // needed to start
	MinPlayersToStay int           `json:"minPlayersToStay"` // a leave may not drop below this
	HandSize         int           `json:"handSize"`
}

// DefaultMinPlayers is the reference threshold for starting and for leaving.
const DefaultMinPlayers = 2

// RulesFor returns the rule set of a mode with the default player thresholds.
func RulesFor(mode Mode) Rules {
	r := Rules{
		Mode:             mode,
		Deck:             DeckClassic,
		Stacking:         true,
		BluffChallenge:   true,
		MinPlayers:       DefaultMinPlayers,
		MinPlayersToStay: DefaultMinPlayers,
		HandSize:         7,
	}
	switch mode {
	case ModeFast:
		r.TurnTimeout = 10 * time.Second
	case ModeWild:
		r.Deck = DeckWild
	case ModeWaffle:
		r.Stacking = false
		r.BluffChallenge = false
	case ModeClassic, ModeText:
	default:
		r.Mode = ModeClassic
	}
	return r
}

// WithThresholds overrides the player thresholds, ignoring non-positive values.
func (r Rules) WithThresholds(minPlayers, minToStay int) Rules {
	if minPlayers > 0 {
		r.MinPlayers = minPlayers
	}
	if minToStay > 0 {
		r.MinPlayersToStay = minToStay
	}
	return r
}
