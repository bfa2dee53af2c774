// internal/game/errors.go
package game

import (
	"errors"
	"fmt"
)

// Kind is the stable identifier of a rejected action, handed to the localization layer.
type Kind string

const (
	KindNone               Kind = ""
	KindNoGameInChat       Kind = "no_game_in_chat"
	KindLobbyClosed        Kind = "lobby_closed"
	KindAlreadyJoined      Kind = "already_joined"
	KindNotInGame          Kind = "not_in_game"
	KindNotEnoughPlayers   Kind = "not_enough_players"
	KindTooManyPlayers     Kind = "too_many_players"
	KindGameAlreadyStarted Kind = "game_already_started"
	KindGameNotStarted     Kind = "game_not_started"
	KindNotYourTurn        Kind = "not_your_turn"
	KindCardNotInHand      Kind = "card_not_in_hand"
	KindIllegalCard        Kind = "illegal_card"
	KindMustDraw           Kind = "must_draw"
	KindMustDrawFirst      Kind = "must_draw_first"
	KindAlreadyDrew        Kind = "already_drew"
	KindColorRequired      Kind = "color_required"
	KindNoBluff            Kind = "no_bluff_to_challenge"
	KindGameFinished       Kind = "game_already_finished"
	KindDeckExhausted      Kind = "deck_exhausted"
	KindStaleToken         Kind = "stale_token"
	KindInvariant          Kind = "invariant_violation"
	KindInternal           Kind = "internal"
)

// RuleError is a recoverable rejection of a player action.
type RuleError struct {
	Kind Kind
	msg  string
}

func (e *RuleError) Error() string { return e.msg }

func newRuleError(kind Kind, msg string) *RuleError {
	return &RuleError{Kind: kind, msg: msg}
}

var (
	ErrNoGameInChat        = newRuleError(KindNoGameInChat, "no game in this chat")
	ErrLobbyClosed         = newRuleError(KindLobbyClosed, "the lobby is closed")
	ErrAlreadyJoined       = newRuleError(KindAlreadyJoined, "player already joined")
	ErrNotInGame           = newRuleError(KindNotInGame, "player is not in this game")
	ErrNotEnoughPlayers    = newRuleError(KindNotEnoughPlayers, "not enough players")
	ErrTooManyPlayers      = newRuleError(KindTooManyPlayers, "not enough cards to deal another hand")
	ErrGameAlreadyStarted  = newRuleError(KindGameAlreadyStarted, "game already started")
	ErrGameNotStarted      = newRuleError(KindGameNotStarted, "game has not started")
	ErrNotYourTurn         = newRuleError(KindNotYourTurn, "not your turn")
	ErrCardNotInHand       = newRuleError(KindCardNotInHand, "card is not in hand")
	ErrIllegalCard         = newRuleError(KindIllegalCard, "card cannot be played now")
	ErrMustDraw            = newRuleError(KindMustDraw, "pending draw must be resolved first")
	ErrMustDrawFirst       = newRuleError(KindMustDrawFirst, "draw a card before passing")
	ErrAlreadyDrew         = newRuleError(KindAlreadyDrew, "already drew this turn")
	ErrColorRequired       = newRuleError(KindColorRequired, "a color must be chosen")
	ErrNoBluffToChallenge  = newRuleError(KindNoBluff, "there is nothing to challenge")
	ErrGameAlreadyFinished = newRuleError(KindGameFinished, "game already finished")
	ErrStaleToken          = newRuleError(KindStaleToken, "stale action token")
	ErrEmptyDiscard        = newRuleError(KindInternal, "discard pile is empty")
)

// ErrDeckExhausted means no card could be drawn even after reclaiming the discard pile.
// It cannot happen while cards are conserved and is treated as fatal.
var ErrDeckExhausted = errors.New("deck exhausted")

// InvariantError reports a structural inconsistency in a session. Always fatal.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Reason)
}

// KindOf returns the stable kind carried by err, KindNone for nil and KindInternal for
// anything unrecognised.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var re *RuleError
	if errors.As(err, &re) {
		return re.Kind
	}
	if errors.Is(err, ErrDeckExhausted) {
		return KindDeckExhausted
	}
	var ie *InvariantError
	if errors.As(err, &ie) {
		return KindInvariant
	}
	return KindInternal
}

// IsFatal reports whether err signals a broken session that must be aborted.
func IsFatal(err error) bool {
	if errors.Is(err, ErrDeckExhausted) {
		return true
	}
	var ie *InvariantError
	return errors.As(err, &ie)
}
