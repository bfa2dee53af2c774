// internal/manager/dispatch.go
package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/jason-s-yu/uno/internal/game"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/sirupsen/logrus"
)

// Intent names what a chat command or button press asks for.
type Intent string

const (
	IntentNew       Intent = "new"
	IntentJoin      Intent = "join"
	IntentLeave     Intent = "leave"
	IntentStart     Intent = "start"
	IntentOpen      Intent = "open"
	IntentClose     Intent = "close"
	IntentPlay      Intent = "play"
	IntentDraw      Intent = "draw"
	IntentPass      Intent = "pass"
	IntentChallenge Intent = "challenge"
	IntentEnd       Intent = "end"
)

// InGame reports whether the intent is a move inside a running game. Moves must carry the
// chat's current action token.
func (i Intent) InGame() bool {
	switch i {
	case IntentPlay, IntentDraw, IntentPass, IntentChallenge:
		return true
	}
	return false
}

// Action is one decoded user input.
type Action struct {
	Chat   models.ChatID `json:"chat"`
	User   models.User   `json:"user"`
	Intent Intent        `json:"intent"`
	Card   models.Card   `json:"card"`
	Color  models.Color  `json:"color,omitempty"`
	Mode   game.Mode     `json:"mode,omitempty"`
	Token  string        `json:"token,omitempty"`
}

// Result is the outcome of an Action, ready for rendering. Playable is the subset of Hand
// the rules accept right now.
type Result struct {
	Applied  bool               `json:"applied"`
	Reason   game.Kind          `json:"reason,omitempty"`
	Err      error              `json:"-"`
	State    *game.Snapshot     `json:"state,omitempty"`
	Hand     []models.Card      `json:"hand,omitempty"`
	Playable []models.Card      `json:"playable,omitempty"`
	Drawn    []models.Card      `json:"drawn,omitempty"`
	Bluff    *game.BluffOutcome `json:"bluff,omitempty"`
	Token    string             `json:"token,omitempty"`
}

// ErrUnknownIntent rejects actions the dispatcher does not understand.
var ErrUnknownIntent = errors.New("unknown intent")

// Dispatch applies a single action and renders the resulting state for the acting user.
// Rule violations come back in Reason with Applied false; they are not Go errors here.
func (m *Manager) Dispatch(ctx context.Context, a Action) Result {
	if err := ctx.Err(); err != nil {
		return Result{Reason: game.KindInternal, Err: err}
	}

	var tok *string
	if a.Intent.InGame() {
		tok = &a.Token
	}

	var res Result
	var err error
	switch a.Intent {
	case IntentNew:
		mode := a.Mode
		if mode == "" {
			mode = game.ModeClassic
		}
		if _, err = game.ParseMode(string(mode)); err == nil {
			m.NewGame(a.Chat, mode)
		}
	case IntentJoin:
		_, err = m.JoinGame(a.User, a.Chat)
	case IntentLeave:
		err = m.LeaveGame(a.User.ID, a.Chat)
	case IntentStart:
		err = m.StartGame(a.Chat, a.User.ID)
	case IntentOpen:
		err = m.SetOpen(a.Chat, a.User.ID, true)
	case IntentClose:
		err = m.SetOpen(a.Chat, a.User.ID, false)
	case IntentPlay:
		err = m.playCard(a.Chat, a.User.ID, a.Card, a.Color, tok)
	case IntentDraw:
		res.Drawn, err = m.drawCards(a.Chat, a.User.ID, tok)
	case IntentPass:
		err = m.passTurn(a.Chat, a.User.ID, tok)
	case IntentChallenge:
		var out game.BluffOutcome
		if out, err = m.challengeBluff(a.Chat, a.User.ID, tok); err == nil {
			res.Bluff = &out
		}
	case IntentEnd:
		err = m.EndGame(a.Chat, a.User.ID)
	default:
		err = fmt.Errorf("%w %q", ErrUnknownIntent, a.Intent)
	}

	entry := m.log.WithFields(logrus.Fields{"chat": a.Chat, "user": a.User.ID, "intent": a.Intent})
	if err != nil {
		res.Err = err
		res.Reason = game.KindOf(err)
		if res.Reason == game.KindInternal || game.IsFatal(err) {
			entry.WithError(err).Warn("action failed")
		} else {
			entry.WithField("reason", res.Reason).Debug("action rejected")
		}
	} else {
		res.Applied = true
		entry.Debug("action applied")
	}

	if v, verr := m.View(a.Chat, a.User.ID); verr == nil {
		res.State = &v.State
		res.Hand = v.Hand
		res.Playable = v.Playable
		res.Token = v.Token
	}
	return res
}
