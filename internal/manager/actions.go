// internal/manager/actions.go
package manager

import (
	"errors"

	"github.com/jason-s-yu/uno/internal/game"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/sirupsen/logrus"
)

// View is one user's picture of a session: the public state plus their own hand.
type View struct {
	State    game.Snapshot
	Hand     []models.Card
	Playable []models.Card
	Token    string
}

// gameFor resolves the session user plays in within chat.
func (m *Manager) gameFor(chat models.ChatID, user models.UserID) (*game.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p := m.playerInChatLocked(user, chat); p != nil {
		return p.Game(), nil
	}
	if m.topLocked(chat) == nil {
		return nil, game.ErrNoGameInChat
	}
	return nil, game.ErrNotInGame
}

// topGame resolves the newest session of chat.
func (m *Manager) topGame(chat models.ChatID) (*game.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g := m.topLocked(chat); g != nil {
		return g, nil
	}
	return nil, game.ErrNoGameInChat
}

// apply runs fn under the session lock. A non-nil token must match the chat's current one.
// Successful actions are numbered, queued for the recorder in order and advance the chat
// token; fatal errors abort the session after the session lock is released.
func (m *Manager) apply(g *game.Game, token *string, actor models.UserID, action string, fn func() (map[string]interface{}, error)) error {
	g.Mu.Lock()
	if g.Ended() {
		g.Mu.Unlock()
		return game.ErrNoGameInChat
	}
	if token != nil {
		if err := m.tokens.Validate(g.Chat, *token); err != nil {
			g.Mu.Unlock()
			return err
		}
	}
	wasFinished := g.Finished()
	payload, err := fn()
	if err == nil {
		err = g.CheckInvariants()
	}
	if err != nil {
		g.Mu.Unlock()
		if game.IsFatal(err) {
			m.abort(g, err)
		}
		return err
	}

	m.record(g.Record(actor, action, payload))
	m.advanceToken(g.Chat)
	if !wasFinished && g.Finished() {
		m.saveResult(g.Snapshot())
	}
	g.Mu.Unlock()
	return nil
}

// StartGame deals the newest session of chat.
func (m *Manager) StartGame(chat models.ChatID, by models.UserID) error {
	g, err := m.topGame(chat)
	if err != nil {
		return err
	}
	return m.apply(g, nil, by, "action_start", func() (map[string]interface{}, error) {
		return nil, g.Start()
	})
}

// SetOpen opens or closes the lobby of the newest session of chat.
func (m *Manager) SetOpen(chat models.ChatID, by models.UserID, open bool) error {
	g, err := m.topGame(chat)
	if err != nil {
		return err
	}
	return m.apply(g, nil, by, "action_set_open", func() (map[string]interface{}, error) {
		if g.Finished() {
			return nil, game.ErrGameAlreadyFinished
		}
		g.Open = open
		return map[string]interface{}{"open": open}, nil
	})
}

// PlayCard plays card from user's hand; color is the choice for a wild card.
func (m *Manager) PlayCard(chat models.ChatID, user models.UserID, card models.Card, color models.Color) error {
	return m.playCard(chat, user, card, color, nil)
}

func (m *Manager) playCard(chat models.ChatID, user models.UserID, card models.Card, color models.Color, token *string) error {
	g, err := m.gameFor(chat, user)
	if err != nil {
		return err
	}
	return m.apply(g, token, user, "action_play", func() (map[string]interface{}, error) {
		if err := g.PlayCard(user, card, color); err != nil {
			return nil, err
		}
		payload := map[string]interface{}{"card": card.String()}
		if card.IsWild() {
			payload["color"] = string(color)
		}
		return payload, nil
	})
}

// DrawCards resolves a pending draw or draws one card, returning what was drawn.
func (m *Manager) DrawCards(chat models.ChatID, user models.UserID) ([]models.Card, error) {
	return m.drawCards(chat, user, nil)
}

func (m *Manager) drawCards(chat models.ChatID, user models.UserID, token *string) ([]models.Card, error) {
	g, err := m.gameFor(chat, user)
	if err != nil {
		return nil, err
	}
	var drawn []models.Card
	err = m.apply(g, token, user, "action_draw", func() (map[string]interface{}, error) {
		cards, err := g.DrawCards(user)
		if err != nil {
			return nil, err
		}
		drawn = cards
		return map[string]interface{}{"count": len(cards)}, nil
	})
	return drawn, err
}

// PassTurn ends user's turn after a voluntary draw.
func (m *Manager) PassTurn(chat models.ChatID, user models.UserID) error {
	return m.passTurn(chat, user, nil)
}

func (m *Manager) passTurn(chat models.ChatID, user models.UserID, token *string) error {
	g, err := m.gameFor(chat, user)
	if err != nil {
		return err
	}
	return m.apply(g, token, user, "action_pass", func() (map[string]interface{}, error) {
		return nil, g.PassTurn(user)
	})
}

// ChallengeBluff contests the WildDrawFour user is facing.
func (m *Manager) ChallengeBluff(chat models.ChatID, user models.UserID) (game.BluffOutcome, error) {
	return m.challengeBluff(chat, user, nil)
}

func (m *Manager) challengeBluff(chat models.ChatID, user models.UserID, token *string) (game.BluffOutcome, error) {
	g, err := m.gameFor(chat, user)
	if err != nil {
		return game.BluffOutcome{}, err
	}
	var out game.BluffOutcome
	err = m.apply(g, token, user, "action_challenge", func() (map[string]interface{}, error) {
		res, err := g.ChallengeBluff(user)
		if err != nil {
			return nil, err
		}
		out = res
		return map[string]interface{}{"caught": res.Caught, "penalized": res.Penalized, "drawn": res.Drawn}, nil
	})
	return out, err
}

// SkipPlayer is the inactivity timeout of the newest session of chat. It returns the user who
// lost the turn.
func (m *Manager) SkipPlayer(chat models.ChatID) (models.UserID, error) {
	return m.skip(chat, nil)
}

// SkipIdlePlayer skips like SkipPlayer, but only while the session still is at generation.
// Otherwise someone acted since the timer was armed and ErrStaleToken is returned.
func (m *Manager) SkipIdlePlayer(chat models.ChatID, generation uint64) (models.UserID, error) {
	return m.skip(chat, &generation)
}

func (m *Manager) skip(chat models.ChatID, generation *uint64) (models.UserID, error) {
	g, err := m.topGame(chat)
	if err != nil {
		return 0, err
	}
	var skipped models.UserID
	err = m.apply(g, nil, 0, "action_skip", func() (map[string]interface{}, error) {
		if generation != nil && g.Generation() != *generation {
			return nil, game.ErrStaleToken
		}
		id, err := g.Skip()
		if err != nil {
			return nil, err
		}
		skipped = id
		return map[string]interface{}{"skipped": id}, nil
	})
	if err == nil {
		m.log.WithFields(logrus.Fields{"chat": chat, "user": skipped}).Info("player skipped for inactivity")
	}
	return skipped, err
}

// View renders the session user plays in, or the newest session of chat for spectators.
func (m *Manager) View(chat models.ChatID, user models.UserID) (View, error) {
	g, err := m.gameFor(chat, user)
	if errors.Is(err, game.ErrNotInGame) {
		g, err = m.topGame(chat)
	}
	if err != nil {
		return View{}, err
	}

	g.Mu.Lock()
	defer g.Mu.Unlock()
	if g.Ended() {
		return View{}, game.ErrNoGameInChat
	}
	v := View{State: g.Snapshot()}
	if hand, err := g.HandOf(user); err == nil {
		v.Hand = hand
		v.Playable = g.Playable(user)
	}
	// read under the session lock so the token matches the rendered generation
	if v.Token, err = m.tokens.Current(chat); err != nil {
		return View{}, err
	}
	return v, nil
}
