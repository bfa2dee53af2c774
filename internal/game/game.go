// internal/game/game.go
package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/models"
	"github.com/sirupsen/logrus"
)

// bluffWindow is open between a WildDrawFour and the next player's answer to it.
type bluffWindow struct {
	accused *Player
	hand    []models.Card // accused's hand right after the play
	color   models.Color  // color in force before the play
}

// Options configure a new Game.
type Options struct {
	Rules  Rules
	Rand   *rand.Rand
	Logger *logrus.Entry
}

// Game is one play-through in one chat. It is not internally synchronized: callers hold Mu
// for every method call, including read-only ones.
type Game struct {
	ID        uuid.UUID
	Chat      models.ChatID
	Rules     Rules
	CreatedAt time.Time

	// Players is the turn order, fixed in join order.
	Players []*Player
	// Open lets new players join.
	Open bool
	// Started is set once cards are dealt.
	Started bool

	Mu sync.Mutex

	deck      *Deck
	current   int
	direction int
	color     models.Color
	pending   int
	bluff     *bluffWindow
	drew      bool
	finished  bool
	winner    *Player
	ended     bool

	generation  uint64
	actionIndex int

	log *logrus.Entry
}

// New builds a lobby game for chat with a freshly shuffled deck.
func New(chat models.ChatID, opts Options) *Game {
	rules := opts.Rules
	if rules.Mode == "" {
		rules = RulesFor(ModeClassic)
	}
	id, _ := uuid.NewRandom()
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	g := &Game{
		ID:        id,
		Chat:      chat,
		Rules:     rules,
		CreatedAt: time.Now(),
		Open:      true,
		deck:      NewDeck(rules.Deck, opts.Rand),
		direction: 1,
		log:       logger.WithFields(logrus.Fields{"game": id, "chat": chat}),
	}
	g.log.Debugf("created %s game with %d cards", rules.Mode, g.deck.Total())
	return g
}

// Player returns the member with the given user id, or nil.
func (g *Game) Player(user models.UserID) *Player {
	if i := g.indexOf(user); i >= 0 {
		return g.Players[i]
	}
	return nil
}

func (g *Game) indexOf(user models.UserID) int {
	for i, p := range g.Players {
		if p.ID() == user {
			return i
		}
	}
	return -1
}

// CurrentPlayer is the player whose turn it is, nil before the start.
func (g *Game) CurrentPlayer() *Player {
	if !g.Started || len(g.Players) == 0 {
		return nil
	}
	return g.Players[g.current]
}

func (g *Game) CurrentColor() models.Color { return g.color }
func (g *Game) PendingDraw() int           { return g.pending }
func (g *Game) Direction() int             { return g.direction }
func (g *Game) BluffOpen() bool            { return g.bluff != nil }
func (g *Game) Finished() bool             { return g.finished }
func (g *Game) Generation() uint64         { return g.generation }
func (g *Game) Deck() *Deck                { return g.deck }

// Winner is the player who emptied their hand first.
func (g *Game) Winner() *Player { return g.winner }

// MarkEnded flags a game that was removed from its chat. Actions racing with the removal
// see Ended and give up.
func (g *Game) MarkEnded() { g.ended = true }

// Ended reports whether the game was removed from its chat.
func (g *Game) Ended() bool { return g.ended }

// AddPlayer seats a new player at the end of the turn order. A player joining a running game
// is dealt a full hand.
func (g *Game) AddPlayer(user models.User) (*Player, error) {
	if err := g.CanAdd(user.ID); err != nil {
		return nil, err
	}
	p := newPlayer(user, g)
	if g.Started {
		cards, err := g.deck.Draw(g.Rules.HandSize)
		if err != nil {
			return nil, err
		}
		p.give(cards...)
	}
	g.Players = append(g.Players, p)
	g.generation++
	g.log.WithField("user", user.ID).Debug("player joined")
	return p, nil
}

// CanAdd reports why user could not be seated right now, or nil. A seat needs a full hand
// plus the starter to fit the deck, and a running game must have a hand left to deal.
func (g *Game) CanAdd(user models.UserID) error {
	switch {
	case g.finished:
		return ErrGameAlreadyFinished
	case !g.Open:
		return ErrLobbyClosed
	case g.indexOf(user) >= 0:
		return ErrAlreadyJoined
	case !g.seatsFit(len(g.Players) + 1):
		return ErrTooManyPlayers
	case g.Started && g.deck.DrawPileSize()+max(g.deck.DiscardPileSize()-1, 0) < g.Rules.HandSize:
		return ErrTooManyPlayers
	}
	return nil
}

// seatsFit reports whether n hands and a starter card fit the deck.
func (g *Game) seatsFit(n int) bool {
	return n*g.Rules.HandSize+1 <= g.deck.Total()
}

// RemovePlayer takes a player out of the session and puts their cards back into the deck.
func (g *Game) RemovePlayer(user models.UserID) (*Player, error) {
	idx := g.indexOf(user)
	if idx < 0 {
		return nil, ErrNotInGame
	}
	if !g.finished && len(g.Players)-1 < g.Rules.MinPlayersToStay {
		return nil, ErrNotEnoughPlayers
	}
	p := g.Players[idx]
	g.Players = append(g.Players[:idx], g.Players[idx+1:]...)
	g.deck.Return(p.hand)
	p.hand = nil
	p.game = nil

	if g.bluff != nil && g.bluff.accused == p {
		g.bluff = nil
	}
	if g.Started && len(g.Players) > 0 {
		switch {
		case idx < g.current:
			g.current--
		case idx == g.current:
			// the seat now at idx is the next player when moving forward
			if g.direction < 0 {
				g.current = idx - 1 + len(g.Players)
			}
			g.current %= len(g.Players)
			g.pending = 0
			g.bluff = nil
			g.drew = false
		}
	} else {
		g.current = 0
	}
	g.generation++
	g.log.WithField("user", user).Debug("player left")
	return p, nil
}

// Start deals every player a hand and turns up a number card as the first discard.
func (g *Game) Start() error {
	if g.finished {
		return ErrGameAlreadyFinished
	}
	if g.Started {
		return ErrGameAlreadyStarted
	}
	if len(g.Players) < g.Rules.MinPlayers {
		return ErrNotEnoughPlayers
	}
	if err := g.checkUnique(); err != nil {
		return err
	}
	if !g.seatsFit(len(g.Players)) {
		return ErrTooManyPlayers
	}
	for _, p := range g.Players {
		cards, err := g.deck.Draw(g.Rules.HandSize)
		if err != nil {
			return err
		}
		p.give(cards...)
	}
	starter, err := g.deck.flipStarter()
	if errors.Is(err, errNoStarter) {
		// every number card was dealt; undo the deal so the lobby stays as it was
		for _, p := range g.Players {
			g.deck.collect(p.hand)
			p.hand = nil
		}
		g.log.Warnf("no number card left to start with %d players", len(g.Players))
		return ErrTooManyPlayers
	}
	if err != nil {
		return err
	}
	g.color = starter.Color
	g.current = 0
	g.direction = 1
	g.Started = true
	g.generation++
	g.log.WithField("starter", starter).Infof("game started with %d players", len(g.Players))
	return nil
}

// checkActive rejects actions outside the turn loop.
func (g *Game) checkActive() error {
	if g.finished {
		return ErrGameAlreadyFinished
	}
	if !g.Started {
		return ErrGameNotStarted
	}
	return nil
}

// turnOf returns the current player if it is user, else ErrNotYourTurn.
func (g *Game) turnOf(user models.UserID) (*Player, error) {
	if err := g.checkActive(); err != nil {
		return nil, err
	}
	p := g.Players[g.current]
	if p.ID() != user {
		return nil, ErrNotYourTurn
	}
	return p, nil
}

// step moves the turn n seats along the current direction.
func (g *Game) step(n int) {
	size := len(g.Players)
	g.current = ((g.current+n*g.direction)%size + size) % size
	g.drew = false
}

// canPlay is the basic matching rule, ignoring pending draws.
func (g *Game) canPlay(c, top models.Card) bool {
	return c.IsWild() || c.Color == g.color || c.Rank == top.Rank
}

// canStack reports whether c may answer a pending draw.
func (g *Game) canStack(c, top models.Card) bool {
	return g.Rules.Stacking && c.Rank == models.DrawTwo && top.Rank == models.DrawTwo
}

// Playable lists the cards in user's hand the rules would accept right now. It is empty when
// it is not user's turn.
func (g *Game) Playable(user models.UserID) []models.Card {
	p, err := g.turnOf(user)
	if err != nil {
		return nil
	}
	top, err := g.deck.TopDiscard()
	if err != nil {
		return nil
	}
	var out []models.Card
	for _, c := range p.hand {
		if g.pending > 0 {
			if g.canStack(c, top) {
				out = append(out, c)
			}
		} else if g.canPlay(c, top) {
			out = append(out, c)
		}
	}
	return out
}

// PlayCard moves card from user's hand onto the discard pile and applies its effect.
// color is required for wild cards and ignored otherwise.
func (g *Game) PlayCard(user models.UserID, card models.Card, color models.Color) error {
	p, err := g.turnOf(user)
	if err != nil {
		return err
	}
	if !p.holds(card) {
		return ErrCardNotInHand
	}
	top, err := g.deck.TopDiscard()
	if err != nil {
		return err
	}
	if g.pending > 0 {
		if !g.canStack(card, top) {
			return ErrMustDraw
		}
	} else if !g.canPlay(card, top) {
		return ErrIllegalCard
	}
	if card.IsWild() && !color.Choosable() {
		return ErrColorRequired
	}

	prevColor := g.color
	p.take(card)
	g.deck.Discard(card)
	if card.IsWild() {
		g.color = color
	} else {
		g.color = card.Color
	}
	g.generation++
	g.log.WithFields(logrus.Fields{"user": user, "card": card, "color": g.color}).Debug("card played")

	if len(p.hand) == 0 {
		g.finish(p)
		return nil
	}

	switch card.Rank {
	case models.Skip:
		g.step(2)
	case models.Reverse:
		if len(g.Players) == 2 {
			g.step(2)
		} else {
			g.direction = -g.direction
			g.step(1)
		}
	case models.DrawTwo:
		g.pending += 2
		g.step(1)
	case models.WildDrawFour:
		g.pending += 4
		if g.Rules.BluffChallenge {
			g.bluff = &bluffWindow{accused: p, hand: p.Hand(), color: prevColor}
		}
		g.step(1)
	default:
		g.step(1)
	}
	return nil
}

// DrawCards resolves a pending draw, or draws one card voluntarily. Only a forced draw ends
// the turn; after a voluntary draw the player may still play the card or pass.
func (g *Game) DrawCards(user models.UserID) ([]models.Card, error) {
	p, err := g.turnOf(user)
	if err != nil {
		return nil, err
	}
	if g.pending > 0 {
		cards, err := g.deck.Draw(g.pending)
		if err != nil {
			return nil, err
		}
		p.give(cards...)
		g.pending = 0
		g.bluff = nil
		g.step(1)
		g.generation++
		g.log.WithField("user", user).Debugf("forced draw of %d", len(cards))
		return cards, nil
	}
	if g.drew {
		return nil, ErrAlreadyDrew
	}
	cards, err := g.deck.Draw(1)
	if err != nil {
		return nil, err
	}
	p.give(cards...)
	g.drew = true
	g.generation++
	return cards, nil
}

// PassTurn ends the turn of a player who has drawn voluntarily.
func (g *Game) PassTurn(user models.UserID) error {
	if _, err := g.turnOf(user); err != nil {
		return err
	}
	if !g.drew {
		return ErrMustDrawFirst
	}
	g.step(1)
	g.generation++
	return nil
}

// BluffOutcome describes a resolved challenge.
type BluffOutcome struct {
	// Caught is true when the accused held a card of the color in force.
	Caught bool `json:"caught"`
	// Penalized drew the cards; the accused when Caught, else the challenger.
	Penalized models.UserID `json:"penalized"`
	Drawn     int           `json:"drawn"`
}

// ChallengeBluff lets the player facing a WildDrawFour accuse its player of holding a card of
// the color that was in force. A correct accusation hands the pending cards to the accused and
// leaves the challenger free to play; a wrong one costs the challenger two extra cards and the turn.
func (g *Game) ChallengeBluff(user models.UserID) (BluffOutcome, error) {
	p, err := g.turnOf(user)
	if err != nil {
		return BluffOutcome{}, err
	}
	w := g.bluff
	if w == nil {
		return BluffOutcome{}, ErrNoBluffToChallenge
	}

	out := BluffOutcome{Caught: hasColor(w.hand, w.color)}
	if out.Caught {
		cards, err := g.deck.Draw(g.pending)
		if err != nil {
			return BluffOutcome{}, err
		}
		w.accused.give(cards...)
		out.Penalized, out.Drawn = w.accused.ID(), len(cards)
		g.pending = 0
		g.bluff = nil
	} else {
		cards, err := g.deck.Draw(g.pending + 2)
		if err != nil {
			return BluffOutcome{}, err
		}
		p.give(cards...)
		out.Penalized, out.Drawn = p.ID(), len(cards)
		g.pending = 0
		g.bluff = nil
		g.step(1)
	}
	g.generation++
	g.log.WithFields(logrus.Fields{"challenger": user, "caught": out.Caught}).Debug("bluff challenged")
	return out, nil
}

// Skip is the inactivity hook: the current player takes whatever they owe (at least one card
// unless they already drew) and loses the turn.
func (g *Game) Skip() (models.UserID, error) {
	if err := g.checkActive(); err != nil {
		return 0, err
	}
	p := g.Players[g.current]
	n := max(g.pending, 1)
	if g.drew && g.pending == 0 {
		n = 0
	}
	cards, err := g.deck.Draw(n)
	if err != nil {
		return 0, err
	}
	p.give(cards...)
	g.pending = 0
	g.bluff = nil
	g.step(1)
	g.generation++
	g.log.WithField("user", p.ID()).Debug("player skipped")
	return p.ID(), nil
}

func (g *Game) finish(p *Player) {
	g.finished = true
	g.winner = p
	g.pending = 0
	g.bluff = nil
	g.Open = false
	g.log.WithField("winner", p.ID()).Info("game finished")
}

// HandOf returns a copy of user's hand.
func (g *Game) HandOf(user models.UserID) ([]models.Card, error) {
	p := g.Player(user)
	if p == nil {
		return nil, ErrNotInGame
	}
	return p.Hand(), nil
}

func (g *Game) checkUnique() error {
	seen := make(map[models.UserID]struct{}, len(g.Players))
	for _, p := range g.Players {
		if _, dup := seen[p.ID()]; dup {
			return &InvariantError{Reason: fmt.Sprintf("user %d seated twice", p.ID())}
		}
		seen[p.ID()] = struct{}{}
	}
	return nil
}

// CardsInPlay counts every card in the piles and hands.
func (g *Game) CardsInPlay() int {
	n := g.deck.DrawPileSize() + g.deck.DiscardPileSize()
	for _, p := range g.Players {
		n += len(p.hand)
	}
	return n
}

// CheckInvariants verifies card conservation, unique seating and a valid turn index.
func (g *Game) CheckInvariants() error {
	if n := g.CardsInPlay(); n != g.deck.Total() {
		return &InvariantError{Reason: fmt.Sprintf("%d cards in play, deck has %d", n, g.deck.Total())}
	}
	if err := g.checkUnique(); err != nil {
		return err
	}
	if g.Started && !g.finished && (g.current < 0 || g.current >= len(g.Players)) {
		return &InvariantError{Reason: fmt.Sprintf("turn index %d out of %d players", g.current, len(g.Players))}
	}
	if g.pending < 0 {
		return &InvariantError{Reason: "negative pending draw"}
	}
	return nil
}
