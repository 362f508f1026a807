// Package game holds the state machine of a single two-player pairs session.
// A Room is not safe for concurrent use. Callers are expected to guard it with
// their own lock.
package game

import (
	"fmt"
	"github.com/lefinal/pairs-server/deck"
	"github.com/lefinal/pairs-server/errors"
	"time"
)

// MaxPlayers is the number of players in a Room.
const MaxPlayers = 2

// Phase is the phase a Room is in.
type Phase string

const (
	// PhaseWaitingPlayers is the phase while less than MaxPlayers are in the
	// room.
	PhaseWaitingPlayers Phase = "waiting-players"
	// PhaseReady is set when the deck is dealt and the game can be started.
	PhaseReady Phase = "ready"
	// PhaseAwaitingFlip waits for the first flip of the current turn.
	PhaseAwaitingFlip Phase = "awaiting-flip"
	// PhaseOneCardFlipped waits for the second flip of the current turn.
	PhaseOneCardFlipped Phase = "one-card-flipped"
	// PhaseEvaluating is set while two non-matching cards are shown before being
	// flipped back.
	PhaseEvaluating Phase = "evaluating"
	// PhaseFinished is the terminal phase.
	PhaseFinished Phase = "finished"
)

// InProgress returns true for phases of a running game.
func (p Phase) InProgress() bool {
	switch p {
	case PhaseAwaitingFlip, PhaseOneCardFlipped, PhaseEvaluating:
		return true
	}
	return false
}

// Player is a member of a Room.
type Player struct {
	// ID is the stable identity that is kept across reconnects.
	ID string `json:"id"`
	// ConnectionID is the id of the connection the player is currently bound to.
	ConnectionID string `json:"-"`
	// Name is the display name.
	Name string `json:"name"`
	// Score is never negative.
	Score int `json:"score"`
	// MatchedPairs is the number of pairs found by the player.
	MatchedPairs int `json:"matched_pairs"`
	// Active is set while the player participates in a running game.
	Active bool `json:"active"`
	// Winner is set for the winner of a finished game.
	Winner bool `json:"winner"`
}

// Room is a two-player session with deck, turn and scores.
type Room struct {
	// ID is the 6-character room code.
	ID string
	// Difficulty determines the pair count and flip-back delay.
	Difficulty deck.Difficulty
	// Theme is the name of the symbol theme.
	Theme string
	// CreatedAt is the immutable creation timestamp.
	CreatedAt time.Time
	// Players in join order.
	Players []*Player
	// Deck is nil until both players joined.
	Deck []deck.Card
	// MatchedValues holds the values of all found pairs.
	MatchedValues []string
	// CurrentTurn is the id of the player holding the turn.
	CurrentTurn string
	// Phase is the current phase.
	Phase Phase
	// FinishReason is set when Phase is PhaseFinished.
	FinishReason FinishReason
	// flipped holds the card indices flipped in the current turn.
	flipped []int
	// departed holds players that left a running game so that they appear in
	// the Outcome.
	departed []Player
}

// NewRoom creates a new Room in PhaseWaitingPlayers.
func NewRoom(id string, difficulty deck.Difficulty, theme string, createdAt time.Time) *Room {
	return &Room{
		ID:         id,
		Difficulty: difficulty,
		Theme:      theme,
		CreatedAt:  createdAt,
		Players:    make([]*Player, 0, MaxPlayers),
		Phase:      PhaseWaitingPlayers,
	}
}

// Player returns the Player with the given id.
func (r *Room) Player(playerID string) (*Player, bool) {
	for _, p := range r.Players {
		if p.ID == playerID {
			return p, true
		}
	}
	return nil, false
}

// Opponent returns the other player of the one with the given id.
func (r *Room) Opponent(playerID string) (*Player, bool) {
	for _, p := range r.Players {
		if p.ID != playerID {
			return p, true
		}
	}
	return nil, false
}

// IsFull checks whether MaxPlayers are in the room.
func (r *Room) IsFull() bool {
	return len(r.Players) >= MaxPlayers
}

// AddPlayer adds the given Player. The room must be waiting for players.
func (r *Room) AddPlayer(player Player) error {
	if _, ok := r.Player(player.ID); ok {
		return errors.NewPlayerAlreadyInRoomError(r.ID)
	}
	if r.IsFull() {
		return errors.NewRoomFullError(r.ID)
	}
	if r.Phase != PhaseWaitingPlayers {
		return errors.NewPhaseViolationError("room is not waiting for players",
			errors.Details{"room_id": r.ID, "phase": r.Phase})
	}
	player.Score = 0
	player.MatchedPairs = 0
	player.Active = false
	player.Winner = false
	r.Players = append(r.Players, &player)
	return nil
}

// Deal sets the deck and moves the room to PhaseReady. It requires the room to
// be full.
func (r *Room) Deal(cards []deck.Card) error {
	if r.Phase != PhaseWaitingPlayers || !r.IsFull() {
		return errors.NewPhaseViolationError("deal requires a full room waiting for players",
			errors.Details{"room_id": r.ID, "phase": r.Phase, "players": len(r.Players)})
	}
	if len(cards) != 2*r.Difficulty.Pairs() {
		return errors.NewInternalError(fmt.Sprintf("deck has %d cards but %d are required", len(cards), 2*r.Difficulty.Pairs()),
			errors.Details{"room_id": r.ID, "difficulty": r.Difficulty})
	}
	r.Deck = cards
	r.MatchedValues = make([]string, 0, r.Difficulty.Pairs())
	r.flipped = r.flipped[:0]
	r.Phase = PhaseReady
	return nil
}

// Start starts the game with the player at the given index holding the first
// turn.
func (r *Room) Start(firstPlayerIndex int) error {
	if r.Phase != PhaseReady {
		return errors.NewPhaseViolationError("game can only be started when ready",
			errors.Details{"room_id": r.ID, "phase": r.Phase})
	}
	if firstPlayerIndex < 0 || firstPlayerIndex >= len(r.Players) {
		return errors.NewInternalError("first player index out of range",
			errors.Details{"index": firstPlayerIndex, "players": len(r.Players)})
	}
	for _, p := range r.Players {
		p.Active = true
	}
	r.CurrentTurn = r.Players[firstPlayerIndex].ID
	r.Phase = PhaseAwaitingFlip
	return nil
}

// FlipKind describes the effect of a valid flip.
type FlipKind string

const (
	// FlipFirst is the first card of a turn.
	FlipFirst FlipKind = "first"
	// FlipMatch is the second card of a turn matching the first one.
	FlipMatch FlipKind = "match"
	// FlipMismatch is the second card of a turn not matching the first one.
	// The room stays in PhaseEvaluating until ResolveMismatch is called.
	FlipMismatch FlipKind = "mismatch"
)

// FlipResult is the result of Room.Flip.
type FlipResult struct {
	Kind FlipKind
	// Card is the flipped card.
	Card deck.Card
	// FirstIndex is the index of the first card of the turn. Only set for the
	// second flip.
	FirstIndex int
	// Score is the new score of the flipping player.
	Score int
	// Finished is set when the match completed the game.
	Finished bool
}

// Flip flips the card with the given index for the given player. A rejected
// flip has no side effects.
func (r *Room) Flip(playerID string, cardIndex int) (FlipResult, error) {
	if !r.Phase.InProgress() {
		return FlipResult{}, errors.NewPhaseViolationError("game is not in progress",
			errors.Details{"room_id": r.ID, "phase": r.Phase})
	}
	if playerID != r.CurrentTurn {
		return FlipResult{}, errors.NewNotYourTurnError(playerID)
	}
	if cardIndex < 0 || cardIndex >= len(r.Deck) {
		return FlipResult{}, errors.NewInvalidCardError(cardIndex, "out of range")
	}
	if r.Phase == PhaseEvaluating || len(r.flipped) >= 2 {
		return FlipResult{}, errors.NewInvalidCardError(cardIndex, "pair is being evaluated")
	}
	card := &r.Deck[cardIndex]
	if card.Matched {
		return FlipResult{}, errors.NewInvalidCardError(cardIndex, "already matched")
	}
	if card.Flipped {
		return FlipResult{}, errors.NewInvalidCardError(cardIndex, "already flipped")
	}
	player, _ := r.Player(playerID)
	card.Flipped = true
	r.flipped = append(r.flipped, cardIndex)
	if len(r.flipped) == 1 {
		r.Phase = PhaseOneCardFlipped
		return FlipResult{Kind: FlipFirst, Card: *card, Score: player.Score}, nil
	}
	// Evaluate pair.
	first := &r.Deck[r.flipped[0]]
	result := FlipResult{FirstIndex: first.Index}
	if first.Value != card.Value {
		r.Phase = PhaseEvaluating
		result.Kind = FlipMismatch
		result.Card = *card
		result.Score = player.Score
		return result, nil
	}
	first.Matched = true
	card.Matched = true
	r.MatchedValues = append(r.MatchedValues, card.Value)
	player.Score += MatchPoints
	player.MatchedPairs++
	r.flipped = r.flipped[:0]
	r.Phase = PhaseAwaitingFlip
	result.Kind = FlipMatch
	result.Card = *card
	result.Score = player.Score
	if len(r.MatchedValues) == r.Difficulty.Pairs() {
		r.finishCompleted()
		result.Finished = true
	}
	return result, nil
}

// PendingMismatch returns the card indices of a non-matching pair that waits
// to be flipped back.
func (r *Room) PendingMismatch() (first int, second int, ok bool) {
	if r.Phase != PhaseEvaluating || len(r.flipped) != 2 {
		return 0, 0, false
	}
	return r.flipped[0], r.flipped[1], true
}

// ResolveMismatch flips back the pending non-matching pair and passes the turn
// to the other player. It returns the id of the new turn holder.
func (r *Room) ResolveMismatch() (string, error) {
	if _, _, ok := r.PendingMismatch(); !ok {
		return "", errors.NewPhaseViolationError("no pending pair to resolve",
			errors.Details{"room_id": r.ID, "phase": r.Phase})
	}
	r.flipBack()
	if next, ok := r.Opponent(r.CurrentTurn); ok {
		r.CurrentTurn = next.ID
	}
	r.Phase = PhaseAwaitingFlip
	return r.CurrentTurn, nil
}

// flipBack turns all unmatched cards of the current turn face down.
func (r *Room) flipBack() {
	for _, i := range r.flipped {
		if !r.Deck[i].Matched {
			r.Deck[i].Flipped = false
		}
	}
	r.flipped = r.flipped[:0]
}

// LeaveResult is the result of Room.RemovePlayer.
type LeaveResult struct {
	// Forfeit is set when the departure finished a running game.
	Forfeit bool
	// Winner is the id of the remaining player in case of Forfeit.
	Winner string
	// BackToWaiting is set when a ready room lost a player and the deck was
	// cleared.
	BackToWaiting bool
	// Empty is set when no players remain.
	Empty bool
	// HadPendingMismatch is set when a scheduled flip-back became obsolete.
	HadPendingMismatch bool
}

// RemovePlayer removes the player with the given id. Leaving a running game
// awards the remaining player with a forfeit win.
func (r *Room) RemovePlayer(playerID string) (LeaveResult, error) {
	var result LeaveResult
	player, ok := r.Player(playerID)
	if !ok {
		return result, errors.NewPlayerNotInRoomError(r.ID, playerID)
	}
	wasPhase := r.Phase
	_, _, result.HadPendingMismatch = r.PendingMismatch()
	// Remove.
	remaining := make([]*Player, 0, MaxPlayers)
	for _, p := range r.Players {
		if p.ID != playerID {
			remaining = append(remaining, p)
		}
	}
	r.Players = remaining
	if len(r.Players) == 0 {
		result.Empty = true
	}
	switch {
	case wasPhase.InProgress():
		r.flipBack()
		departed := *player
		departed.Active = false
		r.departed = append(r.departed, departed)
		if len(r.Players) == 0 {
			r.CurrentTurn = ""
			r.Phase = PhaseFinished
			r.FinishReason = FinishForfeit
			break
		}
		winner := r.Players[0]
		r.CurrentTurn = winner.ID
		r.finishForfeit(winner)
		result.Forfeit = true
		result.Winner = winner.ID
	case wasPhase == PhaseReady:
		r.Deck = nil
		r.MatchedValues = nil
		r.flipped = r.flipped[:0]
		r.Phase = PhaseWaitingPlayers
		result.BackToWaiting = true
	}
	return result, nil
}

// State is a snapshot of a Room.
type State struct {
	RoomID        string          `json:"room_id"`
	Phase         Phase           `json:"phase"`
	Difficulty    deck.Difficulty `json:"difficulty"`
	Theme         string          `json:"theme"`
	Players       []Player        `json:"players"`
	Deck          []deck.Card     `json:"deck"`
	MatchedValues []string        `json:"matched_values"`
	CurrentPlayer string          `json:"current_player,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// State returns a deep copy of the current state.
func (r *Room) State() State {
	s := State{
		RoomID:        r.ID,
		Phase:         r.Phase,
		Difficulty:    r.Difficulty,
		Theme:         r.Theme,
		Players:       r.PlayerList(),
		MatchedValues: append(make([]string, 0, len(r.MatchedValues)), r.MatchedValues...),
		CurrentPlayer: r.CurrentTurn,
		CreatedAt:     r.CreatedAt,
	}
	if r.Deck != nil {
		s.Deck = append(make([]deck.Card, 0, len(r.Deck)), r.Deck...)
	}
	return s
}

// PlayerList returns copies of all players.
func (r *Room) PlayerList() []Player {
	players := make([]Player, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, *p)
	}
	return players
}
