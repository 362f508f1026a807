package coordinator

import (
	"github.com/lefinal/pairs-server/errors"
	"github.com/lefinal/pairs-server/game"
	"github.com/lefinal/pairs-server/messages"
	"go.uber.org/zap"
)

// StartGame starts the game in the given room. The room must be ready. The
// player holding the first turn is picked randomly.
func (c *Coordinator) StartGame(caller Caller, roomID string) error {
	h, _, err := c.lockRoomAsMember(roomID, caller)
	if err != nil {
		return err
	}
	defer h.mutex.Unlock()
	if h.room.Phase != game.PhaseReady {
		return errors.NewPhaseViolationError("game can only be started when both players joined",
			errors.Details{"room_id": h.room.ID, "phase": h.room.Phase})
	}
	err = h.room.Start(c.pickFirst(len(h.room.Players)))
	if err != nil {
		return errors.Wrap(err, "start game", errors.Details{"room_id": h.room.ID})
	}
	c.logger.Debug("game started",
		zap.String("room_id", h.room.ID),
		zap.String("first_player", h.room.CurrentTurn))
	state := h.room.State()
	c.broadcast(h, messages.MessageTypeGameStarted, messages.MessageGameStarted{
		Deck:          state.Deck,
		Players:       state.Players,
		CurrentPlayer: state.CurrentPlayer,
	})
	c.notifyTurn(h)
	return nil
}

// FlipCard flips the card with the given index for the caller. If
// claimedPlayerID is set, it must equal the caller's identity. A rejected flip
// has no side effects.
func (c *Coordinator) FlipCard(caller Caller, roomID string, cardIndex int, claimedPlayerID string) error {
	if claimedPlayerID != "" && claimedPlayerID != caller.PlayerID {
		return errors.NewNotYourTurnError(claimedPlayerID)
	}
	h, _, err := c.lockRoomAsMember(roomID, caller)
	if err != nil {
		return err
	}
	defer h.mutex.Unlock()
	result, err := h.room.Flip(caller.PlayerID, cardIndex)
	if err != nil {
		return errors.Wrap(err, "flip card", errors.Details{"room_id": h.room.ID})
	}
	c.broadcast(h, messages.MessageTypeCardFlipped, messages.MessageCardFlipped{
		CardIndex: result.Card.Index,
		Value:     result.Card.Value,
		PlayerID:  caller.PlayerID,
	})
	switch result.Kind {
	case game.FlipFirst:
	case game.FlipMatch:
		c.broadcast(h, messages.MessageTypePairMatched, messages.MessagePairMatched{
			Value:    result.Card.Value,
			PlayerID: caller.PlayerID,
			Score:    result.Score,
		})
		c.broadcast(h, messages.MessageTypeScoreUpdated, messages.MessageScoreUpdated{
			Players: h.room.PlayerList(),
		})
		if result.Finished {
			c.logger.Debug("game completed", zap.String("room_id", h.room.ID))
			c.broadcastGameOver(h)
			return nil
		}
		p, _ := h.room.Player(caller.PlayerID)
		c.notifyTurnTo(h, p)
	case game.FlipMismatch:
		c.scheduleFlipBack(h)
	}
	return nil
}

// ContinueTurn re-sends your-turn to the turn holder. It is only allowed while
// awaiting the first flip of a turn.
func (c *Coordinator) ContinueTurn(caller Caller, roomID string) error {
	h, p, err := c.lockRoomAsMember(roomID, caller)
	if err != nil {
		return err
	}
	defer h.mutex.Unlock()
	if h.room.Phase != game.PhaseAwaitingFlip {
		return errors.NewPhaseViolationError("turn can only be continued while awaiting a flip",
			errors.Details{"room_id": h.room.ID, "phase": h.room.Phase})
	}
	if h.room.CurrentTurn != caller.PlayerID {
		return errors.NewNotYourTurnError(caller.PlayerID)
	}
	c.notifyTurnTo(h, p)
	return nil
}

// EndTurn resolves the pending non-matching pair immediately instead of
// waiting for the flip-back delay. The given indices must equal the pending
// pair in any order.
func (c *Coordinator) EndTurn(caller Caller, roomID string, firstCardIndex int, secondCardIndex int) error {
	h, _, err := c.lockRoomAsMember(roomID, caller)
	if err != nil {
		return err
	}
	defer h.mutex.Unlock()
	if !h.room.Phase.InProgress() {
		return errors.NewPhaseViolationError("game is not in progress",
			errors.Details{"room_id": h.room.ID, "phase": h.room.Phase})
	}
	if h.room.CurrentTurn != caller.PlayerID {
		return errors.NewNotYourTurnError(caller.PlayerID)
	}
	first, second, ok := h.room.PendingMismatch()
	if !ok {
		return errors.NewPhaseViolationError("no pending pair to resolve",
			errors.Details{"room_id": h.room.ID, "phase": h.room.Phase})
	}
	samePair := (first == firstCardIndex && second == secondCardIndex) ||
		(first == secondCardIndex && second == firstCardIndex)
	if !samePair {
		return errors.NewInvalidCardError(firstCardIndex, "does not match the pending pair")
	}
	c.cancelFlipBack(h)
	c.resolveMismatch(h)
	return nil
}

// resolveMismatch flips back the pending pair, passes the turn and notifies
// the players. The handle must be locked.
func (c *Coordinator) resolveMismatch(h *roomHandle) {
	first, second, ok := h.room.PendingMismatch()
	if !ok {
		return
	}
	previous := h.room.CurrentTurn
	next, err := h.room.ResolveMismatch()
	if err != nil {
		errors.Log(c.logger, errors.Wrap(err, "resolve mismatch", errors.Details{"room_id": h.room.ID}))
		return
	}
	c.broadcast(h, messages.MessageTypeNoMatch, messages.MessageNoMatch{
		FirstCardIndex:  first,
		SecondCardIndex: second,
		PlayerID:        previous,
	})
	c.broadcast(h, messages.MessageTypeTurnChanged, messages.MessageTurnChanged{
		CurrentPlayer: next,
	})
	c.notifyTurn(h)
}
