package coordinator

import (
	"github.com/lefinal/pairs-server/game"
	"github.com/lefinal/pairs-server/messages"
)

// broadcast sends the given message to all players of the room. The handle
// must be locked so that messages are stamped in generation order.
func (c *Coordinator) broadcast(h *roomHandle, messageType messages.MessageType, content interface{}) {
	out := c.stamp(h, messageType, content)
	for _, p := range h.room.Players {
		c.notifier.Notify(p.ConnectionID, out)
	}
}

// sendRoomMessage sends a room-scoped message to a single connection. The
// handle must be locked.
func (c *Coordinator) sendRoomMessage(h *roomHandle, connectionID string, messageType messages.MessageType, content interface{}) {
	c.notifier.Notify(connectionID, c.stamp(h, messageType, content))
}

// stamp creates an Outgoing message with the next sequence number of the room.
func (c *Coordinator) stamp(h *roomHandle, messageType messages.MessageType, content interface{}) messages.Outgoing {
	h.seq++
	return messages.Outgoing{
		MessageType: messageType,
		RoomID:      h.room.ID,
		Seq:         h.seq,
		Content:     content,
	}
}

// notifyTurn sends your-turn to the turn holder and wait-turn to the other
// player. The handle must be locked.
func (c *Coordinator) notifyTurn(h *roomHandle) {
	for _, p := range h.room.Players {
		c.notifyTurnTo(h, p)
	}
}

// notifyTurnTo sends your-turn or wait-turn to the given player. The handle
// must be locked.
func (c *Coordinator) notifyTurnTo(h *roomHandle, p *game.Player) {
	if p.ID == h.room.CurrentTurn {
		c.sendRoomMessage(h, p.ConnectionID, messages.MessageTypeYourTurn, nil)
	} else {
		c.sendRoomMessage(h, p.ConnectionID, messages.MessageTypeWaitTurn, nil)
	}
}

// broadcastGameOver broadcasts the outcome of the finished game and hands it
// to the results channel. The handle must be locked.
func (c *Coordinator) broadcastGameOver(h *roomHandle) {
	outcome, ok := h.room.Outcome(c.now())
	if !ok {
		return
	}
	content := messages.MessageGameOver{
		Reason:  outcome.Reason,
		Tie:     outcome.Tie,
		Results: outcome.Players,
	}
	if winner, ok := outcome.Winner(); ok {
		content.Winner = winner.PlayerID
	}
	c.broadcast(h, messages.MessageTypeGameOver, content)
	c.publishOutcome(outcome)
}
