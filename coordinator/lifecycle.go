package coordinator

import (
	"github.com/lefinal/pairs-server/deck"
	"github.com/lefinal/pairs-server/errors"
	"github.com/lefinal/pairs-server/game"
	"github.com/lefinal/pairs-server/messages"
	"go.uber.org/zap"
	"strings"
)

// resolveSettings applies defaults to the given settings.
func resolveSettings(settings messages.RoomSettings) (deck.Difficulty, string, error) {
	difficulty, err := deck.ParseDifficulty(settings.Difficulty)
	if err != nil {
		return "", "", errors.Wrap(err, "parse difficulty", nil)
	}
	theme, err := deck.ThemeByName(settings.Theme)
	if err != nil {
		return "", "", errors.Wrap(err, "theme by name", nil)
	}
	return difficulty, theme.Name, nil
}

// CreateRoom creates a new room with the caller as first player and returns
// its id. Any queue entry of the caller is removed.
func (c *Coordinator) CreateRoom(caller Caller, name string, settings messages.RoomSettings) (string, error) {
	difficulty, theme, err := resolveSettings(settings)
	if err != nil {
		return "", err
	}
	c.leaveQueue(caller.PlayerID)
	c.leaveFinishedRoom(caller)
	if existing, ok := c.directory.lookup(caller.PlayerID); ok {
		return "", errors.NewPlayerAlreadyInRoomError(existing)
	}
	h := &roomHandle{room: game.NewRoom("", difficulty, theme, c.now())}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	roomID := c.registry.insert(h)
	if existing, ok := c.directory.claim(caller.PlayerID, roomID); !ok {
		h.closed = true
		c.registry.remove(roomID)
		return "", errors.NewPlayerAlreadyInRoomError(existing)
	}
	err = h.room.AddPlayer(game.Player{
		ID:           caller.PlayerID,
		ConnectionID: caller.ConnectionID,
		Name:         strings.TrimSpace(name),
	})
	if err != nil {
		c.closeRoom(h)
		return "", errors.Wrap(err, "add player to new room", nil)
	}
	c.logger.Debug("room created",
		zap.String("room_id", roomID),
		zap.String("player_id", caller.PlayerID),
		zap.String("difficulty", string(difficulty)),
		zap.String("theme", theme))
	c.sendRoomMessage(h, caller.ConnectionID, messages.MessageTypeRoomCreated, messages.MessageRoomCreated{
		RoomID:     roomID,
		Difficulty: difficulty,
		Theme:      theme,
	})
	return roomID, nil
}

// JoinRoom adds the caller to the room with the given id. If the room becomes
// full, the deck is dealt and the room is ready to start.
func (c *Coordinator) JoinRoom(caller Caller, roomID string, name string) error {
	c.leaveQueue(caller.PlayerID)
	c.leaveFinishedRoom(caller)
	h, err := c.lockRoom(roomID)
	if err != nil {
		return err
	}
	defer h.mutex.Unlock()
	if _, ok := h.room.Player(caller.PlayerID); ok {
		return errors.NewPlayerAlreadyInRoomError(h.room.ID)
	}
	if h.room.IsFull() {
		return errors.NewRoomFullError(h.room.ID)
	}
	if h.room.Phase != game.PhaseWaitingPlayers {
		return errors.NewPhaseViolationError("room is not waiting for players",
			errors.Details{"room_id": h.room.ID, "phase": h.room.Phase})
	}
	if existing, ok := c.directory.claim(caller.PlayerID, h.room.ID); !ok {
		return errors.NewPlayerAlreadyInRoomError(existing)
	}
	err = h.room.AddPlayer(game.Player{
		ID:           caller.PlayerID,
		ConnectionID: caller.ConnectionID,
		Name:         strings.TrimSpace(name),
	})
	if err != nil {
		c.directory.release(caller.PlayerID, h.room.ID)
		return errors.Wrap(err, "add player", errors.Details{"room_id": h.room.ID})
	}
	if h.room.IsFull() {
		err = c.deal(h)
		if err != nil {
			_, _ = h.room.RemovePlayer(caller.PlayerID)
			c.directory.release(caller.PlayerID, h.room.ID)
			return errors.Wrap(err, "deal", errors.Details{"room_id": h.room.ID})
		}
	}
	c.logger.Debug("player joined room",
		zap.String("room_id", h.room.ID),
		zap.String("player_id", caller.PlayerID))
	c.broadcast(h, messages.MessageTypePlayerJoined, messages.MessagePlayerJoined{
		PlayerID: caller.PlayerID,
		Name:     strings.TrimSpace(name),
		Players:  h.room.PlayerList(),
	})
	return nil
}

// deal generates a deck for the room and deals it. The handle must be locked.
func (c *Coordinator) deal(h *roomHandle) error {
	cards, err := c.config.DeckGenerator.Generate(h.room.Difficulty, h.room.Theme)
	if err != nil {
		return errors.Wrap(err, "generate deck", nil)
	}
	err = h.room.Deal(cards)
	if err != nil {
		return errors.Wrap(err, "deal deck", nil)
	}
	return nil
}

// LeaveRoom removes the caller from the given room. Leaving a running game
// results in a forfeit win for the remaining player. Empty rooms are deleted.
func (c *Coordinator) LeaveRoom(caller Caller, roomID string) error {
	h, _, err := c.lockRoomAsMember(roomID, caller)
	if err != nil {
		return err
	}
	defer h.mutex.Unlock()
	return c.removePlayer(h, caller.PlayerID)
}

// removePlayer removes the player from the room and notifies all members
// including the departing one. The handle must be locked.
func (c *Coordinator) removePlayer(h *roomHandle, playerID string) error {
	p, ok := h.room.Player(playerID)
	if !ok {
		return errors.NewPlayerNotInRoomError(h.room.ID, playerID)
	}
	departed := *p
	wasPhase := h.room.Phase
	result, err := h.room.RemovePlayer(playerID)
	if err != nil {
		return errors.Wrap(err, "remove player", errors.Details{"room_id": h.room.ID})
	}
	c.directory.release(playerID, h.room.ID)
	if result.HadPendingMismatch {
		c.cancelFlipBack(h)
	}
	c.logger.Debug("player left room",
		zap.String("room_id", h.room.ID),
		zap.String("player_id", playerID),
		zap.String("phase", string(wasPhase)),
		zap.Bool("forfeit", result.Forfeit))
	left := messages.MessagePlayerLeft{
		PlayerID:        departed.ID,
		Name:            departed.Name,
		Players:         h.room.PlayerList(),
		WinnerByDefault: result.Forfeit,
	}
	c.sendRoomMessage(h, departed.ConnectionID, messages.MessageTypePlayerLeft, left)
	c.broadcast(h, messages.MessageTypePlayerLeft, left)
	if result.Forfeit {
		c.broadcastGameOver(h)
	}
	if result.Empty {
		c.closeRoom(h)
	}
	return nil
}

// leaveFinishedRoom removes the caller from its room if the game there is
// already finished. Stale directory entries are cleaned up.
func (c *Coordinator) leaveFinishedRoom(caller Caller) {
	roomID, ok := c.directory.lookup(caller.PlayerID)
	if !ok {
		return
	}
	h, err := c.lockRoom(roomID)
	if err != nil {
		c.directory.release(caller.PlayerID, roomID)
		return
	}
	defer h.mutex.Unlock()
	if h.room.Phase != game.PhaseFinished {
		return
	}
	err = c.removePlayer(h, caller.PlayerID)
	if err != nil {
		errors.Log(c.logger, errors.Wrap(err, "leave finished room", nil))
	}
}

// Reconnect binds the caller's connection to the player with the given stable
// identity in the given room. The reconnecting connection receives the full
// room state and, while the game is running, its turn status.
func (c *Coordinator) Reconnect(caller Caller, roomID string, playerID string) error {
	if caller.PlayerID != playerID {
		if existing, ok := c.directory.lookup(caller.PlayerID); ok {
			return errors.NewPlayerAlreadyInRoomError(existing)
		}
		c.leaveQueue(caller.PlayerID)
	}
	h, err := c.lockRoom(roomID)
	if err != nil {
		return err
	}
	defer h.mutex.Unlock()
	p, ok := h.room.Player(playerID)
	if !ok {
		return errors.NewPlayerNotInRoomError(h.room.ID, playerID)
	}
	previousConnectionID := p.ConnectionID
	p.ConnectionID = caller.ConnectionID
	c.logger.Debug("player reconnected",
		zap.String("room_id", h.room.ID),
		zap.String("player_id", playerID),
		zap.String("previous_connection", previousConnectionID),
		zap.String("connection", caller.ConnectionID))
	c.sendRoomMessage(h, caller.ConnectionID, messages.MessageTypeReconnected, messages.MessageReconnected{
		State: h.room.State(),
	})
	if h.room.Phase.InProgress() {
		c.notifyTurnTo(h, p)
	}
	return nil
}

// Disconnect handles a closed connection. Any queue entry is removed and the
// player leaves its room with the same rules as LeaveRoom. If the player is
// bound to another connection because of a reconnect, the room is not left.
func (c *Coordinator) Disconnect(caller Caller) {
	// Holding the matchmaking mutex makes sure that the player is either still
	// queued or already seated.
	c.matchmakingMutex.Lock()
	c.queue.cancelForConnection(caller.PlayerID, caller.ConnectionID)
	roomID, ok := c.directory.lookup(caller.PlayerID)
	c.matchmakingMutex.Unlock()
	if !ok {
		return
	}
	h, err := c.lockRoom(roomID)
	if err != nil {
		return
	}
	defer h.mutex.Unlock()
	p, ok := h.room.Player(caller.PlayerID)
	if !ok {
		return
	}
	if p.ConnectionID != caller.ConnectionID {
		c.logger.Debug("ignoring disconnect of stale connection",
			zap.String("room_id", h.room.ID),
			zap.String("player_id", caller.PlayerID),
			zap.String("connection", caller.ConnectionID))
		return
	}
	err = c.removePlayer(h, caller.PlayerID)
	if err != nil {
		errors.Log(c.logger, errors.Wrap(err, "remove disconnected player", nil))
	}
}

// SweepExpired deletes all rooms older than the configured TTL after sending
// room-expired to their remaining members. It returns the number of deleted
// rooms.
func (c *Coordinator) SweepExpired() int {
	now := c.now()
	swept := 0
	for _, h := range c.registry.all() {
		h.mutex.Lock()
		if !h.closed && now.Sub(h.room.CreatedAt) > c.config.RoomTTL {
			c.broadcast(h, messages.MessageTypeRoomExpired, nil)
			c.closeRoom(h)
			swept++
		}
		h.mutex.Unlock()
	}
	return swept
}
