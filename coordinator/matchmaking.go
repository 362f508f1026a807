package coordinator

import (
	"github.com/lefinal/pairs-server/deck"
	"github.com/lefinal/pairs-server/errors"
	"github.com/lefinal/pairs-server/game"
	"github.com/lefinal/pairs-server/messages"
	"go.uber.org/zap"
	"strings"
	"sync"
	"time"
)

// QueueEntry is a player waiting for an opponent.
type QueueEntry struct {
	PlayerID     string
	ConnectionID string
	Name         string
	Difficulty   deck.Difficulty
	Theme        string
	EnqueuedAt   time.Time
}

// PairingPolicy decides the room settings for two paired entries. first is the
// entry that was queued earlier. It is called while matchmaking is locked and
// must not call back into the Coordinator.
type PairingPolicy func(first QueueEntry, second QueueEntry) (deck.Difficulty, string)

// FirstQueuedSettlesPolicy uses the settings of the earlier queued entry.
func FirstQueuedSettlesPolicy(first QueueEntry, _ QueueEntry) (deck.Difficulty, string) {
	return first.Difficulty, first.Theme
}

// matchmakingQueue is a FIFO list of QueueEntry. Its lock is never held
// together with another one.
type matchmakingQueue struct {
	mutex   sync.Mutex
	entries []QueueEntry
}

// contains checks whether the given player is queued.
func (q *matchmakingQueue) contains(playerID string) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for _, e := range q.entries {
		if e.PlayerID == playerID {
			return true
		}
	}
	return false
}

// enter appends the given entry. If the player is already queued, nothing
// changes and false is returned.
func (q *matchmakingQueue) enter(entry QueueEntry) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for _, e := range q.entries {
		if e.PlayerID == entry.PlayerID {
			return false
		}
	}
	q.entries = append(q.entries, entry)
	return true
}

// cancel removes the entry of the given player. It returns false if the
// player was not queued.
func (q *matchmakingQueue) cancel(playerID string) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for i, e := range q.entries {
		if e.PlayerID == playerID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// cancelForConnection removes the entry of the given player only if it was
// queued from the given connection.
func (q *matchmakingQueue) cancelForConnection(playerID string, connectionID string) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for i, e := range q.entries {
		if e.PlayerID == playerID && e.ConnectionID == connectionID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// popPair removes and returns the two oldest entries.
func (q *matchmakingQueue) popPair() (QueueEntry, QueueEntry, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if len(q.entries) < 2 {
		return QueueEntry{}, QueueEntry{}, false
	}
	first, second := q.entries[0], q.entries[1]
	q.entries = append(q.entries[:0], q.entries[2:]...)
	return first, second, true
}

// pushFront puts the given entry back to the head of the queue unless the
// player queued again in the meantime.
func (q *matchmakingQueue) pushFront(entry QueueEntry) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for _, e := range q.entries {
		if e.PlayerID == entry.PlayerID {
			return
		}
	}
	q.entries = append([]QueueEntry{entry}, q.entries...)
}

// size returns the number of queued entries.
func (q *matchmakingQueue) size() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.entries)
}

// EnterQueue enters the matchmaking queue for the caller. Entering again while
// already queued keeps the original position. As soon as two players are
// queued, they are paired into a new room.
func (c *Coordinator) EnterQueue(caller Caller, name string, settings messages.RoomSettings) error {
	difficulty, theme, err := resolveSettings(settings)
	if err != nil {
		return err
	}
	c.leaveFinishedRoom(caller)
	c.matchmakingMutex.Lock()
	defer c.matchmakingMutex.Unlock()
	if roomID, ok := c.directory.lookup(caller.PlayerID); ok {
		return errors.NewPlayerAlreadyInRoomError(roomID)
	}
	if c.queue.contains(caller.PlayerID) {
		return nil
	}
	// The confirmation must be delivered before any pairing message.
	c.notifier.Notify(caller.ConnectionID, messages.Outgoing{
		MessageType: messages.MessageTypeQueueEntered,
		Content: messages.MessageQueueEntered{
			Difficulty: difficulty,
			Theme:      theme,
		},
	})
	c.queue.enter(QueueEntry{
		PlayerID:     caller.PlayerID,
		ConnectionID: caller.ConnectionID,
		Name:         strings.TrimSpace(name),
		Difficulty:   difficulty,
		Theme:        theme,
		EnqueuedAt:   c.now(),
	})
	c.logger.Debug("player entered queue", zap.String("player_id", caller.PlayerID))
	c.tryPair()
	return nil
}

// CancelQueue removes the caller from the matchmaking queue. It is a no-op if
// the caller is not queued.
func (c *Coordinator) CancelQueue(caller Caller) {
	if c.leaveQueue(caller.PlayerID) {
		c.logger.Debug("player left queue", zap.String("player_id", caller.PlayerID))
	}
}

// leaveQueue removes the player's queue entry. If the player is currently being
// paired, it waits until pairing is done.
func (c *Coordinator) leaveQueue(playerID string) bool {
	c.matchmakingMutex.Lock()
	defer c.matchmakingMutex.Unlock()
	return c.queue.cancel(playerID)
}

// tryPair pairs the two oldest entries as long as possible. The matchmaking
// mutex must be held.
func (c *Coordinator) tryPair() {
	for {
		first, second, ok := c.queue.popPair()
		if !ok {
			return
		}
		requeue, err := c.pair(first, second)
		if err != nil {
			errors.Log(c.logger, errors.Wrap(err, "pair players", nil))
		}
		// Put back in reverse order to keep the original order.
		for i := len(requeue) - 1; i >= 0; i-- {
			c.queue.pushFront(requeue[i])
		}
		if len(requeue) > 0 {
			// Avoid looping on the same entries. The next enter triggers pairing again.
			return
		}
	}
}

// pair creates a ready room for the given entries. Entries that could not be
// placed although they are still eligible are returned for requeueing.
func (c *Coordinator) pair(first QueueEntry, second QueueEntry) ([]QueueEntry, error) {
	difficulty, theme := c.config.PairingPolicy(first, second)
	h := &roomHandle{room: game.NewRoom("", difficulty, theme, c.now())}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	roomID := c.registry.insert(h)
	entries := []QueueEntry{first, second}
	claimed := make([]QueueEntry, 0, len(entries))
	for _, entry := range entries {
		// The player might have joined a room in the meantime.
		if _, ok := c.directory.claim(entry.PlayerID, roomID); ok {
			claimed = append(claimed, entry)
		}
	}
	abort := func() {
		for _, entry := range claimed {
			c.directory.release(entry.PlayerID, roomID)
		}
		h.closed = true
		c.registry.remove(roomID)
	}
	if len(claimed) < len(entries) {
		abort()
		return claimed, nil
	}
	for _, entry := range entries {
		err := h.room.AddPlayer(game.Player{
			ID:           entry.PlayerID,
			ConnectionID: entry.ConnectionID,
			Name:         entry.Name,
		})
		if err != nil {
			abort()
			return nil, errors.Wrap(err, "add player", errors.Details{"player_id": entry.PlayerID})
		}
	}
	err := c.deal(h)
	if err != nil {
		abort()
		return nil, errors.Wrap(err, "deal", errors.Details{"room_id": roomID})
	}
	c.logger.Debug("players paired",
		zap.String("room_id", roomID),
		zap.String("first", first.PlayerID),
		zap.String("second", second.PlayerID))
	c.broadcast(h, messages.MessageTypeSessionPaired, messages.MessageSessionPaired{
		RoomID:  roomID,
		Players: h.room.PlayerList(),
	})
	return nil, nil
}
