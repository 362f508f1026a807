// Package coordinator manages rooms, matchmaking and turns of pairs sessions.
// All operations are safe for concurrent use and never block on timers.
package coordinator

import (
	"context"
	"github.com/lefinal/pairs-server/deck"
	"github.com/lefinal/pairs-server/errors"
	"github.com/lefinal/pairs-server/game"
	"github.com/lefinal/pairs-server/messages"
	"go.uber.org/zap"
	"math/rand"
	"sync"
	"time"
)

const (
	// DefaultRoomTTL is the default age after which rooms are swept.
	DefaultRoomTTL = time.Hour
	// DefaultSweepInterval is the default interval for sweeping expired rooms.
	DefaultSweepInterval = 30 * time.Minute
	// resultsBufferSize is the capacity of the results channel.
	resultsBufferSize = 64
)

// Notifier delivers messages to connections. Notify must not block.
type Notifier interface {
	Notify(connectionID string, message messages.Outgoing)
}

// Caller identifies the player and connection an operation is performed for.
type Caller struct {
	// PlayerID is the stable identity of the player.
	PlayerID string
	// ConnectionID is the id of the connection the request was received on.
	ConnectionID string
}

// Config is the configuration for a Coordinator.
type Config struct {
	// RoomTTL is the age after which rooms are deleted. Defaults to
	// DefaultRoomTTL.
	RoomTTL time.Duration
	// SweepInterval is the interval for sweeping expired rooms. Defaults to
	// DefaultSweepInterval.
	SweepInterval time.Duration
	// Scheduler is used for delayed flip-backs. Defaults to a Scheduler based on
	// time.AfterFunc.
	Scheduler Scheduler
	// DeckGenerator generates decks for new games. Defaults to a time-seeded
	// deck.Generator.
	DeckGenerator *deck.Generator
	// PairingPolicy decides room settings for matchmaking. Defaults to
	// FirstQueuedSettlesPolicy.
	PairingPolicy PairingPolicy
}

// Coordinator coordinates matchmaking, rooms and turns. Create one with New.
type Coordinator struct {
	logger    *zap.Logger
	config    Config
	notifier  Notifier
	registry  *registry
	directory *directory
	queue     *matchmakingQueue
	// matchmakingMutex serializes queue changes with pairing so that a player
	// taken from the queue cannot leave before being seated. Lock order is
	// matchmakingMutex before room handle.
	matchmakingMutex sync.Mutex
	// results receives outcomes of finished games.
	results chan game.Outcome
	// now returns the current time.
	now func() time.Time
	// pickFirst returns the index of the player holding the first turn out of
	// n players.
	pickFirst func(n int) int
}

// New creates a new Coordinator. Run it with Coordinator.Run in order to sweep
// expired rooms.
func New(logger *zap.Logger, config Config, notifier Notifier) *Coordinator {
	if config.RoomTTL <= 0 {
		config.RoomTTL = DefaultRoomTTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.Scheduler == nil {
		config.Scheduler = timeScheduler{}
	}
	if config.DeckGenerator == nil {
		config.DeckGenerator = deck.NewGenerator(nil)
	}
	if config.PairingPolicy == nil {
		config.PairingPolicy = FirstQueuedSettlesPolicy
	}
	return &Coordinator{
		logger:    logger,
		config:    config,
		notifier:  notifier,
		registry:  newRegistry(),
		directory: newDirectory(),
		queue:     &matchmakingQueue{},
		results:   make(chan game.Outcome, resultsBufferSize),
		now:       time.Now,
		pickFirst: rand.Intn,
	}
}

// Results returns the channel that receives outcomes of finished games. If
// nobody reads from it, outcomes are dropped.
func (c *Coordinator) Results() <-chan game.Outcome {
	return c.results
}

// Run sweeps expired rooms in the configured interval until the given context
// is done.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if swept := c.SweepExpired(); swept > 0 {
				c.logger.Info("swept expired rooms", zap.Int("count", swept))
			}
		}
	}
}

// Stats holds counters of the Coordinator.
type Stats struct {
	Rooms         int                `json:"rooms"`
	RoomsByPhase  map[game.Phase]int `json:"rooms_by_phase"`
	PlayersInRoom int                `json:"players_in_room"`
	Queued        int                `json:"queued"`
}

// Stats returns current counters.
func (c *Coordinator) Stats() Stats {
	stats := Stats{
		RoomsByPhase:  make(map[game.Phase]int),
		PlayersInRoom: c.directory.count(),
		Queued:        c.queue.size(),
	}
	for _, h := range c.registry.all() {
		h.mutex.Lock()
		if !h.closed {
			stats.Rooms++
			stats.RoomsByPhase[h.room.Phase]++
		}
		h.mutex.Unlock()
	}
	return stats
}

// ListRooms returns all rooms waiting for players ordered by creation.
func (c *Coordinator) ListRooms() []messages.RoomSummary {
	handles := c.registry.all()
	sortHandlesByCreation(handles)
	rooms := make([]messages.RoomSummary, 0)
	for _, h := range handles {
		h.mutex.Lock()
		if !h.closed && h.room.Phase == game.PhaseWaitingPlayers && !h.room.IsFull() && len(h.room.Players) > 0 {
			rooms = append(rooms, messages.RoomSummary{
				RoomID:      h.room.ID,
				PlayerCount: len(h.room.Players),
				Difficulty:  h.room.Difficulty,
				Theme:       h.room.Theme,
			})
		}
		h.mutex.Unlock()
	}
	return rooms
}

// lockRoom looks up the room with the given id and locks it. The caller must
// unlock the returned handle.
func (c *Coordinator) lockRoom(roomID string) (*roomHandle, error) {
	roomID = normalizeRoomID(roomID)
	h, ok := c.registry.get(roomID)
	if !ok {
		return nil, errors.NewRoomNotFoundError(roomID)
	}
	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		return nil, errors.NewRoomNotFoundError(roomID)
	}
	return h, nil
}

// lockRoomAsMember locks the room like lockRoom and makes sure that the caller
// is a member bound to the calling connection.
func (c *Coordinator) lockRoomAsMember(roomID string, caller Caller) (*roomHandle, *game.Player, error) {
	h, err := c.lockRoom(roomID)
	if err != nil {
		return nil, nil, err
	}
	p, ok := h.room.Player(caller.PlayerID)
	if !ok || p.ConnectionID != caller.ConnectionID {
		h.mutex.Unlock()
		return nil, nil, errors.NewPlayerNotInRoomError(h.room.ID, caller.PlayerID)
	}
	return h, p, nil
}

// publishOutcome hands the outcome to the results channel without blocking.
func (c *Coordinator) publishOutcome(outcome game.Outcome) {
	select {
	case c.results <- outcome:
	default:
		c.logger.Warn("dropping game outcome due to full results channel", zap.String("room_id", outcome.RoomID))
	}
}

// closeRoom removes the room from the registry and releases all members. The
// handle must be locked.
func (c *Coordinator) closeRoom(h *roomHandle) {
	c.cancelFlipBack(h)
	for _, p := range h.room.Players {
		c.directory.release(p.ID, h.room.ID)
	}
	h.closed = true
	c.registry.remove(h.room.ID)
	c.logger.Debug("room closed", zap.String("room_id", h.room.ID))
}
