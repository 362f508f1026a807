package coordinator

import (
	"github.com/google/uuid"
	"github.com/lefinal/pairs-server/game"
	"sort"
	"strings"
	"sync"
)

// roomIDLength is the length of room codes.
const roomIDLength = 6

// roomHandle guards a game.Room. All fields are guarded by mutex.
type roomHandle struct {
	mutex sync.Mutex
	room  *game.Room
	// closed is set when the room was removed from the registry. Operations on
	// closed rooms behave as if the room does not exist.
	closed bool
	// seq is the sequence number of the last message sent for the room.
	seq uint64
	// flipBackGeneration is incremented whenever a scheduled flip-back becomes
	// obsolete. Callbacks with an older generation are ignored.
	flipBackGeneration uint64
	// cancelFlipBack cancels the pending flip-back if set.
	cancelFlipBack func()
}

// registry holds all rooms by id. Lock order is room handle before registry.
type registry struct {
	mutex sync.RWMutex
	rooms map[string]*roomHandle
	// newRoomID generates room codes.
	newRoomID func() string
}

func newRegistry() *registry {
	return &registry{
		rooms:     make(map[string]*roomHandle),
		newRoomID: genRoomID,
	}
}

// genRoomID generates a 6-character uppercase room code.
func genRoomID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:roomIDLength])
}

// normalizeRoomID allows clients to use lowercase codes.
func normalizeRoomID(roomID string) string {
	return strings.ToUpper(strings.TrimSpace(roomID))
}

// insert assigns a unique room code to the room of the given handle and adds it
// to the registry. Codes are regenerated on collision.
func (reg *registry) insert(h *roomHandle) string {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()
	for {
		id := reg.newRoomID()
		if _, ok := reg.rooms[id]; ok {
			continue
		}
		h.room.ID = id
		reg.rooms[id] = h
		return id
	}
}

// get returns the handle for the room with the given id.
func (reg *registry) get(roomID string) (*roomHandle, bool) {
	reg.mutex.RLock()
	defer reg.mutex.RUnlock()
	h, ok := reg.rooms[roomID]
	return h, ok
}

// remove removes the room with the given id.
func (reg *registry) remove(roomID string) {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()
	delete(reg.rooms, roomID)
}

// all returns all handles. The handles are not locked.
func (reg *registry) all() []*roomHandle {
	reg.mutex.RLock()
	defer reg.mutex.RUnlock()
	handles := make([]*roomHandle, 0, len(reg.rooms))
	for _, h := range reg.rooms {
		handles = append(handles, h)
	}
	return handles
}

// count returns the number of rooms.
func (reg *registry) count() int {
	reg.mutex.RLock()
	defer reg.mutex.RUnlock()
	return len(reg.rooms)
}

// directory maps player identities to the room they are member of. A player
// is member of at most one room.
type directory struct {
	mutex   sync.Mutex
	players map[string]string
}

func newDirectory() *directory {
	return &directory{
		players: make(map[string]string),
	}
}

// claim binds the player to the given room. If the player is already bound to
// another room, the id of that room is returned together with false.
func (d *directory) claim(playerID string, roomID string) (string, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if existing, ok := d.players[playerID]; ok && existing != roomID {
		return existing, false
	}
	d.players[playerID] = roomID
	return roomID, true
}

// release unbinds the player if it is bound to the given room.
func (d *directory) release(playerID string, roomID string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.players[playerID] == roomID {
		delete(d.players, playerID)
	}
}

// lookup returns the room the player is bound to.
func (d *directory) lookup(playerID string) (string, bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	roomID, ok := d.players[playerID]
	return roomID, ok
}

// count returns the number of players in rooms.
func (d *directory) count() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.players)
}

// sortHandlesByCreation sorts the given handles by room creation. Handles need
// not be locked as the creation timestamp is immutable.
func sortHandlesByCreation(handles []*roomHandle) {
	sort.Slice(handles, func(i, j int) bool {
		return handles[i].room.CreatedAt.Before(handles[j].room.CreatedAt)
	})
}
