package messages

import (
	"github.com/lefinal/pairs-server/deck"
	"github.com/lefinal/pairs-server/game"
)

// Message types of events that are sent to clients.
const (
	// MessageTypeError is used for error messages. The content is being set to
	// MessageError.
	MessageTypeError MessageType = "error"
	// MessageTypeWelcome is sent to each new connection with MessageWelcome.
	MessageTypeWelcome MessageType = "welcome"
	// MessageTypeQueueEntered confirms entering the matchmaking queue.
	MessageTypeQueueEntered MessageType = "queue-entered"
	// MessageTypeSessionPaired is sent with MessageSessionPaired to both players
	// paired by matchmaking.
	MessageTypeSessionPaired MessageType = "session-paired"
	// MessageTypeRoomCreated is sent with MessageRoomCreated to the creator of a
	// room.
	MessageTypeRoomCreated MessageType = "room-created"
	// MessageTypePlayerJoined is broadcast with MessagePlayerJoined.
	MessageTypePlayerJoined MessageType = "player-joined"
	// MessageTypeGameStarted is broadcast with MessageGameStarted.
	MessageTypeGameStarted MessageType = "game-started"
	// MessageTypeYourTurn is sent to the turn holder.
	MessageTypeYourTurn MessageType = "your-turn"
	// MessageTypeWaitTurn is sent to the player not holding the turn.
	MessageTypeWaitTurn MessageType = "wait-turn"
	// MessageTypeCardFlipped is broadcast with MessageCardFlipped.
	MessageTypeCardFlipped MessageType = "card-flipped"
	// MessageTypePairMatched is broadcast with MessagePairMatched.
	MessageTypePairMatched MessageType = "pair-matched"
	// MessageTypeScoreUpdated is broadcast with MessageScoreUpdated.
	MessageTypeScoreUpdated MessageType = "score-updated"
	// MessageTypeNoMatch is broadcast with MessageNoMatch.
	MessageTypeNoMatch MessageType = "no-match"
	// MessageTypeTurnChanged is broadcast with MessageTurnChanged.
	MessageTypeTurnChanged MessageType = "turn-changed"
	// MessageTypeGameOver is broadcast with MessageGameOver.
	MessageTypeGameOver MessageType = "game-over"
	// MessageTypePlayerLeft is broadcast with MessagePlayerLeft.
	MessageTypePlayerLeft MessageType = "player-left"
	// MessageTypeRoomExpired is sent to remaining members of a swept room.
	MessageTypeRoomExpired MessageType = "room-expired"
	// MessageTypeReconnected is sent with MessageReconnected to a reconnecting
	// connection.
	MessageTypeReconnected MessageType = "reconnected"
	// MessageTypeAvailableRooms is sent with MessageAvailableRooms.
	MessageTypeAvailableRooms MessageType = "available-rooms"
)

// MessageWelcome is used with MessageTypeWelcome.
type MessageWelcome struct {
	// ConnectionID is the id of the connection.
	ConnectionID string `json:"connection_id"`
	// PlayerID is the stable identity assigned to the connection.
	PlayerID string `json:"player_id"`
}

// MessageQueueEntered is used with MessageTypeQueueEntered.
type MessageQueueEntered struct {
	Difficulty deck.Difficulty `json:"difficulty"`
	Theme      string          `json:"theme"`
}

// MessageSessionPaired is used with MessageTypeSessionPaired.
type MessageSessionPaired struct {
	RoomID  string        `json:"room_id"`
	Players []game.Player `json:"players"`
}

// MessageRoomCreated is used with MessageTypeRoomCreated.
type MessageRoomCreated struct {
	RoomID     string          `json:"room_id"`
	Difficulty deck.Difficulty `json:"difficulty"`
	Theme      string          `json:"theme"`
}

// MessagePlayerJoined is used with MessageTypePlayerJoined.
type MessagePlayerJoined struct {
	PlayerID string        `json:"player_id"`
	Name     string        `json:"name"`
	Players  []game.Player `json:"players"`
}

// MessageGameStarted is used with MessageTypeGameStarted.
type MessageGameStarted struct {
	Deck          []deck.Card   `json:"deck"`
	Players       []game.Player `json:"players"`
	CurrentPlayer string        `json:"current_player"`
}

// MessageCardFlipped is used with MessageTypeCardFlipped.
type MessageCardFlipped struct {
	CardIndex int    `json:"card_index"`
	Value     string `json:"value"`
	PlayerID  string `json:"player_id"`
}

// MessagePairMatched is used with MessageTypePairMatched.
type MessagePairMatched struct {
	Value    string `json:"value"`
	PlayerID string `json:"player_id"`
	Score    int    `json:"score"`
}

// MessageScoreUpdated is used with MessageTypeScoreUpdated.
type MessageScoreUpdated struct {
	Players []game.Player `json:"players"`
}

// MessageNoMatch is used with MessageTypeNoMatch.
type MessageNoMatch struct {
	FirstCardIndex  int    `json:"first_card_index"`
	SecondCardIndex int    `json:"second_card_index"`
	PlayerID        string `json:"player_id"`
}

// MessageTurnChanged is used with MessageTypeTurnChanged.
type MessageTurnChanged struct {
	CurrentPlayer string `json:"current_player"`
}

// MessageGameOver is used with MessageTypeGameOver.
type MessageGameOver struct {
	Reason  game.FinishReason   `json:"reason"`
	Tie     bool                `json:"tie"`
	Winner  string              `json:"winner,omitempty"`
	Results []game.PlayerResult `json:"results"`
}

// MessagePlayerLeft is used with MessageTypePlayerLeft.
type MessagePlayerLeft struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	// Players are the remaining players.
	Players []game.Player `json:"players"`
	// WinnerByDefault is set when the departure resulted in a forfeit win.
	WinnerByDefault bool `json:"winner_by_default"`
}

// MessageReconnected is used with MessageTypeReconnected.
type MessageReconnected struct {
	State game.State `json:"state"`
}

// RoomSummary is an entry in MessageAvailableRooms.
type RoomSummary struct {
	RoomID      string          `json:"room_id"`
	PlayerCount int             `json:"player_count"`
	Difficulty  deck.Difficulty `json:"difficulty"`
	Theme       string          `json:"theme"`
}

// MessageAvailableRooms is used with MessageTypeAvailableRooms.
type MessageAvailableRooms struct {
	Rooms []RoomSummary `json:"rooms"`
}
