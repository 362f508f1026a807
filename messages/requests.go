package messages

import (
	"encoding/json"
	"fmt"
	"github.com/lefinal/pairs-server/deck"
	"github.com/lefinal/pairs-server/errors"
	"strings"
	"unicode/utf8"
)

// Message types of requests.
const (
	// MessageTypeEnterQueue is received with MessageEnterQueue for entering the
	// matchmaking queue.
	MessageTypeEnterQueue MessageType = "enter-queue"
	// MessageTypeCancelQueue is received for leaving the matchmaking queue.
	MessageTypeCancelQueue MessageType = "cancel-queue"
	// MessageTypeCreateRoom is received with MessageCreateRoom.
	MessageTypeCreateRoom MessageType = "create-room"
	// MessageTypeJoinRoom is received with MessageJoinRoom.
	MessageTypeJoinRoom MessageType = "join-room"
	// MessageTypeStartGame is received with MessageStartGame.
	MessageTypeStartGame MessageType = "start-game"
	// MessageTypeFlipCard is received with MessageFlipCard.
	MessageTypeFlipCard MessageType = "flip-card"
	// MessageTypeContinueTurn is received with MessageContinueTurn.
	MessageTypeContinueTurn MessageType = "continue-turn"
	// MessageTypeEndTurn is received with MessageEndTurn.
	MessageTypeEndTurn MessageType = "end-turn"
	// MessageTypeLeaveRoom is received with MessageLeaveRoom.
	MessageTypeLeaveRoom MessageType = "leave-room"
	// MessageTypeReconnect is received with MessageReconnect.
	MessageTypeReconnect MessageType = "reconnect"
	// MessageTypeListRooms is received for requesting all rooms waiting for
	// players.
	MessageTypeListRooms MessageType = "list-rooms"
)

// MaxNameLength is the maximum length of display names in runes.
const MaxNameLength = 32

// Request is a parsed and validated request from a client. The set of
// implementations is closed.
type Request interface {
	// Type returns the MessageType of the request.
	Type() MessageType
	validate() error
}

// RoomSettings are the optional settings for new rooms.
type RoomSettings struct {
	// Difficulty is the optional difficulty name.
	Difficulty string `json:"difficulty"`
	// Theme is the optional theme name.
	Theme string `json:"theme"`
}

func (s RoomSettings) validate() error {
	if _, err := deck.ParseDifficulty(s.Difficulty); err != nil {
		return errors.Wrap(err, "parse difficulty", nil)
	}
	if _, err := deck.ThemeByName(s.Theme); err != nil {
		return errors.Wrap(err, "theme by name", nil)
	}
	return nil
}

// MessageEnterQueue is used with MessageTypeEnterQueue.
type MessageEnterQueue struct {
	Name string `json:"name"`
	RoomSettings
}

func (m *MessageEnterQueue) Type() MessageType { return MessageTypeEnterQueue }

func (m *MessageEnterQueue) validate() error {
	if err := validateName(m.Name); err != nil {
		return err
	}
	return m.RoomSettings.validate()
}

// MessageCancelQueue is used with MessageTypeCancelQueue.
type MessageCancelQueue struct{}

func (m *MessageCancelQueue) Type() MessageType { return MessageTypeCancelQueue }

func (m *MessageCancelQueue) validate() error { return nil }

// MessageCreateRoom is used with MessageTypeCreateRoom.
type MessageCreateRoom struct {
	Name string `json:"name"`
	RoomSettings
}

func (m *MessageCreateRoom) Type() MessageType { return MessageTypeCreateRoom }

func (m *MessageCreateRoom) validate() error {
	if err := validateName(m.Name); err != nil {
		return err
	}
	return m.RoomSettings.validate()
}

// MessageJoinRoom is used with MessageTypeJoinRoom.
type MessageJoinRoom struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
}

func (m *MessageJoinRoom) Type() MessageType { return MessageTypeJoinRoom }

func (m *MessageJoinRoom) validate() error {
	if err := validateRoomID(m.RoomID); err != nil {
		return err
	}
	return validateName(m.Name)
}

// MessageStartGame is used with MessageTypeStartGame.
type MessageStartGame struct {
	RoomID string `json:"room_id"`
}

func (m *MessageStartGame) Type() MessageType { return MessageTypeStartGame }

func (m *MessageStartGame) validate() error { return validateRoomID(m.RoomID) }

// MessageFlipCard is used with MessageTypeFlipCard.
type MessageFlipCard struct {
	RoomID    string `json:"room_id"`
	CardIndex *int   `json:"card_index"`
	// PlayerID is optional. If set, it must equal the identity of the sending
	// connection.
	PlayerID string `json:"player_id"`
}

func (m *MessageFlipCard) Type() MessageType { return MessageTypeFlipCard }

func (m *MessageFlipCard) validate() error {
	if err := validateRoomID(m.RoomID); err != nil {
		return err
	}
	return validateCardIndex("card_index", m.CardIndex)
}

// MessageContinueTurn is used with MessageTypeContinueTurn.
type MessageContinueTurn struct {
	RoomID string `json:"room_id"`
}

func (m *MessageContinueTurn) Type() MessageType { return MessageTypeContinueTurn }

func (m *MessageContinueTurn) validate() error { return validateRoomID(m.RoomID) }

// MessageEndTurn is used with MessageTypeEndTurn.
type MessageEndTurn struct {
	RoomID          string `json:"room_id"`
	FirstCardIndex  *int   `json:"first_card_index"`
	SecondCardIndex *int   `json:"second_card_index"`
}

func (m *MessageEndTurn) Type() MessageType { return MessageTypeEndTurn }

func (m *MessageEndTurn) validate() error {
	if err := validateRoomID(m.RoomID); err != nil {
		return err
	}
	if err := validateCardIndex("first_card_index", m.FirstCardIndex); err != nil {
		return err
	}
	return validateCardIndex("second_card_index", m.SecondCardIndex)
}

// MessageLeaveRoom is used with MessageTypeLeaveRoom.
type MessageLeaveRoom struct {
	RoomID string `json:"room_id"`
}

func (m *MessageLeaveRoom) Type() MessageType { return MessageTypeLeaveRoom }

func (m *MessageLeaveRoom) validate() error { return validateRoomID(m.RoomID) }

// MessageReconnect is used with MessageTypeReconnect.
type MessageReconnect struct {
	RoomID string `json:"room_id"`
	// PlayerID is the stable identity the player had before.
	PlayerID string `json:"player_id"`
}

func (m *MessageReconnect) Type() MessageType { return MessageTypeReconnect }

func (m *MessageReconnect) validate() error {
	if err := validateRoomID(m.RoomID); err != nil {
		return err
	}
	if m.PlayerID == "" {
		return errors.NewValidationError("missing player id", errors.Details{"field": "player_id"})
	}
	return nil
}

// MessageListRooms is used with MessageTypeListRooms.
type MessageListRooms struct{}

func (m *MessageListRooms) Type() MessageType { return MessageTypeListRooms }

func (m *MessageListRooms) validate() error { return nil }

// requestContainerForType returns an empty Request for the given
// MessageType.
func requestContainerForType(messageType MessageType) (Request, bool) {
	switch messageType {
	case MessageTypeEnterQueue:
		return &MessageEnterQueue{}, true
	case MessageTypeCancelQueue:
		return &MessageCancelQueue{}, true
	case MessageTypeCreateRoom:
		return &MessageCreateRoom{}, true
	case MessageTypeJoinRoom:
		return &MessageJoinRoom{}, true
	case MessageTypeStartGame:
		return &MessageStartGame{}, true
	case MessageTypeFlipCard:
		return &MessageFlipCard{}, true
	case MessageTypeContinueTurn:
		return &MessageContinueTurn{}, true
	case MessageTypeEndTurn:
		return &MessageEndTurn{}, true
	case MessageTypeLeaveRoom:
		return &MessageLeaveRoom{}, true
	case MessageTypeReconnect:
		return &MessageReconnect{}, true
	case MessageTypeListRooms:
		return &MessageListRooms{}, true
	}
	return nil, false
}

// ParseRequest parses the given raw message and validates required fields.
func ParseRequest(raw []byte) (Request, error) {
	var container MessageContainer
	if err := json.Unmarshal(raw, &container); err != nil {
		return nil, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindDecodeJSON,
			Err:     err,
			Message: "parse message container",
		}
	}
	req, ok := requestContainerForType(container.MessageType)
	if !ok {
		return nil, errors.Error{
			Code:    errors.ErrProtocolViolation,
			Kind:    errors.KindUnknownMessageType,
			Message: fmt.Sprintf("unknown message type: %s", container.MessageType),
			Details: errors.Details{"message_type": container.MessageType},
		}
	}
	if len(container.Content) > 0 && string(container.Content) != "null" {
		if err := json.Unmarshal(container.Content, req); err != nil {
			return nil, errors.Error{
				Code:    errors.ErrProtocolViolation,
				Kind:    errors.KindDecodeJSON,
				Err:     err,
				Message: "parse message content",
				Details: errors.Details{"message_type": container.MessageType},
			}
		}
	}
	if err := req.validate(); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("validate %s", container.MessageType), nil)
	}
	return req, nil
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.NewValidationError("missing name", errors.Details{"field": "name"})
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return errors.NewValidationError(fmt.Sprintf("name must not be longer than %d characters", MaxNameLength),
			errors.Details{"field": "name"})
	}
	return nil
}

func validateRoomID(roomID string) error {
	if roomID == "" {
		return errors.NewValidationError("missing room id", errors.Details{"field": "room_id"})
	}
	return nil
}

func validateCardIndex(field string, index *int) error {
	if index == nil {
		return errors.NewValidationError(fmt.Sprintf("missing %s", field), errors.Details{"field": field})
	}
	if *index < 0 {
		return errors.NewValidationError(fmt.Sprintf("%s must not be negative", field),
			errors.Details{"field": field, "value": *index})
	}
	return nil
}
