// Package messages provides the message catalogue that is used for
// communicating with clients.
package messages

import (
	"encoding/json"
	"github.com/lefinal/pairs-server/errors"
)

// MessageType is the type of message and serves for using the correct parsing
// method.
type MessageType string

// MessageContainer is a container for all messages that are sent and received.
// It holds some meta information as well as the actual payload.
type MessageContainer struct {
	// MessageType is the type of the message.
	MessageType MessageType `json:"message_type"`
	// RoomID is set for outgoing messages that belong to a room.
	RoomID string `json:"room_id,omitempty"`
	// Seq is the per-room sequence number of room-scoped outgoing messages.
	Seq uint64 `json:"seq,omitempty"`
	// Content is the actual message content.
	Content json.RawMessage `json:"content,omitempty"`
}

// Outgoing is a message that is about to be sent to a client.
type Outgoing struct {
	// MessageType is the type of the message.
	MessageType MessageType
	// RoomID is the optional room the message belongs to.
	RoomID string
	// Seq is the optional per-room sequence number.
	Seq uint64
	// Content is the payload that will be encoded as JSON.
	Content interface{}
}

// Encode encodes the Outgoing message as MessageContainer.
func (o Outgoing) Encode() ([]byte, error) {
	container := MessageContainer{
		MessageType: o.MessageType,
		RoomID:      o.RoomID,
		Seq:         o.Seq,
	}
	if o.Content != nil {
		content, err := json.Marshal(o.Content)
		if err != nil {
			return nil, errors.Error{
				Code:    errors.ErrInternal,
				Kind:    errors.KindEncodeJSON,
				Err:     err,
				Message: "marshal message content",
				Details: errors.Details{"message_type": o.MessageType},
			}
		}
		container.Content = content
	}
	b, err := json.Marshal(container)
	if err != nil {
		return nil, errors.Error{
			Code:    errors.ErrInternal,
			Kind:    errors.KindEncodeJSON,
			Err:     err,
			Message: "marshal message container",
			Details: errors.Details{"message_type": o.MessageType},
		}
	}
	return b, nil
}

// MessageError is used with MessageTypeError for errors that need to be sent to
// clients.
type MessageError struct {
	// Code is the error code from errors.Error.
	Code string `json:"code"`
	// Kind is the error kind from errors.Error.
	Kind string `json:"kind"`
	// Message is the message from errors.Error.
	Message string `json:"message"`
	// Details are error details from errors.Error.
	Details map[string]interface{} `json:"details,omitempty"`
}

// MessageErrorFromError creates a MessageError from the given error. Errors
// not caused by the user are masked.
func MessageErrorFromError(err error) MessageError {
	e, _ := errors.Cast(err)
	if !errors.BlameUser(err) {
		return MessageError{
			Code:    string(e.Code),
			Kind:    string(errors.KindInternal),
			Message: "internal server error",
		}
	}
	return MessageError{
		Code:    string(e.Code),
		Kind:    string(e.Kind),
		Message: e.Error(),
		Details: e.Details,
	}
}

// ErrorFromError creates an Outgoing error message for the given error.
func ErrorFromError(err error) Outgoing {
	return Outgoing{
		MessageType: MessageTypeError,
		Content:     MessageErrorFromError(err),
	}
}
