package errors

import (
	"fmt"
)

// NewResourceNotFoundError returns a new ErrNotFound error with kind
// KindResourceNotFound and the given message.
func NewResourceNotFoundError(message string, details Details) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindResourceNotFound,
		Message: message,
		Details: details,
	}
}

// NewRoomNotFoundError returns an ErrNotFound error with KindRoomNotFound for
// the given room id.
func NewRoomNotFoundError(roomID string) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindRoomNotFound,
		Message: fmt.Sprintf("room %s not found", roomID),
		Details: Details{"room_id": roomID},
	}
}

// NewRoomFullError returns an ErrBadRequest error with KindRoomFull.
func NewRoomFullError(roomID string) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindRoomFull,
		Message: fmt.Sprintf("room %s is full", roomID),
		Details: Details{"room_id": roomID},
	}
}

// NewNotYourTurnError returns an ErrBadRequest error with KindNotYourTurn.
func NewNotYourTurnError(playerID string) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindNotYourTurn,
		Message: "not your turn",
		Details: Details{"player_id": playerID},
	}
}

// NewInvalidCardError returns an ErrBadRequest error with KindInvalidCard and
// the given reason.
func NewInvalidCardError(cardIndex int, reason string) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindInvalidCard,
		Message: fmt.Sprintf("invalid card %d: %s", cardIndex, reason),
		Details: Details{"card_index": cardIndex},
	}
}

// NewPlayerNotInRoomError returns an ErrNotFound error with
// KindPlayerNotInRoom.
func NewPlayerNotInRoomError(roomID string, playerID string) error {
	return Error{
		Code:    ErrNotFound,
		Kind:    KindPlayerNotInRoom,
		Message: fmt.Sprintf("player not in room %s", roomID),
		Details: Details{
			"room_id":   roomID,
			"player_id": playerID,
		},
	}
}

// NewValidationError returns an ErrBadRequest error with KindValidation.
func NewValidationError(message string, details Details) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindValidation,
		Message: message,
		Details: details,
	}
}

// NewPhaseViolationError returns an ErrBadRequest error with
// KindPhaseViolation.
func NewPhaseViolationError(message string, details Details) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindPhaseViolation,
		Message: message,
		Details: details,
	}
}

// NewPlayerAlreadyInRoomError returns an ErrBadRequest error with
// KindPlayerAlreadyInRoom.
func NewPlayerAlreadyInRoomError(roomID string) error {
	return Error{
		Code:    ErrBadRequest,
		Kind:    KindPlayerAlreadyInRoom,
		Message: fmt.Sprintf("player already in room %s", roomID),
		Details: Details{"room_id": roomID},
	}
}

// NewInternalError returns an ErrInternal error with the given message.
func NewInternalError(message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindInternal,
		Message: message,
		Details: details,
	}
}

// NewInternalErrorFromErr returns an ErrInternal error wrapping the given one.
func NewInternalErrorFromErr(err error, message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindInternal,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewContextAbortedError returns an ErrAborted error for the given operation.
func NewContextAbortedError(currentOperation string) error {
	return Error{
		Code:    ErrAborted,
		Kind:    KindContextAborted,
		Message: fmt.Sprintf("context aborted while %s", currentOperation),
	}
}

// NewQueryToSQLError is used for errors while building queries.
func NewQueryToSQLError(err error, details Details) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "query to sql",
		Details: details,
	}
}

// NewExecQueryError is used for failed query execution.
func NewExecQueryError(err error, message string, query string) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: message,
		Details: Details{"query": query},
	}
}

// NewScanDBRowError is used for failed row scans.
func NewScanDBRowError(err error, message string, query string) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: message,
		Details: Details{"query": query},
	}
}

// NewDBTxBeginError is used when a transaction could not be started.
func NewDBTxBeginError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "begin tx",
	}
}

// NewDBTxCommitError is used when a transaction could not be committed.
func NewDBTxCommitError(err error) error {
	return Error{
		Code:    ErrInternal,
		Kind:    KindDB,
		Err:     err,
		Message: "commit tx",
	}
}
