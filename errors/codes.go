package errors

type Code string

const (
	ErrAborted           Code = "aborted"
	ErrBadRequest        Code = "bad-request"
	ErrCommunication     Code = "communication"
	ErrProtocolViolation Code = "protocol-violation"
	ErrFatal             Code = "fatal"
	ErrNotFound          Code = "not-found"
	ErrInternal          Code = "internal"
	ErrUnexpected        Code = "unexpected"
)

type Kind string

const (
	// KindRoomNotFound is used when a room with the requested id does not exist
	// (anymore).
	KindRoomNotFound Kind = "room-not-found"
	// KindRoomFull is used when a player wants to join a room that already has
	// two players.
	KindRoomFull Kind = "room-full"
	// KindNotYourTurn is used when a turn action is requested by a player who
	// does not hold the turn.
	KindNotYourTurn Kind = "not-your-turn"
	// KindInvalidCard is used for flips of unknown, flipped or matched cards as
	// well as flips while a pair is being evaluated.
	KindInvalidCard Kind = "invalid-card"
	// KindPlayerNotInRoom is used when the requesting player is not a member of
	// the addressed room.
	KindPlayerNotInRoom Kind = "player-not-in-room"
	// KindValidation is used for missing or malformed message fields.
	KindValidation Kind = "validation"
	// KindPhaseViolation is used for operations that were performed although
	// the room is not in the expected phase.
	KindPhaseViolation Kind = "phase-violation"
	// KindPlayerAlreadyInRoom is used when a player that is already member of a
	// room wants to create, join or queue for another one.
	KindPlayerAlreadyInRoom Kind = "player-already-in-room"
	KindDecodeJSON          Kind = "decode-json"
	KindEncodeJSON          Kind = "encode-json"
	// KindUnknownMessageType is used for messages with a type that is not part
	// of the message catalogue.
	KindUnknownMessageType Kind = "unknown-message-type"
	KindResourceNotFound   Kind = "resource-not-found"
	KindContextAborted     Kind = "context-aborted"
	KindDB                 Kind = "db"
	KindDBMigration        Kind = "db-migration"
	KindSendMessage        Kind = "send-message"
	KindPublish            Kind = "publish"
	KindInternal           Kind = "internal"
	KindUnexpected         Kind = "unexpected"
)
