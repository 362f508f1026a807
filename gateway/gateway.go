// Package gateway binds websocket connections to the coordinator. Each
// connection gets a session that parses incoming requests and dispatches them.
package gateway

import (
	"context"
	"github.com/google/uuid"
	"github.com/lefinal/pairs-server/coordinator"
	"github.com/lefinal/pairs-server/errors"
	"github.com/lefinal/pairs-server/messages"
	"github.com/lefinal/pairs-server/ws"
	"go.uber.org/zap"
)

// Coordinator is the set of coordinator operations used by the Gateway.
type Coordinator interface {
	EnterQueue(caller coordinator.Caller, name string, settings messages.RoomSettings) error
	CancelQueue(caller coordinator.Caller)
	CreateRoom(caller coordinator.Caller, name string, settings messages.RoomSettings) (string, error)
	JoinRoom(caller coordinator.Caller, roomID string, name string) error
	StartGame(caller coordinator.Caller, roomID string) error
	FlipCard(caller coordinator.Caller, roomID string, cardIndex int, claimedPlayerID string) error
	ContinueTurn(caller coordinator.Caller, roomID string) error
	EndTurn(caller coordinator.Caller, roomID string, firstCardIndex int, secondCardIndex int) error
	LeaveRoom(caller coordinator.Caller, roomID string) error
	Reconnect(caller coordinator.Caller, roomID string, playerID string) error
	Disconnect(caller coordinator.Caller)
	ListRooms() []messages.RoomSummary
}

// Gateway accepts clients and runs a session for each of them. It implements
// ws.Listener.
type Gateway struct {
	logger      *zap.Logger
	coordinator Coordinator
	notifier    coordinator.Notifier
	// newPlayerID generates the stable identity for new connections.
	newPlayerID func() string
}

// New creates a new Gateway. Outgoing messages are sent using the given
// coordinator.Notifier.
func New(logger *zap.Logger, coord Coordinator, notifier coordinator.Notifier) *Gateway {
	return &Gateway{
		logger:      logger,
		coordinator: coord,
		notifier:    notifier,
		newPlayerID: func() string {
			return uuid.New().String()
		},
	}
}

// session holds the state of a single connection.
type session struct {
	logger *zap.Logger
	caller coordinator.Caller
}

// AcceptClient runs the session for the given client until its receive-channel
// is closed or the context is done. The player then leaves its room.
func (g *Gateway) AcceptClient(ctx context.Context, client *ws.Client) {
	s := &session{
		caller: coordinator.Caller{
			PlayerID:     g.newPlayerID(),
			ConnectionID: client.ID,
		},
	}
	s.logger = g.logger.With(zap.String("connection_id", client.ID))
	g.notifier.Notify(client.ID, messages.Outgoing{
		MessageType: messages.MessageTypeWelcome,
		Content: messages.MessageWelcome{
			ConnectionID: s.caller.ConnectionID,
			PlayerID:     s.caller.PlayerID,
		},
	})
	defer func() {
		g.coordinator.Disconnect(s.caller)
		s.logger.Debug("session closed", zap.String("player_id", s.caller.PlayerID))
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, more := <-client.Receive:
			if !more {
				return
			}
			err := g.handleMessage(s, raw)
			if err != nil {
				errors.Log(s.logger, err)
				g.notifier.Notify(s.caller.ConnectionID, messages.ErrorFromError(err))
			}
		}
	}
}

// handleMessage parses the given raw message and dispatches it to the
// Coordinator.
func (g *Gateway) handleMessage(s *session, raw []byte) error {
	request, err := messages.ParseRequest(raw)
	if err != nil {
		return errors.Wrap(err, "parse request", nil)
	}
	switch r := request.(type) {
	case *messages.MessageEnterQueue:
		err = g.coordinator.EnterQueue(s.caller, r.Name, r.RoomSettings)
	case *messages.MessageCancelQueue:
		g.coordinator.CancelQueue(s.caller)
	case *messages.MessageCreateRoom:
		_, err = g.coordinator.CreateRoom(s.caller, r.Name, r.RoomSettings)
	case *messages.MessageJoinRoom:
		err = g.coordinator.JoinRoom(s.caller, r.RoomID, r.Name)
	case *messages.MessageStartGame:
		err = g.coordinator.StartGame(s.caller, r.RoomID)
	case *messages.MessageFlipCard:
		err = g.coordinator.FlipCard(s.caller, r.RoomID, *r.CardIndex, r.PlayerID)
	case *messages.MessageContinueTurn:
		err = g.coordinator.ContinueTurn(s.caller, r.RoomID)
	case *messages.MessageEndTurn:
		err = g.coordinator.EndTurn(s.caller, r.RoomID, *r.FirstCardIndex, *r.SecondCardIndex)
	case *messages.MessageLeaveRoom:
		err = g.coordinator.LeaveRoom(s.caller, r.RoomID)
	case *messages.MessageReconnect:
		err = g.coordinator.Reconnect(s.caller, r.RoomID, r.PlayerID)
		if err == nil {
			s.logger.Debug("session adopted player identity",
				zap.String("previous_player_id", s.caller.PlayerID),
				zap.String("player_id", r.PlayerID))
			s.caller.PlayerID = r.PlayerID
		}
	case *messages.MessageListRooms:
		g.notifier.Notify(s.caller.ConnectionID, messages.Outgoing{
			MessageType: messages.MessageTypeAvailableRooms,
			Content:     messages.MessageAvailableRooms{Rooms: g.coordinator.ListRooms()},
		})
	default:
		return errors.NewInternalError("no handler for request", errors.Details{"message_type": request.Type()})
	}
	if err != nil {
		return errors.Wrap(err, "handle request", errors.Details{"message_type": request.Type()})
	}
	return nil
}
