package ws

import (
	"context"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"net/http"
)

// HandleWS handles websocket requests. The passed context is used in order to
// stop all remaining read-pumps.
func HandleWS(logger *zap.Logger, hub *Hub, ctx context.Context) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Debug("upgrade websocket connection", zap.Error(err))
			return
		}
		id := uuid.New().String()
		client := &Client{
			ID:         id,
			Receive:    make(chan []byte, receiveBufferSize),
			send:       make(chan []byte, sendBufferSize),
			logger:     logger.Named("client").With(zap.String("client_id", id)),
			hub:        hub,
			connection: conn,
		}
		// Use the client's hub so that the reference from the handler can be dropped.
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case client.hub.register <- client:
		}
		// Power the pumps.
		go client.writePump()
		go client.readPump(ctx)
	}
}
