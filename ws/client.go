package ws

import (
	"bytes"
	"context"
	"github.com/gorilla/websocket"
	"github.com/lefinal/pairs-server/errors"
	"go.uber.org/zap"
	"sync"
	"time"
)

const (
	// writeTimeout is the timeout for writing a message to the peer.
	writeTimeout = 10 * time.Second
	// pingInterval is the interval in which pings are sent to the peer. Must be
	// less than pongTimeout.
	pingInterval = (pongTimeout * 9) / 10
	// pongTimeout is the timeout for waiting for the next pong message from the
	// peer. Must be greater than pingInterval.
	pongTimeout = 60 * time.Second
	// maxMessageSize is the maximum message size allowed from peer.
	maxMessageSize = 16384
	// sendBufferSize is the capacity of the outgoing message buffer of a Client.
	sendBufferSize = 256
	// receiveBufferSize is the capacity of the incoming message buffer of a
	// Client.
	receiveBufferSize = 256
)

var (
	// newLine is used for separating messages in writer.
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client holds the websocket connection of a single peer and is managed by
// Hub.
type Client struct {
	// ID is the connection id assigned to the Client.
	ID string
	// Receive is the channel for incoming messages. It is closed when the
	// connection is closed.
	Receive chan []byte
	// send is the channel for outgoing messages. It is only closed by the Hub
	// when unregistering.
	send chan []byte
	// logger is the logger with the client id as field.
	logger *zap.Logger
	// hub is the actual websocket hub which is used for registering and
	// unregistering.
	hub *Hub
	// connection is the actual websocket connection.
	connection *websocket.Conn
	// dropOnce makes sure that dropping a slow client is only done once.
	dropOnce sync.Once
}

// drop closes the connection which leads to the read pump unregistering the
// Client.
func (c *Client) drop() {
	c.dropOnce.Do(func() {
		c.logger.Warn("dropping client due to full send buffer")
		err := c.connection.Close()
		if err != nil {
			c.logger.Debug("close connection of dropped client", zap.Error(err))
		}
	})
}

// readPump forwards messages from the websocket connection to Client.Receive.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		close(c.Receive)
		select {
		case <-ctx.Done():
		case c.hub.unregister <- c:
		}
		err := c.connection.Close()
		if err != nil {
			c.logger.Debug("close connection", zap.Error(err))
		}
	}()
	c.connection.SetReadLimit(maxMessageSize)
	_ = c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
	// Handle received pong.
	c.connection.SetPongHandler(func(string) error {
		_ = c.connection.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		// Read next message.
		_, message, err := c.connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("unexpected close", zap.Error(err))
			}
			break
		}
		// Trim.
		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		// Forward.
		select {
		case <-ctx.Done():
			c.logger.Warn("dropping message due to ctx done", zap.ByteString("message", message))
			return
		case c.Receive <- message:
		}
	}
}

// writePump forwards outgoing messages to the websocket connection. We do not
// pass a context.Context here because the hub will close the send-channel which
// will lead to termination, anyways.
func (c *Client) writePump() {
	pingTicker := time.NewTicker(pingInterval)
	defer func() {
		// Stop ping ticker in order to avoid ticker leak.
		pingTicker.Stop()
		// Close connection.
		err := c.connection.Close()
		if err != nil {
			c.logger.Debug("close connection", zap.Error(err))
		}
	}()
	for {
		select {
		case message, ok := <-c.send:
			// Set write timeout.
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			// Check if connection close is requested from hub.
			if !ok {
				err := c.connection.WriteMessage(websocket.CloseMessage, []byte{})
				if err != nil {
					c.logger.Debug("write close message", zap.Error(err))
				}
				return
			}
			err := c.connection.WriteMessage(websocket.TextMessage, message)
			if err != nil {
				// We expect the read pump to fail as well.
				errors.Log(c.logger, errors.Error{
					Code:    errors.ErrCommunication,
					Kind:    errors.KindSendMessage,
					Err:     err,
					Message: "write text message",
				})
				return
			}
		case <-pingTicker.C:
			// Send ping.
			_ = c.connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("write ping", zap.Error(err))
				return
			}
		}
	}
}
