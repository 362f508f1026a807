package ws

import (
	"context"
	"github.com/lefinal/pairs-server/errors"
	"github.com/lefinal/pairs-server/messages"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"sync"
)

// Listener is notified of new clients.
type Listener interface {
	// AcceptClient is called in its own goroutine when a new Client connects. It
	// is expected to read from Client.Receive until it is closed.
	AcceptClient(ctx context.Context, client *Client)
}

// Hub holds all active clients and manages centralized sending.
type Hub struct {
	logger *zap.Logger
	// clientListener is used for notifying of new clients.
	clientListener Listener
	// clients holds all online clients by their id.
	clients map[string]*Client
	// clientsMutex locks clients. Closing the send-channel of a Client is only
	// done while holding the write lock.
	clientsMutex sync.RWMutex
	// connectionCount is the number of currently registered clients.
	connectionCount *atomic.Int64
	// register receives when a Client wants to register itself.
	register chan *Client
	// unregister receives when a Client wants to unregister itself.
	unregister chan *Client
}

// NewHub creates a new Hub. Start it with Hub.Run.
func NewHub(logger *zap.Logger, clientListener Listener) *Hub {
	return &Hub{
		logger:          logger,
		clientListener:  clientListener,
		clients:         make(map[string]*Client),
		connectionCount: atomic.NewInt64(0),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
	}
}

// Run starts the Hub. It blocks until the given context is done and then closes
// all remaining connections.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case c := <-h.register:
			h.clientsMutex.Lock()
			h.clients[c.ID] = c
			h.clientsMutex.Unlock()
			h.connectionCount.Inc()
			c.logger.Info("client connected")
			go h.clientListener.AcceptClient(ctx, c)
		case c := <-h.unregister:
			h.remove(c)
		}
	}
}

// remove removes the given Client and closes its send-channel which leads to
// stopping the write-pump.
func (h *Hub) remove(c *Client) {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()
	if registered, ok := h.clients[c.ID]; !ok || registered != c {
		return
	}
	delete(h.clients, c.ID)
	h.connectionCount.Dec()
	close(c.send)
	c.logger.Info("client disconnected")
}

// closeAll removes all clients.
func (h *Hub) closeAll() {
	h.clientsMutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMutex.RUnlock()
	for _, c := range clients {
		h.remove(c)
	}
}

// ConnectionCount returns the number of currently connected clients.
func (h *Hub) ConnectionCount() int {
	return int(h.connectionCount.Load())
}

// Notify encodes the given message and queues it for the connection with the
// given id. Unknown connections are ignored. If the send buffer of the
// connection is full, the connection is dropped instead of blocking.
func (h *Hub) Notify(connectionID string, message messages.Outgoing) {
	raw, err := message.Encode()
	if err != nil {
		errors.Log(h.logger, errors.Wrap(err, "encode outgoing message", errors.Details{
			"connection_id": connectionID,
			"message_type":  message.MessageType,
		}))
		return
	}
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	c, ok := h.clients[connectionID]
	if !ok {
		h.logger.Debug("dropping message for unknown connection",
			zap.String("connection_id", connectionID),
			zap.String("message_type", string(message.MessageType)))
		return
	}
	select {
	case c.send <- raw:
	default:
		c.drop()
	}
}

// ListenerFunc is an adapter to allow the use of ordinary functions as
// Listener.
type ListenerFunc func(ctx context.Context, client *Client)

// AcceptClient calls f(ctx, client).
func (f ListenerFunc) AcceptClient(ctx context.Context, client *Client) {
	f(ctx, client)
}
