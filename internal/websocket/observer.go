// Package websocket streams battle events to spectators over WebSocket
// connections.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/nfrund/hexarena/internal/broadcast"
)

// Observer writes battle events to one WebSocket connection as JSON text
// frames. Writes are bounded by the context the broadcaster supplies.
type Observer struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// NewObserver wraps an accepted connection.
func NewObserver(conn *websocket.Conn) *Observer {
	return &Observer{id: "ws:" + uuid.NewString(), conn: conn}
}

// ID implements broadcast.Observer.
func (o *Observer) ID() string { return o.id }

// Send implements broadcast.Observer.
func (o *Observer) Send(ctx context.Context, ev broadcast.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return errClosed
	}
	return o.conn.Write(ctx, websocket.MessageText, data)
}

// Close closes the connection once.
func (o *Observer) Close(code websocket.StatusCode, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.conn.Close(code, reason)
}
