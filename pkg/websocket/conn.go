package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beaconchat/beacon/pkg/relay"
)

// ErrMalformedFrame marks a frame that arrived but did not decode. The
// read pump skips these instead of tearing the connection down.
var ErrMalformedFrame = errors.New("malformed frame")

// Conn wraps a gorilla WebSocket connection. Reads happen from one
// goroutine (the read pump); writes are serialized by the mutex.
type Conn struct {
	ws            *websocket.Conn
	mu            sync.Mutex
	closed        bool
	readDeadline  time.Duration
	writeDeadline time.Duration
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The relay carries no credentials; any origin may connect
		return true
	},
}

// UpgradeHTTP upgrades an HTTP request to a WebSocket connection
func UpgradeHTTP(w http.ResponseWriter, r *http.Request, readDeadline, writeDeadline time.Duration) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	conn := &Conn{
		ws:            ws,
		readDeadline:  readDeadline,
		writeDeadline: writeDeadline,
	}
	ws.SetReadDeadline(time.Now().Add(conn.readDeadline))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(conn.readDeadline))
		return nil
	})

	return conn, nil
}

// ReadInbound reads and decodes the next frame from the connection.
// Only the read pump may call this.
func (c *Conn) ReadInbound() (relay.Inbound, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return relay.Inbound{}, err
	}

	var in relay.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return relay.Inbound{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	return in, nil
}

// WriteEvent encodes and writes one outbound event
func (c *Conn) WriteEvent(ev *relay.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection closed")
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	c.ws.SetWriteDeadline(time.Now().Add(c.writeDeadline))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a ping control message to keep the connection alive
func (c *Conn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connection closed")
	}

	c.ws.SetWriteDeadline(time.Now().Add(c.writeDeadline))
	return c.ws.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeDeadline))
}

// Close closes the connection, sending a close frame first
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	_ = c.ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(c.writeDeadline))
	return c.ws.Close()
}

// IsClosed reports whether Close has been called
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// RemoteAddr returns the remote address
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// IsUnexpectedClose reports whether err is a close error other than a
// normal going-away
func IsUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure)
}
