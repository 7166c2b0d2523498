package connection

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrNotFound      = errors.New("connection not found")
	ErrAlreadyExists = errors.New("connection already exists")
)

// Conn is the write side of one peer connection.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

type wsConn struct {
	ws           *websocket.Conn
	mu           sync.Mutex
	writeTimeout time.Duration
}

// NewWSConn wraps a websocket so that concurrent deliveries are serialized.
func NewWSConn(ws *websocket.Conn, writeTimeout time.Duration) Conn {
	return &wsConn{ws: ws, writeTimeout: writeTimeout}
}

func (c *wsConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}

	return c.ws.WriteJSON(v)
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)

	return c.ws.Close()
}
