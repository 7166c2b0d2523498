package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/playsync/internal/protocol"
	"github.com/sharetube/playsync/pkg/retry"
)

// ConnectionIDHeader carries the id the relay assigned to a new connection.
const ConnectionIDHeader = "St-Connection-Id"

const (
	defaultAliveInterval = 25 * time.Second
	defaultWriteTimeout  = 10 * time.Second
	inboundBuffer        = 256
)

var ErrNotConnected = errors.New("not connected")

type Config struct {
	ServerURL     string
	RoomID        string
	UserID        string
	CanChat       bool
	CanVideo      bool
	AliveInterval time.Duration
	WriteTimeout  time.Duration
	Retry         retry.Config
}

// Client is a peer's connection to the relay. It reconnects on failure and
// announces every new connection id on Connected.
type Client struct {
	cfg       Config
	dialer    *websocket.Dialer
	messages  chan protocol.Message
	connected chan string

	mu   sync.Mutex
	conn *websocket.Conn

	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.AliveInterval <= 0 {
		cfg.AliveInterval = defaultAliveInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}

	return &Client{
		cfg:       cfg,
		dialer:    websocket.DefaultDialer,
		messages:  make(chan protocol.Message, inboundBuffer),
		connected: make(chan string, 1),
		logger:    logger.With(slog.String("room_id", cfg.RoomID)),
	}
}

func (c *Client) Messages() <-chan protocol.Message {
	return c.messages
}

func (c *Client) Connected() <-chan string {
	return c.connected
}

func (c *Client) Publish(_ context.Context, msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write %s: %w", msg.Type, err)
	}

	return nil
}

// Run keeps the client connected until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	retryCfg := c.cfg.Retry
	retryCfg.MaxAttempts = 0

	for {
		var (
			conn         *websocket.Conn
			connectionID string
		)
		err := retry.Retry(ctx, retryCfg, func() error {
			var err error
			conn, connectionID, err = c.dial(ctx)
			if err != nil {
				c.logger.WarnContext(ctx, "failed to connect", "error", err)
			}
			return err
		})
		if err != nil {
			return err
		}

		c.logger.InfoContext(ctx, "connected", "connection_id", connectionID)
		c.setConn(conn)
		c.announce(connectionID)

		err = c.serve(ctx, conn)
		c.setConn(nil)
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.WarnContext(ctx, "connection lost", "connection_id", connectionID, "error", err)
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, string, error) {
	u, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse server url: %w", err)
	}
	u = u.JoinPath("ws", "rooms", c.cfg.RoomID)
	q := u.Query()
	q.Set("user-id", c.cfg.UserID)
	q.Set("can-chat", strconv.FormatBool(c.cfg.CanChat))
	q.Set("can-video", strconv.FormatBool(c.cfg.CanVideo))
	u.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, "", fmt.Errorf("failed to dial (status %d): %w", resp.StatusCode, err)
		}
		return nil, "", fmt.Errorf("failed to dial: %w", err)
	}

	connectionID := resp.Header.Get(ConnectionIDHeader)
	if connectionID == "" {
		conn.Close()
		return nil, "", errors.New("relay did not assign a connection id")
	}

	return conn, connectionID, nil
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.keepAlive(ctx)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		select {
		case c.messages <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.AliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Publish(ctx, protocol.Message{Type: protocol.TypeAlive}); err != nil {
				c.logger.DebugContext(ctx, "failed to send alive", "error", err)
			}
		}
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn = conn
}

// announce replaces an unread connection id with the newest one.
func (c *Client) announce(connectionID string) {
	for {
		select {
		case c.connected <- connectionID:
			return
		default:
		}

		select {
		case <-c.connected:
		default:
		}
	}
}
