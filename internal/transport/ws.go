package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSDialer dials WebSocket connections via gorilla/websocket.
type WSDialer struct {
	// HandshakeTimeout bounds connection establishment. Zero means 10s.
	HandshakeTimeout time.Duration

	// WriteTimeout is the per-send write deadline. Zero means 5s.
	WriteTimeout time.Duration

	// Header is sent with the upgrade request (auth tokens and the like).
	Header http.Header

	// Logger for connection-level events. Nil means slog.Default().
	Logger *slog.Logger
}

// Dial connects to addr and wraps the socket in a Conn.
func (d *WSDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, ErrBadAddress
	}

	handshake := d.HandshakeTimeout
	if handshake == 0 {
		handshake = 10 * time.Second
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 5 * time.Second
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshake,
	}

	conn, _, err := dialer.DialContext(ctx, addr, d.Header)
	if err != nil {
		return nil, err
	}

	logger.Debug("websocket connected", "addr", addr)

	return &wsConn{
		conn:         conn,
		writeTimeout: writeTimeout,
	}, nil
}

// wsConn implements Conn over a gorilla websocket connection.
type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	// Write serialization
	writeMu sync.Mutex

	// Read serialization (gorilla allows one concurrent reader)
	readMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// Send writes one text frame to the connection.
func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Receive blocks until the next frame or a connection error.
func (c *wsConn) Receive() (Message, error) {
	c.readMu.Lock()
	mt, data, err := c.conn.ReadMessage()
	c.readMu.Unlock()

	receivedAt := time.Now()

	if err != nil {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return Message{}, ErrClosed
		}
		return Message{}, err
	}

	return Message{
		Data:       data,
		Binary:     mt == websocket.BinaryMessage,
		ReceivedAt: receivedAt,
	}, nil
}

// Close sends a close frame, then tears the socket down. Idempotent.
func (c *wsConn) Close(grace time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if grace <= 0 {
		grace = time.Second
	}

	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(grace),
	)
	return c.conn.Close()
}
