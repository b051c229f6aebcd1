package transport

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrClosed     = errors.New("connection closed")
	ErrBadAddress = errors.New("address must use ws or wss scheme")
)

// Message wraps one inbound frame with a receive timestamp.
type Message struct {
	Data       []byte    // Raw frame bytes
	Binary     bool      // True for binary frames, false for text
	ReceivedAt time.Time // Local timestamp when the read returned
}

// Conn is a single live socket connection.
//
// Send may be called from multiple goroutines. Receive blocks until a frame
// arrives or the connection fails; when multiple goroutines call Receive
// concurrently each frame is delivered to exactly one of them.
type Conn interface {
	// Send writes one payload to the connection.
	Send(data []byte) error

	// Receive blocks until the next frame, a close, or an error.
	Receive() (Message, error)

	// Close shuts the connection down, allowing at most grace for the
	// closing handshake before the socket is torn down regardless.
	Close(grace time.Duration) error
}

// Dialer establishes connections to an endpoint address.
type Dialer interface {
	// Dial connects to addr. Establishment is bounded by the dialer's
	// handshake timeout and by ctx, whichever ends first.
	Dial(ctx context.Context, addr string) (Conn, error)
}
