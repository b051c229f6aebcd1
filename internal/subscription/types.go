package subscription

import (
	"time"

	"github.com/feedwire/wsfeed/internal/transport"
)

// Consumer receives inbound frames. It is invoked synchronously from the
// manager's receive goroutine, one message at a time; a consumer that blocks
// stalls reads on its connection.
type Consumer func(msg transport.Message)

// Config configures a Manager.
type Config struct {
	// Addr is the endpoint address the manager is bound to.
	Addr string

	// MaxMultiplex caps logical subscribers per pooled connection.
	// Zero or negative means unlimited.
	MaxMultiplex int

	// ConnectTimeout bounds each connection establishment attempt.
	ConnectTimeout time.Duration

	// RetryWait paces reconnect attempts after a failed establishment.
	RetryWait time.Duration

	// PollInterval is the period of the cancellation-predicate scan.
	PollInterval time.Duration

	// KeepalivePayload, when set, is sent every KeepaliveInterval while a
	// connection is open.
	KeepalivePayload  []byte
	KeepaliveInterval time.Duration

	// IdleTolerance is how long the manager tolerates an empty registry
	// before winding down. Zero means the manager never goes idle.
	IdleTolerance time.Duration
}

// DefaultConfig returns sensible defaults for addr.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:              addr,
		ConnectTimeout:    10 * time.Second,
		RetryWait:         1 * time.Second,
		PollInterval:      2 * time.Second,
		KeepaliveInterval: 30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig(c.Addr)
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.RetryWait == 0 {
		c.RetryWait = def.RetryWait
	}
	if c.PollInterval == 0 {
		c.PollInterval = def.PollInterval
	}
	if c.KeepaliveInterval == 0 {
		c.KeepaliveInterval = def.KeepaliveInterval
	}
}

// Stats is a point-in-time snapshot of a manager.
type Stats struct {
	Listening     bool
	Subscriptions int
	Connected     bool
}

// entry is one registered subscription. The subscribe payload doubles as its
// key within the manager.
type entry struct {
	subscribe   []byte
	unsubscribe []byte
	cancel      func() bool
}

// expired reports whether the entry's cancellation predicate asks for an
// unsubscribe. Entries without a predicate never expire on their own.
func (e *entry) expired() bool {
	return e.cancel != nil && e.cancel()
}
