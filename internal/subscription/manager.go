package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feedwire/wsfeed/internal/pool"
	"github.com/feedwire/wsfeed/internal/transport"
)

// Errors
var (
	ErrNilConsumer = errors.New("consumer must not be nil")
)

// Manager owns the subscription registry and reconnect loop for one
// endpoint address. Connections are borrowed from the shared pool; the
// manager never mutates their multiplex bookkeeping itself.
type Manager struct {
	cfg      Config
	pool     *pool.Pool
	consumer Consumer
	logger   *slog.Logger

	// consumerMu serializes consumer invocations, including a final frame
	// delivered by a reader that outlived its receive phase.
	consumerMu sync.Mutex

	// mu guards the registry, the cached connection pointer, and the
	// listening state. It is never held across blocking I/O.
	mu            sync.Mutex
	subs          map[string]*entry
	order         []*entry
	conn          *pool.PooledConn
	listening     bool
	emptySince    time.Time
	idleTolerance time.Duration
	loopDone      chan struct{}
}

// NewManager creates a manager bound to cfg.Addr. The consumer is invoked
// synchronously from the manager's receive goroutine for every inbound
// frame.
func NewManager(cfg Config, p *pool.Pool, consumer Consumer, logger *slog.Logger) (*Manager, error) {
	if consumer == nil {
		return nil, ErrNilConsumer
	}
	u, err := url.Parse(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("parse addr: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, transport.ErrBadAddress
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg.applyDefaults()

	return &Manager{
		cfg:           cfg,
		pool:          p,
		consumer:      consumer,
		logger:        logger.With("component", "subscription", "addr", cfg.Addr),
		subs:          make(map[string]*entry),
		idleTolerance: cfg.IdleTolerance,
	}, nil
}

// Subscribe registers a subscription keyed by its subscribe payload and
// starts the reconnect loop if it is not already running. A payload that is
// already registered is a no-op. The unsubscribe payload is sent on
// teardown; cancel, when non-nil, is polled while a connection is open and
// a true result unsubscribes the entry without caller intervention.
//
// Subscribe never fails: send errors are logged and repaired by the next
// reconnect cycle's replay.
func (m *Manager) Subscribe(subscribe, unsubscribe []byte, cancel func() bool) {
	key := string(subscribe)

	m.mu.Lock()
	if _, ok := m.subs[key]; ok {
		m.mu.Unlock()
		return
	}
	e := &entry{subscribe: subscribe, unsubscribe: unsubscribe, cancel: cancel}
	m.subs[key] = e
	m.order = append(m.order, e)
	m.emptySince = time.Time{}
	pc := m.conn
	listening := m.listening
	count := len(m.order)
	m.mu.Unlock()

	m.logger.Debug("subscription registered", "subscriptions", count)

	if !listening {
		m.Listen()
		return
	}

	// Best effort; the next reconnect cycle replays the registry anyway.
	if pc != nil {
		if err := pc.Send(subscribe); err != nil {
			m.logger.Warn("subscribe send failed", "error", err)
		}
	}
}

// Listen starts the reconnect loop if it is not already running. Subscribe
// starts the loop implicitly; explicit Listen is for callers that want the
// connection warm before the first subscription arrives.
func (m *Manager) Listen() {
	m.mu.Lock()
	if m.listening {
		m.mu.Unlock()
		return
	}
	m.listening = true
	m.loopDone = make(chan struct{})
	if len(m.order) == 0 {
		m.emptySince = time.Now()
	}
	m.mu.Unlock()

	go m.run()
}

// SetIdleTolerance requests an idle tolerance. While the manager is
// listening the tolerance only grows, so a long-lived caller cannot be torn
// down early by a shorter request racing in.
func (m *Manager) SetIdleTolerance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listening {
		if d > m.idleTolerance {
			m.idleTolerance = d
		}
		return
	}
	m.idleTolerance = d
}

// Listening reports whether the reconnect loop is running.
func (m *Manager) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listening
}

// Len returns the number of registered subscriptions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Stats returns a snapshot of the manager's state.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Listening:     m.listening,
		Subscriptions: len(m.order),
		Connected:     m.conn != nil,
	}
}

// Done returns a channel closed when the current reconnect loop exits.
// A manager that is not listening returns an already-closed channel.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loopDone == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return m.loopDone
}

// alive reports whether the loop should keep cycling: pool not killed and
// the manager not idle.
func (m *Manager) alive() bool {
	return m.pool.Alive() && !m.idle()
}

// idle reports whether the registry has been empty for longer than the
// configured tolerance. Without a tolerance the manager never goes idle.
func (m *Manager) idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idleLocked()
}

// idleLocked is idle with m.mu already held.
func (m *Manager) idleLocked() bool {
	if m.idleTolerance <= 0 {
		return false
	}
	if len(m.order) > 0 || m.emptySince.IsZero() {
		return false
	}
	return time.Since(m.emptySince) > m.idleTolerance
}

// run is the reconnect loop. It terminates when the pool is killed or the
// manager goes idle, and may be started again by a later Subscribe.
func (m *Manager) run() {
	m.logger.Debug("listening")

	for {
		if m.stopIfDone() {
			return
		}

		ctx, cancel := context.WithTimeout(m.pool.Context(), m.cfg.ConnectTimeout)
		pc, err := m.pool.Acquire(ctx, m.cfg.Addr, m.cfg.MaxMultiplex)
		cancel()
		if err != nil {
			m.logger.Error("connect failed", "error", err)
			m.sleep(m.cfg.RetryWait)
			continue
		}

		m.setConn(pc)
		m.resubscribe(pc)
		m.receivePhase(pc)

		// Teardown: drop whatever the predicates have expired while the
		// connection may still accept the unsubscribe frames.
		m.unsubscribeExpired(pc)

		m.setConn(nil)
		m.pool.Release(m.cfg.Addr, pc)
	}
}

// stopIfDone decides whether the loop exits and, when it does, clears the
// listening state in the same critical section. A Subscribe landing before
// the decision is observed here and keeps the loop going; one landing after
// sees listening == false and starts a fresh loop. There is no window in
// which a registered subscription is left unserviced.
func (m *Manager) stopIfDone() bool {
	m.mu.Lock()
	if m.pool.Alive() && !m.idleLocked() {
		m.mu.Unlock()
		return false
	}
	m.listening = false
	m.idleTolerance = m.cfg.IdleTolerance
	done := m.loopDone
	m.mu.Unlock()

	close(done)
	m.logger.Debug("stopped listening")
	return true
}

// sleep waits for d, returning early if the pool is killed.
func (m *Manager) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-m.pool.Done():
	case <-t.C:
	}
}

// setConn swaps the cached connection pointer.
func (m *Manager) setConn(pc *pool.PooledConn) {
	m.mu.Lock()
	m.conn = pc
	m.mu.Unlock()
}

// resubscribe replays every registered subscribe payload over pc in
// registration order. Send failures are logged; the registry is the source
// of truth and the next cycle retries.
func (m *Manager) resubscribe(pc *pool.PooledConn) {
	m.mu.Lock()
	snapshot := append([]*entry(nil), m.order...)
	m.mu.Unlock()

	for _, e := range snapshot {
		if err := pc.Send(e.subscribe); err != nil {
			m.logger.Warn("subscribe send failed", "conn_id", pc.ID(), "error", err)
		}
	}
}

// receivePhase runs the receive goroutine alongside the keepalive and
// predicate-poll tickers until the connection drops or the manager stops
// being alive.
func (m *Manager) receivePhase(pc *pool.PooledConn) {
	ctx, cancel := context.WithCancel(m.pool.Context())
	defer cancel()

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		for {
			msg, err := pc.Receive()
			if err != nil {
				pc.MarkBroken()
				if ctx.Err() == nil {
					m.logger.Error("connection interrupted", "conn_id", pc.ID(), "error", err)
				}
				return
			}
			// Deliver even when the phase has already ended: the read
			// consumed the frame, so dropping it here would lose it.
			m.dispatch(msg)
			if ctx.Err() != nil {
				return
			}
		}
	}()

	var g errgroup.Group

	// Predicate poll: unsubscribes expired entries live, without tearing
	// down the connection, and ends the phase once the manager is no
	// longer alive.
	g.Go(func() error {
		ticker := time.NewTicker(m.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				m.unsubscribeExpired(pc)
				if !m.alive() {
					cancel()
					return nil
				}
			}
		}
	})

	if len(m.cfg.KeepalivePayload) > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(m.cfg.KeepaliveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if err := pc.Send(m.cfg.KeepalivePayload); err != nil {
						m.logger.Warn("keepalive send failed", "conn_id", pc.ID(), "error", err)
					}
				}
			}
		})
	}

	// The phase ends as soon as the receive goroutine ends or the manager
	// stops being alive, whichever comes first.
	select {
	case <-recvDone:
	case <-ctx.Done():
		// The reader may stay parked in Receive until the next frame or
		// until the socket closes. Mark the connection so the pool never
		// hands it out again with no live reader behind it.
		pc.MarkBroken()
	}
	cancel()
	g.Wait()
}

// dispatch hands one frame to the consumer. Invocations are serialized so a
// reader delivering its final frame after its phase ended cannot run the
// consumer concurrently with the next phase's reader.
func (m *Manager) dispatch(msg transport.Message) {
	m.consumerMu.Lock()
	defer m.consumerMu.Unlock()
	m.consumer(msg)
}

// unsubscribeExpired removes every registered entry whose cancellation
// predicate evaluates true and sends its unsubscribe payload over pc.
// Removal is optimistic: a failed send still removes the entry, so the
// remote side may briefly believe the subscription is active.
func (m *Manager) unsubscribeExpired(pc *pool.PooledConn) {
	m.mu.Lock()
	snapshot := append([]*entry(nil), m.order...)
	m.mu.Unlock()

	// Predicates are caller code; evaluate them outside the lock.
	var expired []*entry
	for _, e := range snapshot {
		if e.expired() {
			expired = append(expired, e)
		}
	}
	if len(expired) == 0 {
		return
	}

	m.mu.Lock()
	for _, e := range expired {
		key := string(e.subscribe)
		if _, ok := m.subs[key]; !ok {
			continue
		}
		delete(m.subs, key)
		for i, o := range m.order {
			if o == e {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	empty := len(m.order) == 0
	if empty {
		m.emptySince = time.Now()
	}
	count := len(m.order)
	m.mu.Unlock()

	for _, e := range expired {
		if err := pc.Send(e.unsubscribe); err != nil {
			m.logger.Warn("unsubscribe send failed, remote may still hold the subscription",
				"conn_id", pc.ID(),
				"error", err,
			)
		}
	}

	m.logger.Debug("subscriptions expired", "expired", len(expired), "remaining", count)
}
