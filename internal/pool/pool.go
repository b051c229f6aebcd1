package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/feedwire/wsfeed/internal/transport"
)

// Errors
var (
	ErrKilled = errors.New("pool killed")
)

// closeGrace bounds the closing handshake when a drained connection is
// removed from the pool.
const closeGrace = 10 * time.Second

// PooledConn wraps one live socket together with its multiplex count.
// The count is mutated only by the pool, under the bucket lock. While a
// PooledConn is tracked its count stays in [1, maxMultiplex]; it is removed
// and closed the instant the count reaches zero.
type PooledConn struct {
	transport.Conn

	id     string
	refs   int
	broken atomic.Bool
}

// ID returns the connection's identifier, used for log correlation.
func (pc *PooledConn) ID() string {
	return pc.id
}

// MarkBroken records that a holder observed a transport failure. Acquire
// stops assigning new subscribers to a broken connection; it stays tracked
// until its current holders release it.
func (pc *PooledConn) MarkBroken() {
	pc.broken.Store(true)
}

// Broken reports whether a holder has marked the connection broken.
func (pc *PooledConn) Broken() bool {
	return pc.broken.Load()
}

// bucket holds the ordered set of connections for one endpoint address.
// Each bucket has its own mutex so contention on one address never stalls
// callers for another.
type bucket struct {
	mu    sync.Mutex
	conns []*PooledConn
}

// Pool tracks live connections per endpoint address.
type Pool struct {
	dialer transport.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[string]*bucket

	ctx  context.Context
	kill context.CancelFunc
}

// New creates a pool. The pool derives its liveness from ctx and owns the
// cancellation source returned by Kill.
func New(ctx context.Context, dialer transport.Dialer, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	pctx, cancel := context.WithCancel(ctx)
	return &Pool{
		dialer:  dialer,
		logger:  logger.With("component", "pool"),
		buckets: make(map[string]*bucket),
		ctx:     pctx,
		kill:    cancel,
	}
}

// bucket returns the bucket for addr, creating it if needed.
func (p *Pool) bucket(addr string) *bucket {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.buckets[addr]
	if !ok {
		b = &bucket{}
		p.buckets[addr] = b
	}
	return b
}

// Acquire returns a connection for addr with one more logical subscriber
// assigned to it. An existing connection is reused while its multiplex count
// is below maxMultiplex (or always, when maxMultiplex <= 0); otherwise a new
// connection is dialed and registered with count 1.
//
// The lookup-and-increment-or-create decision is a single critical section
// per address, so concurrent callers never dial two sockets when one could
// have been shared.
func (p *Pool) Acquire(ctx context.Context, addr string, maxMultiplex int) (*PooledConn, error) {
	if !p.Alive() {
		return nil, ErrKilled
	}

	b := p.bucket(addr)
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, pc := range b.conns {
		if pc.Broken() {
			continue
		}
		if maxMultiplex <= 0 || pc.refs < maxMultiplex {
			pc.refs++
			return pc, nil
		}
	}

	conn, err := p.dialer.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}

	pc := &PooledConn{
		Conn: conn,
		id:   uuid.NewString(),
		refs: 1,
	}
	b.conns = append(b.conns, pc)

	p.logger.Debug("connection opened", "addr", addr, "conn_id", pc.id)

	return pc, nil
}

// Release drops one logical subscriber from pc. At zero subscribers the
// connection is removed from the pool and closed. Releasing a connection
// that is not tracked for addr is a no-op, so double-release is harmless.
func (p *Pool) Release(addr string, pc *PooledConn) {
	if pc == nil {
		return
	}

	b := p.bucket(addr)
	b.mu.Lock()

	idx := -1
	for i, c := range b.conns {
		if c == pc {
			idx = i
			break
		}
	}
	if idx < 0 {
		b.mu.Unlock()
		return
	}

	pc.refs--
	if pc.refs > 0 {
		b.mu.Unlock()
		return
	}

	b.conns = append(b.conns[:idx], b.conns[idx+1:]...)
	b.mu.Unlock()

	if err := pc.Conn.Close(closeGrace); err != nil {
		p.logger.Warn("close failed", "addr", addr, "conn_id", pc.id, "error", err)
	}

	p.logger.Debug("connection closed", "addr", addr, "conn_id", pc.id)
}

// Kill irreversibly marks the pool as dead. Open connections are left for
// their holders to release.
func (p *Pool) Kill() {
	p.kill()
}

// Alive reports whether Kill has not yet been called.
func (p *Pool) Alive() bool {
	return p.ctx.Err() == nil
}

// Done is closed when the pool is killed.
func (p *Pool) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Context returns the pool's liveness context. Components derive their
// per-operation contexts from it so Kill cancels in-flight work.
func (p *Pool) Context() context.Context {
	return p.ctx
}

// ConnCount returns the number of live connections tracked for addr.
func (p *Pool) ConnCount(addr string) int {
	b := p.bucket(addr)
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}
