package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/feedwire/wsfeed/internal/config"
	"github.com/feedwire/wsfeed/internal/subscription"
	"github.com/feedwire/wsfeed/internal/transport"
)

// flushTimeout bounds each batch insert.
const flushTimeout = 5 * time.Second

// Execer is the subset of pgxpool.Pool the recorder needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// frame is one buffered inbound message.
type frame struct {
	endpoint   string
	receivedAt time.Time
	binary     bool
	payload    []byte
}

// Stats contains recorder counters.
type Stats struct {
	Recorded int64
	Dropped  int64
}

// Recorder batches inbound frames and writes them to a database table.
type Recorder struct {
	cfg    config.RecorderConfig
	db     Execer
	logger *slog.Logger

	input chan frame

	recorded atomic.Int64
	dropped  atomic.Int64
}

// New creates a recorder writing to db.
func New(cfg config.RecorderConfig, db Execer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:    cfg,
		db:     db,
		logger: logger.With("component", "recorder"),
		input:  make(chan frame, cfg.BufferSize),
	}
}

// Consumer returns a subscription consumer that buffers frames for endpoint.
// It never blocks: when the buffer is full the frame is dropped and counted.
func (r *Recorder) Consumer(endpoint string) subscription.Consumer {
	return func(msg transport.Message) {
		f := frame{
			endpoint:   endpoint,
			receivedAt: msg.ReceivedAt,
			binary:     msg.Binary,
			payload:    msg.Data,
		}
		select {
		case r.input <- f:
		default:
			r.dropped.Add(1)
			r.logger.Warn("buffer full, dropping frame", "endpoint", endpoint)
		}
	}
}

// Run consumes buffered frames until ctx is cancelled, flushing on batch
// size or flush interval. On exit the buffer is drained and the remaining
// batch flushed.
func (r *Recorder) Run(ctx context.Context) error {
	batch := make([]frame, 0, r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Drain frames that made it into the buffer before the cancel,
			// then flush whatever is left.
			for {
				select {
				case f := <-r.input:
					batch = append(batch, f)
					if len(batch) >= r.cfg.BatchSize {
						r.flush(batch)
						batch = batch[:0]
					}
				default:
					r.flush(batch)
					return nil
				}
			}

		case f := <-r.input:
			batch = append(batch, f)
			if len(batch) >= r.cfg.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// Stats returns recorder counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		Recorded: r.recorded.Load(),
		Dropped:  r.dropped.Load(),
	}
}

// flush writes one batch with a single multi-row insert. A failed insert is
// logged and the batch is dropped; frames are raw observations, not state,
// so replaying them is not worth blocking the pipeline.
func (r *Recorder) flush(batch []frame) {
	if len(batch) == 0 {
		return
	}

	query, args := buildInsert(r.cfg.Table, batch)

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		r.logger.Error("batch insert failed", "frames", len(batch), "error", err)
		return
	}

	r.recorded.Add(int64(len(batch)))
	r.logger.Debug("batch flushed", "frames", len(batch))
}

// buildInsert builds a multi-row INSERT for batch.
func buildInsert(table string, batch []frame) (string, []any) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgx.Identifier{table}.Sanitize())
	sb.WriteString(" (endpoint, received_at, is_binary, payload) VALUES ")

	args := make([]any, 0, len(batch)*4)
	for i, f := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4)
		args = append(args, f.endpoint, f.receivedAt, f.binary, f.payload)
	}

	return sb.String(), args
}
