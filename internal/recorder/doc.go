// Package recorder persists raw inbound frames to PostgreSQL.
//
// The recorder is an optional consumer: it buffers frames on a bounded
// channel and flushes them in batches, on size or on a timer, whichever
// comes first. A full buffer drops frames rather than stalling the
// connection's receive loop.
package recorder
