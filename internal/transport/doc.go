// Package transport provides the raw WebSocket transport used by the
// connection pool and subscription managers.
//
// A Conn is one live socket. Payloads are opaque bytes: nothing in this
// package inspects message contents beyond the text/binary frame type.
package transport
