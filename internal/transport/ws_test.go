package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSDialer_Dial(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	d := &WSDialer{}
	conn, err := d.Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close(time.Second)
}

func TestWSDialer_Dial_BadScheme(t *testing.T) {
	d := &WSDialer{}
	if _, err := d.Dial(context.Background(), "http://example.com"); err != ErrBadAddress {
		t.Errorf("Dial() error = %v, want ErrBadAddress", err)
	}
}

func TestWSDialer_Dial_Unreachable(t *testing.T) {
	d := &WSDialer{HandshakeTimeout: 100 * time.Millisecond}
	if _, err := d.Dial(context.Background(), "ws://127.0.0.1:1"); err == nil {
		t.Error("Dial() expected error for unreachable endpoint")
	}
}

func TestWSConn_SendReceive(t *testing.T) {
	// Server echoes everything back.
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	})
	defer server.Close()

	d := &WSDialer{}
	conn, err := d.Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close(time.Second)

	payload := []byte(`{"op":"subscribe","channel":"trades"}`)
	if err := conn.Send(payload); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msg, err := conn.Receive()
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if string(msg.Data) != string(payload) {
		t.Errorf("Receive() data = %q, want %q", msg.Data, payload)
	}
	if msg.Binary {
		t.Error("Receive() Binary = true, want false for text frame")
	}
	if msg.ReceivedAt.IsZero() {
		t.Error("Receive() ReceivedAt is zero")
	}
}

func TestWSConn_ReceiveAfterServerClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
	})
	defer server.Close()

	d := &WSDialer{}
	conn, err := d.Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close(time.Second)

	if _, err := conn.Receive(); err == nil {
		t.Error("Receive() expected error after server close")
	}
}

func TestWSConn_Close_Idempotent(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	d := &WSDialer{}
	conn, err := d.Dial(context.Background(), wsURL(server))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	if err := conn.Close(time.Second); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := conn.Close(time.Second); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	if err := conn.Send([]byte("x")); err != ErrClosed {
		t.Errorf("Send() after close error = %v, want ErrClosed", err)
	}
}
