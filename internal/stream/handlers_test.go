package stream

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

func passthrough(c *fiber.Ctx) error { return c.Next() }

func startStreamApp(t *testing.T, hub *Hub) string {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub, passthrough)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String()
}

func waitForClients(t *testing.T, hub *Hub, sessionID string, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.Clients(sessionID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients on %s", n, sessionID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamHandlersUpgradeRequired(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil), passthrough)

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/session-1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Fatalf("expected upgrade required, got %d", resp.StatusCode)
	}
}

func TestStreamHandlersAuthRejected(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil), func(c *fiber.Ctx) error {
		return fiber.ErrUnauthorized
	})

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/session-1", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized")
	}
}

func TestStreamHandlersWebsocketBroadcast(t *testing.T) {
	hub := NewHub(nil)
	base := startStreamApp(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/session-1", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, "session-1", 1)

	hub.Broadcast("session-1", []byte("hello"))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != "hello" {
		t.Fatalf("unexpected message")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("client")); err != nil {
		t.Fatalf("write error: %v", err)
	}
}

func TestStreamHandlersDisconnectUnregisters(t *testing.T) {
	hub := NewHub(nil)
	base := startStreamApp(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/session-3", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	waitForClients(t, hub, "session-3", 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()

	waitForClients(t, hub, "session-3", 0)
	hub.Broadcast("session-3", []byte("ping"))
}
