package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"no origin header", nil, "", "example.com", true},
		{"wildcard", []string{"*"}, "https://evil.test", "example.com", true},
		{"listed origin", []string{"https://dash.example.com"}, "https://dash.example.com", "api.example.com", true},
		{"listed with trailing slash", []string{"https://dash.example.com/"}, "https://dash.example.com", "api.example.com", true},
		{"same host", nil, "http://example.com", "example.com", true},
		{"foreign origin", []string{"https://dash.example.com"}, "https://evil.test", "example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := originChecker(tt.allowed)
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := check(req); got != tt.want {
				t.Errorf("origin %q against %v: got %v, want %v", tt.origin, tt.allowed, got, tt.want)
			}
		})
	}
}

func dialTestClient(t *testing.T, hub *Hub, userID int64) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, userID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNotifyScopedToUser(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	alice := dialTestClient(t, hub, 1)
	bob := dialTestClient(t, hub, 2)
	waitForClients(t, hub, 2)

	hub.Notify(1, EventRouteChanged, map[string]int64{"route_id": 7})

	alice.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := alice.ReadJSON(&msg); err != nil {
		t.Fatalf("alice read: %v", err)
	}
	if msg.Type != EventRouteChanged {
		t.Errorf("type = %q, want %q", msg.Type, EventRouteChanged)
	}

	// Bob must not receive Alice's event; the only traffic he may see in
	// the window is nothing at all.
	bob.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
	if err := bob.ReadJSON(&msg); err == nil {
		t.Fatalf("bob unexpectedly received %+v", msg)
	}
}

func TestPingGetsPong(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	conn := dialTestClient(t, hub, 1)
	waitForClients(t, hub, 1)

	if err := conn.WriteJSON(Message{Type: "ping"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if msg.Type != "pong" {
		t.Errorf("type = %q, want pong", msg.Type)
	}
}
