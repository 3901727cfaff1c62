package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"smajobb/internal/app/dto"
	"smajobb/internal/domain/chat"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func TestBroadcastReachesConversationSubscribersOnly(t *testing.T) {
	hub := NewHub(nil)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		detach := hub.Subscribe(r.URL.Query().Get("conversation"), conn)
		defer detach()
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	dial := func(conversationID string) *websocket.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "?conversation=" + conversationID
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	connA := dial("conv-1")
	connB := dial("conv-1")
	connOther := dial("conv-2")

	// Subscription happens on the server goroutine after the handshake.
	waitForSubscribers(t, hub, "conv-1", 2)
	waitForSubscribers(t, hub, "conv-2", 1)

	msg := chat.Message{ID: 42, ConversationID: "conv-1", SenderID: "user-a", Body: "hei", CreatedAt: "2026-03-01T12:00:00Z"}
	hub.Broadcast("conv-1", msg)

	for _, conn := range []*websocket.Conn{connA, connB} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read broadcast: %v", err)
		}
		var envelope dto.ChannelEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if envelope.Message.ID != 42 || envelope.Message.Body != "hei" {
			t.Fatalf("envelope = %+v", envelope.Message)
		}
	}

	connOther.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, _, err := connOther.ReadMessage(); err == nil {
		t.Fatal("subscriber of another conversation must not receive the broadcast")
	}
}

func TestDetachStopsDelivery(t *testing.T) {
	hub := NewHub(nil)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		detach := hub.Subscribe("conv-1", conn)
		detach()
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hub.Broadcast("conv-1", chat.Message{ID: 1, ConversationID: "conv-1", SenderID: "user-a", Body: "hei"})

	conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("detached subscriber must not receive broadcasts")
	}
}

func waitForSubscribers(t *testing.T, hub *Hub, conversationID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		got := len(hub.subs[conversationID])
		hub.mu.RUnlock()
		if got == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d subscribers on %s", n, conversationID)
}
