package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"smajobb/internal/app/dto"
	"smajobb/internal/domain/chat"
)

// Hub tracks live channel subscribers per conversation and fans stored
// messages out to them. Gorilla connections allow one concurrent writer, so
// each subscriber serializes its writes.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	Logger *slog.Logger
}

type subscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		Logger: logger,
	}
}

// Subscribe registers conn for a conversation and returns the detach func.
func (h *Hub) Subscribe(conversationID string, conn *websocket.Conn) func() {
	sub := &subscriber{conn: conn}
	h.mu.Lock()
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[*subscriber]struct{})
	}
	h.subs[conversationID][sub] = struct{}{}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		if set, ok := h.subs[conversationID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, conversationID)
			}
		}
		h.mu.Unlock()
	}
}

// Broadcast sends the message envelope to every subscriber of the
// conversation. Dead connections are dropped silently; the client side owns
// reconnecting.
func (h *Hub) Broadcast(conversationID string, msg chat.Message) {
	payload, err := json.Marshal(dto.ChannelEnvelope{Message: dto.FromMessage(msg)})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("channel envelope marshal failed", "error", err)
		}
		return
	}
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs[conversationID]))
	for sub := range h.subs[conversationID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		sub.mu.Lock()
		err := sub.conn.WriteMessage(websocket.TextMessage, payload)
		sub.mu.Unlock()
		if err != nil && h.Logger != nil {
			h.Logger.Debug("channel write failed", "conversation_id", conversationID, "error", err)
		}
	}
}
