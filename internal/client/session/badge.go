package session

import (
	"context"
	"log/slog"
	"sync"

	"smajobb/internal/client/api"
)

// BadgeCoordinator keeps the app-wide unread count: one unit per
// conversation with unread counterpart messages. Sibling views register
// listeners and get pushed every refresh.
type BadgeCoordinator struct {
	API    *api.Client
	Logger *slog.Logger

	mu        sync.Mutex
	count     int
	listeners []func(int)
}

func NewBadgeCoordinator(client *api.Client, logger *slog.Logger) *BadgeCoordinator {
	return &BadgeCoordinator{API: client, Logger: logger}
}

// Subscribe registers a listener and immediately pushes the cached count.
func (b *BadgeCoordinator) Subscribe(fn func(int)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	count := b.count
	b.mu.Unlock()
	fn(count)
}

func (b *BadgeCoordinator) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Refresh recounts from the conversation list and broadcasts. Best effort;
// a failed fetch keeps the previous count.
func (b *BadgeCoordinator) Refresh(ctx context.Context) {
	conversations, err := b.API.ListConversations(ctx)
	if err != nil {
		if b.Logger != nil {
			b.Logger.Debug("badge refresh failed", "error", err)
		}
		return
	}
	count := 0
	for _, conv := range conversations {
		if conv.HasUnread {
			count++
		}
	}

	b.mu.Lock()
	b.count = count
	listeners := make([]func(int), 0, len(b.listeners))
	listeners = append(listeners, b.listeners...)
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(count)
	}
}
