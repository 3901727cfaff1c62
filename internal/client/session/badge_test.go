package session

import (
	"context"
	"net/http/httptest"
	"testing"

	"smajobb/internal/app/dto"
	"smajobb/internal/client/api"
)

func TestBadgeCountsUnreadConversations(t *testing.T) {
	backend := newFakeBackend()
	backend.conversations = []dto.Conversation{
		{ID: "conv-1", HasUnread: true},
		{ID: "conv-2"},
		{ID: "conv-3", HasUnread: true},
	}
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	badge := NewBadgeCoordinator(api.New(server.URL, "token"), nil)
	var pushed []int
	badge.Subscribe(func(n int) { pushed = append(pushed, n) })

	badge.Refresh(context.Background())
	if got := badge.Count(); got != 2 {
		t.Fatalf("count = %d, want 2", got)
	}
	// Subscribe pushes the cached count immediately, Refresh the new one.
	if len(pushed) != 2 || pushed[0] != 0 || pushed[1] != 2 {
		t.Fatalf("pushed = %v, want [0 2]", pushed)
	}
}
