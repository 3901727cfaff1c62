package memory

import (
	"context"
	"sync"
	"time"

	appoutbox "smajobb/internal/app/outbox"
	infraoutbox "smajobb/internal/infra/outbox"
)

type queueEntry struct {
	record      appoutbox.EventRecord
	attempts    int
	claimed     bool
	sent        bool
	nextAttempt time.Time
	lastError   string
}

// OutboxQueue is the in-memory outbox store: Add on the write side,
// Claim/MarkSent/MarkFailed on the worker side.
type OutboxQueue struct {
	mu      sync.Mutex
	entries []*queueEntry
}

func NewOutboxQueue() *OutboxQueue {
	return &OutboxQueue{}
}

func (q *OutboxQueue) Add(ctx context.Context, record appoutbox.EventRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, &queueEntry{record: record, nextAttempt: time.Now()})
	return nil
}

func (q *OutboxQueue) Claim(ctx context.Context, workerID string) (*infraoutbox.PendingEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := time.Now()
	for _, entry := range q.entries {
		if entry.sent || entry.claimed || entry.nextAttempt.After(now) {
			continue
		}
		entry.claimed = true
		return &infraoutbox.PendingEvent{EventRecord: entry.record, Attempts: entry.attempts}, nil
	}
	return nil, nil
}

func (q *OutboxQueue) MarkSent(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if entry := q.find(id); entry != nil {
		entry.sent = true
		entry.claimed = false
	}
	return nil
}

func (q *OutboxQueue) MarkFailed(ctx context.Context, id string, nextAttempt time.Time, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if entry := q.find(id); entry != nil {
		entry.claimed = false
		entry.attempts++
		entry.nextAttempt = nextAttempt
		entry.lastError = reason
	}
	return nil
}

// Unsent reports how many events still wait for publication; used by tests
// and the readiness probe.
func (q *OutboxQueue) Unsent() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, entry := range q.entries {
		if !entry.sent {
			n++
		}
	}
	return n
}

func (q *OutboxQueue) find(id string) *queueEntry {
	for _, entry := range q.entries {
		if entry.record.ID == id {
			return entry
		}
	}
	return nil
}

var (
	_ appoutbox.Outbox  = (*OutboxQueue)(nil)
	_ infraoutbox.Store = (*OutboxQueue)(nil)
)
