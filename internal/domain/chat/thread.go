package chat

// Thread is the in-memory message list of one open conversation. Messages
// arrive at-least-once from the realtime channel, so Append deduplicates by
// id before growing the list. Order is append order; the backend delivers in
// id order and the thread never re-sorts.
type Thread struct {
	messages []Message
	seen     map[MessageID]struct{}
}

func NewThread() *Thread {
	return &Thread{seen: make(map[MessageID]struct{})}
}

// Append adds msg unless a message with the same id is already present.
// It reports whether the thread grew.
func (t *Thread) Append(msg Message) bool {
	if t.seen == nil {
		t.seen = make(map[MessageID]struct{})
	}
	if _, dup := t.seen[msg.ID]; dup {
		return false
	}
	t.seen[msg.ID] = struct{}{}
	t.messages = append(t.messages, msg)
	return true
}

// Replace swaps the whole thread content, deduplicating the input.
func (t *Thread) Replace(msgs []Message) {
	t.messages = nil
	t.seen = make(map[MessageID]struct{})
	for _, m := range msgs {
		t.Append(m)
	}
}

// Messages returns a copy of the current list.
func (t *Thread) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Thread) Len() int {
	return len(t.messages)
}
