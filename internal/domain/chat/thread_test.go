package chat

import (
	"testing"
	"time"
)

func TestThreadAppendDedup(t *testing.T) {
	thread := NewThread()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m1 := msg(1, counterpart, "hei", base)
	m2 := msg(2, viewer, "hei selv", base.Add(time.Second))

	if !thread.Append(m1) || !thread.Append(m2) {
		t.Fatal("first append of each message must succeed")
	}
	if thread.Append(m1) {
		t.Error("duplicate id must be rejected")
	}
	if thread.Len() != 2 {
		t.Fatalf("len = %d, want 2", thread.Len())
	}

	// Re-delivering the whole batch changes nothing.
	for _, m := range []Message{m1, m2, m1} {
		thread.Append(m)
	}
	got := thread.Messages()
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("messages after redelivery = %v", got)
	}
}

func TestThreadReplace(t *testing.T) {
	thread := NewThread()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	thread.Append(msg(9, viewer, "stale", base))

	thread.Replace([]Message{
		msg(1, counterpart, "a", base),
		msg(2, counterpart, "b", base.Add(time.Second)),
	})
	if thread.Len() != 2 {
		t.Fatalf("len = %d, want 2", thread.Len())
	}
	if thread.Append(msg(1, counterpart, "a", base)) {
		t.Error("Replace must reseed the dedup set")
	}
	if !thread.Append(msg(9, viewer, "fresh", base)) {
		t.Error("ids dropped by Replace are appendable again")
	}
}

func TestMessageTimeLenientParse(t *testing.T) {
	tests := []struct {
		raw string
		ok  bool
	}{
		{"2026-03-01T12:00:00Z", true},
		{"2026-03-01T12:00:00.123456Z", true},
		{"2026-03-01T12:00:00+01:00", true},
		{"2026-03-01 12:00:00", true},
		{"not a time", false},
		{"", false},
	}
	for _, tt := range tests {
		m := Message{CreatedAt: tt.raw}
		_, err := m.Time()
		if (err == nil) != tt.ok {
			t.Errorf("Time(%q) error = %v, want ok=%v", tt.raw, err, tt.ok)
		}
	}
}

func TestSystemBodyRoundTrip(t *testing.T) {
	body := SystemBody("Ola declined the agreement")
	m := Message{Body: body}
	if !m.IsSystem() {
		t.Fatal("SystemBody output must be detected as system")
	}
	if m.DisplayBody() != "Ola declined the agreement" {
		t.Errorf("DisplayBody = %q", m.DisplayBody())
	}

	plain := Message{Body: "SYSTEMATIC approach"}
	if plain.IsSystem() {
		t.Error("prefix match must be exact, not a substring")
	}
}
