package chat

import (
	"reflect"
	"testing"
	"time"
)

const (
	viewer      = "user-a"
	counterpart = "user-b"
)

func msg(id int64, sender, body string, at time.Time) Message {
	return Message{
		ID:             MessageID(id),
		ConversationID: "conv-1",
		SenderID:       sender,
		Body:           body,
		CreatedAt:      FormatTime(at),
	}
}

func TestDeriveRowsGrouping(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	messages := []Message{
		msg(1, counterpart, "hei", base),
		msg(2, counterpart, "er jobben ledig?", base.Add(time.Minute)),
		msg(3, viewer, "ja", base.Add(2*time.Minute)),
	}
	rows := DeriveRows(messages, viewer, nil)

	if rows[0].GroupedWithPrevious || !rows[0].GroupedWithNext {
		t.Errorf("row 0 grouping = (%v,%v), want (false,true)", rows[0].GroupedWithPrevious, rows[0].GroupedWithNext)
	}
	if !rows[1].GroupedWithPrevious || rows[1].GroupedWithNext {
		t.Errorf("row 1 grouping = (%v,%v), want (true,false)", rows[1].GroupedWithPrevious, rows[1].GroupedWithNext)
	}
	// Avatar and timestamp belong to the last message of the incoming run.
	if rows[0].ShowAvatar || rows[0].ShowTimestamp {
		t.Error("row 0 should hide avatar and timestamp inside a run")
	}
	if !rows[1].ShowAvatar || !rows[1].ShowTimestamp {
		t.Error("row 1 should carry avatar and timestamp")
	}
	// Outgoing rows never show an avatar but do close their run.
	if rows[2].ShowAvatar {
		t.Error("outgoing row must not show avatar")
	}
	if !rows[2].ShowTimestamp {
		t.Error("outgoing run end should show timestamp")
	}
	if !rows[2].Outgoing || rows[0].Outgoing {
		t.Error("outgoing flags wrong")
	}
}

func TestDeriveRowsSystemNeverGroups(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	messages := []Message{
		msg(1, counterpart, "før", base),
		msg(2, counterpart, SystemBody("Kari accepted the job"), base.Add(time.Second)),
		msg(3, counterpart, "etter", base.Add(2*time.Second)),
	}
	rows := DeriveRows(messages, viewer, nil)

	if !rows[1].System {
		t.Fatal("row 1 should be a system row")
	}
	if rows[1].Text != "Kari accepted the job" {
		t.Errorf("system text = %q", rows[1].Text)
	}
	if rows[1].GroupedWithPrevious || rows[1].GroupedWithNext || rows[1].ShowAvatar || rows[1].ShowTimestamp {
		t.Error("system rows carry no grouping, avatar or timestamp")
	}
	if rows[0].GroupedWithNext || rows[2].GroupedWithPrevious {
		t.Error("system row must break grouping on both sides")
	}
}

func TestDeriveRowsUnreadBoundary(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	watermark := base

	messages := []Message{
		msg(1, counterpart, "gammel", base.Add(-time.Second)),
		msg(2, counterpart, "ny", base.Add(time.Second)),
	}
	rows := DeriveRows(messages, viewer, &watermark)

	if rows[0].UnreadBoundary {
		t.Error("message one second before the watermark must be read")
	}
	if !rows[1].UnreadBoundary {
		t.Error("message one second after the watermark must carry the divider")
	}
}

func TestDeriveRowsUnreadWithUnknownWatermark(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	messages := []Message{
		msg(1, viewer, "min", base),
		msg(2, counterpart, "deres", base.Add(time.Second)),
	}

	rows := DeriveRows(messages, viewer, nil)
	if rows[0].UnreadBoundary {
		t.Error("own messages never carry the divider")
	}
	if !rows[1].UnreadBoundary {
		t.Error("nil watermark treats counterpart messages as unread")
	}

	// Unparseable created-at also counts as unread.
	watermark := base.Add(time.Hour)
	broken := []Message{{ID: 3, SenderID: counterpart, Body: "x", CreatedAt: "yesterday"}}
	rows = DeriveRows(broken, viewer, &watermark)
	if !rows[0].UnreadBoundary {
		t.Error("unparseable timestamp must count as unread")
	}
}

func TestDeriveRowsDeterministic(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	watermark := base
	messages := []Message{
		msg(1, counterpart, "a", base.Add(-time.Minute)),
		msg(2, counterpart, SystemBody("note"), base),
		msg(3, viewer, "b", base.Add(time.Minute)),
		msg(4, counterpart, "c", base.Add(2*time.Minute)),
	}

	first := DeriveRows(messages, viewer, &watermark)
	second := DeriveRows(messages, viewer, &watermark)
	if !reflect.DeepEqual(first, second) {
		t.Error("DeriveRows must be deterministic for identical input")
	}
}

func TestHasUnread(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	watermark := base
	read := []Message{msg(1, counterpart, "a", base.Add(-time.Second))}
	unread := []Message{msg(2, counterpart, "b", base.Add(time.Second))}

	if HasUnread(read, viewer, &watermark) {
		t.Error("older counterpart message should be read")
	}
	if !HasUnread(unread, viewer, &watermark) {
		t.Error("newer counterpart message should be unread")
	}
	if HasUnread(unread, counterpart, nil) {
		t.Error("own messages never count as unread")
	}
}
