package chat

import "time"

// Row is a render-ready message derived from the thread. Rows are ephemeral
// and recomputed on every thread change; DeriveRows holds no state.
type Row struct {
	Message             Message
	System              bool
	Text                string
	Outgoing            bool
	GroupedWithPrevious bool
	GroupedWithNext     bool
	ShowAvatar          bool
	ShowTimestamp       bool
	// UnreadBoundary marks the single row the "new messages" divider is
	// rendered above.
	UnreadBoundary bool
}

// DeriveRows maps an ordered message list plus viewer identity and read
// watermark into render rows. Deterministic: same inputs, same rows.
//
// Grouping joins consecutive non-system messages from the same sender.
// System rows never group and reset grouping on both sides. The avatar sits
// on the newest message of an incoming run; timestamps on the last message
// of any run.
func DeriveRows(messages []Message, viewerID string, lastReadAt *time.Time) []Row {
	rows := make([]Row, 0, len(messages))
	unreadID, haveUnread := unreadBoundary(messages, viewerID, lastReadAt)

	for i, msg := range messages {
		row := Row{
			Message: msg,
			System:  msg.IsSystem(),
			Text:    msg.DisplayBody(),
		}
		if !row.System {
			row.Outgoing = msg.SenderID == viewerID
			row.GroupedWithPrevious = groupable(messages, i, i-1)
			row.GroupedWithNext = groupable(messages, i, i+1)
			row.ShowAvatar = !row.Outgoing && !row.GroupedWithNext
			row.ShowTimestamp = !row.GroupedWithNext
		}
		if haveUnread && msg.ID == unreadID {
			row.UnreadBoundary = true
		}
		rows = append(rows, row)
	}
	return rows
}

// groupable reports whether messages[i] groups with its neighbour at j.
func groupable(messages []Message, i, j int) bool {
	if j < 0 || j >= len(messages) {
		return false
	}
	if messages[i].IsSystem() || messages[j].IsSystem() {
		return false
	}
	return messages[i].SenderID == messages[j].SenderID
}

// HasUnread reports whether any counterpart message falls past the viewer's
// read watermark. Badge counts are built from this, one per conversation.
func HasUnread(messages []Message, viewerID string, lastReadAt *time.Time) bool {
	_, ok := unreadBoundary(messages, viewerID, lastReadAt)
	return ok
}

// unreadBoundary finds the first message from someone else that the viewer
// has not seen. An unknown watermark or an unparseable timestamp counts as
// unread so new content is never hidden.
func unreadBoundary(messages []Message, viewerID string, lastReadAt *time.Time) (MessageID, bool) {
	for _, msg := range messages {
		if msg.SenderID == viewerID {
			continue
		}
		if lastReadAt == nil {
			return msg.ID, true
		}
		at, err := msg.Time()
		if err != nil || at.After(*lastReadAt) {
			return msg.ID, true
		}
	}
	return 0, false
}
