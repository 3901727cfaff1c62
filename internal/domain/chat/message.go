package chat

import (
	"errors"
	"strings"
	"time"
)

// SystemPrefix marks a message body as a structural notification rather than
// user content. The prefix and the remaining free text are the whole contract.
const SystemPrefix = "SYSTEM:"

var ErrBadTimestamp = errors.New("chat: unparseable created-at timestamp")

// MessageID is server-assigned and monotonic; it orders messages and is the
// dedup key. Clients never reorder, only append.
type MessageID int64

// Message is immutable once created.
type Message struct {
	ID             MessageID
	ConversationID string
	SenderID       string
	Body           string
	// CreatedAt is kept in its wire form and reparsed on use. Backends have
	// been observed to switch between fractional and whole-second ISO-8601.
	CreatedAt string
}

// IsSystem reports whether the body carries the system notification prefix.
func (m Message) IsSystem() bool {
	return strings.HasPrefix(strings.TrimSpace(m.Body), SystemPrefix)
}

// DisplayBody returns the renderable text: trimmed, and with the system
// prefix stripped for notifications.
func (m Message) DisplayBody() string {
	body := strings.TrimSpace(m.Body)
	if strings.HasPrefix(body, SystemPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(body, SystemPrefix))
	}
	return body
}

// createdAtLayouts are tried in order; RFC3339Nano also covers plain RFC3339.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Time parses the created-at timestamp leniently.
func (m Message) Time() (time.Time, error) {
	raw := strings.TrimSpace(m.CreatedAt)
	if raw == "" {
		return time.Time{}, ErrBadTimestamp
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrBadTimestamp
}

// FormatTime renders a timestamp in the canonical wire form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// SystemBody builds a notification body from free text.
func SystemBody(text string) string {
	return SystemPrefix + " " + strings.TrimSpace(text)
}
