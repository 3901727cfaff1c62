package chat

import (
	"context"
	"errors"
	"time"

	"smajobb/internal/domain/escrow"
)

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrNotParticipant       = errors.New("chat: user is not a participant")
)

// Conversation links a listing owner (seller) and a counterpart (buyer) to
// exactly one listing. Created lazily on first contact, never deleted.
type Conversation struct {
	ID                string
	ListingID         string
	BuyerID           string
	SellerID          string
	SafePaymentStatus escrow.PaymentStatus
	// SafePaymentAmount is in minor units; nil when no hold was ever created.
	SafePaymentAmount *int64
	PaymentIntentID   string
	LastRead          map[string]time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Participant reports whether userID is one of the two parties.
func (c *Conversation) Participant(userID string) bool {
	return userID != "" && (userID == c.BuyerID || userID == c.SellerID)
}

// Counterpart returns the other party's id, or "" for non-participants.
func (c *Conversation) Counterpart(viewerID string) string {
	switch viewerID {
	case c.BuyerID:
		return c.SellerID
	case c.SellerID:
		return c.BuyerID
	}
	return ""
}

// MarkRead records the viewer's read watermark.
func (c *Conversation) MarkRead(userID string, at time.Time) {
	if c.LastRead == nil {
		c.LastRead = make(map[string]time.Time)
	}
	c.LastRead[userID] = at.UTC()
}

// LastReadAt returns the viewer's watermark if one was ever recorded.
func (c *Conversation) LastReadAt(userID string) (time.Time, bool) {
	at, ok := c.LastRead[userID]
	return at, ok
}

type ConversationRepository interface {
	ByID(ctx context.Context, id string) (*Conversation, error)
	ByListingAndBuyer(ctx context.Context, listingID, buyerID string) (*Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]*Conversation, error)
	Save(ctx context.Context, conversation *Conversation) error
}

// MessageRepository assigns monotonic ids on append; List returns ascending
// id order.
type MessageRepository interface {
	Append(ctx context.Context, conversationID, senderID, body string, at time.Time) (Message, error)
	List(ctx context.Context, conversationID string) ([]Message, error)
}
