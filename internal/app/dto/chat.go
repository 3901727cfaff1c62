package dto

import (
	"time"

	"smajobb/internal/domain/chat"
)

// Conversation describes chat metadata as seen by one viewer.
type Conversation struct {
	ID                string    `json:"id"`
	ListingID         string    `json:"listing_id"`
	BuyerID           string    `json:"buyer_id"`
	SellerID          string    `json:"seller_id"`
	SafePaymentStatus string    `json:"safe_payment_status,omitempty"`
	SafePaymentAmount *int64    `json:"safe_payment_amount,omitempty"`
	LastReadAt        string    `json:"last_read_at,omitempty"`
	HasUnread         bool      `json:"has_unread,omitempty"`
	ChannelURL        string    `json:"channel_url,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type ConversationList struct {
	Items []Conversation `json:"items"`
}

// ChatMessage is the wire form of a single message.
type ChatMessage struct {
	ID             int64  `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Body           string `json:"body"`
	CreatedAt      string `json:"created_at"`
}

type ChatMessageList struct {
	Items []ChatMessage `json:"items"`
}

// ChannelEnvelope is one realtime frame. Unknown sibling fields are ignored
// by consumers for forward compatibility.
type ChannelEnvelope struct {
	Message ChatMessage `json:"message"`
}

func FromMessage(msg chat.Message) ChatMessage {
	return ChatMessage{
		ID:             int64(msg.ID),
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Body:           msg.Body,
		CreatedAt:      msg.CreatedAt,
	}
}

func (m ChatMessage) ToDomain() chat.Message {
	return chat.Message{
		ID:             chat.MessageID(m.ID),
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
}

// FromConversation renders conversation metadata for a viewer; hasUnread is
// computed by the caller from the message store.
func FromConversation(conv *chat.Conversation, viewerID string, hasUnread bool) Conversation {
	out := Conversation{
		ID:                conv.ID,
		ListingID:         conv.ListingID,
		BuyerID:           conv.BuyerID,
		SellerID:          conv.SellerID,
		SafePaymentStatus: string(conv.SafePaymentStatus),
		SafePaymentAmount: conv.SafePaymentAmount,
		HasUnread:         hasUnread,
		CreatedAt:         conv.CreatedAt,
	}
	if at, ok := conv.LastReadAt(viewerID); ok {
		out.LastReadAt = chat.FormatTime(at)
	}
	return out
}
