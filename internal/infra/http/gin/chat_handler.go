package ginserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"smajobb/internal/app/dto"
	"smajobb/internal/app/services/escrow"
	"smajobb/internal/domain/chat"
	domainlistings "smajobb/internal/domain/listings"
)

// ChatHandler serves conversation metadata and message history. Realtime
// delivery goes through the channel endpoint; these are the catch-up reads
// and the write path.
type ChatHandler struct {
	Conversations chat.ConversationRepository
	Messages      chat.MessageRepository
	Listings      domainlistings.Repository
	Broadcast     escrow.Broadcaster
	// WSBase is the externally reachable websocket origin, advertised to
	// clients as each conversation's channel URL.
	WSBase string
	Logger *slog.Logger
}

func (h ChatHandler) ListMyConversations(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	conversations, err := h.Conversations.ListByUser(c.Request.Context(), p.ID)
	if err != nil {
		h.logError("list conversations failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot list conversations"})
		return
	}
	collection := dto.ConversationList{Items: make([]dto.Conversation, 0, len(conversations))}
	for _, conv := range conversations {
		collection.Items = append(collection.Items, h.render(c, conv, p.ID))
	}
	c.JSON(http.StatusOK, collection)
}

func (h ChatHandler) GetConversation(c *gin.Context) {
	p, conv, ok := h.loadParticipant(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.render(c, conv, p.ID))
}

// CreateListingConversation gets or creates the buyer/seller thread for a
// listing. One conversation per (listing, buyer) pair.
func (h ChatHandler) CreateListingConversation(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	listingID := strings.TrimSpace(c.Param("id"))
	if listingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing id is required"})
		return
	}
	listing, err := h.Listings.ByID(c.Request.Context(), domainlistings.ListingID(listingID))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		return
	}
	if string(listing.Owner) == p.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot start chat with yourself"})
		return
	}
	conv, err := h.Conversations.ByListingAndBuyer(c.Request.Context(), listingID, p.ID)
	if errors.Is(err, chat.ErrConversationNotFound) {
		now := time.Now().UTC()
		conv = &chat.Conversation{
			ID:        uuid.NewString(),
			ListingID: listingID,
			BuyerID:   p.ID,
			SellerID:  string(listing.Owner),
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = h.Conversations.Save(c.Request.Context(), conv)
	}
	if err != nil {
		h.logError("create conversation failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot create conversation"})
		return
	}
	c.JSON(http.StatusOK, h.render(c, conv, p.ID))
}

func (h ChatHandler) ListMessages(c *gin.Context) {
	_, conv, ok := h.loadParticipant(c)
	if !ok {
		return
	}
	messages, err := h.Messages.List(c.Request.Context(), conv.ID)
	if err != nil {
		h.logError("list messages failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot list messages"})
		return
	}
	collection := dto.ChatMessageList{Items: make([]dto.ChatMessage, 0, len(messages))}
	for _, msg := range messages {
		collection.Items = append(collection.Items, dto.FromMessage(msg))
	}
	c.JSON(http.StatusOK, collection)
}

func (h ChatHandler) SendMessage(c *gin.Context) {
	p, conv, ok := h.loadParticipant(c)
	if !ok {
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Body = strings.TrimSpace(req.Body)
	if req.Body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body is required"})
		return
	}
	if strings.HasPrefix(req.Body, chat.SystemPrefix) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reserved message prefix"})
		return
	}
	msg, err := h.Messages.Append(c.Request.Context(), conv.ID, p.ID, req.Body, time.Now())
	if err != nil {
		h.logError("append message failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot store message"})
		return
	}
	if h.Broadcast != nil {
		h.Broadcast.Broadcast(conv.ID, msg)
	}
	c.JSON(http.StatusCreated, dto.FromMessage(msg))
}

// MarkRead moves the caller's read watermark to now.
func (h ChatHandler) MarkRead(c *gin.Context) {
	p, conv, ok := h.loadParticipant(c)
	if !ok {
		return
	}
	var req struct{}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	now := time.Now().UTC()
	conv.MarkRead(p.ID, now)
	if err := h.Conversations.Save(c.Request.Context(), conv); err != nil {
		h.logError("mark read failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot mark read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"read_at": chat.FormatTime(now)})
}

func (h ChatHandler) loadParticipant(c *gin.Context) (principal, *chat.Conversation, bool) {
	p, ok := requireUser(c)
	if !ok {
		return principal{}, nil, false
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return principal{}, nil, false
	}
	conv, err := h.Conversations.ByID(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return principal{}, nil, false
		}
		h.logError("load conversation failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load conversation"})
		return principal{}, nil, false
	}
	if !conv.Participant(p.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
		return principal{}, nil, false
	}
	return p, conv, true
}

// render computes the viewer-facing unread flag from the message store; a
// failed read degrades to unread=false rather than failing the request.
func (h ChatHandler) render(c *gin.Context, conv *chat.Conversation, viewerID string) dto.Conversation {
	hasUnread := false
	if messages, err := h.Messages.List(c.Request.Context(), conv.ID); err == nil {
		var watermark *time.Time
		if at, ok := conv.LastReadAt(viewerID); ok {
			watermark = &at
		}
		hasUnread = chat.HasUnread(messages, viewerID, watermark)
	}
	out := dto.FromConversation(conv, viewerID, hasUnread)
	if h.WSBase != "" {
		out.ChannelURL = h.WSBase + "/ws/conversations/" + conv.ID
	}
	return out
}

func (h ChatHandler) logError(msg string, err error) {
	if h.Logger != nil {
		h.Logger.Error(msg, "error", err)
	}
}

var _ ChatHTTP = (*ChatHandler)(nil)
