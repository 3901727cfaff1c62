package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"smajobb/internal/domain/chat"
	"smajobb/internal/infra/ws"
)

// ChannelHandler upgrades participants onto the realtime conversation
// channel. The channel is server-to-client only; inbound frames are drained
// and ignored, sending happens over the REST write path.
type ChannelHandler struct {
	Hub           *ws.Hub
	Conversations chat.ConversationRepository
	Logger        *slog.Logger
	upgrader      websocket.Upgrader
}

func NewChannelHandler(hub *ws.Hub, conversations chat.ConversationRepository, logger *slog.Logger) *ChannelHandler {
	return &ChannelHandler{
		Hub:           hub,
		Conversations: conversations,
		Logger:        logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *ChannelHandler) Attach(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	conv, err := h.Conversations.ByID(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if !conv.Participant(p.ID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat participant"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Debug("websocket upgrade failed", "error", err)
		}
		return
	}
	detach := h.Hub.Subscribe(conversationID, conn)
	defer detach()
	defer conn.Close()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

var _ ChannelHTTP = (*ChannelHandler)(nil)
