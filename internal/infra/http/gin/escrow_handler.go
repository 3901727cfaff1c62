package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"smajobb/internal/app/dto"
	appescrow "smajobb/internal/app/services/escrow"
	"smajobb/internal/domain/chat"
	domainescrow "smajobb/internal/domain/escrow"
	"smajobb/internal/domain/listings"
)

// EscrowHandler exposes the safe-payment actions. Each POST runs one state
// machine transition server-side and returns the refreshed listing and
// conversation so clients can swap snapshots in place.
type EscrowHandler struct {
	Service *appescrow.Service
	Logger  *slog.Logger
}

func (h EscrowHandler) Accept(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	listingID := strings.TrimSpace(c.Param("id"))
	result, err := h.Service.Accept(c.Request.Context(), listings.ListingID(listingID), p.ID)
	h.respondAction(c, p.ID, result, err)
}

func (h EscrowHandler) Complete(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	listingID := strings.TrimSpace(c.Param("id"))
	result, err := h.Service.Complete(c.Request.Context(), listings.ListingID(listingID), p.ID)
	h.respondAction(c, p.ID, result, err)
}

func (h EscrowHandler) MarkDone(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	listingID := strings.TrimSpace(c.Param("id"))
	result, err := h.Service.MarkDone(c.Request.Context(), listings.ListingID(listingID), p.ID)
	h.respondAction(c, p.ID, result, err)
}

func (h EscrowHandler) OnboardingStatus(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	required, url, err := h.Service.CheckOnboarding(c.Request.Context(), conversationID, p.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OnboardingStatus{RequiresOnboarding: required, OnboardingURL: url})
}

func (h EscrowHandler) CreateIntent(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	result, err := h.Service.CreateIntent(c.Request.Context(), conversationID, p.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if result.RequiresOnboarding {
		c.JSON(http.StatusOK, dto.EscrowAction{
			RequiresOnboarding: true,
			OnboardingURL:      result.OnboardingURL,
		})
		return
	}
	c.JSON(http.StatusOK, dto.PaymentIntent{
		ClientSecret:   result.Intent.ClientSecret,
		PublishableKey: result.Intent.PublishableKey,
		Conversation:   dto.FromConversation(result.Conversation, p.ID, false),
	})
}

func (h EscrowHandler) ConfirmPayment(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	result, err := h.Service.ConfirmPayment(c.Request.Context(), conversationID, p.ID)
	h.respondAction(c, p.ID, result, err)
}

func (h EscrowHandler) CancelPayment(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	result, err := h.Service.CancelPayment(c.Request.Context(), conversationID, p.ID)
	h.respondAction(c, p.ID, result, err)
}

func (h EscrowHandler) Decline(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	result, err := h.Service.Decline(c.Request.Context(), conversationID, p.ID)
	h.respondAction(c, p.ID, result, err)
}

func (h EscrowHandler) respondAction(c *gin.Context, viewerID string, result *appescrow.ActionResult, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	response := dto.EscrowAction{
		RequiresOnboarding: result.RequiresOnboarding,
		OnboardingURL:      result.OnboardingURL,
	}
	if result.Listing != nil {
		listing := dto.FromListing(result.Listing)
		response.Listing = &listing
	}
	if result.Conversation != nil {
		conv := dto.FromConversation(result.Conversation, viewerID, false)
		response.Conversation = &conv
	}
	c.JSON(http.StatusOK, response)
}

func (h EscrowHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, listings.ErrNotFound), errors.Is(err, chat.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, appescrow.ErrNotParticipant), errors.Is(err, domainescrow.ErrWrongRole):
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed for this user"})
	case errors.Is(err, domainescrow.ErrInvalidState),
		errors.Is(err, appescrow.ErrNoIntent),
		errors.Is(err, listings.ErrCompleted),
		errors.Is(err, listings.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domainescrow.ErrUnknownAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if h.Logger != nil {
			h.Logger.Error("escrow action failed", "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "escrow action failed"})
	}
}

var _ EscrowHTTP = (*EscrowHandler)(nil)
