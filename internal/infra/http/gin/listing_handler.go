package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"smajobb/internal/app/dto"
	appoutbox "smajobb/internal/app/outbox"
	"smajobb/internal/domain/listings"
	"smajobb/internal/domain/shared/money"
)

// ListingHandler covers listing CRUD. Handshake actions (accept, decline,
// complete) live on EscrowHandler because they touch the payment side too.
type ListingHandler struct {
	Listings listings.Repository
	Currency string
	Outbox   appoutbox.Outbox
	Encoder  appoutbox.EventEncoder
	Logger   *slog.Logger
}

type listingRequest struct {
	Title             string `json:"title"`
	Description       string `json:"description"`
	PriceAmount       int64  `json:"price_amount"`
	OffersSafePayment bool   `json:"offers_safe_payment"`
}

func (h ListingHandler) Create(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req listingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	price, err := money.New(req.PriceAmount, h.Currency)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}
	listing, err := listings.NewListing(listings.CreateParams{
		ID:                listings.ListingID(uuid.NewString()),
		Owner:             listings.OwnerID(p.ID),
		Title:             req.Title,
		Description:       req.Description,
		Price:             price,
		OffersSafePayment: req.OffersSafePayment,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.save(c, listing); err != nil {
		return
	}
	c.JSON(http.StatusCreated, dto.FromListing(listing))
}

func (h ListingHandler) Get(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	listing, err := h.Listings.ByID(c.Request.Context(), listings.ListingID(id))
	if err != nil {
		if errors.Is(err, listings.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
			return
		}
		h.logError("load listing failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load listing"})
		return
	}
	c.JSON(http.StatusOK, dto.FromListing(listing))
}

func (h ListingHandler) ListMine(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	owned, err := h.Listings.ListByOwner(c.Request.Context(), listings.OwnerID(p.ID))
	if err != nil {
		h.logError("list listings failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot list listings"})
		return
	}
	collection := dto.ListingList{Items: make([]dto.Listing, 0, len(owned))}
	for _, listing := range owned {
		collection.Items = append(collection.Items, dto.FromListing(listing))
	}
	c.JSON(http.StatusOK, collection)
}

func (h ListingHandler) Update(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	var req listingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	listing, err := h.Listings.ByID(c.Request.Context(), listings.ListingID(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		return
	}
	if string(listing.Owner) != p.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the owner can edit a listing"})
		return
	}
	price, err := money.New(req.PriceAmount, h.Currency)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price"})
		return
	}
	if err := listing.UpdateDetails(req.Title, req.Description, price, req.OffersSafePayment, time.Now()); err != nil {
		switch {
		case errors.Is(err, listings.ErrCompleted), errors.Is(err, listings.ErrInvalidState):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}
	if err := h.save(c, listing); err != nil {
		return
	}
	c.JSON(http.StatusOK, dto.FromListing(listing))
}

// Delete removes a listing that never entered the handshake. Anything past
// INITIATED has a counterpart attached and must be declined or completed
// instead.
func (h ListingHandler) Delete(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	listing, err := h.Listings.ByID(c.Request.Context(), listings.ListingID(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		return
	}
	if string(listing.Owner) != p.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the owner can delete a listing"})
		return
	}
	if listing.Status != listings.StatusInitiated {
		c.JSON(http.StatusConflict, gin.H{"error": "listing has an active handshake"})
		return
	}
	if err := h.Listings.Delete(c.Request.Context(), listing.ID); err != nil {
		h.logError("delete listing failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot delete listing"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h ListingHandler) save(c *gin.Context, listing *listings.Listing) error {
	events := listing.PendingEvents()
	if err := h.Listings.Save(c.Request.Context(), listing); err != nil {
		h.logError("save listing failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot save listing"})
		return err
	}
	if err := appoutbox.RecordDomainEvents(c.Request.Context(), h.Outbox, h.Encoder, events); err != nil {
		h.logError("outbox record failed", err)
	}
	return nil
}

func (h ListingHandler) logError(msg string, err error) {
	if h.Logger != nil {
		h.Logger.Error(msg, "error", err)
	}
}

var _ ListingHTTP = (*ListingHandler)(nil)
