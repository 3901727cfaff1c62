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
	"smajobb/internal/domain/listings"
	"smajobb/internal/domain/reviews"
)

type ReviewHandler struct {
	Reviews  reviews.Repository
	Listings listings.Repository
	Logger   *slog.Logger
}

// Submit records one review per (reviewer, listing). Reviews open only once
// the listing is completed.
func (h ReviewHandler) Submit(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		ListingID string `json:"listing_id"`
		Rating    int    `json:"rating"`
		Comment   string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	listing, err := h.Listings.ByID(c.Request.Context(), listings.ListingID(strings.TrimSpace(req.ListingID)))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		return
	}
	if listing.Status != listings.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": reviews.ErrListingNotDone.Error()})
		return
	}
	reviewee := ""
	switch p.ID {
	case string(listing.Owner):
		reviewee = listing.AcceptedContractor
	case listing.AcceptedContractor:
		reviewee = string(listing.Owner)
	default:
		c.JSON(http.StatusForbidden, gin.H{"error": "only parties to the listing can review"})
		return
	}
	review, err := reviews.Submit(reviews.SubmitParams{
		ID:         reviews.ReviewID(uuid.NewString()),
		ListingID:  listing.ID,
		ReviewerID: p.ID,
		RevieweeID: reviewee,
		Rating:     req.Rating,
		Comment:    req.Comment,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Reviews.Save(c.Request.Context(), review); err != nil {
		if errors.Is(err, reviews.ErrAlreadyReviewed) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if h.Logger != nil {
			h.Logger.Error("save review failed", "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot save review"})
		return
	}
	c.JSON(http.StatusCreated, dto.FromReview(review))
}

func (h ReviewHandler) ListForUser(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	userID := strings.TrimSpace(c.Param("id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}
	list := h.Reviews.ListByReviewee
	if c.Query("role") == "reviewer" {
		list = h.Reviews.ListByReviewer
	}
	received, err := list(c.Request.Context(), userID)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("list reviews failed", "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot list reviews"})
		return
	}
	collection := dto.ReviewList{Items: make([]dto.Review, 0, len(received))}
	for _, review := range received {
		collection.Items = append(collection.Items, dto.FromReview(review))
	}
	c.JSON(http.StatusOK, collection)
}

var _ ReviewHTTP = (*ReviewHandler)(nil)
