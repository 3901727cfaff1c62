package reviews

import (
	"context"
	"errors"
	"strings"
	"time"

	"smajobb/internal/domain/listings"
)

var (
	ErrInvalidRating    = errors.New("reviews: rating must be between 1 and 5")
	ErrSelfReview       = errors.New("reviews: cannot review yourself")
	ErrAlreadyReviewed  = errors.New("reviews: listing already reviewed by this reviewer")
	ErrListingNotDone   = errors.New("reviews: listing is not completed")
	ErrNotFound         = errors.New("reviews: not found")
	ErrRevieweeRequired = errors.New("reviews: reviewee is required")
)

type ReviewID string

// Review is one party's rating of the other for a completed listing.
// At most one review per (reviewer, listing).
type Review struct {
	ID         ReviewID
	ListingID  listings.ListingID
	ReviewerID string
	RevieweeID string
	Rating     int
	Comment    string
	CreatedAt  time.Time
}

type Repository interface {
	ByReviewerAndListing(ctx context.Context, reviewerID string, listingID listings.ListingID) (*Review, error)
	ListByReviewer(ctx context.Context, reviewerID string) ([]*Review, error)
	ListByReviewee(ctx context.Context, revieweeID string) ([]*Review, error)
	Save(ctx context.Context, review *Review) error
}

type SubmitParams struct {
	ID         ReviewID
	ListingID  listings.ListingID
	ReviewerID string
	RevieweeID string
	Rating     int
	Comment    string
	CreatedAt  time.Time
}

func Submit(params SubmitParams) (*Review, error) {
	if params.Rating < 1 || params.Rating > 5 {
		return nil, ErrInvalidRating
	}
	if strings.TrimSpace(params.RevieweeID) == "" {
		return nil, ErrRevieweeRequired
	}
	if params.ReviewerID == params.RevieweeID {
		return nil, ErrSelfReview
	}
	return &Review{
		ID:         params.ID,
		ListingID:  params.ListingID,
		ReviewerID: params.ReviewerID,
		RevieweeID: params.RevieweeID,
		Rating:     params.Rating,
		Comment:    strings.TrimSpace(params.Comment),
		CreatedAt:  params.CreatedAt.UTC(),
	}, nil
}
