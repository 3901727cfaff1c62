package dto

import (
	"time"

	"smajobb/internal/domain/reviews"
)

type Review struct {
	ID         string    `json:"id"`
	ListingID  string    `json:"listing_id"`
	ReviewerID string    `json:"reviewer_id"`
	RevieweeID string    `json:"reviewee_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type ReviewList struct {
	Items []Review `json:"items"`
}

func FromReview(review *reviews.Review) Review {
	return Review{
		ID:         string(review.ID),
		ListingID:  string(review.ListingID),
		ReviewerID: review.ReviewerID,
		RevieweeID: review.RevieweeID,
		Rating:     review.Rating,
		Comment:    review.Comment,
		CreatedAt:  review.CreatedAt,
	}
}
