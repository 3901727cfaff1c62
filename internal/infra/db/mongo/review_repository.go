package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"smajobb/internal/domain/listings"
	domainreviews "smajobb/internal/domain/reviews"
)

// ReviewRepository enforces at most one review per (reviewer, listing) via
// the composite _id.
type ReviewRepository struct {
	col *mongo.Collection
}

func NewReviewRepository(db *mongo.Database) *ReviewRepository {
	return &ReviewRepository{col: db.Collection("agg_review")}
}

func (r *ReviewRepository) ByReviewerAndListing(ctx context.Context, reviewerID string, listingID listings.ListingID) (*domainreviews.Review, error) {
	var doc reviewDocument
	filter := bson.M{"_id": reviewKey(reviewerID, listingID)}
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainreviews.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ReviewRepository) ListByReviewer(ctx context.Context, reviewerID string) ([]*domainreviews.Review, error) {
	return r.list(ctx, bson.M{"reviewer_id": reviewerID})
}

func (r *ReviewRepository) ListByReviewee(ctx context.Context, revieweeID string) ([]*domainreviews.Review, error) {
	return r.list(ctx, bson.M{"reviewee_id": revieweeID})
}

func (r *ReviewRepository) Save(ctx context.Context, review *domainreviews.Review) error {
	doc := newReviewDocument(review)
	_, err := r.col.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return domainreviews.ErrAlreadyReviewed
	}
	return err
}

func (r *ReviewRepository) list(ctx context.Context, filter bson.M) ([]*domainreviews.Review, error) {
	cursor, err := r.col.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []*domainreviews.Review
	for cursor.Next(ctx) {
		var doc reviewDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, doc.toAggregate())
	}
	return result, cursor.Err()
}

func reviewKey(reviewerID string, listingID listings.ListingID) string {
	return reviewerID + ":" + string(listingID)
}

type reviewDocument struct {
	Key        string `bson:"_id"`
	ReviewID   string `bson:"review_id"`
	ListingID  string `bson:"listing_id"`
	ReviewerID string `bson:"reviewer_id"`
	RevieweeID string `bson:"reviewee_id"`
	Rating     int    `bson:"rating"`
	Comment    string `bson:"comment"`
	CreatedAt  int64  `bson:"created_at"`
}

func newReviewDocument(review *domainreviews.Review) reviewDocument {
	return reviewDocument{
		Key:        reviewKey(review.ReviewerID, review.ListingID),
		ReviewID:   string(review.ID),
		ListingID:  string(review.ListingID),
		ReviewerID: review.ReviewerID,
		RevieweeID: review.RevieweeID,
		Rating:     review.Rating,
		Comment:    review.Comment,
		CreatedAt:  review.CreatedAt.UnixMilli(),
	}
}

func (d reviewDocument) toAggregate() *domainreviews.Review {
	return &domainreviews.Review{
		ID:         domainreviews.ReviewID(d.ReviewID),
		ListingID:  listings.ListingID(d.ListingID),
		ReviewerID: d.ReviewerID,
		RevieweeID: d.RevieweeID,
		Rating:     d.Rating,
		Comment:    d.Comment,
		CreatedAt:  timestampToTime(d.CreatedAt),
	}
}
