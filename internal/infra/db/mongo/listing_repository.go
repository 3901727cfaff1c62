package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainlistings "smajobb/internal/domain/listings"
	"smajobb/internal/domain/shared/money"
)

var ErrConcurrentUpdate = errors.New("mongo: concurrent update detected")

type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{col: db.Collection("agg_listing")}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var doc listingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainlistings.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	doc := newListingDocument(listing)
	filter := bson.M{"_id": doc.ID, "version": listing.Version}
	doc.Version = listing.Version + 1
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)
	res, err := r.col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConcurrentUpdate
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return ErrConcurrentUpdate
	}
	listing.Version = doc.Version
	listing.ClearEvents()
	return nil
}

func (r *ListingRepository) ListByOwner(ctx context.Context, owner domainlistings.OwnerID) ([]*domainlistings.Listing, error) {
	cursor, err := r.col.Find(ctx, bson.M{"owner_id": string(owner)})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var result []*domainlistings.Listing
	for cursor.Next(ctx) {
		var doc listingDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		result = append(result, doc.toAggregate())
	}
	return result, cursor.Err()
}

func (r *ListingRepository) Delete(ctx context.Context, id domainlistings.ListingID) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	return err
}

type listingDocument struct {
	ID                 string `bson:"_id"`
	OwnerID            string `bson:"owner_id"`
	Title              string `bson:"title"`
	Description        string `bson:"description"`
	PriceAmount        int64  `bson:"price_amount"`
	PriceCurrency      string `bson:"price_currency"`
	OffersSafePayment  bool   `bson:"offers_safe_payment"`
	Status             string `bson:"status"`
	AcceptedContractor string `bson:"accepted_contractor"`
	CreatedAt          int64  `bson:"created_at"`
	UpdatedAt          int64  `bson:"updated_at"`
	Version            int64  `bson:"version"`
}

func newListingDocument(l *domainlistings.Listing) listingDocument {
	return listingDocument{
		ID:                 string(l.ID),
		OwnerID:            string(l.Owner),
		Title:              l.Title,
		Description:        l.Description,
		PriceAmount:        l.Price.Amount,
		PriceCurrency:      l.Price.Currency,
		OffersSafePayment:  l.OffersSafePayment,
		Status:             string(l.Status),
		AcceptedContractor: l.AcceptedContractor,
		CreatedAt:          l.CreatedAt.UnixMilli(),
		UpdatedAt:          l.UpdatedAt.UnixMilli(),
		Version:            l.Version,
	}
}

func (d listingDocument) toAggregate() *domainlistings.Listing {
	return &domainlistings.Listing{
		ID:                 domainlistings.ListingID(d.ID),
		Owner:              domainlistings.OwnerID(d.OwnerID),
		Title:              d.Title,
		Description:        d.Description,
		Price:              money.Money{Amount: d.PriceAmount, Currency: d.PriceCurrency},
		OffersSafePayment:  d.OffersSafePayment,
		Status:             domainlistings.Status(d.Status),
		AcceptedContractor: d.AcceptedContractor,
		CreatedAt:          timestampToTime(d.CreatedAt),
		UpdatedAt:          timestampToTime(d.UpdatedAt),
		Version:            d.Version,
	}
}

func timestampToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
