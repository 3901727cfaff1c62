package dto

import (
	"time"

	"smajobb/internal/domain/listings"
)

type Listing struct {
	ID                   string    `json:"id"`
	OwnerID              string    `json:"owner_id"`
	Title                string    `json:"title"`
	Description          string    `json:"description,omitempty"`
	PriceAmount          int64     `json:"price_amount"`
	PriceCurrency        string    `json:"price_currency"`
	OffersSafePayment    bool      `json:"offers_safe_payment"`
	Status               string    `json:"status"`
	AcceptedContractorID string    `json:"accepted_contractor_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type ListingList struct {
	Items []Listing `json:"items"`
}

func FromListing(listing *listings.Listing) Listing {
	return Listing{
		ID:                   string(listing.ID),
		OwnerID:              string(listing.Owner),
		Title:                listing.Title,
		Description:          listing.Description,
		PriceAmount:          listing.Price.Amount,
		PriceCurrency:        listing.Price.Currency,
		OffersSafePayment:    listing.OffersSafePayment,
		Status:               string(listing.Status),
		AcceptedContractorID: listing.AcceptedContractor,
		CreatedAt:            listing.CreatedAt,
		UpdatedAt:            listing.UpdatedAt,
	}
}
