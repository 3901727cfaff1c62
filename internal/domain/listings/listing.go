package listings

import (
	"context"
	"errors"
	"strings"
	"time"

	"smajobb/internal/domain/shared/events"
	"smajobb/internal/domain/shared/money"
)

var (
	ErrTitleRequired    = errors.New("listings: title is required")
	ErrOwnerRequired    = errors.New("listings: owner is required")
	ErrInvalidPrice     = errors.New("listings: price must be non-negative")
	ErrInvalidState     = errors.New("listings: invalid state transition")
	ErrCompleted        = errors.New("listings: listing is completed")
	ErrOwnSelfAccept    = errors.New("listings: owner cannot accept own listing")
	ErrNotFound         = errors.New("listings: not found")
	ErrContractorSet    = errors.New("listings: contractor already accepted")
	ErrContractorNeeded = errors.New("listings: no accepted contractor")
)

type ListingID string
type OwnerID string

// Status follows the accept handshake between the owner and the
// contractor. COMPLETED is terminal.
type Status string

const (
	StatusInitiated          Status = "INITIATED"
	StatusAcceptedOwner      Status = "ACCEPTED_OWNER"
	StatusAcceptedContractor Status = "ACCEPTED_CONTRACTOR"
	StatusAcceptedBoth       Status = "ACCEPTED_BOTH"
	StatusCompleted          Status = "COMPLETED"
)

// Valid reports whether s is one of the known listing statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusAcceptedOwner, StatusAcceptedContractor, StatusAcceptedBoth, StatusCompleted:
		return true
	}
	return false
}

// Listing is a posted job offered by an owner to contractors.
type Listing struct {
	ID                 ListingID
	Owner              OwnerID
	Title              string
	Description        string
	Price              money.Money
	OffersSafePayment  bool
	Status             Status
	AcceptedContractor string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Version            int64
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
	Save(ctx context.Context, listing *Listing) error
	ListByOwner(ctx context.Context, owner OwnerID) ([]*Listing, error)
	Delete(ctx context.Context, id ListingID) error
}

type CreateParams struct {
	ID                ListingID
	Owner             OwnerID
	Title             string
	Description       string
	Price             money.Money
	OffersSafePayment bool
	Now               time.Time
}

func NewListing(params CreateParams) (*Listing, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, errors.New("listings: id is required")
	}
	if strings.TrimSpace(string(params.Owner)) == "" {
		return nil, ErrOwnerRequired
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, ErrTitleRequired
	}
	if params.Price.Amount < 0 {
		return nil, ErrInvalidPrice
	}
	now := params.Now.UTC()
	listing := &Listing{
		ID:                params.ID,
		Owner:             params.Owner,
		Title:             strings.TrimSpace(params.Title),
		Description:       strings.TrimSpace(params.Description),
		Price:             params.Price,
		OffersSafePayment: params.OffersSafePayment,
		Status:            StatusInitiated,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	listing.Record(ListingCreated{ListingID: listing.ID, Owner: listing.Owner, At: now})
	return listing, nil
}

// AcceptByContractor moves INITIATED to ACCEPTED_CONTRACTOR and pins the
// contractor, or ACCEPTED_OWNER to ACCEPTED_BOTH when the owner moved first.
func (l *Listing) AcceptByContractor(contractorID string, now time.Time) error {
	if contractorID == "" {
		return errors.New("listings: contractor id is required")
	}
	if string(l.Owner) == contractorID {
		return ErrOwnSelfAccept
	}
	switch l.Status {
	case StatusInitiated:
		l.Status = StatusAcceptedContractor
	case StatusAcceptedOwner:
		l.Status = StatusAcceptedBoth
	default:
		return ErrInvalidState
	}
	l.AcceptedContractor = contractorID
	l.UpdatedAt = now.UTC()
	l.Record(ContractorAccepted{ListingID: l.ID, ContractorID: contractorID, At: l.UpdatedAt})
	return nil
}

// AcceptByOwner confirms the pinned contractor: ACCEPTED_CONTRACTOR moves to
// ACCEPTED_BOTH. The payment hold, if any, is coordinated by the caller.
func (l *Listing) AcceptByOwner(now time.Time) error {
	if l.Status != StatusAcceptedContractor {
		return ErrInvalidState
	}
	if l.AcceptedContractor == "" {
		return ErrContractorNeeded
	}
	l.Status = StatusAcceptedBoth
	l.UpdatedAt = now.UTC()
	l.Record(OwnerAccepted{ListingID: l.ID, Owner: l.Owner, At: l.UpdatedAt})
	return nil
}

// Reset reverts a declined handshake to INITIATED and unpins the contractor.
func (l *Listing) Reset(actorID string, now time.Time) error {
	switch l.Status {
	case StatusAcceptedContractor, StatusAcceptedBoth, StatusAcceptedOwner:
	default:
		return ErrInvalidState
	}
	l.Status = StatusInitiated
	l.AcceptedContractor = ""
	l.UpdatedAt = now.UTC()
	l.Record(ListingReset{ListingID: l.ID, ActorID: actorID, At: l.UpdatedAt})
	return nil
}

// Complete marks the job done. Terminal.
func (l *Listing) Complete(now time.Time) error {
	if l.Status == StatusCompleted {
		return ErrCompleted
	}
	l.Status = StatusCompleted
	l.UpdatedAt = now.UTC()
	l.Record(ListingCompleted{ListingID: l.ID, ContractorID: l.AcceptedContractor, At: l.UpdatedAt})
	return nil
}

func (l *Listing) UpdateDetails(title, description string, price money.Money, offersSafePayment bool, now time.Time) error {
	if l.Status == StatusCompleted {
		return ErrCompleted
	}
	if strings.TrimSpace(title) == "" {
		return ErrTitleRequired
	}
	if price.Amount < 0 {
		return ErrInvalidPrice
	}
	l.Title = strings.TrimSpace(title)
	l.Description = strings.TrimSpace(description)
	l.Price = price
	l.OffersSafePayment = offersSafePayment
	l.UpdatedAt = now.UTC()
	l.Record(ListingUpdated{ListingID: l.ID, At: l.UpdatedAt})
	return nil
}
