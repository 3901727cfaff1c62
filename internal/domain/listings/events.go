package listings

import "time"

type ListingCreated struct {
	ListingID ListingID
	Owner     OwnerID
	At        time.Time
}

func (e ListingCreated) EventName() string     { return "listing.created" }
func (e ListingCreated) AggregateID() string   { return string(e.ListingID) }
func (e ListingCreated) OccurredAt() time.Time { return e.At }

type ContractorAccepted struct {
	ListingID    ListingID
	ContractorID string
	At           time.Time
}

func (e ContractorAccepted) EventName() string     { return "listing.contractor_accepted" }
func (e ContractorAccepted) AggregateID() string   { return string(e.ListingID) }
func (e ContractorAccepted) OccurredAt() time.Time { return e.At }

type OwnerAccepted struct {
	ListingID ListingID
	Owner     OwnerID
	At        time.Time
}

func (e OwnerAccepted) EventName() string     { return "listing.owner_accepted" }
func (e OwnerAccepted) AggregateID() string   { return string(e.ListingID) }
func (e OwnerAccepted) OccurredAt() time.Time { return e.At }

type ListingReset struct {
	ListingID ListingID
	ActorID   string
	At        time.Time
}

func (e ListingReset) EventName() string     { return "listing.reset" }
func (e ListingReset) AggregateID() string   { return string(e.ListingID) }
func (e ListingReset) OccurredAt() time.Time { return e.At }

type ListingCompleted struct {
	ListingID    ListingID
	ContractorID string
	At           time.Time
}

func (e ListingCompleted) EventName() string     { return "listing.completed" }
func (e ListingCompleted) AggregateID() string   { return string(e.ListingID) }
func (e ListingCompleted) OccurredAt() time.Time { return e.At }

type ListingUpdated struct {
	ListingID ListingID
	At        time.Time
}

func (e ListingUpdated) EventName() string     { return "listing.updated" }
func (e ListingUpdated) AggregateID() string   { return string(e.ListingID) }
func (e ListingUpdated) OccurredAt() time.Time { return e.At }
