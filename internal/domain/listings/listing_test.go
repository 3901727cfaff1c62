package listings

import (
	"errors"
	"testing"
	"time"

	"smajobb/internal/domain/shared/money"
)

func newTestListing(t *testing.T) *Listing {
	t.Helper()
	listing, err := NewListing(CreateParams{
		ID:    "job-1",
		Owner: "owner-1",
		Title: "Snømåking",
		Price: money.Must(50000, "NOK"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return listing
}

func TestHandshakeBothOrders(t *testing.T) {
	now := time.Now()

	// Contractor first, then owner.
	listing := newTestListing(t)
	if err := listing.AcceptByContractor("contractor-1", now); err != nil {
		t.Fatal(err)
	}
	if listing.Status != StatusAcceptedContractor {
		t.Fatalf("status = %q", listing.Status)
	}
	if err := listing.AcceptByOwner(now); err != nil {
		t.Fatal(err)
	}
	if listing.Status != StatusAcceptedBoth {
		t.Fatalf("status = %q", listing.Status)
	}

	// Owner-side pre-acceptance, then contractor.
	listing = newTestListing(t)
	listing.Status = StatusAcceptedOwner
	if err := listing.AcceptByContractor("contractor-1", now); err != nil {
		t.Fatal(err)
	}
	if listing.Status != StatusAcceptedBoth {
		t.Fatalf("status = %q", listing.Status)
	}
}

func TestOwnerCannotAcceptOwnListing(t *testing.T) {
	listing := newTestListing(t)
	if err := listing.AcceptByContractor("owner-1", time.Now()); !errors.Is(err, ErrOwnSelfAccept) {
		t.Fatalf("error = %v, want ErrOwnSelfAccept", err)
	}
}

func TestResetUnpinsContractor(t *testing.T) {
	now := time.Now()
	listing := newTestListing(t)
	if err := listing.AcceptByContractor("contractor-1", now); err != nil {
		t.Fatal(err)
	}
	if err := listing.Reset("owner-1", now); err != nil {
		t.Fatal(err)
	}
	if listing.Status != StatusInitiated || listing.AcceptedContractor != "" {
		t.Fatalf("after reset: status=%q contractor=%q", listing.Status, listing.AcceptedContractor)
	}

	// Reset from INITIATED has nothing to revert.
	if err := listing.Reset("owner-1", now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("error = %v, want ErrInvalidState", err)
	}
}

func TestCompleteIsTerminal(t *testing.T) {
	now := time.Now()
	listing := newTestListing(t)
	if err := listing.Complete(now); err != nil {
		t.Fatal(err)
	}
	if err := listing.Complete(now); !errors.Is(err, ErrCompleted) {
		t.Fatalf("second complete error = %v, want ErrCompleted", err)
	}
	if err := listing.UpdateDetails("Nytt", "", money.Must(1, "NOK"), false, now); !errors.Is(err, ErrCompleted) {
		t.Fatalf("update after complete error = %v, want ErrCompleted", err)
	}
}

func TestEventsRecorded(t *testing.T) {
	now := time.Now()
	listing := newTestListing(t)
	listing.ClearEvents()

	if err := listing.AcceptByContractor("contractor-1", now); err != nil {
		t.Fatal(err)
	}
	events := listing.PendingEvents()
	if len(events) != 1 {
		t.Fatalf("pending events = %d, want 1", len(events))
	}
	if events[0].EventName() != "listing.contractor_accepted" {
		t.Fatalf("event name = %q", events[0].EventName())
	}
}
