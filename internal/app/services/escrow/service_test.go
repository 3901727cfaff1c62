package escrow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"smajobb/internal/domain/chat"
	domainescrow "smajobb/internal/domain/escrow"
	"smajobb/internal/domain/listings"
	"smajobb/internal/domain/shared/money"
	"smajobb/internal/domain/user"
	"smajobb/internal/infra/payments"
	"smajobb/internal/infra/storage/memory"
)

const (
	ownerID      = "owner-1"
	contractorID = "contractor-1"
)

type fixture struct {
	svc           *Service
	listings      *memory.ListingRepository
	conversations *memory.ConversationRepository
	processor     *payments.MemoryProcessor
	listingID     listings.ListingID
}

func newFixture(t *testing.T, offersSafePayment bool) *fixture {
	t.Helper()
	listingRepo := memory.NewListingRepository()
	conversationRepo := memory.NewConversationRepository()
	userRepo := memory.NewUserRepository()
	processor := payments.NewMemoryProcessor()

	seedUser(t, userRepo, ownerID, "Ola Eier")
	seedUser(t, userRepo, contractorID, "Kari Utfører")

	listing, err := listings.NewListing(listings.CreateParams{
		ID:                "job-1",
		Owner:             ownerID,
		Title:             "Male gjerdet",
		Price:             money.Must(150000, "NOK"),
		OffersSafePayment: offersSafePayment,
	})
	if err != nil {
		t.Fatal(err)
	}
	listing.ClearEvents()
	if err := listingRepo.Save(context.Background(), listing); err != nil {
		t.Fatal(err)
	}

	return &fixture{
		svc: &Service{
			Listings:      listingRepo,
			Conversations: conversationRepo,
			Messages:      conversationRepo,
			Users:         userRepo,
			Payments:      processor,
		},
		listings:      listingRepo,
		conversations: conversationRepo,
		processor:     processor,
		listingID:     listing.ID,
	}
}

func seedUser(t *testing.T, repo *memory.UserRepository, id, name string) {
	t.Helper()
	u, err := user.NewUser(user.CreateParams{
		ID:           user.ID(id),
		Email:        id + "@example.no",
		Name:         name,
		PasswordHash: "x",
		CreatedAt:    time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(context.Background(), u); err != nil {
		t.Fatal(err)
	}
}

// acceptAndFund walks accept → intent → confirm and returns the conversation.
func (f *fixture) acceptAndFund(t *testing.T) *chat.Conversation {
	t.Helper()
	ctx := context.Background()
	f.processor.CompleteOnboarding(contractorID)
	f.processor.CompleteOnboarding(ownerID)

	result, err := f.svc.Accept(ctx, f.listingID, contractorID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.RequiresOnboarding {
		t.Fatal("onboarded contractor should not be deferred")
	}
	conv := result.Conversation

	intent, err := f.svc.CreateIntent(ctx, conv.ID, ownerID)
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.Intent.ClientSecret == "" {
		t.Fatal("intent should carry a client secret")
	}
	if _, err := f.svc.ConfirmPayment(ctx, conv.ID, ownerID); err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	return conv
}

func TestHappyPathEscrow(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	conv := f.acceptAndFund(t)

	stored, err := f.conversations.ByID(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.SafePaymentStatus != domainescrow.PaymentHeld {
		t.Fatalf("payment status = %q, want held", stored.SafePaymentStatus)
	}
	if status, _ := f.processor.IntentStatus(stored.PaymentIntentID); status != "held" {
		t.Fatalf("processor intent status = %q, want held", status)
	}
	listing, _ := f.listings.ByID(ctx, f.listingID)
	if listing.Status != listings.StatusAcceptedBoth {
		t.Fatalf("listing status = %q, want ACCEPTED_BOTH", listing.Status)
	}

	intentID := stored.PaymentIntentID
	if _, err := f.svc.Complete(ctx, f.listingID, ownerID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	listing, _ = f.listings.ByID(ctx, f.listingID)
	if listing.Status != listings.StatusCompleted {
		t.Fatalf("listing status = %q, want COMPLETED", listing.Status)
	}
	stored, _ = f.conversations.ByID(ctx, conv.ID)
	if stored.SafePaymentStatus != domainescrow.PaymentReleased {
		t.Fatalf("payment status = %q, want released", stored.SafePaymentStatus)
	}
	if status, _ := f.processor.IntentStatus(intentID); status != "released" {
		t.Fatalf("processor intent status = %q, want released", status)
	}
}

func TestDeclineRefundsAndNamesDecliner(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	conv := f.acceptAndFund(t)
	intentID := mustConv(t, f, conv.ID).PaymentIntentID
	before := len(systemMessages(t, f, conv.ID))

	if _, err := f.svc.Decline(ctx, conv.ID, ownerID); err != nil {
		t.Fatalf("decline: %v", err)
	}

	listing, _ := f.listings.ByID(ctx, f.listingID)
	if listing.Status != listings.StatusInitiated {
		t.Fatalf("listing status = %q, want INITIATED after decline", listing.Status)
	}
	if listing.AcceptedContractor != "" {
		t.Error("decline must unpin the contractor")
	}
	stored := mustConv(t, f, conv.ID)
	if stored.SafePaymentStatus != domainescrow.PaymentNone {
		t.Fatalf("payment status = %q, want cleared", stored.SafePaymentStatus)
	}
	if status, _ := f.processor.IntentStatus(intentID); status != "canceled" {
		t.Fatalf("processor intent status = %q, want canceled", status)
	}

	// Exactly one new system message, and it names the declining owner.
	system := systemMessages(t, f, conv.ID)
	added := system[before:]
	if len(added) != 1 {
		t.Fatalf("system messages added by decline = %d, want 1", len(added))
	}
	if !strings.Contains(added[0].DisplayBody(), "Ola Eier") {
		t.Errorf("decline notification %q does not name the decliner", added[0].DisplayBody())
	}
	if !strings.Contains(added[0].DisplayBody(), "declined") {
		t.Errorf("decline notification %q lacks the verb", added[0].DisplayBody())
	}
}

func TestContractorCannotDecline(t *testing.T) {
	f := newFixture(t, true)
	conv := f.acceptAndFund(t)

	_, err := f.svc.Decline(context.Background(), conv.ID, contractorID)
	if !errors.Is(err, domainescrow.ErrWrongRole) {
		t.Fatalf("decline by contractor error = %v, want ErrWrongRole", err)
	}
}

func TestAcceptDefersUntilOnboarded(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	result, err := f.svc.Accept(ctx, f.listingID, contractorID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !result.RequiresOnboarding || result.OnboardingURL == "" {
		t.Fatal("un-onboarded contractor must be deferred with a url")
	}
	listing, _ := f.listings.ByID(ctx, f.listingID)
	if listing.Status != listings.StatusInitiated {
		t.Fatalf("deferred accept must not change the listing, got %q", listing.Status)
	}

	f.processor.CompleteOnboarding(contractorID)
	result, err = f.svc.Accept(ctx, f.listingID, contractorID)
	if err != nil {
		t.Fatalf("accept after onboarding: %v", err)
	}
	if result.RequiresOnboarding {
		t.Fatal("accept should proceed after onboarding")
	}
	listing, _ = f.listings.ByID(ctx, f.listingID)
	if listing.Status != listings.StatusAcceptedContractor {
		t.Fatalf("listing status = %q, want ACCEPTED_CONTRACTOR", listing.Status)
	}
}

func TestMarkDoneRefusesFundedJob(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.acceptAndFund(t)

	_, err := f.svc.MarkDone(ctx, f.listingID, ownerID)
	if !errors.Is(err, domainescrow.ErrInvalidState) {
		t.Fatalf("mark done on funded job error = %v, want ErrInvalidState", err)
	}
}

func TestMarkDoneWithoutSafePayment(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if _, err := f.svc.Accept(ctx, f.listingID, contractorID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.svc.MarkDone(ctx, f.listingID, ownerID); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	listing, _ := f.listings.ByID(ctx, f.listingID)
	if listing.Status != listings.StatusCompleted {
		t.Fatalf("listing status = %q, want COMPLETED", listing.Status)
	}
}

func TestConfirmWithoutIntent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.processor.CompleteOnboarding(contractorID)

	result, err := f.svc.Accept(ctx, f.listingID, contractorID)
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.ConfirmPayment(ctx, result.Conversation.ID, ownerID)
	if !errors.Is(err, ErrNoIntent) {
		t.Fatalf("confirm without intent error = %v, want ErrNoIntent", err)
	}
}

func mustConv(t *testing.T, f *fixture, id string) *chat.Conversation {
	t.Helper()
	conv, err := f.conversations.ByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return conv
}

func systemMessages(t *testing.T, f *fixture, conversationID string) []chat.Message {
	t.Helper()
	msgs, err := f.conversations.List(context.Background(), conversationID)
	if err != nil {
		t.Fatal(err)
	}
	var system []chat.Message
	for _, m := range msgs {
		if m.IsSystem() {
			system = append(system, m)
		}
	}
	return system
}
