package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"smajobb/internal/app/outbox"
	"smajobb/internal/app/policies"
	"smajobb/internal/domain/chat"
	domainescrow "smajobb/internal/domain/escrow"
	"smajobb/internal/domain/listings"
	"smajobb/internal/domain/user"
)

var (
	ErrNotParticipant = errors.New("escrow: user is not a party to this listing")
	ErrNoIntent       = errors.New("escrow: no payment intent on conversation")
)

// Broadcaster fans a stored message out to live channel subscribers.
type Broadcaster interface {
	Broadcast(conversationID string, msg chat.Message)
}

// Service drives the safe-payment state machine on the server side. Every
// action loads both halves of the composite state, runs the pure transition,
// talks to the payment processor, persists both records and appends a
// SYSTEM: notification to the conversation.
type Service struct {
	Listings      listings.Repository
	Conversations chat.ConversationRepository
	Messages      chat.MessageRepository
	Users         user.Repository
	Payments      policies.PaymentsPort
	Outbox        outbox.Outbox
	Encoder       outbox.EventEncoder
	Broadcast     Broadcaster
	// FeePercent is the platform cut added on top of the listing price when
	// the hold is created.
	FeePercent int
	Logger     *slog.Logger
}

// ActionResult returns the refreshed composite state so clients can swap
// their snapshots without a second round trip.
type ActionResult struct {
	RequiresOnboarding bool
	OnboardingURL      string
	Listing            *listings.Listing
	Conversation       *chat.Conversation
}

// IntentResult carries the processor checkout handle to the paying owner.
type IntentResult struct {
	RequiresOnboarding bool
	OnboardingURL      string
	Intent             policies.PaymentIntent
	Conversation       *chat.Conversation
}

// CheckOnboarding answers the standalone onboarding probe RPC.
func (s *Service) CheckOnboarding(ctx context.Context, conversationID, userID string) (bool, string, error) {
	conv, err := s.Conversations.ByID(ctx, conversationID)
	if err != nil {
		return false, "", err
	}
	if !conv.Participant(userID) {
		return false, "", ErrNotParticipant
	}
	return s.Payments.RequiresOnboarding(ctx, userID)
}

// Accept is the contractor taking an INITIATED listing. When the listing
// offers safe payment and the contractor has not finished processor
// onboarding, the transition is deferred and the onboarding URL returned.
func (s *Service) Accept(ctx context.Context, listingID listings.ListingID, userID string) (*ActionResult, error) {
	listing, err := s.Listings.ByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	conv, err := s.ensureConversation(ctx, listing, userID)
	if err != nil {
		return nil, err
	}
	role := s.roleOf(listing, userID)
	if _, _, err := domainescrow.Transition(compositeState(listing, conv), domainescrow.ActionAccept, role); err != nil {
		return nil, err
	}
	if listing.OffersSafePayment {
		required, url, err := s.Payments.RequiresOnboarding(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("escrow: onboarding probe: %w", err)
		}
		if required {
			return &ActionResult{RequiresOnboarding: true, OnboardingURL: url, Listing: listing, Conversation: conv}, nil
		}
	}
	now := time.Now()
	if err := listing.AcceptByContractor(userID, now); err != nil {
		return nil, err
	}
	if err := s.saveListing(ctx, listing); err != nil {
		return nil, err
	}
	s.appendSystem(ctx, conv, userID, s.displayName(ctx, userID)+" accepted the job")
	return &ActionResult{Listing: listing, Conversation: conv}, nil
}

// CreateIntent starts the owner's pay/accept: it asks the processor for a
// hold on the listing price and pins the intent on the conversation. The
// actual charge happens in the client checkout, finalized by ConfirmPayment.
func (s *Service) CreateIntent(ctx context.Context, conversationID, userID string) (*IntentResult, error) {
	listing, conv, err := s.load(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	role := s.roleOf(listing, userID)
	if _, _, err := domainescrow.Transition(compositeState(listing, conv), domainescrow.ActionPay, role); err != nil {
		return nil, err
	}
	required, url, err := s.Payments.RequiresOnboarding(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("escrow: onboarding probe: %w", err)
	}
	if required {
		return &IntentResult{RequiresOnboarding: true, OnboardingURL: url, Conversation: conv}, nil
	}
	charge := listing.Price
	if s.FeePercent > 0 {
		if withFee, err := charge.Add(charge.Percent(s.FeePercent)); err == nil {
			charge = withFee
		}
	}
	intent, err := s.Payments.CreateIntent(ctx, conv.ID, charge)
	if err != nil {
		return nil, fmt.Errorf("escrow: create intent: %w", err)
	}
	amount := intent.Amount.Amount
	conv.PaymentIntentID = intent.ID
	conv.SafePaymentAmount = &amount
	conv.UpdatedAt = time.Now().UTC()
	if err := s.Conversations.Save(ctx, conv); err != nil {
		return nil, err
	}
	return &IntentResult{Intent: intent, Conversation: conv}, nil
}

// ConfirmPayment finalizes the hold after a successful client checkout:
// the listing moves to ACCEPTED_BOTH and the payment status to held.
func (s *Service) ConfirmPayment(ctx context.Context, conversationID, userID string) (*ActionResult, error) {
	listing, conv, err := s.load(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	role := s.roleOf(listing, userID)
	next, _, err := domainescrow.Transition(compositeState(listing, conv), domainescrow.ActionPay, role)
	if err != nil {
		return nil, err
	}
	if conv.PaymentIntentID == "" {
		return nil, ErrNoIntent
	}
	if err := s.Payments.Confirm(ctx, conv.PaymentIntentID); err != nil {
		return nil, fmt.Errorf("escrow: confirm payment: %w", err)
	}
	now := time.Now()
	if err := listing.AcceptByOwner(now); err != nil {
		return nil, err
	}
	conv.SafePaymentStatus = next.Payment
	conv.UpdatedAt = now.UTC()
	if err := s.saveBoth(ctx, listing, conv); err != nil {
		return nil, err
	}
	s.appendSystem(ctx, conv, userID, s.displayName(ctx, userID)+" accepted and funded the safe payment")
	return &ActionResult{Listing: listing, Conversation: conv}, nil
}

// Decline is the owner backing out of the handshake. A held payment is
// refunded first; the listing reverts to INITIATED.
func (s *Service) Decline(ctx context.Context, conversationID, userID string) (*ActionResult, error) {
	listing, conv, err := s.load(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	role := s.roleOf(listing, userID)
	next, effects, err := domainescrow.Transition(compositeState(listing, conv), domainescrow.ActionDecline, role)
	if err != nil {
		return nil, err
	}
	if hasEffect(effects, domainescrow.EffectRefund) && conv.PaymentIntentID != "" {
		if err := s.Payments.Cancel(ctx, conv.PaymentIntentID); err != nil {
			return nil, fmt.Errorf("escrow: refund hold: %w", err)
		}
	}
	now := time.Now()
	if err := listing.Reset(userID, now); err != nil {
		return nil, err
	}
	conv.SafePaymentStatus = next.Payment
	conv.PaymentIntentID = ""
	conv.UpdatedAt = now.UTC()
	if err := s.saveBoth(ctx, listing, conv); err != nil {
		return nil, err
	}
	s.appendSystem(ctx, conv, userID, s.displayName(ctx, userID)+" declined the agreement")
	return &ActionResult{Listing: listing, Conversation: conv}, nil
}

// CancelPayment refunds a held payment without touching the listing status;
// the backend owns any follow-up listing change.
func (s *Service) CancelPayment(ctx context.Context, conversationID, userID string) (*ActionResult, error) {
	listing, conv, err := s.load(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	role := s.roleOf(listing, userID)
	next, _, err := domainescrow.Transition(compositeState(listing, conv), domainescrow.ActionCancel, role)
	if err != nil {
		return nil, err
	}
	if conv.PaymentIntentID == "" {
		return nil, ErrNoIntent
	}
	if err := s.Payments.Cancel(ctx, conv.PaymentIntentID); err != nil {
		return nil, fmt.Errorf("escrow: cancel hold: %w", err)
	}
	conv.SafePaymentStatus = next.Payment
	conv.UpdatedAt = time.Now().UTC()
	if err := s.Conversations.Save(ctx, conv); err != nil {
		return nil, err
	}
	s.appendSystem(ctx, conv, userID, s.displayName(ctx, userID)+" canceled the safe payment")
	return &ActionResult{Listing: listing, Conversation: conv}, nil
}

// Complete finishes the job: held funds are released to the contractor and
// both parties become eligible for reviews.
func (s *Service) Complete(ctx context.Context, listingID listings.ListingID, userID string) (*ActionResult, error) {
	listing, err := s.Listings.ByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	conv, err := s.conversationForContractor(ctx, listing)
	if err != nil {
		return nil, err
	}
	role := s.roleOf(listing, userID)
	next, effects, err := domainescrow.Transition(compositeState(listing, conv), domainescrow.ActionComplete, role)
	if err != nil {
		return nil, err
	}
	if hasEffect(effects, domainescrow.EffectRelease) && conv.PaymentIntentID != "" {
		if err := s.Payments.Release(ctx, conv.PaymentIntentID); err != nil {
			return nil, fmt.Errorf("escrow: release funds: %w", err)
		}
	}
	now := time.Now()
	if err := listing.Complete(now); err != nil {
		return nil, err
	}
	conv.SafePaymentStatus = next.Payment
	conv.UpdatedAt = now.UTC()
	if err := s.saveBoth(ctx, listing, conv); err != nil {
		return nil, err
	}
	s.appendSystem(ctx, conv, userID, s.displayName(ctx, userID)+" marked the job as completed")
	return &ActionResult{Listing: listing, Conversation: conv}, nil
}

// MarkDone completes a listing that never used safe payment. A conversation
// is optional here; without one no notification is appended.
func (s *Service) MarkDone(ctx context.Context, listingID listings.ListingID, userID string) (*ActionResult, error) {
	listing, err := s.Listings.ByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	role := s.roleOf(listing, userID)
	state := domainescrow.State{Listing: listing.Status}
	var conv *chat.Conversation
	if listing.AcceptedContractor != "" {
		if found, err := s.Conversations.ByListingAndBuyer(ctx, string(listing.ID), listing.AcceptedContractor); err == nil {
			conv = found
			state.Payment = conv.SafePaymentStatus
		}
	}
	if _, _, err := domainescrow.Transition(state, domainescrow.ActionMarkDone, role); err != nil {
		return nil, err
	}
	now := time.Now()
	if err := listing.Complete(now); err != nil {
		return nil, err
	}
	if err := s.saveListing(ctx, listing); err != nil {
		return nil, err
	}
	if conv != nil {
		s.appendSystem(ctx, conv, userID, s.displayName(ctx, userID)+" marked the job as done")
	}
	return &ActionResult{Listing: listing, Conversation: conv}, nil
}

func (s *Service) load(ctx context.Context, conversationID, userID string) (*listings.Listing, *chat.Conversation, error) {
	conv, err := s.Conversations.ByID(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	if !conv.Participant(userID) {
		return nil, nil, ErrNotParticipant
	}
	listing, err := s.Listings.ByID(ctx, listings.ListingID(conv.ListingID))
	if err != nil {
		return nil, nil, err
	}
	return listing, conv, nil
}

func (s *Service) ensureConversation(ctx context.Context, listing *listings.Listing, buyerID string) (*chat.Conversation, error) {
	conv, err := s.Conversations.ByListingAndBuyer(ctx, string(listing.ID), buyerID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, chat.ErrConversationNotFound) {
		return nil, err
	}
	now := time.Now().UTC()
	conv = &chat.Conversation{
		ID:        uuid.NewString(),
		ListingID: string(listing.ID),
		BuyerID:   buyerID,
		SellerID:  string(listing.Owner),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Conversations.Save(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Service) conversationForContractor(ctx context.Context, listing *listings.Listing) (*chat.Conversation, error) {
	if listing.AcceptedContractor == "" {
		return nil, listings.ErrContractorNeeded
	}
	return s.Conversations.ByListingAndBuyer(ctx, string(listing.ID), listing.AcceptedContractor)
}

func (s *Service) roleOf(listing *listings.Listing, userID string) domainescrow.Role {
	if userID == string(listing.Owner) {
		return domainescrow.RoleOwner
	}
	return domainescrow.RoleContractor
}

func compositeState(listing *listings.Listing, conv *chat.Conversation) domainescrow.State {
	return domainescrow.State{Listing: listing.Status, Payment: conv.SafePaymentStatus}
}

func hasEffect(effects []domainescrow.Effect, target domainescrow.Effect) bool {
	for _, e := range effects {
		if e == target {
			return true
		}
	}
	return false
}

func (s *Service) saveListing(ctx context.Context, listing *listings.Listing) error {
	if err := s.Listings.Save(ctx, listing); err != nil {
		return err
	}
	if err := outbox.RecordDomainEvents(ctx, s.Outbox, s.Encoder, listing.PendingEvents()); err != nil {
		s.logError("outbox record failed", err)
	}
	listing.ClearEvents()
	return nil
}

func (s *Service) saveBoth(ctx context.Context, listing *listings.Listing, conv *chat.Conversation) error {
	if err := s.saveListing(ctx, listing); err != nil {
		return err
	}
	return s.Conversations.Save(ctx, conv)
}

// appendSystem stores and fans out a SYSTEM: notification. The message only
// notifies; clients re-fetch the listing and conversation on receipt.
func (s *Service) appendSystem(ctx context.Context, conv *chat.Conversation, actorID, text string) {
	msg, err := s.Messages.Append(ctx, conv.ID, actorID, chat.SystemBody(text), time.Now())
	if err != nil {
		s.logError("system message append failed", err)
		return
	}
	if s.Broadcast != nil {
		s.Broadcast.Broadcast(conv.ID, msg)
	}
}

func (s *Service) displayName(ctx context.Context, userID string) string {
	if s.Users == nil {
		return userID
	}
	u, err := s.Users.ByID(ctx, user.ID(userID))
	if err != nil || u == nil {
		return userID
	}
	return u.Name
}

func (s *Service) logError(msg string, err error) {
	if s.Logger != nil {
		s.Logger.Error(msg, "error", err)
	}
}
