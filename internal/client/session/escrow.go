package session

import (
	"context"
	"fmt"

	"smajobb/internal/app/dto"
	"smajobb/internal/client/api"
)

// ActionKind identifies one user-triggered escrow or job action. At most
// one call per kind is in flight at a time.
type ActionKind string

const (
	ActionAccept    ActionKind = "accept"
	ActionPay       ActionKind = "pay"
	ActionDecline   ActionKind = "decline"
	ActionCancel    ActionKind = "cancel"
	ActionComplete  ActionKind = "complete"
	ActionMarkDone  ActionKind = "mark_done"
	ActionUpdateJob ActionKind = "update_job"
)

// ErrorKind splits the user-facing error slot so the view can route the
// message to the right surface.
type ErrorKind int

const (
	ErrorGeneral ErrorKind = iota
	ErrorJobUpdate
	ErrorPaymentConfirm
)

type ActionError struct {
	Kind ErrorKind
	Err  error
}

func (e *ActionError) Error() string { return e.Err.Error() }
func (e *ActionError) Unwrap() error { return e.Err }

var ErrActionInFlight = fmt.Errorf("session: action already in flight")

// onboardingContinuation remembers the action deferred behind payment
// onboarding. It is retried exactly once.
type onboardingContinuation struct {
	kind    ActionKind
	run     func(ctx context.Context) error
	retried bool
}

// Accept runs the accept handshake. When the backend answers that the actor
// must finish payment onboarding first, the action parks as a continuation
// and OnboardingURL tells the caller where to send the user.
func (s *Session) Accept(ctx context.Context) (string, error) {
	return s.runDeferred(ctx, ActionAccept, ErrorGeneral, func(ctx context.Context) (*dto.EscrowAction, error) {
		return s.API.AcceptListing(ctx, s.listingID())
	})
}

// Pay creates the payment intent and confirms it. Intent creation can also
// park behind onboarding; the continuation then replays the whole flow,
// since a deferred response means no intent exists yet.
func (s *Session) Pay(ctx context.Context) (string, error) {
	if !s.begin(ActionPay) {
		return "", ErrActionInFlight
	}
	defer s.end(ActionPay)

	intent, err := s.API.CreatePaymentIntent(ctx, s.ConversationID)
	if err != nil {
		s.setError(ErrorPaymentConfirm, err)
		return "", err
	}
	if intent.ClientSecret == "" {
		// Intent responses without a secret carry the onboarding deferral.
		status, oerr := s.API.OnboardingStatus(ctx, s.ConversationID)
		if oerr == nil && status.RequiresOnboarding {
			s.park(ActionPay, func(ctx context.Context) error {
				if _, rerr := s.API.CreatePaymentIntent(ctx, s.ConversationID); rerr != nil {
					s.setError(ErrorPaymentConfirm, rerr)
					return rerr
				}
				return s.confirmPayment(ctx)
			})
			return status.OnboardingURL, nil
		}
	}
	if err := s.confirmPayment(ctx); err != nil {
		return "", err
	}
	return "", nil
}

func (s *Session) confirmPayment(ctx context.Context) error {
	result, err := s.API.ConfirmPayment(ctx, s.ConversationID)
	if err != nil {
		s.setError(ErrorPaymentConfirm, err)
		return err
	}
	s.applyResult(ctx, result)
	return nil
}

func (s *Session) Decline(ctx context.Context) error {
	_, err := s.runAction(ctx, ActionDecline, ErrorGeneral, func(ctx context.Context) (*dto.EscrowAction, error) {
		return s.API.Decline(ctx, s.ConversationID)
	})
	return err
}

func (s *Session) CancelPayment(ctx context.Context) error {
	_, err := s.runAction(ctx, ActionCancel, ErrorGeneral, func(ctx context.Context) (*dto.EscrowAction, error) {
		return s.API.CancelPayment(ctx, s.ConversationID)
	})
	return err
}

func (s *Session) Complete(ctx context.Context) error {
	_, err := s.runAction(ctx, ActionComplete, ErrorGeneral, func(ctx context.Context) (*dto.EscrowAction, error) {
		return s.API.CompleteListing(ctx, s.listingID())
	})
	return err
}

func (s *Session) MarkDone(ctx context.Context) error {
	_, err := s.runAction(ctx, ActionMarkDone, ErrorGeneral, func(ctx context.Context) (*dto.EscrowAction, error) {
		return s.API.MarkListingDone(ctx, s.listingID())
	})
	return err
}

// UpdateJob edits the listing. Failures land in the job-update error slot,
// keeping the cached snapshot untouched.
func (s *Session) UpdateJob(ctx context.Context, update api.ListingUpdate) error {
	if !s.begin(ActionUpdateJob) {
		return ErrActionInFlight
	}
	defer s.end(ActionUpdateJob)

	listing, err := s.API.UpdateListing(ctx, s.listingID(), update)
	if err != nil {
		s.setError(ErrorJobUpdate, err)
		return err
	}
	s.mu.Lock()
	s.listing = listing
	s.mu.Unlock()
	return nil
}

// ResumeAfterOnboarding replays the parked action once the user reports
// back from the processor's onboarding flow. A second resume is a no-op.
func (s *Session) ResumeAfterOnboarding(ctx context.Context) error {
	s.mu.Lock()
	cont := s.pending
	if cont == nil || cont.retried {
		s.pending = nil
		s.mu.Unlock()
		return nil
	}
	cont.retried = true
	s.pending = nil
	s.mu.Unlock()

	if !s.begin(cont.kind) {
		return ErrActionInFlight
	}
	defer s.end(cont.kind)
	return cont.run(ctx)
}

// runDeferred handles actions whose response may ask for onboarding first.
func (s *Session) runDeferred(ctx context.Context, kind ActionKind, errKind ErrorKind, call func(ctx context.Context) (*dto.EscrowAction, error)) (string, error) {
	if !s.begin(kind) {
		return "", ErrActionInFlight
	}
	defer s.end(kind)

	result, err := call(ctx)
	if err != nil {
		s.setError(errKind, err)
		return "", err
	}
	if result.RequiresOnboarding {
		s.park(kind, func(ctx context.Context) error {
			res, rerr := call(ctx)
			if rerr != nil {
				s.setError(errKind, rerr)
				return rerr
			}
			s.applyResult(ctx, res)
			return nil
		})
		return result.OnboardingURL, nil
	}
	s.applyResult(ctx, result)
	return "", nil
}

func (s *Session) runAction(ctx context.Context, kind ActionKind, errKind ErrorKind, call func(ctx context.Context) (*dto.EscrowAction, error)) (*dto.EscrowAction, error) {
	if !s.begin(kind) {
		return nil, ErrActionInFlight
	}
	defer s.end(kind)

	result, err := call(ctx)
	if err != nil {
		s.setError(errKind, err)
		return nil, err
	}
	s.applyResult(ctx, result)
	return result, nil
}

// applyResult swaps in the returned snapshots and re-fetches whichever half
// the response omitted, so the composite state is never stale.
func (s *Session) applyResult(ctx context.Context, result *dto.EscrowAction) {
	s.mu.Lock()
	if result.Listing != nil {
		s.listing = result.Listing
	}
	if result.Conversation != nil {
		s.conversation = result.Conversation
	}
	missing := result.Listing == nil || result.Conversation == nil
	s.mu.Unlock()
	if missing {
		s.RefreshSnapshots(ctx)
	}
}

func (s *Session) begin(kind ActionKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[kind] {
		return false
	}
	s.inFlight[kind] = true
	return true
}

func (s *Session) end(kind ActionKind) {
	s.mu.Lock()
	delete(s.inFlight, kind)
	s.mu.Unlock()
}

func (s *Session) park(kind ActionKind, run func(ctx context.Context) error) {
	s.mu.Lock()
	s.pending = &onboardingContinuation{kind: kind, run: run}
	s.mu.Unlock()
}

func (s *Session) setError(kind ErrorKind, err error) {
	s.mu.Lock()
	s.lastError = &ActionError{Kind: kind, Err: err}
	s.mu.Unlock()
}

func (s *Session) listingID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversation != nil && s.conversation.ListingID != "" {
		return s.conversation.ListingID
	}
	if s.listing != nil {
		return s.listing.ID
	}
	return ""
}
