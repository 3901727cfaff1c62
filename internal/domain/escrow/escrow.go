package escrow

import (
	"errors"

	"smajobb/internal/domain/listings"
)

var (
	ErrWrongRole     = errors.New("escrow: action not allowed for role")
	ErrInvalidState  = errors.New("escrow: invalid state for action")
	ErrUnknownAction = errors.New("escrow: unknown action")
)

// PaymentStatus tracks the safe-payment hold on a conversation. Empty means
// no safe payment is active.
type PaymentStatus string

const (
	PaymentNone     PaymentStatus = ""
	PaymentHeld     PaymentStatus = "held"
	PaymentReleased PaymentStatus = "released"
	PaymentCanceled PaymentStatus = "canceled"
)

// Role identifies which side of the conversation performs an action.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleContractor Role = "contractor"
)

// Action is a user-initiated escrow transition.
type Action string

const (
	// ActionAccept is the contractor taking the job.
	ActionAccept Action = "accept"
	// ActionPay is the owner accepting the contractor and funding the hold.
	ActionPay Action = "pay"
	// ActionDecline is the owner rejecting the handshake back to INITIATED.
	ActionDecline Action = "decline"
	// ActionCancel refunds a held payment without completing the job.
	ActionCancel Action = "cancel"
	// ActionComplete finishes the job and releases held funds.
	ActionComplete Action = "complete"
	// ActionMarkDone completes a job that never used safe payment.
	ActionMarkDone Action = "mark_done"
)

// Effect is a side effect the caller must carry out after a legal transition.
type Effect string

const (
	EffectCheckout      Effect = "checkout"       // owner completes processor checkout, then confirm
	EffectRefund        Effect = "refund"         // cancel the processor hold
	EffectRelease       Effect = "release"        // release held funds to the contractor
	EffectSystemMessage Effect = "system_message" // append a SYSTEM: notification to the conversation
	EffectReviewsOpen   Effect = "reviews_open"   // both parties become eligible to review
)

// State is the composite escrow state. The canonical truth spans the listing
// status and the conversation payment status; both travel together here.
type State struct {
	Listing listings.Status
	Payment PaymentStatus
}

// Transition applies action by role to state, returning the new state and the
// side effects the caller must execute. The state machine is pure: callers
// persist the outcome and run the effects against the payment processor.
func Transition(state State, action Action, role Role) (State, []Effect, error) {
	switch action {
	case ActionAccept:
		if role != RoleContractor {
			return state, nil, ErrWrongRole
		}
		if state.Listing != listings.StatusInitiated {
			return state, nil, ErrInvalidState
		}
		state.Listing = listings.StatusAcceptedContractor
		return state, []Effect{EffectSystemMessage}, nil

	case ActionPay:
		if role != RoleOwner {
			return state, nil, ErrWrongRole
		}
		if state.Listing != listings.StatusAcceptedContractor {
			return state, nil, ErrInvalidState
		}
		state.Listing = listings.StatusAcceptedBoth
		state.Payment = PaymentHeld
		return state, []Effect{EffectCheckout, EffectSystemMessage}, nil

	case ActionDecline:
		if role != RoleOwner {
			return state, nil, ErrWrongRole
		}
		if state.Listing != listings.StatusAcceptedContractor && state.Listing != listings.StatusAcceptedBoth {
			return state, nil, ErrInvalidState
		}
		effects := []Effect{EffectSystemMessage}
		if state.Payment == PaymentHeld {
			effects = append([]Effect{EffectRefund}, effects...)
		}
		state.Listing = listings.StatusInitiated
		state.Payment = PaymentNone
		return state, effects, nil

	case ActionCancel:
		if role != RoleOwner {
			return state, nil, ErrWrongRole
		}
		if state.Listing != listings.StatusAcceptedBoth || state.Payment != PaymentHeld {
			return state, nil, ErrInvalidState
		}
		// Listing status is left to the backend; only the hold is refunded.
		state.Payment = PaymentCanceled
		return state, []Effect{EffectRefund, EffectSystemMessage}, nil

	case ActionComplete:
		if role != RoleOwner {
			return state, nil, ErrWrongRole
		}
		if state.Listing != listings.StatusAcceptedBoth {
			return state, nil, ErrInvalidState
		}
		state.Listing = listings.StatusCompleted
		if state.Payment == PaymentHeld {
			state.Payment = PaymentReleased
			return state, []Effect{EffectRelease, EffectSystemMessage, EffectReviewsOpen}, nil
		}
		return state, []Effect{EffectSystemMessage, EffectReviewsOpen}, nil

	case ActionMarkDone:
		if role != RoleOwner {
			return state, nil, ErrWrongRole
		}
		if state.Listing == listings.StatusCompleted {
			return state, nil, ErrInvalidState
		}
		if state.Payment == PaymentHeld {
			// A funded job must go through complete so the hold is released.
			return state, nil, ErrInvalidState
		}
		state.Listing = listings.StatusCompleted
		return state, []Effect{EffectSystemMessage, EffectReviewsOpen}, nil
	}
	return state, nil, ErrUnknownAction
}

// Allowed reports whether role may perform action in state without mutating
// anything. Handy for gating buttons before any network call.
func Allowed(state State, action Action, role Role) bool {
	_, _, err := Transition(state, action, role)
	return err == nil
}
