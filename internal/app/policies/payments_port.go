package policies

import (
	"context"

	"smajobb/internal/domain/shared/money"
)

// PaymentIntent is the processor-side hold handle handed to the paying
// client for checkout.
type PaymentIntent struct {
	ID             string
	ClientSecret   string
	PublishableKey string
	Amount         money.Money
}

// PaymentsPort abstracts the third-party payment processor. Only the
// capabilities the escrow flow needs are modeled; SDK details stay behind
// the adapter.
type PaymentsPort interface {
	// RequiresOnboarding reports whether the user must complete processor
	// identity onboarding before participating in a safe payment, and the
	// URL of the out-of-band flow when so.
	RequiresOnboarding(ctx context.Context, userID string) (bool, string, error)
	CreateIntent(ctx context.Context, conversationID string, amount money.Money) (PaymentIntent, error)
	Confirm(ctx context.Context, intentID string) error
	Cancel(ctx context.Context, intentID string) error
	Release(ctx context.Context, intentID string) error
}
