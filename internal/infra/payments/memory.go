package payments

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"smajobb/internal/app/policies"
	"smajobb/internal/domain/shared/money"
)

var (
	ErrIntentNotFound = errors.New("payments: intent not found")
	ErrIntentState    = errors.New("payments: intent not in expected state")
)

const (
	intentCreated  = "created"
	intentHeld     = "held"
	intentCanceled = "canceled"
	intentReleased = "released"
)

type intentState struct {
	amount money.Money
	status string
}

// MemoryProcessor simulates the payment processor for dev and tests: holds
// are tracked in memory and onboarding is a toggle per user.
type MemoryProcessor struct {
	mu             sync.Mutex
	onboarded      map[string]bool
	intents        map[string]*intentState
	OnboardingBase string
	PublishableKey string
}

func NewMemoryProcessor() *MemoryProcessor {
	return &MemoryProcessor{
		onboarded:      make(map[string]bool),
		intents:        make(map[string]*intentState),
		OnboardingBase: "https://pay.example.test/onboarding",
		PublishableKey: "pk_test_memory",
	}
}

// CompleteOnboarding marks the user as onboarded, standing in for the
// out-of-band browser flow.
func (p *MemoryProcessor) CompleteOnboarding(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onboarded[userID] = true
}

func (p *MemoryProcessor) RequiresOnboarding(ctx context.Context, userID string) (bool, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onboarded[userID] {
		return false, "", nil
	}
	return true, p.OnboardingBase + "?user=" + userID, nil
}

func (p *MemoryProcessor) CreateIntent(ctx context.Context, conversationID string, amount money.Money) (policies.PaymentIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := "pi_" + uuid.NewString()
	p.intents[id] = &intentState{amount: amount, status: intentCreated}
	return policies.PaymentIntent{
		ID:             id,
		ClientSecret:   id + "_secret_" + uuid.NewString(),
		PublishableKey: p.PublishableKey,
		Amount:         amount,
	}, nil
}

func (p *MemoryProcessor) Confirm(ctx context.Context, intentID string) error {
	return p.advance(intentID, intentCreated, intentHeld)
}

func (p *MemoryProcessor) Cancel(ctx context.Context, intentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[intentID]
	if !ok {
		return ErrIntentNotFound
	}
	if intent.status != intentCreated && intent.status != intentHeld {
		return ErrIntentState
	}
	intent.status = intentCanceled
	return nil
}

func (p *MemoryProcessor) Release(ctx context.Context, intentID string) error {
	return p.advance(intentID, intentHeld, intentReleased)
}

// IntentStatus exposes intent state for tests.
func (p *MemoryProcessor) IntentStatus(intentID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[intentID]
	if !ok {
		return "", false
	}
	return intent.status, true
}

func (p *MemoryProcessor) advance(intentID, from, to string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[intentID]
	if !ok {
		return ErrIntentNotFound
	}
	if intent.status != from {
		return ErrIntentState
	}
	intent.status = to
	return nil
}

var _ policies.PaymentsPort = (*MemoryProcessor)(nil)
