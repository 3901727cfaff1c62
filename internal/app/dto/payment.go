package dto

// OnboardingStatus answers the payment-onboarding probe.
type OnboardingStatus struct {
	RequiresOnboarding bool   `json:"requires_onboarding"`
	OnboardingURL      string `json:"onboarding_url,omitempty"`
}

// PaymentIntent hands the processor checkout handle to the paying client.
type PaymentIntent struct {
	ClientSecret   string       `json:"client_secret"`
	PublishableKey string       `json:"publishable_key"`
	Conversation   Conversation `json:"conversation"`
}

// EscrowAction returns the refreshed composite state after a transition.
type EscrowAction struct {
	RequiresOnboarding bool          `json:"requires_onboarding,omitempty"`
	OnboardingURL      string        `json:"onboarding_url,omitempty"`
	Listing            *Listing      `json:"listing,omitempty"`
	Conversation       *Conversation `json:"conversation,omitempty"`
}
