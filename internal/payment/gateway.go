// Package payment integrates the external payment provider.  The core
// never renders provider UI: it opens a handoff (an embedded client
// secret or a redirect URL, chosen by configuration) and later consumes
// asynchronous outcome notifications on the webhook endpoint.
package payment

import "context"

// Mode selects how the buyer completes payment.
type Mode string

const (
	// ModeEmbedded returns a client secret the purchase page feeds into
	// the provider's embedded widget.
	ModeEmbedded Mode = "embedded"
	// ModeRedirect returns a hosted payment page URL.
	ModeRedirect Mode = "redirect"
)

// Handoff is the result of opening a payment session with the provider.
// ProviderRef keys all later webhook notifications back to our checkout
// session.
type Handoff struct {
	ProviderRef  string `json:"provider_ref"`
	Mode         Mode   `json:"mode"`
	ClientSecret string `json:"client_secret,omitempty"`
	RedirectURL  string `json:"redirect_url,omitempty"`
}

// Gateway opens payment sessions with the external provider.
type Gateway interface {
	CreateHandoff(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (Handoff, error)
}

// Outcome values carried by provider notifications.
const (
	OutcomeSucceeded = "payment.succeeded"
	OutcomeFailed    = "payment.failed"
	OutcomeRefunded  = "payment.refunded"
)

// Notification is one asynchronous payment outcome delivered on the
// webhook endpoint.  EventID is stable per provider event and is the
// dedup key for duplicate deliveries.
type Notification struct {
	EventID     string `json:"id"`
	ProviderRef string `json:"provider_ref"`
	Outcome     string `json:"type"`
}
