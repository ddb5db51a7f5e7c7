package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Config holds the provider connection settings, loaded from the
// environment by internal/config.
type Config struct {
	BaseURL   string // provider API base URL
	SecretKey string // bearer secret for API calls
	Mode      Mode   // embedded or redirect handoffs
}

// HTTPGateway talks to the provider's payment-session API over plain
// HTTP.  Errors are logged and returned so callers decide how to react.
type HTTPGateway struct {
	cfg    Config
	client *http.Client
}

// NewHTTPGateway builds a gateway from the given config.
func NewHTTPGateway(cfg Config) *HTTPGateway {
	return &HTTPGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type createSessionRequest struct {
	AmountCents int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
	Mode        string            `json:"mode"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type createSessionResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url"`
}

// CreateHandoff opens a payment session for the given amount and returns
// the provider reference plus the client-facing handoff material.
func (g *HTTPGateway) CreateHandoff(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (Handoff, error) {
	body, err := json.Marshal(createSessionRequest{
		AmountCents: amountCents,
		Currency:    currency,
		Mode:        string(g.cfg.Mode),
		Metadata:    metadata,
	})
	if err != nil {
		return Handoff{}, fmt.Errorf("marshal payment session: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/payment_sessions", bytes.NewReader(body))
	if err != nil {
		return Handoff{}, fmt.Errorf("build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)

	resp, err := g.client.Do(req)
	if err != nil {
		log.Printf("payment: create session failed: %v", err)
		return Handoff{}, fmt.Errorf("create payment session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("payment: provider returned %d: %s", resp.StatusCode, snippet)
		return Handoff{}, fmt.Errorf("create payment session: provider status %d", resp.StatusCode)
	}

	var out createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Handoff{}, fmt.Errorf("decode payment session: %w", err)
	}
	if out.ID == "" {
		return Handoff{}, fmt.Errorf("create payment session: provider returned no id")
	}
	return Handoff{
		ProviderRef:  out.ID,
		Mode:         g.cfg.Mode,
		ClientSecret: out.ClientSecret,
		RedirectURL:  out.RedirectURL,
	}, nil
}
