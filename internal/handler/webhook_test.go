package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ticketcore/checkout-service/internal/payment"
	"github.com/ticketcore/checkout-service/internal/service"
)

const webhookTestSecret = "whsec_test"

func postWebhook(body, sigHeader string) (*httptest.ResponseRecorder, echo.Context) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payment", strings.NewReader(body))
	if sigHeader != "" {
		req.Header.Set(payment.HeaderSignature, sigHeader)
	}
	rec := httptest.NewRecorder()
	return rec, e.NewContext(req, rec)
}

// The reconcile service is only reached after the signature verifies, so
// these requests never touch its stores.
func newWebhookHandler() *WebhookHandler {
	return NewWebhookHandler(webhookTestSecret, service.NewReconcileService(nil, nil, nil, nil, nil, nil, nil, nil))
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	h := newWebhookHandler()
	rec, c := postWebhook(`{"id":"evt_1","provider_ref":"ps_1","type":"payment.succeeded"}`, "")
	if err := h.Receive(c); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	h := newWebhookHandler()
	signed := `{"id":"evt_1","provider_ref":"ps_1","type":"payment.succeeded"}`
	sig := payment.SignatureHeader(webhookTestSecret, time.Now().Unix(), []byte(signed))

	tampered := strings.Replace(signed, "ps_1", "ps_2", 1)
	rec, c := postWebhook(tampered, sig)
	if err := h.Receive(c); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookRejectsMalformedNotification(t *testing.T) {
	h := newWebhookHandler()
	body := `{"id":"","provider_ref":"","type":""}`
	sig := payment.SignatureHeader(webhookTestSecret, time.Now().Unix(), []byte(body))

	rec, c := postWebhook(body, sig)
	if err := h.Receive(c); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
