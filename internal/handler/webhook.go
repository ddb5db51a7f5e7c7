package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ticketcore/checkout-service/internal/payment"
	"github.com/ticketcore/checkout-service/internal/service"
)

// maxWebhookBody caps how much of a webhook payload is read.  Provider
// notifications are small; anything larger is hostile or broken.
const maxWebhookBody = 64 * 1024

// WebhookHandler receives asynchronous payment outcome notifications.
// Every request must carry a valid HMAC signature header; the body is
// only parsed after the signature checks out.
type WebhookHandler struct {
	Secret    string
	Reconcile *service.ReconcileService
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(secret string, reconcile *service.ReconcileService) *WebhookHandler {
	if reconcile == nil {
		panic("nil service passed to NewWebhookHandler")
	}
	return &WebhookHandler{Secret: secret, Reconcile: reconcile}
}

// Receive handles POST /v1/webhooks/payment.  A 200 acknowledges the
// delivery; the provider retries on anything else.  Outcomes that cannot
// be applied (late success, unknown reference) are recorded as
// reconciliation exceptions and still acknowledged, because a retry
// cannot change the result.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "VALIDATION_ERROR", "message": "unreadable body"})
	}

	sig := c.Request().Header.Get(payment.HeaderSignature)
	if err := payment.VerifySignature(h.Secret, sig, body, time.Now().UTC()); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "BAD_SIGNATURE", "message": "signature verification failed"})
	}

	notification, err := payment.ParseNotification(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "VALIDATION_ERROR", "message": "malformed notification"})
	}

	if err := h.Reconcile.HandleNotification(c.Request().Context(), notification); err != nil {
		if errors.Is(err, service.ErrValidation) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "VALIDATION_ERROR", "message": err.Error()})
		}
		// Transient storage failure: the event claim rolled back with
		// the rest of the transaction, so the redelivery is processed
		// rather than deduplicated.
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
