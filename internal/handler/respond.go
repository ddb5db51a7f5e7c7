package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ticketcore/checkout-service/internal/repository"
	"github.com/ticketcore/checkout-service/internal/service"
)

// serviceError translates service and repository sentinels into the API's
// error envelope.  Every failure renders as {"error": CODE, "message": ...}
// so clients can branch on the code without parsing prose.
func serviceError(c echo.Context, err error) error {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		log.Printf("handler: %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
		return c.JSON(status, echo.Map{"error": code, "message": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": code, "message": err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, repository.ErrEventNotFound),
		errors.Is(err, repository.ErrTierNotFound),
		errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrHoldNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, service.ErrEventEnded):
		return http.StatusConflict, "EVENT_ENDED"
	case errors.Is(err, service.ErrSessionExpired):
		return http.StatusGone, "SESSION_EXPIRED"
	case errors.Is(err, service.ErrSessionNotPending):
		return http.StatusConflict, "SESSION_NOT_PENDING"
	case errors.Is(err, service.ErrExtensionLimit):
		return http.StatusConflict, "EXTENSION_LIMIT"
	case errors.Is(err, repository.ErrSoldOut):
		return http.StatusConflict, "SOLD_OUT"
	case errors.Is(err, repository.ErrConflict):
		// Transient lock contention; the client may retry the request.
		return http.StatusConflict, "PAYMENT_CONFLICT"
	case errors.Is(err, service.ErrInvalidCode):
		return http.StatusUnprocessableEntity, "INVALID_CODE"
	case errors.Is(err, service.ErrExpiredCode):
		return http.StatusUnprocessableEntity, "EXPIRED_CODE"
	case errors.Is(err, repository.ErrUsesExhausted):
		return http.StatusUnprocessableEntity, "USES_EXHAUSTED"
	case errors.Is(err, service.ErrCodeTierMismatch):
		return http.StatusUnprocessableEntity, "CODE_TIER_MISMATCH"
	case errors.Is(err, service.ErrPaymentHandoff):
		return http.StatusBadGateway, "PAYMENT_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
