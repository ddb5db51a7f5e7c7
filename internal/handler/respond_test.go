package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ticketcore/checkout-service/internal/repository"
	"github.com/ticketcore/checkout-service/internal/service"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{service.ErrValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{fmt.Errorf("%w: quantity must be positive", service.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{repository.ErrSessionNotFound, http.StatusNotFound, "NOT_FOUND"},
		{repository.ErrTierNotFound, http.StatusNotFound, "NOT_FOUND"},
		{service.ErrEventEnded, http.StatusConflict, "EVENT_ENDED"},
		{service.ErrSessionExpired, http.StatusGone, "SESSION_EXPIRED"},
		{service.ErrSessionNotPending, http.StatusConflict, "SESSION_NOT_PENDING"},
		{service.ErrExtensionLimit, http.StatusConflict, "EXTENSION_LIMIT"},
		{repository.ErrSoldOut, http.StatusConflict, "SOLD_OUT"},
		{repository.ErrConflict, http.StatusConflict, "PAYMENT_CONFLICT"},
		{service.ErrInvalidCode, http.StatusUnprocessableEntity, "INVALID_CODE"},
		{service.ErrExpiredCode, http.StatusUnprocessableEntity, "EXPIRED_CODE"},
		{repository.ErrUsesExhausted, http.StatusUnprocessableEntity, "USES_EXHAUSTED"},
		{service.ErrCodeTierMismatch, http.StatusUnprocessableEntity, "CODE_TIER_MISMATCH"},
		{service.ErrPaymentHandoff, http.StatusBadGateway, "PAYMENT_UNAVAILABLE"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			status, code := classify(tc.err)
			if status != tc.status || code != tc.code {
				t.Fatalf("classify(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
			}
		})
	}
}
