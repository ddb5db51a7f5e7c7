package service

import (
	"context"
	"errors"
	"strings"

	"github.com/ticketcore/checkout-service/internal/clock"
	"github.com/ticketcore/checkout-service/internal/model"
	"github.com/ticketcore/checkout-service/internal/repository"
)

// AccessCodeService validates guest access codes at session creation and
// consumes a use only when the session actually converts.  Validation
// never burns a use: an abandoned or failed checkout leaves the code's
// counter untouched.
type AccessCodeService struct {
	codes AccessCodeStore
	clock clock.Clock
}

// NewAccessCodeService constructs an AccessCodeService.
func NewAccessCodeService(codes AccessCodeStore, clk clock.Clock) *AccessCodeService {
	return &AccessCodeService{codes: codes, clock: clk}
}

// Validate checks a plaintext code against the event's codes without
// consuming a use.  An unknown code reports ErrInvalidCode, an expired
// code ErrExpiredCode, and a fully consumed code
// repository.ErrUsesExhausted.
func (s *AccessCodeService) Validate(ctx context.Context, eventID uint64, plaintext string) (model.GuestAccessCode, error) {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return model.GuestAccessCode{}, ErrInvalidCode
	}
	code, err := s.codes.FindByPlaintext(ctx, eventID, plaintext)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return model.GuestAccessCode{}, ErrInvalidCode
		}
		return model.GuestAccessCode{}, err
	}
	if code.Expired(s.clock.Now()) {
		return model.GuestAccessCode{}, ErrExpiredCode
	}
	if code.Exhausted() {
		return model.GuestAccessCode{}, repository.ErrUsesExhausted
	}
	return code, nil
}

// Consume burns one use of the code.  Called at conversion, not at
// validation: between the two another session may have consumed the last
// use, in which case repository.ErrUsesExhausted surfaces and the caller
// decides whether to tolerate it.
func (s *AccessCodeService) Consume(ctx context.Context, codeID uint64) error {
	return s.codes.ConsumeUse(ctx, codeID)
}
