// Package service implements the checkout core: hold management, the
// checkout session state machine, guest access code validation, webhook
// reconciliation and the background expiry sweep.  Services are defined
// over narrow store interfaces so the lifecycle logic is exercised in
// unit tests with fakes while production wires the MySQL repositories.
package service

import "errors"

// ErrValidation covers malformed buyer input: empty selections,
// non-positive quantities, quantities above the per-order cap, missing
// buyer identity.  Wrapped errors carry the specific message.
var ErrValidation = errors.New("validation error")

// ErrEventEnded is returned when a session is requested for an event
// whose sales window has closed.
var ErrEventEnded = errors.New("event ended")

// ErrSessionExpired is returned for operations on a session whose TTL has
// passed, whether or not the sweep has settled it yet.
var ErrSessionExpired = errors.New("session expired")

// ErrSessionNotPending is returned when cancel or extend is attempted on
// a session that already reached a terminal state.
var ErrSessionNotPending = errors.New("session not pending")

// ErrForbidden is returned when the requester identity does not match the
// session's buyer reference.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidCode is returned when a guest access code does not exist for
// the event.
var ErrInvalidCode = errors.New("invalid access code")

// ErrExpiredCode is returned when a guest access code exists but its own
// expiry has passed.
var ErrExpiredCode = errors.New("access code expired")

// ErrCodeTierMismatch is returned when a tier-restricted code is used
// with a selection outside its tier.
var ErrCodeTierMismatch = errors.New("access code not valid for selected tier")

// ErrExtensionLimit is returned when a session has already used every
// allowed extension.
var ErrExtensionLimit = errors.New("extension limit exceeded")

// ErrPaymentHandoff is returned when the payment provider could not open
// a session.  All holds have been released; the buyer may retry.
var ErrPaymentHandoff = errors.New("payment handoff failed")
