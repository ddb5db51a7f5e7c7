// Package repository provides MySQL persistence for the checkout core.
// Sentinel errors defined here let the service layer distinguish failure
// scenarios without inspecting driver errors: higher layers compare with
// errors.Is and translate into the HTTP error taxonomy.
package repository

import "errors"

// ErrEventNotFound is returned when an event id does not exist.
var ErrEventNotFound = errors.New("event not found")

// ErrTierNotFound is returned when a tier id does not exist.
var ErrTierNotFound = errors.New("ticket tier not found")

// ErrSoldOut is returned by Reserve when the requested quantity does not
// fit inside the tier's remaining capacity.  The conditional UPDATE is the
// only arbiter: there is no separate availability check to race against.
var ErrSoldOut = errors.New("sold out")

// ErrConflict is returned when the storage engine aborts an operation
// because of lock contention (deadlock or lock wait timeout).  The
// operation did not happen and is safe to retry.
var ErrConflict = errors.New("transient conflict")

// ErrHoldNotFound is returned when a hold id does not exist.
var ErrHoldNotFound = errors.New("hold not found")

// ErrHoldNotActive is returned by Commit when the hold has already left
// the ACTIVE state through expiry or release, so its quantity can no
// longer be issued.
var ErrHoldNotActive = errors.New("hold not active")

// ErrAlreadyCommitted is returned by Commit when the hold was committed
// before.  Callers must treat this as "issued exactly once already",
// never as permission to issue again.
var ErrAlreadyCommitted = errors.New("hold already committed")

// ErrSessionNotFound is returned when a session id or provider reference
// does not resolve to a session.
var ErrSessionNotFound = errors.New("session not found")

// ErrCodeNotFound is returned when no access code matches.
var ErrCodeNotFound = errors.New("access code not found")

// ErrUsesExhausted is returned by ConsumeUse when every allowed use of an
// access code has been consumed.
var ErrUsesExhausted = errors.New("access code uses exhausted")

// ErrOrderNotFound is returned when an order id does not exist.
var ErrOrderNotFound = errors.New("order not found")

// ErrDuplicateWebhookEvent is returned when a provider event id has been
// recorded before.  Duplicate webhook deliveries are detected through the
// unique key on provider_event_id.
var ErrDuplicateWebhookEvent = errors.New("duplicate webhook event")
