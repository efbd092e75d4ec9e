package engine

import "errors"

// The error taxonomy surfaced to callers. Everything else is an internal
// failure wrapped with context.
var (
	// ErrInsufficientStock rejects a ledger adjust that would drive a
	// quantity negative. Never retried.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrIllegalTransition rejects an order status transition not permitted
	// by the order family's transition table. A caller/logic error.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrDuplicateThreshold surfaces a threshold key collision that survived
	// the internal retry-as-update.
	ErrDuplicateThreshold = errors.New("duplicate threshold")

	// ErrSchedulerUnavailable means the external scheduler call failed or
	// timed out. The production order stays SCHEDULED; the dispatch may be
	// retried.
	ErrSchedulerUnavailable = errors.New("scheduler unavailable")
)
