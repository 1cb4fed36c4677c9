package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// ErrMissingAccountID marks a contract violation by the caller: the
	// upstream authentication layer must establish identity before the
	// scoring core is invoked.
	ErrMissingAccountID = errors.New("account id is required")

	// ErrStoreUnavailable is advisory: history reads degraded to a stale
	// or zero-state snapshot. Scoring proceeds regardless.
	ErrStoreUnavailable = errors.New("history store unavailable")
)
