package apperrors

import (
	"context"
	"errors"
)

// Standardized monitor errors
var (
	ErrNetwork           = errors.New("network error")
	ErrConnectTimeout    = errors.New("connect timeout")
	ErrReconnectBudget   = errors.New("reconnect budget exhausted")
	ErrManualDisconnect  = errors.New("manual disconnect")
	ErrInvalidSample     = errors.New("invalid price sample")
	ErrUnknownVenue      = errors.New("unknown venue")
	ErrMissingTicker     = errors.New("missing ticker")
	ErrNoVenuesFound     = errors.New("no venues list this ticker")
	ErrNotMonitored      = errors.New("ticker is not being monitored")
	ErrAlreadyMonitored  = errors.New("ticker is already being monitored")
	ErrNoQuotePath       = errors.New("no quote path for pool")
	ErrPoolNotFound      = errors.New("pool not found")
	ErrUnsupportedChain  = errors.New("unsupported chain")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// IsTransient reports whether a failed operation is worth retrying.
// Cancellation, manual teardown, and structural errors like a missing quote
// path are terminal; network-class failures are not.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, ErrManualDisconnect), errors.Is(err, ErrReconnectBudget):
		return false
	case errors.Is(err, ErrNoQuotePath), errors.Is(err, ErrPoolNotFound), errors.Is(err, ErrUnsupportedChain):
		return false
	case errors.Is(err, ErrUnknownVenue), errors.Is(err, ErrMissingTicker):
		return false
	}
	return true
}
