package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the failure taxonomy. Wrap them with %w so
// callers can classify with errors.Is.
var (
	// ErrTransport marks network-level failures (connect, timeout, 5xx).
	ErrTransport = errors.New("transport error")
	// ErrRateLimited marks an explicit backpressure signal from the remote.
	ErrRateLimited = errors.New("rate limited by remote")
	// ErrAPIFailure marks a well-formed response that reports failure for the id.
	ErrAPIFailure = errors.New("api-reported-failure")
	// ErrParse marks a structurally malformed payload.
	ErrParse = errors.New("parse-error")
	// ErrPersistence marks ledger or store write failures; fatal for the run.
	ErrPersistence = errors.New("persistence error")
)

// TransportErr wraps err as a transport failure for app id.
func TransportErr(id AppID, err error) error {
	return fmt.Errorf("appid %d: %w: %w", id, ErrTransport, err)
}

// RateLimitedErr flags a 429-style response for app id.
func RateLimitedErr(id AppID) error {
	return fmt.Errorf("appid %d: %w", id, ErrRateLimited)
}

// APIFailureErr flags a success=false response for app id.
func APIFailureErr(id AppID) error {
	return fmt.Errorf("appid %d: %w", id, ErrAPIFailure)
}

// ParseErr wraps err as a malformed-payload failure for app id.
func ParseErr(id AppID, err error) error {
	return fmt.Errorf("appid %d: %w: %w", id, ErrParse, err)
}

// IsRetryable reports whether err should leave the id eligible for a
// future attempt. Transport trouble and backpressure retry; API-reported
// failures and parse errors quarantine.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrRateLimited)
}

// FailureReason maps err to the stable reason string recorded in the
// quarantine document.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrAPIFailure):
		return "api-reported-failure"
	case errors.Is(err, ErrParse):
		return "parse-error"
	case errors.Is(err, ErrRateLimited):
		return "rate-limited"
	case errors.Is(err, ErrTransport):
		return "transport-error"
	default:
		return "unknown"
	}
}
