// Package apperr holds the error taxonomy shared by the ledgers, the reconciler,
// the renewal sweep and the HTTP layer. Wrap with %w and test with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks bad caller input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a referenced record that does not exist.
	ErrNotFound                    = errors.New("not found")
	ErrOrderNotFound               = fmt.Errorf("order %w", ErrNotFound)
	ErrSubscriptionNotFound        = fmt.Errorf("subscription %w", ErrNotFound)
	ErrDuplicateActiveSubscription = errors.New("active subscription already exists")
	ErrInvalidTransition           = errors.New("invalid status transition")
	ErrInvalidTier                 = fmt.Errorf("%w: invalid tier", ErrValidation)
	ErrAlreadyCancelled            = errors.New("subscription already cancelled")
	// ErrGateway is a transient gateway failure (network, timeout, 5xx).
	ErrGateway = errors.New("payment gateway unavailable")
	// ErrGatewayRejected means the gateway explicitly declined the request.
	ErrGatewayRejected    = errors.New("payment gateway rejected request")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrPaymentNotStarted  = errors.New("payment could not be started")
	ErrLeaseNotAcquired   = errors.New("lease held by another owner")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Storage wraps a database failure so callers can match ErrStorageUnavailable
// while keeping the driver error in the chain.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// Transient reports whether an operation failing with err may be retried later.
func Transient(err error) bool {
	return errors.Is(err, ErrGateway) || errors.Is(err, ErrStorageUnavailable)
}

var known = []error{
	ErrValidation, ErrNotFound, ErrDuplicateActiveSubscription, ErrInvalidTransition, ErrAlreadyCancelled,
	ErrGateway, ErrGatewayRejected, ErrStorageUnavailable, ErrPaymentNotStarted, ErrLeaseNotAcquired,
}

// Known reports whether err carries one of the sentinel errors above.
func Known(err error) bool {
	for _, k := range known {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// Tx passes taxonomy errors returned from a transaction through and marks
// anything else (driver, commit, constraint) as a storage failure.
func Tx(op string, err error) error {
	if err == nil || Known(err) {
		return err
	}
	return Storage(op, err)
}
