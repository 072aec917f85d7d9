package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotFoundFamily(t *testing.T) {
	err := fmt.Errorf("lookup: %w", ErrOrderNotFound)
	require.True(t, errors.Is(err, ErrOrderNotFound))
	require.True(t, errors.Is(err, ErrNotFound))
	require.False(t, errors.Is(err, ErrSubscriptionNotFound))
}

func TestInvalidTierIsValidation(t *testing.T) {
	require.True(t, errors.Is(ErrInvalidTier, ErrValidation))
	require.True(t, errors.Is(Validationf("quantity %d", 0), ErrValidation))
}

func TestStorageKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Storage("load order", cause)
	require.True(t, errors.Is(err, ErrStorageUnavailable))
	require.True(t, errors.Is(err, cause))
	require.True(t, Transient(err))
	require.Nil(t, Storage("noop", nil))
}

func TestTransient(t *testing.T) {
	require.True(t, Transient(fmt.Errorf("submit: %w", ErrGateway)))
	require.False(t, Transient(fmt.Errorf("submit: %w", ErrGatewayRejected)))
	require.False(t, Transient(ErrValidation))
}

func TestTx(t *testing.T) {
	require.Nil(t, Tx("op", nil))

	domain := fmt.Errorf("cancel: %w", ErrAlreadyCancelled)
	require.Same(t, domain, Tx("cancel", domain))

	err := Tx("commit", errors.New("deadlock detected"))
	require.ErrorIs(t, err, ErrStorageUnavailable)
	require.Contains(t, err.Error(), "deadlock detected")
}
