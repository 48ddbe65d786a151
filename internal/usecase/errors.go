package usecase

import (
	"errors"
	"fmt"

	"chainsign/internal/domain"
)

var classified = []error{
	domain.ErrValidation,
	domain.ErrNotFound,
	domain.ErrDeviceInactive,
	domain.ErrKeyGeneration,
	domain.ErrSigning,
	domain.ErrConcurrency,
	domain.ErrPersistence,
	domain.ErrChainBroken,
}

// storeError keeps domain errors from repositories intact and wraps anything else as a
// persistence failure.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range classified {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
}

// ErrorCode is a short machine-readable name for err, used for metrics and logs.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrDeviceInactive):
		return "device_inactive"
	case errors.Is(err, domain.ErrKeyGeneration):
		return "key_generation"
	case errors.Is(err, domain.ErrSigning):
		return "signing"
	case errors.Is(err, domain.ErrConcurrency):
		return "concurrency"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence"
	case errors.Is(err, domain.ErrChainBroken):
		return "chain_broken"
	default:
		return "internal"
	}
}
