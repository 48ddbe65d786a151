package domain

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrDeviceInactive = errors.New("device inactive")
	ErrKeyGeneration  = errors.New("key generation failed")
	ErrSigning        = errors.New("signing failed")
	ErrConcurrency    = errors.New("concurrent modification")
	ErrPersistence    = errors.New("persistence failed")
	ErrChainBroken    = errors.New("chain broken")
)
