package usecase

import (
	"context"
	"time"

	"chainsign/internal/domain"

	"github.com/google/uuid"
)

type Clock func() time.Time

type IDGenerator func() string

// DeviceRepository returns domain.ErrNotFound for unknown ids.
type DeviceRepository interface {
	InsertDevice(ctx context.Context, device domain.Device) error
	GetDevice(ctx context.Context, id string) (*domain.Device, error)
	ListDevices(ctx context.Context) ([]domain.Device, error)
	DeactivateDevice(ctx context.Context, id string) error
}

type TransactionRepository interface {
	// UpdateCounterAndInsertTransaction advances the device counter to newCounter and stores tx
	// in one atomic unit. It fails with domain.ErrConcurrency when the stored counter is not
	// newCounter-1 and with domain.ErrDeviceInactive when the device was deactivated.
	UpdateCounterAndInsertTransaction(ctx context.Context, deviceID string, newCounter int64, tx domain.Transaction) error
	// GetLastTransaction returns nil without error when the device has no transactions.
	GetLastTransaction(ctx context.Context, deviceID string) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	// ListTransactions orders by counter; an empty deviceID lists every device.
	ListTransactions(ctx context.Context, deviceID string) ([]domain.Transaction, error)
}

type Repository interface {
	DeviceRepository
	TransactionRepository
}

type KeyPairFactory interface {
	Generate(alg domain.Algorithm) (domain.KeyPair, error)
	Signer(alg domain.Algorithm, privateKeyPEM string) (domain.Signer, error)
	Verifier(alg domain.Algorithm, publicKeyPEM string) (domain.Verifier, error)
}

// DeviceLocker serializes mutating operations per device id. Lock blocks until the lock is
// held or ctx is done; the returned release func must be called exactly once.
type DeviceLocker interface {
	Lock(ctx context.Context, deviceID string) (release func(), err error)
}

type SignerCache interface {
	Get(deviceID string) (domain.Signer, bool)
	Put(deviceID string, signer domain.Signer)
	Delete(deviceID string)
}

type AdmissionPolicy interface {
	Evaluate(ctx context.Context, input domain.AdmissionInput) (domain.AdmissionDecision, error)
}

type Observer interface {
	DeviceRegistered(alg domain.Algorithm)
	TransactionCommitted(alg domain.Algorithm, elapsed time.Duration)
	TransactionFailed(alg domain.Algorithm, reason string)
	LockWaited(elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) DeviceRegistered(domain.Algorithm)                    {}
func (nopObserver) TransactionCommitted(domain.Algorithm, time.Duration) {}
func (nopObserver) TransactionFailed(domain.Algorithm, string)           {}
func (nopObserver) LockWaited(time.Duration)                             {}

func UUIDGenerator() string {
	return uuid.NewString()
}

func systemClock() time.Time {
	return time.Now().UTC()
}
