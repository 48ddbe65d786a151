package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"chainsign/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("chainsign/usecase")

type DeviceRegistry struct {
	Repo        Repository
	Keys        KeyPairFactory
	Locker      DeviceLocker
	Signers     SignerCache
	Policy      AdmissionPolicy
	Limits      domain.AdmissionLimits
	LockTimeout time.Duration
	Clock       Clock
	IDs         IDGenerator
	Logger      *zap.Logger
	Observer    Observer
}

func NewDeviceRegistry(repo Repository, keys KeyPairFactory, locker DeviceLocker) *DeviceRegistry {
	return &DeviceRegistry{
		Repo:   repo,
		Keys:   keys,
		Locker: locker,
	}
}

// Register creates an active device with a fresh key pair and counter 0.
// The returned device carries no private key.
func (r *DeviceRegistry) Register(ctx context.Context, label string, algorithm string) (domain.Device, error) {
	ctx, span := tracer.Start(ctx, "DeviceRegistry.Register")
	defer span.End()

	if err := r.ready(); err != nil {
		return domain.Device{}, err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return domain.Device{}, fmt.Errorf("%w: label is required", domain.ErrValidation)
	}
	alg, err := domain.ParseAlgorithm(algorithm)
	if err != nil {
		return domain.Device{}, err
	}
	span.SetAttributes(attribute.String("device.algorithm", string(alg)))

	if err := r.admit(ctx, domain.AdmissionInput{
		Action:    domain.AdmissionRegister,
		Algorithm: string(alg),
		Label:     label,
	}); err != nil {
		return domain.Device{}, err
	}

	pair, err := r.Keys.Generate(alg)
	if err != nil {
		if !errors.Is(err, domain.ErrKeyGeneration) {
			err = fmt.Errorf("%w: %w", domain.ErrKeyGeneration, err)
		}
		r.logger().Error("key generation failed", zap.String("algorithm", string(alg)), zap.Error(err))
		return domain.Device{}, err
	}

	device := domain.Device{
		ID:               r.newID(),
		Label:            label,
		Algorithm:        alg,
		PublicKey:        pair.PublicKeyPEM,
		PrivateKey:       pair.PrivateKeyPEM,
		SignatureCounter: 0,
		Status:           domain.DeviceStatusActive,
		CreatedAt:        r.now().Truncate(time.Microsecond),
	}
	if err := device.Validate(); err != nil {
		return domain.Device{}, err
	}
	if err := r.Repo.InsertDevice(ctx, device); err != nil {
		err = storeError(err)
		r.logger().Error("device insert failed", zap.String("device_id", device.ID), zap.Error(err))
		return domain.Device{}, err
	}
	if r.Signers != nil {
		signer, err := r.Keys.Signer(alg, device.PrivateKey)
		if err != nil {
			r.logger().Warn("generated key could not be loaded as signer",
				zap.String("device_id", device.ID),
				zap.String("algorithm", string(alg)),
				zap.Error(err),
			)
		} else {
			r.Signers.Put(device.ID, signer)
		}
	}
	r.observer().DeviceRegistered(alg)
	r.logger().Info("device registered",
		zap.String("device_id", device.ID),
		zap.String("algorithm", string(alg)),
	)
	return device.Public(), nil
}

func (r *DeviceRegistry) Get(ctx context.Context, id string) (domain.Device, error) {
	device, err := r.load(ctx, id)
	if err != nil {
		return domain.Device{}, err
	}
	return device.Public(), nil
}

// List returns a snapshot ordered by creation time.
func (r *DeviceRegistry) List(ctx context.Context) ([]domain.Device, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	devices, err := r.Repo.ListDevices(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	out := make([]domain.Device, 0, len(devices))
	for _, device := range devices {
		out = append(out, device.Public())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Deactivate is idempotent; it serializes with in-flight signing on the same device.
func (r *DeviceRegistry) Deactivate(ctx context.Context, id string) error {
	return r.WithExclusiveAccess(ctx, id, func(ctx context.Context, device domain.Device) error {
		if !device.Active() {
			return nil
		}
		if err := r.Repo.DeactivateDevice(ctx, device.ID); err != nil {
			return storeError(err)
		}
		if r.Signers != nil {
			r.Signers.Delete(device.ID)
		}
		r.logger().Info("device deactivated", zap.String("device_id", device.ID))
		return nil
	})
}

// WithExclusiveAccess runs fn with the committed state of the device while holding its lock.
// Failing to obtain the lock within LockTimeout or before ctx is done yields domain.ErrConcurrency.
func (r *DeviceRegistry) WithExclusiveAccess(ctx context.Context, id string, fn func(ctx context.Context, device domain.Device) error) error {
	if err := r.ready(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: device id is required", domain.ErrValidation)
	}
	if r.Locker == nil {
		return errors.New("device locker is required")
	}

	lockCtx := ctx
	if r.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, r.LockTimeout)
		defer cancel()
	}
	started := time.Now()
	release, err := r.Locker.Lock(lockCtx, id)
	r.observer().LockWaited(time.Since(started))
	if err != nil {
		if !errors.Is(err, domain.ErrConcurrency) {
			err = fmt.Errorf("%w: %w", domain.ErrConcurrency, err)
		}
		r.logger().Warn("device lock not acquired", zap.String("device_id", id), zap.Error(err))
		return err
	}
	defer release()

	device, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	return fn(ctx, device)
}

func (r *DeviceRegistry) load(ctx context.Context, id string) (domain.Device, error) {
	if err := r.ready(); err != nil {
		return domain.Device{}, err
	}
	if id == "" {
		return domain.Device{}, fmt.Errorf("%w: device id is required", domain.ErrValidation)
	}
	device, err := r.Repo.GetDevice(ctx, id)
	if err != nil {
		return domain.Device{}, storeError(err)
	}
	if device == nil {
		return domain.Device{}, fmt.Errorf("%w: device %s", domain.ErrNotFound, id)
	}
	return *device, nil
}

func (r *DeviceRegistry) signerFor(device domain.Device) (domain.Signer, error) {
	if r.Signers != nil {
		if signer, ok := r.Signers.Get(device.ID); ok {
			return signer, nil
		}
	}
	signer, err := r.Keys.Signer(device.Algorithm, device.PrivateKey)
	if err != nil {
		if !errors.Is(err, domain.ErrSigning) {
			err = fmt.Errorf("%w: %w", domain.ErrSigning, err)
		}
		return nil, err
	}
	if r.Signers != nil {
		r.Signers.Put(device.ID, signer)
	}
	return signer, nil
}

func (r *DeviceRegistry) admit(ctx context.Context, input domain.AdmissionInput) error {
	if r.Policy == nil {
		return nil
	}
	input.Limits = r.Limits
	decision, err := r.Policy.Evaluate(ctx, input)
	if err != nil {
		return fmt.Errorf("admission policy: %w", err)
	}
	if !decision.Allow {
		reason := "denied by admission policy"
		if len(decision.Deny) > 0 {
			reason = strings.Join(decision.Deny, "; ")
		}
		return fmt.Errorf("%w: %s", domain.ErrValidation, reason)
	}
	return nil
}

func (r *DeviceRegistry) ready() error {
	if r == nil || r.Repo == nil {
		return errors.New("device repository is required")
	}
	if r.Keys == nil {
		return errors.New("key pair factory is required")
	}
	return nil
}

func (r *DeviceRegistry) now() time.Time {
	if r.Clock != nil {
		return r.Clock().UTC()
	}
	return systemClock()
}

func (r *DeviceRegistry) newID() string {
	if r.IDs != nil {
		return r.IDs()
	}
	return UUIDGenerator()
}

func (r *DeviceRegistry) logger() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}

func (r *DeviceRegistry) observer() Observer {
	if r.Observer != nil {
		return r.Observer
	}
	return nopObserver{}
}
