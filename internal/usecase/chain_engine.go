package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainsign/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ChainEngine appends signed, chained transactions to a device's sequence.
type ChainEngine struct {
	Registry *DeviceRegistry
	Clock    Clock
	IDs      IDGenerator
	Logger   *zap.Logger
	Observer Observer
}

func NewChainEngine(registry *DeviceRegistry) *ChainEngine {
	return &ChainEngine{Registry: registry}
}

// CreateTransaction signs data for the device and commits the transaction together with the
// counter advance. Calls for one device are totally ordered by the device lock; nothing is
// persisted unless both writes commit.
func (e *ChainEngine) CreateTransaction(ctx context.Context, deviceID string, data string) (domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "ChainEngine.CreateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("device.id", deviceID))

	if e == nil || e.Registry == nil {
		return domain.Transaction{}, errors.New("device registry is required")
	}

	started := time.Now()
	var (
		out domain.Transaction
		alg domain.Algorithm
	)
	err := e.Registry.WithExclusiveAccess(ctx, deviceID, func(ctx context.Context, device domain.Device) error {
		alg = device.Algorithm
		tx, err := e.next(ctx, device, data)
		if err != nil {
			return err
		}
		out = tx
		return nil
	})
	if err != nil {
		code := ErrorCode(err)
		e.observer().TransactionFailed(alg, code)
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		e.logger().Warn("transaction not created",
			zap.String("device_id", deviceID),
			zap.String("reason", code),
			zap.Error(err),
		)
		return domain.Transaction{}, err
	}

	e.observer().TransactionCommitted(alg, time.Since(started))
	span.SetAttributes(attribute.Int64("transaction.counter", out.Counter))
	e.logger().Debug("transaction committed",
		zap.String("device_id", deviceID),
		zap.String("transaction_id", out.ID),
		zap.Int64("counter", out.Counter),
	)
	return out, nil
}

// next runs inside the device's critical section.
func (e *ChainEngine) next(ctx context.Context, device domain.Device, data string) (domain.Transaction, error) {
	if !device.Active() {
		return domain.Transaction{}, fmt.Errorf("%w: device %s is deactivated", domain.ErrDeviceInactive, device.ID)
	}
	counter := device.SignatureCounter

	if err := e.Registry.admit(ctx, domain.AdmissionInput{
		Action:    domain.AdmissionSign,
		DeviceID:  device.ID,
		Algorithm: string(device.Algorithm),
		DataSize:  len(data),
		Counter:   counter,
	}); err != nil {
		return domain.Transaction{}, err
	}

	previous, err := e.previousSignature(ctx, device)
	if err != nil {
		return domain.Transaction{}, err
	}
	signedData := domain.ComposeSecuredData(counter, data, previous)

	signer, err := e.Registry.signerFor(device)
	if err != nil {
		return domain.Transaction{}, err
	}
	raw, err := signer.Sign([]byte(signedData))
	if err != nil {
		if !errors.Is(err, domain.ErrSigning) {
			err = fmt.Errorf("%w: %w", domain.ErrSigning, err)
		}
		return domain.Transaction{}, err
	}
	if !signer.Verify([]byte(signedData), raw) {
		return domain.Transaction{}, fmt.Errorf("%w: signature does not verify under device key", domain.ErrSigning)
	}

	tx := domain.Transaction{
		ID:                e.newID(),
		DeviceID:          device.ID,
		Counter:           counter,
		Timestamp:         e.now().Truncate(time.Microsecond),
		Data:              data,
		PreviousSignature: previous,
		SignedData:        signedData,
		Signature:         domain.EncodeSignature(raw),
	}

	// A caller that gave up before the commit leaves no trace; once the commit starts it
	// runs to completion regardless of ctx.
	if err := ctx.Err(); err != nil {
		return domain.Transaction{}, fmt.Errorf("%w: %w", domain.ErrConcurrency, err)
	}
	commitCtx := context.WithoutCancel(ctx)
	if err := e.Registry.Repo.UpdateCounterAndInsertTransaction(commitCtx, device.ID, counter+1, tx); err != nil {
		return domain.Transaction{}, storeError(err)
	}
	return tx, nil
}

func (e *ChainEngine) previousSignature(ctx context.Context, device domain.Device) (string, error) {
	if device.SignatureCounter == 0 {
		return domain.GenesisSignature(device.ID), nil
	}
	last, err := e.Registry.Repo.GetLastTransaction(ctx, device.ID)
	if err != nil {
		return "", storeError(err)
	}
	if last == nil {
		return "", fmt.Errorf("%w: device %s has counter %d but no transactions", domain.ErrChainBroken, device.ID, device.SignatureCounter)
	}
	if last.Counter != device.SignatureCounter-1 {
		return "", fmt.Errorf("%w: device %s last counter %d, expected %d", domain.ErrChainBroken, device.ID, last.Counter, device.SignatureCounter-1)
	}
	return last.Signature, nil
}

func (e *ChainEngine) now() time.Time {
	if e.Clock != nil {
		return e.Clock().UTC()
	}
	return e.Registry.now()
}

func (e *ChainEngine) newID() string {
	if e.IDs != nil {
		return e.IDs()
	}
	return e.Registry.newID()
}

func (e *ChainEngine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return e.Registry.logger()
}

func (e *ChainEngine) observer() Observer {
	if e.Observer != nil {
		return e.Observer
	}
	return e.Registry.observer()
}
