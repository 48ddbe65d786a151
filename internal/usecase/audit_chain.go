package usecase

import (
	"context"
	"errors"
	"fmt"

	"chainsign/internal/domain"

	"go.uber.org/zap"
)

// ChainReport describes the outcome of walking one device's transactions.
// FailedAt is the counter of the first bad link, or -1 when the chain is valid.
type ChainReport struct {
	DeviceID string `json:"device_id"`
	Length   int    `json:"length"`
	Valid    bool   `json:"valid"`
	FailedAt int64  `json:"failed_at"`
	Reason   string `json:"reason,omitempty"`
}

// AuditChain checks a device's transactions in counter order: counters must be dense from 0,
// each link must carry the prior signature (base64(deviceID) for the first), signed data must
// match its fields and every signature must verify under the device's public key.
func AuditChain(deviceID string, verifier domain.Verifier, txs []domain.Transaction) ChainReport {
	report := ChainReport{DeviceID: deviceID, Length: len(txs), Valid: true, FailedAt: -1}
	fail := func(counter int64, format string, args ...any) ChainReport {
		report.Valid = false
		report.FailedAt = counter
		report.Reason = fmt.Sprintf(format, args...)
		return report
	}
	if verifier == nil {
		return fail(0, "no verifier for device")
	}

	expected := int64(0)
	prev := domain.GenesisSignature(deviceID)
	for _, tx := range txs {
		if tx.DeviceID != deviceID {
			return fail(expected, "transaction %s belongs to device %s", tx.ID, tx.DeviceID)
		}
		if tx.Counter != expected {
			return fail(expected, "counter mismatch: expected %d got %d", expected, tx.Counter)
		}
		if tx.PreviousSignature != prev {
			return fail(tx.Counter, "previous signature mismatch at counter %d", tx.Counter)
		}
		secured, err := domain.ParseSecuredData(tx.SignedData)
		if err != nil {
			return fail(tx.Counter, "signed data malformed at counter %d", tx.Counter)
		}
		switch {
		case secured.Counter != tx.Counter:
			return fail(tx.Counter, "signed data names counter %d at counter %d", secured.Counter, tx.Counter)
		case secured.PreviousSignature != tx.PreviousSignature:
			return fail(tx.Counter, "signed data previous signature mismatch at counter %d", tx.Counter)
		case secured.Data != tx.Data:
			return fail(tx.Counter, "signed data payload mismatch at counter %d", tx.Counter)
		case !tx.Consistent():
			return fail(tx.Counter, "signed data not canonical at counter %d", tx.Counter)
		}
		raw, err := domain.DecodeSignature(tx.Signature)
		if err != nil {
			return fail(tx.Counter, "signature decode failed at counter %d", tx.Counter)
		}
		if !verifier.Verify([]byte(tx.SignedData), raw) {
			return fail(tx.Counter, "signature invalid at counter %d", tx.Counter)
		}
		prev = tx.Signature
		expected++
	}
	return report
}

type ChainVerifier struct {
	Devices      DeviceRepository
	Transactions TransactionRepository
	Keys         KeyPairFactory
	Logger       *zap.Logger
}

func NewChainVerifier(repo Repository, keys KeyPairFactory) *ChainVerifier {
	return &ChainVerifier{Devices: repo, Transactions: repo, Keys: keys}
}

// Verify audits the stored chain of a device. Besides the link checks it requires the
// committed counter to equal the number of stored transactions.
func (v *ChainVerifier) Verify(ctx context.Context, deviceID string) (ChainReport, error) {
	ctx, span := tracer.Start(ctx, "ChainVerifier.Verify")
	defer span.End()

	if v == nil || v.Devices == nil || v.Transactions == nil || v.Keys == nil {
		return ChainReport{}, errors.New("chain verifier is not configured")
	}
	if deviceID == "" {
		return ChainReport{}, fmt.Errorf("%w: device id is required", domain.ErrValidation)
	}
	device, err := v.Devices.GetDevice(ctx, deviceID)
	if err != nil {
		return ChainReport{}, storeError(err)
	}
	if device == nil {
		return ChainReport{}, fmt.Errorf("%w: device %s", domain.ErrNotFound, deviceID)
	}
	txs, err := v.Transactions.ListTransactions(ctx, deviceID)
	if err != nil {
		return ChainReport{}, storeError(err)
	}

	var report ChainReport
	verifier, err := v.Keys.Verifier(device.Algorithm, device.PublicKey)
	if err != nil {
		report = ChainReport{
			DeviceID: deviceID,
			Length:   len(txs),
			FailedAt: 0,
			Reason:   fmt.Sprintf("stored public key unusable: %v", err),
		}
	} else {
		report = AuditChain(deviceID, verifier, txs)
	}
	if report.Valid && int64(len(txs)) != device.SignatureCounter {
		report.Valid = false
		report.FailedAt = int64(len(txs))
		report.Reason = fmt.Sprintf("device counter %d does not match %d stored transactions", device.SignatureCounter, len(txs))
	}
	if !report.Valid {
		v.logger().Warn("chain verification failed",
			zap.String("device_id", deviceID),
			zap.Int64("failed_at", report.FailedAt),
			zap.String("reason", report.Reason),
		)
	}
	return report, nil
}

func (v *ChainVerifier) logger() *zap.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return zap.NewNop()
}
