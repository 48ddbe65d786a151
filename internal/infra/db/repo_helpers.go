package db

import (
	"errors"
	"fmt"

	"chainsign/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var errDBUnavailable = errors.New("db unavailable")

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: "+format, append([]any{domain.ErrNotFound}, args...)...)
	}
	return err
}

// checkID rejects ids that cannot name a row before they reach the uuid-typed columns.
func checkID(id, kind string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s %q", domain.ErrNotFound, kind, id)
	}
	return nil
}

func deviceModelFromDomain(device domain.Device) DeviceModel {
	return DeviceModel{
		ID:               device.ID,
		Label:            device.Label,
		Algorithm:        string(device.Algorithm),
		PublicKeyPEM:     device.PublicKey,
		PrivateKeyPEM:    device.PrivateKey,
		SignatureCounter: device.SignatureCounter,
		Status:           string(device.Status),
		CreatedAt:        device.CreatedAt.UTC(),
	}
}

func deviceFromModel(model DeviceModel) domain.Device {
	return domain.Device{
		ID:               model.ID,
		Label:            model.Label,
		Algorithm:        domain.Algorithm(model.Algorithm),
		PublicKey:        model.PublicKeyPEM,
		PrivateKey:       model.PrivateKeyPEM,
		SignatureCounter: model.SignatureCounter,
		Status:           domain.DeviceStatus(model.Status),
		CreatedAt:        model.CreatedAt.UTC(),
	}
}

func transactionModelFromDomain(tx domain.Transaction) TransactionModel {
	return TransactionModel{
		ID:                tx.ID,
		DeviceID:          tx.DeviceID,
		Counter:           tx.Counter,
		Timestamp:         tx.Timestamp.UTC(),
		Data:              tx.Data,
		PreviousSignature: tx.PreviousSignature,
		SignedData:        tx.SignedData,
		Signature:         tx.Signature,
	}
}

func transactionFromModel(model TransactionModel) domain.Transaction {
	return domain.Transaction{
		ID:                model.ID,
		DeviceID:          model.DeviceID,
		Counter:           model.Counter,
		Timestamp:         model.Timestamp.UTC(),
		Data:              model.Data,
		PreviousSignature: model.PreviousSignature,
		SignedData:        model.SignedData,
		Signature:         model.Signature,
	}
}
