package db

import (
	"context"
	"errors"
	"fmt"

	"chainsign/internal/domain"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// UpdateCounterAndInsertTransaction locks the device row, checks that the stored counter is the
// one the transaction was built from, then advances it and inserts the transaction in the same
// database transaction.
func (r *TransactionRepository) UpdateCounterAndInsertTransaction(ctx context.Context, deviceID string, newCounter int64, txn domain.Transaction) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if txn.DeviceID != deviceID {
		return fmt.Errorf("%w: transaction device %s does not match %s", domain.ErrValidation, txn.DeviceID, deviceID)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		device, err := lockDevice(tx, deviceID)
		if err != nil {
			return err
		}
		if device.Status != string(domain.DeviceStatusActive) {
			return fmt.Errorf("%w: device %s is deactivated", domain.ErrDeviceInactive, deviceID)
		}
		if device.SignatureCounter != newCounter-1 || txn.Counter != device.SignatureCounter {
			return fmt.Errorf("%w: device %s counter is %d, update expected %d", domain.ErrConcurrency, deviceID, device.SignatureCounter, newCounter-1)
		}

		res := tx.Model(&DeviceModel{}).
			Where("id = ? AND signature_counter = ?", deviceID, newCounter-1).
			Update("signature_counter", newCounter)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("%w: device %s counter moved", domain.ErrConcurrency, deviceID)
		}

		model := transactionModelFromDomain(txn)
		if err := tx.Create(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: transaction %d already exists for device %s", domain.ErrConcurrency, txn.Counter, deviceID)
			}
			return err
		}
		return nil
	})
}

func (r *TransactionRepository) GetLastTransaction(ctx context.Context, deviceID string) (*domain.Transaction, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if checkID(deviceID, "device") != nil {
		return nil, nil
	}
	var models []TransactionModel
	if err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("counter DESC").
		Limit(1).
		Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	out := transactionFromModel(models[0])
	return &out, nil
}

func (r *TransactionRepository) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if err := checkID(id, "transaction"); err != nil {
		return nil, err
	}
	var model TransactionModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		return nil, notFound(err, "transaction %s", id)
	}
	out := transactionFromModel(model)
	return &out, nil
}

func (r *TransactionRepository) ListTransactions(ctx context.Context, deviceID string) ([]domain.Transaction, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx)
	if deviceID != "" {
		if err := checkID(deviceID, "device"); err != nil {
			return nil, err
		}
		query = query.Where("device_id = ?", deviceID).Order("counter ASC")
	} else {
		query = query.Order("device_id ASC, counter ASC")
	}
	var models []TransactionModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Transaction, 0, len(models))
	for _, model := range models {
		out = append(out, transactionFromModel(model))
	}
	return out, nil
}
