package usecase

import (
	"context"
	"errors"
	"fmt"

	"chainsign/internal/domain"
)

type TransactionQuery struct {
	Devices      DeviceRepository
	Transactions TransactionRepository
}

func NewTransactionQuery(repo Repository) *TransactionQuery {
	return &TransactionQuery{Devices: repo, Transactions: repo}
}

func (q *TransactionQuery) Get(ctx context.Context, id string) (domain.Transaction, error) {
	if q == nil || q.Transactions == nil {
		return domain.Transaction{}, errors.New("transaction repository is required")
	}
	if id == "" {
		return domain.Transaction{}, fmt.Errorf("%w: transaction id is required", domain.ErrValidation)
	}
	tx, err := q.Transactions.GetTransaction(ctx, id)
	if err != nil {
		return domain.Transaction{}, storeError(err)
	}
	if tx == nil {
		return domain.Transaction{}, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
	}
	return *tx, nil
}

// List returns committed transactions, optionally restricted to one existing device.
func (q *TransactionQuery) List(ctx context.Context, deviceID string) ([]domain.Transaction, error) {
	if q == nil || q.Transactions == nil {
		return nil, errors.New("transaction repository is required")
	}
	if deviceID != "" && q.Devices != nil {
		device, err := q.Devices.GetDevice(ctx, deviceID)
		if err != nil {
			return nil, storeError(err)
		}
		if device == nil {
			return nil, fmt.Errorf("%w: device %s", domain.ErrNotFound, deviceID)
		}
	}
	txs, err := q.Transactions.ListTransactions(ctx, deviceID)
	if err != nil {
		return nil, storeError(err)
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return txs, nil
}
