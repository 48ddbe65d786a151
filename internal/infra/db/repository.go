package db

import (
	"chainsign/internal/usecase"

	"gorm.io/gorm"
)

// Repository is the PostgreSQL-backed usecase.Repository.
type Repository struct {
	*DeviceRepository
	*TransactionRepository
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		DeviceRepository:      NewDeviceRepository(db),
		TransactionRepository: NewTransactionRepository(db),
	}
}

var _ usecase.Repository = (*Repository)(nil)
