package db

import "time"

type DeviceModel struct {
	ID               string    `gorm:"type:uuid;primaryKey"`
	Label            string    `gorm:"not null"`
	Algorithm        string    `gorm:"not null"`
	PublicKeyPEM     string    `gorm:"type:text;not null"`
	PrivateKeyPEM    string    `gorm:"type:text;not null"`
	SignatureCounter int64     `gorm:"not null;default:0"`
	Status           string    `gorm:"index;not null"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (DeviceModel) TableName() string {
	return "devices"
}

type TransactionModel struct {
	ID                string    `gorm:"type:uuid;primaryKey"`
	DeviceID          string    `gorm:"type:uuid;not null;uniqueIndex:idx_transactions_device_counter,priority:1"`
	Counter           int64     `gorm:"not null;uniqueIndex:idx_transactions_device_counter,priority:2"`
	Timestamp         time.Time `gorm:"not null"`
	Data              string    `gorm:"type:text;not null"`
	PreviousSignature string    `gorm:"type:text;not null"`
	SignedData        string    `gorm:"type:text;not null"`
	Signature         string    `gorm:"type:text;not null"`
}

func (TransactionModel) TableName() string {
	return "transactions"
}
