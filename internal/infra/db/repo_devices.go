package db

import (
	"context"
	"errors"
	"fmt"

	"chainsign/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

func (r *DeviceRepository) InsertDevice(ctx context.Context, device domain.Device) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := deviceModelFromDomain(device)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: device %s already exists", domain.ErrValidation, device.ID)
		}
		return err
	}
	return nil
}

func (r *DeviceRepository) GetDevice(ctx context.Context, id string) (*domain.Device, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if err := checkID(id, "device"); err != nil {
		return nil, err
	}
	var model DeviceModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		return nil, notFound(err, "device %s", id)
	}
	device := deviceFromModel(model)
	return &device, nil
}

func (r *DeviceRepository) ListDevices(ctx context.Context) ([]domain.Device, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []DeviceModel
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Device, 0, len(models))
	for _, model := range models {
		out = append(out, deviceFromModel(model))
	}
	return out, nil
}

// DeactivateDevice takes the device row lock so it cannot interleave with a counter update.
func (r *DeviceRepository) DeactivateDevice(ctx context.Context, id string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockDevice(tx, id); err != nil {
			return err
		}
		return tx.Model(&DeviceModel{}).
			Where("id = ?", id).
			Update("status", string(domain.DeviceStatusDeactivated)).Error
	})
}

func lockDevice(tx *gorm.DB, id string) (DeviceModel, error) {
	if err := checkID(id, "device"); err != nil {
		return DeviceModel{}, err
	}
	var model DeviceModel
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&model).Error; err != nil {
		return DeviceModel{}, notFound(err, "device %s", id)
	}
	return model, nil
}
