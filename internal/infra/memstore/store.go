package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"chainsign/internal/domain"
	"chainsign/internal/usecase"
)

// Store keeps devices and transactions in process memory. It is the backend used when no
// database DSN is configured and in tests.
type Store struct {
	mu           sync.RWMutex
	devices      map[string]domain.Device
	transactions map[string]domain.Transaction
	chains       map[string][]string
}

func New() *Store {
	return &Store{
		devices:      make(map[string]domain.Device),
		transactions: make(map[string]domain.Transaction),
		chains:       make(map[string][]string),
	}
}

func (s *Store) InsertDevice(ctx context.Context, device domain.Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[device.ID]; ok {
		return fmt.Errorf("%w: device %s already exists", domain.ErrValidation, device.ID)
	}
	s.devices[device.ID] = device
	return nil
}

func (s *Store) GetDevice(ctx context.Context, id string) (*domain.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	device, ok := s.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: device %s", domain.ErrNotFound, id)
	}
	return &device, nil
}

func (s *Store) ListDevices(ctx context.Context) ([]domain.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Device, 0, len(s.devices))
	for _, device := range s.devices {
		out = append(out, device)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) DeactivateDevice(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	device, ok := s.devices[id]
	if !ok {
		return fmt.Errorf("%w: device %s", domain.ErrNotFound, id)
	}
	device.Status = domain.DeviceStatusDeactivated
	s.devices[id] = device
	return nil
}

// UpdateCounterAndInsertTransaction applies both writes under the store mutex, so readers
// observe either neither or both.
func (s *Store) UpdateCounterAndInsertTransaction(ctx context.Context, deviceID string, newCounter int64, tx domain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	device, ok := s.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: device %s", domain.ErrNotFound, deviceID)
	}
	if !device.Active() {
		return fmt.Errorf("%w: device %s is deactivated", domain.ErrDeviceInactive, deviceID)
	}
	if device.SignatureCounter != newCounter-1 || tx.Counter != device.SignatureCounter {
		return fmt.Errorf("%w: device %s counter is %d, update expected %d", domain.ErrConcurrency, deviceID, device.SignatureCounter, newCounter-1)
	}
	if tx.DeviceID != deviceID {
		return fmt.Errorf("%w: transaction device %s does not match %s", domain.ErrValidation, tx.DeviceID, deviceID)
	}
	if _, ok := s.transactions[tx.ID]; ok {
		return fmt.Errorf("%w: transaction %s already exists", domain.ErrConcurrency, tx.ID)
	}
	device.SignatureCounter = newCounter
	s.devices[deviceID] = device
	s.transactions[tx.ID] = tx
	s.chains[deviceID] = append(s.chains[deviceID], tx.ID)
	return nil
}

func (s *Store) GetLastTransaction(ctx context.Context, deviceID string) (*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.chains[deviceID]
	if len(chain) == 0 {
		return nil, nil
	}
	tx := s.transactions[chain[len(chain)-1]]
	return &tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
	}
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, deviceID string) ([]domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if deviceID != "" {
		chain := s.chains[deviceID]
		out := make([]domain.Transaction, 0, len(chain))
		for _, id := range chain {
			out = append(out, s.transactions[id])
		}
		return out, nil
	}
	out := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DeviceID != out[j].DeviceID {
			return out[i].DeviceID < out[j].DeviceID
		}
		return out[i].Counter < out[j].Counter
	})
	return out, nil
}

var _ usecase.Repository = (*Store)(nil)
