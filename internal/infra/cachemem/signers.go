package cachemem

import (
	"sync"

	"chainsign/internal/domain"
	"chainsign/internal/usecase"
)

// Signers keeps parsed device signers so the private key PEM is decoded once per device.
type Signers struct {
	mu      sync.Mutex
	entries map[string]domain.Signer
	max     int
}

func NewSigners(max int) *Signers {
	if max <= 0 {
		max = 4096
	}
	return &Signers{
		entries: make(map[string]domain.Signer),
		max:     max,
	}
}

func (c *Signers) Get(deviceID string) (domain.Signer, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	signer, ok := c.entries[deviceID]
	return signer, ok
}

func (c *Signers) Put(deviceID string, signer domain.Signer) {
	if c == nil || signer == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[deviceID]; !ok && len(c.entries) >= c.max {
		// Evict an arbitrary entry; a miss only costs a PEM parse.
		for key := range c.entries {
			delete(c.entries, key)
			break
		}
	}
	c.entries[deviceID] = signer
}

func (c *Signers) Delete(deviceID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, deviceID)
}

func (c *Signers) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

var _ usecase.SignerCache = (*Signers)(nil)
