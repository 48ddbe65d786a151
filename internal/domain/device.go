package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

type Algorithm string

const (
	AlgorithmRSA Algorithm = "RSA"
	AlgorithmECC Algorithm = "ECC"
)

// ParseAlgorithm accepts the canonical names case-insensitively.
func ParseAlgorithm(value string) (Algorithm, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(AlgorithmRSA):
		return AlgorithmRSA, nil
	case string(AlgorithmECC):
		return AlgorithmECC, nil
	default:
		return "", fmt.Errorf("%w: unsupported algorithm %q", ErrValidation, value)
	}
}

func (a Algorithm) Valid() bool {
	return a == AlgorithmRSA || a == AlgorithmECC
}

type DeviceStatus string

const (
	DeviceStatusActive      DeviceStatus = "active"
	DeviceStatusDeactivated DeviceStatus = "deactivated"
)

type Device struct {
	ID               string
	Label            string
	Algorithm        Algorithm
	PublicKey        string
	PrivateKey       string
	SignatureCounter int64
	Status           DeviceStatus
	CreatedAt        time.Time
}

func (d Device) Active() bool {
	return d.Status == DeviceStatusActive
}

// Validate checks the registration-time invariants of a device record.
func (d Device) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: device id is required", ErrValidation)
	}
	if strings.TrimSpace(d.Label) == "" {
		return fmt.Errorf("%w: label is required", ErrValidation)
	}
	if !d.Algorithm.Valid() {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrValidation, d.Algorithm)
	}
	if d.PublicKey == "" || d.PrivateKey == "" {
		return fmt.Errorf("%w: key material is required", ErrValidation)
	}
	if d.SignatureCounter < 0 {
		return fmt.Errorf("%w: signature counter must be non-negative", ErrValidation)
	}
	switch d.Status {
	case DeviceStatusActive, DeviceStatusDeactivated:
	default:
		return fmt.Errorf("%w: unknown device status %q", ErrValidation, d.Status)
	}
	return nil
}

// Public strips the private key; it is the only shape handed out of the signing boundary.
func (d Device) Public() Device {
	d.PrivateKey = ""
	return d
}

// GenesisSignature is the previousSignature value of a device's first transaction.
func GenesisSignature(deviceID string) string {
	return base64.StdEncoding.EncodeToString([]byte(deviceID))
}
