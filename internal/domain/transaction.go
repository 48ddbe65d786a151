package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const securedDataSeparator = "_"

type Transaction struct {
	ID                string
	DeviceID          string
	Counter           int64
	Timestamp         time.Time
	Data              string
	PreviousSignature string
	SignedData        string
	Signature         string
}

// ComposeSecuredData builds "<counter>_<base64(data)>_<previousSignature>".
// The payload is base64 encoded so that a separator inside data cannot shift the fields.
func ComposeSecuredData(counter int64, data string, previousSignature string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(counter, 10))
	b.WriteString(securedDataSeparator)
	b.WriteString(base64.StdEncoding.EncodeToString([]byte(data)))
	b.WriteString(securedDataSeparator)
	b.WriteString(previousSignature)
	return b.String()
}

type SecuredData struct {
	Counter           int64
	Data              string
	PreviousSignature string
}

func ParseSecuredData(value string) (SecuredData, error) {
	parts := strings.Split(value, securedDataSeparator)
	if len(parts) != 3 {
		return SecuredData{}, fmt.Errorf("%w: secured data must have 3 fields, got %d", ErrValidation, len(parts))
	}
	counter, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || counter < 0 {
		return SecuredData{}, fmt.Errorf("%w: invalid counter %q", ErrValidation, parts[0])
	}
	data, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return SecuredData{}, fmt.Errorf("%w: invalid data encoding", ErrValidation)
	}
	if parts[2] == "" {
		return SecuredData{}, fmt.Errorf("%w: previous signature is empty", ErrValidation)
	}
	return SecuredData{Counter: counter, Data: string(data), PreviousSignature: parts[2]}, nil
}

// ExpectedSignedData re-derives the signed string from the stored fields.
func (t Transaction) ExpectedSignedData() string {
	return ComposeSecuredData(t.Counter, t.Data, t.PreviousSignature)
}

// Consistent reports whether SignedData matches the fields it is derived from.
func (t Transaction) Consistent() bool {
	return t.SignedData == t.ExpectedSignedData()
}

func EncodeSignature(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

func DecodeSignature(value string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signature encoding", ErrValidation)
	}
	return raw, nil
}
