package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"chainsign/internal/domain"

	"github.com/sigstore/sigstore/pkg/cryptoutils"
	"github.com/sigstore/sigstore/pkg/signature"
)

// ECDSASigner produces ASN.1 DER signatures; SHA-256 on P-256, SHA-384 on P-384.
type ECDSASigner struct {
	sv     *signature.ECDSASignerVerifier
	pubPEM string
}

func NewECDSASigner(priv *ecdsa.PrivateKey) (*ECDSASigner, error) {
	sv, err := signature.LoadECDSASignerVerifier(priv, hashForCurve(priv.Curve))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSigning, err)
	}
	pubPEM, err := cryptoutils.MarshalPublicKeyToPEM(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSigning, err)
	}
	return &ECDSASigner{sv: sv, pubPEM: string(pubPEM)}, nil
}

func (s *ECDSASigner) Sign(payload []byte) ([]byte, error) {
	sig, err := s.sv.SignMessage(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSigning, err)
	}
	return sig, nil
}

func (s *ECDSASigner) Verify(payload, sig []byte) bool {
	return verifyQuietly(s.sv, payload, sig)
}

func (s *ECDSASigner) Algorithm() domain.Algorithm { return domain.AlgorithmECC }
func (s *ECDSASigner) PublicKeyPEM() string        { return s.pubPEM }

func newECDSAVerifier(pub *ecdsa.PublicKey) (domain.Verifier, error) {
	v, err := signature.LoadECDSAVerifier(pub, hashForCurve(pub.Curve))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return verifierFunc(func(payload, sig []byte) bool {
		return verifyQuietly(v, payload, sig)
	}), nil
}

var _ domain.Signer = (*ECDSASigner)(nil)
