package crypto

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"fmt"

	"chainsign/internal/domain"

	"github.com/sigstore/sigstore/pkg/cryptoutils"
	"github.com/sigstore/sigstore/pkg/signature"
)

// RSASigner signs with RSASSA-PKCS1-v1_5 over SHA-256.
type RSASigner struct {
	sv     *signature.RSAPKCS1v15SignerVerifier
	pubPEM string
}

func NewRSASigner(priv *rsa.PrivateKey) (*RSASigner, error) {
	sv, err := signature.LoadRSAPKCS1v15SignerVerifier(priv, crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSigning, err)
	}
	pubPEM, err := cryptoutils.MarshalPublicKeyToPEM(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSigning, err)
	}
	return &RSASigner{sv: sv, pubPEM: string(pubPEM)}, nil
}

func (s *RSASigner) Sign(payload []byte) ([]byte, error) {
	sig, err := s.sv.SignMessage(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSigning, err)
	}
	return sig, nil
}

func (s *RSASigner) Verify(payload, sig []byte) bool {
	return verifyQuietly(s.sv, payload, sig)
}

func (s *RSASigner) Algorithm() domain.Algorithm { return domain.AlgorithmRSA }
func (s *RSASigner) PublicKeyPEM() string        { return s.pubPEM }

func newRSAVerifier(pub *rsa.PublicKey) (domain.Verifier, error) {
	v, err := signature.LoadRSAPKCS1v15Verifier(pub, crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return verifierFunc(func(payload, sig []byte) bool {
		return verifyQuietly(v, payload, sig)
	}), nil
}

var _ domain.Signer = (*RSASigner)(nil)
