package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"io"
	"strings"

	"chainsign/internal/domain"

	"github.com/sigstore/sigstore/pkg/cryptoutils"
)

const (
	DefaultRSABits = 2048
	minRSABits     = 2048
)

var (
	rsaGenerateKey   = rsa.GenerateKey
	ecdsaGenerateKey = ecdsa.GenerateKey
)

type Options struct {
	RSABits int
	Curve   string
	Rand    io.Reader
}

// Service generates device key pairs and rebuilds signers from stored key material.
type Service struct {
	rsaBits int
	curve   elliptic.Curve
	rand    io.Reader
}

func NewService(opts Options) (*Service, error) {
	bits := opts.RSABits
	if bits == 0 {
		bits = DefaultRSABits
	}
	if bits < minRSABits {
		return nil, fmt.Errorf("rsa key size %d below minimum %d", bits, minRSABits)
	}
	curve, err := ParseCurve(opts.Curve)
	if err != nil {
		return nil, err
	}
	r := opts.Rand
	if r == nil {
		r = rand.Reader
	}
	return &Service{rsaBits: bits, curve: curve, rand: r}, nil
}

func ParseCurve(name string) (elliptic.Curve, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "P-256", "P256":
		return elliptic.P256(), nil
	case "P-384", "P384":
		return elliptic.P384(), nil
	default:
		return nil, fmt.Errorf("unsupported curve %q", name)
	}
}

func (s *Service) Generate(alg domain.Algorithm) (domain.KeyPair, error) {
	var (
		priv crypto.PrivateKey
		pub  crypto.PublicKey
	)
	switch alg {
	case domain.AlgorithmRSA:
		key, err := rsaGenerateKey(s.rand, s.rsaBits)
		if err != nil {
			return domain.KeyPair{}, fmt.Errorf("%w: rsa: %w", domain.ErrKeyGeneration, err)
		}
		priv, pub = key, &key.PublicKey
	case domain.AlgorithmECC:
		key, err := ecdsaGenerateKey(s.curve, s.rand)
		if err != nil {
			return domain.KeyPair{}, fmt.Errorf("%w: ecdsa: %w", domain.ErrKeyGeneration, err)
		}
		priv, pub = key, &key.PublicKey
	default:
		return domain.KeyPair{}, fmt.Errorf("%w: unsupported algorithm %q", domain.ErrKeyGeneration, alg)
	}

	privPEM, err := cryptoutils.MarshalPrivateKeyToPEM(priv)
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("%w: encode private key: %w", domain.ErrKeyGeneration, err)
	}
	pubPEM, err := cryptoutils.MarshalPublicKeyToPEM(pub)
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("%w: encode public key: %w", domain.ErrKeyGeneration, err)
	}
	return domain.KeyPair{
		Algorithm:     alg,
		PublicKeyPEM:  string(pubPEM),
		PrivateKeyPEM: string(privPEM),
	}, nil
}

// Signer parses a stored private key. A key that does not match alg is reported as ErrSigning.
func (s *Service) Signer(alg domain.Algorithm, privateKeyPEM string) (domain.Signer, error) {
	priv, err := cryptoutils.UnmarshalPEMToPrivateKey([]byte(privateKeyPEM), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decode private key: %w", domain.ErrSigning, err)
	}
	switch alg {
	case domain.AlgorithmRSA:
		key, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: expected rsa key, got %T", domain.ErrSigning, priv)
		}
		return NewRSASigner(key)
	case domain.AlgorithmECC:
		key, ok := priv.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: expected ecdsa key, got %T", domain.ErrSigning, priv)
		}
		return NewECDSASigner(key)
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", domain.ErrSigning, alg)
	}
}

// Verifier builds a public-key-only verifier, used by chain verification.
func (s *Service) Verifier(alg domain.Algorithm, publicKeyPEM string) (domain.Verifier, error) {
	return VerifierFromPEM(alg, publicKeyPEM)
}

func VerifierFromPEM(alg domain.Algorithm, publicKeyPEM string) (domain.Verifier, error) {
	pub, err := cryptoutils.UnmarshalPEMToPublicKey([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("%w: decode public key: %w", domain.ErrValidation, err)
	}
	switch alg {
	case domain.AlgorithmRSA:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: expected rsa public key, got %T", domain.ErrValidation, pub)
		}
		return newRSAVerifier(key)
	case domain.AlgorithmECC:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: expected ecdsa public key, got %T", domain.ErrValidation, pub)
		}
		return newECDSAVerifier(key)
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", domain.ErrValidation, alg)
	}
}

func hashForCurve(curve elliptic.Curve) crypto.Hash {
	if curve == elliptic.P384() {
		return crypto.SHA384
	}
	return crypto.SHA256
}
