package domain

// Signer holds one device key pair. Verify never fails loudly: any mismatch,
// including a malformed signature, is reported as false.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
	Verify(payload, signature []byte) bool
	Algorithm() Algorithm
	PublicKeyPEM() string
}

// Verifier is the public half of a Signer, used where only the public key is known.
type Verifier interface {
	Verify(payload, signature []byte) bool
}

type KeyPair struct {
	Algorithm     Algorithm
	PublicKeyPEM  string
	PrivateKeyPEM string
}
