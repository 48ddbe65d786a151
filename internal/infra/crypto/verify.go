package crypto

import (
	"bytes"

	"github.com/sigstore/sigstore/pkg/signature"
)

type verifierFunc func(payload, sig []byte) bool

func (f verifierFunc) Verify(payload, sig []byte) bool { return f(payload, sig) }

// verifyQuietly maps every verification failure, panics from malformed input included, to false.
func verifyQuietly(v signature.Verifier, payload, sig []byte) (ok bool) {
	if len(sig) == 0 {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return v.VerifySignature(bytes.NewReader(sig), bytes.NewReader(payload)) == nil
}
