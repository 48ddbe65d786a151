package cachemem

import (
	"testing"

	"chainsign/internal/domain"
)

type stubSigner struct{ name string }

func (stubSigner) Sign([]byte) ([]byte, error) { return nil, nil }
func (stubSigner) Verify([]byte, []byte) bool  { return false }
func (stubSigner) Algorithm() domain.Algorithm { return domain.AlgorithmECC }
func (s stubSigner) PublicKeyPEM() string      { return s.name }

func TestSignersPutGetDelete(t *testing.T) {
	cache := NewSigners(0)
	cache.Put("a", stubSigner{name: "a"})
	got, ok := cache.Get("a")
	if !ok || got.PublicKeyPEM() != "a" {
		t.Fatalf("expected cached signer, got %v %v", got, ok)
	}
	cache.Delete("a")
	if _, ok := cache.Get("a"); ok {
		t.Fatalf("expected signer to be evicted")
	}
}

func TestSignersBounded(t *testing.T) {
	cache := NewSigners(2)
	cache.Put("a", stubSigner{})
	cache.Put("b", stubSigner{})
	cache.Put("c", stubSigner{})
	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
	if _, ok := cache.Get("c"); !ok {
		t.Fatalf("expected newest entry to be kept")
	}
}

func TestSignersNilSafe(t *testing.T) {
	var cache *Signers
	cache.Put("a", stubSigner{})
	if _, ok := cache.Get("a"); ok {
		t.Fatalf("nil cache must miss")
	}
}
