package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chainsign/internal/domain"
	"chainsign/internal/infra/cachemem"
	cryptoinfra "chainsign/internal/infra/crypto"
	"chainsign/internal/infra/lock"
	"chainsign/internal/infra/memstore"
	"chainsign/internal/usecase"

	"github.com/stretchr/testify/require"
)

type harness struct {
	repo     *faultyRepo
	keys     *faultyKeys
	locker   *lock.Local
	registry *usecase.DeviceRegistry
	engine   *usecase.ChainEngine
	query    *usecase.TransactionQuery
	verifier *usecase.ChainVerifier
	observer *countingObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	svc, err := cryptoinfra.NewService(cryptoinfra.Options{})
	require.NoError(t, err)

	repo := &faultyRepo{Store: memstore.New()}
	keys := &faultyKeys{inner: svc}
	locker := lock.NewLocal()
	observer := &countingObserver{}

	var seq atomic.Int64
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	registry := usecase.NewDeviceRegistry(repo, keys, locker)
	registry.Signers = cachemem.NewSigners(0)
	registry.LockTimeout = time.Second
	registry.Observer = observer
	registry.Clock = func() time.Time {
		return clock.Add(time.Duration(seq.Load()) * time.Millisecond)
	}
	registry.IDs = func() string {
		n := seq.Add(1)
		return fmt.Sprintf("00000000-0000-4000-8000-%012d", n)
	}

	return &harness{
		repo:     repo,
		keys:     keys,
		locker:   locker,
		registry: registry,
		engine:   usecase.NewChainEngine(registry),
		query:    usecase.NewTransactionQuery(repo),
		verifier: usecase.NewChainVerifier(repo, keys),
		observer: observer,
	}
}

func (h *harness) register(t *testing.T, alg domain.Algorithm) domain.Device {
	t.Helper()
	device, err := h.registry.Register(context.Background(), "till "+string(alg), string(alg))
	require.NoError(t, err)
	return device
}

// faultyRepo injects failures into the commit and insert paths of an in-memory store.
type faultyRepo struct {
	*memstore.Store
	failCommit error
	failInsert error
}

func (r *faultyRepo) InsertDevice(ctx context.Context, device domain.Device) error {
	if r.failInsert != nil {
		return r.failInsert
	}
	return r.Store.InsertDevice(ctx, device)
}

func (r *faultyRepo) UpdateCounterAndInsertTransaction(ctx context.Context, deviceID string, newCounter int64, tx domain.Transaction) error {
	if r.failCommit != nil {
		return r.failCommit
	}
	return r.Store.UpdateCounterAndInsertTransaction(ctx, deviceID, newCounter, tx)
}

type faultyKeys struct {
	inner        usecase.KeyPairFactory
	failGenerate bool
	failSign     bool
	failLoad     bool
	failVerifier bool
}

func (k *faultyKeys) Generate(alg domain.Algorithm) (domain.KeyPair, error) {
	if k.failGenerate {
		return domain.KeyPair{}, errors.New("entropy exhausted")
	}
	return k.inner.Generate(alg)
}

func (k *faultyKeys) Signer(alg domain.Algorithm, privateKeyPEM string) (domain.Signer, error) {
	if k.failLoad {
		return nil, errors.New("pem: no key found")
	}
	signer, err := k.inner.Signer(alg, privateKeyPEM)
	if err != nil {
		return nil, err
	}
	if k.failSign {
		return brokenSigner{Signer: signer}, nil
	}
	return signer, nil
}

func (k *faultyKeys) Verifier(alg domain.Algorithm, publicKeyPEM string) (domain.Verifier, error) {
	if k.failVerifier {
		return nil, fmt.Errorf("%w: public key PEM is truncated", domain.ErrValidation)
	}
	return k.inner.Verifier(alg, publicKeyPEM)
}

type brokenSigner struct {
	domain.Signer
}

func (brokenSigner) Sign([]byte) ([]byte, error) {
	return nil, errors.New("hsm unavailable")
}

type countingObserver struct {
	mu         sync.Mutex
	registered int
	committed  int
	failed     map[string]int
}

func (o *countingObserver) DeviceRegistered(domain.Algorithm) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registered++
}

func (o *countingObserver) TransactionCommitted(domain.Algorithm, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.committed++
}

func (o *countingObserver) TransactionFailed(_ domain.Algorithm, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failed == nil {
		o.failed = make(map[string]int)
	}
	o.failed[reason]++
}

func (o *countingObserver) LockWaited(time.Duration) {}

func (o *countingObserver) failures(reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failed[reason]
}

type denyAll struct {
	reasons []string
	err     error
}

func (d denyAll) Evaluate(context.Context, domain.AdmissionInput) (domain.AdmissionDecision, error) {
	if d.err != nil {
		return domain.AdmissionDecision{}, d.err
	}
	return domain.AdmissionDecision{Allow: false, Deny: d.reasons}, nil
}
