package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"chainsign/internal/domain"
	cryptoinfra "chainsign/internal/infra/crypto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifyAgainstPublicKey(t *testing.T, device domain.Device, tx domain.Transaction) bool {
	t.Helper()
	verifier, err := cryptoinfra.VerifierFromPEM(device.Algorithm, device.PublicKey)
	require.NoError(t, err)
	raw, err := domain.DecodeSignature(tx.Signature)
	require.NoError(t, err)
	return verifier.Verify([]byte(tx.SignedData), raw)
}

func TestCreateTransactionChainIntegrity(t *testing.T) {
	for _, alg := range []domain.Algorithm{domain.AlgorithmRSA, domain.AlgorithmECC} {
		t.Run(string(alg), func(t *testing.T) {
			h := newHarness(t)
			device := h.register(t, alg)

			const n = 5
			txs := make([]domain.Transaction, 0, n)
			for i := 0; i < n; i++ {
				tx, err := h.engine.CreateTransaction(context.Background(), device.ID, fmt.Sprintf("receipt-%d", i))
				require.NoError(t, err)
				txs = append(txs, tx)
			}

			for i, tx := range txs {
				assert.Equal(t, int64(i), tx.Counter)
				assert.Equal(t, device.ID, tx.DeviceID)
				if i == 0 {
					assert.Equal(t, domain.GenesisSignature(device.ID), tx.PreviousSignature)
				} else {
					assert.Equal(t, txs[i-1].Signature, tx.PreviousSignature)
				}
				assert.True(t, tx.Consistent())
				assert.True(t, verifyAgainstPublicKey(t, device, tx))
			}

			got, err := h.registry.Get(context.Background(), device.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(n), got.SignatureCounter)
			assert.Equal(t, n, h.observer.committed)
		})
	}
}

func TestCreateTransactionScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	device := h.register(t, domain.AlgorithmECC)
	require.Equal(t, int64(0), device.SignatureCounter)
	require.Equal(t, domain.DeviceStatusActive, device.Status)

	first, err := h.engine.CreateTransaction(ctx, device.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.Counter)
	assert.Equal(t, domain.GenesisSignature(device.ID), first.PreviousSignature)

	second, err := h.engine.CreateTransaction(ctx, device.ID, "world")
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Counter)
	assert.Equal(t, first.Signature, second.PreviousSignature)

	require.NoError(t, h.registry.Deactivate(ctx, device.ID))
	_, err = h.engine.CreateTransaction(ctx, device.ID, "x")
	assert.ErrorIs(t, err, domain.ErrDeviceInactive)

	got, err := h.registry.Get(ctx, device.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.SignatureCounter)

	txs, err := h.query.List(ctx, device.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	assert.Equal(t, 1, h.observer.failures("device_inactive"))
}

func TestCreateTransactionDataWithSeparator(t *testing.T) {
	h := newHarness(t)
	device := h.register(t, domain.AlgorithmECC)

	tx, err := h.engine.CreateTransaction(context.Background(), device.ID, "a_b__c")
	require.NoError(t, err)

	parsed, err := domain.ParseSecuredData(tx.SignedData)
	require.NoError(t, err)
	assert.Equal(t, "a_b__c", parsed.Data)
	assert.Equal(t, int64(0), parsed.Counter)
	assert.Equal(t, tx.PreviousSignature, parsed.PreviousSignature)
}

func TestCreateTransactionUnknownDevice(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.CreateTransaction(context.Background(), "missing", "hello")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateTransactionConcurrentSameDevice(t *testing.T) {
	h := newHarness(t)
	device := h.register(t, domain.AlgorithmECC)

	const n = 32
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.engine.CreateTransaction(context.Background(), device.ID, fmt.Sprintf("payload-%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	txs, err := h.query.List(context.Background(), device.ID)
	require.NoError(t, err)
	require.Len(t, txs, n)
	counters := make([]int, 0, n)
	for _, tx := range txs {
		counters = append(counters, int(tx.Counter))
	}
	sort.Ints(counters)
	for i, c := range counters {
		assert.Equal(t, i, c)
	}

	report, err := h.verifier.Verify(context.Background(), device.ID)
	require.NoError(t, err)
	assert.True(t, report.Valid, report.Reason)
	assert.Equal(t, n, report.Length)
}

func TestCreateTransactionConcurrentDevicesIndependent(t *testing.T) {
	h := newHarness(t)
	devices := []domain.Device{h.register(t, domain.AlgorithmECC), h.register(t, domain.AlgorithmECC), h.register(t, domain.AlgorithmECC)}

	const perDevice = 8
	var wg sync.WaitGroup
	for _, device := range devices {
		for i := 0; i < perDevice; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := h.engine.CreateTransaction(context.Background(), id, "x")
				assert.NoError(t, err)
			}(device.ID)
		}
	}
	wg.Wait()

	for _, device := range devices {
		got, err := h.registry.Get(context.Background(), device.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(perDevice), got.SignatureCounter)
	}
}

func TestCreateTransactionSigningFailureLeavesNoState(t *testing.T) {
	h := newHarness(t)
	h.keys.failSign = true
	device := h.register(t, domain.AlgorithmRSA)

	_, err := h.engine.CreateTransaction(context.Background(), device.ID, "hello")
	assert.ErrorIs(t, err, domain.ErrSigning)

	got, err := h.registry.Get(context.Background(), device.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.SignatureCounter)
	txs, err := h.query.List(context.Background(), device.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestCreateTransactionPersistenceFailureLeavesNoState(t *testing.T) {
	h := newHarness(t)
	device := h.register(t, domain.AlgorithmECC)
	first, err := h.engine.CreateTransaction(context.Background(), device.ID, "one")
	require.NoError(t, err)

	h.repo.failCommit = errors.New("connection reset")
	_, err = h.engine.CreateTransaction(context.Background(), device.ID, "two")
	assert.ErrorIs(t, err, domain.ErrPersistence)

	got, err := h.registry.Get(context.Background(), device.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.SignatureCounter)

	// A retry is a new transaction chained onto the last committed one.
	h.repo.failCommit = nil
	retry, err := h.engine.CreateTransaction(context.Background(), device.ID, "two")
	require.NoError(t, err)
	assert.Equal(t, int64(1), retry.Counter)
	assert.Equal(t, first.Signature, retry.PreviousSignature)
}

func TestCreateTransactionLockTimeout(t *testing.T) {
	h := newHarness(t)
	device := h.register(t, domain.AlgorithmECC)
	h.registry.LockTimeout = 20 * time.Millisecond

	release, err := h.locker.Lock(context.Background(), device.ID)
	require.NoError(t, err)

	_, err = h.engine.CreateTransaction(context.Background(), device.ID, "hello")
	assert.ErrorIs(t, err, domain.ErrConcurrency)
	release()

	got, err := h.registry.Get(context.Background(), device.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.SignatureCounter)

	_, err = h.engine.CreateTransaction(context.Background(), device.ID, "hello")
	require.NoError(t, err)
}

func TestCreateTransactionCancelledCaller(t *testing.T) {
	h := newHarness(t)
	device := h.register(t, domain.AlgorithmECC)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.engine.CreateTransaction(ctx, device.ID, "hello")
	assert.ErrorIs(t, err, domain.ErrConcurrency)

	txs, err := h.query.List(context.Background(), device.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestCreateTransactionPolicyDeny(t *testing.T) {
	h := newHarness(t)
	device := h.register(t, domain.AlgorithmECC)
	h.registry.Policy = denyAll{reasons: []string{"data exceeds 4 bytes"}}

	_, err := h.engine.CreateTransaction(context.Background(), device.ID, "hello")
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := h.registry.Get(context.Background(), device.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.SignatureCounter)
}

func TestCreateTransactionDetectsBrokenChain(t *testing.T) {
	h := newHarness(t)
	device := h.register(t, domain.AlgorithmECC)
	_, err := h.engine.CreateTransaction(context.Background(), device.ID, "one")
	require.NoError(t, err)

	stored, err := h.repo.GetDevice(context.Background(), device.ID)
	require.NoError(t, err)
	broken := *stored
	broken.ID = "broken-device"
	// counter ahead of the stored chain
	broken.SignatureCounter = 3
	require.NoError(t, h.repo.Store.InsertDevice(context.Background(), broken))

	_, err = h.engine.CreateTransaction(context.Background(), broken.ID, "two")
	assert.ErrorIs(t, err, domain.ErrChainBroken)
}
