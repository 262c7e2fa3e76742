package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/chain"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/txqueue"
)

// mockSigner is a scriptable stand-in for chain.Signer: it tracks the
// sequence number and every call the broadcaster makes into the signing
// surface, so tests can assert on P1/P2/P3/P5 directly.
type mockSigner struct {
	mu sync.Mutex

	sequence       uint64
	fetchSequence  func() uint64
	fetchCalls     int
	signedGasLimit []chain.Gas
}

func (m *mockSigner) Sign(_ chain.TxBody, gasLimit chain.Gas) ([]byte, error) {
	m.mu.Lock()
	m.signedGasLimit = append(m.signedGasLimit, gasLimit)
	m.mu.Unlock()

	return []byte("raw-tx"), nil
}

func (m *mockSigner) SignWithAdjustment(_ chain.TxBody, simulatedGas, hardLimit chain.Gas) ([]byte, error) {
	gasLimit := simulatedGas
	if gasLimit > hardLimit {
		gasLimit = hardLimit
	}

	m.mu.Lock()
	m.signedGasLimit = append(m.signedGasLimit, gasLimit)
	m.mu.Unlock()

	return []byte("raw-tx"), nil
}

func (m *mockSigner) IncrementSequenceNumber() {
	m.mu.Lock()
	m.sequence++
	m.mu.Unlock()
}

func (m *mockSigner) FetchSequenceNumber(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fetchCalls++
	if m.fetchSequence != nil {
		m.sequence = m.fetchSequence()
	}

	return nil
}

func (m *mockSigner) SequenceNumber() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sequence
}

// mockNode scripts a sequence of broadcast outcomes, one per call, and a
// fixed simulated-gas figure.
type mockNode struct {
	mu sync.Mutex

	simulatedGas   chain.Gas
	simulateErr    error
	responses      []chain.TxResponse
	broadcastErrs  []error
	broadcastCalls int
	broadcastDelay time.Duration
}

func (m *mockNode) Simulate(_ context.Context, _ []byte) (chain.GasInfo, error) {
	if m.simulateErr != nil {
		return chain.GasInfo{}, m.simulateErr
	}

	return chain.GasInfo{GasUsed: m.simulatedGas}, nil
}

func (m *mockNode) BroadcastSync(_ context.Context, _ []byte) (chain.TxResponse, error) {
	if m.broadcastDelay > 0 {
		time.Sleep(m.broadcastDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.broadcastCalls
	m.broadcastCalls++

	if idx < len(m.broadcastErrs) && m.broadcastErrs[idx] != nil {
		return chain.TxResponse{}, m.broadcastErrs[idx]
	}

	if idx >= len(m.responses) {
		return chain.TxResponse{Code: 0}, nil
	}

	return m.responses[idx], nil
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestBroadcaster_HappyPathFeeder(t *testing.T) {
	node := &mockNode{simulatedGas: 120_000, responses: []chain.TxResponse{{Code: 0, TxHash: "AAA"}}}
	signer := &mockSigner{sequence: 7}
	sender, receiver := txqueue.New()

	b := New(node, signer, receiver, 0, 0, testLogger())

	pkg := txqueue.NewTxPackage(chain.TxBody{}, "feeder", 400_000, 250_000, NewTimeBased(time.Second))
	sender.Send(pkg)

	go func() { _ = b.broadcastPackage(context.Background(), pkg) }()

	select {
	case resp := <-pkg.FeedbackChan:
		require.True(t, resp.Ok())
	case <-time.After(time.Second):
		t.Fatal("no feedback delivered")
	}

	require.Equal(t, uint64(8), signer.SequenceNumber())
	require.Equal(t, uint8(0), b.consecutiveErrors)
}

func TestBroadcaster_SignatureVerificationRecovery(t *testing.T) {
	node := &mockNode{
		simulatedGas: 100_000,
		responses: []chain.TxResponse{
			{Code: chain.SignatureVerificationFailedCode},
			{Code: chain.SignatureVerificationFailedCode},
			{Code: 0, TxHash: "BBB"},
		},
	}
	signer := &mockSigner{sequence: 3}
	_, receiver := txqueue.New()

	b := New(node, signer, receiver, 0, 0, testLogger())

	pkg := txqueue.NewTxPackage(chain.TxBody{}, "feeder", 400_000, 250_000, NewTimeBased(time.Second))

	require.NoError(t, b.broadcastPackage(context.Background(), pkg))

	require.Equal(t, 3, node.broadcastCalls)
	require.Equal(t, uint64(6), signer.SequenceNumber())
	require.LessOrEqual(t, b.consecutiveErrors, uint8(1))

	resp := <-pkg.FeedbackChan
	require.True(t, resp.Ok())
}

func TestBroadcaster_ErrorBudgetRefresh(t *testing.T) {
	responses := make([]chain.TxResponse, 5)
	for i := range responses {
		responses[i] = chain.TxResponse{Code: 11}
	}

	node := &mockNode{simulatedGas: 100_000, responses: responses}
	signer := &mockSigner{sequence: 0, fetchSequence: func() uint64 { return 99 }}
	_, receiver := txqueue.New()

	b := New(node, signer, receiver, 0, 0, testLogger())

	for i := 0; i < 5; i++ {
		pkg := txqueue.NewTxPackage(chain.TxBody{}, "feeder", 400_000, 250_000, NewTimeBased(time.Second))
		require.NoError(t, b.broadcastPackage(context.Background(), pkg))

		resp := <-pkg.FeedbackChan
		require.Equal(t, uint32(11), resp.Code)
	}

	require.Equal(t, 1, signer.fetchCalls)
	require.Equal(t, uint8(0), b.consecutiveErrors)
	require.Equal(t, uint64(99), signer.SequenceNumber())
}

func TestBroadcaster_TransportErrorBudgetAdvances(t *testing.T) {
	errs := make([]error, 5)
	for i := range errs {
		errs[i] = errors.New("transport failure")
	}

	node := &mockNode{simulatedGas: 100_000, broadcastErrs: errs}
	signer := &mockSigner{sequence: 0, fetchSequence: func() uint64 { return 42 }}
	_, receiver := txqueue.New()

	b := New(node, signer, receiver, 0, 0, testLogger())

	pkg := txqueue.NewTxPackage(chain.TxBody{}, "feeder", 400_000, 250_000, NewTimeBased(time.Second))
	require.NoError(t, b.broadcastPackage(context.Background(), pkg))

	resp := <-pkg.FeedbackChan
	require.True(t, resp.Ok())

	require.Equal(t, 6, node.broadcastCalls)
	require.Equal(t, 1, signer.fetchCalls)
	require.Equal(t, uint8(0), b.consecutiveErrors)
	require.Equal(t, uint64(43), signer.SequenceNumber())
}

func TestBroadcaster_Expiration(t *testing.T) {
	node := &mockNode{simulatedGas: 100_000, broadcastDelay: 200 * time.Millisecond}
	signer := &mockSigner{sequence: 1}
	_, receiver := txqueue.New()

	b := New(node, signer, receiver, 0, 0, testLogger())

	pkg := txqueue.NewTxPackage(chain.TxBody{}, "feeder", 400_000, 250_000, NewTimeBased(20*time.Millisecond))

	require.NoError(t, b.broadcastPackage(context.Background(), pkg))

	require.Equal(t, uint64(1), signer.SequenceNumber())
	require.Equal(t, uint8(0), b.consecutiveErrors)

	select {
	case _, ok := <-pkg.FeedbackChan:
		if ok {
			t.Fatal("feedback must not be delivered on expiration")
		}
	default:
		t.Fatal("feedback channel must be closed on expiration")
	}
}

func TestBroadcaster_GasAdjustmentBound(t *testing.T) {
	node := &mockNode{simulatedGas: 900_000, responses: []chain.TxResponse{{Code: 0}}}
	signer := &mockSigner{sequence: 0}
	_, receiver := txqueue.New()

	b := New(node, signer, receiver, 0, 0, testLogger())

	pkg := txqueue.NewTxPackage(chain.TxBody{}, "feeder", 500_000, 250_000, NewTimeBased(time.Second))
	require.NoError(t, b.broadcastPackage(context.Background(), pkg))
	<-pkg.FeedbackChan

	require.Len(t, signer.signedGasLimit, 2)
	require.LessOrEqual(t, signer.signedGasLimit[1], chain.Gas(500_000))
}
