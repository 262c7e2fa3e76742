package task

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/chain"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/contract"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/txqueue"
)

type scriptedNode struct {
	statusResponses []bool
	statusIdx       int
}

func (s *scriptedNode) QueryWasm(_ context.Context, _ string, query []byte) ([]byte, error) {
	if string(query) == string(contract.AlarmsStatusQuery()) {
		remaining := false
		if s.statusIdx < len(s.statusResponses) {
			remaining = s.statusResponses[s.statusIdx]
			s.statusIdx++
		}

		return json.Marshal(map[string]any{"remaining_for_dispatch": remaining})
	}

	return nil, nil
}

// autoFeedbackBroadcaster drains packages from the queue and answers each
// one with a scripted dispatched_alarms count, standing in for the
// broadcaster in these task-level tests. It returns the number of packages
// answered so far.
func autoFeedbackBroadcaster(t *testing.T, receiver txqueue.Receiver, dispatchedSequence []uint32) *atomic.Int32 {
	t.Helper()

	var answered atomic.Int32

	go func() {
		i := 0
		for {
			pkg, ok := receiver.Recv()
			if !ok {
				return
			}

			dispatched := uint32(0)
			if i < len(dispatchedSequence) {
				dispatched = dispatchedSequence[i]
				i++
			}

			data, _ := json.Marshal(map[string]any{"dispatched_alarms": dispatched})
			answered.Add(1)
			pkg.FeedbackChan <- chain.TxResponse{Code: 0, Data: data}
		}
	}()

	return &answered
}

func TestAlarmPoller_DrainLoop(t *testing.T) {
	node := &scriptedNode{statusResponses: []bool{true}}
	sender, receiver := txqueue.New()

	const maxCount = 25
	dispatchedSequence := []uint32{maxCount, maxCount, maxCount, maxCount - 1}

	answered := autoFeedbackBroadcaster(t, receiver, dispatchedSequence)

	poller := NewAlarmPoller(AlarmConfig{
		Kind:            AlarmKindTime,
		ContractAddress: "nolus1timealarms",
		MaxCount:        maxCount,
		IdleDuration:    time.Second,
		TimeoutDuration: time.Second,
		HardGasLimit:    400_000,
		FallbackGas:     250_000,
	}, &CreationContext{
		NodeClient:    node,
		SignerAddress: "nolus1signer",
		Log:           zerolog.Nop(),
	})

	poller.tick(context.Background(), sender)

	require.Equal(t, int32(4), answered.Load())
}

func TestAlarmPoller_DrainIsIdempotentWhenAlreadyEmpty(t *testing.T) {
	node := &scriptedNode{statusResponses: []bool{true}}
	sender, receiver := txqueue.New()

	autoFeedbackBroadcaster(t, receiver, []uint32{0})

	poller := NewAlarmPoller(AlarmConfig{
		Kind:            AlarmKindPrice,
		ContractAddress: "nolus1pricealarms",
		MaxCount:        25,
		IdleDuration:    time.Second,
		TimeoutDuration: time.Second,
		HardGasLimit:    400_000,
		FallbackGas:     250_000,
	}, &CreationContext{
		NodeClient:    node,
		SignerAddress: "nolus1signer",
		Log:           zerolog.Nop(),
	})

	dispatched, delivered := poller.dispatchOnce(context.Background(), sender)
	require.True(t, delivered)
	require.Equal(t, uint32(0), dispatched)
}

func TestAlarmPoller_SleepsWhenNothingPending(t *testing.T) {
	node := &scriptedNode{statusResponses: []bool{false}}
	sender, receiver := txqueue.New()

	poller := NewAlarmPoller(AlarmConfig{
		Kind:            AlarmKindTime,
		ContractAddress: "nolus1timealarms",
		MaxCount:        25,
		IdleDuration:    time.Second,
		TimeoutDuration: time.Second,
	}, &CreationContext{
		NodeClient:    node,
		SignerAddress: "nolus1signer",
		Log:           zerolog.Nop(),
	})

	poller.tick(context.Background(), sender)

	done := make(chan struct{})
	go func() {
		_, _ = receiver.Recv()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("no package should have been enqueued when no alarms are pending")
	case <-time.After(50 * time.Millisecond):
	}
}
