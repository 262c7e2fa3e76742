package txqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/chain"
)

func TestQueue_SendRecv(t *testing.T) {
	sender, receiver := New()

	pkg := NewTxPackage(chain.TxBody{Memo: "feeder"}, "osmosis-feeder", 400_000, 250_000, nil)
	sender.Send(pkg)

	got, ok := receiver.Recv()
	require.True(t, ok)
	require.Equal(t, "feeder", got.TxBody.Memo)
	require.Equal(t, chain.Gas(400_000), got.HardGasLimit)
}

func TestQueue_MultipleSendersOneReceiver(t *testing.T) {
	sender, receiver := New()

	for i := 0; i < 3; i++ {
		go sender.Send(NewTxPackage(chain.TxBody{Memo: "task"}, "task", 1, 1, nil))
	}

	for i := 0; i < 3; i++ {
		_, ok := receiver.Recv()
		require.True(t, ok)
	}
}

func TestQueue_FeedbackChannelIsOneShot(t *testing.T) {
	pkg := NewTxPackage(chain.TxBody{}, "task", 1, 1, nil)

	go func() {
		pkg.FeedbackChan <- chain.TxResponse{Code: 0}
	}()

	select {
	case resp := <-pkg.FeedbackChan:
		require.True(t, resp.Ok())
	case <-time.After(time.Second):
		t.Fatal("feedback was never delivered")
	}
}
