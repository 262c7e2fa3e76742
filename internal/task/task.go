// Package task implements the two long-running producer shapes this
// system drives: feeders, which push price updates to the oracle
// contract, and alarm pollers, which dispatch due alarms from a time or
// price alarm contract. Both build a tx body, wrap it in a package, and
// hand it to the broadcaster through the transaction queue.
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/broadcast"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/chain"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/contract"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/dex"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/txqueue"
)

// State is a task's position in the supervisor's lifecycle.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateRestarting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateRestarting:
		return "restarting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// NodeQueryClient is the node-client surface a task needs for its own
// chain-side queries (alarm status, contract state); it deliberately
// excludes broadcast/simulate, which only the broadcaster touches.
type NodeQueryClient interface {
	QueryWasm(ctx context.Context, address string, query []byte) ([]byte, error)
}

// Runnable is anything the supervisor can start and that reports its exit
// via a returned error. Both Feeder and AlarmPoller satisfy it.
type Runnable interface {
	Run(ctx context.Context, sender txqueue.Sender) error
}

// Descriptor names a task for logging and supervisor bookkeeping. It does
// not carry enough to construct the task; that's done from a
// CreationContext plus protocol-specific configuration the supervisor
// resolves from the admin contract.
type Descriptor struct {
	Name                string
	IdleDuration        time.Duration
	TimeoutDuration     time.Duration
	DurationBeforeStart time.Duration
}

// CreationContext is shared across every task the supervisor spawns: the
// main chain's node client and signer address, plus a pool of DEX node
// clients keyed by network so two feeders on the same network reuse one
// connection, the idiom the original's `into_task` keys its
// `dex_node_clients` map by.
type CreationContext struct {
	NodeClient     NodeQueryClient
	SignerAddress  string
	DexNodeClients map[string]NodeQueryClient
	Log            zerolog.Logger
}

// DexNodeClient returns the shared client for a network, failing if none
// has been registered — task construction is expected to populate this map
// before a feeder task is built, mirroring the source's lazy
// connect-or-reuse entry API but without a connect step baked into this
// package (node dialing is internal/chain's job).
func (c *CreationContext) DexNodeClient(network string) (NodeQueryClient, error) {
	client, ok := c.DexNodeClients[network]
	if !ok {
		return nil, fmt.Errorf("no dex node client registered for network %q", network)
	}

	return client, nil
}

// buildExecuteQuery wraps an inner JSON payload into a single-message
// contract.Tx addressed to contractAddr, ready for Sign/SignWithAdjustment.
func buildExecuteQuery(senderAddress, contractAddr string, msg []byte) (chain.TxBody, error) {
	tx := contract.NewTx(senderAddress)

	if err := tx.AddMessage(contractAddr, msg, nil); err != nil {
		return chain.TxBody{}, err
	}

	messages, err := tx.Commit()
	if err != nil {
		return chain.TxBody{}, err
	}

	return chain.TxBody{Messages: messages}, nil
}

// enqueueAndAwait pushes a package onto the queue and blocks until either
// feedback arrives or the channel closes (the broadcaster gave up on the
// package when it expired). This is the one place a task suspends on the pipeline, which
// is what keeps a task's outstanding-package count at most one.
func enqueueAndAwait(sender txqueue.Sender, pkg txqueue.TxPackage) (chain.TxResponse, bool) {
	sender.Send(pkg)

	response, ok := <-pkg.FeedbackChan

	return response, ok
}

func newPackage(body chain.TxBody, source string, hardGasLimit, fallbackGas chain.Gas, timeout time.Duration) txqueue.TxPackage {
	return txqueue.NewTxPackage(body, source, hardGasLimit, fallbackGas, broadcast.NewTimeBased(timeout))
}
