package broadcast

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/chain"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/txqueue"
)

// consecutiveErrorBudget is the number of consecutive non-OK broadcast
// outcomes the broadcaster tolerates before forcing a sequence-number
// resync with the chain.
const consecutiveErrorBudget = 5

// Simulator dry-runs and signs a transaction, the two capabilities the
// broadcaster needs from the signer without depending on its full surface.
type Simulator interface {
	Sign(body chain.TxBody, gasLimit chain.Gas) ([]byte, error)
	SignWithAdjustment(body chain.TxBody, simulatedGas, hardLimit chain.Gas) ([]byte, error)
	IncrementSequenceNumber()
	FetchSequenceNumber(ctx context.Context) error
	SequenceNumber() uint64
}

// NodeBroadcaster is the narrow node-client surface the broadcaster drives.
type NodeBroadcaster interface {
	Simulate(ctx context.Context, signedTxBytes []byte) (chain.GasInfo, error)
	BroadcastSync(ctx context.Context, rawTx []byte) (chain.TxResponse, error)
}

// MetricsRecorder is the narrow counter surface the broadcaster reports to;
// satisfied structurally by *metrics.Recorder without this package
// depending on it. A nil MetricsRecorder (the zero value of a Broadcaster
// built without WithMetrics) disables reporting.
type MetricsRecorder interface {
	IncBroadcast(source, outcome string)
	IncRetry(source string)
	IncSequenceRefresh(source string)
}

// Broadcaster is the transaction pipeline's single consumer: it owns the
// signer and the queue's receiver, and drives every package it receives
// through simulate, sign, broadcast, and retry. There is exactly one
// broadcaster per signing identity, enforced by construction rather than a
// lock: nothing else is handed a reference to the signer.
type Broadcaster struct {
	node              NodeBroadcaster
	signer            Simulator
	receiver          txqueue.Receiver
	delay             time.Duration
	retryDelay        time.Duration
	consecutiveErrors uint8
	log               zerolog.Logger
	metrics           MetricsRecorder
}

// New constructs a Broadcaster bound to a single signer and the receiving
// end of the transaction queue.
func New(node NodeBroadcaster, signer Simulator, receiver txqueue.Receiver, delay, retryDelay time.Duration, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		node:       node,
		signer:     signer,
		receiver:   receiver,
		delay:      delay,
		retryDelay: retryDelay,
		log:        log.With().Str("module", "broadcast").Logger(),
	}
}

// WithMetrics attaches a counter recorder, returning the same Broadcaster
// for chaining at construction time.
func (b *Broadcaster) WithMetrics(m MetricsRecorder) *Broadcaster {
	b.metrics = m
	return b
}

// Run drains the queue, broadcasting each package in turn. It never returns
// nil: it returns an error when the queue is closed or when a package cannot
// be signed, and the supervisor treats either as fatal.
func (b *Broadcaster) Run(ctx context.Context) error {
	for {
		pkg, ok := b.receiver.Recv()
		if !ok {
			return errors.New("transaction receiving channel closed")
		}

		if err := b.broadcastPackage(ctx, pkg); err != nil {
			return errors.Wrap(err, "failed to broadcast transaction")
		}

		time.Sleep(b.delay)
	}
}

// broadcastPackage runs the simulate/sign/broadcast/retry loop for a
// single package until it either succeeds, is rejected for a reason other
// than a stale sequence number, or expires.
func (b *Broadcaster) broadcastPackage(ctx context.Context, pkg txqueue.TxPackage) error {
	for {
		rawTx, err := b.simulateAndSign(ctx, pkg)
		if err != nil {
			return errors.Wrap(err, "failed to simulate and sign transaction")
		}

		response, expired, err := b.broadcastWithExpiration(pkg, rawTx)
		if expired {
			b.log.Error().Str("source", pkg.Source).Msg("transaction expired before being committed to the mempool")
			// Dropping the package: the waiting task observes the closed
			// channel and moves on to its next tick.
			close(pkg.FeedbackChan)
			return nil
		}

		retry := b.processResponse(pkg, response, err)
		if !retry {
			return nil
		}

		time.Sleep(b.retryDelay)
	}
}

// simulateAndSign dry-runs the package's body at the hard gas limit; on
// success it re-signs at the simulated gas (adjusted, capped at the hard
// limit); on simulation failure it falls back to the package's fallback
// gas.
func (b *Broadcaster) simulateAndSign(ctx context.Context, pkg txqueue.TxPackage) ([]byte, error) {
	simulationTx, err := b.signer.Sign(pkg.TxBody, pkg.HardGasLimit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign simulation transaction")
	}

	gasInfo, err := b.node.Simulate(ctx, simulationTx)
	if err != nil {
		b.log.Error().
			Str("source", pkg.Source).
			Uint64("fallback_gas", pkg.FallbackGas).
			Err(err).
			Msg("simulation failed, using fallback gas")

		return b.signer.Sign(pkg.TxBody, pkg.FallbackGas)
	}

	b.log.Info().Str("source", pkg.Source).Uint64("gas", gasInfo.GasUsed).Msg("estimated gas")

	return b.signer.SignWithAdjustment(pkg.TxBody, gasInfo.GasUsed, pkg.HardGasLimit)
}

// broadcastWithExpiration hands the signed bytes to the package's
// expiration policy, which races the broadcast call against its deadline.
func (b *Broadcaster) broadcastWithExpiration(pkg txqueue.TxPackage, rawTx []byte) (response chain.TxResponse, expired bool, err error) {
	response, err = pkg.Expiration.WithExpiration(func() (chain.TxResponse, error) {
		return b.node.BroadcastSync(context.Background(), rawTx)
	})
	if errors.Is(err, ErrExpired) {
		return chain.TxResponse{}, true, nil
	}

	return response, false, err
}

// processResponse classifies a broadcast outcome, updates sequence-number
// and error-budget state, and reports whether the package should be
// retried. It delivers feedback to the originating task exactly once for
// every chain response except a signature-verification failure; a
// transport-level broadcast error delivers no feedback.
func (b *Broadcaster) processResponse(pkg txqueue.TxPackage, response chain.TxResponse, err error) (retry bool) {
	if err != nil {
		b.log.Error().Str("source", pkg.Source).Err(err).Msg("broadcasting transaction failed")

		if b.metrics != nil {
			b.metrics.IncRetry(pkg.Source)
		}

		b.advanceConsecutiveErrors(pkg.Source)

		return true
	}

	if response.Ok() || response.SignatureVerificationFailed() {
		b.signer.IncrementSequenceNumber()
	}

	b.logResponse(pkg.Source, response)

	if response.Ok() {
		b.consecutiveErrors = 0
	} else {
		b.advanceConsecutiveErrors(pkg.Source)
	}

	if b.metrics != nil {
		b.metrics.IncBroadcast(pkg.Source, broadcastOutcome(response))
	}

	if !response.SignatureVerificationFailed() {
		pkg.FeedbackChan <- response
		return false
	}

	return true
}

// advanceConsecutiveErrors increments the consecutive-error counter shared by
// non-OK broadcast outcomes and transport-level broadcast errors alike,
// forcing a sequence-number resync with the chain once the counter wraps
// past the budget.
func (b *Broadcaster) advanceConsecutiveErrors(source string) {
	b.consecutiveErrors = (b.consecutiveErrors + 1) % consecutiveErrorBudget

	if b.consecutiveErrors != 0 {
		return
	}

	if fetchErr := b.signer.FetchSequenceNumber(context.Background()); fetchErr != nil {
		b.log.Error().Err(fetchErr).Msg("failed to fetch sequence number")
		return
	}

	b.log.Info().Uint64("value", b.signer.SequenceNumber()).Msg("fetched sequence number")

	if b.metrics != nil {
		b.metrics.IncSequenceRefresh(source)
	}
}

// broadcastOutcome labels a response for counter reporting.
func broadcastOutcome(response chain.TxResponse) string {
	switch {
	case response.Ok():
		return "ok"
	case response.SignatureVerificationFailed():
		return "signature_failed"
	default:
		return "contract_error"
	}
}

func (b *Broadcaster) logResponse(source string, response chain.TxResponse) {
	event := b.log.Info()
	if !response.Ok() {
		event = b.log.Error()
	}

	event.
		Str("source", source).
		Str("hash", response.TxHash).
		Uint32("code", response.Code).
		Str("log", response.RawLog).
		Msg("transaction broadcast result")

	if response.GasWanted < response.GasUsed {
		b.log.Warn().
			Str("source", source).
			Int64("gas_wanted", response.GasWanted).
			Int64("gas_used", response.GasUsed).
			Msg("Out of gas!")
	}
}
