// Package broadcast implements the transaction pipeline's single consumer:
// it owns the signer and the queue's receiver, and drives every enqueued
// package through simulate, sign, broadcast, and retry.
package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/chain"
)

// ErrExpired is returned by WithExpiration when the deadline fires before
// the call completes.
var ErrExpired = fmt.Errorf("transaction expired before being committed to the mempool")

// Expiration races a broadcast call against a deadline policy. A package
// carries one of these so a task's time-to-live is decided by the task
// that built the package, not by the broadcaster's pace.
type Expiration interface {
	WithExpiration(call func() (chain.TxResponse, error)) (chain.TxResponse, error)
}

// TimeBased is the canonical expiration policy: a deadline captured at
// enqueue time, raced against the broadcast call on a background
// goroutine.
type TimeBased struct {
	Deadline time.Time
}

// NewTimeBased captures now+timeout as the package's deadline.
func NewTimeBased(timeout time.Duration) TimeBased {
	return TimeBased{Deadline: time.Now().Add(timeout)}
}

// WithExpiration runs call on its own goroutine and returns its result, or
// ErrExpired if the deadline passes first. On expiration the in-flight
// call is abandoned: broadcast has no cancellation hook into CometBFT's
// sync broadcast RPC, so the goroutine is left to finish and its result
// discarded.
func (t TimeBased) WithExpiration(call func() (chain.TxResponse, error)) (chain.TxResponse, error) {
	ctx, cancel := context.WithDeadline(context.Background(), t.Deadline)
	defer cancel()

	result := make(chan callResult, 1)

	go func() {
		response, err := call()
		result <- callResult{response: response, err: err}
	}()

	select {
	case r := <-result:
		return r.response, r.err
	case <-ctx.Done():
		return chain.TxResponse{}, ErrExpired
	}
}

type callResult struct {
	response chain.TxResponse
	err      error
}
