// Package txqueue carries signed-transaction requests from producer tasks
// to the single broadcaster that owns the signing identity. It is a
// multi-producer, single-consumer Go channel with a fixed buffer: any
// number of tasks may hold a Sender, but only the broadcaster ever holds
// the Receiver.
package txqueue

import (
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/chain"
)

// Expiration races a broadcast call against a deadline policy. The
// canonical implementation lives in internal/broadcast; it is referenced
// here only as an interface so a TxPackage can carry one without this
// package depending on internal/broadcast.
type Expiration interface {
	WithExpiration(call func() (chain.TxResponse, error)) (chain.TxResponse, error)
}

// TxPackage is one unit of work handed from a task to the broadcaster: a
// tx body plus everything the broadcaster needs to simulate, sign,
// broadcast, and report back on it.
type TxPackage struct {
	TxBody       chain.TxBody
	Source       string
	HardGasLimit chain.Gas
	FallbackGas  chain.Gas
	Expiration   Expiration
	FeedbackChan chan chain.TxResponse
}

// NewTxPackage builds a package with a fresh, single-use feedback channel.
func NewTxPackage(body chain.TxBody, source string, hardGasLimit, fallbackGas chain.Gas, expiration Expiration) TxPackage {
	return TxPackage{
		TxBody:       body,
		Source:       source,
		HardGasLimit: hardGasLimit,
		FallbackGas:  fallbackGas,
		Expiration:   expiration,
		FeedbackChan: make(chan chain.TxResponse, 1),
	}
}

// Sender enqueues packages. It is safe to share and clone across any number
// of producer tasks: each holds its own Sender value, all backed by the
// same underlying channel, the same shape as a cloneable mpsc::Sender.
type Sender struct {
	packages chan<- TxPackage
}

// Send enqueues a package. It returns at once while fewer than
// unboundedBufferSize packages are queued; once the buffer is full it
// blocks until the broadcaster receives one. The buffer does not grow.
func (s Sender) Send(pkg TxPackage) {
	s.packages <- pkg
}

// Receiver dequeues packages. There is exactly one owner for the lifetime
// of the process: the broadcaster.
type Receiver struct {
	packages <-chan TxPackage
}

// Recv blocks until a package is available or the queue is closed, in
// which case ok is false.
func (r Receiver) Recv() (pkg TxPackage, ok bool) {
	pkg, ok = <-r.packages
	return pkg, ok
}

// unboundedBufferSize is the fixed capacity of the queue's buffered
// channel. Every task in this system has at most one outstanding package
// at a time (it awaits feedback before its next tick), so the queue's depth
// never exceeds the task count and a Send blocks only when more than this
// many tasks are enqueueing at once.
const unboundedBufferSize = 4096

// New creates a fresh queue and returns its sender/receiver pair.
func New() (Sender, Receiver) {
	ch := make(chan TxPackage, unboundedBufferSize)
	return Sender{packages: ch}, Receiver{packages: ch}
}
