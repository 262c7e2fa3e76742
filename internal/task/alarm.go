package task

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/chain"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/contract"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/txqueue"
)

// AlarmKind distinguishes the two alarm contracts this system polls.
type AlarmKind string

const (
	AlarmKindTime  AlarmKind = "time"
	AlarmKindPrice AlarmKind = "price"
)

// AlarmConfig describes one alarm poller.
type AlarmConfig struct {
	Kind            AlarmKind
	ContractAddress string
	MaxCount        uint32
	IdleDuration    time.Duration
	TimeoutDuration time.Duration
	HardGasLimit    chain.Gas
	FallbackGas     chain.Gas
}

// AlarmMetricsRecorder is the narrow counter surface an AlarmPoller reports
// dispatched-alarm counts to; satisfied structurally by *metrics.Recorder.
type AlarmMetricsRecorder interface {
	IncAlarmsDispatched(source string, count uint32)
}

// AlarmPoller is the alarm task variant: on each tick it asks the contract
// whether alarms are due, and if so dispatches up to MaxCount of them,
// draining repeatedly while the contract reports a full batch dispatched.
type AlarmPoller struct {
	cfg AlarmConfig

	node    NodeQueryClient
	sender  string
	log     zerolog.Logger
	metrics AlarmMetricsRecorder
}

// NewAlarmPoller constructs an AlarmPoller.
func NewAlarmPoller(cfg AlarmConfig, ctx *CreationContext) *AlarmPoller {
	return &AlarmPoller{
		cfg:    cfg,
		node:   ctx.NodeClient,
		sender: ctx.SignerAddress,
		log:    ctx.Log.With().Str("task", string(cfg.Kind)+"-alarms").Str("contract", cfg.ContractAddress).Logger(),
	}
}

// WithMetrics attaches a counter recorder, returning the same AlarmPoller
// for chaining at construction time.
func (a *AlarmPoller) WithMetrics(m AlarmMetricsRecorder) *AlarmPoller {
	a.metrics = m
	return a
}

// Source is the human-readable label attached to every package this task
// enqueues.
func (a *AlarmPoller) Source() string {
	return string(a.cfg.Kind) + "-alarms; contract=" + a.cfg.ContractAddress
}

func (a *AlarmPoller) queryStatus(ctx context.Context) (contract.AlarmsStatus, error) {
	raw, err := a.node.QueryWasm(ctx, a.cfg.ContractAddress, contract.AlarmsStatusQuery())
	if err != nil {
		return contract.AlarmsStatus{}, err
	}

	return contract.ParseAlarmsStatus(raw)
}

func (a *AlarmPoller) dispatchOnce(ctx context.Context, sender txqueue.Sender) (dispatched uint32, delivered bool) {
	msg, err := contract.DispatchAlarmsQuery(a.cfg.MaxCount)
	if err != nil {
		a.log.Error().Err(err).Msg("failed to build dispatch_alarms message")
		return 0, false
	}

	body, err := buildExecuteQuery(a.sender, a.cfg.ContractAddress, msg)
	if err != nil {
		a.log.Error().Err(err).Msg("failed to build dispatch transaction")
		return 0, false
	}

	pkg := newPackage(body, a.Source(), a.cfg.HardGasLimit, a.cfg.FallbackGas, a.cfg.TimeoutDuration)

	response, ok := enqueueAndAwait(sender, pkg)
	if !ok {
		a.log.Warn().Msg("feedback channel closed, broadcaster gave up on this package")
		return 0, false
	}

	if !response.Ok() {
		a.log.Error().Uint32("code", response.Code).Str("log", response.RawLog).Msg("dispatch_alarms rejected")
		return 0, true
	}

	dispatchResp, err := contract.ParseDispatchResponse(response.Data)
	if err != nil {
		a.log.Error().Err(err).Msg("failed to decode dispatch_alarms response")
		return 0, true
	}

	if a.metrics != nil && dispatchResp.DispatchedAlarms > 0 {
		a.metrics.IncAlarmsDispatched(a.Source(), dispatchResp.DispatchedAlarms)
	}

	return dispatchResp.DispatchedAlarms, true
}

// drain dispatches repeatedly while each dispatch reports a full batch
// (MaxCount) handled, returning once a dispatch returns fewer than
// MaxCount. A drain that encounters a single idempotent no-op dispatch
// immediately stops: draining an already-empty contract must return 0 on
// the very next call.
func (a *AlarmPoller) drain(ctx context.Context, sender txqueue.Sender) {
	for {
		dispatched, delivered := a.dispatchOnce(ctx, sender)
		if !delivered || dispatched < a.cfg.MaxCount {
			return
		}
	}
}

func (a *AlarmPoller) tick(ctx context.Context, sender txqueue.Sender) {
	status, err := a.queryStatus(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("failed to query alarm status")
		return
	}

	if !status.RemainingForDispatch {
		return
	}

	a.drain(ctx, sender)
}

// Run drives the alarm poller's periodic tick loop until ctx is cancelled.
func (a *AlarmPoller) Run(ctx context.Context, sender txqueue.Sender) error {
	ticker := time.NewTicker(a.cfg.IdleDuration)
	defer ticker.Stop()

	for {
		a.tick(ctx, sender)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
