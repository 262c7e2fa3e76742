package task

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/chain"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/contract"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/dex"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/txqueue"
)

// FeederConfig describes one feeder task: a protocol's DEX variant, the
// oracle contract it updates, the per-currency pool addresses to query,
// and the pacing/limits that govern it.
type FeederConfig struct {
	Protocol                 string
	Dex                      dex.Dex
	DexName                  dex.Name
	OracleAddress            string
	PoolAddressesByCurrency  map[string]string
	QuoteCurrency            string
	UpdateCurrenciesInterval time.Duration
	IdleDuration             time.Duration
	TimeoutDuration          time.Duration
	HardGasLimit             chain.Gas
	FallbackGas              chain.Gas
}

// Feeder is the price-feeding task variant: on each tick it refreshes the
// oracle's supported currencies (at most once per
// UpdateCurrenciesInterval), queries the DEX for each currency's price
// against its pool, assembles an oracle update, and pushes it through the
// pipeline.
type Feeder struct {
	cfg FeederConfig

	mainNode NodeQueryClient
	dexNode  NodeQueryClient

	sender string
	log    zerolog.Logger

	lastCurrencyRefresh time.Time
	currencies          []string
}

// NewFeeder constructs a Feeder bound to the main chain's node client (for
// the oracle side) and a DEX-specific node client (for pool queries),
// which may be the same endpoint or a different one depending on network.
func NewFeeder(cfg FeederConfig, ctx *CreationContext, dexNode NodeQueryClient) *Feeder {
	return &Feeder{
		cfg:      cfg,
		mainNode: ctx.NodeClient,
		dexNode:  dexNode,
		sender:   ctx.SignerAddress,
		log:      ctx.Log.With().Str("task", cfg.Protocol).Str("dex", string(cfg.DexName)).Logger(),
	}
}

// Source is the human-readable label attached to every package this task
// enqueues, used for log correlation.
func (f *Feeder) Source() string {
	return f.cfg.Protocol + "; dex=" + string(f.cfg.DexName)
}

func (f *Feeder) refreshCurrencies(ctx context.Context) error {
	if !f.lastCurrencyRefresh.IsZero() && time.Since(f.lastCurrencyRefresh) < f.cfg.UpdateCurrenciesInterval {
		return nil
	}

	raw, err := f.mainNode.QueryWasm(ctx, f.cfg.OracleAddress, contract.OracleCurrenciesQuery())
	if err != nil {
		return err
	}

	currencies, err := contract.ParseOracleCurrencies(raw)
	if err != nil {
		return err
	}

	f.currencies = currencies
	f.lastCurrencyRefresh = time.Now()

	return nil
}

// collectQuotes queries the DEX for every currently-supported currency
// that has a configured pool address. A single currency's query failure is
// task-internal: it is logged and the currency is dropped from this tick's
// contribution, per the task-local-failure error class.
func (f *Feeder) collectQuotes(ctx context.Context) []contract.PriceQuote {
	quotes := make([]contract.PriceQuote, 0, len(f.currencies))

	for _, currency := range f.currencies {
		poolAddress, ok := f.cfg.PoolAddressesByCurrency[currency]
		if !ok {
			continue
		}

		pair := dex.CurrencyPair{Base: currency, Quote: f.cfg.QuoteCurrency}

		query, err := f.cfg.Dex.PriceQueryMessage(pair, poolAddress)
		if err != nil {
			f.log.Error().Str("currency", currency).Err(err).Msg("failed to build price query")
			continue
		}

		quote, err := f.cfg.Dex.PriceQuery(ctx, f.dexNode, poolAddress, query)
		if err != nil {
			f.log.Error().Str("currency", currency).Err(err).Msg("price query failed, dropping currency for this tick")
			continue
		}

		quotes = append(quotes, contract.PriceQuote{
			Currency:  currency,
			AmountIn:  quote.BaseAmount,
			AmountOut: quote.QuoteAmount,
		})
	}

	return quotes
}

// tick runs one iteration: refresh currencies, collect quotes, build and
// enqueue the oracle update, await feedback.
func (f *Feeder) tick(ctx context.Context, sender txqueue.Sender) {
	if err := f.refreshCurrencies(ctx); err != nil {
		f.log.Error().Err(err).Msg("failed to refresh supported currencies")
		return
	}

	quotes := f.collectQuotes(ctx)
	if len(quotes) == 0 {
		f.log.Info().Msg("no price quotes collected this tick")
		return
	}

	updateMsg, err := contract.OraclePricesUpdate(quotes)
	if err != nil {
		f.log.Error().Err(err).Msg("failed to build oracle price update message")
		return
	}

	body, err := buildExecuteQuery(f.sender, f.cfg.OracleAddress, updateMsg)
	if err != nil {
		f.log.Error().Err(err).Msg("failed to build oracle update transaction")
		return
	}

	pkg := newPackage(body, f.Source(), f.cfg.HardGasLimit, f.cfg.FallbackGas, f.cfg.TimeoutDuration)

	response, delivered := enqueueAndAwait(sender, pkg)
	if !delivered {
		f.log.Warn().Msg("feedback channel closed, broadcaster gave up on this package")
		return
	}

	if !response.Ok() {
		f.log.Error().Uint32("code", response.Code).Str("log", response.RawLog).Msg("oracle update rejected")
	}
}

// Run drives the feeder's periodic tick loop until ctx is cancelled. A
// DurationBeforeStart jitter (applied by the caller before Run is invoked)
// staggers many feeders' ticks from hammering the DEX node at the same
// instant.
func (f *Feeder) Run(ctx context.Context, sender txqueue.Sender) error {
	ticker := time.NewTicker(f.cfg.IdleDuration)
	defer ticker.Stop()

	for {
		f.tick(ctx, sender)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
