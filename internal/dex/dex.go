// Package dex builds and executes DEX-specific spot-price queries. Each
// implementation knows only how to encode a query message for its own pool
// contract and how to pull a base/quote amount pair out of that pool's
// response shape; everything else (batching, oracle update assembly) lives
// in internal/task.
package dex

import (
	"context"
	"fmt"
)

// CurrencyPair identifies a spot price to fetch: base priced in quote.
type CurrencyPair struct {
	Base  string
	Quote string
}

// Quote is a raw base/quote amount pair as reported by a pool, with no
// unit conversion applied. The oracle contract consumes these as exchange
// rates, not absolute prices.
type Quote struct {
	BaseAmount  string
	QuoteAmount string
}

// QueryClient is the narrow node-client capability a Dex needs: a
// contract-state query against the DEX's own node endpoint, which may
// differ from the main chain node.
type QueryClient interface {
	QueryWasm(ctx context.Context, address string, query []byte) ([]byte, error)
}

// Dex builds price-query messages for a pool and decodes the pool's
// response into a base/quote amount pair. Implementations are a small,
// closed set (Astroport, Osmosis); New selects one by Name with a switch
// rather than an open registry.
type Dex interface {
	// PriceQueryMessage builds the opaque JSON query body for a pool
	// contract that would answer the given pair.
	PriceQueryMessage(pair CurrencyPair, poolAddress string) ([]byte, error)

	// PriceQuery executes a built query against the pool and decodes the
	// response into a base/quote amount pair.
	PriceQuery(ctx context.Context, client QueryClient, poolAddress string, query []byte) (Quote, error)
}

// Name identifies a Dex implementation, matching the value of a network's
// <NETWORK>__DEX environment variable.
type Name string

const (
	NameAstroport Name = "astroport"
	NameOsmosis   Name = "osmosis"
)

// New resolves a Dex implementation by name.
func New(name Name) (Dex, error) {
	switch name {
	case NameAstroport:
		return Astroport{}, nil
	case NameOsmosis:
		return Osmosis{}, nil
	default:
		return nil, fmt.Errorf("unknown dex variant %q", name)
	}
}
