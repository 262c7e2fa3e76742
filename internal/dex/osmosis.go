package dex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Osmosis queries an Osmosis gamm/concentrated-liquidity pool's spot-price
// entry point directly; unlike Astroport it does not need a simulated
// swap, the pool contract reports a rate query natively.
type Osmosis struct{}

func (Osmosis) PriceQueryMessage(pair CurrencyPair, _ string) ([]byte, error) {
	msg := map[string]any{
		"spot_price": map[string]any{
			"base_asset_denom":  pair.Base,
			"quote_asset_denom": pair.Quote,
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode osmosis spot price query: %w", err)
	}

	return body, nil
}

func (Osmosis) PriceQuery(ctx context.Context, client QueryClient, poolAddress string, query []byte) (Quote, error) {
	raw, err := client.QueryWasm(ctx, poolAddress, query)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to query osmosis pool %s: %w", poolAddress, err)
	}

	spotPrice := gjson.GetBytes(raw, "spot_price")
	if !spotPrice.Exists() {
		return Quote{}, fmt.Errorf("osmosis spot price response from %s is missing spot_price", poolAddress)
	}

	return Quote{
		BaseAmount:  "1",
		QuoteAmount: spotPrice.String(),
	}, nil
}
