package dex

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Astroport queries an Astroport pair contract's `simulation` entry point,
// simulating a swap of a nominal base amount into the quote currency to
// derive a spot exchange rate.
type Astroport struct{}

// astroportSimulationProbe is the nominal input amount used to probe a
// pool's exchange rate; the ratio is unaffected by slippage at this scale
// for the liquidity depths this system targets.
const astroportSimulationProbe = "1000000"

func (Astroport) PriceQueryMessage(pair CurrencyPair, _ string) ([]byte, error) {
	msg := map[string]any{
		"simulation": map[string]any{
			"offer_asset": map[string]any{
				"info":   map[string]any{"native_token": map[string]any{"denom": pair.Base}},
				"amount": astroportSimulationProbe,
			},
			"ask_asset_info": map[string]any{"native_token": map[string]any{"denom": pair.Quote}},
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode astroport simulation query: %w", err)
	}

	return body, nil
}

func (Astroport) PriceQuery(ctx context.Context, client QueryClient, poolAddress string, query []byte) (Quote, error) {
	raw, err := client.QueryWasm(ctx, poolAddress, query)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to query astroport pool %s: %w", poolAddress, err)
	}

	returnAmount := gjson.GetBytes(raw, "return_amount")
	if !returnAmount.Exists() {
		return Quote{}, fmt.Errorf("astroport simulation response from %s is missing return_amount", poolAddress)
	}

	return Quote{
		BaseAmount:  astroportSimulationProbe,
		QuoteAmount: returnAmount.String(),
	}, nil
}
