// Package contract carries the opaque JSON message shapes exchanged with
// the on-chain admin, oracle, and alarm contracts, and the builder that
// wraps them into a signable tx body.
package contract

import (
	"encoding/json"
	"fmt"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/tidwall/gjson"
)

// AlarmsStatus is the decoded response of an `alarms_status` query.
type AlarmsStatus struct {
	RemainingForDispatch bool
}

// ParseAlarmsStatus decodes an alarms_status response, tolerating any
// additional fields the contract may add.
func ParseAlarmsStatus(raw []byte) (AlarmsStatus, error) {
	result := gjson.GetBytes(raw, "remaining_for_dispatch")
	if !result.Exists() {
		return AlarmsStatus{}, fmt.Errorf("alarms_status response is missing remaining_for_dispatch")
	}

	return AlarmsStatus{RemainingForDispatch: result.Bool()}, nil
}

// DispatchAlarmsQuery builds the `dispatch_alarms{max_count}` execute
// message body.
func DispatchAlarmsQuery(maxCount uint32) ([]byte, error) {
	msg := map[string]any{
		"dispatch_alarms": map[string]any{
			"max_count": maxCount,
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dispatch_alarms message: %w", err)
	}

	return body, nil
}

// AlarmsStatusQuery builds the `alarms_status` query message body.
func AlarmsStatusQuery() []byte {
	return []byte(`"alarms_status"`)
}

// DispatchResponse is the decoded response of a dispatch_alarms execute.
type DispatchResponse struct {
	DispatchedAlarms uint32
}

// ParseDispatchResponse decodes a dispatch_alarms execute response.
func ParseDispatchResponse(raw []byte) (DispatchResponse, error) {
	result := gjson.GetBytes(raw, "dispatched_alarms")
	if !result.Exists() {
		return DispatchResponse{}, fmt.Errorf("dispatch_alarms response is missing dispatched_alarms")
	}

	return DispatchResponse{DispatchedAlarms: uint32(result.Uint())}, nil
}

// AdminProtocolsQuery builds the admin contract's query for the registry of
// configured protocols.
func AdminProtocolsQuery() []byte {
	return []byte(`"protocols"`)
}

// ProtocolConfig is one entry in the admin contract's protocol registry:
// enough for a feeder task to address the right oracle contract and the
// right DEX-side network.
type ProtocolConfig struct {
	Network           string
	OracleAddress     string
	TimeAlarmAddress  string
	PriceAlarmAddress string
}

// ParseProtocolConfigs decodes the admin contract's protocol registry
// response: a JSON object keyed by protocol name.
func ParseProtocolConfigs(raw []byte) (map[string]ProtocolConfig, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("protocol registry response is not valid JSON")
	}

	configs := make(map[string]ProtocolConfig)

	var decodeErr error
	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		network := value.Get("network").String()
		if network == "" {
			decodeErr = fmt.Errorf("protocol %q is missing a network identifier", key.String())
			return false
		}

		configs[key.String()] = ProtocolConfig{
			Network:           network,
			OracleAddress:     value.Get("contracts.oracle").String(),
			TimeAlarmAddress:  value.Get("contracts.timealarms").String(),
			PriceAlarmAddress: value.Get("contracts.market_price_alarms").String(),
		}

		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}

	return configs, nil
}

// OracleCurrenciesQuery builds the oracle contract's supported-currencies
// query message.
func OracleCurrenciesQuery() []byte {
	return []byte(`"currencies"`)
}

// ParseOracleCurrencies decodes the oracle contract's supported-currencies
// response: a flat JSON array of ticker symbols.
func ParseOracleCurrencies(raw []byte) ([]string, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("currencies response is not valid JSON")
	}

	result := gjson.ParseBytes(raw)
	if !result.IsArray() {
		return nil, fmt.Errorf("currencies response is not a JSON array")
	}

	currencies := make([]string, 0, len(result.Array()))
	for _, entry := range result.Array() {
		currencies = append(currencies, entry.String())
	}

	return currencies, nil
}

// PriceQuote is one currency's entry in the oracle contract's price-feed
// update message (see OraclePricesUpdate). The shape is DEX-agnostic: an
// amount-in/amount-out pair per currency, which is how the oracle contract
// expresses an exchange rate without floating point.
type PriceQuote struct {
	Currency  string
	AmountIn  string
	AmountOut string
}

// OraclePricesUpdate builds the `feed_prices{prices}` execute message.
func OraclePricesUpdate(quotes []PriceQuote) ([]byte, error) {
	prices := make([]map[string]any, 0, len(quotes))
	for _, q := range quotes {
		prices = append(prices, map[string]any{
			"amount": map[string]any{"amount": q.AmountIn, "ticker": q.Currency},
			"amount_quote": map[string]any{"amount": q.AmountOut},
		})
	}

	msg := map[string]any{
		"feed_prices": map[string]any{
			"prices": prices,
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode feed_prices message: %w", err)
	}

	return body, nil
}

// Tx accumulates one or more contract-execute messages targeting a single
// contract address and builds them into the MsgExecuteContract the signer
// needs. A Tx with no messages is empty and must not be committed: this
// mirrors the source's refusal to broadcast a no-op transaction.
type Tx struct {
	sender   string
	messages []sdk.Msg
}

// NewTx starts an empty transaction builder for the given sender address.
func NewTx(sender string) *Tx {
	return &Tx{sender: sender}
}

// AddMessage appends a contract-execute message addressed to contractAddr
// carrying msg as its inner JSON payload. funds is always empty for this
// system but accepted for completeness.
func (t *Tx) AddMessage(contractAddr string, msg json.RawMessage, funds sdk.Coins) error {
	if !json.Valid(msg) {
		return fmt.Errorf("contract message for %s is not valid JSON", contractAddr)
	}

	t.messages = append(t.messages, &wasmtypes.MsgExecuteContract{
		Sender:   t.sender,
		Contract: contractAddr,
		Msg:      wasmtypes.RawContractMessage(msg),
		Funds:    funds,
	})

	return nil
}

// IsEmpty reports whether the builder holds no messages yet.
func (t *Tx) IsEmpty() bool {
	return len(t.messages) == 0
}

// Commit returns the accumulated messages, refusing an empty builder.
func (t *Tx) Commit() ([]sdk.Msg, error) {
	if t.IsEmpty() {
		return nil, fmt.Errorf("refusing to commit a transaction with no messages")
	}

	return t.messages, nil
}
