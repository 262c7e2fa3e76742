package chain

import (
	"context"
	"fmt"
	"math/bits"
	"sync"
	"time"

	cryptotypes "github.com/cosmos/cosmos-sdk/crypto/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/tx/signing"
	authsigning "github.com/cosmos/cosmos-sdk/x/auth/signing"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/environment"
)

// Gas is a plain gas-unit quantity, kept as its own type so call sites read
// as "gas", not just another uint64.
type Gas = uint64

// NodeAccountQuerier is the one capability the signer needs from the node
// client: fetching the account's current sequence number.
type NodeAccountQuerier interface {
	QueryAccount(ctx context.Context, address string) (AccountData, error)
}

// Signer owns a single signing identity: the private key, the chain id, the
// fee/gas configuration, and the mutable sequence number. It is designed to
// have exactly one logical owner for its entire lifetime — the broadcaster
// — so that the sequence-number invariants in the transaction pipeline
// don't need a lock on the hot path. The embedded mutex guards the
// sequence, account number, and fetch time so that readers on other
// goroutines (SequenceAge for /healthz, SequenceNumber) see consistent
// values; it does not detect a second owner.
type Signer struct {
	mu sync.Mutex

	privKey       cryptotypes.PrivKey
	address       string
	addressBytes  sdk.AccAddress
	chainID       string
	feeDenom      string
	gasFeeConf    environment.GasAndFeeConfiguration
	encodingTx    EncodingConfig
	node          NodeAccountQuerier
	accountNumber uint64
	sequence      uint64
	lastFetchedAt time.Time
}

// EncodingConfig is the narrow slice of the Cosmos SDK's encoding machinery
// the signer needs to build and sign a tx body.
type EncodingConfig struct {
	TxConfig sdk.TxEncodingConfig
}

// NewSigner constructs a Signer for the given private key. The sequence
// number is not fetched here and Sign does not fetch it: it stays zero
// until the caller calls FetchSequenceNumber.
func NewSigner(
	privKey cryptotypes.PrivKey,
	address string,
	chainID string,
	feeDenom string,
	gasFeeConf environment.GasAndFeeConfiguration,
	encodingConfig EncodingConfig,
	node NodeAccountQuerier,
) *Signer {
	return &Signer{
		privKey:      privKey,
		address:      address,
		addressBytes: sdk.AccAddress(privKey.PubKey().Address()),
		chainID:      chainID,
		feeDenom:     feeDenom,
		gasFeeConf:   gasFeeConf,
		encodingTx:   encodingConfig,
		node:         node,
	}
}

// Address returns the signer's bech32 account address.
func (s *Signer) Address() string {
	return s.address
}

// FetchSequenceNumber queries the node for the account and overwrites the
// local sequence number and account number. Callable mid-run: this is the
// only mechanism that resynchronizes the signer with the chain after the
// error budget is exhausted.
func (s *Signer) FetchSequenceNumber(ctx context.Context) error {
	account, err := s.node.QueryAccount(ctx, s.address)
	if err != nil {
		return fmt.Errorf("failed to fetch sequence number: %w", err)
	}

	s.mu.Lock()
	s.accountNumber = account.AccountNumber
	s.sequence = account.Sequence
	s.lastFetchedAt = time.Now()
	s.mu.Unlock()

	return nil
}

// SequenceAge reports how long it has been since the sequence number was
// last resynchronized with the chain, zero-value before the first fetch.
// Used only to annotate the status server's /healthz response.
func (s *Signer) SequenceAge() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastFetchedAt.IsZero() {
		return 0
	}

	return time.Since(s.lastFetchedAt)
}

// SequenceNumber returns the current in-memory sequence number, for
// logging and tests.
func (s *Signer) SequenceNumber() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sequence
}

// IncrementSequenceNumber advances the local sequence number by exactly
// one. Called by the broadcaster precisely when a broadcast outcome
// indicates the transaction was admitted, or rejected for a signature
// verification reason.
func (s *Signer) IncrementSequenceNumber() {
	s.mu.Lock()
	s.sequence++
	s.mu.Unlock()
}

// calculateFee derives a fee coin from a gas limit using saturating integer
// arithmetic: gasLimit * num / den, in the fee-token denomination. Overflow
// collapses to the unmultiplied gas value rather than producing a wrong
// fee.
func (s *Signer) calculateFee(gasLimit Gas) sdk.Coin {
	amount := saturatingMulDiv(gasLimit, s.gasFeeConf.GasPriceNumerator, s.gasFeeConf.GasPriceDenominator)

	return sdk.NewCoin(s.feeDenom, sdkIntFromUint64(amount))
}

// Sign builds a tx with the current sequence number, a fee derived from the
// given gas limit, and returns the signed, protobuf-encoded transaction
// bytes. Signing never blocks on the network.
func (s *Signer) Sign(body TxBody, gasLimit Gas) ([]byte, error) {
	s.mu.Lock()
	accountNumber := s.accountNumber
	sequence := s.sequence
	s.mu.Unlock()

	fee := s.calculateFee(gasLimit)

	return s.signWithFee(body, gasLimit, fee, accountNumber, sequence)
}

// SignWithAdjustment computes an adjusted gas limit from a simulated gas
// figure (min(hardLimit, simulatedGas * adjNum / adjDen)) and signs at that
// limit.
func (s *Signer) SignWithAdjustment(body TxBody, simulatedGas Gas, hardLimit Gas) ([]byte, error) {
	adjusted := saturatingMulDiv(simulatedGas, s.gasFeeConf.GasAdjustmentNumerator, s.gasFeeConf.GasAdjustmentDenom)

	gasLimit := adjusted
	if gasLimit > hardLimit {
		gasLimit = hardLimit
	}

	return s.Sign(body, gasLimit)
}

func (s *Signer) signWithFee(body TxBody, gasLimit Gas, fee sdk.Coin, accountNumber, sequence uint64) ([]byte, error) {
	txBuilder := s.encodingTx.TxConfig.NewTxBuilder()

	if err := txBuilder.SetMsgs(body.Messages...); err != nil {
		return nil, fmt.Errorf("failed to set transaction messages: %w", err)
	}

	txBuilder.SetMemo(body.Memo)
	txBuilder.SetTimeoutHeight(body.TimeoutHeight)
	txBuilder.SetGasLimit(gasLimit)
	txBuilder.SetFeeAmount(sdk.NewCoins(fee))

	signerData := authsigning.SignerData{
		ChainID:       s.chainID,
		AccountNumber: accountNumber,
		Sequence:      sequence,
		PubKey:        s.privKey.PubKey(),
	}

	sigData := signing.SingleSignatureData{
		SignMode:  signing.SignMode_SIGN_MODE_DIRECT,
		Signature: nil,
	}

	sig := signing.SignatureV2{
		PubKey:   s.privKey.PubKey(),
		Data:     &sigData,
		Sequence: sequence,
	}

	if err := txBuilder.SetSignatures(sig); err != nil {
		return nil, fmt.Errorf("failed to set placeholder signature: %w", err)
	}

	bytesToSign, err := authsigning.GetSignBytesAdapter(
		context.Background(),
		s.encodingTx.TxConfig.SignModeHandler(),
		signing.SignMode_SIGN_MODE_DIRECT,
		signerData,
		txBuilder.GetTx(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute sign bytes: %w", err)
	}

	signature, err := s.privKey.Sign(bytesToSign)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sigData.Signature = signature
	sig.Data = &sigData

	if err := txBuilder.SetSignatures(sig); err != nil {
		return nil, fmt.Errorf("failed to set final signature: %w", err)
	}

	rawTx, err := s.encodingTx.TxConfig.TxEncoder()(txBuilder.GetTx())
	if err != nil {
		return nil, fmt.Errorf("failed to encode signed transaction: %w", err)
	}

	return rawTx, nil
}

// TxBody is the narrow, codec-agnostic shape the signer needs: a list of
// messages plus memo/timeout, mirroring the original's Body type.
type TxBody struct {
	Messages      []sdk.Msg
	Memo          string
	TimeoutHeight uint64
}

// saturatingMulDiv computes value*num/den using 128-bit-safe arithmetic,
// falling back to the unmultiplied value on overflow or a zero divisor.
func saturatingMulDiv(value, num, den uint64) uint64 {
	if den == 0 {
		return value
	}

	product, overflow := mulUint64(value, num)
	if overflow {
		return value
	}

	return product / den
}

// mulUint64 multiplies two uint64s using 128-bit intermediate arithmetic,
// reporting overflow of the eventual division input rather than wrapping.
func mulUint64(a, b uint64) (result uint64, overflow bool) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, true
	}

	return lo, false
}

func sdkIntFromUint64(v uint64) sdk.Int {
	return sdk.NewIntFromUint64(v)
}
