package chain

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	coretypes "github.com/cometbft/cometbft/rpc/core/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// AccountData is the subset of on-chain account state the signer needs.
type AccountData struct {
	AccountNumber uint64
	Sequence      uint64
}

// GasInfo is the simulator's dry-run gas report.
type GasInfo struct {
	GasUsed uint64
}

// SignatureVerificationFailedCode is the chain-specific ABCI code meaning
// "signature verification failed", almost always caused by a stale sequence
// number.
const SignatureVerificationFailedCode uint32 = 32

// TxResponse is the chain's broadcast outcome for a single transaction.
type TxResponse struct {
	TxHash    string
	Code      uint32
	RawLog    string
	Data      []byte
	GasWanted int64
	GasUsed   int64
}

// Ok reports whether the broadcast was admitted by the chain.
func (r TxResponse) Ok() bool {
	return r.Code == 0
}

// SignatureVerificationFailed reports whether the chain rejected the
// transaction specifically for a stale/incorrect sequence number.
func (r TxResponse) SignatureVerificationFailed() bool {
	return r.Code == SignatureVerificationFailedCode
}

// NodeClient is a thin, retry-free capability layer over a chain node's
// gRPC and Tendermint RPC endpoints: query account, query contract state,
// simulate a transaction, and broadcast one in sync mode. Every call is a
// single remote round-trip; transient transport errors surface to the
// caller unchanged; retry policy lives entirely in the broadcaster.
type NodeClient struct {
	grpcConn   *grpc.ClientConn
	rpcClient  *rpchttp.HTTP
	lastHeight atomic.Int64
}

// NewNodeClient dials the node's gRPC endpoint and Tendermint RPC endpoint.
func NewNodeClient(ctx context.Context, grpcEndpoint, tmRPCEndpoint string) (*NodeClient, error) {
	grpcConn, err := grpc.NewClient(
		grpcEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node's gRPC endpoint: %w", err)
	}

	rpcClient, err := rpchttp.New(tmRPCEndpoint, "/websocket")
	if err != nil {
		return nil, fmt.Errorf("failed to create Tendermint RPC client: %w", err)
	}

	client := &NodeClient{
		grpcConn:  grpcConn,
		rpcClient: rpcClient,
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if status, err := rpcClient.Status(dialCtx); err == nil {
		client.lastHeight.Store(status.SyncInfo.LatestBlockHeight)
	}

	return client, nil
}

// LastKnownHeight returns the most recently observed block height, purely
// informational: it is not on the critical path of any invariant, and no
// caller in this module reads it.
func (c *NodeClient) LastKnownHeight() int64 {
	return c.lastHeight.Load()
}

// QueryAccount fetches the account number and current sequence number for
// an address.
func (c *NodeClient) QueryAccount(ctx context.Context, address string) (AccountData, error) {
	client := authtypes.NewQueryClient(c.grpcConn)

	resp, err := client.Account(ctx, &authtypes.QueryAccountRequest{Address: address})
	if err != nil {
		return AccountData{}, fmt.Errorf("failed to query account: %w", err)
	}

	var account authtypes.BaseAccount
	if err := account.Unmarshal(resp.Account.Value); err != nil {
		return AccountData{}, fmt.Errorf("failed to decode account data: %w", err)
	}

	return AccountData{
		AccountNumber: account.AccountNumber,
		Sequence:      account.Sequence,
	}, nil
}

// QueryWasm runs a smart-contract query against a contract address and
// returns the raw response bytes. Decoding is the caller's responsibility.
func (c *NodeClient) QueryWasm(ctx context.Context, address string, query []byte) ([]byte, error) {
	client := wasmtypes.NewQueryClient(c.grpcConn)

	resp, err := client.SmartContractState(ctx, &wasmtypes.QuerySmartContractStateRequest{
		Address:   address,
		QueryData: query,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query contract state: %w", err)
	}

	if height, err := c.rpcClient.Status(ctx); err == nil {
		c.lastHeight.Store(height.SyncInfo.LatestBlockHeight)
	}

	return resp.Data, nil
}

// Simulate dry-runs a signed transaction and returns the gas it would
// consume. Simulation failures (bad sequence, bad signature, contract
// revert) are a distinct outcome from broadcast failure; callers treat them
// as recoverable by falling back to a caller-supplied gas budget.
func (c *NodeClient) Simulate(ctx context.Context, signedTxBytes []byte) (GasInfo, error) {
	client := NewTxServiceClient(c.grpcConn)

	resp, err := client.Simulate(ctx, signedTxBytes)
	if err != nil {
		return GasInfo{}, fmt.Errorf("failed to simulate transaction: %w", err)
	}

	return resp, nil
}

// BroadcastSync submits a signed, raw transaction in sync mode: the call
// returns as soon as the node's mempool has checked (not necessarily
// committed) the transaction.
func (c *NodeClient) BroadcastSync(ctx context.Context, rawTx []byte) (TxResponse, error) {
	result, err := c.rpcClient.BroadcastTxSync(ctx, rawTx)
	if err != nil {
		return TxResponse{}, fmt.Errorf("failed to broadcast transaction: %w", err)
	}

	return fromBroadcastTxResult(result), nil
}

func fromBroadcastTxResult(result *coretypes.ResultBroadcastTx) TxResponse {
	return TxResponse{
		TxHash: result.Hash.String(),
		Code:   result.Code,
		RawLog: result.Log,
		Data:   []byte(result.Data),
	}
}

// Close releases the underlying gRPC connection.
func (c *NodeClient) Close() error {
	return c.grpcConn.Close()
}

// dialTimeout bounds how long a node dial is allowed to take.
const dialTimeout = 15 * time.Second
