package chain

import (
	"context"
	"fmt"

	txtypes "github.com/cosmos/cosmos-sdk/types/tx"
	"google.golang.org/grpc"
)

// txServiceClient narrows the generated tx service client down to the one
// RPC the node client needs, keeping the gRPC-generated surface out of the
// rest of the package.
type txServiceClient struct {
	inner txtypes.ServiceClient
}

// NewTxServiceClient wraps a gRPC connection's generated tx service client.
func NewTxServiceClient(conn *grpc.ClientConn) *txServiceClient {
	return &txServiceClient{inner: txtypes.NewServiceClient(conn)}
}

// Simulate dry-runs raw, signed transaction bytes.
func (c *txServiceClient) Simulate(ctx context.Context, txBytes []byte) (GasInfo, error) {
	resp, err := c.inner.Simulate(ctx, &txtypes.SimulateRequest{TxBytes: txBytes})
	if err != nil {
		return GasInfo{}, err
	}

	if resp.GasInfo == nil {
		return GasInfo{}, fmt.Errorf("simulation response carried no gas info")
	}

	return GasInfo{GasUsed: resp.GasInfo.GasUsed}, nil
}
