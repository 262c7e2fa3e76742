package chain

import (
	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	"github.com/cosmos/cosmos-sdk/codec"
	cryptocodec "github.com/cosmos/cosmos-sdk/crypto/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	authtx "github.com/cosmos/cosmos-sdk/x/auth/tx"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
)

// MakeEncodingConfig builds the interface registry and tx config this
// system needs to sign a transaction carrying nothing but
// MsgExecuteContract messages: the standard SDK account/crypto types plus
// wasmd's contract-execute message, registered the way the teacher's
// codec.go registers its own interfaces onto a chain-app-provided registry
// — except this system has no app package to borrow one from, so the
// registry is built directly from the SDK and wasmd packages it already
// depends on.
func MakeEncodingConfig() EncodingConfig {
	interfaceRegistry := codectypes.NewInterfaceRegistry()

	authtypes.RegisterInterfaces(interfaceRegistry)
	cryptocodec.RegisterInterfaces(interfaceRegistry)
	wasmtypes.RegisterInterfaces(interfaceRegistry)

	protoCodec := codec.NewProtoCodec(interfaceRegistry)

	return EncodingConfig{
		TxConfig: authtx.NewTxConfig(protoCodec, authtx.DefaultSignModes),
	}
}
