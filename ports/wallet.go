package ports

import (
	"context"

	"github.com/veritasvault/vv-auth/core"
)

// ConnectionOptions carries optional parameters for a wallet connect.
type ConnectionOptions struct {
	ChainID int64
	RPCURL  string
}

// WalletConnection is the result of a successful adapter connect.
type WalletConnection struct {
	Address string
	ChainID int64
	// Handle is an adapter-owned signer handle passed back on
	// sign/send/switch calls. Opaque to everything else.
	Handle any
}

// WalletAdapter is the capability contract for one wallet backend.
// Connect must be idempotent: calling it while already connected
// returns the existing connection. All methods may fail with a
// machine-readable error wrapped around core sentinels.
type WalletAdapter interface {
	Type() core.WalletType

	Connect(ctx context.Context, opts *ConnectionOptions) (*WalletConnection, error)
	Disconnect(ctx context.Context) error

	SignMessage(ctx context.Context, message string, handle any) (string, error)
	SendTransaction(ctx context.Context, tx core.TransactionRequest, handle any) (string, error)
	SwitchChain(ctx context.Context, handle any, chainID int64, rpcURL string) error

	// Event registration. Each call returns a deregistration func;
	// registration is scoped to the caller so two orchestrators on the
	// same adapter do not see duplicate delivery after one closes.
	OnAccountsChanged(fn func(address string)) (unsubscribe func())
	OnChainChanged(fn func(chainID int64)) (unsubscribe func())
	OnDisconnect(fn func()) (unsubscribe func())
}
