// Package wallet provides WalletAdapter implementations: a local
// key-backed adapter used as the in-memory double and for server-held
// wallets, and a custodial middleware adapter.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/veritasvault/vv-auth/core"
	"github.com/veritasvault/vv-auth/ports"
	"github.com/veritasvault/vv-auth/siwe"
)

// LocalAdapter signs with a locally-held private key. It doubles as
// the in-memory test adapter: failure injection fields and Emit*
// methods let tests script adapter behavior and provider events.
type LocalAdapter struct {
	walletType core.WalletType
	key        *ecdsa.PrivateKey

	// Failure injection for tests; nil means the call succeeds.
	ConnectErr error
	SignErr    error
	SendErr    error
	SwitchErr  error

	// AddressOverride makes Connect report a different address than
	// the one the key controls, to exercise verification failures.
	AddressOverride string

	mu        sync.Mutex
	conn      *ports.WalletConnection
	chainID   int64
	txCounter uint64

	listenerID    int
	onAccounts    map[int]func(string)
	onChain       map[int]func(int64)
	onDisconnects map[int]func()
}

// NewLocalAdapter creates an adapter of the given type around key,
// initially on chainID.
func NewLocalAdapter(walletType core.WalletType, key *ecdsa.PrivateKey, chainID int64) *LocalAdapter {
	return &LocalAdapter{
		walletType:    walletType,
		key:           key,
		chainID:       chainID,
		onAccounts:    make(map[int]func(string)),
		onChain:       make(map[int]func(int64)),
		onDisconnects: make(map[int]func()),
	}
}

func (a *LocalAdapter) Type() core.WalletType {
	return a.walletType
}

// Address returns the address the key controls.
func (a *LocalAdapter) Address() string {
	return crypto.PubkeyToAddress(a.key.PublicKey).Hex()
}

// Connect is idempotent: while connected it returns the existing
// connection.
func (a *LocalAdapter) Connect(ctx context.Context, opts *ports.ConnectionOptions) (*ports.WalletConnection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.ConnectErr != nil {
		return nil, a.ConnectErr
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return a.conn, nil
	}

	if opts != nil && opts.ChainID != 0 {
		a.chainID = opts.ChainID
	}
	address := a.Address()
	if a.AddressOverride != "" {
		address = a.AddressOverride
	}
	a.conn = &ports.WalletConnection{
		Address: address,
		ChainID: a.chainID,
		Handle:  a.key,
	}
	return a.conn, nil
}

func (a *LocalAdapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	a.conn = nil
	a.mu.Unlock()
	return nil
}

// SignMessage produces an ERC-191 personal_sign signature.
func (a *LocalAdapter) SignMessage(ctx context.Context, message string, handle any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if a.SignErr != nil {
		return "", a.SignErr
	}
	key, ok := handle.(*ecdsa.PrivateKey)
	if !ok {
		key = a.key
	}
	return siwe.SignPersonal(message, key)
}

// SendTransaction returns a deterministic pseudo transaction hash; the
// double never broadcasts anywhere.
func (a *LocalAdapter) SendTransaction(ctx context.Context, tx core.TransactionRequest, handle any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if a.SendErr != nil {
		return "", a.SendErr
	}

	a.mu.Lock()
	a.txCounter++
	counter := a.txCounter
	a.mu.Unlock()

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], counter)
	payload := append([]byte(tx.To+tx.Value.String()), tx.Data...)
	payload = append(payload, nonce[:]...)
	return hexutil.Encode(crypto.Keccak256(payload)), nil
}

func (a *LocalAdapter) SwitchChain(ctx context.Context, handle any, chainID int64, rpcURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.SwitchErr != nil {
		return a.SwitchErr
	}
	a.mu.Lock()
	a.chainID = chainID
	a.mu.Unlock()
	return nil
}

func (a *LocalAdapter) OnAccountsChanged(fn func(address string)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.listenerID
	a.listenerID++
	a.onAccounts[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.onAccounts, id)
	}
}

func (a *LocalAdapter) OnChainChanged(fn func(chainID int64)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.listenerID
	a.listenerID++
	a.onChain[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.onChain, id)
	}
}

func (a *LocalAdapter) OnDisconnect(fn func()) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.listenerID
	a.listenerID++
	a.onDisconnects[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.onDisconnects, id)
	}
}

// EmitAccountsChanged simulates a provider-originated account switch.
func (a *LocalAdapter) EmitAccountsChanged(address string) {
	a.mu.Lock()
	fns := make([]func(string), 0, len(a.onAccounts))
	for _, fn := range a.onAccounts {
		fns = append(fns, fn)
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(address)
	}
}

// EmitChainChanged simulates a provider-originated network switch.
func (a *LocalAdapter) EmitChainChanged(chainID int64) {
	a.mu.Lock()
	fns := make([]func(int64), 0, len(a.onChain))
	for _, fn := range a.onChain {
		fns = append(fns, fn)
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(chainID)
	}
}

// EmitDisconnect simulates an external wallet disconnect.
func (a *LocalAdapter) EmitDisconnect() {
	a.mu.Lock()
	a.conn = nil
	fns := make([]func(), 0, len(a.onDisconnects))
	for _, fn := range a.onDisconnects {
		fns = append(fns, fn)
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
