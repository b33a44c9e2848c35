package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/veritasvault/vv-auth/core"
	"github.com/veritasvault/vv-auth/events"
	"github.com/veritasvault/vv-auth/ports"
)

// messagePreviewLen bounds how much signed-message content reaches the
// audit trail.
const messagePreviewLen = 100

// Orchestrator owns the live WalletSessionState, merges wallet-provider
// events with authentication outcomes, and re-broadcasts a consolidated
// session state to subscribers.
//
// All state mutation is serialized behind a mutex; session callbacks
// run synchronously in mutation order and must not call back into the
// orchestrator.
type Orchestrator struct {
	provider   *Provider
	adapters   map[core.WalletType]ports.WalletAdapter
	compliance ports.Compliance
	bus        *events.Bus
	logger     *slog.Logger

	mu       sync.Mutex
	state    core.WalletSessionState
	inFlight bool

	closeOnce sync.Once
	unsubs    []func()
}

// NewOrchestrator creates an orchestrator and registers exactly one
// listener per adapter plus one auth-state listener; Close deregisters
// them, so repeated construction against a shared adapter never leaves
// duplicate delivery behind.
func NewOrchestrator(provider *Provider, adapters []ports.WalletAdapter, compliance ports.Compliance, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	byType := make(map[core.WalletType]ports.WalletAdapter, len(adapters))
	for _, a := range adapters {
		byType[a.Type()] = a
	}

	o := &Orchestrator{
		provider:   provider,
		adapters:   byType,
		compliance: compliance,
		bus:        events.NewBus(core.WalletSessionState{}),
		logger:     logger.With("component", "wallet-orchestrator"),
	}

	for _, a := range adapters {
		o.unsubs = append(o.unsubs,
			a.OnAccountsChanged(o.handleAccountsChanged),
			a.OnChainChanged(o.handleChainChanged),
			a.OnDisconnect(o.handleAdapterDisconnect),
		)
	}
	o.unsubs = append(o.unsubs, provider.OnAuthStateChanged(o.handleAuthChange))

	return o
}

// Close deregisters all provider and adapter listeners.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		for _, unsub := range o.unsubs {
			unsub()
		}
	})
}

// mutate applies a state change and notifies subscribers before any
// later mutation can interleave.
func (o *Orchestrator) mutate(kind core.SessionEventKind, apply func(*core.WalletSessionState)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	apply(&o.state)
	o.bus.Publish(core.SessionEvent{Kind: kind, State: o.state})
}

func resetState(s *core.WalletSessionState) {
	*s = core.WalletSessionState{}
}

// ConnectWallet composes the adapter connection with provider login.
// Session state is updated optimistically once the wallet-level connect
// succeeds, then finalized on the authentication result; any failure
// fully resets the session to the disconnected variant. A second call
// while one is pending fails fast with ConnectInFlight.
func (o *Orchestrator) ConnectWallet(ctx context.Context, walletType core.WalletType, opts *ports.ConnectionOptions) core.AuthResult {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return core.FailedResult(core.ErrConnectInFlight)
	}
	o.inFlight = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	adapter, ok := o.adapters[walletType]
	if !ok {
		return o.failConnect(ctx, walletType, fmt.Errorf("%w: %q", core.ErrUnsupportedWallet, walletType))
	}

	conn, err := adapter.Connect(ctx, opts)
	if err != nil {
		return o.failConnect(ctx, walletType, fmt.Errorf("%w: %v", core.ErrWalletConnectionFailed, err))
	}

	o.mutate(core.SessionConnected, func(s *core.WalletSessionState) {
		s.Connected = true
		s.WalletType = walletType
		s.Address = core.NormalizeAddress(conn.Address)
		s.ChainID = conn.ChainID
		s.Handle = conn.Handle
	})
	o.logWalletEvent(ctx, "WALLET_CONNECTED", map[string]string{
		"chain_id": fmt.Sprintf("%d", conn.ChainID),
	})

	res := o.provider.LoginWithWallet(ctx, walletType, opts)
	if !res.Success {
		o.mutate(core.SessionDisconnected, resetState)
		o.logWalletEvent(ctx, "WALLET_CONNECTION_ERROR", map[string]string{
			"error_code": res.Error.Code,
		})
		return res
	}

	// Finalize: wallet connected and session authenticated.
	o.mutate(core.SessionConnected, func(s *core.WalletSessionState) {
		s.Connected = true
	})
	return res
}

func (o *Orchestrator) failConnect(ctx context.Context, walletType core.WalletType, err error) core.AuthResult {
	o.mutate(core.SessionDisconnected, resetState)
	authErr := core.AsAuthError(err)
	o.logger.Warn("wallet connect failed", "wallet_type", walletType, "code", authErr.Code)
	o.logWalletEvent(ctx, "WALLET_CONNECTION_ERROR", map[string]string{
		"wallet_type": string(walletType),
		"error_code":  authErr.Code,
	})
	return core.AuthResult{Success: false, Error: authErr}
}

// DisconnectWallet logs out and resets the session. Idempotent: a
// second call is a no-op producing the same disconnected snapshot.
func (o *Orchestrator) DisconnectWallet(ctx context.Context) bool {
	o.mu.Lock()
	walletType := o.state.WalletType
	address := o.state.Address
	o.mu.Unlock()

	ok := o.provider.Logout(ctx)

	o.mutate(core.SessionDisconnected, resetState)
	o.logWalletEvent(ctx, "WALLET_DISCONNECTED", map[string]string{
		"wallet_type": string(walletType),
		"address":     address,
	})
	return ok
}

// SessionState returns a snapshot of the consolidated session state.
func (o *Orchestrator) SessionState() core.WalletSessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// GetWalletAddress returns the session address, falling back to the
// provider's view when the orchestrator has no connection.
func (o *Orchestrator) GetWalletAddress() string {
	o.mu.Lock()
	if o.state.Connected && o.state.Address != "" {
		addr := o.state.Address
		o.mu.Unlock()
		return addr
	}
	o.mu.Unlock()
	return o.provider.GetWalletAddress()
}

// SignMessage signs message with the connected wallet. The audit
// record carries at most a bounded preview of the message content.
func (o *Orchestrator) SignMessage(ctx context.Context, message string) (string, error) {
	o.mu.Lock()
	connected := o.state.Connected
	address := o.state.Address
	o.mu.Unlock()

	if !connected {
		return "", core.ErrNotConnected
	}

	signature, err := o.provider.SignMessage(ctx, message)
	if err != nil {
		o.logWalletEvent(ctx, "MESSAGE_SIGNING_ERROR", map[string]string{
			"error": err.Error(),
		})
		return "", err
	}

	o.logWalletEvent(ctx, "MESSAGE_SIGNED", map[string]string{
		"message_preview": truncate(message, messagePreviewLen),
		"address":         address,
	})
	return signature, nil
}

// SendTransaction submits tx through the connected wallet.
func (o *Orchestrator) SendTransaction(ctx context.Context, tx core.TransactionRequest) (string, error) {
	o.mu.Lock()
	connected := o.state.Connected
	walletType := o.state.WalletType
	handle := o.state.Handle
	o.mu.Unlock()

	if !connected {
		return "", core.ErrNotConnected
	}
	adapter, ok := o.adapters[walletType]
	if !ok {
		return "", fmt.Errorf("%w: %q", core.ErrUnsupportedWallet, walletType)
	}

	hash, err := adapter.SendTransaction(ctx, tx, handle)
	if err != nil {
		o.logWalletEvent(ctx, "TRANSACTION_ERROR", map[string]string{"error": err.Error()})
		return "", err
	}
	o.logWalletEvent(ctx, "TRANSACTION_SENT", map[string]string{
		"tx_hash": hash,
		"to":      tx.To,
		"value":   tx.Value.String(),
	})
	return hash, nil
}

// SwitchNetwork asks the connected wallet to move to chainID. On
// failure it returns false without mutating state; the attempt is
// audit-logged either way.
func (o *Orchestrator) SwitchNetwork(ctx context.Context, chainID int64, rpcURL string) bool {
	o.mu.Lock()
	connected := o.state.Connected
	walletType := o.state.WalletType
	handle := o.state.Handle
	previous := o.state.ChainID
	o.mu.Unlock()

	if !connected {
		o.logger.Debug("switch network refused, not connected", "chain_id", chainID)
		return false
	}
	adapter, ok := o.adapters[walletType]
	if !ok {
		return false
	}

	if err := adapter.SwitchChain(ctx, handle, chainID, rpcURL); err != nil {
		o.logger.Warn("network switch failed", "chain_id", chainID, "error", err)
		o.logWalletEvent(ctx, "NETWORK_SWITCH_ERROR", map[string]string{
			"chain_id": fmt.Sprintf("%d", chainID),
			"error":    err.Error(),
		})
		return false
	}

	o.mutate(core.SessionChainChanged, func(s *core.WalletSessionState) {
		s.ChainID = chainID
	})
	o.logWalletEvent(ctx, "NETWORK_SWITCHED", map[string]string{
		"chain_id":          fmt.Sprintf("%d", chainID),
		"previous_chain_id": fmt.Sprintf("%d", previous),
	})
	return true
}

// OnSessionChange subscribes to consolidated session events. The
// callback is invoked immediately with the current snapshot, then on
// every subsequent mutation in the order they occurred.
func (o *Orchestrator) OnSessionChange(fn func(core.SessionEvent)) (unsubscribe func()) {
	return o.bus.Subscribe(fn)
}

// handleAccountsChanged mirrors a provider account switch into session
// state. An empty address is a full disconnect; a different non-empty
// address only updates the observable state — whether to force
// re-authentication is the application's policy decision.
func (o *Orchestrator) handleAccountsChanged(address string) {
	o.mu.Lock()
	if core.EqualAddresses(o.state.Address, address) {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	if address == "" {
		o.mutate(core.SessionAccountChanged, resetState)
		return
	}
	o.mutate(core.SessionAccountChanged, func(s *core.WalletSessionState) {
		s.Address = core.NormalizeAddress(address)
	})
}

func (o *Orchestrator) handleChainChanged(chainID int64) {
	o.mu.Lock()
	if o.state.ChainID == chainID {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	o.mutate(core.SessionChainChanged, func(s *core.WalletSessionState) {
		s.ChainID = chainID
	})
}

func (o *Orchestrator) handleAdapterDisconnect() {
	o.mutate(core.SessionDisconnected, resetState)
}

// handleAuthChange reconciles backend session loss with wallet state:
// the wallet may still report connected while the authenticated
// session is gone, so only the connected flag flips.
func (o *Orchestrator) handleAuthChange(user *core.User) {
	o.mu.Lock()
	lost := user == nil && o.state.Connected
	o.mu.Unlock()

	if !lost {
		return
	}
	o.mutate(core.SessionExpired, func(s *core.WalletSessionState) {
		s.Connected = false
	})
}

func (o *Orchestrator) logWalletEvent(ctx context.Context, eventType string, metadata map[string]string) {
	if o.compliance == nil {
		return
	}
	o.mu.Lock()
	address := o.state.Address
	walletType := o.state.WalletType
	o.mu.Unlock()

	ev := ports.AuditEvent{
		Type:          eventType,
		Provider:      providerName,
		WalletAddress: address,
		WalletType:    walletType,
		At:            time.Now().UTC(),
		Metadata:      metadata,
	}
	if err := o.compliance.LogWalletEvent(ctx, ev); err != nil {
		o.logger.Warn("audit log failed", "event", eventType, "error", err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
