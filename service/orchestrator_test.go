package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritasvault/vv-auth/adapters/wallet"
	"github.com/veritasvault/vv-auth/core"
	"github.com/veritasvault/vv-auth/ports"
	"github.com/veritasvault/vv-auth/service"
)

type eventCollector struct {
	mu     sync.Mutex
	events []core.SessionEvent
}

func (c *eventCollector) collect(ev core.SessionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *eventCollector) all() []core.SessionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.SessionEvent(nil), c.events...)
}

func (c *eventCollector) ofKind(kind core.SessionEventKind) []core.SessionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []core.SessionEvent
	for _, ev := range c.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func newOrchestratorEnv(t *testing.T) (*testEnv, *service.Orchestrator) {
	t.Helper()
	env := newTestEnv(t, service.ProviderConfig{})
	orch := service.NewOrchestrator(
		env.provider,
		[]ports.WalletAdapter{env.adapter},
		env.recorder,
		quietLogger(),
	)
	t.Cleanup(orch.Close)
	return env, orch
}

func TestConnectWalletSuccess(t *testing.T) {
	env, orch := newOrchestratorEnv(t)

	var collector eventCollector
	orch.OnSessionChange(collector.collect)

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.True(t, res.Success)

	state := orch.SessionState()
	assert.True(t, state.Connected)
	assert.Equal(t, core.WalletTypeMetaMask, state.WalletType)
	assert.Equal(t, core.NormalizeAddress(env.adapter.Address()), state.Address)
	assert.Equal(t, int64(1), state.ChainID)

	// Address invariant holds on every published snapshot.
	for _, ev := range collector.all() {
		if ev.State.Connected {
			assert.NotEmpty(t, ev.State.Address)
		}
	}

	connected := collector.ofKind(core.SessionConnected)
	require.Len(t, connected, 2, "optimistic connect plus authenticated finalize")

	assert.Equal(t, core.StatusAuthenticated, env.provider.AuthState().Status)
}

func TestConnectWalletAuthFailureResetsSession(t *testing.T) {
	env, orch := newOrchestratorEnv(t)
	env.exchanger.err = core.ErrBackendAuthRejected

	var collector eventCollector
	orch.OnSessionChange(collector.collect)

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.False(t, res.Success)
	assert.Equal(t, core.CodeBackendAuthRejected, res.Error.Code)

	state := orch.SessionState()
	assert.False(t, state.Connected)
	assert.Empty(t, state.Address)
	assert.Equal(t, core.WalletType(""), state.WalletType)

	// The optimistic connect and the rollback are both observable.
	require.NotEmpty(t, collector.ofKind(core.SessionConnected))
	require.NotEmpty(t, collector.ofKind(core.SessionDisconnected))

	walletEvents := env.recorder.WalletEvents()
	var kinds []string
	for _, ev := range walletEvents {
		kinds = append(kinds, ev.Type)
	}
	assert.Contains(t, kinds, "WALLET_CONNECTED")
	assert.Contains(t, kinds, "WALLET_CONNECTION_ERROR")
}

// Every injected login failure leaves the session disconnected and the
// auth state terminal, never partially connected.
func TestConnectWalletFailuresLeaveSessionDisconnected(t *testing.T) {
	inject := map[string]func(env *testEnv){
		"connect":     func(env *testEnv) { env.adapter.ConnectErr = errors.New("boom") },
		"precheck":    func(env *testEnv) { env.recorder.PreCheckErr = errors.New("boom") },
		"sign":        func(env *testEnv) { env.adapter.SignErr = errors.New("boom") },
		"verify":      func(env *testEnv) { env.adapter.AddressOverride = "0x0000000000000000000000000000000000000001" },
		"exchange":    func(env *testEnv) { env.exchanger.err = core.ErrBackendExchangeFailed },
		"rejected":    func(env *testEnv) { env.exchanger.err = core.ErrBackendAuthRejected },
		"persistence": func(env *testEnv) { env.repository.SignInErr = core.NewAuthError("x", "y", nil) },
	}
	for name, setup := range inject {
		t.Run(name, func(t *testing.T) {
			env, orch := newOrchestratorEnv(t)
			setup(env)

			res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
			require.False(t, res.Success)

			state := orch.SessionState()
			assert.False(t, state.Connected)
			assert.Empty(t, state.Address)
			assert.NotEqual(t, core.StatusAuthenticated, env.provider.AuthState().Status)
			assert.NotEqual(t, core.StatusChallengePending, env.provider.AuthState().Status)
		})
	}
}

func TestConnectWalletAdapterFailure(t *testing.T) {
	env, orch := newOrchestratorEnv(t)
	env.adapter.ConnectErr = errors.New("user rejected")

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.False(t, res.Success)
	assert.Equal(t, core.CodeWalletConnectionFailed, res.Error.Code)
	assert.False(t, orch.SessionState().Connected)
}

func TestConnectWalletUnsupportedType(t *testing.T) {
	_, orch := newOrchestratorEnv(t)

	res := orch.ConnectWallet(context.Background(), core.WalletTypeWalletConnect, nil)
	require.False(t, res.Success)
	assert.Equal(t, core.CodeUnsupportedWallet, res.Error.Code)
}

// blockingAdapter parks Connect until released so a second attempt can
// observe the in-flight guard.
type blockingAdapter struct {
	*wallet.LocalAdapter
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (a *blockingAdapter) Connect(ctx context.Context, opts *ports.ConnectionOptions) (*ports.WalletConnection, error) {
	a.once.Do(func() { close(a.entered) })
	<-a.release
	return a.LocalAdapter.Connect(ctx, opts)
}

func TestConnectWalletInFlightGuard(t *testing.T) {
	env := newTestEnv(t, service.ProviderConfig{})
	blocking := &blockingAdapter{
		LocalAdapter: env.adapter.LocalAdapter,
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	orch := service.NewOrchestrator(
		env.provider,
		[]ports.WalletAdapter{blocking},
		env.recorder,
		quietLogger(),
	)
	t.Cleanup(orch.Close)

	done := make(chan core.AuthResult, 1)
	go func() {
		done <- orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	}()

	<-blocking.entered
	second := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.False(t, second.Success)
	assert.Equal(t, core.CodeConnectInFlight, second.Error.Code)

	close(blocking.release)
	first := <-done
	assert.True(t, first.Success)

	// The guard clears once the first attempt settles.
	orch.DisconnectWallet(context.Background())
	retry := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	assert.True(t, retry.Success)
}

func TestDisconnectWalletIdempotent(t *testing.T) {
	env, orch := newOrchestratorEnv(t)

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.True(t, res.Success)

	assert.True(t, orch.DisconnectWallet(context.Background()))
	assert.False(t, orch.SessionState().Connected)
	assert.Equal(t, core.StatusUnauthenticated, env.provider.AuthState().Status)

	// Second disconnect is a no-op with the same observable snapshot.
	assert.True(t, orch.DisconnectWallet(context.Background()))
	assert.Equal(t, core.WalletSessionState{}, orch.SessionState())
}

func TestAccountSwitchUpdatesAddressOnly(t *testing.T) {
	env, orch := newOrchestratorEnv(t)

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.True(t, res.Success)
	before := orch.SessionState()
	authBefore := env.provider.AuthState()

	var collector eventCollector
	orch.OnSessionChange(collector.collect)

	next := "0x742D35Cc6634C0532925a3b844Bc454e4438F44E"
	env.adapter.EmitAccountsChanged(next)

	state := orch.SessionState()
	assert.Equal(t, core.NormalizeAddress(next), state.Address)
	assert.Equal(t, before.Connected, state.Connected)
	assert.Equal(t, before.ChainID, state.ChainID)

	switches := collector.ofKind(core.SessionAccountChanged)
	require.Len(t, switches, 1)

	// Auth state is untouched; forcing re-auth is application policy.
	assert.Equal(t, authBefore.Status, env.provider.AuthState().Status)

	// Re-announcing the current address is a no-op.
	env.adapter.EmitAccountsChanged(next)
	assert.Len(t, collector.ofKind(core.SessionAccountChanged), 1)
}

func TestAccountSwitchToEmptyResetsSession(t *testing.T) {
	env, orch := newOrchestratorEnv(t)

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.True(t, res.Success)

	var collector eventCollector
	orch.OnSessionChange(collector.collect)

	env.adapter.EmitAccountsChanged("")

	assert.Equal(t, core.WalletSessionState{}, orch.SessionState())
	require.Len(t, collector.ofKind(core.SessionAccountChanged), 1)
}

func TestChainChanged(t *testing.T) {
	env, orch := newOrchestratorEnv(t)

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.True(t, res.Success)

	var collector eventCollector
	orch.OnSessionChange(collector.collect)

	env.adapter.EmitChainChanged(137)
	assert.Equal(t, int64(137), orch.SessionState().ChainID)
	require.Len(t, collector.ofKind(core.SessionChainChanged), 1)

	// Same chain announced again does not re-publish.
	env.adapter.EmitChainChanged(137)
	assert.Len(t, collector.ofKind(core.SessionChainChanged), 1)
}

func TestAdapterDisconnectResetsSession(t *testing.T) {
	env, orch := newOrchestratorEnv(t)

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.True(t, res.Success)

	env.adapter.EmitDisconnect()
	assert.Equal(t, core.WalletSessionState{}, orch.SessionState())
}

func TestBackendSessionExpiryFlipsConnectedOnly(t *testing.T) {
	env, orch := newOrchestratorEnv(t)

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.True(t, res.Success)
	address := orch.SessionState().Address

	var collector eventCollector
	orch.OnSessionChange(collector.collect)

	env.repository.ExpireSession()

	state := orch.SessionState()
	assert.False(t, state.Connected)
	// The wallet-level link survives; only the auth binding is gone.
	assert.Equal(t, address, state.Address)

	expired := collector.ofKind(core.SessionExpired)
	require.Len(t, expired, 1)
	assert.False(t, expired[0].State.Connected)
}

func TestSwitchNetwork(t *testing.T) {
	env, orch := newOrchestratorEnv(t)

	assert.False(t, orch.SwitchNetwork(context.Background(), 137, ""), "refused while disconnected")

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.True(t, res.Success)

	assert.True(t, orch.SwitchNetwork(context.Background(), 137, "https://polygon-rpc.com"))
	assert.Equal(t, int64(137), orch.SessionState().ChainID)

	env.adapter.SwitchErr = errors.New("chain not added")
	assert.False(t, orch.SwitchNetwork(context.Background(), 42161, ""))
	// Failed switch leaves the session on the previous chain.
	assert.Equal(t, int64(137), orch.SessionState().ChainID)
}

func TestOrchestratorSignMessage(t *testing.T) {
	env, orch := newOrchestratorEnv(t)

	_, err := orch.SignMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, core.ErrNotConnected)

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.True(t, res.Success)

	long := strings.Repeat("a", 300)
	signature, err := orch.SignMessage(context.Background(), long)
	require.NoError(t, err)
	assert.NotEmpty(t, signature)

	var signed *ports.AuditEvent
	for _, ev := range env.recorder.WalletEvents() {
		if ev.Type == "MESSAGE_SIGNED" {
			ev := ev
			signed = &ev
		}
	}
	require.NotNil(t, signed)
	preview := signed.Metadata["message_preview"]
	assert.Len(t, preview, 103, "100 chars plus ellipsis")
	assert.True(t, strings.HasSuffix(preview, "..."))
}

func TestOrchestratorSendTransaction(t *testing.T) {
	_, orch := newOrchestratorEnv(t)

	tx := core.TransactionRequest{
		To:    "0x742d35cc6634c0532925a3b844bc454e4438f44e",
		Value: decimal.NewFromFloat(0.25),
	}
	_, err := orch.SendTransaction(context.Background(), tx)
	assert.ErrorIs(t, err, core.ErrNotConnected)

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.True(t, res.Success)

	hash, err := orch.SendTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "0x"))

	again, err := orch.SendTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.NotEqual(t, hash, again)
}

func TestSubscribeReplaysCurrentSessionState(t *testing.T) {
	_, orch := newOrchestratorEnv(t)

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.True(t, res.Success)

	var collector eventCollector
	orch.OnSessionChange(collector.collect)

	all := collector.all()
	require.Len(t, all, 1)
	assert.True(t, all[0].State.Connected)
}

func TestUnsubscribeStopsSessionDelivery(t *testing.T) {
	_, orch := newOrchestratorEnv(t)

	var collector eventCollector
	unsubscribe := orch.OnSessionChange(collector.collect)
	replayed := len(collector.all())
	unsubscribe()

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.True(t, res.Success)
	assert.Len(t, collector.all(), replayed)
}

func TestCloseDeregistersListeners(t *testing.T) {
	env, orch := newOrchestratorEnv(t)

	res := orch.ConnectWallet(context.Background(), core.WalletTypeMetaMask, nil)
	require.True(t, res.Success)
	before := orch.SessionState()

	orch.Close()

	env.adapter.EmitChainChanged(999)
	env.adapter.EmitAccountsChanged("0x0000000000000000000000000000000000000009")
	assert.Equal(t, before, orch.SessionState())

	// Close is idempotent.
	orch.Close()
}

// A cancelled context surfaces as a connection failure instead of
// hanging the flow.
func TestConnectWalletRespectsContext(t *testing.T) {
	_, orch := newOrchestratorEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := orch.ConnectWallet(ctx, core.WalletTypeMetaMask, nil)
	require.False(t, res.Success)
	assert.Equal(t, core.CodeWalletConnectionFailed, res.Error.Code)
	assert.False(t, orch.SessionState().Connected)
}
