package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/veritasvault/vv-auth/core"
	"github.com/veritasvault/vv-auth/ports"
	"github.com/veritasvault/vv-auth/siwe"
)

const providerName = "web3"

// ProviderConfig configures the challenge a provider issues and the
// timeouts around its network-bound steps.
type ProviderConfig struct {
	Domain    string
	Statement string
	URI       string
	Version   string
	ChainID   int64

	// ChallengeTTL bounds how long a signature over a challenge stays
	// acceptable.
	ChallengeTTL time.Duration

	// WalletTimeout bounds wallet prompts (connect, sign); a hung
	// extension prompt must not stall the flow indefinitely.
	WalletTimeout time.Duration

	// ExchangeTimeout bounds the backend token exchange.
	ExchangeTimeout time.Duration

	// EmailDomain namespaces the synthetic identity used to sign in
	// against the persistence collaborator.
	EmailDomain string
}

func (c *ProviderConfig) applyDefaults() {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.ChainID == 0 {
		c.ChainID = 1
	}
	if c.ChallengeTTL == 0 {
		c.ChallengeTTL = 5 * time.Minute
	}
	if c.WalletTimeout == 0 {
		c.WalletTimeout = 60 * time.Second
	}
	if c.ExchangeTimeout == 0 {
		c.ExchangeTimeout = 15 * time.Second
	}
	if c.EmailDomain == "" {
		c.EmailDomain = "web3auth.veritasvault.com"
	}
}

// Provider authenticates users by wallet proof-of-possession: connect,
// challenge, sign, verify, backend exchange, persistence sign-in. It
// owns the AuthenticationState machine.
type Provider struct {
	cfg        ProviderConfig
	repo       ports.UserRepository
	exchanger  ports.TokenExchanger
	compliance ports.Compliance
	adapters   map[core.WalletType]ports.WalletAdapter
	logger     *slog.Logger

	mu         sync.Mutex
	state      core.AuthenticationState
	walletType core.WalletType
	conn       *ports.WalletConnection
}

// NewProvider creates a provider. compliance may be nil to disable the
// pre-auth gate and audit trail.
func NewProvider(
	cfg ProviderConfig,
	repo ports.UserRepository,
	exchanger ports.TokenExchanger,
	compliance ports.Compliance,
	adapters []ports.WalletAdapter,
	logger *slog.Logger,
) *Provider {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	byType := make(map[core.WalletType]ports.WalletAdapter, len(adapters))
	for _, a := range adapters {
		byType[a.Type()] = a
	}

	return &Provider{
		cfg:        cfg,
		repo:       repo,
		exchanger:  exchanger,
		compliance: compliance,
		adapters:   byType,
		logger:     logger.With("component", "web3-auth-provider"),
		state: core.AuthenticationState{
			Status:            core.StatusUnauthenticated,
			AuthenticatedWith: map[core.AuthMethod]bool{},
		},
	}
}

// Adapter returns the registered adapter for walletType.
func (p *Provider) Adapter(walletType core.WalletType) (ports.WalletAdapter, bool) {
	a, ok := p.adapters[walletType]
	return a, ok
}

// AuthState returns a copy of the current authentication state.
func (p *Provider) AuthState() core.AuthenticationState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.state
	st.AuthenticatedWith = make(map[core.AuthMethod]bool, len(p.state.AuthenticatedWith))
	for m, v := range p.state.AuthenticatedWith {
		st.AuthenticatedWith[m] = v
	}
	return st
}

// LoginWithWallet runs one authentication attempt end-to-end. Every
// exit path leaves the state machine in a terminal variant: it never
// returns while still CHALLENGE_PENDING.
func (p *Provider) LoginWithWallet(ctx context.Context, walletType core.WalletType, opts *ports.ConnectionOptions) core.AuthResult {
	p.setStatus(core.StatusChallengePending, nil)

	user, address, err := p.login(ctx, walletType, opts)
	if err != nil {
		authErr := core.AsAuthError(err)
		p.mu.Lock()
		p.state.Status = core.StatusAuthError
		p.state.Error = authErr
		p.conn = nil
		p.walletType = ""
		p.mu.Unlock()

		p.logger.Warn("wallet login failed", "wallet_type", walletType, "code", authErr.Code)
		p.logAuthEvent(ctx, "LOGIN_FAILURE", "", map[string]string{
			"wallet_type": string(walletType),
			"error_code":  authErr.Code,
			"error":       authErr.Message,
		})
		return core.AuthResult{Success: false, Error: authErr}
	}

	p.mu.Lock()
	p.state.Status = core.StatusAuthenticated
	p.state.Error = nil
	p.state.UserID = user.ID
	p.state.AuthenticatedWith[core.MethodWallet] = true
	p.mu.Unlock()

	p.logger.Info("wallet login succeeded", "wallet_type", walletType, "user_id", user.ID)
	p.logAuthEvent(ctx, "LOGIN_WALLET", user.ID, map[string]string{
		"wallet_type":    string(walletType),
		"wallet_address": core.NormalizeAddress(address),
	})
	return core.AuthResult{Success: true, User: user}
}

// login executes the sequential step chain; the caller is the single
// catch boundary that maps failures onto the terminal state.
func (p *Provider) login(ctx context.Context, walletType core.WalletType, opts *ports.ConnectionOptions) (*core.User, string, error) {
	adapter, ok := p.adapters[walletType]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", core.ErrUnsupportedWallet, walletType)
	}

	connectCtx, cancel := context.WithTimeout(ctx, p.cfg.WalletTimeout)
	conn, err := adapter.Connect(connectCtx, opts)
	cancel()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", core.ErrWalletConnectionFailed, err)
	}

	p.mu.Lock()
	p.conn = conn
	p.walletType = walletType
	p.mu.Unlock()

	// Compliance gate before the user is ever asked to sign.
	if p.compliance != nil {
		if err := p.compliance.PreAuthCheck(ctx, conn.Address, walletType); err != nil {
			return nil, "", fmt.Errorf("%w: %v", core.ErrComplianceRejected, err)
		}
	}

	nonce, err := siwe.GenerateNonce()
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	challenge := core.Challenge{
		Domain:         p.cfg.Domain,
		Address:        conn.Address,
		Statement:      p.cfg.Statement,
		URI:            p.cfg.URI,
		Version:        p.cfg.Version,
		ChainID:        p.cfg.ChainID,
		Nonce:          nonce,
		IssuedAt:       now,
		ExpirationTime: now.Add(p.cfg.ChallengeTTL),
	}
	message := siwe.BuildMessage(challenge)

	signCtx, cancel := context.WithTimeout(ctx, p.cfg.WalletTimeout)
	signature, err := adapter.SignMessage(signCtx, message, conn.Handle)
	cancel()
	if err != nil {
		return nil, "", fmt.Errorf("%w: signing failed: %v", core.ErrWalletConnectionFailed, err)
	}

	// A signature produced after expiry is rejected even if valid.
	if challenge.Expired(time.Now()) {
		return nil, "", core.ErrChallengeExpired
	}

	// Local verification; on failure the backend is never contacted.
	if !siwe.Verify(message, signature, conn.Address) {
		return nil, "", core.ErrInvalidSignature
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, p.cfg.ExchangeTimeout)
	token, err := p.exchanger.Exchange(exchangeCtx, conn.Address, message, signature)
	cancel()
	if err != nil {
		return nil, "", err
	}

	res := p.repo.SignIn(ctx, core.Credentials{
		Email:    fmt.Sprintf("%s@%s", core.NormalizeAddress(conn.Address), p.cfg.EmailDomain),
		Password: token,
	})
	if !res.Success {
		var cause error
		if res.Error != nil {
			cause = res.Error
		}
		return nil, "", fmt.Errorf("%w: %v", core.ErrPersistenceSignInFailed, cause)
	}

	return res.User, conn.Address, nil
}

// GetCurrentUser returns the signed-in user, or nil on any lookup
// failure. Callers doing a presence check never see an error.
func (p *Provider) GetCurrentUser(ctx context.Context) *core.User {
	user, err := p.repo.GetUser(ctx)
	if err != nil {
		p.logger.Debug("current user lookup failed", "error", err)
		return nil
	}
	return user
}

// Logout signs out of the persistence layer and unconditionally drops
// local session material; a transport failure returns false but never
// leaves a ghost session.
func (p *Provider) Logout(ctx context.Context) bool {
	user := p.GetCurrentUser(ctx)

	err := p.repo.SignOut(ctx)

	p.mu.Lock()
	p.conn = nil
	p.walletType = ""
	p.state.Status = core.StatusUnauthenticated
	p.state.Error = nil
	p.state.UserID = ""
	p.state.AuthenticatedWith = map[core.AuthMethod]bool{}
	p.mu.Unlock()

	userID := ""
	if user != nil {
		userID = user.ID
	}
	p.logAuthEvent(ctx, "LOGOUT", userID, nil)

	if err != nil {
		p.logger.Warn("persistence sign-out failed", "error", err)
		return false
	}
	return true
}

// OnAuthStateChanged forwards persistence session changes as a
// transformed user (nil on sign-out). Safe to call before any login;
// the initial callback reflects whatever the persistence layer
// currently reports.
func (p *Provider) OnAuthStateChanged(fn func(user *core.User)) (unsubscribe func()) {
	return p.repo.OnAuthStateChange(func(event ports.AuthChangeEvent, user *core.User) {
		switch event {
		case ports.AuthSignedIn, ports.AuthTokenRefreshed:
			fn(user)
		case ports.AuthSignedOut:
			p.mu.Lock()
			p.conn = nil
			p.walletType = ""
			p.mu.Unlock()
			fn(nil)
		}
	})
}

// SignMessage signs an arbitrary message with the connected wallet.
func (p *Provider) SignMessage(ctx context.Context, message string) (string, error) {
	p.mu.Lock()
	conn := p.conn
	walletType := p.walletType
	p.mu.Unlock()

	if conn == nil {
		return "", core.ErrNotConnected
	}
	adapter, ok := p.adapters[walletType]
	if !ok {
		return "", fmt.Errorf("%w: %q", core.ErrUnsupportedWallet, walletType)
	}

	signCtx, cancel := context.WithTimeout(ctx, p.cfg.WalletTimeout)
	defer cancel()
	return adapter.SignMessage(signCtx, message, conn.Handle)
}

// GetWalletAddress returns the connected address, or "" when none.
func (p *Provider) GetWalletAddress() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return ""
	}
	return p.conn.Address
}

func (p *Provider) setStatus(status core.AuthStatus, err *core.AuthError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Status = status
	p.state.Error = err
}

// logAuthEvent is best-effort: a compliance sink failure never masks
// the outcome it records.
func (p *Provider) logAuthEvent(ctx context.Context, eventType, userID string, metadata map[string]string) {
	if p.compliance == nil {
		return
	}
	ev := ports.AuditEvent{
		Type:     eventType,
		UserID:   userID,
		Provider: providerName,
		At:       time.Now().UTC(),
		Metadata: metadata,
	}
	if err := p.compliance.LogAuthEvent(ctx, ev); err != nil {
		p.logger.Warn("audit log failed", "event", eventType, "error", err)
	}
}
