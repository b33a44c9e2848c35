// Package repo provides the in-memory user repository: the
// persistence collaborator double for the client core and the user
// directory for the backend verifier.
package repo

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veritasvault/vv-auth/core"
	"github.com/veritasvault/vv-auth/ports"
)

// MemoryRepository keeps users and the current session in memory. It
// implements both the UserRepository contract consumed by the auth
// provider and the UserDirectory contract consumed by the verifier.
type MemoryRepository struct {
	mu         sync.Mutex
	byEmail    map[string]*core.User
	byWallet   map[string]*core.User
	current    *core.User
	listenerID int
	listeners  map[int]func(ports.AuthChangeEvent, *core.User)

	// Failure injection for tests; nil means the call succeeds.
	SignInErr  *core.AuthError
	SignOutErr error
	GetUserErr error
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byEmail:   make(map[string]*core.User),
		byWallet:  make(map[string]*core.User),
		listeners: make(map[int]func(ports.AuthChangeEvent, *core.User)),
	}
}

// GetUser returns the currently signed-in user, nil when signed out.
func (r *MemoryRepository) GetUser(ctx context.Context) (*core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.GetUserErr != nil {
		return nil, r.GetUserErr
	}
	return r.current, nil
}

// SignIn resolves or creates the account for the synthetic wallet
// identity and opens a session. A wallet-style email local part links
// the wallet address on first sign-in.
func (r *MemoryRepository) SignIn(ctx context.Context, creds core.Credentials) core.AuthResult {
	r.mu.Lock()
	if r.SignInErr != nil {
		err := r.SignInErr
		r.mu.Unlock()
		return core.AuthResult{Success: false, Error: err}
	}
	if creds.Email == "" || creds.Password == "" {
		r.mu.Unlock()
		return core.FailedResult(core.ErrPersistenceSignInFailed)
	}

	email := strings.ToLower(creds.Email)
	user, ok := r.byEmail[email]
	if !ok {
		user = &core.User{
			ID:            uuid.New().String(),
			Email:         email,
			EmailVerified: true,
			Metadata:      map[string]string{"provider": "web3"},
		}
		if addr, found := walletFromEmail(email); found {
			user.WalletAddresses = []core.WalletAddress{{
				Address:  addr,
				Type:     "ethereum",
				LinkedAt: time.Now().UTC(),
			}}
			r.byWallet[addr] = user
		}
		r.byEmail[email] = user
	}
	r.current = user
	listeners := r.snapshotListeners()
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(ports.AuthSignedIn, user)
	}
	return core.AuthResult{Success: true, User: user}
}

// SignOut closes the current session. Signing out while signed out is
// a no-op.
func (r *MemoryRepository) SignOut(ctx context.Context) error {
	r.mu.Lock()
	err := r.SignOutErr
	r.current = nil
	listeners := r.snapshotListeners()
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(ports.AuthSignedOut, nil)
	}
	return err
}

// OnAuthStateChange registers a session change listener.
func (r *MemoryRepository) OnAuthStateChange(fn func(ports.AuthChangeEvent, *core.User)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.listenerID
	r.listenerID++
	r.listeners[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// FindByWallet returns the user linked to address, nil when none.
func (r *MemoryRepository) FindByWallet(ctx context.Context, address string) (*core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byWallet[core.NormalizeAddress(address)], nil
}

// CreateWalletUser creates a new account linked to address.
func (r *MemoryRepository) CreateWalletUser(ctx context.Context, address string, walletType core.WalletType) (*core.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr := core.NormalizeAddress(address)
	user := &core.User{
		ID:            uuid.New().String(),
		Email:         addr + "@web3auth.veritasvault.com",
		EmailVerified: true,
		WalletAddresses: []core.WalletAddress{{
			Address:  addr,
			Type:     "ethereum",
			LinkedAt: time.Now().UTC(),
		}},
		Metadata: map[string]string{
			"provider":    "web3",
			"wallet_type": string(walletType),
		},
	}
	r.byWallet[addr] = user
	r.byEmail[user.Email] = user
	return user, nil
}

// ExpireSession drops the current session and notifies listeners, the
// way a backend-side token revocation would surface.
func (r *MemoryRepository) ExpireSession() {
	r.mu.Lock()
	r.current = nil
	listeners := r.snapshotListeners()
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(ports.AuthSignedOut, nil)
	}
}

func (r *MemoryRepository) snapshotListeners() []func(ports.AuthChangeEvent, *core.User) {
	fns := make([]func(ports.AuthChangeEvent, *core.User), 0, len(r.listeners))
	for _, fn := range r.listeners {
		fns = append(fns, fn)
	}
	return fns
}

// walletFromEmail extracts a 0x-prefixed hex local part.
func walletFromEmail(email string) (string, bool) {
	local, _, ok := strings.Cut(email, "@")
	if !ok || !strings.HasPrefix(local, "0x") || len(local) != 42 {
		return "", false
	}
	return local, true
}
