package ports

import (
	"context"

	"github.com/veritasvault/vv-auth/core"
)

// AuthChangeEvent is a persistence-layer session notification.
type AuthChangeEvent string

const (
	AuthSignedIn       AuthChangeEvent = "SIGNED_IN"
	AuthTokenRefreshed AuthChangeEvent = "TOKEN_REFRESHED"
	AuthSignedOut      AuthChangeEvent = "SIGNED_OUT"
)

// UserRepository is the persistence collaborator consumed by the auth
// provider. Users returned are already transformed to the core model.
type UserRepository interface {
	// GetUser returns the currently signed-in user, or nil without
	// error when no session exists.
	GetUser(ctx context.Context) (*core.User, error)

	SignIn(ctx context.Context, creds core.Credentials) core.AuthResult
	SignOut(ctx context.Context) error

	// OnAuthStateChange subscribes to session change notifications.
	// user is nil on sign-out events.
	OnAuthStateChange(fn func(event AuthChangeEvent, user *core.User)) (unsubscribe func())
}

// UserDirectory is the backend verifier's user store: lookup and
// creation of wallet-linked accounts.
type UserDirectory interface {
	FindByWallet(ctx context.Context, address string) (*core.User, error)
	CreateWalletUser(ctx context.Context, address string, walletType core.WalletType) (*core.User, error)
}
