package core

import (
	"strings"
	"time"
)

// WalletType identifies one wallet backend variant.
type WalletType string

const (
	WalletTypeMetaMask      WalletType = "metamask"
	WalletTypeWalletConnect WalletType = "walletconnect"
	WalletTypeCustodial     WalletType = "custodial"
	WalletTypeLocal         WalletType = "local"
)

// NormalizeAddress lowercases a hex address for storage and comparison.
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}

// EqualAddresses compares two hex addresses case-insensitively.
func EqualAddresses(a, b string) bool {
	return strings.EqualFold(a, b)
}

// WalletSessionState is the orchestrator's consolidated view of the
// live wallet connection. Connected implies a non-empty Address.
// Mutated only by the orchestrator; snapshots handed to subscribers.
type WalletSessionState struct {
	Connected  bool
	WalletType WalletType
	Address    string
	ChainID    int64
	// Handle is the opaque signer handle returned by the adapter on
	// connect. Owned by the adapter, never inspected by the core.
	Handle any
}

// SessionEventKind tags the variant of a session event.
type SessionEventKind string

const (
	SessionConnected      SessionEventKind = "connected"
	SessionDisconnected   SessionEventKind = "disconnected"
	SessionChainChanged   SessionEventKind = "chain_changed"
	SessionAccountChanged SessionEventKind = "account_changed"
	SessionExpired        SessionEventKind = "session_expired"
)

// SessionEvent pairs an event kind with the state snapshot at emission.
type SessionEvent struct {
	Kind  SessionEventKind
	State WalletSessionState
}

// AuthStatus is the authentication state machine status.
type AuthStatus string

const (
	StatusUnauthenticated  AuthStatus = "UNAUTHENTICATED"
	StatusChallengePending AuthStatus = "CHALLENGE_PENDING"
	StatusAuthenticated    AuthStatus = "AUTHENTICATED"
	StatusAuthError        AuthStatus = "AUTH_ERROR"
)

// AuthMethod is one way a user proved their identity.
type AuthMethod string

const (
	MethodWallet   AuthMethod = "wallet"
	MethodPassword AuthMethod = "password"
)

// AuthenticationState is owned by the auth provider; the orchestrator
// only observes it. Authenticated implies a non-empty UserID.
type AuthenticationState struct {
	Status            AuthStatus
	Error             *AuthError
	AuthenticatedWith map[AuthMethod]bool
	UserID            string
}

// Session is the backend's view of one issued bearer token.
type Session struct {
	ID        string
	UserID    string
	Address   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
