package core

import "time"

// WalletAddress is one wallet linked to a user account.
type WalletAddress struct {
	Address  string    `json:"address"`
	Type     string    `json:"type"`
	LinkedAt time.Time `json:"linked_at"`
}

// User is the persistence collaborator's view of an authenticated user.
// The core treats it as opaque apart from the wallet link relation.
type User struct {
	ID              string            `json:"id"`
	Email           string            `json:"email"`
	EmailVerified   bool              `json:"email_verified"`
	DisplayName     string            `json:"display_name"`
	PhotoURL        string            `json:"photo_url"`
	WalletAddresses []WalletAddress   `json:"wallet_addresses,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// HasWallet reports whether addr (case-insensitive) is already linked.
func (u *User) HasWallet(addr string) bool {
	for _, w := range u.WalletAddresses {
		if EqualAddresses(w.Address, addr) {
			return true
		}
	}
	return false
}

// Credentials are the synthetic wallet-namespaced identity exchanged
// with the persistence collaborator after a successful backend exchange.
type Credentials struct {
	Email    string
	Password string
}

// AuthResult is the structured outcome of an authentication attempt.
type AuthResult struct {
	Success bool
	User    *User
	Error   *AuthError
}

// FailedResult wraps an error into an unsuccessful AuthResult.
func FailedResult(err error) AuthResult {
	return AuthResult{Success: false, Error: AsAuthError(err)}
}
