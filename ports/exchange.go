package ports

import "context"

// TokenExchanger trades a verified signature for a backend-issued
// bearer token.
type TokenExchanger interface {
	Exchange(ctx context.Context, address, message, signature string) (jwt string, err error)
}
