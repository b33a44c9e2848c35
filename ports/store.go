package ports

import (
	"context"
	"time"
)

// NonceStore tracks consumed challenge nonces so the backend rejects
// replays. Entries expire with the challenge they belong to.
type NonceStore interface {
	MarkUsed(ctx context.Context, nonce string, ttl time.Duration) error
	IsUsed(ctx context.Context, nonce string) (bool, error)
}
