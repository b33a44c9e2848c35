package ports

import (
	"context"
	"time"

	"github.com/veritasvault/vv-auth/core"
)

// AuditEvent is the structured record handed to the compliance sink.
type AuditEvent struct {
	Type          string            `json:"type"`
	UserID        string            `json:"user_id,omitempty"`
	Provider      string            `json:"provider"`
	WalletAddress string            `json:"wallet_address,omitempty"`
	WalletType    core.WalletType   `json:"wallet_type,omitempty"`
	At            time.Time         `json:"at"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Compliance is the pre-auth check and audit trail collaborator.
// PreAuthCheck failures abort authentication before any signature is
// requested. Logging failures are best-effort and must never replace
// the original authentication error.
type Compliance interface {
	PreAuthCheck(ctx context.Context, address string, walletType core.WalletType) error
	LogAuthEvent(ctx context.Context, ev AuditEvent) error
	LogWalletEvent(ctx context.Context, ev AuditEvent) error
}
