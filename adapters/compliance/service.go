// Package compliance provides Compliance implementations: a denylist
// gate with structured audit logging, and a recorder for tests.
package compliance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veritasvault/vv-auth/core"
	"github.com/veritasvault/vv-auth/ports"
)

// Service implements the Compliance contract with an address denylist
// pre-check. Events are logged structurally and, when a publisher is
// configured, fanned out for the audit trail.
type Service struct {
	denylist  map[string]struct{}
	publisher ports.EventPublisher
	logger    *slog.Logger
}

// NewService creates a compliance service. publisher may be nil;
// denied lists addresses that must never be asked to sign.
func NewService(denied []string, publisher ports.EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	denylist := make(map[string]struct{}, len(denied))
	for _, addr := range denied {
		denylist[core.NormalizeAddress(addr)] = struct{}{}
	}
	return &Service{
		denylist:  denylist,
		publisher: publisher,
		logger:    logger.With("component", "compliance"),
	}
}

// PreAuthCheck rejects denylisted addresses before any signature is
// requested.
func (s *Service) PreAuthCheck(ctx context.Context, address string, walletType core.WalletType) error {
	if _, denied := s.denylist[core.NormalizeAddress(address)]; denied {
		s.logger.Warn("pre-auth check rejected", "address", core.NormalizeAddress(address), "wallet_type", walletType)
		return fmt.Errorf("%w: address is denylisted", core.ErrComplianceRejected)
	}
	return nil
}

// LogAuthEvent records an authentication audit event.
func (s *Service) LogAuthEvent(ctx context.Context, ev ports.AuditEvent) error {
	s.logger.Info("auth event", "type", ev.Type, "user_id", ev.UserID, "provider", ev.Provider)
	return s.publish(ctx, ev)
}

// LogWalletEvent records a wallet session audit event.
func (s *Service) LogWalletEvent(ctx context.Context, ev ports.AuditEvent) error {
	s.logger.Info("wallet event", "type", ev.Type, "address", ev.WalletAddress, "wallet_type", ev.WalletType)
	return s.publish(ctx, ev)
}

func (s *Service) publish(ctx context.Context, ev ports.AuditEvent) error {
	if s.publisher == nil {
		return nil
	}
	return s.publisher.PublishAuditEvent(ctx, ev)
}
