package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veritasvault/vv-auth/core"
	"github.com/veritasvault/vv-auth/ports"
	"github.com/veritasvault/vv-auth/siwe"
)

// minNonceTTL keeps a consumed nonce on record even when the challenge
// is near expiry, so slightly skewed clocks cannot readmit it.
const minNonceTTL = time.Hour

// VerifierConfig binds the verifier to one relying party.
type VerifierConfig struct {
	// Domain and URI must match the values embedded in submitted
	// sign-in messages; empty values disable the corresponding check.
	Domain string
	URI    string

	// SessionTTL is the lifetime of issued bearer tokens.
	SessionTTL time.Duration
}

// Verifier is the backend challenge-verification service: it validates
// a signed sign-in message, enforces single-use nonces, upserts the
// wallet-linked user, and issues a bearer session token.
type Verifier struct {
	cfg       VerifierConfig
	tokenizer ports.Tokenizer
	nonces    ports.NonceStore
	users     ports.UserDirectory
	publisher ports.EventPublisher
	logger    *slog.Logger
}

// NewVerifier creates a verifier. publisher may be nil to disable
// cross-instance audit events.
func NewVerifier(
	cfg VerifierConfig,
	tokenizer ports.Tokenizer,
	nonces ports.NonceStore,
	users ports.UserDirectory,
	publisher ports.EventPublisher,
	logger *slog.Logger,
) *Verifier {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		cfg:       cfg,
		tokenizer: tokenizer,
		nonces:    nonces,
		users:     users,
		publisher: publisher,
		logger:    logger.With("component", "verifier"),
	}
}

// Verify checks a signed sign-in message against the claimed address
// and returns a bearer session token.
func (v *Verifier) Verify(ctx context.Context, address, message, signature string) (string, error) {
	challenge, err := siwe.ParseMessage(message)
	if err != nil {
		return "", err
	}

	if v.cfg.Domain != "" && challenge.Domain != v.cfg.Domain {
		return "", fmt.Errorf("%w: domain %q not accepted", core.ErrInvalidMessage, challenge.Domain)
	}
	if v.cfg.URI != "" && challenge.URI != v.cfg.URI {
		return "", fmt.Errorf("%w: uri %q not accepted", core.ErrInvalidMessage, challenge.URI)
	}
	if challenge.Expired(time.Now()) {
		return "", core.ErrChallengeExpired
	}
	if !core.EqualAddresses(challenge.Address, address) {
		return "", fmt.Errorf("%w: message address does not match claim", core.ErrInvalidAddress)
	}

	recovered, err := siwe.RecoverAddress(message, signature)
	if err != nil {
		return "", err
	}
	if !core.EqualAddresses(recovered.Hex(), address) {
		return "", core.ErrInvalidSignature
	}

	// Single-use nonce: reject replays, then burn it for at least the
	// challenge's remaining lifetime.
	used, err := v.nonces.IsUsed(ctx, challenge.Nonce)
	if err != nil {
		return "", fmt.Errorf("failed to check nonce: %w", err)
	}
	if used {
		return "", core.ErrNonceUsed
	}
	ttl := time.Until(challenge.ExpirationTime)
	if ttl < minNonceTTL {
		ttl = minNonceTTL
	}
	if err := v.nonces.MarkUsed(ctx, challenge.Nonce, ttl); err != nil {
		return "", fmt.Errorf("failed to burn nonce: %w", err)
	}

	user, err := v.upsertUser(ctx, address)
	if err != nil {
		return "", err
	}

	now := time.Now()
	session := &core.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Address:   core.NormalizeAddress(address),
		IssuedAt:  now,
		ExpiresAt: now.Add(v.cfg.SessionTTL),
	}
	token, err := v.tokenizer.SessionToToken(session)
	if err != nil {
		return "", fmt.Errorf("failed to issue session token: %w", err)
	}

	v.logger.Info("wallet verified", "address", session.Address, "user_id", user.ID)
	v.publishAudit(ctx, ports.AuditEvent{
		Type:          "WALLET_VERIFIED",
		UserID:        user.ID,
		Provider:      providerName,
		WalletAddress: session.Address,
		At:            now.UTC(),
	})

	return token, nil
}

// ValidateToken parses a bearer token and checks its expiry.
func (v *Verifier) ValidateToken(_ context.Context, token string) (*core.Session, error) {
	session, err := v.tokenizer.TokenToSession(token)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, core.ErrTokenExpired
	}
	return session, nil
}

func (v *Verifier) upsertUser(ctx context.Context, address string) (*core.User, error) {
	user, err := v.users.FindByWallet(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to look up wallet user: %w", err)
	}
	if user != nil {
		return user, nil
	}
	user, err = v.users.CreateWalletUser(ctx, address, core.WalletTypeMetaMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet user: %w", err)
	}
	return user, nil
}

func (v *Verifier) publishAudit(ctx context.Context, ev ports.AuditEvent) {
	if v.publisher == nil {
		return
	}
	if err := v.publisher.PublishAuditEvent(ctx, ev); err != nil {
		v.logger.Warn("failed to publish audit event", "event", ev.Type, "error", err)
	}
}
