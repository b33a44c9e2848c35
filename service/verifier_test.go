package service_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritasvault/vv-auth/adapters/repo"
	"github.com/veritasvault/vv-auth/adapters/store"
	"github.com/veritasvault/vv-auth/adapters/tokenizer"
	"github.com/veritasvault/vv-auth/core"
	"github.com/veritasvault/vv-auth/service"
	"github.com/veritasvault/vv-auth/siwe"
)

const (
	verifierDomain = "app.veritasvault.com"
	verifierURI    = "https://app.veritasvault.com"
)

func newVerifier(t *testing.T, cfg service.VerifierConfig) (*service.Verifier, *repo.MemoryRepository) {
	t.Helper()

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	users := repo.NewMemoryRepository()
	v := service.NewVerifier(
		cfg,
		tokenizer.NewJWTTokenizer(signKey),
		store.NewMemoryStore(),
		users,
		nil,
		quietLogger(),
	)
	return v, users
}

func signedChallenge(t *testing.T, key *ecdsa.PrivateKey, mutate func(*core.Challenge)) (address, message, signature string) {
	t.Helper()

	address = crypto.PubkeyToAddress(key.PublicKey).Hex()
	nonce, err := siwe.GenerateNonce()
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	challenge := core.Challenge{
		Domain:         verifierDomain,
		Address:        address,
		Statement:      "Sign in to VeritasVault",
		URI:            verifierURI,
		Version:        "1",
		ChainID:        1,
		Nonce:          nonce,
		IssuedAt:       now,
		ExpirationTime: now.Add(5 * time.Minute),
	}
	if mutate != nil {
		mutate(&challenge)
	}

	message = siwe.BuildMessage(challenge)
	signature, err = siwe.SignPersonal(message, key)
	require.NoError(t, err)
	return address, message, signature
}

func TestVerifyIssuesValidToken(t *testing.T) {
	v, _ := newVerifier(t, service.VerifierConfig{Domain: verifierDomain, URI: verifierURI})
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	address, message, signature := signedChallenge(t, key, nil)

	token, err := v.Verify(context.Background(), address, message, signature)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	session, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, core.NormalizeAddress(address), session.Address)
	assert.NotEmpty(t, session.UserID)
	assert.True(t, session.ExpiresAt.After(time.Now()))
}

func TestVerifyRejectsNonceReplay(t *testing.T) {
	v, _ := newVerifier(t, service.VerifierConfig{Domain: verifierDomain, URI: verifierURI})
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	address, message, signature := signedChallenge(t, key, nil)

	_, err = v.Verify(context.Background(), address, message, signature)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), address, message, signature)
	assert.ErrorIs(t, err, core.ErrNonceUsed)
}

func TestVerifyRejectsForeignDomain(t *testing.T) {
	v, _ := newVerifier(t, service.VerifierConfig{Domain: verifierDomain, URI: verifierURI})
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	address, message, signature := signedChallenge(t, key, func(c *core.Challenge) {
		c.Domain = "evil.example.com"
	})

	_, err = v.Verify(context.Background(), address, message, signature)
	assert.ErrorIs(t, err, core.ErrInvalidMessage)
}

func TestVerifyRejectsForeignURI(t *testing.T) {
	v, _ := newVerifier(t, service.VerifierConfig{Domain: verifierDomain, URI: verifierURI})
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	address, message, signature := signedChallenge(t, key, func(c *core.Challenge) {
		c.URI = "https://evil.example.com"
	})

	_, err = v.Verify(context.Background(), address, message, signature)
	assert.ErrorIs(t, err, core.ErrInvalidMessage)
}

func TestVerifyRejectsExpiredChallenge(t *testing.T) {
	v, _ := newVerifier(t, service.VerifierConfig{Domain: verifierDomain, URI: verifierURI})
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	address, message, signature := signedChallenge(t, key, func(c *core.Challenge) {
		c.ExpirationTime = c.IssuedAt.Add(-time.Minute)
	})

	_, err = v.Verify(context.Background(), address, message, signature)
	assert.ErrorIs(t, err, core.ErrChallengeExpired)
}

func TestVerifyRejectsAddressMismatch(t *testing.T) {
	v, _ := newVerifier(t, service.VerifierConfig{Domain: verifierDomain, URI: verifierURI})
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, message, signature := signedChallenge(t, key, nil)

	_, err = v.Verify(context.Background(), "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", message, signature)
	assert.ErrorIs(t, err, core.ErrInvalidAddress)
}

func TestVerifyRejectsSignatureFromOtherKey(t *testing.T) {
	v, _ := newVerifier(t, service.VerifierConfig{Domain: verifierDomain, URI: verifierURI})
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other, err := crypto.GenerateKey()
	require.NoError(t, err)

	address, message, _ := signedChallenge(t, key, nil)
	forged, err := siwe.SignPersonal(message, other)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), address, message, forged)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

// A wallet maps to one stable account across sign-ins.
func TestVerifySameUserAcrossLogins(t *testing.T) {
	v, users := newVerifier(t, service.VerifierConfig{Domain: verifierDomain, URI: verifierURI})
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	address, message, signature := signedChallenge(t, key, nil)
	token1, err := v.Verify(context.Background(), address, message, signature)
	require.NoError(t, err)

	_, message, signature = signedChallenge(t, key, nil)
	token2, err := v.Verify(context.Background(), address, message, signature)
	require.NoError(t, err)

	s1, err := v.ValidateToken(context.Background(), token1)
	require.NoError(t, err)
	s2, err := v.ValidateToken(context.Background(), token2)
	require.NoError(t, err)
	assert.Equal(t, s1.UserID, s2.UserID)

	user, err := users.FindByWallet(context.Background(), address)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, s1.UserID, user.ID)
}

func TestValidateTokenRejectsExpiredSession(t *testing.T) {
	v, _ := newVerifier(t, service.VerifierConfig{
		Domain:     verifierDomain,
		URI:        verifierURI,
		SessionTTL: time.Nanosecond,
	})
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	address, message, signature := signedChallenge(t, key, nil)
	token, err := v.Verify(context.Background(), address, message, signature)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = v.ValidateToken(context.Background(), token)
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	v, _ := newVerifier(t, service.VerifierConfig{Domain: verifierDomain, URI: verifierURI})

	_, err := v.ValidateToken(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}
