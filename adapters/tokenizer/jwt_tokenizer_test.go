package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritasvault/vv-auth/core"
)

func signingKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func testSession(t *testing.T) *core.Session {
	t.Helper()
	now := time.Now().Truncate(time.Second)
	return &core.Session{
		ID:        uuid.New().String(),
		UserID:    uuid.New().String(),
		Address:   "0x742d35cc6634c0532925a3b844bc454e4438f44e",
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func TestSessionTokenRoundTrip(t *testing.T) {
	tk := NewJWTTokenizer(signingKey(t))

	session := testSession(t)
	token, err := tk.SessionToToken(session)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := tk.TokenToSession(token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.UserID, got.UserID)
	assert.Equal(t, session.Address, got.Address)
	assert.True(t, session.ExpiresAt.Equal(got.ExpiresAt))
}

func TestTokenToSessionRejectsWrongKey(t *testing.T) {
	key := signingKey(t)
	other := signingKey(t)

	token, err := NewJWTTokenizer(key).SessionToToken(testSession(t))
	require.NoError(t, err)

	_, err = NewJWTTokenizer(other).TokenToSession(token)
	assert.Error(t, err)
}

func TestTokenToSessionRejectsTampering(t *testing.T) {
	tk := NewJWTTokenizer(signingKey(t))

	token, err := tk.SessionToToken(testSession(t))
	require.NoError(t, err)

	tampered := token[:len(token)-4] + "AAAA"
	_, err = tk.TokenToSession(tampered)
	assert.Error(t, err)
}

func TestTokenToSessionRejectsExpired(t *testing.T) {
	tk := NewJWTTokenizer(signingKey(t))

	session := testSession(t)
	session.IssuedAt = time.Now().Add(-2 * time.Hour)
	session.ExpiresAt = time.Now().Add(-time.Hour)

	token, err := tk.SessionToToken(session)
	require.NoError(t, err)

	_, err = tk.TokenToSession(token)
	assert.Error(t, err)
}

func TestTokenToSessionRejectsGarbage(t *testing.T) {
	_, err := NewJWTTokenizer(signingKey(t)).TokenToSession("not.a.jwt")
	assert.Error(t, err)
}
