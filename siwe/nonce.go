// Package siwe implements the sign-in challenge protocol: nonce
// generation, the EIP-4361 message format, and EIP-191 personal_sign
// signature verification.
package siwe

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// nonceBytes gives 128 bits of entropy per nonce.
const nonceBytes = 16

// GenerateNonce returns a cryptographically random nonce rendered as
// compact hex. Stateless; safe for concurrent use.
func GenerateNonce() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
