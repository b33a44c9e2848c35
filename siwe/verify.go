package siwe

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/veritasvault/vv-auth/core"
)

// personalHash computes the ERC-191 signed message hash:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg).
func personalHash(message []byte) []byte {
	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return crypto.Keccak256([]byte(prefixed))
}

// RecoverAddress recovers the signing address from a personal_sign
// signature over message. Accepts both v in {0,1} and v in {27,28}.
func RecoverAddress(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes: %w", core.ErrInvalidSignature)
	}

	// Normalize the recovery id; wallets emit v = 27 or 28.
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id %d: %w", sig[64], core.ErrInvalidSignature)
	}
	normalized := make([]byte, 65)
	copy(normalized, sig[:64])
	normalized[64] = v

	pub, err := crypto.SigToPub(personalHash([]byte(message)), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", core.ErrInvalidSignature)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether signature over message was produced by
// claimedAddress. Fails closed: malformed input returns false, never
// an error or panic.
func Verify(message, signature, claimedAddress string) bool {
	recovered, err := RecoverAddress(message, signature)
	if err != nil {
		return false
	}
	return core.EqualAddresses(recovered.Hex(), claimedAddress)
}

// SignPersonal produces an ERC-191 personal_sign signature with v in
// {27,28}, hex-encoded with a 0x prefix. Used by the local wallet
// adapter and by tests to produce verifiable fixtures.
func SignPersonal(message string, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(personalHash([]byte(message)), key)
	if err != nil {
		return "", fmt.Errorf("signing message: %w", err)
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}
