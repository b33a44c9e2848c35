package siwe

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/veritasvault/vv-auth/core"
)

const accountSuffix = " wants you to sign in with your Ethereum account:"

// BuildMessage renders a challenge in the EIP-4361 canonical form.
// Field order and labels are fixed so identical inputs always produce
// byte-identical output; the signature is computed over these bytes.
func BuildMessage(c core.Challenge) string {
	var b strings.Builder
	b.WriteString(c.Domain)
	b.WriteString(accountSuffix)
	b.WriteString("\n")
	b.WriteString(c.Address)
	b.WriteString("\n\n")
	b.WriteString(c.Statement)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "URI: %s\n", c.URI)
	fmt.Fprintf(&b, "Version: %s\n", c.Version)
	fmt.Fprintf(&b, "Chain ID: %d\n", c.ChainID)
	fmt.Fprintf(&b, "Nonce: %s\n", c.Nonce)
	fmt.Fprintf(&b, "Issued At: %s\n", c.IssuedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Expiration Time: %s", c.ExpirationTime.UTC().Format(time.RFC3339))
	return b.String()
}

// ParseMessage reconstructs a challenge from its canonical form. It is
// strict about line order: the backend uses it to re-validate exactly
// what the wallet signed.
func ParseMessage(msg string) (core.Challenge, error) {
	var c core.Challenge

	lines := strings.Split(msg, "\n")
	if len(lines) < 9 {
		return c, fmt.Errorf("%w: too few lines", core.ErrInvalidMessage)
	}
	if !strings.HasSuffix(lines[0], accountSuffix) {
		return c, fmt.Errorf("%w: malformed header", core.ErrInvalidMessage)
	}
	c.Domain = strings.TrimSuffix(lines[0], accountSuffix)
	c.Address = lines[1]
	if lines[2] != "" || lines[4] != "" {
		return c, fmt.Errorf("%w: malformed statement block", core.ErrInvalidMessage)
	}
	c.Statement = lines[3]

	for _, line := range lines[5:] {
		label, value, ok := strings.Cut(line, ": ")
		if !ok {
			return c, fmt.Errorf("%w: malformed field %q", core.ErrInvalidMessage, line)
		}
		switch label {
		case "URI":
			c.URI = value
		case "Version":
			c.Version = value
		case "Chain ID":
			id, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return c, fmt.Errorf("%w: bad chain id %q", core.ErrInvalidMessage, value)
			}
			c.ChainID = id
		case "Nonce":
			c.Nonce = value
		case "Issued At":
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return c, fmt.Errorf("%w: bad issued-at %q", core.ErrInvalidMessage, value)
			}
			c.IssuedAt = t
		case "Expiration Time":
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return c, fmt.Errorf("%w: bad expiration %q", core.ErrInvalidMessage, value)
			}
			c.ExpirationTime = t
		default:
			return c, fmt.Errorf("%w: unknown field %q", core.ErrInvalidMessage, label)
		}
	}

	if c.URI == "" || c.Version == "" || c.Nonce == "" {
		return c, fmt.Errorf("%w: missing required fields", core.ErrInvalidMessage)
	}
	return c, nil
}
