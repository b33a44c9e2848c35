package core

import "time"

// Challenge is a structured sign-in challenge. Immutable once created;
// the signature is computed over its canonical serialization, so every
// field participates in the signed bytes.
type Challenge struct {
	Domain         string
	Address        string
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime time.Time
}

// Expired reports whether the challenge's expiration has passed at now.
// A signature over an expired challenge must be rejected even if it is
// cryptographically valid.
func (c Challenge) Expired(now time.Time) bool {
	return !c.ExpirationTime.IsZero() && now.After(c.ExpirationTime)
}
