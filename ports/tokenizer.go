package ports

import "github.com/veritasvault/vv-auth/core"

// Tokenizer converts between backend sessions and bearer tokens.
type Tokenizer interface {
	SessionToToken(session *core.Session) (string, error)
	TokenToSession(token string) (*core.Session, error)
}
