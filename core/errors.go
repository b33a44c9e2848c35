package core

import (
	"errors"
	"fmt"
)

// Error codes surfaced to callers on failed operations. UI layers key
// off these rather than the message text.
const (
	CodeUnsupportedWallet       = "UnsupportedWallet"
	CodeWalletConnectionFailed  = "WalletConnectionFailed"
	CodeComplianceRejected      = "ComplianceRejected"
	CodeInvalidSignature        = "InvalidSignature"
	CodeChallengeExpired        = "ChallengeExpired"
	CodeBackendExchangeFailed   = "BackendExchangeFailed"
	CodeBackendAuthRejected     = "BackendAuthRejected"
	CodePersistenceSignInFailed = "PersistenceSignInFailed"
	CodeNotConnected            = "NotConnected"
	CodeNetworkSwitchFailed     = "NetworkSwitchFailed"
	CodeConnectInFlight         = "ConnectInFlight"
	CodeUnknown                 = "Unknown"
)

var (
	ErrUnsupportedWallet       = errors.New("unsupported wallet type")
	ErrWalletConnectionFailed  = errors.New("wallet connection failed")
	ErrComplianceRejected      = errors.New("compliance pre-check rejected")
	ErrInvalidSignature        = errors.New("invalid signature")
	ErrChallengeExpired        = errors.New("challenge has expired")
	ErrBackendExchangeFailed   = errors.New("backend exchange failed")
	ErrBackendAuthRejected     = errors.New("backend rejected authentication")
	ErrPersistenceSignInFailed = errors.New("persistence sign-in failed")
	ErrNotConnected            = errors.New("no wallet connected")
	ErrNetworkSwitchFailed     = errors.New("network switch failed")
	ErrConnectInFlight         = errors.New("wallet connection already in progress")
	ErrNonceUsed               = errors.New("nonce has already been used")
	ErrTokenExpired            = errors.New("token has expired")
	ErrInvalidToken            = errors.New("invalid token")
	ErrInvalidAddress          = errors.New("invalid ethereum address")
	ErrInvalidMessage          = errors.New("invalid sign-in message")
)

// AuthError is the structured failure every public orchestration method
// returns instead of letting an error escape to the UI layer.
type AuthError struct {
	Code    string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError creates a coded error wrapping an underlying cause.
func NewAuthError(code, message string, err error) *AuthError {
	return &AuthError{Code: code, Message: message, Err: err}
}

// AsAuthError converts any error into an *AuthError, deriving the code
// from the known sentinel errors when possible.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	code := CodeUnknown
	switch {
	case errors.Is(err, ErrUnsupportedWallet):
		code = CodeUnsupportedWallet
	case errors.Is(err, ErrWalletConnectionFailed):
		code = CodeWalletConnectionFailed
	case errors.Is(err, ErrComplianceRejected):
		code = CodeComplianceRejected
	case errors.Is(err, ErrInvalidSignature):
		code = CodeInvalidSignature
	case errors.Is(err, ErrChallengeExpired):
		code = CodeChallengeExpired
	case errors.Is(err, ErrBackendExchangeFailed):
		code = CodeBackendExchangeFailed
	case errors.Is(err, ErrBackendAuthRejected):
		code = CodeBackendAuthRejected
	case errors.Is(err, ErrPersistenceSignInFailed):
		code = CodePersistenceSignInFailed
	case errors.Is(err, ErrNotConnected):
		code = CodeNotConnected
	case errors.Is(err, ErrNetworkSwitchFailed):
		code = CodeNetworkSwitchFailed
	case errors.Is(err, ErrConnectInFlight):
		code = CodeConnectInFlight
	}
	return &AuthError{Code: code, Message: err.Error(), Err: err}
}
