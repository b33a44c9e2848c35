package compliance

import (
	"context"
	"sync"

	"github.com/veritasvault/vv-auth/core"
	"github.com/veritasvault/vv-auth/ports"
)

// Recorder is a Compliance double that captures every event and lets
// tests script the pre-check outcome.
type Recorder struct {
	mu           sync.Mutex
	PreCheckErr  error
	authEvents   []ports.AuditEvent
	walletEvents []ports.AuditEvent
	prechecked   []string
}

// NewRecorder creates an empty recorder that allows every address.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) PreAuthCheck(_ context.Context, address string, _ core.WalletType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prechecked = append(r.prechecked, core.NormalizeAddress(address))
	return r.PreCheckErr
}

func (r *Recorder) LogAuthEvent(_ context.Context, ev ports.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authEvents = append(r.authEvents, ev)
	return nil
}

func (r *Recorder) LogWalletEvent(_ context.Context, ev ports.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.walletEvents = append(r.walletEvents, ev)
	return nil
}

// AuthEvents returns the recorded authentication events.
func (r *Recorder) AuthEvents() []ports.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.AuditEvent(nil), r.authEvents...)
}

// WalletEvents returns the recorded wallet session events.
func (r *Recorder) WalletEvents() []ports.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.AuditEvent(nil), r.walletEvents...)
}

// Prechecked returns the addresses that went through the pre-check.
func (r *Recorder) Prechecked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.prechecked...)
}
