package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/veritasvault/vv-auth/core"
	"github.com/veritasvault/vv-auth/ports"
)

// CustodialAdapter talks to a custodial wallet middleware over HTTP.
// The middleware holds the keys; this adapter is a thin conduit for
// connect/sign/send/switch calls authenticated by an API key.
type CustodialAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client

	mu         sync.Mutex
	conn       *ports.WalletConnection
	listenerID int
	onAccounts map[int]func(string)
	onChain    map[int]func(int64)
	onDrop     map[int]func()
}

// NewCustodialAdapter creates an adapter against the middleware at
// baseURL. client may be nil for a default with a 30s timeout.
func NewCustodialAdapter(baseURL, apiKey string, client *http.Client) *CustodialAdapter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &CustodialAdapter{
		baseURL:    baseURL,
		apiKey:     apiKey,
		client:     client,
		onAccounts: make(map[int]func(string)),
		onChain:    make(map[int]func(int64)),
		onDrop:     make(map[int]func()),
	}
}

func (a *CustodialAdapter) Type() core.WalletType {
	return core.WalletTypeCustodial
}

type custodialSession struct {
	SessionID string `json:"session_id"`
	Address   string `json:"address"`
	ChainID   int64  `json:"chain_id"`
}

// Connect opens a middleware session. Idempotent while connected.
func (a *CustodialAdapter) Connect(ctx context.Context, opts *ports.ConnectionOptions) (*ports.WalletConnection, error) {
	a.mu.Lock()
	if a.conn != nil {
		conn := a.conn
		a.mu.Unlock()
		return conn, nil
	}
	a.mu.Unlock()

	req := map[string]any{}
	if opts != nil && opts.ChainID != 0 {
		req["chain_id"] = opts.ChainID
	}

	var session custodialSession
	if err := a.post(ctx, "/v1/sessions", req, &session); err != nil {
		return nil, err
	}

	conn := &ports.WalletConnection{
		Address: session.Address,
		ChainID: session.ChainID,
		Handle:  session.SessionID,
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()
	return conn, nil
}

// Disconnect tears down the middleware session and fires local
// disconnect listeners.
func (a *CustodialAdapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	conn := a.conn
	a.conn = nil
	fns := make([]func(), 0, len(a.onDrop))
	for _, fn := range a.onDrop {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := a.post(ctx, "/v1/sessions/end", map[string]any{"session_id": conn.Handle}, nil)
	for _, fn := range fns {
		fn()
	}
	return err
}

func (a *CustodialAdapter) SignMessage(ctx context.Context, message string, handle any) (string, error) {
	var out struct {
		Signature string `json:"signature"`
	}
	err := a.post(ctx, "/v1/sign", map[string]any{
		"session_id": handle,
		"message":    message,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Signature == "" {
		return "", fmt.Errorf("middleware returned empty signature")
	}
	return out.Signature, nil
}

func (a *CustodialAdapter) SendTransaction(ctx context.Context, tx core.TransactionRequest, handle any) (string, error) {
	var out struct {
		Hash string `json:"hash"`
	}
	err := a.post(ctx, "/v1/transactions", map[string]any{
		"session_id": handle,
		"to":         tx.To,
		"value":      tx.Value.String(),
		"data":       tx.Data,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Hash, nil
}

func (a *CustodialAdapter) SwitchChain(ctx context.Context, handle any, chainID int64, rpcURL string) error {
	return a.post(ctx, "/v1/chain", map[string]any{
		"session_id": handle,
		"chain_id":   chainID,
		"rpc_url":    rpcURL,
	}, nil)
}

// The middleware has no push channel in this transport; account and
// chain listeners only fire when the adapter itself observes a change.
func (a *CustodialAdapter) OnAccountsChanged(fn func(address string)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.listenerID
	a.listenerID++
	a.onAccounts[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.onAccounts, id)
	}
}

func (a *CustodialAdapter) OnChainChanged(fn func(chainID int64)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.listenerID
	a.listenerID++
	a.onChain[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.onChain, id)
	}
}

func (a *CustodialAdapter) OnDisconnect(fn func()) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.listenerID
	a.listenerID++
	a.onDrop[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.onDrop, id)
	}
}

func (a *CustodialAdapter) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("middleware request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message != "" {
			return fmt.Errorf("middleware error %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("middleware error %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode middleware response: %w", err)
	}
	return nil
}
