// Package exchange implements the backend challenge-verification
// client: it trades a locally verified signature for a bearer token.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/veritasvault/vv-auth/core"
	"github.com/veritasvault/vv-auth/ports"
)

// HTTPExchanger posts {address, message, signature} to the backend
// verification endpoint and returns the issued JWT.
//
// Four failure conditions stay distinguishable: transport failure,
// non-JSON body, non-2xx status (carrying the backend's message when
// present), and a 2xx body missing the jwt field.
type HTTPExchanger struct {
	endpoint string
	client   *http.Client
}

// NewHTTPExchanger creates an exchanger against endpoint. client may
// be nil for a default with a 15s timeout.
func NewHTTPExchanger(endpoint string, client *http.Client) ports.TokenExchanger {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPExchanger{endpoint: endpoint, client: client}
}

type exchangeRequest struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

type exchangeResponse struct {
	JWT     string `json:"jwt"`
	Message string `json:"message"`
}

// Exchange performs the backend exchange.
func (e *HTTPExchanger) Exchange(ctx context.Context, address, message, signature string) (string, error) {
	payload, err := json.Marshal(exchangeRequest{
		Address:   address,
		Message:   message,
		Signature: signature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to encode request: %v", core.ErrBackendExchangeFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: failed to build request: %v", core.ErrBackendExchangeFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrBackendExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", core.ErrBackendExchangeFailed, err)
	}

	var parsed exchangeResponse
	parseErr := json.Unmarshal(body, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if parseErr == nil && parsed.Message != "" {
			return "", fmt.Errorf("%w: %s", core.ErrBackendAuthRejected, parsed.Message)
		}
		return "", fmt.Errorf("%w: status %d", core.ErrBackendAuthRejected, resp.StatusCode)
	}

	if parseErr != nil {
		return "", fmt.Errorf("%w: response is not valid JSON: %v", core.ErrBackendExchangeFailed, parseErr)
	}
	if parsed.JWT == "" {
		return "", fmt.Errorf("%w: response missing jwt", core.ErrBackendExchangeFailed)
	}
	return parsed.JWT, nil
}
