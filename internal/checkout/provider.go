// internal/checkout/provider.go
//
// HTTP payment-provider client.
//
// One POST per session: basic-auth with shop credentials, JSON body, and
// an Idempotence-Key header so a retried request cannot double-charge.
// Non-2xx responses surface status and body; nothing is retried here.
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPProvider implements Provider against the payment provider's REST API.
type HTTPProvider struct {
	baseURL   string
	shopID    string
	secretKey string
	returnURL string
	http      *http.Client
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider constructs an HTTPProvider.
func NewHTTPProvider(baseURL, shopID, secretKey, returnURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		shopID:    shopID,
		secretKey: secretKey,
		returnURL: returnURL,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateSession opens one checkout session and returns the redirect URL.
func (p *HTTPProvider) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	payload := map[string]any{
		"amount": map[string]string{
			"value":    req.Amount.StringFixed(2),
			"currency": "USD",
		},
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": p.returnURL,
		},
		"capture":     true,
		"description": req.Description,
		"metadata":    map[string]uint64{"user_id": req.UserID},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("checkout: encode session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v3/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("checkout: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotence-Key", uuid.NewString())
	httpReq.SetBasicAuth(p.shopID, p.secretKey)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("checkout: provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("checkout: provider returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out struct {
		ID           string `json:"id"`
		Confirmation struct {
			ConfirmationURL string `json:"confirmation_url"`
		} `json:"confirmation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("checkout: decode session response: %w", err)
	}
	if out.ID == "" || out.Confirmation.ConfirmationURL == "" {
		return nil, fmt.Errorf("checkout: session response missing id or redirect url")
	}
	return &Session{ID: out.ID, RedirectURL: out.Confirmation.ConfirmationURL}, nil
}
