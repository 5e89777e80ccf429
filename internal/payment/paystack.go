package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type Paystack struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

func NewPaystack(secretKey, baseURL string, client *http.Client) *Paystack {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Paystack{
		secretKey: secretKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
	}
}

func (p *Paystack) Provider() string { return ProviderPaystack }

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *Paystack) do(ctx context.Context, method, path string, body any) (*paystackEnvelope, int, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal paystack request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build paystack request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, unavailable("paystack "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, unavailable("paystack read body", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, resp.StatusCode, unavailable("paystack "+path, fmt.Errorf("status %d", resp.StatusCode))
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, resp.StatusCode, unavailable("paystack decode", err)
	}
	return &env, resp.StatusCode, nil
}

func (p *Paystack) Initialize(ctx context.Context, r InitRequest) (*InitResult, error) {
	body := map[string]any{
		"email":     r.Email,
		"amount":    r.AmountMinor,
		"reference": r.Reference,
		"currency":  r.Currency,
		"metadata":  r.Metadata,
	}
	if r.CallbackURL != "" {
		body["callback_url"] = r.CallbackURL
	}

	env, status, err := p.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}
	if !env.Status {
		return nil, fmt.Errorf("paystack initialize rejected (%d): %s", status, env.Message)
	}

	var data struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, unavailable("paystack decode initialize", err)
	}
	return &InitResult{
		Provider:         ProviderPaystack,
		Reference:        r.Reference,
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
	}, nil
}

func (p *Paystack) Verify(ctx context.Context, l Lookup) (*Verification, error) {
	env, status, err := p.do(ctx, http.MethodGet, "/transaction/verify/"+l.Reference, nil)
	if err != nil {
		return nil, err
	}
	if !env.Status {
		// Paystack answers 400/404 for references it has never seen, which
		// means the customer has not paid yet.
		if status == http.StatusBadRequest || status == http.StatusNotFound {
			return &Verification{Reference: l.Reference, Status: StatusPending, GatewayStatus: "not_found"}, nil
		}
		return nil, unavailable("paystack verify", fmt.Errorf("status %d: %s", status, env.Message))
	}

	var data struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		PaidAt    string `json:"paid_at"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, unavailable("paystack decode verify", err)
	}

	v := &Verification{
		Reference:     data.Reference,
		Status:        paystackStatus(data.Status),
		GatewayStatus: data.Status,
		AmountMinor:   data.Amount,
		Currency:      strings.ToUpper(data.Currency),
	}
	if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
		v.PaidAt = &t
	}
	return v, nil
}

func paystackStatus(s string) Status {
	switch s {
	case "success":
		return StatusSuccess
	case "failed", "reversed":
		return StatusFailed
	case "abandoned":
		return StatusAbandoned
	}
	return StatusPending
}

// ParseWebhook checks the x-paystack-signature header, an HMAC-SHA512 of the
// raw body keyed with the secret key.
func (p *Paystack) ParseWebhook(payload []byte, signature string) (string, error) {
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return "", ErrInvalidSignature
	}

	var event struct {
		Event string `json:"event"`
		Data  struct {
			Reference string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", fmt.Errorf("decode paystack webhook: %w", err)
	}
	if !strings.HasPrefix(event.Event, "charge.") {
		return "", nil
	}
	return event.Data.Reference, nil
}
