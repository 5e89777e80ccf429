package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProviderPaystack = "paystack"
	ProviderStripe   = "stripe"
)

type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
	StatusPending   Status = "pending"
)

// ErrUnavailable marks transport level gateway failures. The order is left
// untouched when a gateway call fails this way.
var ErrUnavailable = errors.New("payment gateway unavailable")

type InitRequest struct {
	Reference   string
	Email       string
	AmountMinor int64
	Currency    string
	CallbackURL string
	Metadata    map[string]string
}

type InitResult struct {
	Provider         string `json:"provider"`
	Reference        string `json:"reference"`
	ProviderRef      string `json:"-"`
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
	AccessCode       string `json:"accessCode,omitempty"`
	ClientSecret     string `json:"clientSecret,omitempty"`
}

// Lookup identifies a transaction at the gateway. Paystack is queried by our
// reference; Stripe by its payment intent id.
type Lookup struct {
	Reference   string
	ProviderRef string
}

type Verification struct {
	Reference     string
	Status        Status
	GatewayStatus string
	AmountMinor   int64
	Currency      string
	PaidAt        *time.Time
}

type Gateway interface {
	Provider() string
	Initialize(ctx context.Context, req InitRequest) (*InitResult, error)
	Verify(ctx context.Context, lookup Lookup) (*Verification, error)
}

// WebhookParser authenticates a gateway callback and extracts the order
// reference it concerns. An empty reference means the event is not one
// settlement cares about.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (string, error)
}

// ToMinor converts a major unit amount (e.g. naira) to the integer minor unit
// amount (kobo) gateways expect.
func ToMinor(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}
