package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/client"
	"github.com/stripe/stripe-go/webhook"
)

// intentAPI is the part of the Stripe payment intent client the gateway uses.
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type Stripe struct {
	intents       intentAPI
	webhookSecret string
}

func NewStripe(secretKey, webhookSecret string) *Stripe {
	sc := client.New(secretKey, nil)
	return &Stripe{intents: sc.PaymentIntents, webhookSecret: webhookSecret}
}

func (s *Stripe) Provider() string { return ProviderStripe }

func (s *Stripe) Initialize(ctx context.Context, r InitRequest) (*InitResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(r.AmountMinor),
		Currency: stripe.String(strings.ToLower(r.Currency)),
	}
	if r.Email != "" {
		params.ReceiptEmail = stripe.String(r.Email)
	}
	params.Context = ctx
	params.SetIdempotencyKey(r.Reference)
	params.AddMetadata("reference", r.Reference)
	for k, v := range r.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.intents.New(params)
	if err != nil {
		return nil, stripeErr("stripe create intent", err)
	}
	return &InitResult{
		Provider:     ProviderStripe,
		Reference:    r.Reference,
		ProviderRef:  pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

func (s *Stripe) Verify(ctx context.Context, l Lookup) (*Verification, error) {
	if l.ProviderRef == "" {
		// never initialized with Stripe, so nothing can have been paid
		return &Verification{Reference: l.Reference, Status: StatusPending, GatewayStatus: "not_initialized"}, nil
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.intents.Get(l.ProviderRef, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == http.StatusNotFound {
			return &Verification{Reference: l.Reference, Status: StatusPending, GatewayStatus: "not_found"}, nil
		}
		return nil, stripeErr("stripe get intent", err)
	}

	v := &Verification{
		Reference:     pi.Metadata["reference"],
		Status:        stripeStatus(pi.Status),
		GatewayStatus: string(pi.Status),
		AmountMinor:   pi.Amount,
	}
	if v.Status == StatusSuccess {
		v.PaidAt = chargePaidAt(pi)
	}
	return v, nil
}

// chargePaidAt returns when the intent's paid charge was created, or nil so
// the caller falls back to its own clock.
func chargePaidAt(pi *stripe.PaymentIntent) *time.Time {
	if pi.Charges == nil {
		return nil
	}
	for _, ch := range pi.Charges.Data {
		if ch != nil && ch.Paid && ch.Created > 0 {
			paid := time.Unix(ch.Created, 0).UTC()
			return &paid
		}
	}
	return nil
}

func stripeStatus(s stripe.PaymentIntentStatus) Status {
	switch s {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSuccess
	case stripe.PaymentIntentStatusCanceled:
		return StatusAbandoned
	}
	return StatusPending
}

func stripeErr(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.HTTPStatusCode > 0 && se.HTTPStatusCode < http.StatusInternalServerError {
		return fmt.Errorf("%s: %w", op, err)
	}
	return unavailable(op, err)
}

// ParseWebhook verifies the Stripe-Signature header and returns the order
// reference of payment intent events.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (string, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !strings.HasPrefix(event.Type, "payment_intent.") {
		return "", nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return "", fmt.Errorf("decode stripe payment intent: %w", err)
	}
	return pi.Metadata["reference"], nil
}
