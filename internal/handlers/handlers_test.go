package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/joshua-takyi/eventix/internal/payment"
	"github.com/joshua-takyi/eventix/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newRouter returns an engine that authenticates every request as claims,
// or leaves it anonymous when claims is nil.
func newRouter(claims *helpers.EnhancedClaims) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set("user", claims)
		}
		c.Next()
	})
	return r
}

func do(r *gin.Engine, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

var buyer = &helpers.EnhancedClaims{UserID: "64b000000000000000000001", Email: "ama@example.com", Role: models.RoleUser}

type stubCheckout struct {
	checkoutIn  services.CheckoutInput
	checkoutErr error

	verifiedRef string
	verifyOrder *models.Order

	webhookProvider  string
	webhookPayload   []byte
	webhookSignature string
	webhookErr       error

	listPage, listLimit int
}

func (s *stubCheckout) Checkout(ctx context.Context, userID string, in services.CheckoutInput) (*models.Order, error) {
	s.checkoutIn = in
	if s.checkoutErr != nil {
		return nil, s.checkoutErr
	}
	return &models.Order{Status: models.OrderStatusPending, PaymentReference: "EVX-1"}, nil
}

func (s *stubCheckout) InitializePayment(ctx context.Context, actor *helpers.EnhancedClaims, orderID string) (*services.InitializeResult, error) {
	return &services.InitializeResult{Payment: &payment.InitResult{Reference: "EVX-1", AuthorizationURL: "https://checkout.paystack.com/abc"}}, nil
}

func (s *stubCheckout) VerifyPayment(ctx context.Context, reference string) (*models.Order, error) {
	s.verifiedRef = reference
	switch reference {
	case "":
		return nil, models.ErrOrderNotFound
	case "EVX-BUSY":
		return nil, models.ErrVerificationInFlight
	}
	return s.verifyOrder, nil
}

func (s *stubCheckout) HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) (*models.Order, error) {
	s.webhookProvider, s.webhookPayload, s.webhookSignature = provider, payload, signature
	return nil, s.webhookErr
}

func (s *stubCheckout) GetOrder(ctx context.Context, actor *helpers.EnhancedClaims, id string) (*models.Order, error) {
	return nil, models.ErrOrderNotFound
}

func (s *stubCheckout) ListMyOrders(ctx context.Context, userID string, page, limit int) ([]*models.Order, int64, error) {
	s.listPage, s.listLimit = page, limit
	return []*models.Order{}, 0, nil
}

func TestCheckoutRejectsMissingEvent(t *testing.T) {
	r := newRouter(buyer)
	r.POST("/checkout", Checkout(&stubCheckout{}))

	w, body := do(r, http.MethodPost, "/checkout", map[string]any{"items": map[string]int{"a": 1}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation failed", body["error"])
}

func TestCheckoutRequiresUser(t *testing.T) {
	r := newRouter(nil)
	r.POST("/checkout", Checkout(&stubCheckout{}))

	w, _ := do(r, http.MethodPost, "/checkout", map[string]any{"eventId": "e1", "items": map[string]int{"a": 1}}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckoutInsufficientTickets(t *testing.T) {
	stub := &stubCheckout{checkoutErr: &models.InsufficientTicketsError{TicketTypeID: "vip", Name: "VIP", Requested: 3, Available: 1}}
	r := newRouter(buyer)
	r.POST("/checkout", Checkout(stub))

	w, body := do(r, http.MethodPost, "/checkout", map[string]any{"eventId": "e1", "items": map[string]int{"vip": 3}}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 3, stub.checkoutIn.Items["vip"])
	details := body["details"].(map[string]any)
	assert.EqualValues(t, 1, details["available"])
}

func TestCheckoutCreated(t *testing.T) {
	r := newRouter(buyer)
	r.POST("/checkout", Checkout(&stubCheckout{}))

	w, body := do(r, http.MethodPost, "/checkout", map[string]any{"eventId": "e1", "items": map[string]int{"ga": 2}}, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "EVX-1", body["data"].(map[string]any)["paymentReference"])
}

func TestVerifyPaymentAcceptsTrxref(t *testing.T) {
	stub := &stubCheckout{verifyOrder: &models.Order{Status: models.OrderStatusCompleted, PaymentReference: "EVX-9"}}
	r := newRouter(nil)
	r.GET("/verify", VerifyPayment(stub))

	w, body := do(r, http.MethodGet, "/verify?trxref=EVX-9", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EVX-9", stub.verifiedRef)
	assert.Equal(t, "payment completed", body["message"])
}

func TestVerifyPaymentUnknownReference(t *testing.T) {
	r := newRouter(nil)
	r.GET("/verify", VerifyPayment(&stubCheckout{}))

	w, _ := do(r, http.MethodGet, "/verify", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVerifyPaymentInFlight(t *testing.T) {
	r := newRouter(nil)
	r.GET("/verify", VerifyPayment(&stubCheckout{}))

	w, _ := do(r, http.MethodGet, "/verify?reference=EVX-BUSY", nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPaymentWebhookPassesRawBodyAndSignature(t *testing.T) {
	tests := []struct {
		provider string
		header   string
	}{
		{payment.ProviderPaystack, "x-paystack-signature"},
		{payment.ProviderStripe, "Stripe-Signature"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			stub := &stubCheckout{}
			r := newRouter(nil)
			r.POST("/webhook", PaymentWebhook(stub, tt.provider))

			raw := `{"event":"charge.success","data":{"reference":"EVX-1"}}`
			w, _ := do(r, http.MethodPost, "/webhook", raw, map[string]string{tt.header: "sig-123"})
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.provider, stub.webhookProvider)
			assert.Equal(t, raw, string(stub.webhookPayload))
			assert.Equal(t, "sig-123", stub.webhookSignature)
		})
	}
}

func TestPaymentWebhookBadSignature(t *testing.T) {
	stub := &stubCheckout{webhookErr: fmt.Errorf("%w: mismatch", models.ErrInvalidWebhook)}
	r := newRouter(nil)
	r.POST("/webhook", PaymentWebhook(stub, payment.ProviderPaystack))

	w, _ := do(r, http.MethodPost, "/webhook", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListMyOrdersClampsPaging(t *testing.T) {
	stub := &stubCheckout{}
	r := newRouter(buyer)
	r.GET("/orders", ListMyOrders(stub))

	w, body := do(r, http.MethodGet, "/orders?page=0&limit=1000", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, stub.listPage)
	assert.Equal(t, services.MaxPageSize, stub.listLimit)
	assert.EqualValues(t, services.MaxPageSize, body["limit"])
}

type stubEvents struct {
	EventAPI
	query  services.ListEventsQuery
	viewer *helpers.EnhancedClaims
	status models.EventStatus
	err    error
}

func (s *stubEvents) ListEvents(ctx context.Context, q services.ListEventsQuery) ([]*models.Event, int64, error) {
	s.query = q
	return []*models.Event{{Title: "Afro Nation"}}, 1, nil
}

func (s *stubEvents) GetEvent(ctx context.Context, id string, viewer *helpers.EnhancedClaims) (*models.Event, error) {
	s.viewer = viewer
	if s.err != nil {
		return nil, s.err
	}
	return &models.Event{Title: "Afro Nation", Status: models.EventStatusPublished}, nil
}

func (s *stubEvents) ChangeStatus(ctx context.Context, id string, actor *helpers.EnhancedClaims, to models.EventStatus) (*models.Event, error) {
	s.status = to
	return &models.Event{Status: to}, nil
}

func TestListEventsQuery(t *testing.T) {
	stub := &stubEvents{}
	r := newRouter(nil)
	r.GET("/events", ListEvents(stub))

	w, body := do(r, http.MethodGet, "/events?category=music&q=afro&featured=true&page=2&limit=5", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "music", stub.query.Category)
	assert.Equal(t, "afro", stub.query.Search)
	assert.True(t, stub.query.Featured)
	assert.False(t, stub.query.Banner)
	assert.Equal(t, 2, stub.query.Page)
	assert.EqualValues(t, 1, body["total"])
}

func TestGetEventAnonymousAndHidden(t *testing.T) {
	stub := &stubEvents{err: models.ErrEventNotFound}
	r := newRouter(nil)
	r.GET("/events/:id", GetEvent(stub))

	w, _ := do(r, http.MethodGet, "/events/abc", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Nil(t, stub.viewer)
}

func TestChangeEventStatusValidatesTarget(t *testing.T) {
	stub := &stubEvents{}
	organizer := &helpers.EnhancedClaims{UserID: "64b000000000000000000002", Role: models.RoleOrganizer}
	r := newRouter(organizer)
	r.PATCH("/events/:id/status", ChangeEventStatus(stub))

	w, _ := do(r, http.MethodPatch, "/events/e1/status", map[string]string{"status": "draft"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := do(r, http.MethodPatch, "/events/e1/status", map[string]string{"status": "published"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.EventStatusPublished, stub.status)
	assert.Equal(t, "event published", body["message"])
}

type stubScan struct{ err error }

func (s stubScan) Scan(ctx context.Context, actor *helpers.EnhancedClaims, code string) (*services.ScanResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &services.ScanResult{ScannedAt: time.Now()}, nil
}

func TestScanTicketAlreadyScanned(t *testing.T) {
	at := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
	staff := &helpers.EnhancedClaims{UserID: "64b000000000000000000003", Role: models.RoleStaff}
	r := newRouter(staff)
	r.POST("/scan", ScanTicket(stubScan{err: &models.AlreadyScannedError{TicketID: "c1", ScannedAt: at, ScannedBy: "gate-2"}}))

	w, body := do(r, http.MethodPost, "/scan", map[string]string{"code": "c1"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	details := body["details"].(map[string]any)
	assert.Equal(t, "gate-2", details["scannedBy"])
}

func TestScanTicketNotPaid(t *testing.T) {
	staff := &helpers.EnhancedClaims{UserID: "64b000000000000000000003", Role: models.RoleStaff}
	r := newRouter(staff)
	r.POST("/scan", ScanTicket(stubScan{err: models.ErrTicketNotPaid}))

	w, body := do(r, http.MethodPost, "/scan", map[string]string{"code": "c1"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, body["error"], "ticket is not paid")
}

type stubUsers struct {
	UserAPI
	gotID string
}

func (s *stubUsers) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.gotID = id
	return &models.User{Email: "ama@example.com"}, nil
}

func TestGetUserSelfOrAdmin(t *testing.T) {
	stub := &stubUsers{}
	r := newRouter(buyer)
	r.GET("/users/:id", GetUser(stub))

	w, _ := do(r, http.MethodGet, "/users/64b000000000000000000009", nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, stub.gotID)

	w, _ = do(r, http.MethodGet, "/users/"+buyer.UserID, nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, buyer.UserID, stub.gotID)
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func TestHealth(t *testing.T) {
	r := newRouter(nil)
	r.GET("/ok", Health(stubPinger{}))
	r.GET("/down", Health(stubPinger{err: errors.New("no reachable servers")}))

	w, body := do(r, http.MethodGet, "/ok", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", body["status"])

	w, _ = do(r, http.MethodGet, "/down", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
