package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshua-takyi/eventix/internal/broker"
	"github.com/joshua-takyi/eventix/internal/clock"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/locker"
	"github.com/joshua-takyi/eventix/internal/metrics"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/joshua-takyi/eventix/internal/payment"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MaxTicketsPerLine = 10
	ReferencePrefix   = "EVX"

	verifyLockTTL     = 30 * time.Second
	expirySweepBatch  = 100
	reasonExpired     = "reservation expired"
	reasonAmount      = "amount mismatch"
	reasonReference   = "reference mismatch"
	reasonGatewayFail = "payment "
)

type CheckoutConfig struct {
	Currency        string
	ReservationTTL  time.Duration
	DefaultProvider string
	CallbackURL     string
}

type CheckoutService struct {
	events    models.EventsRepo
	orders    models.OrdersRepo
	users     models.UserRepo
	gateways  map[string]payment.Gateway
	webhooks  map[string]payment.WebhookParser
	publisher broker.Publisher
	locker    locker.Locker
	cfg       CheckoutConfig
	clock     clock.Clock
	logger    *slog.Logger
}

func NewCheckoutService(
	events models.EventsRepo,
	orders models.OrdersRepo,
	users models.UserRepo,
	gateways []payment.Gateway,
	publisher broker.Publisher,
	lock locker.Locker,
	cfg CheckoutConfig,
	clk clock.Clock,
	logger *slog.Logger,
) *CheckoutService {
	cs := &CheckoutService{
		events:    events,
		orders:    orders,
		users:     users,
		gateways:  make(map[string]payment.Gateway, len(gateways)),
		webhooks:  make(map[string]payment.WebhookParser, len(gateways)),
		publisher: publisher,
		locker:    lock,
		cfg:       cfg,
		clock:     clk,
		logger:    logger,
	}
	for _, gw := range gateways {
		cs.gateways[gw.Provider()] = gw
		if wp, ok := gw.(payment.WebhookParser); ok {
			cs.webhooks[gw.Provider()] = wp
		}
	}
	return cs
}

type CheckoutInput struct {
	EventID string         `json:"eventId" binding:"required"`
	Items   map[string]int `json:"items" binding:"required,min=1"`
}

type InitializeResult struct {
	Order   *models.Order       `json:"order"`
	Payment *payment.InitResult `json:"payment"`
}

// Checkout reserves the requested tickets and records a pending order. Either
// every line is reserved or none is.
func (cs *CheckoutService) Checkout(ctx context.Context, userID string, in CheckoutInput) (*models.Order, error) {
	uid, err := models.ParseObjectID(userID)
	if err != nil {
		return nil, err
	}
	eventID, err := models.ParseObjectID(in.EventID)
	if err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, models.ValidationError("at least one ticket is required")
	}

	event, err := cs.events.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	now := cs.clock.Now()
	if !event.IsOnSale(now) {
		metrics.Checkouts.WithLabelValues("not_on_sale").Inc()
		return nil, models.ErrEventNotOnSale
	}

	requested := make(map[primitive.ObjectID]int, len(in.Items))
	for rawID, qty := range in.Items {
		ttID, err := models.ParseObjectID(rawID)
		if err != nil {
			return nil, models.ValidationError("invalid ticket type id %q", rawID)
		}
		if qty < 1 {
			return nil, models.ValidationError("quantity for ticket type %s must be at least 1", rawID)
		}
		if qty > MaxTicketsPerLine {
			return nil, models.ValidationError("at most %d tickets per ticket type", MaxTicketsPerLine)
		}
		if _, ok := event.FindTicketType(ttID); !ok {
			return nil, models.ValidationError("ticket type %s does not belong to this event", rawID)
		}
		// ids are case-insensitive hex, so two keys can name one ticket type
		if _, dup := requested[ttID]; dup {
			return nil, models.ValidationError("duplicate ticket type %s", ttID.Hex())
		}
		requested[ttID] = qty
	}

	// Lines follow the event's ticket type order so orders read naturally.
	var (
		lines   []models.ReservationLine
		tickets []models.Ticket
		total   = decimal.Zero
	)
	for _, tt := range event.TicketTypes {
		qty, ok := requested[tt.ID]
		if !ok {
			continue
		}
		if qty > tt.Available() {
			metrics.Checkouts.WithLabelValues("insufficient").Inc()
			return nil, insufficient(tt, qty)
		}
		lines = append(lines, models.ReservationLine{TicketTypeID: tt.ID, Quantity: qty})
		price := decimal.NewFromFloat(tt.Price)
		total = total.Add(price.Mul(decimal.NewFromInt(int64(qty))))
		for i := 0; i < qty; i++ {
			tickets = append(tickets, models.Ticket{
				TicketTypeID: tt.ID,
				Name:         tt.Name,
				Quantity:     1,
				Price:        tt.Price,
				TicketID:     helpers.NewTicketCode(),
			})
		}
	}

	ok, err := cs.events.ReserveTickets(ctx, event.ID, lines)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.Checkouts.WithLabelValues("insufficient").Inc()
		return nil, cs.explainShortfall(ctx, event.ID, lines)
	}

	order := &models.Order{
		UserID:           uid,
		EventID:          event.ID,
		Tickets:          tickets,
		TotalAmount:      total.Round(2).InexactFloat64(),
		Currency:         cs.cfg.Currency,
		Status:           models.OrderStatusPending,
		PaymentReference: helpers.GenerateReference(ReferencePrefix),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := cs.orders.CreateOrder(ctx, order); err != nil {
		if relErr := cs.events.ReleaseTickets(ctx, event.ID, lines); relErr != nil {
			cs.logger.Error("Failed to release reservation after order insert failed",
				"event_id", event.ID.Hex(), "error", relErr)
		}
		return nil, err
	}

	metrics.Checkouts.WithLabelValues("reserved").Inc()
	metrics.TicketsReserved.Add(float64(len(tickets)))
	cs.logger.Info("Tickets reserved",
		"order_id", order.ID.Hex(),
		"reference", order.PaymentReference,
		"event_id", event.ID.Hex(),
		"tickets", len(tickets),
	)
	return order, nil
}

func insufficient(tt models.TicketType, requested int) error {
	return &models.InsufficientTicketsError{
		TicketTypeID: tt.ID.Hex(),
		Name:         tt.Name,
		Requested:    requested,
		Available:    tt.Available(),
	}
}

// explainShortfall re-reads the event after a lost reservation race to name
// the ticket type that ran out.
func (cs *CheckoutService) explainShortfall(ctx context.Context, eventID primitive.ObjectID, lines []models.ReservationLine) error {
	event, err := cs.events.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	if !event.IsOnSale(cs.clock.Now()) {
		return models.ErrEventNotOnSale
	}
	for _, line := range lines {
		tt, ok := event.FindTicketType(line.TicketTypeID)
		if !ok {
			return models.ErrTicketTypeNotFound
		}
		if line.Quantity > tt.Available() {
			return insufficient(*tt, line.Quantity)
		}
	}
	return models.ErrInsufficientTickets
}

func (cs *CheckoutService) gatewayFor(order *models.Order) (payment.Gateway, error) {
	provider := order.PaymentProvider
	if provider == "" {
		provider = cs.cfg.DefaultProvider
	}
	gw, ok := cs.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("payment provider %q is not configured", provider)
	}
	return gw, nil
}

func (cs *CheckoutService) expectedMinor(order *models.Order) int64 {
	return payment.ToMinor(decimal.NewFromFloat(order.TotalAmount))
}

func (cs *CheckoutService) InitializePayment(ctx context.Context, actor *helpers.EnhancedClaims, orderID string) (*InitializeResult, error) {
	oid, err := models.ParseObjectID(orderID)
	if err != nil {
		return nil, err
	}
	order, err := cs.orders.GetOrderByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	if !actor.IsOwner(order.UserID.Hex()) {
		return nil, fmt.Errorf("only the buyer can pay for this order: %w", models.ErrForbidden)
	}
	if order.Status != models.OrderStatusPending {
		return nil, models.ErrOrderNotPending
	}
	if cs.clock.Now().Sub(order.CreatedAt) > cs.cfg.ReservationTTL {
		if _, err := cs.fail(ctx, order, reasonExpired, ""); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", reasonExpired, models.ErrOrderNotPending)
	}

	user, err := cs.users.GetUserByID(ctx, order.UserID)
	if err != nil {
		return nil, err
	}
	gw, err := cs.gatewayFor(order)
	if err != nil {
		return nil, err
	}

	res, err := gw.Initialize(ctx, payment.InitRequest{
		Reference:   order.PaymentReference,
		Email:       user.Email,
		AmountMinor: cs.expectedMinor(order),
		Currency:    order.Currency,
		CallbackURL: cs.cfg.CallbackURL,
		Metadata: map[string]string{
			"orderId": order.ID.Hex(),
			"eventId": order.EventID.Hex(),
			"userId":  order.UserID.Hex(),
		},
	})
	if err != nil {
		return nil, err
	}

	updated, err := cs.orders.AttachPayment(ctx, order.ID, gw.Provider(), res.ProviderRef, cs.clock.Now())
	if err != nil {
		return nil, err
	}
	cs.logger.Info("Payment initialized", "order_id", orderID, "reference", order.PaymentReference, "provider", gw.Provider())
	return &InitializeResult{Order: updated, Payment: res}, nil
}

// VerifyPayment settles the order behind reference with the gateway's
// verdict. Settled orders are returned unchanged without asking the gateway.
func (cs *CheckoutService) VerifyPayment(ctx context.Context, reference string) (*models.Order, error) {
	if reference == "" {
		return nil, models.ValidationError("reference is required")
	}
	order, err := cs.orders.GetOrderByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if order.IsSettled() {
		return order, nil
	}

	key := locker.VerifyKey(reference)
	acquired, err := cs.locker.Acquire(ctx, key, verifyLockTTL)
	if err != nil {
		cs.logger.Warn("Verification lock unavailable, continuing without it", "reference", reference, "error", err)
	} else if !acquired {
		return nil, models.ErrVerificationInFlight
	} else {
		defer func() {
			if err := cs.locker.Release(context.WithoutCancel(ctx), key); err != nil {
				cs.logger.Warn("Failed to release verification lock", "reference", reference, "error", err)
			}
		}()
	}

	return cs.settle(ctx, order, false)
}

// settle asks the gateway about a pending order and applies the outcome.
// When expire is set an order the gateway still reports as pending is failed.
func (cs *CheckoutService) settle(ctx context.Context, order *models.Order, expire bool) (*models.Order, error) {
	gw, err := cs.gatewayFor(order)
	if err != nil {
		return nil, err
	}
	v, err := gw.Verify(ctx, payment.Lookup{Reference: order.PaymentReference, ProviderRef: order.ProviderRef})
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", order.PaymentReference, err)
	}

	switch v.Status {
	case payment.StatusSuccess:
		if v.Reference != "" && v.Reference != order.PaymentReference {
			return cs.fail(ctx, order, reasonReference, v.GatewayStatus)
		}
		if v.AmountMinor != cs.expectedMinor(order) {
			cs.logger.Warn("Paid amount does not match order total",
				"reference", order.PaymentReference,
				"expected", cs.expectedMinor(order),
				"paid", v.AmountMinor,
			)
			return cs.fail(ctx, order, reasonAmount, v.GatewayStatus)
		}
		return cs.complete(ctx, order, v)
	case payment.StatusFailed, payment.StatusAbandoned:
		return cs.fail(ctx, order, reasonGatewayFail+v.GatewayStatus, v.GatewayStatus)
	}

	if expire {
		return cs.fail(ctx, order, reasonExpired, v.GatewayStatus)
	}
	return order, nil
}

func (cs *CheckoutService) complete(ctx context.Context, order *models.Order, v *payment.Verification) (*models.Order, error) {
	paidAt := cs.clock.Now()
	if v.PaidAt != nil {
		paidAt = v.PaidAt.UTC()
	}
	updated, err := cs.orders.SettleOrder(ctx, order.ID, models.Settlement{
		Status:        models.OrderStatusCompleted,
		PaymentStatus: v.GatewayStatus,
		PaidAt:        &paidAt,
	}, cs.clock.Now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// another verification settled it first
		return cs.orders.GetOrderByID(ctx, order.ID)
	}

	metrics.PaymentsSettled.WithLabelValues(updated.PaymentProvider, string(models.OrderStatusCompleted)).Inc()
	cs.logger.Info("Order completed", "order_id", updated.ID.Hex(), "reference", updated.PaymentReference)
	cs.publishCompleted(ctx, updated)
	return updated, nil
}

func (cs *CheckoutService) fail(ctx context.Context, order *models.Order, reason, gatewayStatus string) (*models.Order, error) {
	updated, err := cs.orders.SettleOrder(ctx, order.ID, models.Settlement{
		Status:        models.OrderStatusFailed,
		PaymentStatus: gatewayStatus,
		FailureReason: reason,
	}, cs.clock.Now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return cs.orders.GetOrderByID(ctx, order.ID)
	}

	// Only the caller that moved the order out of pending releases its tickets.
	if err := cs.releaseFailed(ctx, updated); err != nil {
		cs.logger.Error("Failed to release tickets of failed order, will retry",
			"order_id", updated.ID.Hex(), "event_id", updated.EventID.Hex(), "lines", updated.Lines(), "error", err)
	}
	metrics.PaymentsSettled.WithLabelValues(updated.PaymentProvider, string(models.OrderStatusFailed)).Inc()
	cs.logger.Info("Order failed", "order_id", updated.ID.Hex(), "reference", updated.PaymentReference, "reason", reason)
	return updated, nil
}

// releaseFailed puts a failed order's tickets back once. A failed release is
// flagged again so RetryReleases picks it up.
func (cs *CheckoutService) releaseFailed(ctx context.Context, order *models.Order) error {
	claimed, err := cs.orders.ClaimTicketRelease(ctx, order.ID, cs.clock.Now())
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	if err := cs.events.ReleaseTickets(ctx, order.EventID, order.Lines()); err != nil {
		if rerr := cs.orders.RestoreTicketRelease(context.WithoutCancel(ctx), order.ID, cs.clock.Now()); rerr != nil {
			cs.logger.Error("Failed to flag order for release retry",
				"order_id", order.ID.Hex(), "lines", order.Lines(), "error", rerr)
		}
		return err
	}
	metrics.TicketsReleased.Add(float64(len(order.Tickets)))
	return nil
}

// RetryReleases returns the tickets of failed orders whose earlier release
// did not go through.
func (cs *CheckoutService) RetryReleases(ctx context.Context) (int, error) {
	orders, err := cs.orders.ListPendingReleases(ctx, expirySweepBatch)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}
		if err := cs.releaseFailed(ctx, order); err != nil {
			cs.logger.Warn("Ticket release retry failed", "order_id", order.ID.Hex(), "lines", order.Lines(), "error", err)
			continue
		}
		released++
	}
	return released, nil
}

func (cs *CheckoutService) publishCompleted(ctx context.Context, order *models.Order) {
	msg := broker.OrderCompleted{
		OrderID:     order.ID.Hex(),
		Reference:   order.PaymentReference,
		EventID:     order.EventID.Hex(),
		UserID:      order.UserID.Hex(),
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
	}
	if order.PaidAt != nil {
		msg.PaidAt = *order.PaidAt
	}
	for _, t := range order.Tickets {
		msg.Tickets = append(msg.Tickets, broker.TicketSummary{TicketID: t.TicketID, Name: t.Name, Price: t.Price})
	}
	if user, err := cs.users.GetUserByID(ctx, order.UserID); err == nil {
		msg.Email, msg.Name = user.Email, user.Name
	} else {
		cs.logger.Warn("Could not load buyer for ticket email", "order_id", msg.OrderID, "error", err)
	}
	if event, err := cs.events.GetEventByID(ctx, order.EventID); err == nil {
		msg.EventTitle, msg.EventStart, msg.Venue = event.Title, event.StartDate, event.Venue
	} else {
		cs.logger.Warn("Could not load event for ticket email", "order_id", msg.OrderID, "error", err)
	}

	if err := cs.publisher.PublishOrderCompleted(context.WithoutCancel(ctx), msg); err != nil {
		cs.logger.Error("Failed to publish order completed", "order_id", msg.OrderID, "error", err)
	}
}

// HandleWebhook authenticates a gateway callback and runs the same
// settlement as VerifyPayment. Callbacks for unknown orders are acknowledged
// and ignored.
func (cs *CheckoutService) HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) (*models.Order, error) {
	parser, ok := cs.webhooks[provider]
	if !ok {
		return nil, fmt.Errorf("webhook provider %q: %w", provider, models.ErrNotFound)
	}
	reference, err := parser.ParseWebhook(payload, signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidWebhook, err)
	}
	if reference == "" {
		return nil, nil
	}

	order, err := cs.VerifyPayment(ctx, reference)
	switch {
	case errors.Is(err, models.ErrOrderNotFound):
		cs.logger.Warn("Webhook for unknown order", "provider", provider, "reference", reference)
		return nil, nil
	case errors.Is(err, models.ErrVerificationInFlight):
		return nil, nil
	}
	return order, err
}

// ExpireReservations settles pending orders older than the reservation TTL.
// Orders that were handed to a gateway are checked there first, so a payment
// that did go through still completes.
func (cs *CheckoutService) ExpireReservations(ctx context.Context) (int, error) {
	cutoff := cs.clock.Now().Add(-cs.cfg.ReservationTTL)
	orders, err := cs.orders.ListStalePendingOrders(ctx, cutoff, expirySweepBatch)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		var settled *models.Order
		if order.PaymentProvider == "" {
			settled, err = cs.fail(ctx, order, reasonExpired, "")
		} else {
			settled, err = cs.expireWithGateway(ctx, order)
		}
		if err != nil {
			cs.logger.Warn("Could not expire reservation", "order_id", order.ID.Hex(), "error", err)
			continue
		}
		if settled != nil && settled.Status == models.OrderStatusFailed && settled.FailureReason == reasonExpired {
			expired++
			metrics.ReservationsExpired.Inc()
		}
	}
	return expired, nil
}

func (cs *CheckoutService) expireWithGateway(ctx context.Context, order *models.Order) (*models.Order, error) {
	key := locker.VerifyKey(order.PaymentReference)
	acquired, err := cs.locker.Acquire(ctx, key, verifyLockTTL)
	if err == nil && !acquired {
		return nil, models.ErrVerificationInFlight
	}
	if err == nil {
		defer func() { _ = cs.locker.Release(context.WithoutCancel(ctx), key) }()
	}
	return cs.settle(ctx, order, true)
}

// GetOrder is visible to the buyer, the event's organizer and admins.
func (cs *CheckoutService) GetOrder(ctx context.Context, actor *helpers.EnhancedClaims, id string) (*models.Order, error) {
	oid, err := models.ParseObjectID(id)
	if err != nil {
		return nil, err
	}
	order, err := cs.orders.GetOrderByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() || actor.IsOwner(order.UserID.Hex()) {
		return order, nil
	}
	event, err := cs.events.GetEventByID(ctx, order.EventID)
	if err == nil && actor.IsOwner(event.OrganizerID.Hex()) {
		return order, nil
	}
	return nil, models.ErrOrderNotFound
}

func (cs *CheckoutService) ListMyOrders(ctx context.Context, userID string, page, limit int) ([]*models.Order, int64, error) {
	uid, err := models.ParseObjectID(userID)
	if err != nil {
		return nil, 0, err
	}
	_, limit, offset := Pagination(page, limit)
	return cs.orders.ListOrdersByUser(ctx, uid, offset, limit)
}
