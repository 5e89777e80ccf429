package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshua-takyi/eventix/internal/clock"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/metrics"
	"github.com/joshua-takyi/eventix/internal/models"
)

type ScanService struct {
	orders models.OrdersRepo
	events models.EventsRepo
	clock  clock.Clock
	logger *slog.Logger
}

func NewScanService(orders models.OrdersRepo, events models.EventsRepo, clk clock.Clock, logger *slog.Logger) *ScanService {
	return &ScanService{orders: orders, events: events, clock: clk, logger: logger}
}

type ScanResult struct {
	OrderID   string        `json:"orderId"`
	EventID   string        `json:"eventId"`
	Ticket    models.Ticket `json:"ticket"`
	ScannedAt time.Time     `json:"scannedAt"`
}

func (ss *ScanService) authorize(ctx context.Context, actor *helpers.EnhancedClaims, order *models.Order) error {
	if actor.CanScan() {
		return nil
	}
	event, err := ss.events.GetEventByID(ctx, order.EventID)
	if err == nil && actor.IsOwner(event.OrganizerID.Hex()) {
		return nil
	}
	return fmt.Errorf("not allowed to scan tickets for this event: %w", models.ErrForbidden)
}

// Scan admits the ticket with the given code. A ticket is admitted once; later
// scans report who scanned it first and when.
func (ss *ScanService) Scan(ctx context.Context, actor *helpers.EnhancedClaims, code string) (*ScanResult, error) {
	if code == "" {
		return nil, models.ValidationError("ticket code is required")
	}
	order, err := ss.orders.GetOrderByTicketID(ctx, code)
	if err != nil {
		metrics.TicketScans.WithLabelValues("not_found").Inc()
		return nil, err
	}
	if err := ss.authorize(ctx, actor, order); err != nil {
		return nil, err
	}

	now := ss.clock.Now()
	updated, err := ss.orders.MarkTicketScanned(ctx, code, actor.UserID, now)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// the conditional update did not match: read back why
		if order, err = ss.orders.GetOrderByTicketID(ctx, code); err != nil {
			return nil, err
		}
		return nil, ss.rejection(order, code)
	}

	ticket, _ := updated.FindTicket(code)
	metrics.TicketScans.WithLabelValues("admitted").Inc()
	ss.logger.Info("Ticket scanned", "order_id", updated.ID.Hex(), "ticket_id", code, "scanned_by", actor.UserID)
	return &ScanResult{
		OrderID:   updated.ID.Hex(),
		EventID:   updated.EventID.Hex(),
		Ticket:    *ticket,
		ScannedAt: now,
	}, nil
}

func (ss *ScanService) rejection(order *models.Order, code string) error {
	if order.Status != models.OrderStatusCompleted {
		metrics.TicketScans.WithLabelValues("not_paid").Inc()
		return models.ErrTicketNotPaid
	}
	ticket, ok := order.FindTicket(code)
	if !ok {
		return models.ErrTicketNotFound
	}
	if ticket.IsScanned {
		metrics.TicketScans.WithLabelValues("already_scanned").Inc()
		e := &models.AlreadyScannedError{TicketID: code, ScannedBy: ticket.ScannedBy}
		if ticket.ScannedAt != nil {
			e.ScannedAt = *ticket.ScannedAt
		}
		return e
	}
	return fmt.Errorf("ticket %s could not be scanned: %w", code, models.ErrConflict)
}
