package services

import (
	"context"
	"testing"
	"time"

	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestScanTicketOnce(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	order := f.checkout(t, 2, 0)
	f.paid(order)
	_, err := f.svc.VerifyPayment(ctx, order.PaymentReference)
	require.NoError(t, err)

	scans := NewScanService(f.repo, f.repo, f.clk, testLogger)
	gate := &helpers.EnhancedClaims{UserID: primitive.NewObjectID().Hex(), Role: models.RoleScanner}
	code := order.Tickets[0].TicketID

	res, err := scans.Scan(ctx, gate, code)
	require.NoError(t, err)
	assert.True(t, res.Ticket.IsScanned)
	assert.Equal(t, gate.UserID, res.Ticket.ScannedBy)
	assert.Equal(t, order.ID.Hex(), res.OrderID)
	firstScan := f.clk.Now()

	f.clk.Advance(10 * time.Minute)
	_, err = scans.Scan(ctx, gate, code)
	var dup *models.AlreadyScannedError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, gate.UserID, dup.ScannedBy)
	assert.True(t, dup.ScannedAt.Equal(firstScan), "reports the first scan")
	assert.ErrorIs(t, err, models.ErrAlreadyScanned)

	// the other ticket of the same order is still valid
	_, err = scans.Scan(ctx, gate, order.Tickets[1].TicketID)
	assert.NoError(t, err)
}

func TestScanRejections(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	unpaid := f.checkout(t, 1, 0)
	scans := NewScanService(f.repo, f.repo, f.clk, testLogger)
	gate := &helpers.EnhancedClaims{UserID: primitive.NewObjectID().Hex(), Role: models.RoleStaff}

	_, err := scans.Scan(ctx, gate, "no-such-ticket")
	assert.ErrorIs(t, err, models.ErrTicketNotFound)

	_, err = scans.Scan(ctx, gate, unpaid.Tickets[0].TicketID)
	assert.ErrorIs(t, err, models.ErrTicketNotPaid)

	buyer := f.buyerClaims()
	_, err = scans.Scan(ctx, buyer, unpaid.Tickets[0].TicketID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = scans.Scan(ctx, gate, "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestScanByEventOrganizer(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	order := f.checkout(t, 1, 0)
	f.paid(order)
	_, err := f.svc.VerifyPayment(ctx, order.PaymentReference)
	require.NoError(t, err)

	scans := NewScanService(f.repo, f.repo, f.clk, testLogger)
	organizer := &helpers.EnhancedClaims{UserID: f.organizer.ID.Hex(), Role: models.RoleOrganizer}
	_, err = scans.Scan(ctx, organizer, order.Tickets[0].TicketID)
	assert.NoError(t, err)

	otherOrganizer := &helpers.EnhancedClaims{UserID: primitive.NewObjectID().Hex(), Role: models.RoleOrganizer}
	_, err = scans.Scan(ctx, otherOrganizer, order.Tickets[0].TicketID)
	assert.ErrorIs(t, err, models.ErrForbidden)
}
