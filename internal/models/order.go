package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

// Ticket is a single admission. Each purchased unit is its own ticket with
// its own scan code.
type Ticket struct {
	TicketTypeID primitive.ObjectID `bson:"ticketTypeId" json:"ticketTypeId"`
	Name         string             `bson:"name" json:"name"`
	Quantity     int                `bson:"quantity" json:"quantity"`
	Price        float64            `bson:"price" json:"price"`
	TicketID     string             `bson:"ticketId" json:"ticketId"`
	IsScanned    bool               `bson:"isScanned" json:"isScanned"`
	ScannedAt    *time.Time         `bson:"scannedAt,omitempty" json:"scannedAt,omitempty"`
	ScannedBy    string             `bson:"scannedBy,omitempty" json:"scannedBy,omitempty"`
}

type Order struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID           primitive.ObjectID `bson:"userId" json:"userId"`
	EventID          primitive.ObjectID `bson:"eventId" json:"eventId"`
	Tickets          []Ticket           `bson:"tickets" json:"tickets"`
	TotalAmount      float64            `bson:"totalAmount" json:"totalAmount"`
	Currency         string             `bson:"currency" json:"currency"`
	Status           OrderStatus        `bson:"status" json:"status"`
	PaymentReference string             `bson:"paymentReference" json:"paymentReference"`
	PaymentProvider  string             `bson:"paymentProvider,omitempty" json:"paymentProvider,omitempty"`
	ProviderRef      string             `bson:"providerReference,omitempty" json:"providerReference,omitempty"`
	PaymentStatus    string             `bson:"paymentStatus,omitempty" json:"paymentStatus,omitempty"`
	FailureReason    string             `bson:"failureReason,omitempty" json:"failureReason,omitempty"`
	PaidAt           *time.Time         `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	// ReleasePending marks a failed order whose tickets are not yet back in stock.
	ReleasePending   bool               `bson:"releasePending,omitempty" json:"-"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (o *Order) IsSettled() bool {
	return o.Status == OrderStatusCompleted || o.Status == OrderStatusFailed
}

// Lines groups the order's tickets back into per ticket type quantities, in
// the order each type first appears.
func (o *Order) Lines() []ReservationLine {
	idx := make(map[primitive.ObjectID]int)
	var lines []ReservationLine
	for _, t := range o.Tickets {
		qty := t.Quantity
		if qty < 1 {
			qty = 1
		}
		if i, ok := idx[t.TicketTypeID]; ok {
			lines[i].Quantity += qty
			continue
		}
		idx[t.TicketTypeID] = len(lines)
		lines = append(lines, ReservationLine{TicketTypeID: t.TicketTypeID, Quantity: qty})
	}
	return lines
}

func (o *Order) FindTicket(code string) (*Ticket, bool) {
	for i := range o.Tickets {
		if o.Tickets[i].TicketID == code {
			return &o.Tickets[i], true
		}
	}
	return nil, false
}

// Settlement is what a pending order records when it leaves the pending state.
type Settlement struct {
	Status        OrderStatus
	PaymentStatus string
	FailureReason string
	PaidAt        *time.Time
}
