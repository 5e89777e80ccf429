package broker

import "time"

const OrderCompletedQueue = "order.completed"

type TicketSummary struct {
	TicketID string  `json:"ticketId"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
}

// OrderCompleted is published once per order when payment settles.
type OrderCompleted struct {
	OrderID     string          `json:"orderId"`
	Reference   string          `json:"reference"`
	EventID     string          `json:"eventId"`
	EventTitle  string          `json:"eventTitle"`
	EventStart  time.Time       `json:"eventStart"`
	Venue       string          `json:"venue,omitempty"`
	UserID      string          `json:"userId"`
	Email       string          `json:"email"`
	Name        string          `json:"name,omitempty"`
	Tickets     []TicketSummary `json:"tickets"`
	TotalAmount float64         `json:"totalAmount"`
	Currency    string          `json:"currency"`
	PaidAt      time.Time       `json:"paidAt"`
}
