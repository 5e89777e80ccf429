package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventix_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventix_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	Checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventix_checkouts_total",
			Help: "Checkout attempts by result",
		},
		[]string{"result"},
	)

	TicketsReserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventix_tickets_reserved_total",
			Help: "Tickets reserved at checkout",
		},
	)

	TicketsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventix_tickets_released_total",
			Help: "Tickets returned to inventory after a failed order",
		},
	)

	PaymentsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventix_payments_settled_total",
			Help: "Orders settled by provider and final status",
		},
		[]string{"provider", "status"},
	)

	TicketScans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventix_ticket_scans_total",
			Help: "Ticket scan attempts by result",
		},
		[]string{"result"},
	)

	PromotionsExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventix_promotions_expired_total",
			Help: "Promotions turned off by the sweep",
		},
		[]string{"type"},
	)

	ReservationsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventix_reservations_expired_total",
			Help: "Pending orders failed by the reservation expiry sweep",
		},
	)

	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventix_messages_published_total",
			Help: "Broker messages published by routing key and result",
		},
		[]string{"routing_key", "result"},
	)
)
