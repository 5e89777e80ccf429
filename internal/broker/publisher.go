package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joshua-takyi/eventix/internal/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher interface {
	PublishOrderCompleted(ctx context.Context, msg OrderCompleted) error
	Close() error
}

// RabbitPublisher keeps one connection and channel open and redials when the
// broker drops them.
type RabbitPublisher struct {
	url    string
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitPublisher(url string, logger *slog.Logger) (*RabbitPublisher, error) {
	p := &RabbitPublisher{url: url, logger: logger}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(OrderCompletedQueue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *RabbitPublisher) ensureConnection() error {
	if p.conn != nil && !p.conn.IsClosed() && p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.logger.Warn("RabbitMQ connection lost, reconnecting")
	if p.conn != nil {
		_ = p.conn.Close()
	}
	return p.connect()
}

func (p *RabbitPublisher) PublishOrderCompleted(ctx context.Context, msg OrderCompleted) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal order completed: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureConnection(); err != nil {
		metrics.MessagesPublished.WithLabelValues(OrderCompletedQueue, "error").Inc()
		return err
	}

	err = p.ch.PublishWithContext(ctx, "", OrderCompletedQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.OrderID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		metrics.MessagesPublished.WithLabelValues(OrderCompletedQueue, "error").Inc()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	metrics.MessagesPublished.WithLabelValues(OrderCompletedQueue, "ok").Inc()
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// LogPublisher stands in when no broker is configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func (l LogPublisher) PublishOrderCompleted(ctx context.Context, msg OrderCompleted) error {
	l.Logger.Info("Order completed (no broker configured)",
		"order_id", msg.OrderID,
		"reference", msg.Reference,
		"tickets", len(msg.Tickets),
	)
	metrics.MessagesPublished.WithLabelValues(OrderCompletedQueue, "skipped").Inc()
	return nil
}

func (LogPublisher) Close() error { return nil }
