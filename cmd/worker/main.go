package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/joshua-takyi/eventix/internal/broker"
	"github.com/joshua-takyi/eventix/internal/config"
	"github.com/joshua-takyi/eventix/internal/mailer"
)

// The worker drains order.completed and emails each buyer their tickets.
func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()})
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()})
	}
	logger := slog.New(handler).With("component", "ticket-worker")

	var m mailer.Mailer = mailer.LogMailer{Logger: logger}
	if cfg.MailerSendAPIKey != "" && cfg.MailerSendFromEmail != "" {
		m = mailer.NewMailerSendService(cfg.MailerSendAPIKey, cfg.MailerSendFromEmail, cfg.MailerSendFromName, logger)
	} else {
		logger.Warn("MailerSend not configured, ticket emails will only be logged")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Worker started")
	err = broker.ConsumeOrderCompleted(ctx, cfg.RabbitMQURL, logger, func(ctx context.Context, msg broker.OrderCompleted) error {
		if err := m.SendTickets(ctx, msg); err != nil {
			return err
		}
		logger.Info("Tickets sent", "order_id", msg.OrderID, "reference", msg.Reference, "tickets", len(msg.Tickets))
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker exited")
}
