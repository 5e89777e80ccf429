package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/joshua-takyi/eventix/internal/broker"
	"github.com/joshua-takyi/eventix/internal/config"
	"github.com/joshua-takyi/eventix/internal/connect"
	"github.com/joshua-takyi/eventix/internal/container"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/mailer"
	"github.com/joshua-takyi/eventix/internal/media"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/joshua-takyi/eventix/internal/payment"
	"github.com/joshua-takyi/eventix/internal/routes"
)

func main() {
	// Load environment variables
	_ = godotenv.Load(".env.local")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg)
	logger.Info("Starting Eventix API server", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoClient, err := connect.MongoDBConnect(ctx, cfg.MongoDBURI, cfg.MongoDBPassword)
	if err != nil {
		logger.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to MongoDB successfully")

	repo := models.MongodbNewRepo(mongoClient, cfg.MongoDBName)
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Error("Failed to create indexes", "error", err)
		os.Exit(1)
	}

	rdb, err := connect.RedisConnect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("Invalid Redis configuration", "error", err)
		os.Exit(1)
	}
	if rdb == nil {
		logger.Warn("Redis unavailable, rate limiting and verification locks disabled")
	} else {
		defer rdb.Close()
	}

	deps := container.Deps{
		Repo:      repo,
		Redis:     rdb,
		Gateways:  setupGateways(cfg),
		Publisher: setupPublisher(cfg, logger),
		Mailer:    setupMailer(cfg, logger),
		Media:     setupMedia(cfg, logger),
	}
	defer deps.Publisher.Close()

	if cfg.SupabaseEnabled() {
		supaClient, err := connect.InitSupabase(cfg.SupabaseURL, cfg.SupabaseAnonKey)
		if err != nil {
			logger.Error("Failed to connect to Supabase", "error", err)
			os.Exit(1)
		}
		verifier, err := helpers.NewSupabaseVerifier(ctx, cfg.SupabaseURL)
		if err != nil {
			logger.Error("Failed to load Supabase signing keys", "error", err)
			os.Exit(1)
		}
		defer verifier.Close()
		deps.Supabase, deps.Verifier = supaClient, verifier
		logger.Info("Supabase sessions enabled")
	}

	// Initialize dependency container
	appContainer := container.NewContainer(cfg, logger, deps)

	if cfg.SweeperEnabled {
		go appContainer.Sweeper.Run(ctx)
	}

	// Setup routes
	router := routes.SetupRoutes(appContainer)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Server is shutting down...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	if err := connect.MongoDBDisconnect(mongoClient); err != nil {
		logger.Error("Error disconnecting from MongoDB", "error", err)
	}

	logger.Info("Server exited")
}

func setupGateways(cfg *config.Config) []payment.Gateway {
	var gateways []payment.Gateway
	if cfg.PaystackSecretKey != "" {
		gateways = append(gateways, payment.NewPaystack(cfg.PaystackSecretKey, cfg.PaystackBaseURL, nil))
	}
	if cfg.StripeSecretKey != "" {
		gateways = append(gateways, payment.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret))
	}
	return gateways
}

func setupPublisher(cfg *config.Config, logger *slog.Logger) broker.Publisher {
	if cfg.RabbitMQURL == "" {
		logger.Warn("RABBITMQ_URL not set, completed orders will only be logged")
		return broker.LogPublisher{Logger: logger}
	}
	p, err := broker.NewRabbitPublisher(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ unavailable, completed orders will only be logged", "error", err)
		return broker.LogPublisher{Logger: logger}
	}
	return p
}

func setupMailer(cfg *config.Config, logger *slog.Logger) mailer.Mailer {
	if cfg.MailerSendAPIKey == "" || cfg.MailerSendFromEmail == "" {
		return mailer.LogMailer{Logger: logger}
	}
	return mailer.NewMailerSendService(cfg.MailerSendAPIKey, cfg.MailerSendFromEmail, cfg.MailerSendFromName, logger)
}

func setupMedia(cfg *config.Config, logger *slog.Logger) media.Store {
	if !cfg.CloudinaryEnabled() {
		return media.PassthroughStore{Logger: logger}
	}
	cld, err := connect.CloudinaryCredentials(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	if err != nil {
		logger.Warn("Cloudinary unavailable, storing image URLs as given", "error", err)
		return media.PassthroughStore{Logger: logger}
	}
	return media.NewCloudinaryStore(cld, "eventix/events")
}

func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}

	var handler slog.Handler
	if cfg.IsProduction() {
		// JSON logging for production
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		// Human-readable logging for development
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
