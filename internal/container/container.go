package container

import (
	"log/slog"

	"github.com/joshua-takyi/eventix/internal/broker"
	"github.com/joshua-takyi/eventix/internal/clock"
	"github.com/joshua-takyi/eventix/internal/config"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/locker"
	"github.com/joshua-takyi/eventix/internal/mailer"
	"github.com/joshua-takyi/eventix/internal/media"
	"github.com/joshua-takyi/eventix/internal/middleware"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/joshua-takyi/eventix/internal/payment"
	"github.com/joshua-takyi/eventix/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/supabase-community/supabase-go"
)

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	Repo   *models.MongodbRepo
	Redis  *redis.Client

	Auth *middleware.Authenticator

	UserService      *services.UserService
	EventService     *services.EventService
	CheckoutService  *services.CheckoutService
	ScanService      *services.ScanService
	PromotionService *services.PromotionService
	AnalyticsService *services.AnalyticsService
	Sweeper          *services.Sweeper
}

// Deps are the clients main connects before the container is built. The
// optional ones may be nil.
type Deps struct {
	Repo      *models.MongodbRepo
	Redis     *redis.Client
	Supabase  *supabase.Client
	Verifier  *helpers.SupabaseVerifier
	Gateways  []payment.Gateway
	Publisher broker.Publisher
	Mailer    mailer.Mailer
	Media     media.Store
	Clock     clock.Clock
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config, logger *slog.Logger, deps Deps) *Container {
	clk := deps.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}
	repo := deps.Repo

	var refresher models.SessionRefresher
	if deps.Supabase != nil {
		refresher = models.SupabaseNewRepo(deps.Supabase)
	}

	tokens := helpers.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	userService := services.NewUserService(repo, tokens, deps.Mailer, refresher, clk, logger)
	eventService := services.NewEventService(repo, repo, deps.Media, clk, logger)
	checkoutService := services.NewCheckoutService(
		repo, repo, repo,
		deps.Gateways,
		deps.Publisher,
		locker.NewRedisLocker(deps.Redis),
		services.CheckoutConfig{
			Currency:        cfg.AppCurrency,
			ReservationTTL:  cfg.ReservationTTL,
			DefaultProvider: cfg.PaymentProvider,
			CallbackURL:     cfg.FrontendURL + "/payments/callback",
		},
		clk, logger,
	)
	promotionService := services.NewPromotionService(repo, clk, logger)

	return &Container{
		Config:           cfg,
		Logger:           logger,
		Repo:             repo,
		Redis:            deps.Redis,
		Auth:             middleware.NewAuthenticator(tokens, deps.Verifier, userService, cfg.IsProduction(), logger),
		UserService:      userService,
		EventService:     eventService,
		CheckoutService:  checkoutService,
		ScanService:      services.NewScanService(repo, repo, clk, logger),
		PromotionService: promotionService,
		AnalyticsService: services.NewAnalyticsService(repo, repo),
		Sweeper:          services.NewSweeper(promotionService, checkoutService, cfg.SweepInterval, logger),
	}
}
