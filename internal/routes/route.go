package routes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/eventix/internal/container"
	"github.com/joshua-takyi/eventix/internal/handlers"
	"github.com/joshua-takyi/eventix/internal/middleware"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/joshua-takyi/eventix/internal/payment"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all routes with the dependency container
func SetupRoutes(container *container.Container) *gin.Engine {
	cfg := container.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	secure := cfg.IsProduction()

	r := gin.New()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
	}))

	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(container.Logger))
	r.Use(middleware.ErrorHandler(container.Logger))
	r.Use(gin.Recovery())
	r.Use(middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := container.Auth
	users := container.UserService
	events := container.EventService
	checkout := container.CheckoutService

	// API version 1
	v1 := r.Group("/api/v1")
	v1.Use(middleware.RateLimit(cfg.RateLimit, container.Redis, container.Logger))
	{
		v1.GET("/health", handlers.Health(container.Repo))

		// public routes
		v1.POST("/auth/signup/code", handlers.RequestSignupCode(users))
		v1.POST("/auth/signup", handlers.Signup(users, secure))
		v1.POST("/auth/login", handlers.Login(users, secure))
		v1.POST("/auth/refresh", handlers.RefreshSession(users, secure))
		v1.POST("/auth/logout", handlers.Logout(secure))

		v1.GET("/events", handlers.ListEvents(events))
		v1.GET("/events/:id", auth.Optional(), handlers.GetEvent(events))

		v1.GET("/payments/verify", handlers.VerifyPayment(checkout))
		v1.POST("/payments/webhook/paystack", handlers.PaymentWebhook(checkout, payment.ProviderPaystack))
		v1.POST("/payments/webhook/stripe", handlers.PaymentWebhook(checkout, payment.ProviderStripe))

		v1.POST("/cron/check-promotions", middleware.CronAuth(cfg.CronSecret), handlers.CheckPromotions(container.PromotionService))
	}

	protected := v1.Group("/")
	protected.Use(auth.Required())
	{
		protected.GET("/profile", handlers.Profile(users))

		userRoutes := protected.Group("/users")
		userRoutes.GET("/:id", handlers.GetUser(users))
		userRoutes.PATCH("/:id", handlers.UpdateUser(users))
		userRoutes.DELETE("/:id", handlers.DeleteUser(users))

		// ownership is checked by the event service
		eventRoutes := protected.Group("/events")
		eventRoutes.POST("", middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin), handlers.CreateEvent(events))
		eventRoutes.PATCH("/:id", handlers.UpdateEvent(events))
		eventRoutes.PATCH("/:id/status", handlers.ChangeEventStatus(events))
		eventRoutes.DELETE("/:id", handlers.DeleteEvent(events))

		organizer := protected.Group("/organizer")
		organizer.Use(middleware.RequireRole(models.RoleOrganizer, models.RoleAdmin))
		organizer.GET("/events", handlers.ListOrganizerEvents(events))
		organizer.GET("/analytics", handlers.OrganizerAnalytics(container.AnalyticsService))

		protected.POST("/checkout", handlers.Checkout(checkout))
		protected.POST("/payments/initialize", handlers.InitializePayment(checkout))
		protected.GET("/orders", handlers.ListMyOrders(checkout))
		protected.GET("/orders/:id", handlers.GetOrder(checkout))

		// organizers may scan their own events, so the role check lives in the service
		protected.POST("/tickets/scan", handlers.ScanTicket(container.ScanService))
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/users", handlers.ListUsers(users))
		admin.PATCH("/users/:id/role", handlers.SetUserRole(users))
		admin.PUT("/events/:id/promotion", handlers.SetPromotion(container.PromotionService))
		admin.DELETE("/events/:id/promotion/:type", handlers.EndPromotion(container.PromotionService))
		admin.POST("/promotions/check", handlers.CheckPromotions(container.PromotionService))
		admin.GET("/analytics", handlers.PlatformAnalytics(container.AnalyticsService))
	}

	return r
}
