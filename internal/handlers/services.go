package handlers

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/joshua-takyi/eventix/internal/services"
	"github.com/supabase-community/gotrue-go/types"
)

// The interfaces below are the parts of the services each handler group
// calls. The *services types satisfy them.

type UserAPI interface {
	RequestSignupCode(ctx context.Context, email string) error
	Signup(ctx context.Context, in services.SignupInput) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	RefreshSession(ctx context.Context, refreshToken string) (*types.TokenResponse, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, role models.Role, page, limit int) ([]*models.User, int64, error)
	UpdateUser(ctx context.Context, id string, update models.UserUpdate) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
	SetRole(ctx context.Context, id string, role models.Role) (*models.User, error)
}

type EventAPI interface {
	CreateEvent(ctx context.Context, organizerID string, in services.CreateEventInput) (*models.Event, error)
	GetEvent(ctx context.Context, id string, viewer *helpers.EnhancedClaims) (*models.Event, error)
	ListEvents(ctx context.Context, q services.ListEventsQuery) ([]*models.Event, int64, error)
	ListOrganizerEvents(ctx context.Context, organizerID string, page, limit int) ([]*models.Event, int64, error)
	UpdateEvent(ctx context.Context, id string, actor *helpers.EnhancedClaims, in services.UpdateEventInput) (*models.Event, error)
	ChangeStatus(ctx context.Context, id string, actor *helpers.EnhancedClaims, to models.EventStatus) (*models.Event, error)
	DeleteEvent(ctx context.Context, id string, actor *helpers.EnhancedClaims) error
}

type CheckoutAPI interface {
	Checkout(ctx context.Context, userID string, in services.CheckoutInput) (*models.Order, error)
	InitializePayment(ctx context.Context, actor *helpers.EnhancedClaims, orderID string) (*services.InitializeResult, error)
	VerifyPayment(ctx context.Context, reference string) (*models.Order, error)
	HandleWebhook(ctx context.Context, provider string, payload []byte, signature string) (*models.Order, error)
	GetOrder(ctx context.Context, actor *helpers.EnhancedClaims, id string) (*models.Order, error)
	ListMyOrders(ctx context.Context, userID string, page, limit int) ([]*models.Order, int64, error)
}

type ScanAPI interface {
	Scan(ctx context.Context, actor *helpers.EnhancedClaims, code string) (*services.ScanResult, error)
}

type PromotionAPI interface {
	SetPromotion(ctx context.Context, eventID string, in services.PromotionInput) (*models.Event, error)
	EndPromotion(ctx context.Context, eventID string, kind models.PromotionKind) (*models.Event, error)
	CheckPromotions(ctx context.Context) (*services.SweepResult, error)
}

type AnalyticsAPI interface {
	OrganizerAnalytics(ctx context.Context, organizerID string) ([]models.EventStats, error)
	PlatformAnalytics(ctx context.Context) (*models.PlatformStats, error)
}

// pageParams reads ?page and ?limit and clamps them the way the services do.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	page, limit, _ = services.Pagination(page, limit)
	return page, limit
}

func requireUser(c *gin.Context) (*helpers.EnhancedClaims, bool) {
	claims, ok := helpers.CurrentUser(c)
	if !ok {
		helpers.RespondError(c, models.ErrUnauthorized)
	}
	return claims, ok
}
