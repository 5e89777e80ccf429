package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/supabase-community/gotrue-go/types"
)

// UserResolver loads the local user behind a verified token.
type UserResolver interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ResolveOAuthUser(ctx context.Context, claims *helpers.CustomClaims) (*models.User, error)
	RefreshSession(ctx context.Context, refreshToken string) (*types.TokenResponse, error)
}

// Authenticator accepts locally issued tokens and, when configured, Supabase
// access tokens. Expired Supabase sessions are refreshed from the
// refresh_token cookie.
type Authenticator struct {
	tokens        *helpers.TokenIssuer
	supabase      *helpers.SupabaseVerifier
	users         UserResolver
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthenticator(tokens *helpers.TokenIssuer, supabase *helpers.SupabaseVerifier, users UserResolver, secureCookies bool, logger *slog.Logger) *Authenticator {
	return &Authenticator{tokens: tokens, supabase: supabase, users: users, secureCookies: secureCookies, logger: logger}
}

var errNoToken = errors.New("access token not found")

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if token, err := c.Cookie(helpers.AccessTokenCookie); err == nil {
		return token
	}
	return ""
}

func claimsFor(user *models.User) *helpers.EnhancedClaims {
	return &helpers.EnhancedClaims{
		UserID:   user.ID.Hex(),
		Email:    user.Email,
		Name:     user.Name,
		Role:     user.Role,
		Provider: user.Provider,
	}
}

func (a *Authenticator) resolve(c *gin.Context) (*helpers.EnhancedClaims, error) {
	ctx := c.Request.Context()
	token := bearerToken(c)
	if token == "" {
		return nil, errNoToken
	}

	local, localErr := a.tokens.Parse(token)
	if localErr == nil {
		// the stored user decides the role so role changes apply at once
		user, err := a.users.GetUser(ctx, local.Subject)
		if err != nil {
			return nil, err
		}
		return claimsFor(user), nil
	}
	if a.supabase == nil {
		return nil, localErr
	}

	claims, err := a.supabase.Validate(token)
	if err != nil {
		refreshToken, cookieErr := c.Cookie(helpers.RefreshTokenCookie)
		if cookieErr != nil || refreshToken == "" {
			return nil, err
		}
		if claims, err = a.refresh(c, refreshToken); err != nil {
			return nil, err
		}
	}

	user, err := a.users.ResolveOAuthUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	return claimsFor(user), nil
}

func (a *Authenticator) refresh(c *gin.Context, refreshToken string) (*helpers.CustomClaims, error) {
	res, err := a.users.RefreshSession(c.Request.Context(), refreshToken)
	if err != nil {
		a.logger.Warn("Token refresh failed", "error", err)
		return nil, err
	}
	if res == nil || res.AccessToken == "" {
		return nil, errors.New("invalid refresh response")
	}
	claims, err := a.supabase.Validate(res.AccessToken)
	if err != nil {
		return nil, err
	}
	helpers.SetAuthCookies(c, res.AccessToken, res.ExpiresIn, res.RefreshToken, a.secureCookies)
	a.logger.Info("Token refreshed successfully", "subject", claims.Subject, "expires_in", res.ExpiresIn)
	return claims, nil
}

// Required rejects requests without a valid session.
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := a.resolve(c)
		if err != nil {
			requestID, _ := c.Get("request_id")
			a.logger.Debug("Authentication failed", "request_id", requestID, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}
		c.Set("user", claims)
		c.Next()
	}
}

// Optional attaches the caller when a valid session is present and lets
// anonymous requests through.
func (a *Authenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := a.resolve(c); err == nil {
			c.Set("user", claims)
		}
		c.Next()
	}
}

// RequireRole must run after Required.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := helpers.CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}
		if !claims.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse("insufficient permissions"))
			return
		}
		c.Next()
	}
}

// CronAuth guards scheduler endpoints with a shared bearer secret. With no
// secret configured every call is rejected.
func CronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}
		c.Next()
	}
}
