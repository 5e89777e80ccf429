package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/joshua-takyi/eventix/internal/services"
)

func RequestSignupCode(u UserAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email string `json:"email" binding:"required,email"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.BindError(c, err)
			return
		}
		if err := u.RequestSignupCode(c.Request.Context(), req.Email); err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, models.SuccessResponse(nil, "verification code sent"))
	}
}

func Signup(u UserAPI, secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.SignupInput
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.BindError(c, err)
			return
		}
		res, err := u.Signup(c.Request.Context(), req)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		helpers.SetAuthCookies(c, res.Token, res.ExpiresIn, "", secureCookies)
		c.JSON(http.StatusCreated, models.SuccessResponse(res, "account created"))
	}
}

func Login(u UserAPI, secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.BindError(c, err)
			return
		}
		res, err := u.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		helpers.SetAuthCookies(c, res.Token, res.ExpiresIn, "", secureCookies)
		c.JSON(http.StatusOK, models.SuccessResponse(res, "logged in"))
	}
}

// RefreshSession renews a Supabase session from the refresh_token cookie.
func RefreshSession(u UserAPI, secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		refreshToken, _ := c.Cookie(helpers.RefreshTokenCookie)
		res, err := u.RefreshSession(c.Request.Context(), refreshToken)
		if err != nil {
			helpers.ClearAuthCookies(c, secureCookies)
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("session expired"))
			return
		}
		helpers.SetAuthCookies(c, res.AccessToken, res.ExpiresIn, res.RefreshToken, secureCookies)
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"expiresIn": res.ExpiresIn}, "session refreshed"))
	}
}

func Logout(secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		helpers.ClearAuthCookies(c, secureCookies)
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Logged out successfully"))
	}
}

func Profile(u UserAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := requireUser(c)
		if !ok {
			return
		}
		user, err := u.GetUser(c.Request.Context(), claims.UserID)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(user, ""))
	}
}
