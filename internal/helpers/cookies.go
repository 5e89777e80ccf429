package helpers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"

	refreshCookieMaxAge = 3600 * 24 * 30
)

// SetAuthCookies stores the session tokens as http-only cookies. An empty
// refresh token leaves the refresh cookie alone.
func SetAuthCookies(c *gin.Context, accessToken string, expiresIn int, refreshToken string, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessTokenCookie, accessToken, expiresIn, "/", "", secure, true)
	if refreshToken != "" {
		c.SetCookie(RefreshTokenCookie, refreshToken, refreshCookieMaxAge, "/", "", secure, true)
	}
}

func ClearAuthCookies(c *gin.Context, secure bool) {
	c.SetCookie(AccessTokenCookie, "", -1, "/", "", secure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", "", secure, true)
}
