package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/joshua-takyi/eventix/internal/services"
)

func ScanTicket(ss ScanAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := requireUser(c)
		if !ok {
			return
		}
		var req struct {
			Code string `json:"code" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.BindError(c, err)
			return
		}
		res, err := ss.Scan(c.Request.Context(), claims, req.Code)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(res, "ticket admitted"))
	}
}

func SetPromotion(ps PromotionAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.PromotionInput
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.BindError(c, err)
			return
		}
		event, err := ps.SetPromotion(c.Request.Context(), c.Param("id"), req)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(event, "promotion scheduled"))
	}
}

func EndPromotion(ps PromotionAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		event, err := ps.EndPromotion(c.Request.Context(), c.Param("id"), models.PromotionKind(c.Param("type")))
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(event, "promotion ended"))
	}
}

// CheckPromotions serves both the admin trigger and the cron endpoint.
func CheckPromotions(ps PromotionAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := ps.CheckPromotions(c.Request.Context())
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(res, "promotions checked"))
	}
}

func OrganizerAnalytics(as AnalyticsAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := requireUser(c)
		if !ok {
			return
		}
		stats, err := as.OrganizerAnalytics(c.Request.Context(), claims.UserID)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(stats, ""))
	}
}

func PlatformAnalytics(as AnalyticsAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := as.PlatformAnalytics(c.Request.Context())
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(stats, ""))
	}
}

type Pinger interface {
	Ping(ctx context.Context) error
}

func Health(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(c.Request.Context()); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "eventix-api"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": "eventix-api"})
	}
}
