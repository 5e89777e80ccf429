package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/joshua-takyi/eventix/internal/services"
)

func CreateEvent(es EventAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := requireUser(c)
		if !ok {
			return
		}
		var req services.CreateEventInput
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.BindError(c, err)
			return
		}
		event, err := es.CreateEvent(c.Request.Context(), claims.UserID, req)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(event, "event created"))
	}
}

func ListEvents(es EventAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit := pageParams(c)
		events, total, err := es.ListEvents(c.Request.Context(), services.ListEventsQuery{
			Category: c.Query("category"),
			Search:   c.Query("q"),
			Featured: c.Query("featured") == "true",
			Banner:   c.Query("banner") == "true",
			Page:     page,
			Limit:    limit,
		})
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.PaginatedResponse(events, page, limit, total))
	}
}

// GetEvent runs behind optional auth so organizers can see their drafts.
func GetEvent(es EventAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer, _ := helpers.CurrentUser(c)
		event, err := es.GetEvent(c.Request.Context(), c.Param("id"), viewer)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(event, ""))
	}
}

func ListOrganizerEvents(es EventAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := requireUser(c)
		if !ok {
			return
		}
		page, limit := pageParams(c)
		events, total, err := es.ListOrganizerEvents(c.Request.Context(), claims.UserID, page, limit)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.PaginatedResponse(events, page, limit, total))
	}
}

func UpdateEvent(es EventAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := requireUser(c)
		if !ok {
			return
		}
		var req services.UpdateEventInput
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.BindError(c, err)
			return
		}
		event, err := es.UpdateEvent(c.Request.Context(), c.Param("id"), claims, req)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(event, "event updated"))
	}
}

func ChangeEventStatus(es EventAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := requireUser(c)
		if !ok {
			return
		}
		var req struct {
			Status models.EventStatus `json:"status" binding:"required,oneof=published cancelled completed"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.BindError(c, err)
			return
		}
		event, err := es.ChangeStatus(c.Request.Context(), c.Param("id"), claims, req.Status)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(event, "event "+string(event.Status)))
	}
}

func DeleteEvent(es EventAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := requireUser(c)
		if !ok {
			return
		}
		if err := es.DeleteEvent(c.Request.Context(), c.Param("id"), claims); err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "event deleted"))
	}
}
