package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/models"
)

// selfOrAdmin reports whether the caller may act on the user in :id.
func selfOrAdmin(c *gin.Context) (string, bool) {
	claims, ok := requireUser(c)
	if !ok {
		return "", false
	}
	id := strings.TrimSpace(c.Param("id"))
	if !claims.IsOwner(id) && !claims.IsAdmin() {
		c.JSON(http.StatusForbidden, models.ErrorResponse("access denied"))
		return "", false
	}
	return id, true
}

func GetUser(u UserAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := selfOrAdmin(c)
		if !ok {
			return
		}
		user, err := u.GetUser(c.Request.Context(), id)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(user, ""))
	}
}

func UpdateUser(u UserAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := selfOrAdmin(c)
		if !ok {
			return
		}
		var update models.UserUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			helpers.BindError(c, err)
			return
		}
		user, err := u.UpdateUser(c.Request.Context(), id, update)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(user, "user updated"))
	}
}

func DeleteUser(u UserAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := selfOrAdmin(c)
		if !ok {
			return
		}
		if err := u.DeleteUser(c.Request.Context(), id); err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "user deleted successfully"))
	}
}

func ListUsers(u UserAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit := pageParams(c)
		users, total, err := u.ListUsers(c.Request.Context(), models.Role(c.Query("role")), page, limit)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.PaginatedResponse(users, page, limit, total))
	}
}

func SetUserRole(u UserAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Role models.Role `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.BindError(c, err)
			return
		}
		user, err := u.SetRole(c.Request.Context(), c.Param("id"), req.Role)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(user, "role updated"))
	}
}
