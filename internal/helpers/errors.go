package helpers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/joshua-takyi/eventix/internal/payment"
)

// ErrorStatus maps a service error onto the HTTP status it is reported with.
func ErrorStatus(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs),
		errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized), errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func validationDetails(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if field != "" {
			field = strings.ToLower(field[:1]) + field[1:]
		}
		out[field] = "failed on '" + fe.Tag() + "'"
	}
	return out
}

// RespondError writes the error body for err. Server errors are attached to
// the gin context so ErrorHandler logs them, and their text is not exposed.
func RespondError(c *gin.Context, err error) {
	status := ErrorStatus(err)

	var (
		insufficient *models.InsufficientTicketsError
		scanned      *models.AlreadyScannedError
		verrs        validator.ValidationErrors
	)
	switch {
	case errors.As(err, &insufficient):
		c.JSON(status, models.ErrorResponseWithDetails(err.Error(), gin.H{
			"ticketTypeId": insufficient.TicketTypeID,
			"name":         insufficient.Name,
			"requested":    insufficient.Requested,
			"available":    insufficient.Available,
		}))
		return
	case errors.As(err, &scanned):
		c.JSON(status, models.ErrorResponseWithDetails("ticket already scanned", gin.H{
			"ticketId":  scanned.TicketID,
			"scannedAt": scanned.ScannedAt,
			"scannedBy": scanned.ScannedBy,
		}))
		return
	case errors.As(err, &verrs):
		c.JSON(status, models.ErrorResponseWithDetails("validation failed", validationDetails(verrs)))
		return
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg := "internal server error"
		if errors.Is(err, payment.ErrUnavailable) {
			msg = "payment gateway unavailable"
		}
		c.JSON(status, models.ErrorResponse(msg))
		return
	}
	c.JSON(status, models.ErrorResponse(err.Error()))
}

// BindError reports a request body that could not be decoded or validated.
func BindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, models.ErrorResponseWithDetails("validation failed", validationDetails(verrs)))
		return
	}
	c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid request payload"))
}

// CurrentUser returns the claims AuthMiddleware stored on the context.
func CurrentUser(c *gin.Context) (*EnhancedClaims, bool) {
	v, ok := c.Get("user")
	if !ok {
		return nil, false
	}
	claims, ok := v.(*EnhancedClaims)
	return claims, ok
}
