package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/joshua-takyi/eventix/internal/payment"
	"github.com/joshua-takyi/eventix/internal/services"
)

const maxWebhookBody = 1 << 20

func Checkout(cs CheckoutAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := requireUser(c)
		if !ok {
			return
		}
		var req services.CheckoutInput
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.BindError(c, err)
			return
		}
		order, err := cs.Checkout(c.Request.Context(), claims.UserID, req)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.SuccessResponse(order, "tickets reserved"))
	}
}

func InitializePayment(cs CheckoutAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := requireUser(c)
		if !ok {
			return
		}
		var req struct {
			OrderID string `json:"orderId" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			helpers.BindError(c, err)
			return
		}
		res, err := cs.InitializePayment(c.Request.Context(), claims, req.OrderID)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(res, "payment initialized"))
	}
}

// VerifyPayment is where the gateway sends the buyer back after paying.
func VerifyPayment(cs CheckoutAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		reference := c.Query("reference")
		if reference == "" {
			reference = c.Query("trxref")
		}
		order, err := cs.VerifyPayment(c.Request.Context(), reference)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(order, "payment "+string(order.Status)))
	}
}

// PaymentWebhook reads the raw body so the gateway signature can be checked
// over the exact bytes that were sent.
func PaymentWebhook(cs CheckoutAPI, provider string) gin.HandlerFunc {
	signatureHeader := "x-paystack-signature"
	if provider == payment.ProviderStripe {
		signatureHeader = "Stripe-Signature"
	}
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("unreadable body"))
			return
		}
		if _, err := cs.HandleWebhook(c.Request.Context(), provider, payload, c.GetHeader(signatureHeader)); err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "received"))
	}
}

func GetOrder(cs CheckoutAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := requireUser(c)
		if !ok {
			return
		}
		order, err := cs.GetOrder(c.Request.Context(), claims, c.Param("id"))
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(order, ""))
	}
}

func ListMyOrders(cs CheckoutAPI) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := requireUser(c)
		if !ok {
			return
		}
		page, limit := pageParams(c)
		orders, total, err := cs.ListMyOrders(c.Request.Context(), claims.UserID, page, limit)
		if err != nil {
			helpers.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.PaginatedResponse(orders, page, limit, total))
	}
}
