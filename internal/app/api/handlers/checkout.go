package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/paydesk/internal/app/service/checkout"
	"github.com/fatflowers/paydesk/internal/app/service/subscription"
	"github.com/fatflowers/paydesk/internal/models"
	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/response"
	"github.com/fatflowers/paydesk/pkg/types"
)

// Checkout is the part of checkout.Service the handlers use.
type Checkout interface {
	Checkout(ctx context.Context, userID, cartID string, currency types.Currency) (*checkout.Payment, error)
	Subscribe(ctx context.Context, userID, productID string, tier types.Tier) (*models.Subscription, *checkout.Payment, error)
	Cancel(ctx context.Context, reference, reason string) (*models.Subscription, error)
	ChangeTier(ctx context.Context, reference string, tier types.Tier) (*subscription.TierChange, *checkout.Payment, error)
}

type CheckoutRequest struct {
	UserID   string         `json:"user_id" binding:"required"`
	CartID   string         `json:"cart_id" binding:"required"`
	Currency types.Currency `json:"currency" binding:"omitempty,oneof=KES USD"`
}

// @Summary      Checkout cart
// @Description  Creates a pending order from the cart, empties the cart and starts the payment. When the payment cannot be started the order stays pending and code 50200 is returned with the order reference.
// @Tags         Checkout
// @Accept       json
// @Produce      json
// @Param        request body handlers.CheckoutRequest true "Checkout request"
// @Success      200  {object}  handlers.RespPayment
// @Router       /api/v1/checkout [post]
func ApiCheckout(svc Checkout, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		pay, err := svc.Checkout(c.Request.Context(), req.UserID, req.CartID, req.Currency)
		if errors.Is(err, apperr.ErrPaymentNotStarted) && pay != nil {
			c.JSON(http.StatusOK, response.ErrorT(response.APIResponseCodeGateway, paymentView(pay)))
			return
		}
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(paymentView(pay)))
	}
}

type SubscribeRequest struct {
	UserID    string     `json:"user_id" binding:"required"`
	ProductID string     `json:"product_id" binding:"required"`
	Tier      types.Tier `json:"tier" binding:"required"`
}

// @Summary      Subscribe
// @Description  Starts a subscription. Paid tiers also start the payment for the first period.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request body handlers.SubscribeRequest true "Subscribe request"
// @Success      200  {object}  handlers.RespSubscribe
// @Router       /api/v1/subscriptions [post]
func ApiSubscribe(svc Checkout, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubscribeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		sub, pay, err := svc.Subscribe(c.Request.Context(), req.UserID, req.ProductID, req.Tier)
		out := SubscribeResponse{Subscription: subscriptionView(sub), Payment: paymentView(pay)}
		if errors.Is(err, apperr.ErrPaymentNotStarted) && sub != nil {
			c.JSON(http.StatusOK, response.ErrorT(response.APIResponseCodeGateway, out))
			return
		}
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

// @Summary      Cancel subscription
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        reference path string true "Subscription reference"
// @Param        request body handlers.CancelRequest false "Cancellation reason"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{reference}/cancel [post]
func ApiCancelSubscription(svc Checkout, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CancelRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err)
				return
			}
		}
		sub, err := svc.Cancel(c.Request.Context(), c.Param("reference"), req.Reason)
		if err != nil {
			writeError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, response.OKT(subscriptionView(sub)))
	}
}

type ChangeTierRequest struct {
	Tier types.Tier `json:"tier" binding:"required"`
}

// @Summary      Change subscription tier
// @Description  Cancels the subscription and opens one at the new tier in one step. A paid tier starts a payment.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        reference path string true "Subscription reference"
// @Param        request body handlers.ChangeTierRequest true "New tier"
// @Success      200  {object}  handlers.RespChangeTier
// @Router       /api/v1/subscriptions/{reference}/change_tier [post]
func ApiChangeTier(svc Checkout, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChangeTierRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		change, pay, err := svc.ChangeTier(c.Request.Context(), c.Param("reference"), req.Tier)
		if err != nil && change == nil {
			writeError(c, log, err)
			return
		}
		out := ChangeTierResponse{
			Cancelled:    subscriptionView(change.Cancelled),
			Subscription: subscriptionView(change.Created),
			Payment:      paymentView(pay),
		}
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT(errorCode(err), out))
			return
		}
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

func RegisterCheckoutRoutes(r gin.IRouter, svc Checkout, log *zap.SugaredLogger) {
	r.POST("/checkout", ApiCheckout(svc, log))
	r.POST("/subscriptions", ApiSubscribe(svc, log))
	r.POST("/subscriptions/:reference/cancel", ApiCancelSubscription(svc, log))
	r.POST("/subscriptions/:reference/change_tier", ApiChangeTier(svc, log))
}
