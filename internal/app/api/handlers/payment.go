package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fatflowers/paydesk/internal/app/service/reconciler"
	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/config"
	"github.com/fatflowers/paydesk/pkg/logctx"
)

// Reconciler is the part of reconciler.Service the payment endpoints use.
type Reconciler interface {
	HandleCallback(ctx context.Context, p reconciler.CallbackPayload) (*reconciler.Outcome, error)
	Confirm(ctx context.Context, trackingID, merchantRef string) (*reconciler.Outcome, error)
}

// CallbackAck is the acknowledgement the gateway expects from the IPN URL.
// Status 500 asks the gateway to deliver the notification again.
type CallbackAck struct {
	OrderNotificationType  string `json:"orderNotificationType"`
	OrderTrackingID        string `json:"orderTrackingId"`
	OrderMerchantReference string `json:"orderMerchantReference"`
	Status                 int    `json:"status"`
}

// @Summary      Gateway payment callback (IPN)
// @Description  Reconciles a gateway notification into the order. Repeated deliveries are harmless. A missing OrderTrackingId is rejected with 400.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        OrderTrackingId        query string false "Gateway tracking id"
// @Param        OrderMerchantReference query string false "Merchant reference"
// @Param        OrderNotificationType  query string false "Notification type"
// @Param        status_code            query int    false "Gateway status code"
// @Success      200  {object}  handlers.CallbackAck
// @Failure      400  {object}  handlers.CallbackAck
// @Router       /api/v1/payment/callback [get]
// @Router       /api/v1/payment/callback [post]
func ApiPaymentCallback(rec Reconciler, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := logctx.FromGin(c, log)
		var p reconciler.CallbackPayload
		if err := c.ShouldBind(&p); err != nil {
			l.Warnw("payment callback not parsed", "err", err)
		}
		if p.TrackingID == "" {
			p.TrackingID = c.Query("OrderTrackingId")
		}
		ack := CallbackAck{
			OrderNotificationType:  p.NotificationType,
			OrderTrackingID:        p.TrackingID,
			OrderMerchantReference: p.MerchantReference,
			Status:                 http.StatusOK,
		}
		if p.TrackingID == "" {
			ack.Status = http.StatusBadRequest
			c.JSON(http.StatusBadRequest, ack)
			return
		}

		l.Infow("payment callback received", "tracking_id", p.TrackingID, "merchant_reference", p.MerchantReference,
			"notification_type", p.NotificationType)
		out, err := rec.HandleCallback(c.Request.Context(), p)
		switch {
		case err == nil:
			l.Infow("payment callback handled", "tracking_id", p.TrackingID, "status", out.Status, "changed", out.Changed)
		case errors.Is(err, apperr.ErrInvalidTransition):
			// A conflicting report for a settled order; retrying will not help.
		case errors.Is(err, apperr.ErrNotFound), apperr.Transient(err):
			ack.Status = http.StatusInternalServerError
		default:
			ack.Status = http.StatusInternalServerError
			l.Errorw("payment callback failed", "tracking_id", p.TrackingID, "err", err)
		}
		c.JSON(http.StatusOK, ack)
	}
}

// @Summary      Payment confirmation redirect
// @Description  Landing URL after the gateway payment page. Polls the live status and redirects to the order page with ?payment=success|failed|cancelled|pending.
// @Tags         Payment
// @Param        OrderTrackingId        query string true  "Gateway tracking id"
// @Param        OrderMerchantReference query string false "Merchant reference"
// @Success      302
// @Router       /api/v1/payment/confirm [get]
func ApiPaymentConfirm(rec Reconciler, site config.SiteConfig, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		trackingID := c.Query("OrderTrackingId")
		merchantRef := c.Query("OrderMerchantReference")

		ref, flag := merchantRef, reconciler.PaymentFlag("")
		out, err := rec.Confirm(c.Request.Context(), trackingID, merchantRef)
		if out != nil && out.Order != nil {
			ref, flag = out.Order.Reference, reconciler.PaymentFlag(out.Status)
		}
		if err != nil {
			logctx.FromGin(c, log).Warnw("payment confirmation incomplete", "tracking_id", trackingID,
				"merchant_reference", merchantRef, "err", err)
		}
		c.Redirect(http.StatusFound, site.OrderPage(ref, flag))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, rec Reconciler, site config.SiteConfig, log *zap.SugaredLogger) {
	r.GET("/callback", ApiPaymentCallback(rec, log))
	r.POST("/callback", ApiPaymentCallback(rec, log))
	r.GET("/confirm", ApiPaymentConfirm(rec, site, log))
}
