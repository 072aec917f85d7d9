package handlers

import (
	"time"

	"github.com/fatflowers/paydesk/internal/app/service/checkout"
	"github.com/fatflowers/paydesk/internal/models"
	"github.com/fatflowers/paydesk/pkg/types"
)

type PaymentView struct {
	OrderReference string            `json:"order_reference"`
	OrderStatus    types.OrderStatus `json:"order_status"`
	Total          string            `json:"total"`
	Currency       types.Currency    `json:"currency"`
	TrackingID     string            `json:"tracking_id,omitempty"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
	Sandbox        bool              `json:"sandbox,omitempty"`
}

func paymentView(p *checkout.Payment) *PaymentView {
	if p == nil || p.Order == nil {
		return nil
	}
	return &PaymentView{
		OrderReference: p.Order.Reference,
		OrderStatus:    p.Order.Status,
		Total:          p.Order.Total.StringFixed(2),
		Currency:       p.Order.Currency,
		TrackingID:     p.TrackingID,
		RedirectURL:    p.RedirectURL,
		Sandbox:        p.Sandbox,
	}
}

type SubscriptionView struct {
	Reference          string                   `json:"reference"`
	ProductID          string                   `json:"product_id"`
	Tier               types.Tier               `json:"tier"`
	Status             types.SubscriptionStatus `json:"status"`
	Price              string                   `json:"price"`
	Currency           types.Currency           `json:"currency"`
	StartedAt          time.Time                `json:"started_at"`
	NextBillingDate    time.Time                `json:"next_billing_date"`
	CancelledAt        *time.Time               `json:"cancelled_at,omitempty"`
	CancellationReason *string                  `json:"cancellation_reason,omitempty"`
}

func subscriptionView(s *models.Subscription) *SubscriptionView {
	if s == nil {
		return nil
	}
	return &SubscriptionView{
		Reference:          s.Reference,
		ProductID:          s.ProductID,
		Tier:               s.Tier,
		Status:             s.Status,
		Price:              s.Price.StringFixed(2),
		Currency:           s.Currency,
		StartedAt:          s.StartedAt,
		NextBillingDate:    s.NextBillingDate,
		CancelledAt:        s.CancelledAt,
		CancellationReason: s.CancellationReason,
	}
}

type SubscribeResponse struct {
	Subscription *SubscriptionView `json:"subscription"`
	Payment      *PaymentView      `json:"payment,omitempty"`
}

type ChangeTierResponse struct {
	Cancelled    *SubscriptionView `json:"cancelled"`
	Subscription *SubscriptionView `json:"subscription"`
	Payment      *PaymentView      `json:"payment,omitempty"`
}
