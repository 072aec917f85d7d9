package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	callbacklog "github.com/fatflowers/paydesk/internal/app/service/callback_log"
	"github.com/fatflowers/paydesk/internal/app/service/order"
	"github.com/fatflowers/paydesk/internal/models"
	"github.com/fatflowers/paydesk/internal/platform/notify"
	"github.com/fatflowers/paydesk/internal/platform/pesapal"
	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/logctx"
	"github.com/fatflowers/paydesk/pkg/metrics"
	"github.com/fatflowers/paydesk/pkg/types"
)

// Service turns gateway callbacks and status polls into order ledger updates.
type Service struct {
	orders    *order.Service
	gateway   pesapal.Gateway
	callbacks *callbacklog.Service
	notifier  notify.Dispatcher
	metrics   *metrics.Domain
	log       *zap.SugaredLogger
}

func New(orders *order.Service, gateway pesapal.Gateway, callbacks *callbacklog.Service,
	notifier notify.Dispatcher, m *metrics.Domain, log *zap.SugaredLogger) *Service {
	return &Service{orders: orders, gateway: gateway, callbacks: callbacks, notifier: notifier, metrics: m, log: log}
}

var Module = fx.Options(
	fx.Provide(New),
)

// CallbackPayload is what the gateway sends to the IPN URL. The callback is
// unauthenticated, so StatusCode is only a hint: any status other than
// pending is confirmed with the gateway before it is applied.
type CallbackPayload struct {
	TrackingID        string `form:"OrderTrackingId" json:"OrderTrackingId"`
	MerchantReference string `form:"OrderMerchantReference" json:"OrderMerchantReference"`
	NotificationType  string `form:"OrderNotificationType" json:"OrderNotificationType"`
	StatusCode        *int   `form:"status_code" json:"status_code"`
}

type Outcome struct {
	Order   *models.Order
	Status  types.OrderStatus
	Changed bool
}

// HandleCallback reconciles one webhook delivery. Repeated deliveries are
// harmless. A callback for a tracking id not stored yet returns
// ErrOrderNotFound and changes nothing; the gateway redelivers or the poll
// catches up.
func (s *Service) HandleCallback(ctx context.Context, p CallbackPayload) (out *Outcome, err error) {
	if p.TrackingID == "" {
		return nil, apperr.Validationf("OrderTrackingId is required")
	}
	source := models.CallbackSourceWebhook
	logID := s.callbacks.Received(ctx, source, p.TrackingID, p.MerchantReference, p)
	defer func() { s.finish(ctx, logID, source, out, err) }()

	o, err := s.orders.FindByTrackingID(ctx, p.TrackingID)
	if err != nil {
		return nil, err
	}

	extra := map[string]any{"source": source, "notification_type": p.NotificationType}
	if p.StatusCode != nil {
		extra["reported_status_code"] = *p.StatusCode
		// A reported pending cannot move the order, so it needs no lookup.
		if MapGatewayStatus(*p.StatusCode) == types.OrderStatusPending {
			return s.apply(ctx, o, types.OrderStatusPending, extra)
		}
	}
	st, err := s.gateway.GetTransactionStatus(ctx, p.TrackingID)
	if err != nil {
		return nil, fmt.Errorf("fetch status for %s: %w", p.TrackingID, err)
	}
	status := MapGatewayStatus(st.StatusCode)
	extra["status_code"] = st.StatusCode
	extra["gateway"] = st.Raw
	if p.StatusCode != nil && *p.StatusCode != st.StatusCode {
		logctx.FromCtx(ctx, s.log).Warnw("callback status differs from gateway", "tracking_id", p.TrackingID,
			"reported", *p.StatusCode, "gateway", st.StatusCode)
	}
	return s.apply(ctx, o, status, extra)
}

// Confirm handles the customer returning from the gateway page. It polls the
// live status and writes only when it differs from the stored one.
func (s *Service) Confirm(ctx context.Context, trackingID, merchantRef string) (out *Outcome, err error) {
	if trackingID == "" {
		return nil, apperr.Validationf("OrderTrackingId is required")
	}
	return s.poll(ctx, models.CallbackSourcePoll, trackingID, merchantRef)
}

// Replay re-runs the poll path for one tracking id on operator request. On
// success the earlier failed callback entries of that id are closed.
func (s *Service) Replay(ctx context.Context, trackingID string) (*Outcome, error) {
	out, err := s.poll(ctx, models.CallbackSourceCLI, trackingID, "")
	if err != nil {
		return out, err
	}
	if n, err := s.callbacks.Resolve(ctx, trackingID); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to resolve callback log", "tracking_id", trackingID, "err", err)
	} else if n > 0 {
		logctx.FromCtx(ctx, s.log).Infow("failed callbacks resolved by replay", "tracking_id", trackingID, "count", n)
	}
	return out, nil
}

func (s *Service) poll(ctx context.Context, source models.CallbackSource, trackingID, merchantRef string) (out *Outcome, err error) {
	st, err := s.gateway.GetTransactionStatus(ctx, trackingID)
	if err != nil {
		s.metrics.ReconcileOutcome(string(source), "gateway_error")
		return nil, fmt.Errorf("fetch status for %s: %w", trackingID, err)
	}
	logID := s.callbacks.Received(ctx, source, trackingID, merchantRef, st.Raw)
	defer func() { s.finish(ctx, logID, source, out, err) }()

	o, err := s.orders.FindByTrackingID(ctx, trackingID)
	if errors.Is(err, apperr.ErrNotFound) && merchantRef != "" {
		o, err = s.adoptByReference(ctx, merchantRef, trackingID)
	}
	if err != nil {
		return nil, err
	}

	status := MapGatewayStatus(st.StatusCode)
	if status == o.Status || status == types.OrderStatusPending {
		return &Outcome{Order: o, Status: o.Status}, nil
	}
	return s.apply(ctx, o, status, map[string]any{"source": source, "status_code": st.StatusCode, "gateway": st.Raw})
}

// adoptByReference covers the customer returning before the submission
// response was stored: the pending order is found by reference and gets the
// tracking id now.
func (s *Service) adoptByReference(ctx context.Context, merchantRef, trackingID string) (*models.Order, error) {
	o, err := s.orders.FindByReference(ctx, merchantRef)
	if err != nil {
		return nil, err
	}
	if o.TrackingID != nil {
		return nil, fmt.Errorf("order %s is tracked as %s, not %s: %w", o.Reference, *o.TrackingID, trackingID, apperr.ErrOrderNotFound)
	}
	return s.orders.AttachPaymentReference(ctx, o.ID, trackingID)
}

type PendingSummary struct {
	Checked int
	Changed int
	Failed  int
}

// ReconcilePending polls every pending, tracked order older than olderThan.
// This closes the gap left by lost callbacks and by customers who never come
// back from the gateway page. Failures are collected, not fatal.
func (s *Service) ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (PendingSummary, error) {
	log := logctx.FromCtx(ctx, s.log)
	var sum PendingSummary
	orders, err := s.orders.ListPendingTracked(ctx, time.Now().Add(-olderThan), limit)
	if err != nil {
		return sum, err
	}
	var errs []error
	for _, o := range orders {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		sum.Checked++
		out, err := s.poll(ctx, models.CallbackSourceSweep, *o.TrackingID, "")
		if err != nil {
			sum.Failed++
			errs = append(errs, fmt.Errorf("order %s: %w", o.Reference, err))
			continue
		}
		if out.Changed {
			sum.Changed++
		}
	}
	log.Infow("pending orders reconciled", "checked", sum.Checked, "changed", sum.Changed, "failed", sum.Failed)
	return sum, errors.Join(errs...)
}

func (s *Service) apply(ctx context.Context, o *models.Order, status types.OrderStatus, extra map[string]any) (*Outcome, error) {
	tr, err := s.orders.ApplyGatewayStatus(ctx, o.ID, status, extra)
	if err != nil {
		return &Outcome{Order: o, Status: o.Status}, err
	}
	if tr.Changed && o.Kind == types.OrderKindRenewal && tr.To != types.OrderStatusPaid {
		s.alert(ctx, notify.Alert{
			Kind:     "renewal_payment_" + string(tr.To),
			Severity: notify.SeverityWarning,
			Message:  fmt.Sprintf("renewal payment %s for %s", tr.To, o.MerchantReference),
			Fields:   map[string]any{"order": o.Reference, "subscription_id": o.SubscriptionID, "tracking_id": o.TrackingID},
		})
	}
	return &Outcome{Order: tr.Order, Status: tr.Order.Status, Changed: tr.Changed}, nil
}

func (s *Service) finish(ctx context.Context, logID string, source models.CallbackSource, out *Outcome, err error) {
	result := map[string]any{}
	outcome := "noop"
	if out != nil {
		result["order"] = out.Order.Reference
		result["status"] = out.Status
		result["changed"] = out.Changed
		if out.Changed {
			outcome = "applied"
		}
	}
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, apperr.ErrInvalidTransition):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("gateway reconciliation failed", "source", source, "callback_log_id", logID,
			"result", result, "err", err)
	}
	s.callbacks.Finish(ctx, logID, result, err)
	s.metrics.ReconcileOutcome(string(source), outcome)
}

func (s *Service) alert(ctx context.Context, a notify.Alert) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Alert(ctx, a); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("alert not delivered", "kind", a.Kind, "err", err)
	}
}
