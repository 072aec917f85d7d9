package renewal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/paydesk/internal/app/service/order"
	"github.com/fatflowers/paydesk/internal/app/service/subscription"
	"github.com/fatflowers/paydesk/internal/models"
	"github.com/fatflowers/paydesk/internal/platform/lease"
	"github.com/fatflowers/paydesk/internal/platform/notify"
	"github.com/fatflowers/paydesk/internal/platform/pesapal"
	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/config"
	"github.com/fatflowers/paydesk/pkg/logctx"
	"github.com/fatflowers/paydesk/pkg/metrics"
	"github.com/fatflowers/paydesk/pkg/types"
)

const (
	SweepLease     = "renewal-sweep"
	ReconcileLease = "reconcile-pending"

	renewalRefPrefix = "RENEWAL-"
	day              = 24 * time.Hour
)

// Locker hands out single-owner leases.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (*lease.Lease, error)
}

// Report summarises one sweep run.
type Report struct {
	Due       int
	Advanced  int
	Submitted int
	Failed    int
	Reminded  int
}

// Sweeper advances due subscriptions and sends renewal reminders. Run holds
// a lease for its whole duration so only one node sweeps at a time.
type Sweeper struct {
	subs     *subscription.Service
	orders   *order.Service
	gateway  pesapal.Gateway
	locker   Locker
	notifier notify.Dispatcher
	metrics  *metrics.Domain
	cfg      *config.Config
	log      *zap.SugaredLogger
	now      func() time.Time
}

func NewSweeper(subs *subscription.Service, orders *order.Service, gateway pesapal.Gateway, locker Locker,
	notifier notify.Dispatcher, m *metrics.Domain, cfg *config.Config, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{
		subs: subs, orders: orders, gateway: gateway, locker: locker,
		notifier: notifier, metrics: m, cfg: cfg, log: log, now: time.Now,
	}
}

// Run performs one sweep under the sweep lease. It fails with
// apperr.ErrLeaseNotAcquired when another node is sweeping. Failures of single
// subscriptions do not stop the sweep; they are joined into the returned error.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	log := logctx.FromCtx(ctx, s.log)
	le, err := s.locker.Acquire(ctx, SweepLease, s.cfg.Renewal.LeaseTTL)
	if err != nil {
		return Report{}, err
	}
	defer func() {
		if err := le.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warnw("release sweep lease failed", "err", err)
		}
	}()

	now := s.now()
	keep := func(ctx context.Context) error { return le.Refresh(ctx, s.cfg.Renewal.LeaseTTL) }
	rep, err := s.renewDue(ctx, now, keep)
	if errors.Is(err, apperr.ErrLeaseNotAcquired) {
		log.Errorw("sweep lease lost, stopping", "due", rep.Due, "advanced", rep.Advanced, "err", err)
		return rep, err
	}
	reminded, remindErr := s.SendReminders(ctx, now)
	rep.Reminded = reminded

	err = errors.Join(err, remindErr)
	log.Infow("renewal sweep finished", "due", rep.Due, "advanced", rep.Advanced, "submitted", rep.Submitted,
		"failed", rep.Failed, "reminded", rep.Reminded, "err", err)
	return rep, err
}

// RenewDue processes every subscription billed on or before now.
func (s *Sweeper) RenewDue(ctx context.Context, now time.Time) (Report, error) {
	return s.renewDue(ctx, now, nil)
}

// renewDue calls keep before each subscription, when set, to extend the sweep
// lease. A keep failure ends the sweep.
func (s *Sweeper) renewDue(ctx context.Context, now time.Time, keep func(context.Context) error) (Report, error) {
	var rep Report
	due, err := s.subs.NeedsRenewal(ctx, now)
	if err != nil {
		return rep, err
	}
	rep.Due = len(due)
	var errs []error
	for _, sub := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if keep != nil {
			if err := keep(ctx); err != nil {
				errs = append(errs, err)
				break
			}
		}
		outcome, err := s.renewOne(ctx, sub)
		s.metrics.RenewalOutcome(outcome)
		switch {
		case err != nil:
			rep.Failed++
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.Reference, err))
		case outcome == outcomeSubmitted || outcome == outcomeResumed:
			rep.Submitted++
			rep.Advanced++
		case outcome == outcomeFree:
			rep.Advanced++
		}
	}
	return rep, errors.Join(errs...)
}

const (
	outcomeFree      = "free_advanced"
	outcomeSubmitted = "payment_submitted"
	outcomeResumed   = "payment_resumed"
	outcomeNoop      = "noop"
	outcomeFailed    = "submit_failed"
	outcomeError     = "error"
)

func (s *Sweeper) renewOne(ctx context.Context, sub *models.Subscription) (string, error) {
	log := logctx.FromCtx(ctx, s.log).With("subscription_id", sub.ID, "reference", sub.Reference,
		"billing_date", sub.NextBillingDate)

	if sub.IsFree() {
		_, advanced, err := s.subs.Renew(ctx, sub)
		if err != nil {
			log.Errorw("free renewal failed", "err", err)
			return outcomeError, err
		}
		if !advanced {
			return outcomeNoop, nil
		}
		return outcomeFree, nil
	}

	o, err := s.renewalOrder(ctx, sub)
	if err != nil {
		log.Errorw("renewal order unavailable", "err", err)
		return outcomeError, err
	}
	if o.TrackingID != nil {
		// Submitted by an earlier sweep that stopped before advancing.
		if _, _, err := s.subs.RenewWithPayment(ctx, sub, *o.TrackingID); err != nil {
			log.Errorw("resume renewal failed", "order", o.Reference, "tracking_id", *o.TrackingID, "err", err)
			return outcomeError, err
		}
		return outcomeResumed, nil
	}

	submission, err := s.gateway.SubmitOrderRequest(ctx, s.intent(ctx, sub, o))
	if err != nil {
		log.Errorw("renewal payment submission failed", "order", o.Reference, "amount", sub.Price, "err", err)
		s.alert(ctx, notify.Alert{
			Kind:     "renewal_submission_failed",
			Severity: notify.SeverityCritical,
			Message:  fmt.Sprintf("renewal payment for %s could not be submitted", sub.Reference),
			Fields: map[string]any{
				"subscription": sub.Reference, "order": o.Reference, "billing_date": sub.NextBillingDate,
				"amount": sub.Price.StringFixed(2), "currency": sub.Currency, "err": err.Error(),
			},
		})
		return outcomeFailed, err
	}
	if _, err := s.orders.AttachPaymentReference(ctx, o.ID, submission.TrackingID); err != nil {
		log.Errorw("attach renewal tracking id failed", "order", o.Reference, "tracking_id", submission.TrackingID, "err", err)
		return outcomeError, err
	}
	if _, _, err := s.subs.RenewWithPayment(ctx, sub, submission.TrackingID); err != nil {
		log.Errorw("advance after renewal submission failed", "tracking_id", submission.TrackingID, "err", err)
		return outcomeError, err
	}
	log.Infow("renewal payment submitted", "order", o.Reference, "tracking_id", submission.TrackingID)
	return outcomeSubmitted, nil
}

// renewalOrder returns the order paying for sub's current billing date,
// creating it on the first attempt.
func (s *Sweeper) renewalOrder(ctx context.Context, sub *models.Subscription) (*models.Order, error) {
	o, err := s.orders.FindForBillingPeriod(ctx, sub.ID, sub.NextBillingDate)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return o, err
	}
	var contact models.OrderContact
	if u := s.subs.User(ctx, sub.UserID); u != nil {
		contact = u.Contact()
	}
	billingDate := sub.NextBillingDate
	return s.orders.CreateOrder(ctx, order.CreateOrderRequest{
		UserID:            sub.UserID,
		Contact:           contact,
		Items:             []order.ItemInput{{ProductID: sub.ProductID, Quantity: 1, UnitPrice: sub.Price}},
		Currency:          sub.Currency,
		Kind:              types.OrderKindRenewal,
		SubscriptionID:    &sub.ID,
		BillingDate:       &billingDate,
		MerchantReference: renewalRefPrefix + sub.Reference,
	})
}

func (s *Sweeper) intent(ctx context.Context, sub *models.Subscription, o *models.Order) pesapal.PaymentIntent {
	title := "subscription"
	if sub.Product != nil {
		title = sub.Product.Title
	}
	return pesapal.PaymentIntent{
		MerchantReference: o.MerchantReference,
		Amount:            sub.Price,
		Currency:          sub.Currency,
		Description:       fmt.Sprintf("%s (%s) renewal", title, sub.Tier),
		Contact:           pesapal.Contact{Name: o.Contact.Name, Email: o.Contact.Email, Phone: o.Contact.Phone},
	}
}

// SendReminders emits one reminder per subscription and threshold window.
// Thresholds are days before next_billing_date; the window of a threshold N
// starts N days before billing. The stamp is taken before the intent is
// dispatched, so a reminder is sent at most once even if dispatch fails.
func (s *Sweeper) SendReminders(ctx context.Context, now time.Time) (int, error) {
	thresholds := reminderThresholds(s.cfg.Renewal.ReminderDays)
	if len(thresholds) == 0 {
		return 0, nil
	}
	log := logctx.FromCtx(ctx, s.log)
	horizon := time.Duration(thresholds[len(thresholds)-1]) * day
	candidates, err := s.subs.ReminderCandidates(ctx, now, horizon)
	if err != nil {
		return 0, err
	}

	sent := 0
	var errs []error
	for _, sub := range candidates {
		until := sub.NextBillingDate.Sub(now)
		n, ok := windowFor(thresholds, until)
		if !ok {
			continue
		}
		windowStart := sub.NextBillingDate.Add(-time.Duration(n) * day)
		stamped, err := s.subs.StampReminder(ctx, sub, windowStart, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("reminder for %s: %w", sub.Reference, err))
			continue
		}
		if !stamped {
			continue
		}
		days := DaysUntil(until)
		intent := notify.RenewalReminder(sub, s.subs.User(ctx, sub.UserID), days)
		if err := s.notifier.Notify(ctx, intent); err != nil {
			log.Errorw("renewal reminder dispatch failed", "subscription", sub.Reference, "days_until_renewal", days, "err", err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// reminderThresholds returns the positive thresholds, ascending and unique.
func reminderThresholds(days []int) []int {
	out := make([]int, 0, len(days))
	for _, d := range days {
		if d > 0 {
			out = append(out, d)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// windowFor picks the smallest threshold whose window contains until.
func windowFor(thresholds []int, until time.Duration) (int, bool) {
	for _, n := range thresholds {
		if until <= time.Duration(n)*day {
			return n, true
		}
	}
	return 0, false
}

// DaysUntil rounds up, so a renewal 2.5 days away is "in 3 days".
func DaysUntil(until time.Duration) int {
	return int(math.Ceil(until.Hours() / 24))
}

func (s *Sweeper) alert(ctx context.Context, a notify.Alert) {
	if err := s.notifier.Alert(ctx, a); err != nil {
		logctx.FromCtx(ctx, s.log).Warnw("alert not delivered", "kind", a.Kind, "err", err)
	}
}
