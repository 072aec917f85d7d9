package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/paydesk/internal/app/service/reference"
	"github.com/fatflowers/paydesk/internal/models"
	"github.com/fatflowers/paydesk/internal/platform/db"
	"github.com/fatflowers/paydesk/internal/platform/notify"
	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/logctx"
	"github.com/fatflowers/paydesk/pkg/tool"
	"github.com/fatflowers/paydesk/pkg/types"
)

// NextBillingDate is from plus one billing period (one calendar month).
func NextBillingDate(from time.Time) time.Time {
	return from.AddDate(0, 1, 0)
}

// TierChangeReason is the cancellation reason recorded on the replaced subscription.
func TierChangeReason(tier types.Tier) string {
	return fmt.Sprintf("Upgraded/Downgraded to %s tier", tier)
}

// Service is the subscription ledger. It is the only writer of subscription rows.
type Service struct {
	db       *gorm.DB
	refs     *reference.Generator
	notifier notify.Dispatcher
	log      *zap.SugaredLogger
}

func NewService(db *gorm.DB, refs *reference.Generator, notifier notify.Dispatcher, log *zap.SugaredLogger) *Service {
	return &Service{db: db, refs: refs, notifier: notifier, log: log}
}

// Create starts an active subscription of productID at tier for userID.
func (s *Service) Create(ctx context.Context, userID, productID string, tier types.Tier) (*models.Subscription, error) {
	if userID == "" || productID == "" {
		return nil, apperr.Validationf("user id and product id are required")
	}
	if !tier.Valid() {
		return nil, fmt.Errorf("%w %q", apperr.ErrInvalidTier, tier)
	}
	ref, err := s.refs.Generate(ctx, types.SubscriptionReferencePrefix)
	if err != nil {
		return nil, fmt.Errorf("generate subscription reference: %w", err)
	}

	var sub *models.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err = create(tx, ref, userID, productID, tier, nil)
		return err
	})
	if err != nil {
		return nil, apperr.Tx("create subscription", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription created", "subscription_id", sub.ID, "reference", sub.Reference,
		"user_id", userID, "product_id", productID, "tier", tier, "price", sub.Price)
	s.dispatch(ctx, notify.SubscriptionIntent(notify.IntentSubscriptionCreated, sub, s.user(ctx, userID)))
	return sub, nil
}

// Cancel ends an active subscription. reason may be empty. Cancelling twice
// fails with ErrAlreadyCancelled.
func (s *Service) Cancel(ctx context.Context, subscriptionID, reason string) (*models.Subscription, error) {
	var sub *models.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockSubscription(tx, subscriptionID)
		if err != nil {
			return err
		}
		sub = locked
		return cancel(tx, sub, reason, types.SubscriptionChangeReasonCancel)
	})
	if err != nil {
		return nil, apperr.Tx("cancel subscription", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription cancelled", "subscription_id", sub.ID, "reference", sub.Reference, "reason", reason)
	s.loadProduct(ctx, sub)
	s.dispatch(ctx, notify.SubscriptionIntent(notify.IntentSubscriptionCancelled, sub, s.user(ctx, sub.UserID)))
	return sub, nil
}

type TierChange struct {
	Cancelled *models.Subscription
	Created   *models.Subscription
}

// ChangeTier cancels the subscription and opens a new one at tier for the same
// user and product, in one transaction. A failure leaves the old one active.
func (s *Service) ChangeTier(ctx context.Context, subscriptionID string, tier types.Tier) (*TierChange, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("%w %q", apperr.ErrInvalidTier, tier)
	}
	ref, err := s.refs.Generate(ctx, types.SubscriptionReferencePrefix)
	if err != nil {
		return nil, fmt.Errorf("generate subscription reference: %w", err)
	}

	var change TierChange
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		old, err := lockSubscription(tx, subscriptionID)
		if err != nil {
			return err
		}
		if old.Tier == tier && old.IsActive() {
			return apperr.Validationf("subscription %s is already on tier %s", old.Reference, tier)
		}
		if err := cancel(tx, old, TierChangeReason(tier), types.SubscriptionChangeReasonChangeTier); err != nil {
			return err
		}
		created, err := create(tx, ref, old.UserID, old.ProductID, tier, map[string]any{"replaces": old.Reference})
		if err != nil {
			return err
		}
		change = TierChange{Cancelled: old, Created: created}
		return nil
	})
	if err != nil {
		return nil, apperr.Tx("change tier", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("subscription tier changed", "from", change.Cancelled.Reference,
		"to", change.Created.Reference, "old_tier", change.Cancelled.Tier, "new_tier", tier)
	change.Cancelled.Product = change.Created.Product
	user := s.user(ctx, change.Created.UserID)
	s.dispatch(ctx, notify.SubscriptionIntent(notify.IntentSubscriptionCancelled, change.Cancelled, user))
	s.dispatch(ctx, notify.SubscriptionIntent(notify.IntentSubscriptionCreated, change.Created, user))
	return &change, nil
}

// AttachPayment records the gateway tracking id of the payment made for sub.
func (s *Service) AttachPayment(ctx context.Context, subscriptionID, trackingID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := lockSubscription(tx, subscriptionID)
		if err != nil {
			return err
		}
		before := *sub
		sub.PaymentTrackingID = &trackingID
		if err := tx.Model(&models.Subscription{}).Where("id = ?", sub.ID).
			Update("payment_tracking_id", trackingID).Error; err != nil {
			return err
		}
		return writeLog(tx, types.SubscriptionChangeReasonPayment, &before, sub, nil)
	})
	return apperr.Tx("attach subscription payment", err)
}

// NeedsRenewal returns the active subscriptions billed on or before now,
// earliest first, with their Product loaded.
func (s *Service) NeedsRenewal(ctx context.Context, now time.Time) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).Preload("Product").
		Where("status = ? AND next_billing_date <= ?", types.SubscriptionStatusActive, now.UTC()).
		Order("next_billing_date ASC").
		Find(&subs).Error
	if err != nil {
		return nil, apperr.Storage("list due subscriptions", err)
	}
	return subs, nil
}

// Renew advances next_billing_date by one period. sub.NextBillingDate is the
// period the caller is renewing; if the stored date moved on already the
// call is a no-op and advanced is false.
func (s *Service) Renew(ctx context.Context, sub *models.Subscription) (renewed *models.Subscription, advanced bool, err error) {
	return s.advance(ctx, sub, nil)
}

// RenewWithPayment is Renew for paid tiers: it also stores the tracking id of
// the renewal payment submitted to the gateway.
func (s *Service) RenewWithPayment(ctx context.Context, sub *models.Subscription, trackingID string) (*models.Subscription, bool, error) {
	if trackingID == "" {
		return nil, false, apperr.Validationf("tracking id is required")
	}
	return s.advance(ctx, sub, &trackingID)
}

func (s *Service) advance(ctx context.Context, sub *models.Subscription, trackingID *string) (*models.Subscription, bool, error) {
	var (
		out      *models.Subscription
		advanced bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := lockSubscription(tx, sub.ID)
		if err != nil {
			return err
		}
		out = cur
		if !cur.IsActive() {
			return fmt.Errorf("%w: renew %s subscription %s", apperr.ErrInvalidTransition, cur.Status, cur.Reference)
		}
		if !cur.NextBillingDate.Equal(sub.NextBillingDate) {
			return nil
		}
		before := *cur
		next := NextBillingDate(cur.NextBillingDate)
		updates := map[string]any{"next_billing_date": next, "updated_at": db.Now()}
		if trackingID != nil {
			updates["payment_tracking_id"] = *trackingID
		}
		res := tx.Model(&models.Subscription{}).
			Where("id = ? AND next_billing_date = ?", cur.ID, cur.NextBillingDate).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		cur.NextBillingDate = next
		if trackingID != nil {
			cur.PaymentTrackingID = trackingID
		}
		advanced = true
		return writeLog(tx, types.SubscriptionChangeReasonRenew, &before, cur, map[string]any{"billing_date": before.NextBillingDate})
	})
	if err != nil {
		return nil, false, apperr.Tx("renew subscription", err)
	}
	if advanced {
		logctx.FromCtx(ctx, s.log).Infow("subscription renewed", "subscription_id", out.ID, "reference", out.Reference,
			"next_billing_date", out.NextBillingDate)
	}
	return out, advanced, nil
}

// ReminderCandidates returns active subscriptions billed within (now, now+horizon].
func (s *Service) ReminderCandidates(ctx context.Context, now time.Time, horizon time.Duration) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := s.db.WithContext(ctx).Preload("Product").
		Where("status = ? AND next_billing_date > ? AND next_billing_date <= ?",
			types.SubscriptionStatusActive, now.UTC(), now.Add(horizon).UTC()).
		Order("next_billing_date ASC").
		Find(&subs).Error
	if err != nil {
		return nil, apperr.Storage("list reminder candidates", err)
	}
	return subs, nil
}

// StampReminder sets last_reminder_sent_at = at unless a reminder was already
// stamped at or after windowStart for the same billing date. It reports
// whether this call won the stamp; only the winner may send the reminder.
func (s *Service) StampReminder(ctx context.Context, sub *models.Subscription, windowStart, at time.Time) (bool, error) {
	var stamped bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Subscription{}).
			Where("id = ? AND status = ? AND next_billing_date = ?", sub.ID, types.SubscriptionStatusActive, sub.NextBillingDate.UTC()).
			Where("last_reminder_sent_at IS NULL OR last_reminder_sent_at < ?", windowStart.UTC()).
			Update("last_reminder_sent_at", at.UTC())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		stamped = true
		before := *sub
		after := *sub
		stampedAt := at.UTC()
		after.LastReminderSentAt = &stampedAt
		return writeLog(tx, types.SubscriptionChangeReasonReminder, &before, &after, map[string]any{"window_start": windowStart})
	})
	if err != nil {
		return false, apperr.Tx("stamp reminder", err)
	}
	return stamped, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (*models.Subscription, error) {
	return s.findOne(ctx, "id = ?", id)
}

func (s *Service) FindByReference(ctx context.Context, reference string) (*models.Subscription, error) {
	return s.findOne(ctx, "reference = ?", reference)
}

func (s *Service) findOne(ctx context.Context, query string, args ...any) (*models.Subscription, error) {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Preload("Product").Where(query, args...).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, apperr.Storage("find subscription", err)
	}
	return &sub, nil
}

// User loads the owner for notification addressing; nil when unknown.
func (s *Service) User(ctx context.Context, userID string) *models.User {
	return s.user(ctx, userID)
}

func (s *Service) user(ctx context.Context, userID string) *models.User {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logctx.FromCtx(ctx, s.log).Warnw("load user for notification failed", "user_id", userID, "err", err)
		}
		return nil
	}
	return &u
}

func (s *Service) loadProduct(ctx context.Context, sub *models.Subscription) {
	if sub.Product != nil {
		return
	}
	var p models.Product
	if err := s.db.WithContext(ctx).Where("id = ?", sub.ProductID).First(&p).Error; err == nil {
		sub.Product = &p
	}
}

// dispatch runs after commit. A failed notification never undoes the change.
func (s *Service) dispatch(ctx context.Context, intent notify.Intent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, intent); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("notification dispatch failed", "type", intent.Type,
			"subscription", intent.Data.SubscriptionReference, "err", err)
	}
}

func create(tx *gorm.DB, ref, userID, productID string, tier types.Tier, extra map[string]any) (*models.Subscription, error) {
	var product models.Product
	if err := tx.Where("id = ?", productID).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %s: %w", productID, apperr.ErrNotFound)
		}
		return nil, err
	}
	if !product.IsSubscription {
		return nil, apperr.Validationf("product %s is not sold by subscription", productID)
	}
	price, ok := product.TierPrice(tier)
	if !ok {
		return nil, fmt.Errorf("%w: product %s has no %s tier", apperr.ErrInvalidTier, productID, tier)
	}

	// The user row serialises concurrent creates for the same user.
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", userID).First(&models.User{}).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Validationf("unknown user %s", userID)
		}
		return nil, err
	}
	var active int64
	if err := tx.Model(&models.Subscription{}).
		Where("user_id = ? AND product_id = ? AND status = ?", userID, productID, types.SubscriptionStatusActive).
		Count(&active).Error; err != nil {
		return nil, err
	}
	if active > 0 {
		return nil, fmt.Errorf("%w: user %s, product %s", apperr.ErrDuplicateActiveSubscription, userID, productID)
	}

	now := db.Now()
	sub := &models.Subscription{
		ID:              tool.GenerateUUIDV7(),
		Reference:       ref,
		UserID:          userID,
		ProductID:       productID,
		Tier:            tier,
		Status:          types.SubscriptionStatusActive,
		Price:           price,
		Currency:        product.Currency,
		StartedAt:       now,
		NextBillingDate: NextBillingDate(now),
	}
	if err := tx.Omit("Product").Create(sub).Error; err != nil {
		return nil, err
	}
	if err := writeLog(tx, types.SubscriptionChangeReasonCreate, nil, sub, extra); err != nil {
		return nil, err
	}
	sub.Product = &product
	return sub, nil
}

func cancel(tx *gorm.DB, sub *models.Subscription, reason string, why types.SubscriptionChangeReason) error {
	if !sub.IsActive() {
		return fmt.Errorf("%w: %s", apperr.ErrAlreadyCancelled, sub.Reference)
	}
	before := *sub
	now := db.Now()
	res := tx.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", sub.ID, types.SubscriptionStatusActive).
		Updates(map[string]any{
			"status":              types.SubscriptionStatusCancelled,
			"cancelled_at":        now,
			"cancellation_reason": reason,
			"updated_at":          now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", apperr.ErrAlreadyCancelled, sub.Reference)
	}
	sub.Status = types.SubscriptionStatusCancelled
	sub.CancelledAt = &now
	sub.CancellationReason = &reason
	return writeLog(tx, why, &before, sub, nil)
}

func lockSubscription(tx *gorm.DB, id string) (*models.Subscription, error) {
	var sub models.Subscription
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func writeLog(tx *gorm.DB, reason types.SubscriptionChangeReason, before, after *models.Subscription, extra map[string]any) error {
	entry := &models.SubscriptionLog{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: after.ID,
		UserID:         after.UserID,
		Reason:         reason,
		Before:         datatypes.NewJSONType(before),
		After:          datatypes.NewJSONType(after),
		Extra:          datatypes.JSONMap(extra),
	}
	if entry.Extra == nil {
		entry.Extra = datatypes.JSONMap{}
	}
	return tx.Create(entry).Error
}
