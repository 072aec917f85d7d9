package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/paydesk/internal/app/service/reference"
	"github.com/fatflowers/paydesk/internal/models"
	"github.com/fatflowers/paydesk/internal/platform/db"
	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/logctx"
	"github.com/fatflowers/paydesk/pkg/money"
	"github.com/fatflowers/paydesk/pkg/tool"
	"github.com/fatflowers/paydesk/pkg/types"
)

// Service is the order ledger. It is the only writer of order rows.
type Service struct {
	db   *gorm.DB
	refs *reference.Generator
	log  *zap.SugaredLogger
}

func New(db *gorm.DB, refs *reference.Generator, log *zap.SugaredLogger) *Service {
	return &Service{db: db, refs: refs, log: log}
}

var Module = fx.Options(
	fx.Provide(New),
)

type ItemInput struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

type CreateOrderRequest struct {
	UserID   string
	Contact  models.OrderContact
	Items    []ItemInput
	Currency types.Currency
	Kind     types.OrderKind
	// SubscriptionID and BillingDate are set for subscription and renewal orders.
	SubscriptionID *string
	BillingDate    *time.Time
	// MerchantReference defaults to the generated order reference.
	MerchantReference string
	// InTx runs inside the creating transaction, after the order and its items
	// are written. An error rolls everything back.
	InTx func(tx *gorm.DB, o *models.Order) error
}

func (r *CreateOrderRequest) validate() error {
	if r.UserID == "" {
		return apperr.Validationf("user id is required")
	}
	if len(r.Items) == 0 {
		return apperr.Validationf("order has no items")
	}
	if !r.Currency.Valid() {
		return apperr.Validationf("unsupported currency %q", r.Currency)
	}
	for i, it := range r.Items {
		if it.ProductID == "" {
			return apperr.Validationf("item %d: product id is required", i)
		}
		if it.Quantity < 1 {
			return apperr.Validationf("item %d: quantity must be at least 1, got %d", i, it.Quantity)
		}
		if it.UnitPrice.IsNegative() {
			return apperr.Validationf("item %d: negative unit price %s", i, it.UnitPrice)
		}
	}
	return nil
}

// CreateOrder writes a pending order and its items in one transaction.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Kind == "" {
		req.Kind = types.OrderKindCheckout
	}
	ref, err := s.refs.Generate(ctx, types.OrderReferencePrefix)
	if err != nil {
		return nil, fmt.Errorf("generate order reference: %w", err)
	}

	o := &models.Order{
		ID:                tool.GenerateUUIDV7(),
		Reference:         ref,
		UserID:            req.UserID,
		Kind:              req.Kind,
		Contact:           req.Contact,
		Currency:          req.Currency,
		Status:            types.OrderStatusPending,
		MerchantReference: req.MerchantReference,
		SubscriptionID:    req.SubscriptionID,
		BillingDate:       req.BillingDate,
	}
	if o.MerchantReference == "" {
		o.MerchantReference = ref
	}
	total := decimal.Zero
	for _, it := range req.Items {
		item := &models.OrderItem{
			ID:        tool.GenerateUUIDV7(),
			OrderID:   o.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: money.Round(it.UnitPrice),
		}
		total = total.Add(money.LineTotal(item.UnitPrice, item.Quantity))
		o.Items = append(o.Items, item)
	}
	o.Total = money.Round(total)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Items").Create(o).Error; err != nil {
			return err
		}
		if err := tx.Create(&o.Items).Error; err != nil {
			return err
		}
		if err := writeLog(tx, types.OrderChangeReasonCreate, nil, o, nil); err != nil {
			return err
		}
		if req.InTx != nil {
			return req.InTx(tx, o)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Tx("create order", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("order created", "order_id", o.ID, "reference", o.Reference,
		"kind", o.Kind, "total", o.Total.StringFixed(money.Scale), "currency", o.Currency)
	return o, nil
}

// AttachPaymentReference stores the gateway tracking id. Only pending orders
// accept one; re-attaching the same id is a no-op.
func (s *Service) AttachPaymentReference(ctx context.Context, orderID, trackingID string) (*models.Order, error) {
	if trackingID == "" {
		return nil, apperr.Validationf("tracking id is required")
	}
	var out *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if o.TrackingID != nil && *o.TrackingID == trackingID {
			out = o
			return nil
		}
		if !o.IsPending() {
			return fmt.Errorf("%w: attach payment to %s order %s", apperr.ErrInvalidTransition, o.Status, o.Reference)
		}
		before := *o
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", o.ID, types.OrderStatusPending).
			Updates(map[string]any{"tracking_id": trackingID, "updated_at": db.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: order %s left pending concurrently", apperr.ErrInvalidTransition, o.Reference)
		}
		o.TrackingID = &trackingID
		out = o
		return writeLog(tx, types.OrderChangeReasonAttachPayment, &before, o, nil)
	})
	if err != nil {
		return nil, apperr.Tx("attach payment reference", err)
	}
	return out, nil
}

// Transition reports what ApplyGatewayStatus did.
type Transition struct {
	Order   *models.Order
	From    types.OrderStatus
	To      types.OrderStatus
	Changed bool
}

// ApplyGatewayStatus moves a pending order to status. Applying the status the
// order already has is a no-op, a pending report never overrides a terminal
// status, and a terminal order never moves to another terminal status.
func (s *Service) ApplyGatewayStatus(ctx context.Context, orderID string, status types.OrderStatus, extra map[string]any) (*Transition, error) {
	log := logctx.FromCtx(ctx, s.log)
	var t Transition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		t = Transition{Order: o, From: o.Status, To: o.Status}
		switch {
		case o.Status == status:
			return nil
		case status == types.OrderStatusPending:
			log.Infow("stale pending status ignored", "order_id", o.ID, "reference", o.Reference, "current", o.Status)
			return nil
		case o.Status.Terminal():
			log.Warnw("order status transition rejected", "order_id", o.ID, "reference", o.Reference,
				"from", o.Status, "to", status, "extra", extra)
			return fmt.Errorf("%w: order %s is %s, got %s", apperr.ErrInvalidTransition, o.Reference, o.Status, status)
		}

		before := *o
		now := db.Now()
		updates := map[string]any{"status": status, "updated_at": now}
		if status == types.OrderStatusPaid && o.PaidAt == nil {
			updates["paid_at"] = now
			o.PaidAt = &now
		}
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", o.ID, types.OrderStatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: order %s left pending concurrently", apperr.ErrInvalidTransition, o.Reference)
		}
		o.Status = status
		o.UpdatedAt = now
		t.To, t.Changed = status, true
		return writeLog(tx, types.OrderChangeReasonGatewayStatus, &before, o, extra)
	})
	if err != nil {
		return nil, apperr.Tx("apply gateway status", err)
	}
	if t.Changed {
		log.Infow("order status changed", "order_id", t.Order.ID, "reference", t.Order.Reference, "from", t.From, "to", t.To)
	}
	return &t, nil
}

func (s *Service) FindByTrackingID(ctx context.Context, trackingID string) (*models.Order, error) {
	return s.findOne(ctx, "tracking_id = ?", trackingID)
}

func (s *Service) FindByReference(ctx context.Context, reference string) (*models.Order, error) {
	return s.findOne(ctx, "reference = ?", reference)
}

func (s *Service) FindByID(ctx context.Context, id string) (*models.Order, error) {
	return s.findOne(ctx, "id = ?", id)
}

// FindForBillingPeriod returns the order paying for one billing period of a
// subscription.
func (s *Service) FindForBillingPeriod(ctx context.Context, subscriptionID string, billingDate time.Time) (*models.Order, error) {
	return s.findOne(ctx, "subscription_id = ? AND billing_date = ?", subscriptionID, billingDate.UTC())
}

// ListPendingTracked returns pending orders that reached the gateway before
// createdBefore, oldest first.
func (s *Service) ListPendingTracked(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Order, error) {
	var orders []*models.Order
	err := s.db.WithContext(ctx).
		Where("status = ? AND tracking_id IS NOT NULL AND created_at < ?", types.OrderStatusPending, createdBefore.UTC()).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, apperr.Storage("list pending orders", err)
	}
	return orders, nil
}

// ListByUser pages through a user's orders, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, offset, limit int) ([]*models.Order, int64, error) {
	byUser := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)
	}
	var total int64
	if err := byUser().Count(&total).Error; err != nil {
		return nil, 0, apperr.Storage("count orders", err)
	}
	var orders []*models.Order
	err := byUser().Preload("Items").
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, apperr.Storage("list orders", err)
	}
	return orders, total, nil
}

func (s *Service) findOne(ctx context.Context, query string, args ...any) (*models.Order, error) {
	var o models.Order
	err := s.db.WithContext(ctx).Preload("Items").Where(query, args...).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrOrderNotFound
	}
	if err != nil {
		return nil, apperr.Storage("find order", err)
	}
	return &o, nil
}

func lockOrder(tx *gorm.DB, id string) (*models.Order, error) {
	var o models.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func writeLog(tx *gorm.DB, reason types.OrderChangeReason, before, after *models.Order, extra map[string]any) error {
	entry := &models.OrderLog{
		ID:      tool.GenerateUUIDV7(),
		OrderID: after.ID,
		Reason:  reason,
		Before:  datatypes.NewJSONType(before),
		After:   datatypes.NewJSONType(after),
		Extra:   datatypes.JSONMap(extra),
	}
	if entry.Extra == nil {
		entry.Extra = datatypes.JSONMap{}
	}
	return tx.Create(entry).Error
}
