package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/paydesk/internal/app/service/order"
	"github.com/fatflowers/paydesk/internal/app/service/subscription"
	"github.com/fatflowers/paydesk/internal/models"
	"github.com/fatflowers/paydesk/internal/platform/pesapal"
	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/config"
	"github.com/fatflowers/paydesk/pkg/logctx"
	"github.com/fatflowers/paydesk/pkg/types"
)

// Service runs the customer-initiated flows: paying for a cart, subscribing,
// cancelling and changing tier. It owns the policy for a gateway that cannot
// be reached.
type Service struct {
	db      *gorm.DB
	orders  *order.Service
	subs    *subscription.Service
	gateway pesapal.Gateway
	cfg     *config.Config
	log     *zap.SugaredLogger
}

func New(db *gorm.DB, orders *order.Service, subs *subscription.Service, gateway pesapal.Gateway,
	cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{db: db, orders: orders, subs: subs, gateway: gateway, cfg: cfg, log: log}
}

var Module = fx.Options(
	fx.Provide(New),
)

// Payment is the result of starting a payment for an order.
type Payment struct {
	Order       *models.Order
	TrackingID  string
	RedirectURL string
	// Sandbox is set when the gateway was unreachable and success was simulated.
	Sandbox bool
}

// Checkout turns the user's cart into a pending order, empties the cart in
// the same transaction and starts the payment. When the payment cannot be
// started the order stays pending and the error wraps ErrPaymentNotStarted.
func (s *Service) Checkout(ctx context.Context, userID, cartID string, currency types.Currency) (*Payment, error) {
	if userID == "" || cartID == "" {
		return nil, apperr.Validationf("user id and cart id are required")
	}
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	var cart models.Cart
	err = s.db.WithContext(ctx).Preload("Items.Product").Where("id = ? AND user_id = ?", cartID, userID).First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("cart %s: %w", cartID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Storage("load cart", err)
	}
	if len(cart.Items) == 0 {
		return nil, apperr.Validationf("cart %s is empty", cartID)
	}

	items := make([]order.ItemInput, 0, len(cart.Items))
	titles := make([]string, 0, len(cart.Items))
	for _, it := range cart.Items {
		if it.Product == nil {
			return nil, apperr.Validationf("cart item %s refers to unknown product %s", it.ID, it.ProductID)
		}
		price := it.Product.Price
		if it.SubscriptionTier != nil {
			p, ok := it.Product.TierPrice(*it.SubscriptionTier)
			if !ok {
				return nil, fmt.Errorf("%w %q for product %s", apperr.ErrInvalidTier, *it.SubscriptionTier, it.Product.Title)
			}
			price = p
		}
		if currency == "" {
			currency = it.Product.Currency
		}
		if it.Product.Currency != currency {
			return nil, apperr.Validationf("cart mixes currencies: product %s is priced in %s, order is in %s",
				it.Product.Title, it.Product.Currency, currency)
		}
		items = append(items, order.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: price})
		titles = append(titles, it.Product.Title)
	}

	o, err := s.orders.CreateOrder(ctx, order.CreateOrderRequest{
		UserID:   userID,
		Contact:  user.Contact(),
		Items:    items,
		Currency: currency,
		Kind:     types.OrderKindCheckout,
		InTx: func(tx *gorm.DB, _ *models.Order) error {
			return tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error
		},
	})
	if err != nil {
		return nil, err
	}
	return s.startPayment(ctx, o, strings.Join(titles, ", "))
}

// Subscribe starts a subscription. Paid tiers also get the order and payment
// for the first period; free tiers return a nil Payment.
func (s *Service) Subscribe(ctx context.Context, userID, productID string, tier types.Tier) (*models.Subscription, *Payment, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return nil, nil, err
	}
	sub, err := s.subs.Create(ctx, userID, productID, tier)
	if err != nil {
		return nil, nil, err
	}
	pay, err := s.payForSubscription(ctx, sub)
	return sub, pay, err
}

// Cancel ends the subscription identified by reference.
func (s *Service) Cancel(ctx context.Context, reference, reason string) (*models.Subscription, error) {
	sub, err := s.subs.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.subs.Cancel(ctx, sub.ID, reason)
}

// ChangeTier replaces the subscription with one at tier. A paid tier starts
// a payment exactly as Subscribe does.
func (s *Service) ChangeTier(ctx context.Context, reference string, tier types.Tier) (*subscription.TierChange, *Payment, error) {
	sub, err := s.subs.FindByReference(ctx, reference)
	if err != nil {
		return nil, nil, err
	}
	change, err := s.subs.ChangeTier(ctx, sub.ID, tier)
	if err != nil {
		return nil, nil, err
	}
	pay, err := s.payForSubscription(ctx, change.Created)
	return change, pay, err
}

func (s *Service) payForSubscription(ctx context.Context, sub *models.Subscription) (*Payment, error) {
	if sub.IsFree() {
		return nil, nil
	}
	user, err := s.user(ctx, sub.UserID)
	if err != nil {
		return nil, err
	}
	billingDate := sub.StartedAt
	o, err := s.orders.CreateOrder(ctx, order.CreateOrderRequest{
		UserID:         sub.UserID,
		Contact:        user.Contact(),
		Items:          []order.ItemInput{{ProductID: sub.ProductID, Quantity: 1, UnitPrice: sub.Price}},
		Currency:       sub.Currency,
		Kind:           types.OrderKindSubscription,
		SubscriptionID: &sub.ID,
		BillingDate:    &billingDate,
	})
	if err != nil {
		return nil, err
	}
	title := "Subscription"
	if sub.Product != nil {
		title = sub.Product.Title
	}
	pay, err := s.startPayment(ctx, o, fmt.Sprintf("%s (%s tier)", title, sub.Tier))
	if err != nil || pay.TrackingID == "" {
		return pay, err
	}
	if err := s.subs.AttachPayment(ctx, sub.ID, pay.TrackingID); err != nil {
		return pay, err
	}
	return pay, nil
}

// startPayment submits o to the gateway and stores the tracking id. Outside
// production, with sandbox_fallback on, a failed submission is turned into a
// simulated successful payment.
func (s *Service) startPayment(ctx context.Context, o *models.Order, description string) (*Payment, error) {
	log := logctx.FromCtx(ctx, s.log).With("order_id", o.ID, "reference", o.Reference)
	submission, err := s.gateway.SubmitOrderRequest(ctx, pesapal.PaymentIntent{
		MerchantReference: o.MerchantReference,
		Amount:            o.Total,
		Currency:          o.Currency,
		Description:       description,
		Contact:           pesapal.Contact{Name: o.Contact.Name, Email: o.Contact.Email, Phone: o.Contact.Phone},
	})
	if err != nil {
		if s.cfg.AllowSandboxFallback() {
			log.Warnw("gateway unavailable, simulating payment", "err", err)
			return s.simulate(ctx, o, err)
		}
		log.Errorw("payment could not be started", "amount", o.Total, "currency", o.Currency, "err", err)
		return &Payment{Order: o}, fmt.Errorf("%w: order %s: %w", apperr.ErrPaymentNotStarted, o.Reference, err)
	}

	tracked, err := s.orders.AttachPaymentReference(ctx, o.ID, submission.TrackingID)
	if err != nil {
		log.Errorw("store tracking id failed", "tracking_id", submission.TrackingID, "err", err)
		return &Payment{Order: o}, fmt.Errorf("%w: order %s: %w", apperr.ErrPaymentNotStarted, o.Reference, err)
	}
	log.Infow("payment started", "tracking_id", submission.TrackingID)
	return &Payment{Order: tracked, TrackingID: submission.TrackingID, RedirectURL: submission.RedirectURL}, nil
}

func (s *Service) simulate(ctx context.Context, o *models.Order, cause error) (*Payment, error) {
	tr, err := s.orders.ApplyGatewayStatus(ctx, o.ID, types.OrderStatusPaid, map[string]any{
		"source":        "sandbox",
		"gateway_error": cause.Error(),
		"simulated_at":  time.Now().UTC(),
	})
	if err != nil {
		return &Payment{Order: o}, fmt.Errorf("%w: order %s: %w", apperr.ErrPaymentNotStarted, o.Reference, err)
	}
	return &Payment{
		Order:       tr.Order,
		RedirectURL: s.cfg.Site.OrderPage(o.Reference, "success"),
		Sandbox:     true,
	}, nil
}

func (s *Service) user(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Validationf("unknown user %s", id)
	}
	if err != nil {
		return nil, apperr.Storage("load user", err)
	}
	return &u, nil
}
