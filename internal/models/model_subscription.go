package models

import (
	"time"

	"github.com/fatflowers/paydesk/pkg/types"

	"github.com/shopspring/decimal"
)

// Subscription is one tier purchase of a product by a user. Tier changes
// create a new row and cancel the old one, so every row keeps the price it
// was sold at.
type Subscription struct {
	ID        string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Reference string                   `gorm:"column:reference;type:varchar(64);not null;uniqueIndex" json:"reference"`
	UserID    string                   `gorm:"column:user_id;type:varchar(64);not null;index:idx_subscription_owner,priority:1" json:"user_id"`
	ProductID string                   `gorm:"column:product_id;type:uuid;not null;index:idx_subscription_owner,priority:2" json:"product_id"`
	Tier      types.Tier               `gorm:"column:tier;type:varchar(32);not null" json:"tier"`
	Status    types.SubscriptionStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	// Price is the tier price at creation time.
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	Currency  types.Currency  `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	StartedAt time.Time       `gorm:"column:started_at;not null" json:"started_at"`
	// NextBillingDate moves forward by one billing period per renewal.
	NextBillingDate time.Time `gorm:"column:next_billing_date;not null;index" json:"next_billing_date"`
	// LastReminderSentAt prevents a second reminder inside the same window.
	LastReminderSentAt *time.Time `gorm:"column:last_reminder_sent_at;default:null" json:"last_reminder_sent_at"`
	// CancelledAt and CancellationReason are set together.
	CancelledAt        *time.Time `gorm:"column:cancelled_at;default:null" json:"cancelled_at"`
	CancellationReason *string    `gorm:"column:cancellation_reason;type:varchar(255);default:null" json:"cancellation_reason"`
	// PaymentTrackingID is the gateway tracking id of the latest payment; nil for free tiers.
	PaymentTrackingID *string   `gorm:"column:payment_tracking_id;type:varchar(128);default:null" json:"payment_tracking_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (Subscription) TableName() string {
	return "subscription"
}

func (s *Subscription) IsActive() bool {
	return s != nil && s.Status == types.SubscriptionStatusActive
}

// IsFree reports whether renewing this subscription needs no payment.
func (s *Subscription) IsFree() bool {
	return s != nil && !s.Price.IsPositive()
}
