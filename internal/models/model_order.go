package models

import (
	"time"

	"github.com/fatflowers/paydesk/pkg/money"
	"github.com/fatflowers/paydesk/pkg/types"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderContact is a copy of the customer's contact details taken when the
// order is created. Later profile edits never reach historical orders.
type OrderContact struct {
	Name    string `gorm:"column:contact_name;type:varchar(255)" json:"name"`
	Email   string `gorm:"column:contact_email;type:varchar(255)" json:"email"`
	Phone   string `gorm:"column:contact_phone;type:varchar(64)" json:"phone"`
	Company string `gorm:"column:contact_company;type:varchar(255)" json:"company"`
}

type Order struct {
	ID        string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Reference string            `gorm:"column:reference;type:varchar(64);not null;uniqueIndex" json:"reference"`
	UserID    string            `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Kind      types.OrderKind   `gorm:"column:kind;type:varchar(32);not null" json:"kind"`
	Contact   OrderContact      `gorm:"embedded" json:"contact"`
	Total     decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null" json:"total"`
	Currency  types.Currency    `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Status    types.OrderStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	// MerchantReference is the id sent to the gateway: the order reference for
	// checkouts, RENEWAL-<subscription reference> for renewals.
	MerchantReference string `gorm:"column:merchant_reference;type:varchar(128)" json:"merchant_reference"`
	// TrackingID is nil until the gateway accepted the submission.
	TrackingID *string `gorm:"column:tracking_id;type:varchar(128);uniqueIndex" json:"tracking_id"`
	// SubscriptionID and BillingDate identify the billing period a
	// subscription or renewal order pays for.
	SubscriptionID *string    `gorm:"column:subscription_id;type:uuid;uniqueIndex:idx_order_subscription_billing,priority:1" json:"subscription_id"`
	BillingDate    *time.Time `gorm:"column:billing_date;uniqueIndex:idx_order_subscription_billing,priority:2" json:"billing_date"`
	// PaidAt is set once, on the transition into paid.
	PaidAt    *time.Time     `gorm:"column:paid_at;default:null" json:"paid_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Items []*OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

func (Order) TableName() string {
	return "order"
}

func (o *Order) IsPending() bool {
	return o != nil && o.Status == types.OrderStatusPending
}

type OrderItem struct {
	ID        string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	OrderID   string          `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	ProductID string          `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Quantity  int             `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null" json:"unit_price"`
	LineTotal decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null" json:"line_total"`
	CreatedAt time.Time       `json:"created_at"`
}

func (OrderItem) TableName() string {
	return "order_item"
}

// BeforeSave recomputes the line total; a caller-supplied value is never kept.
func (i *OrderItem) BeforeSave(tx *gorm.DB) error {
	i.LineTotal = money.LineTotal(i.UnitPrice, i.Quantity)
	return nil
}
