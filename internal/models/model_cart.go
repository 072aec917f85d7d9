package models

import (
	"time"

	"github.com/fatflowers/paydesk/pkg/types"
)

// Cart holds purchase intent before checkout. It is emptied in the same
// transaction that creates the order.
type Cart struct {
	ID        string      `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string      `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Items     []*CartItem `gorm:"foreignKey:CartID" json:"items"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (Cart) TableName() string {
	return "cart"
}

type CartItem struct {
	ID        string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	CartID    string `gorm:"column:cart_id;type:uuid;not null;index" json:"cart_id"`
	ProductID string `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Quantity  int    `gorm:"column:quantity;not null" json:"quantity"`
	// SubscriptionTier is set when the product is sold by tier.
	SubscriptionTier *types.Tier `gorm:"column:subscription_tier;type:varchar(32);default:null" json:"subscription_tier"`
	CreatedAt        time.Time   `json:"created_at"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (CartItem) TableName() string {
	return "cart_item"
}
