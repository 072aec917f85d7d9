package models

import (
	"time"

	"github.com/fatflowers/paydesk/pkg/types"

	"gorm.io/datatypes"
)

// OrderLog records every order state change, written in the same transaction
// as the change itself.
type OrderLog struct {
	ID      string                  `gorm:"column:id;primary_key;type:uuid"`
	OrderID string                  `gorm:"column:order_id;type:uuid;not null;index"`
	Reason  types.OrderChangeReason `gorm:"column:reason;type:varchar(64);not null"`
	// Before stores the order before the change; null on creation.
	Before datatypes.JSONType[*Order] `gorm:"column:before;type:jsonb;default:'null'"`
	After  datatypes.JSONType[*Order] `gorm:"column:after;type:jsonb;default:'null'"`
	// Extra carries the trigger (webhook, poll, sweep) and raw gateway fields.
	Extra     datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'"`
	CreatedAt time.Time         `json:"created_at"`
}

func (OrderLog) TableName() string {
	return "order_log"
}
