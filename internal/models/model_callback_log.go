package models

import (
	"time"

	"gorm.io/datatypes"
)

type CallbackLogStatus string

const (
	CallbackLogStatusReceived     CallbackLogStatus = "received"
	CallbackLogStatusHandled      CallbackLogStatus = "handled"
	CallbackLogStatusHandleFailed CallbackLogStatus = "handle_failed"
)

// CallbackSource tells which path delivered gateway information.
type CallbackSource string

const (
	CallbackSourceWebhook CallbackSource = "webhook"
	CallbackSourcePoll    CallbackSource = "poll"
	CallbackSourceCLI     CallbackSource = "cli"
	CallbackSourceSweep   CallbackSource = "sweep"
)

// CallbackLog keeps every raw gateway payload together with how it was handled,
// so a failed reconciliation can be replayed by hand.
type CallbackLog struct {
	ID                string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Source            CallbackSource    `gorm:"column:source;type:varchar(32);not null" json:"source"`
	TrackingID        string            `gorm:"column:tracking_id;type:varchar(128);index" json:"tracking_id"`
	MerchantReference string            `gorm:"column:merchant_reference;type:varchar(128)" json:"merchant_reference"`
	TraceID           string            `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Data              datatypes.JSON    `gorm:"column:data;type:jsonb" json:"data"`
	Result            *datatypes.JSON   `gorm:"column:result;type:jsonb" json:"result"`
	Status            CallbackLogStatus `gorm:"column:status;type:varchar(64);not null" json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func (CallbackLog) TableName() string { return "callback_log" }
