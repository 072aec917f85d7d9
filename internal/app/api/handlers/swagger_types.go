package handlers

import "github.com/fatflowers/paydesk/pkg/response"

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespPayment wraps PaymentView in the standard envelope.
type RespPayment struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    PaymentView              `json:"data"`
}

// RespSubscription wraps SubscriptionView in the standard envelope.
type RespSubscription struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    SubscriptionView         `json:"data"`
}

// RespSubscribe wraps SubscribeResponse in the standard envelope.
type RespSubscribe struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    SubscribeResponse        `json:"data"`
}

// RespChangeTier wraps ChangeTierResponse in the standard envelope.
type RespChangeTier struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ChangeTierResponse       `json:"data"`
}

// RespOrder wraps OrderView in the standard envelope.
type RespOrder struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    OrderView                `json:"data"`
}

// RespOrderPage wraps OrderPage in the standard envelope.
type RespOrderPage struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    OrderPage                `json:"data"`
}
