package reconciler

import (
	"github.com/fatflowers/paydesk/internal/platform/pesapal"
	"github.com/fatflowers/paydesk/pkg/types"
)

// MapGatewayStatus is the only translation from gateway status codes to order
// statuses. Unknown codes are pending: success is never assumed.
func MapGatewayStatus(code int) types.OrderStatus {
	switch code {
	case pesapal.StatusCodeCompleted:
		return types.OrderStatusPaid
	case pesapal.StatusCodeFailed:
		return types.OrderStatusFailed
	case pesapal.StatusCodeReversed:
		return types.OrderStatusCancelled
	default:
		return types.OrderStatusPending
	}
}

// PaymentFlag is the ?payment= value shown on the customer order page.
func PaymentFlag(status types.OrderStatus) string {
	switch status {
	case types.OrderStatusPaid:
		return "success"
	case types.OrderStatusFailed:
		return "failed"
	case types.OrderStatusCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}
