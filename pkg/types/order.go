package types

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no automatic transition may leave this status.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed || s == OrderStatusCancelled
}

type Currency string

const (
	CurrencyKES Currency = "KES"
	CurrencyUSD Currency = "USD"
)

func (c Currency) Valid() bool {
	return c == CurrencyKES || c == CurrencyUSD
}

// OrderKind tells what a payment was started for.
type OrderKind string

const (
	OrderKindCheckout     OrderKind = "checkout"
	OrderKindSubscription OrderKind = "subscription"
	OrderKindRenewal      OrderKind = "renewal"
)

type OrderChangeReason string

const (
	OrderChangeReasonCreate        OrderChangeReason = "create"
	OrderChangeReasonAttachPayment OrderChangeReason = "attachPayment"
	OrderChangeReasonGatewayStatus OrderChangeReason = "gatewayStatus"
)

const (
	OrderReferencePrefix        = "ORD"
	SubscriptionReferencePrefix = "SUB"
	RenewalReferencePrefix      = "RENEWAL"
)
