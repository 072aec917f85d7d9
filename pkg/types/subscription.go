package types

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// Tier is a named service level of a subscription product.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

var Tiers = []Tier{TierFree, TierBasic, TierPremium}

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPremium:
		return true
	}
	return false
}

type SubscriptionChangeReason string

const (
	SubscriptionChangeReasonCreate     SubscriptionChangeReason = "create"
	SubscriptionChangeReasonCancel     SubscriptionChangeReason = "cancel"
	SubscriptionChangeReasonChangeTier SubscriptionChangeReason = "changeTier"
	SubscriptionChangeReasonRenew      SubscriptionChangeReason = "renew"
	SubscriptionChangeReasonPayment    SubscriptionChangeReason = "payment"
	SubscriptionChangeReasonReminder   SubscriptionChangeReason = "reminder"
)
