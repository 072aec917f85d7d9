package notify

import (
	"time"

	"github.com/fatflowers/paydesk/internal/models"
	"github.com/fatflowers/paydesk/pkg/money"
	"github.com/fatflowers/paydesk/pkg/tool"
	"github.com/fatflowers/paydesk/pkg/types"
)

type IntentType string

const (
	IntentSubscriptionCreated         IntentType = "SubscriptionCreated"
	IntentSubscriptionCancelled       IntentType = "SubscriptionCancelled"
	IntentSubscriptionRenewalReminder IntentType = "SubscriptionRenewalReminder"
)

type Recipient struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// SubscriptionData is the template data the mail collaborator renders.
type SubscriptionData struct {
	SubscriptionReference string     `json:"subscription_reference"`
	ProductTitle          string     `json:"product_title"`
	Tier                  types.Tier `json:"tier"`
	Features              []string   `json:"features,omitempty"`
	Price                 string     `json:"price"`
	StartedAt             time.Time  `json:"started_at"`
	NextBillingDate       time.Time  `json:"next_billing_date"`
	CancelledAt           *time.Time `json:"cancelled_at,omitempty"`
	Reason                *string    `json:"reason,omitempty"`
	DaysUntilRenewal      *int       `json:"days_until_renewal,omitempty"`
}

// Intent tells the mail collaborator that an email must be sent. Rendering
// and delivery are not our concern.
type Intent struct {
	ID        string           `json:"id"`
	Type      IntentType       `json:"type"`
	Recipient Recipient        `json:"recipient"`
	Data      SubscriptionData `json:"data"`
	CreatedAt time.Time        `json:"created_at"`
}

// SubscriptionIntent builds an intent from a subscription with its Product
// loaded and its owner.
func SubscriptionIntent(typ IntentType, sub *models.Subscription, user *models.User) Intent {
	data := SubscriptionData{
		SubscriptionReference: sub.Reference,
		Tier:                  sub.Tier,
		Price:                 money.Format(sub.Price, string(sub.Currency)),
		StartedAt:             sub.StartedAt,
		NextBillingDate:       sub.NextBillingDate,
	}
	if sub.Product != nil {
		data.ProductTitle = sub.Product.Title
		if spec, ok := sub.Product.Tiers.Data()[sub.Tier]; ok {
			data.Features = spec.Features
		}
	}
	if typ == IntentSubscriptionCancelled {
		data.CancelledAt = sub.CancelledAt
		data.Reason = sub.CancellationReason
	}
	recipient := Recipient{UserID: sub.UserID}
	if user != nil {
		recipient.Name, recipient.Email = user.Name, user.Email
	}
	return Intent{
		ID:        tool.GenerateUUIDV7(),
		Type:      typ,
		Recipient: recipient,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

// RenewalReminder is SubscriptionIntent plus the days left before billing.
func RenewalReminder(sub *models.Subscription, user *models.User, daysUntil int) Intent {
	in := SubscriptionIntent(IntentSubscriptionRenewalReminder, sub, user)
	in.Data.DaysUntilRenewal = &daysUntil
	return in
}

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert goes to the operations channel, never to customers.
type Alert struct {
	Kind      string         `json:"kind"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
