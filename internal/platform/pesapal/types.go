package pesapal

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/paydesk/pkg/types"
)

// Contact is the billing contact sent with a payment request.
type Contact struct {
	Name  string
	Email string
	Phone string
}

// PaymentIntent is everything the gateway needs to host a payment page.
type PaymentIntent struct {
	// MerchantReference is our id for the payment: an order reference, or
	// RENEWAL-<subscription reference> for renewals.
	MerchantReference string
	Amount            decimal.Decimal
	Currency          types.Currency
	Description       string
	// CallbackURL overrides the configured redirect target when set.
	CallbackURL string
	Contact     Contact
}

type Submission struct {
	TrackingID        string
	MerchantReference string
	RedirectURL       string
}

// TransactionStatus is the gateway's view of one payment. Raw keeps the
// response body for the callback log.
type TransactionStatus struct {
	TrackingID        string
	StatusCode        int
	Description       string
	MerchantReference string
	PaymentMethod     string
	ConfirmationCode  string
	Raw               json.RawMessage
}

const (
	StatusCodePending   = 0
	StatusCodeCompleted = 1
	StatusCodeFailed    = 2
	StatusCodeReversed  = 3
)

// splitName splits on the first space. "Cher" yields an empty last name.
func splitName(name string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}

type apiError struct {
	ErrorType string `json:"error_type"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

func (e *apiError) present() bool {
	return e != nil && (e.Code != "" || e.Message != "" || e.ErrorType != "")
}

func (e *apiError) String() string {
	if e == nil {
		return "no error detail"
	}
	return strings.TrimSpace(e.ErrorType + " " + e.Code + " " + e.Message)
}

type tokenRequest struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

type tokenResponse struct {
	Token      string    `json:"token"`
	ExpiryDate string    `json:"expiryDate"`
	Error      *apiError `json:"error"`
	Status     string    `json:"status"`
}

type billingAddress struct {
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

type submitOrderRequest struct {
	ID             string         `json:"id"`
	Currency       string         `json:"currency"`
	Amount         json.Number    `json:"amount"`
	Description    string         `json:"description"`
	CallbackURL    string         `json:"callback_url"`
	NotificationID string         `json:"notification_id"`
	BillingAddress billingAddress `json:"billing_address"`
}

type submitOrderResponse struct {
	OrderTrackingID   string    `json:"order_tracking_id"`
	MerchantReference string    `json:"merchant_reference"`
	RedirectURL       string    `json:"redirect_url"`
	Error             *apiError `json:"error"`
	Status            string    `json:"status"`
}

type transactionStatusResponse struct {
	PaymentMethod            string    `json:"payment_method"`
	ConfirmationCode         string    `json:"confirmation_code"`
	PaymentStatusDescription string    `json:"payment_status_description"`
	StatusCode               int       `json:"status_code"`
	MerchantReference        string    `json:"merchant_reference"`
	Error                    *apiError `json:"error"`
	Status                   string    `json:"status"`
}

type registerIPNRequest struct {
	URL                 string `json:"url"`
	IPNNotificationType string `json:"ipn_notification_type"`
}

type registerIPNResponse struct {
	URL    string    `json:"url"`
	IPNID  string    `json:"ipn_id"`
	Error  *apiError `json:"error"`
	Status string    `json:"status"`
}
