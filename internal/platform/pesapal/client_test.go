package pesapal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/config"
	"github.com/fatflowers/paydesk/pkg/types"
)

type fakeGateway struct {
	tokenCalls  atomic.Int32
	submitCalls atomic.Int32
	statusCalls atomic.Int32

	submit func(w http.ResponseWriter, r *http.Request)
	status func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(pathRequestToken, func(w http.ResponseWriter, r *http.Request) {
		n := f.tokenCalls.Add(1)
		writeJSON(w, map[string]any{
			"token":      "token-" + string(rune('0'+n)),
			"expiryDate": time.Now().Add(5 * time.Minute).UTC().Format(time.RFC3339Nano),
			"status":     "200",
		})
	})
	mux.HandleFunc(pathSubmitOrder, func(w http.ResponseWriter, r *http.Request) {
		f.submitCalls.Add(1)
		f.submit(w, r)
	})
	mux.HandleFunc(pathStatus, func(w http.ResponseWriter, r *http.Request) {
		f.statusCalls.Add(1)
		f.status(w, r)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, f *fakeGateway) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	cfg := &config.Config{Gateway: config.GatewayConfig{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		IPNID:          "ipn-1",
		CallbackURL:    "https://shop.example/payment/confirm",
		Timeout:        2 * time.Second,
		MaxRetries:     2,
	}}
	return NewClient(cfg, zap.NewNop().Sugar(), nil)
}

func intent(name string) PaymentIntent {
	return PaymentIntent{
		MerchantReference: "ORD-ABCDEF12-1700000000",
		Amount:            decimal.NewFromInt(1500),
		Currency:          types.CurrencyKES,
		Description:       "Order ORD-ABCDEF12-1700000000",
		Contact:           Contact{Name: name, Email: "jane@example.com", Phone: "+254700000000"},
	}
}

func TestSubmitOrderRequest_Success(t *testing.T) {
	f := &fakeGateway{}
	var got map[string]any
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, map[string]any{
			"order_tracking_id":  "trk-1",
			"merchant_reference": "ORD-ABCDEF12-1700000000",
			"redirect_url":       "https://pay.example/trk-1",
			"status":             "200",
		})
	}
	c := newTestClient(t, f)

	sub, err := c.SubmitOrderRequest(context.Background(), intent("Jane Wanjiru Doe"))
	require.NoError(t, err)
	assert.Equal(t, "trk-1", sub.TrackingID)
	assert.Equal(t, "https://pay.example/trk-1", sub.RedirectURL)

	assert.Equal(t, "ORD-ABCDEF12-1700000000", got["id"])
	assert.Equal(t, 1500.0, got["amount"])
	assert.Equal(t, "KES", got["currency"])
	assert.Equal(t, "ipn-1", got["notification_id"])
	assert.Equal(t, "https://shop.example/payment/confirm", got["callback_url"])
	billing := got["billing_address"].(map[string]any)
	assert.Equal(t, "Jane", billing["first_name"])
	assert.Equal(t, "Wanjiru Doe", billing["last_name"])
}

func TestSplitName(t *testing.T) {
	cases := []struct {
		in, first, last string
	}{
		{"Jane Doe", "Jane", "Doe"},
		{"Jane Wanjiru Doe", "Jane", "Wanjiru Doe"},
		{"Cher", "Cher", ""},
		{"  Padded Name ", "Padded", "Name"},
		{"", "", ""},
	}
	for _, tc := range cases {
		first, last := splitName(tc.in)
		assert.Equal(t, tc.first, first, tc.in)
		assert.Equal(t, tc.last, last, tc.in)
	}
}

func TestBearerTokenIsCached(t *testing.T) {
	f := &fakeGateway{}
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"order_tracking_id": "trk", "redirect_url": "u"})
	}
	c := newTestClient(t, f)

	for i := 0; i < 3; i++ {
		_, err := c.SubmitOrderRequest(context.Background(), intent("Jane Doe"))
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, f.tokenCalls.Load())
	assert.EqualValues(t, 3, f.submitCalls.Load())
}

func TestSubmitOrderRequest_RetriesServerErrors(t *testing.T) {
	f := &fakeGateway{}
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		if f.submitCalls.Load() < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, map[string]any{"order_tracking_id": "trk-3", "redirect_url": "u"})
	}
	c := newTestClient(t, f)

	sub, err := c.SubmitOrderRequest(context.Background(), intent("Jane Doe"))
	require.NoError(t, err)
	assert.Equal(t, "trk-3", sub.TrackingID)
	assert.EqualValues(t, 3, f.submitCalls.Load())
}

func TestSubmitOrderRequest_ExhaustedRetriesIsTransient(t *testing.T) {
	f := &fakeGateway{}
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	c := newTestClient(t, f)

	_, err := c.SubmitOrderRequest(context.Background(), intent("Jane Doe"))
	require.ErrorIs(t, err, apperr.ErrGateway)
	assert.True(t, apperr.Transient(err))
	assert.EqualValues(t, 3, f.submitCalls.Load())
}

func TestSubmitOrderRequest_ClientErrorIsNotRetried(t *testing.T) {
	f := &fakeGateway{}
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_amount"}}`))
	}
	c := newTestClient(t, f)

	_, err := c.SubmitOrderRequest(context.Background(), intent("Jane Doe"))
	require.ErrorIs(t, err, apperr.ErrGatewayRejected)
	assert.False(t, apperr.Transient(err))
	assert.EqualValues(t, 1, f.submitCalls.Load())
}

func TestSubmitOrderRequest_ErrorBodyIsRejected(t *testing.T) {
	f := &fakeGateway{}
	f.submit = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"error":  map[string]any{"error_type": "api_error", "code": "duplicate_order_reference", "message": "exists"},
			"status": "500",
		})
	}
	c := newTestClient(t, f)

	_, err := c.SubmitOrderRequest(context.Background(), intent("Jane Doe"))
	require.ErrorIs(t, err, apperr.ErrGatewayRejected)
	assert.Contains(t, err.Error(), "duplicate_order_reference")
	assert.EqualValues(t, 1, f.submitCalls.Load())
}

func TestSubmitOrderRequest_ValidatesIntent(t *testing.T) {
	c := newTestClient(t, &fakeGateway{})
	in := intent("Jane Doe")
	in.Amount = decimal.Zero
	_, err := c.SubmitOrderRequest(context.Background(), in)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestGetTransactionStatus(t *testing.T) {
	f := &fakeGateway{}
	f.status = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "trk-1", r.URL.Query().Get("orderTrackingId"))
		writeJSON(w, map[string]any{
			"payment_method":             "MpesaKE",
			"payment_status_description": "Completed",
			"status_code":                1,
			"merchant_reference":         "ORD-ABCDEF12-1700000000",
			"confirmation_code":          "QK12XYZ",
			"status":                     "200",
		})
	}
	c := newTestClient(t, f)

	st, err := c.GetTransactionStatus(context.Background(), "trk-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCodeCompleted, st.StatusCode)
	assert.Equal(t, "ORD-ABCDEF12-1700000000", st.MerchantReference)
	assert.Equal(t, "Completed", st.Description)
	assert.Contains(t, string(st.Raw), "QK12XYZ")
}

func TestExpiredTokenIsRefreshed(t *testing.T) {
	f := &fakeGateway{}
	f.status = func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]any{"status_code": 0})
	}
	c := newTestClient(t, f)

	st, err := c.GetTransactionStatus(context.Background(), "trk-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCodePending, st.StatusCode)
	assert.EqualValues(t, 2, f.tokenCalls.Load())
}
