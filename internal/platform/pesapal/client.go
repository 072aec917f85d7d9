package pesapal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/config"
	"github.com/fatflowers/paydesk/pkg/logctx"
	"github.com/fatflowers/paydesk/pkg/metrics"
)

// Gateway is the outbound payment gateway. It never persists anything.
type Gateway interface {
	SubmitOrderRequest(ctx context.Context, intent PaymentIntent) (*Submission, error)
	GetTransactionStatus(ctx context.Context, trackingID string) (*TransactionStatus, error)
	RegisterIPN(ctx context.Context, ipnURL string) (string, error)
}

const (
	pathRequestToken  = "/api/Auth/RequestToken"
	pathSubmitOrder   = "/api/Transactions/SubmitOrderRequest"
	pathStatus        = "/api/Transactions/GetTransactionStatus"
	pathRegisterIPN   = "/api/URLSetup/RegisterIPN"
	maxDescriptionLen = 100
	// tokens live five minutes; refresh a little early
	tokenSlack       = 30 * time.Second
	tokenFallbackTTL = 4 * time.Minute
)

type Client struct {
	cfg     config.GatewayConfig
	http    *http.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger
	metrics *metrics.Domain
	now     func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger, m *metrics.Domain) *Client {
	gc := cfg.Gateway
	limit := rate.Inf
	if gc.RatePerSecond > 0 {
		limit = rate.Limit(gc.RatePerSecond)
	}
	return &Client{
		cfg:     gc,
		http:    &http.Client{Timeout: gc.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

var Module = fx.Options(
	fx.Provide(fx.Annotate(NewClient, fx.As(new(Gateway)))),
)

func (c *Client) SubmitOrderRequest(ctx context.Context, intent PaymentIntent) (sub *Submission, err error) {
	defer func(start time.Time) { c.metrics.GatewayCall("submit", start, err) }(time.Now())

	if intent.MerchantReference == "" {
		return nil, apperr.Validationf("merchant reference is required")
	}
	if !intent.Amount.IsPositive() {
		return nil, apperr.Validationf("amount must be positive, got %s", intent.Amount)
	}
	first, last := splitName(intent.Contact.Name)
	callbackURL := intent.CallbackURL
	if callbackURL == "" {
		callbackURL = c.cfg.CallbackURL
	}
	req := submitOrderRequest{
		ID:             intent.MerchantReference,
		Currency:       string(intent.Currency),
		Amount:         json.Number(intent.Amount.StringFixed(2)),
		Description:    truncate(intent.Description, maxDescriptionLen),
		CallbackURL:    callbackURL,
		NotificationID: c.cfg.IPNID,
		BillingAddress: billingAddress{
			EmailAddress: intent.Contact.Email,
			PhoneNumber:  intent.Contact.Phone,
			FirstName:    first,
			LastName:     last,
		},
	}

	var resp submitOrderResponse
	if _, err = c.call(ctx, "submit", http.MethodPost, pathSubmitOrder, req, &resp, true); err != nil {
		return nil, err
	}
	if resp.Error.present() {
		return nil, fmt.Errorf("submit %s: %w: %s", intent.MerchantReference, apperr.ErrGatewayRejected, resp.Error)
	}
	if resp.OrderTrackingID == "" {
		return nil, fmt.Errorf("submit %s: %w: empty tracking id", intent.MerchantReference, apperr.ErrGatewayRejected)
	}
	return &Submission{
		TrackingID:        resp.OrderTrackingID,
		MerchantReference: resp.MerchantReference,
		RedirectURL:       resp.RedirectURL,
	}, nil
}

func (c *Client) GetTransactionStatus(ctx context.Context, trackingID string) (st *TransactionStatus, err error) {
	defer func(start time.Time) { c.metrics.GatewayCall("status", start, err) }(time.Now())

	if trackingID == "" {
		return nil, apperr.Validationf("tracking id is required")
	}
	path := pathStatus + "?orderTrackingId=" + url.QueryEscape(trackingID)
	var resp transactionStatusResponse
	raw, err := c.call(ctx, "status", http.MethodGet, path, nil, &resp, true)
	if err != nil {
		return nil, err
	}
	if resp.Error.present() {
		return nil, fmt.Errorf("status %s: %w: %s", trackingID, apperr.ErrGatewayRejected, resp.Error)
	}
	return &TransactionStatus{
		TrackingID:        trackingID,
		StatusCode:        resp.StatusCode,
		Description:       resp.PaymentStatusDescription,
		MerchantReference: resp.MerchantReference,
		PaymentMethod:     resp.PaymentMethod,
		ConfirmationCode:  resp.ConfirmationCode,
		Raw:               raw,
	}, nil
}

// RegisterIPN registers ipnURL for POST notifications and returns the id to
// configure as gateway.ipn_id.
func (c *Client) RegisterIPN(ctx context.Context, ipnURL string) (id string, err error) {
	defer func(start time.Time) { c.metrics.GatewayCall("register_ipn", start, err) }(time.Now())

	var resp registerIPNResponse
	req := registerIPNRequest{URL: ipnURL, IPNNotificationType: http.MethodPost}
	if _, err = c.call(ctx, "register_ipn", http.MethodPost, pathRegisterIPN, req, &resp, true); err != nil {
		return "", err
	}
	if resp.Error.present() || resp.IPNID == "" {
		return "", fmt.Errorf("register ipn: %w: %s", apperr.ErrGatewayRejected, resp.Error)
	}
	return resp.IPNID, nil
}

// call runs one request with retries. Transient failures (network, timeout,
// 5xx, expired token) are retried with exponential backoff; other 4xx are returned at once.
func (c *Client) call(ctx context.Context, op, method, path string, body, out any, auth bool) (json.RawMessage, error) {
	log := logctx.FromCtx(ctx, c.log)
	var raw json.RawMessage
	operation := func() error {
		var err error
		raw, err = c.do(ctx, method, path, body, out, auth)
		if err != nil && !errors.Is(err, apperr.ErrGateway) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warnw("gateway call failed, retrying", "op", op, "err", err, "wait", wait)
	}
	err := backoff.RetryNotify(operation, c.backoff(ctx), notify)
	if err != nil {
		log.Errorw("gateway call failed", "op", op, "path", path, "err", err)
		return nil, err
	}
	return raw, nil
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, c.cfg.MaxRetries), ctx)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, auth bool) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(b)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", method, path, apperr.ErrGateway, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token, err := c.bearer(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", method, path, apperr.ErrGateway, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w: %w", method, path, apperr.ErrGateway, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized && auth:
		c.dropToken()
		return nil, fmt.Errorf("%s %s: %w: token rejected", method, path, apperr.ErrGateway)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%s %s: %w: http %d", method, path, apperr.ErrGateway, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%s %s: %w: http %d: %s", method, path, apperr.ErrGatewayRejected, resp.StatusCode, truncate(string(raw), 256))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("%s %s: decode response: %w: %w", method, path, apperr.ErrGateway, err)
	}
	return raw, nil
}

// bearer returns a cached token, requesting a new one when it is about to expire.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.token != "" && now.Add(tokenSlack).Before(c.tokenExpiry) {
		return c.token, nil
	}

	var resp tokenResponse
	req := tokenRequest{ConsumerKey: c.cfg.ConsumerKey, ConsumerSecret: c.cfg.ConsumerSecret}
	if _, err := c.do(ctx, http.MethodPost, pathRequestToken, req, &resp, false); err != nil {
		return "", err
	}
	if resp.Error.present() || resp.Token == "" {
		return "", fmt.Errorf("request token: %w: %s", apperr.ErrGatewayRejected, resp.Error)
	}
	expiry, err := time.Parse(time.RFC3339Nano, resp.ExpiryDate)
	if err != nil {
		expiry = now.Add(tokenFallbackTTL)
	}
	c.token, c.tokenExpiry = resp.Token, expiry
	return c.token, nil
}

func (c *Client) dropToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
