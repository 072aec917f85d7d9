// Package pesapaltest provides a testify mock of pesapal.Gateway.
package pesapaltest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fatflowers/paydesk/internal/platform/pesapal"
)

type Gateway struct {
	mock.Mock
}

var _ pesapal.Gateway = (*Gateway)(nil)

func (g *Gateway) SubmitOrderRequest(ctx context.Context, intent pesapal.PaymentIntent) (*pesapal.Submission, error) {
	args := g.Called(ctx, intent)
	sub, _ := args.Get(0).(*pesapal.Submission)
	return sub, args.Error(1)
}

func (g *Gateway) GetTransactionStatus(ctx context.Context, trackingID string) (*pesapal.TransactionStatus, error) {
	args := g.Called(ctx, trackingID)
	st, _ := args.Get(0).(*pesapal.TransactionStatus)
	return st, args.Error(1)
}

func (g *Gateway) RegisterIPN(ctx context.Context, ipnURL string) (string, error) {
	args := g.Called(ctx, ipnURL)
	return args.String(0), args.Error(1)
}

// Status builds a TransactionStatus the way the real client reports one.
func Status(trackingID string, code int) *pesapal.TransactionStatus {
	return &pesapal.TransactionStatus{TrackingID: trackingID, StatusCode: code}
}
