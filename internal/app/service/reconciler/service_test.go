package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	callbacklog "github.com/fatflowers/paydesk/internal/app/service/callback_log"
	"github.com/fatflowers/paydesk/internal/app/service/order"
	"github.com/fatflowers/paydesk/internal/app/service/reference"
	"github.com/fatflowers/paydesk/internal/models"
	"github.com/fatflowers/paydesk/internal/platform/db"
	"github.com/fatflowers/paydesk/internal/platform/db/dbtest"
	"github.com/fatflowers/paydesk/internal/platform/notify/notifytest"
	"github.com/fatflowers/paydesk/internal/platform/pesapal/pesapaltest"
	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/tool"
	"github.com/fatflowers/paydesk/pkg/types"
)

type fixture struct {
	svc      *Service
	db       *gorm.DB
	gateway  *pesapaltest.Gateway
	notifier *notifytest.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.Open(t)
	log := zap.NewNop().Sugar()
	gw := &pesapaltest.Gateway{}
	rec := &notifytest.Recorder{}
	orders := order.New(gdb, reference.New(gdb, log), log)
	svc := New(orders, gw, callbacklog.New(gdb, log), rec, nil, log)
	t.Cleanup(func() { gw.AssertExpectations(t) })
	return &fixture{svc: svc, db: gdb, gateway: gw, notifier: rec}
}

func (f *fixture) seedOrder(t *testing.T, ref, trackingID string, kind types.OrderKind) *models.Order {
	t.Helper()
	o := &models.Order{
		ID:                tool.GenerateUUIDV7(),
		Reference:         ref,
		UserID:            "u-1",
		Kind:              kind,
		Total:             decimal.NewFromInt(1500),
		Currency:          types.CurrencyKES,
		Status:            types.OrderStatusPending,
		MerchantReference: ref,
	}
	if trackingID != "" {
		o.TrackingID = &trackingID
	}
	require.NoError(t, f.db.Create(o).Error)
	return o
}

func (f *fixture) reload(t *testing.T, id string) *models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, f.db.First(&o, "id = ?", id).Error)
	return &o
}

func code(c int) *int { return &c }

func TestMapGatewayStatus(t *testing.T) {
	cases := map[int]types.OrderStatus{
		0:  types.OrderStatusPending,
		1:  types.OrderStatusPaid,
		2:  types.OrderStatusFailed,
		3:  types.OrderStatusCancelled,
		4:  types.OrderStatusPending,
		-1: types.OrderStatusPending,
		99: types.OrderStatusPending,
	}
	for in, want := range cases {
		assert.Equal(t, want, MapGatewayStatus(in), "code %d", in)
	}
}

func TestPaymentFlag(t *testing.T) {
	assert.Equal(t, "success", PaymentFlag(types.OrderStatusPaid))
	assert.Equal(t, "failed", PaymentFlag(types.OrderStatusFailed))
	assert.Equal(t, "cancelled", PaymentFlag(types.OrderStatusCancelled))
	assert.Equal(t, "pending", PaymentFlag(types.OrderStatusPending))
}

func TestHandleCallback_PaidThenRepeatIsNoop(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "ORD-ABCDEF12-1700000000", "trk-1", types.OrderKindCheckout)
	ctx := context.Background()
	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-1").Return(pesapaltest.Status("trk-1", 1), nil).Twice()

	payload := CallbackPayload{TrackingID: "trk-1", MerchantReference: o.Reference, NotificationType: "IPNCHANGE", StatusCode: code(1)}
	out, err := f.svc.HandleCallback(ctx, payload)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, types.OrderStatusPaid, out.Status)

	stored := f.reload(t, o.ID)
	assert.Equal(t, types.OrderStatusPaid, stored.Status)
	require.NotNil(t, stored.PaidAt)
	paidAt := *stored.PaidAt

	out, err = f.svc.HandleCallback(ctx, payload)
	require.NoError(t, err)
	assert.False(t, out.Changed)
	again := f.reload(t, o.ID)
	assert.Equal(t, types.OrderStatusPaid, again.Status)
	assert.True(t, paidAt.Equal(*again.PaidAt))

	var logs []models.OrderLog
	require.NoError(t, f.db.Where("order_id = ? AND reason = ?", o.ID, types.OrderChangeReasonGatewayStatus).Find(&logs).Error)
	assert.Len(t, logs, 1)

	var callbacks []models.CallbackLog
	require.NoError(t, f.db.Where("tracking_id = ?", "trk-1").Find(&callbacks).Error)
	require.Len(t, callbacks, 2)
	for _, c := range callbacks {
		assert.Equal(t, models.CallbackLogStatusHandled, c.Status)
		assert.Equal(t, models.CallbackSourceWebhook, c.Source)
	}
}

func TestHandleCallback_FetchesStatusWhenAbsent(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "ORD-FETCH001-1700000000", "trk-2", types.OrderKindCheckout)
	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-2").Return(pesapaltest.Status("trk-2", 2), nil).Once()

	out, err := f.svc.HandleCallback(context.Background(), CallbackPayload{TrackingID: "trk-2"})
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, types.OrderStatusFailed, f.reload(t, o.ID).Status)
	assert.Nil(t, f.reload(t, o.ID).PaidAt)
}

func TestHandleCallback_ReportedStatusIsConfirmedWithGateway(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "ORD-FORGED01-1700000000", "trk-9", types.OrderKindCheckout)
	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-9").Return(pesapaltest.Status("trk-9", 0), nil).Once()

	out, err := f.svc.HandleCallback(context.Background(), CallbackPayload{TrackingID: "trk-9", StatusCode: code(1)})
	require.NoError(t, err)
	assert.False(t, out.Changed)
	stored := f.reload(t, o.ID)
	assert.Equal(t, types.OrderStatusPending, stored.Status)
	assert.Nil(t, stored.PaidAt)
}

func TestHandleCallback_UnknownCodeStaysPending(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "ORD-UNKNOWN1-1700000000", "trk-3", types.OrderKindCheckout)

	out, err := f.svc.HandleCallback(context.Background(), CallbackPayload{TrackingID: "trk-3", StatusCode: code(7)})
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, types.OrderStatusPending, f.reload(t, o.ID).Status)
}

func TestHandleCallback_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HandleCallback(context.Background(), CallbackPayload{StatusCode: code(1)})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestHandleCallback_UnknownTrackingID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HandleCallback(context.Background(), CallbackPayload{TrackingID: "nope", StatusCode: code(1)})
	require.ErrorIs(t, err, apperr.ErrOrderNotFound)

	var c models.CallbackLog
	require.NoError(t, f.db.Where("tracking_id = ?", "nope").First(&c).Error)
	assert.Equal(t, models.CallbackLogStatusHandleFailed, c.Status)
}

func TestHandleCallback_TerminalConflictRejected(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "ORD-CONFLICT-1700000000", "trk-4", types.OrderKindCheckout)
	ctx := context.Background()
	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-4").Return(pesapaltest.Status("trk-4", 1), nil).Once()
	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-4").Return(pesapaltest.Status("trk-4", 2), nil).Once()

	_, err := f.svc.HandleCallback(ctx, CallbackPayload{TrackingID: "trk-4", StatusCode: code(1)})
	require.NoError(t, err)
	_, err = f.svc.HandleCallback(ctx, CallbackPayload{TrackingID: "trk-4", StatusCode: code(2)})
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	assert.Equal(t, types.OrderStatusPaid, f.reload(t, o.ID).Status)
}

func TestHandleCallback_FailedRenewalAlerts(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "ORD-RENEWAL1-1700000000", "trk-5", types.OrderKindRenewal)
	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-5").Return(pesapaltest.Status("trk-5", 2), nil).Once()

	_, err := f.svc.HandleCallback(context.Background(), CallbackPayload{TrackingID: "trk-5", StatusCode: code(2)})
	require.NoError(t, err)
	alerts := f.notifier.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "renewal_payment_failed", alerts[0].Kind)
}

func TestConfirm_WritesOnlyOnChange(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "ORD-CONFIRM1-1700000000", "trk-6", types.OrderKindCheckout)
	ctx := context.Background()

	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-6").Return(pesapaltest.Status("trk-6", 0), nil).Once()
	out, err := f.svc.Confirm(ctx, "trk-6", o.Reference)
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, "pending", PaymentFlag(out.Status))

	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-6").Return(pesapaltest.Status("trk-6", 1), nil).Twice()
	out, err = f.svc.Confirm(ctx, "trk-6", o.Reference)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, "success", PaymentFlag(out.Status))
	assert.Equal(t, o.Reference, out.Order.Reference)

	out, err = f.svc.Confirm(ctx, "trk-6", o.Reference)
	require.NoError(t, err)
	assert.False(t, out.Changed)

	var n int64
	require.NoError(t, f.db.Model(&models.OrderLog{}).Where("order_id = ?", o.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestConfirm_AdoptsUntrackedOrderByReference(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "ORD-ADOPTME1-1700000000", "", types.OrderKindCheckout)
	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-7").Return(pesapaltest.Status("trk-7", 1), nil).Once()

	out, err := f.svc.Confirm(context.Background(), "trk-7", o.Reference)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	stored := f.reload(t, o.ID)
	require.NotNil(t, stored.TrackingID)
	assert.Equal(t, "trk-7", *stored.TrackingID)
	assert.Equal(t, types.OrderStatusPaid, stored.Status)
}

func TestConfirm_GatewayDown(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, "ORD-GWDOWN01-1700000000", "trk-8", types.OrderKindCheckout)
	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-8").Return(nil, apperr.ErrGateway).Once()

	_, err := f.svc.Confirm(context.Background(), "trk-8", "")
	require.ErrorIs(t, err, apperr.ErrGateway)
}

func TestReplay_ResolvesFailedCallbacks(t *testing.T) {
	f := newFixture(t)
	o := f.seedOrder(t, "ORD-REPLAY01-1700000000", "trk-r", types.OrderKindCheckout)
	ctx := context.Background()
	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-r").Return(nil, apperr.ErrGateway).Once()
	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-r").Return(pesapaltest.Status("trk-r", 1), nil).Once()

	_, err := f.svc.HandleCallback(ctx, CallbackPayload{TrackingID: "trk-r"})
	require.ErrorIs(t, err, apperr.ErrGateway)
	callbacks := callbacklog.New(f.db, zap.NewNop().Sugar())
	failed, err := callbacks.Failed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	out, err := f.svc.Replay(ctx, "trk-r")
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, types.OrderStatusPaid, f.reload(t, o.ID).Status)

	failed, err = callbacks.Failed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestReconcilePending(t *testing.T) {
	f := newFixture(t)
	paid := f.seedOrder(t, "ORD-PENDING1-1700000000", "trk-a", types.OrderKindCheckout)
	still := f.seedOrder(t, "ORD-PENDING2-1700000000", "trk-b", types.OrderKindCheckout)
	broken := f.seedOrder(t, "ORD-PENDING3-1700000000", "trk-c", types.OrderKindCheckout)
	fresh := f.seedOrder(t, "ORD-PENDING4-1700000000", "trk-d", types.OrderKindCheckout)
	f.seedOrder(t, "ORD-UNTRACK1-1700000000", "", types.OrderKindCheckout)

	old := db.Now().Add(-2 * time.Hour)
	require.NoError(t, f.db.Model(&models.Order{}).Where("id IN ?", []string{paid.ID, still.ID, broken.ID}).
		UpdateColumn("created_at", old).Error)

	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-a").Return(pesapaltest.Status("trk-a", 1), nil).Once()
	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-b").Return(pesapaltest.Status("trk-b", 0), nil).Once()
	f.gateway.On("GetTransactionStatus", mock.Anything, "trk-c").Return(nil, apperr.ErrGateway).Once()

	sum, err := f.svc.ReconcilePending(context.Background(), 30*time.Minute, 100)
	require.ErrorIs(t, err, apperr.ErrGateway)
	assert.Equal(t, PendingSummary{Checked: 3, Changed: 1, Failed: 1}, sum)
	assert.Equal(t, types.OrderStatusPaid, f.reload(t, paid.ID).Status)
	assert.Equal(t, types.OrderStatusPending, f.reload(t, still.ID).Status)
	assert.Equal(t, types.OrderStatusPending, f.reload(t, fresh.ID).Status)
}
