package subscription

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/paydesk/internal/app/service/reference"
	"github.com/fatflowers/paydesk/internal/models"
	"github.com/fatflowers/paydesk/internal/platform/db/dbtest"
	"github.com/fatflowers/paydesk/internal/platform/notify"
	"github.com/fatflowers/paydesk/internal/platform/notify/notifytest"
	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/tool"
	"github.com/fatflowers/paydesk/pkg/types"
)

type fixture struct {
	svc     *Service
	db      *gorm.DB
	rec     *notifytest.Recorder
	product *models.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := dbtest.Open(t)
	log := zap.NewNop().Sugar()
	rec := &notifytest.Recorder{}
	for _, id := range []string{"u-1", "u-2", "u-3"} {
		dbtest.SeedUser(t, gdb, id)
	}
	return &fixture{
		svc:     NewService(gdb, reference.New(gdb, log), rec, log),
		db:      gdb,
		rec:     rec,
		product: dbtest.SeedTieredProduct(t, gdb),
	}
}

func (f *fixture) setNextBillingDate(t *testing.T, id string, at time.Time) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Subscription{}).Where("id = ?", id).
		Update("next_billing_date", at.UTC()).Error)
}

func TestCreate(t *testing.T) {
	f := newFixture(t)

	sub, err := f.svc.Create(context.Background(), "u-1", f.product.ID, types.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusActive, sub.Status)
	assert.True(t, decimal.NewFromInt(1500).Equal(sub.Price))
	assert.Equal(t, types.CurrencyKES, sub.Currency)
	assert.True(t, sub.NextBillingDate.Equal(sub.StartedAt.AddDate(0, 1, 0)))
	assert.True(t, sub.NextBillingDate.After(sub.StartedAt))
	assert.Regexp(t, `^SUB-[A-Z0-9]{8}-\d+$`, sub.Reference)

	intents := f.rec.Intents(notify.IntentSubscriptionCreated)
	require.Len(t, intents, 1)
	assert.Equal(t, "Job Board Pro", intents[0].Data.ProductTitle)
	assert.Equal(t, "KES 1,500.00", intents[0].Data.Price)
	assert.Equal(t, "u-1@example.com", intents[0].Recipient.Email)
}

func TestCreate_RejectsDuplicateActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "u-1", f.product.ID, types.TierBasic)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, "u-1", f.product.ID, types.TierPremium)
	require.ErrorIs(t, err, apperr.ErrDuplicateActiveSubscription)

	_, err = f.svc.Create(ctx, "u-2", f.product.ID, types.TierPremium)
	require.NoError(t, err)
}

func TestCreate_ConcurrentRequestsLeaveOneActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var userLocks atomic.Int32
	require.NoError(t, f.db.Callback().Query().Before("gorm:query").Register("test:user_lock", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Clauses["FOR"]; ok && tx.Statement.Table == "users" {
			userLocks.Add(1)
		}
	}))

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(ctx, "u-1", f.product.ID, types.TierBasic)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, apperr.ErrDuplicateActiveSubscription)
	}
	assert.Equal(t, 1, succeeded)
	assert.EqualValues(t, callers, userLocks.Load())

	var active int64
	require.NoError(t, f.db.Model(&models.Subscription{}).
		Where("user_id = ? AND status = ?", "u-1", types.SubscriptionStatusActive).Count(&active).Error)
	assert.EqualValues(t, 1, active)

	_, err := f.svc.Create(ctx, "u-unknown", f.product.ID, types.TierBasic)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreate_InvalidTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "u-1", f.product.ID, types.Tier("gold"))
	require.ErrorIs(t, err, apperr.ErrInvalidTier)

	basicOnly := &models.Product{
		ID:             tool.GenerateUUIDV7(),
		Title:          "Starter",
		Currency:       types.CurrencyKES,
		IsSubscription: true,
		Tiers: datatypes.NewJSONType(models.TierTable{
			types.TierBasic: {Price: decimal.NewFromInt(500), Features: []string{"1 seat"}},
		}),
	}
	require.NoError(t, f.db.Create(basicOnly).Error)
	_, err = f.svc.Create(ctx, "u-1", basicOnly.ID, types.TierPremium)
	require.ErrorIs(t, err, apperr.ErrInvalidTier)
	require.ErrorIs(t, err, apperr.ErrValidation)

	oneOff := dbtest.SeedProduct(t, f.db, "Resume review", decimal.NewFromInt(800))
	_, err = f.svc.Create(ctx, "u-1", oneOff.ID, types.TierBasic)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Create(ctx, "u-1", "missing", types.TierBasic)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestProduct_TierTableValidatedOnWrite(t *testing.T) {
	f := newFixture(t)
	bad := []models.TierTable{
		{types.Tier("gold"): {Price: decimal.NewFromInt(1), Features: []string{"x"}}},
		{types.TierBasic: {Price: decimal.NewFromInt(-1), Features: []string{"x"}}},
		{types.TierBasic: {Price: decimal.NewFromInt(1), Features: []string{""}}},
	}
	for _, tiers := range bad {
		p := &models.Product{ID: tool.GenerateUUIDV7(), Title: "bad", Currency: types.CurrencyKES, IsSubscription: true,
			Tiers: datatypes.NewJSONType(tiers)}
		require.Error(t, f.db.Create(p).Error)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, "u-1", f.product.ID, types.TierBasic)
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, sub.ID, "")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "", *cancelled.CancellationReason)

	_, err = f.svc.Cancel(ctx, sub.ID, "again")
	require.ErrorIs(t, err, apperr.ErrAlreadyCancelled)

	stored, err := f.svc.FindByReference(ctx, sub.Reference)
	require.NoError(t, err)
	assert.False(t, stored.IsActive())

	intents := f.rec.Intents(notify.IntentSubscriptionCancelled)
	require.Len(t, intents, 1)
	assert.Equal(t, "Job Board Pro", intents[0].Data.ProductTitle)

	_, err = f.svc.Cancel(ctx, "missing", "")
	require.ErrorIs(t, err, apperr.ErrSubscriptionNotFound)
}

func TestChangeTier_BasicToPremium(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	basic, err := f.svc.Create(ctx, "u-1", f.product.ID, types.TierBasic)
	require.NoError(t, err)

	change, err := f.svc.ChangeTier(ctx, basic.ID, types.TierPremium)
	require.NoError(t, err)

	old, err := f.svc.FindByID(ctx, basic.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionStatusCancelled, old.Status)
	require.NotNil(t, old.CancellationReason)
	assert.Contains(t, *old.CancellationReason, "premium")
	assert.Equal(t, "Upgraded/Downgraded to premium tier", *old.CancellationReason)

	created, err := f.svc.FindByID(ctx, change.Created.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TierPremium, created.Tier)
	assert.Equal(t, types.SubscriptionStatusActive, created.Status)
	assert.True(t, decimal.NewFromInt(3000).Equal(created.Price))
	assert.NotEqual(t, basic.Reference, created.Reference)

	var active int64
	require.NoError(t, f.db.Model(&models.Subscription{}).
		Where("user_id = ? AND status = ?", "u-1", types.SubscriptionStatusActive).Count(&active).Error)
	assert.EqualValues(t, 1, active)
	assert.Len(t, f.rec.Intents(notify.IntentSubscriptionCancelled), 1)
	assert.Len(t, f.rec.Intents(notify.IntentSubscriptionCreated), 2)
}

func TestChangeTier_IsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// drop the premium tier after subscribing so the create half fails
	sub, err := f.svc.Create(ctx, "u-1", f.product.ID, types.TierBasic)
	require.NoError(t, err)
	tiers := f.product.Tiers.Data()
	delete(tiers, types.TierPremium)
	require.NoError(t, f.db.Model(f.product).Update("tiers", datatypes.NewJSONType(tiers)).Error)

	_, err = f.svc.ChangeTier(ctx, sub.ID, types.TierPremium)
	require.ErrorIs(t, err, apperr.ErrInvalidTier)

	stored, err := f.svc.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive())
	assert.Nil(t, stored.CancelledAt)
}

func TestChangeTier_SameTierOrCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, "u-1", f.product.ID, types.TierBasic)
	require.NoError(t, err)

	_, err = f.svc.ChangeTier(ctx, sub.ID, types.TierBasic)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Cancel(ctx, sub.ID, "bye")
	require.NoError(t, err)
	_, err = f.svc.ChangeTier(ctx, sub.ID, types.TierPremium)
	require.ErrorIs(t, err, apperr.ErrAlreadyCancelled)
}

func TestNeedsRenewal(t *testing.T) {
	gdb := dbtest.Open(t)
	log := zap.NewNop().Sugar()
	svc := NewService(gdb, reference.New(gdb, log), nil, log)
	product := dbtest.SeedTieredProduct(t, gdb)
	ctx := context.Background()
	now := time.Now().UTC()

	seed := map[string]struct {
		nbd       time.Time
		cancelled bool
		due       bool
	}{
		"u-past":       {nbd: now.Add(-48 * time.Hour), due: true},
		"u-just-due":   {nbd: now.Add(-time.Second), due: true},
		"u-future":     {nbd: now.Add(24 * time.Hour)},
		"u-cancelled":  {nbd: now.Add(-48 * time.Hour), cancelled: true},
		"u-far-future": {nbd: now.AddDate(0, 1, 0)},
	}
	want := map[string]bool{}
	for user, s := range seed {
		dbtest.SeedUser(t, gdb, user)
		sub, err := svc.Create(ctx, user, product.ID, types.TierBasic)
		require.NoError(t, err)
		require.NoError(t, gdb.Model(&models.Subscription{}).Where("id = ?", sub.ID).
			Update("next_billing_date", s.nbd).Error)
		if s.cancelled {
			_, err = svc.Cancel(ctx, sub.ID, "")
			require.NoError(t, err)
		}
		if s.due {
			want[sub.ID] = true
		}
	}

	due, err := svc.NeedsRenewal(ctx, now)
	require.NoError(t, err)
	got := map[string]bool{}
	for _, s := range due {
		got[s.ID] = true
		assert.NotNil(t, s.Product)
	}
	assert.Equal(t, want, got)
}

func TestRenew_AdvancesExactlyOnePeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, "u-1", f.product.ID, types.TierFree)
	require.NoError(t, err)
	billed := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	f.setNextBillingDate(t, sub.ID, billed)
	due, err := f.svc.FindByID(ctx, sub.ID)
	require.NoError(t, err)

	renewed, advanced, err := f.svc.Renew(ctx, due)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.True(t, renewed.NextBillingDate.Equal(time.Date(2024, 2, 15, 9, 0, 0, 0, time.UTC)))
	assert.True(t, renewed.StartedAt.Equal(sub.StartedAt))
	assert.Equal(t, types.TierFree, renewed.Tier)

	// a second run with the stale copy must not advance again
	_, advanced, err = f.svc.Renew(ctx, due)
	require.NoError(t, err)
	assert.False(t, advanced)
	stored, err := f.svc.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.True(t, stored.NextBillingDate.Equal(time.Date(2024, 2, 15, 9, 0, 0, 0, time.UTC)))
}

func TestRenewWithPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, "u-1", f.product.ID, types.TierBasic)
	require.NoError(t, err)

	renewed, advanced, err := f.svc.RenewWithPayment(ctx, sub, "trk-renewal")
	require.NoError(t, err)
	assert.True(t, advanced)
	require.NotNil(t, renewed.PaymentTrackingID)
	assert.Equal(t, "trk-renewal", *renewed.PaymentTrackingID)

	_, err = f.svc.Cancel(ctx, sub.ID, "")
	require.NoError(t, err)
	_, _, err = f.svc.Renew(ctx, renewed)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestStampReminder_OncePerWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub, err := f.svc.Create(ctx, "u-1", f.product.ID, types.TierBasic)
	require.NoError(t, err)
	nbd := sub.NextBillingDate
	sevenDayWindow := nbd.AddDate(0, 0, -7)
	threeDayWindow := nbd.AddDate(0, 0, -3)

	ok, err := f.svc.StampReminder(ctx, sub, sevenDayWindow, nbd.AddDate(0, 0, -6))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.StampReminder(ctx, sub, sevenDayWindow, nbd.AddDate(0, 0, -5))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.StampReminder(ctx, sub, threeDayWindow, nbd.AddDate(0, 0, -2))
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := f.svc.FindByID(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastReminderSentAt)
	assert.True(t, stored.LastReminderSentAt.Equal(nbd.AddDate(0, 0, -2)))
}

func TestReminderCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()
	near, err := f.svc.Create(ctx, "u-1", f.product.ID, types.TierBasic)
	require.NoError(t, err)
	f.setNextBillingDate(t, near.ID, now.Add(72*time.Hour))
	far, err := f.svc.Create(ctx, "u-2", f.product.ID, types.TierBasic)
	require.NoError(t, err)
	f.setNextBillingDate(t, far.ID, now.Add(30*24*time.Hour))
	overdue, err := f.svc.Create(ctx, "u-3", f.product.ID, types.TierBasic)
	require.NoError(t, err)
	f.setNextBillingDate(t, overdue.ID, now.Add(-time.Hour))

	got, err := f.svc.ReminderCandidates(ctx, now, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, near.ID, got[0].ID)
}
