package dbtest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/paydesk/internal/models"
	"github.com/fatflowers/paydesk/pkg/tool"
	"github.com/fatflowers/paydesk/pkg/types"
)

func SeedUser(t testing.TB, gdb *gorm.DB, id string) *models.User {
	t.Helper()
	u := &models.User{ID: id, Name: "Jane Doe", Email: id + "@example.com", Phone: "+254700000000", Company: "Acme"}
	require.NoError(t, gdb.Create(u).Error)
	return u
}

// SeedTieredProduct creates a subscription product: free 0, basic 1500 and
// premium 3000 KES.
func SeedTieredProduct(t testing.TB, gdb *gorm.DB) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:             tool.GenerateUUIDV7(),
		Title:          "Job Board Pro",
		Currency:       types.CurrencyKES,
		IsSubscription: true,
		Tiers: datatypes.NewJSONType(models.TierTable{
			types.TierFree:    {Price: decimal.Zero, Features: []string{"1 listing"}},
			types.TierBasic:   {Price: decimal.NewFromInt(1500), Features: []string{"5 listings"}},
			types.TierPremium: {Price: decimal.NewFromInt(3000), Features: []string{"unlimited listings", "featured"}},
		}),
	}
	require.NoError(t, gdb.Create(p).Error)
	return p
}

func SeedProduct(t testing.TB, gdb *gorm.DB, title string, price decimal.Decimal) *models.Product {
	t.Helper()
	p := &models.Product{
		ID:       tool.GenerateUUIDV7(),
		Title:    title,
		Price:    price,
		Currency: types.CurrencyKES,
		Tiers:    datatypes.NewJSONType(models.TierTable{}),
	}
	require.NoError(t, gdb.Create(p).Error)
	return p
}
