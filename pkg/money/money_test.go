package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"1500", "KES", "KES 1,500.00"},
		{"0", "USD", "USD 0.00"},
		{"999.5", "USD", "USD 999.50"},
		{"1234567.891", "KES", "KES 1,234,567.89"},
		{"-42.1", "", "-42.10"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, Format(decimal.RequireFromString(tt.amount), tt.currency))
		})
	}
}

func TestLineTotal(t *testing.T) {
	got := LineTotal(decimal.RequireFromString("19.99"), 3)
	require.True(t, got.Equal(decimal.RequireFromString("59.97")), got.String())
}
