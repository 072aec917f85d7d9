package tool

import (
	"slices"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var upperAlphanumeric = slices.Concat(lo.UpperCaseLettersCharset, lo.NumbersCharset)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// RandomUpperAlphanumeric returns n characters drawn from A-Z0-9.
func RandomUpperAlphanumeric(n int) string {
	return lo.RandomString(n, upperAlphanumeric)
}
