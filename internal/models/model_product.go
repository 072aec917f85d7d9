package models

import (
	"fmt"
	"reflect"
	"time"

	"github.com/fatflowers/paydesk/pkg/types"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// TierSpec is the price and feature list of one tier.
type TierSpec struct {
	Price    decimal.Decimal `json:"price" validate:"gte=0"`
	Features []string        `json:"features" validate:"dive,required"`
}

// TierTable maps tier names to their specs.
type TierTable map[types.Tier]TierSpec

func (t TierTable) Validate() error {
	for tier, spec := range t {
		if !tier.Valid() {
			return fmt.Errorf("unknown tier %q", tier)
		}
		if err := validate.Struct(spec); err != nil {
			return fmt.Errorf("tier %s: %w", tier, err)
		}
	}
	return nil
}

// Product is read by the engine for prices; catalog CRUD lives elsewhere.
type Product struct {
	ID             string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Title          string          `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Price          decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	Currency       types.Currency  `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	IsSubscription bool            `gorm:"column:is_subscription;not null;default:false" json:"is_subscription"`
	// Tiers is only meaningful for subscription products.
	Tiers     datatypes.JSONType[TierTable] `gorm:"column:tiers;type:jsonb;default:'{}'" json:"tiers"`
	CreatedAt time.Time                     `json:"created_at"`
	UpdatedAt time.Time                     `json:"updated_at"`
}

func (Product) TableName() string {
	return "product"
}

// BeforeSave rejects tier tables that would fail at read time.
func (p *Product) BeforeSave(tx *gorm.DB) error {
	if err := p.Tiers.Data().Validate(); err != nil {
		return fmt.Errorf("invalid tier table for product %s: %w", p.ID, err)
	}
	return nil
}

// TierPrice looks up the price of tier. ok is false when the product does not
// sell that tier.
func (p *Product) TierPrice(tier types.Tier) (decimal.Decimal, bool) {
	if p == nil {
		return decimal.Zero, false
	}
	spec, ok := p.Tiers.Data()[tier]
	if !ok {
		return decimal.Zero, false
	}
	return spec.Price, true
}
