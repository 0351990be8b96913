package payment

import (
	"fmt"
	"strings"
)

// BillingInterval is the cadence a price is displayed for.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalYearly  BillingInterval = "yearly"
)

// ParseBillingInterval converts a raw value into a BillingInterval.
func ParseBillingInterval(s string) (BillingInterval, error) {
	switch BillingInterval(strings.ToLower(strings.TrimSpace(s))) {
	case IntervalMonthly, "":
		return IntervalMonthly, nil
	case IntervalYearly, "annual", "annually":
		return IntervalYearly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
}

func (i BillingInterval) String() string { return string(i) }

// PlanConfig describes a sellable plan. BasePrice is the monthly price in the
// smallest currency unit. Each provider sells the plan under its own opaque
// identifier; an empty identifier means the plan cannot be bought there.
type PlanConfig struct {
	ID                    string   `yaml:"id" json:"id" validate:"required,max=64"`
	Name                  string   `yaml:"name" json:"name" validate:"required"`
	Description           string   `yaml:"description" json:"description,omitempty"`
	BasePrice             int64    `yaml:"base_price" json:"base_price" validate:"min=0"`
	Currency              string   `yaml:"currency" json:"currency" validate:"required,currency"`
	AnnualDiscountPercent *int     `yaml:"annual_discount_percent" json:"annual_discount_percent,omitempty" validate:"omitempty,min=0,max=100"`
	Features              []string `yaml:"features" json:"features,omitempty"`

	StripePriceID  string `yaml:"stripe_price_id" json:"-"`
	LemonVariantID string `yaml:"lemon_variant_id" json:"-"`
	PolarProductID string `yaml:"polar_product_id" json:"-"`
	PaddlePriceID  string `yaml:"paddle_price_id" json:"-"`
}

// ProductID returns the identifier the provider sells this plan under.
func (p PlanConfig) ProductID(provider Provider) string {
	switch provider {
	case ProviderStripe:
		return p.StripePriceID
	case ProviderLemonSqueezy:
		return p.LemonVariantID
	case ProviderPolar:
		return p.PolarProductID
	case ProviderPaddle:
		return p.PaddlePriceID
	default:
		return ""
	}
}

// Purchasable reports whether the plan can be checked out with provider.
func (p PlanConfig) Purchasable(provider Provider) bool {
	return p.ProductID(provider) != ""
}
