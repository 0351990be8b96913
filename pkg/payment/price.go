package payment

import (
	"fmt"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const monthsPerYear = 12

// ComputePrice returns the price charged for one interval in the smallest
// currency unit. Yearly prices apply the annual discount with a single
// half-up rounding step.
func ComputePrice(plan PlanConfig, interval BillingInterval) int64 {
	if interval != IntervalYearly {
		return plan.BasePrice
	}
	full := plan.BasePrice * monthsPerYear
	if plan.AnnualDiscountPercent == nil {
		return full
	}
	d := int64(clampPercent(*plan.AnnualDiscountPercent))
	return (full*(100-d) + 50) / 100
}

// ComputeSavings returns the yearly saving against twelve monthly payments.
// It reports false for monthly prices and plans without a discount.
func ComputeSavings(plan PlanConfig, interval BillingInterval) (int64, bool) {
	if interval != IntervalYearly || plan.AnnualDiscountPercent == nil {
		return 0, false
	}
	return plan.BasePrice*monthsPerYear - ComputePrice(plan, interval), true
}

// ComputeSavingsLabel returns a label such as "Save 2.40 USD/year".
func ComputeSavingsLabel(plan PlanConfig, interval BillingInterval) (string, bool) {
	saving, ok := ComputeSavings(plan, interval)
	if !ok {
		return "", false
	}
	return "Save " + FormatAmount(saving, plan.Currency) + "/year", true
}

// FormatAmount renders an amount in the smallest currency unit as
// "1,234.50 USD" using English digit grouping.
func FormatAmount(amount int64, code string) string {
	code = strings.ToUpper(code)
	scale := 2
	if unit, err := currency.ParseISO(code); err == nil {
		scale, _ = currency.Standard.Rounding(unit)
	}

	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	div := int64(1)
	for range scale {
		div *= 10
	}

	p := message.NewPrinter(language.English)
	major := p.Sprintf("%d", amount/div)
	if scale == 0 {
		return fmt.Sprintf("%s%s %s", sign, major, code)
	}
	return fmt.Sprintf("%s%s.%0*d %s", sign, major, scale, amount%div, code)
}

func clampPercent(v int) int {
	return min(max(v, 0), 100)
}
