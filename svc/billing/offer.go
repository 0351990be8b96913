package billing

import (
	"fmt"

	"github.com/dmitrymomot/billingkit/pkg/payment"
)

// Reasons shown next to a disabled buy button.
const (
	ReasonUnavailable = "Checkout is currently unavailable."
	ReasonSignIn      = "Sign in to subscribe."
	ReasonPending     = "Opening checkout..."
)

// BuyAction describes the state of a plan's buy button.
type BuyAction struct {
	Enabled        bool   `json:"enabled"`
	Reason         string `json:"reason,omitempty"`
	SignInRequired bool   `json:"sign_in_required,omitempty"`
	Pending        bool   `json:"pending,omitempty"`
}

// Offer is one plan priced for display.
type Offer struct {
	PlanID       string                  `json:"plan_id"`
	Name         string                  `json:"name"`
	Description  string                  `json:"description,omitempty"`
	Features     []string                `json:"features,omitempty"`
	Interval     payment.BillingInterval `json:"interval"`
	Price        int64                   `json:"price"`
	Currency     string                  `json:"currency"`
	DisplayPrice string                  `json:"display_price"`
	SavingsLabel string                  `json:"savings_label,omitempty"`
	Provider     payment.Provider        `json:"provider,omitempty"`
	Buy          BuyAction               `json:"buy"`
}

// BuildOffer prices plan for interval and decides whether it can be bought
// through provider. An empty provider means none is active.
func BuildOffer(plan payment.PlanConfig, interval payment.BillingInterval, provider payment.Provider, signedIn bool) Offer {
	price := payment.ComputePrice(plan, interval)
	o := Offer{
		PlanID:       plan.ID,
		Name:         plan.Name,
		Description:  plan.Description,
		Features:     plan.Features,
		Interval:     interval,
		Price:        price,
		Currency:     plan.Currency,
		DisplayPrice: payment.FormatAmount(price, plan.Currency),
		Provider:     provider,
	}
	if label, ok := payment.ComputeSavingsLabel(plan, interval); ok {
		o.SavingsLabel = label
	}

	switch {
	case provider == "":
		o.Buy = BuyAction{Reason: ReasonUnavailable}
	case !plan.Purchasable(provider):
		o.Buy = BuyAction{Reason: fmt.Sprintf("%s is not available with %s.", plan.Name, provider)}
	case !signedIn:
		o.Buy = BuyAction{Reason: ReasonSignIn, SignInRequired: true}
	default:
		o.Buy = BuyAction{Enabled: true}
	}
	return o
}

// BuildOffers prices every plan of the catalog in catalog order.
func BuildOffers(catalog *payment.Catalog, interval payment.BillingInterval, provider payment.Provider, signedIn bool) []Offer {
	plans := catalog.List()
	offers := make([]Offer, 0, len(plans))
	for _, p := range plans {
		offers = append(offers, BuildOffer(p, interval, provider, signedIn))
	}
	return offers
}
