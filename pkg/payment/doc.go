// Package payment resolves the active payment provider, computes plan prices,
// classifies remote failures and builds provider-specific checkout sessions.
//
// Providers are matched once at the [Builder] boundary: every backend
// implements [Adapter], and optionally [RenewalAdapter] for auto-renewal
// toggles. Callers never branch on the provider themselves.
//
// Basic usage:
//
//	reg := payment.NewRegistry(cfg.Availability())
//	active, ok := reg.GetActive(selected)
//	if !ok {
//		// checkout unavailable: disable the buy action
//	}
//
//	builder := payment.NewBuilder([]payment.Adapter{stripeAdapter},
//		payment.WithNotifier(notifier),
//		payment.WithEvents(cacheClient),
//	)
//	res, err := builder.Initiate(ctx, payment.CheckoutRequest{
//		Plan:     plan,
//		User:     user,
//		Interval: payment.IntervalYearly,
//		Provider: active,
//	})
//
// Prices are integers in the smallest currency unit. Yearly prices apply the
// plan's annual discount with a single half-up rounding step.
package payment
