package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-cleanhttp"

	"github.com/dmitrymomot/billingkit/pkg/binder"
	"github.com/dmitrymomot/billingkit/pkg/cache"
	"github.com/dmitrymomot/billingkit/pkg/handler"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/renewal"
)

// IdentityFunc returns the signed-in user of r, or nil.
type IdentityFunc func(r *http.Request) *payment.User

// RouterOptions wires the billing endpoints. Catalog, Registry and Identity
// are required; the checkout route is mounted only when Builder is set and
// the subscription routes only when Manager or Renewal is.
type RouterOptions struct {
	Catalog  *payment.Catalog
	Registry *payment.Registry
	// Preferences should be the store Manager reads, so both agree on the
	// active provider.
	Preferences payment.PreferenceStore
	Builder     *payment.Builder
	// Manager serves subscription requests for the user's active provider,
	// from cache while fresh.
	Manager *renewal.Manager
	// Renewal serves requests naming any other provider, uncached.
	Renewal renewal.Remote
	// Cache, when set, has the user's dependent read-models invalidated on
	// a provider change.
	Cache    *cache.Client
	Identity IdentityFunc
	Logger   *slog.Logger
	// CheckoutMiddleware runs in front of POST /checkout only, e.g. a
	// ratelimiter.Middleware.
	CheckoutMiddleware []func(http.Handler) http.Handler
}

// Router returns the billing module:
//
//	GET   /plans?interval=yearly
//	GET   /provider
//	PUT   /provider                {"provider"}
//	POST  /checkout                {"plan_id", "interval", "provider", "embedded"}
//	GET   /subscriptions/{id}?provider=stripe
//	PATCH /subscriptions/{id}      {"enabled", "provider"}
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/billing", billing.Router(billing.RouterOptions{
//		Catalog:  catalog,
//		Registry: registry,
//		Builder:  builder,
//		Manager:  renewal.NewManager(gateway, registry, events),
//		Renewal:  gateway,
//		Identity: session.User,
//	}))
func Router(opts RouterOptions) chi.Router {
	switch {
	case opts.Catalog == nil:
		panic("billing: catalog is required")
	case opts.Registry == nil:
		panic("billing: registry is required")
	case opts.Identity == nil:
		panic("billing: identity func is required")
	}
	if opts.Preferences == nil {
		opts.Preferences = payment.NewMemoryPreferences()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	opts.Logger = opts.Logger.With(logger.Component("billing-http"))

	h := &handlers{RouterOptions: opts}
	errs := handler.WithErrorHandler(handler.NewErrorHandler(opts.Logger))

	r := chi.NewRouter()
	// Path parameters are forwarded to provider APIs.
	r.Use(func(next http.Handler) http.Handler { return cleanhttp.PrintablePathCheckHandler(next, nil) })
	r.Get("/plans", handler.Wrap(h.plans, handler.WithBinders(binder.Query()), errs))
	r.Get("/provider", handler.Wrap(h.activeProvider, errs))
	r.Put("/provider", handler.Wrap(h.selectProvider, handler.WithBinders(binder.JSON()), errs))
	if opts.Builder != nil {
		r.With(opts.CheckoutMiddleware...).Post("/checkout", handler.Wrap(h.checkout, handler.WithBinders(binder.JSON()), errs))
	}
	if opts.Manager != nil || opts.Renewal != nil {
		r.Get("/subscriptions/{id}", handler.Wrap(h.renewalStatus,
			handler.WithBinders(binder.Path(chi.URLParam), binder.Query()), errs))
		r.Patch("/subscriptions/{id}", handler.Wrap(h.setRenewal,
			handler.WithBinders(binder.Path(chi.URLParam), binder.JSON()), errs))
	}
	return r
}
