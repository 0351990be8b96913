package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/billingkit/pkg/cache"
	"github.com/dmitrymomot/billingkit/pkg/checkout"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/metrics"
	"github.com/dmitrymomot/billingkit/pkg/notifications"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/renewal"
)

// Deps are shared by every Session. Catalog, Registry, Builder and Renewal
// are required.
type Deps struct {
	Catalog     *payment.Catalog
	Registry    *payment.Registry
	Preferences payment.PreferenceStore
	Builder     *payment.Builder
	Renewal     *renewal.Manager
	Cache       *cache.Client
	Notifier    notifications.Notifier
	Navigator   payment.Navigator
	Metrics     *metrics.Collector
	Logger      *slog.Logger
}

// Session is the billing surface of one user session.
type Session struct {
	deps        Deps
	user        *payment.User
	coordinator *checkout.Coordinator
	log         *slog.Logger
}

// NewSession binds deps to user. A nil user is a signed-out visitor. It
// panics when a required dependency is missing.
func NewSession(deps Deps, user *payment.User) *Session {
	switch {
	case deps.Catalog == nil:
		panic("billing: catalog is required")
	case deps.Registry == nil:
		panic("billing: registry is required")
	case deps.Builder == nil:
		panic("billing: checkout builder is required")
	case deps.Renewal == nil:
		panic("billing: renewal manager is required")
	}
	if deps.Preferences == nil {
		deps.Preferences = payment.NewMemoryPreferences()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NoOpNotifier{}
	}
	if deps.Navigator == nil {
		deps.Navigator = deps.Builder.Navigator()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	log := deps.Logger.With(logger.Component("billing"))
	if user != nil {
		log = log.With(logger.UserID(user.ID))
	}
	return &Session{
		deps: deps,
		user: user,
		coordinator: checkout.New(deps.Builder,
			checkout.WithNavigator(deps.Navigator),
			checkout.WithNotifier(deps.Notifier),
			checkout.WithLogger(deps.Logger),
			checkout.WithMetrics(deps.Metrics),
		),
		log: log,
	}
}

// User returns the session's user, or nil when signed out.
func (s *Session) User() *payment.User { return s.user }

// SignedIn reports whether the session has an identity.
func (s *Session) SignedIn() bool { return s.user != nil && s.user.ID != "" }

// ActiveProvider resolves the user's explicit choice against the configured
// providers, falling back to the first configured one.
func (s *Session) ActiveProvider() (payment.Provider, bool) {
	var selected payment.Provider
	if s.SignedIn() {
		selected = s.deps.Preferences.Selected(s.user.ID)
	}
	return s.deps.Registry.GetActive(selected)
}

// SelectProvider stores the user's provider choice. The provider must be
// configured. Read-models that depend on the provider are invalidated.
func (s *Session) SelectProvider(ctx context.Context, p payment.Provider) error {
	if !s.SignedIn() {
		return payment.ErrMissingIdentity
	}
	if !p.Valid() {
		return fmt.Errorf("%w: %q", payment.ErrUnknownProvider, p)
	}
	if !s.deps.Registry.IsConfigured(p) {
		return fmt.Errorf("%w: %s", payment.ErrProviderUnavailable, p)
	}
	if err := s.deps.Preferences.Select(s.user.ID, p); err != nil {
		return err
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Invalidate(ctx, cache.DependentsOf(s.user.ID)...); err != nil {
			s.log.WarnContext(ctx, "invalidate after provider change", logger.Error(err))
		}
	}
	s.log.InfoContext(ctx, "payment provider selected", logger.Provider(p))
	return nil
}

// Offer prices one plan for display and reports whether it can be bought.
func (s *Session) Offer(planID string, interval payment.BillingInterval) (Offer, error) {
	plan, err := s.deps.Catalog.Get(planID)
	if err != nil {
		return Offer{}, err
	}
	return s.offer(plan, interval), nil
}

// Offers prices every plan of the catalog.
func (s *Session) Offers(interval payment.BillingInterval) []Offer {
	plans := s.deps.Catalog.List()
	out := make([]Offer, 0, len(plans))
	for _, p := range plans {
		out = append(out, s.offer(p, interval))
	}
	return out
}

func (s *Session) offer(plan payment.PlanConfig, interval payment.BillingInterval) Offer {
	p, _ := s.ActiveProvider()
	if p != "" && !s.deps.Builder.Supports(p) {
		p = ""
	}
	o := BuildOffer(plan, interval, p, s.SignedIn())
	if o.Buy.Enabled && s.coordinator.Current().Pending(plan.ID) {
		o.Buy = BuyAction{Reason: ReasonPending, Pending: true}
	}
	return o
}

// Checkout starts a checkout for planID. A signed-out visitor is sent to
// sign-in and the handle resolves with payment.ErrMissingIdentity. Plans that
// cannot be bought right now return an error without touching the pending
// attempt.
func (s *Session) Checkout(ctx context.Context, planID string, interval payment.BillingInterval, embedded bool) (*checkout.Handle, error) {
	plan, err := s.deps.Catalog.Get(planID)
	if err != nil {
		return nil, err
	}
	req := payment.CheckoutRequest{
		Plan:     plan,
		User:     s.user,
		Interval: interval,
		Embedded: embedded,
	}
	if !s.SignedIn() {
		req.User = nil
		return s.coordinator.Start(ctx, req), nil
	}

	p, ok := s.ActiveProvider()
	if !ok || !s.deps.Builder.Supports(p) {
		s.log.DebugContext(ctx, "checkout without an available provider", logger.PlanID(planID))
		return nil, payment.ErrProviderUnavailable
	}
	if !plan.Purchasable(p) {
		s.log.DebugContext(ctx, "plan not sold by provider", logger.PlanID(planID), logger.Provider(p))
		return nil, fmt.Errorf("%w: plan %q has no %s identifier", payment.ErrMissingProductMapping, planID, p)
	}
	req.Provider = p
	return s.coordinator.Start(ctx, req), nil
}

// CheckoutState returns the coordinator snapshot for rendering.
func (s *Session) CheckoutState() checkout.Snapshot { return s.coordinator.Current() }

// OnCheckoutChange registers a listener for coordinator state changes.
func (s *Session) OnCheckoutChange(fn func(checkout.Snapshot)) { s.coordinator.OnChange(fn) }

// CancelCheckout abandons the pending checkout, if any.
func (s *Session) CancelCheckout(reason string) bool { return s.coordinator.Cancel(reason) }

// RenewalStatus reads the renewal status of one of the user's subscriptions.
func (s *Session) RenewalStatus(ctx context.Context, subscriptionID string) (renewal.Status, error) {
	if !s.SignedIn() {
		return renewal.Status{}, payment.ErrMissingIdentity
	}
	return s.deps.Renewal.GetStatus(ctx, s.user.ID, subscriptionID)
}

// SetAutoRenewal toggles auto-renewal optimistically.
func (s *Session) SetAutoRenewal(ctx context.Context, subscriptionID string, enabled bool) (renewal.Status, error) {
	if !s.SignedIn() {
		if err := s.deps.Navigator.RedirectToSignIn(ctx); err != nil {
			s.log.WarnContext(ctx, "redirect to sign-in", logger.Error(err))
		}
		return renewal.Status{}, payment.ErrMissingIdentity
	}
	return s.deps.Renewal.SetAutoRenewal(ctx, s.user.ID, subscriptionID, enabled)
}

// Close abandons a pending checkout and waits for in-flight provider calls.
func (s *Session) Close(ctx context.Context) error {
	s.coordinator.Cancel("session closed")
	return s.coordinator.Drain(ctx)
}
