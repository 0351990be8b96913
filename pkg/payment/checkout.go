package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/cache"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/metrics"
	"github.com/dmitrymomot/billingkit/pkg/notifications"
)

// User is the signed-in identity supplied by the session layer.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

// CheckoutRequest asks for a payable session for one plan. A nil User means
// the visitor is signed out.
type CheckoutRequest struct {
	Plan       PlanConfig
	User       *User
	Interval   BillingInterval
	Provider   Provider
	Embedded   bool
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// AdapterRequest is what a provider adapter receives after validation.
type AdapterRequest struct {
	ProductID  string
	PlanID     string
	User       User
	Interval   BillingInterval
	Embedded   bool
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CheckoutResult carries either a redirect target or an embedded session handle.
type CheckoutResult struct {
	Provider      Provider `json:"provider"`
	RedirectURL   string   `json:"redirect_url,omitempty"`
	SessionHandle string   `json:"session_handle,omitempty"`
	SessionID     string   `json:"session_id,omitempty"`
}

// IsEmbedded reports whether the result should be mounted inline.
func (r *CheckoutResult) IsEmbedded() bool { return r != nil && r.SessionHandle != "" }

func (r *CheckoutResult) usable() bool {
	return r != nil && (r.RedirectURL != "" || r.SessionHandle != "")
}

// Adapter creates checkout sessions with one provider.
type Adapter interface {
	Provider() Provider
	CreateCheckout(ctx context.Context, req AdapterRequest) (*CheckoutResult, error)
}

// RenewalState is a provider's view of a subscription's renewal settings.
type RenewalState struct {
	SubscriptionID    string
	AutoRenewal       bool
	CancelAtPeriodEnd bool
	EndDate           *time.Time
}

// RenewalAdapter reads and toggles auto-renewal with one provider.
type RenewalAdapter interface {
	Provider() Provider
	GetRenewal(ctx context.Context, subscriptionID string) (RenewalState, error)
	SetRenewal(ctx context.Context, subscriptionID string, enabled bool) (RenewalState, error)
}

// Navigator performs browser navigation side effects.
type Navigator interface {
	Redirect(ctx context.Context, url string) error
	RedirectToSignIn(ctx context.Context) error
}

// NopNavigator ignores navigation requests.
type NopNavigator struct{}

func (NopNavigator) Redirect(context.Context, string) error { return nil }
func (NopNavigator) RedirectToSignIn(context.Context) error { return nil }

// Invalidator marks dependent read-models stale after a successful checkout.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// Builder validates checkout requests and dispatches them to the adapter of
// the requested provider.
type Builder struct {
	adapters  map[Provider]Adapter
	retry     RetryPolicy
	notifier  notifications.Notifier
	events    Invalidator
	navigator Navigator
	log       *slog.Logger
	metrics   *metrics.Collector
	now       func() time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

func WithRetryPolicy(p RetryPolicy) BuilderOption {
	return func(b *Builder) { b.retry = p }
}

func WithNotifier(n notifications.Notifier) BuilderOption {
	return func(b *Builder) {
		if n != nil {
			b.notifier = n
		}
	}
}

// WithEvents sets the sink that is told which read-models a successful
// checkout made stale.
func WithEvents(inv Invalidator) BuilderOption {
	return func(b *Builder) { b.events = inv }
}

func WithNavigator(n Navigator) BuilderOption {
	return func(b *Builder) {
		if n != nil {
			b.navigator = n
		}
	}
}

func WithLogger(log *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if log != nil {
			b.log = log
		}
	}
}

func WithMetrics(m *metrics.Collector) BuilderOption {
	return func(b *Builder) { b.metrics = m }
}

// NewBuilder registers the adapters. It panics on a nil adapter or when two
// adapters claim the same provider.
func NewBuilder(adapters []Adapter, opts ...BuilderOption) *Builder {
	b := &Builder{
		adapters:  make(map[Provider]Adapter, len(adapters)),
		retry:     CheckoutRetryPolicy(),
		notifier:  notifications.NoOpNotifier{},
		navigator: NopNavigator{},
		log:       logger.Nop(),
		now:       time.Now,
	}
	for _, a := range adapters {
		if a == nil {
			panic("payment: nil checkout adapter")
		}
		if _, dup := b.adapters[a.Provider()]; dup {
			panic(fmt.Sprintf("payment: duplicate adapter for %s", a.Provider()))
		}
		b.adapters[a.Provider()] = a
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With(logger.Component("checkout-builder"))
	return b
}

// Supports reports whether an adapter is registered for p.
func (b *Builder) Supports(p Provider) bool {
	_, ok := b.adapters[p]
	return ok
}

// Navigator returns the navigator the builder uses for side effects.
func (b *Builder) Navigator() Navigator { return b.navigator }

// Validate runs the checks that need no network call and returns the
// request the adapter would receive.
func (b *Builder) Validate(req CheckoutRequest) (Adapter, AdapterRequest, error) {
	if req.User == nil || req.User.ID == "" {
		return nil, AdapterRequest{}, ErrMissingIdentity
	}
	if req.Provider == "" {
		return nil, AdapterRequest{}, ErrProviderUnavailable
	}
	a, ok := b.adapters[req.Provider]
	if !ok {
		return nil, AdapterRequest{}, fmt.Errorf("%w: %s", ErrProviderUnavailable, req.Provider)
	}
	productID := req.Plan.ProductID(req.Provider)
	if productID == "" {
		return nil, AdapterRequest{}, fmt.Errorf("%w: plan %q has no %s identifier",
			ErrMissingProductMapping, req.Plan.ID, req.Provider)
	}
	interval := req.Interval
	if interval == "" {
		interval = IntervalMonthly
	}

	md := make(map[string]string, len(req.Metadata)+3)
	maps.Copy(md, req.Metadata)
	md["plan_id"] = req.Plan.ID
	md["user_id"] = req.User.ID
	md["interval"] = interval.String()

	return a, AdapterRequest{
		ProductID:  productID,
		PlanID:     req.Plan.ID,
		User:       *req.User,
		Interval:   interval,
		Embedded:   req.Embedded,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Metadata:   md,
	}, nil
}

// Initiate creates a checkout session and completes it. On success it
// navigates to the redirect target (unless the result is embedded), notifies
// the user and marks dependent read-models stale. Remote failures notify the
// user and leave every cache untouched. Precondition failures are returned
// without any side effect.
func (b *Builder) Initiate(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	res, err := b.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	b.Complete(ctx, req, res)
	return res, nil
}

// Create validates req and asks the provider for a session, retrying
// transient failures. Failures are reported as in Initiate. A successful
// result has no effect until Complete is called with it, so a caller can
// still drop it.
func (b *Builder) Create(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	userID := ""
	if req.User != nil {
		userID = req.User.ID
	}
	log := b.log.With(logger.UserID(userID), logger.Provider(req.Provider), logger.PlanID(req.Plan.ID))
	started := b.now()

	adapter, areq, err := b.Validate(req)
	if err != nil {
		// Expected state: the caller disables the buy action inline.
		log.DebugContext(ctx, "checkout precondition failed", logger.Error(err))
		return nil, err
	}

	policy := b.retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		b.metrics.Retry("checkout")
		log.InfoContext(ctx, "retrying checkout", logger.RetryCount(attempt), logger.Error(err), logger.Duration(delay))
	})

	var res *CheckoutResult
	err = policy.Do(ctx, func(ctx context.Context) error {
		r, err := adapter.CreateCheckout(ctx, areq)
		if err != nil {
			return err
		}
		if !r.usable() {
			return Rejected(req.Provider, "create checkout", "no redirect target returned")
		}
		res = r
		return nil
	})
	elapsed := b.now().Sub(started).Seconds()
	if err != nil {
		kind := Classify(err)
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			log.DebugContext(ctx, "checkout abandoned", logger.Error(err))
			return nil, err
		}
		log.WarnContext(ctx, "checkout failed", logger.Error(err), slog.String("kind", kind.String()))
		b.metrics.RemoteFailure(req.Provider.String(), kind.String())
		b.metrics.CheckoutAttempt(req.Provider.String(), metrics.OutcomeError, elapsed)
		b.notifyFailure(ctx, userID, err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		// Abandoned while in flight: the session may exist remotely but stays unused.
		log.DebugContext(ctx, "discarding checkout result of abandoned attempt", logger.Error(err))
		return nil, err
	}
	if res.Provider == "" {
		res.Provider = req.Provider
	}

	b.metrics.CheckoutAttempt(req.Provider.String(), metrics.OutcomeSuccess, elapsed)
	log.InfoContext(ctx, "checkout session created", slog.String("session_id", res.SessionID), slog.Bool("embedded", res.IsEmbedded()))
	return res, nil
}

// Complete runs the success effects of a result returned by Create.
func (b *Builder) Complete(ctx context.Context, req CheckoutRequest, res *CheckoutResult) {
	userID := ""
	if req.User != nil {
		userID = req.User.ID
	}
	log := b.log.With(logger.UserID(userID), logger.Provider(req.Provider), logger.PlanID(req.Plan.ID))

	if !res.IsEmbedded() {
		if err := b.navigator.Redirect(ctx, res.RedirectURL); err != nil {
			log.WarnContext(ctx, "checkout redirect failed", logger.Error(err))
		}
	}
	if b.events != nil {
		if err := b.events.Invalidate(ctx, cache.DependentsOf(userID)...); err != nil {
			log.WarnContext(ctx, "invalidate read-models after checkout", logger.Error(err))
		}
	}
	b.notify(ctx, notifications.Success(userID, "Checkout session created.").
		With("provider", req.Provider.String()).
		With("plan_id", req.Plan.ID))
}

func (b *Builder) notifyFailure(ctx context.Context, userID string, err error) {
	n := notifications.Error(userID, UserMessage(err)).With("kind", Classify(err).String())
	b.notify(ctx, n)
}

func (b *Builder) notify(ctx context.Context, n notifications.Notification) {
	if err := b.notifier.Notify(ctx, n); err != nil {
		b.log.WarnContext(ctx, "send notification", logger.Error(err))
	}
}

// RedirectURLs are the default return targets used when a request names none.
type RedirectURLs struct {
	Success string
	Cancel  string
}

func (u RedirectURLs) success(req AdapterRequest) string {
	if req.SuccessURL != "" {
		return req.SuccessURL
	}
	return u.Success
}

func (u RedirectURLs) cancel(req AdapterRequest) string {
	if req.CancelURL != "" {
		return req.CancelURL
	}
	return u.Cancel
}
