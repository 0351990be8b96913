package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/cache"
	"github.com/dmitrymomot/billingkit/pkg/notifications"
	"github.com/dmitrymomot/billingkit/pkg/payment"
)

type fakeAdapter struct {
	provider payment.Provider

	mu    sync.Mutex
	calls []payment.AdapterRequest
	fn    func(call int, req payment.AdapterRequest) (*payment.CheckoutResult, error)
}

func (f *fakeAdapter) Provider() payment.Provider { return f.provider }

func (f *fakeAdapter) CreateCheckout(_ context.Context, req payment.AdapterRequest) (*payment.CheckoutResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()
	return f.fn(n, req)
}

func (f *fakeAdapter) Calls() []payment.AdapterRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]payment.AdapterRequest(nil), f.calls...)
}

type recordingNavigator struct {
	mu        sync.Mutex
	redirects []string
	signIns   int
}

func (n *recordingNavigator) Redirect(_ context.Context, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects = append(n.redirects, url)
	return nil
}

func (n *recordingNavigator) RedirectToSignIn(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signIns++
	return nil
}

type recordingInvalidator struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, keys...)
	return nil
}

var proPlan = payment.PlanConfig{
	ID:                    "pro",
	Name:                  "Pro",
	BasePrice:             2000,
	Currency:              "USD",
	AnnualDiscountPercent: pct(10),
	StripePriceID:         "price_x",
}

var alice = &payment.User{ID: "u1", Email: "alice@example.com", Name: "Alice"}

type builderFixture struct {
	adapter   *fakeAdapter
	notifier  *notifications.MemoryNotifier
	navigator *recordingNavigator
	events    *recordingInvalidator
	builder   *payment.Builder
}

func newBuilderFixture(fn func(int, payment.AdapterRequest) (*payment.CheckoutResult, error)) *builderFixture {
	f := &builderFixture{
		adapter:   &fakeAdapter{provider: payment.ProviderStripe, fn: fn},
		notifier:  notifications.NewMemoryNotifier(),
		navigator: &recordingNavigator{},
		events:    &recordingInvalidator{},
	}
	f.builder = payment.NewBuilder([]payment.Adapter{f.adapter},
		payment.WithRetryPolicy(payment.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
		payment.WithNotifier(f.notifier),
		payment.WithNavigator(f.navigator),
		payment.WithEvents(f.events),
	)
	return f
}

func redirectTo(url string) func(int, payment.AdapterRequest) (*payment.CheckoutResult, error) {
	return func(int, payment.AdapterRequest) (*payment.CheckoutResult, error) {
		return &payment.CheckoutResult{RedirectURL: url, SessionID: "cs_1"}, nil
	}
}

func TestBuilderInitiate(t *testing.T) {
	t.Parallel()

	t.Run("success redirects notifies and invalidates", func(t *testing.T) {
		t.Parallel()
		f := newBuilderFixture(redirectTo("https://checkout.stripe.com/c/cs_1"))

		res, err := f.builder.Initiate(context.Background(), payment.CheckoutRequest{
			Plan:     proPlan,
			User:     alice,
			Interval: payment.IntervalYearly,
			Provider: payment.ProviderStripe,
		})
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.stripe.com/c/cs_1", res.RedirectURL)
		assert.Equal(t, payment.ProviderStripe, res.Provider)
		assert.False(t, res.IsEmbedded())

		calls := f.adapter.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "price_x", calls[0].ProductID)
		assert.Equal(t, map[string]string{"plan_id": "pro", "user_id": "u1", "interval": "yearly"}, calls[0].Metadata)

		assert.Equal(t, []string{"https://checkout.stripe.com/c/cs_1"}, f.navigator.redirects)
		assert.Equal(t, 1, f.notifier.Count(notifications.TypeSuccess))
		assert.ElementsMatch(t, cache.DependentsOf("u1"), f.events.keys)
	})

	t.Run("create defers effects until complete", func(t *testing.T) {
		t.Parallel()
		f := newBuilderFixture(redirectTo("https://checkout.stripe.com/c/cs_1"))
		req := payment.CheckoutRequest{Plan: proPlan, User: alice, Provider: payment.ProviderStripe}

		res, err := f.builder.Create(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.stripe.com/c/cs_1", res.RedirectURL)
		assert.Empty(t, f.navigator.redirects)
		assert.Equal(t, 0, f.notifier.Count(notifications.TypeSuccess))
		assert.Empty(t, f.events.keys)

		f.builder.Complete(context.Background(), req, res)
		assert.Equal(t, []string{"https://checkout.stripe.com/c/cs_1"}, f.navigator.redirects)
		assert.Equal(t, 1, f.notifier.Count(notifications.TypeSuccess))
		assert.ElementsMatch(t, cache.DependentsOf("u1"), f.events.keys)
	})

	t.Run("embedded result is not navigated", func(t *testing.T) {
		t.Parallel()
		f := newBuilderFixture(func(int, payment.AdapterRequest) (*payment.CheckoutResult, error) {
			return &payment.CheckoutResult{SessionHandle: "cs_secret"}, nil
		})
		res, err := f.builder.Initiate(context.Background(), payment.CheckoutRequest{
			Plan: proPlan, User: alice, Provider: payment.ProviderStripe, Embedded: true,
		})
		require.NoError(t, err)
		assert.True(t, res.IsEmbedded())
		assert.True(t, f.adapter.Calls()[0].Embedded)
		assert.Empty(t, f.navigator.redirects)
	})

	t.Run("signed out user never reaches the network", func(t *testing.T) {
		t.Parallel()
		f := newBuilderFixture(redirectTo("x"))
		_, err := f.builder.Initiate(context.Background(), payment.CheckoutRequest{Plan: proPlan, Provider: payment.ProviderStripe})
		assert.ErrorIs(t, err, payment.ErrMissingIdentity)
		assert.Empty(t, f.adapter.Calls())
		assert.Empty(t, f.notifier.All())
	})

	t.Run("missing product mapping never reaches the network", func(t *testing.T) {
		t.Parallel()
		f := newBuilderFixture(redirectTo("x"))
		plan := proPlan
		plan.StripePriceID = ""
		_, err := f.builder.Initiate(context.Background(), payment.CheckoutRequest{Plan: plan, User: alice, Provider: payment.ProviderStripe})
		assert.ErrorIs(t, err, payment.ErrMissingProductMapping)
		assert.Equal(t, payment.KindMissingProductMapping, payment.Classify(err))
		assert.Empty(t, f.adapter.Calls())
		assert.Empty(t, f.events.keys)
	})

	t.Run("unregistered provider is unavailable", func(t *testing.T) {
		t.Parallel()
		f := newBuilderFixture(redirectTo("x"))
		_, err := f.builder.Initiate(context.Background(), payment.CheckoutRequest{Plan: proPlan, User: alice, Provider: payment.ProviderPolar})
		assert.ErrorIs(t, err, payment.ErrProviderUnavailable)

		_, err = f.builder.Initiate(context.Background(), payment.CheckoutRequest{Plan: proPlan, User: alice})
		assert.ErrorIs(t, err, payment.ErrProviderUnavailable)
		assert.Empty(t, f.adapter.Calls())
	})

	t.Run("transient failure is retried then surfaced", func(t *testing.T) {
		t.Parallel()
		f := newBuilderFixture(func(int, payment.AdapterRequest) (*payment.CheckoutResult, error) {
			return nil, payment.NewRemoteError(payment.ProviderStripe, "create checkout", 502, "", nil)
		})
		_, err := f.builder.Initiate(context.Background(), payment.CheckoutRequest{Plan: proPlan, User: alice, Provider: payment.ProviderStripe})
		assert.ErrorIs(t, err, payment.ErrTransient)
		assert.Len(t, f.adapter.Calls(), 2)
		assert.Equal(t, 1, f.notifier.Count(notifications.TypeError))
		assert.Empty(t, f.events.keys, "failures never touch the cache")
		assert.Empty(t, f.navigator.redirects)
	})

	t.Run("transient failure recovers on second attempt", func(t *testing.T) {
		t.Parallel()
		f := newBuilderFixture(func(n int, _ payment.AdapterRequest) (*payment.CheckoutResult, error) {
			if n == 1 {
				return nil, errors.New("connection reset")
			}
			return &payment.CheckoutResult{RedirectURL: "https://pay/ok"}, nil
		})
		res, err := f.builder.Initiate(context.Background(), payment.CheckoutRequest{Plan: proPlan, User: alice, Provider: payment.ProviderStripe})
		require.NoError(t, err)
		assert.Equal(t, "https://pay/ok", res.RedirectURL)
		assert.Equal(t, 0, f.notifier.Count(notifications.TypeError))
	})

	t.Run("unauthorized is not retried", func(t *testing.T) {
		t.Parallel()
		f := newBuilderFixture(func(int, payment.AdapterRequest) (*payment.CheckoutResult, error) {
			return nil, payment.NewRemoteError(payment.ProviderStripe, "create checkout", 401, "", nil)
		})
		_, err := f.builder.Initiate(context.Background(), payment.CheckoutRequest{Plan: proPlan, User: alice, Provider: payment.ProviderStripe})
		assert.Equal(t, payment.KindUnauthorized, payment.Classify(err))
		assert.Len(t, f.adapter.Calls(), 1)
	})

	t.Run("result without target is rejected", func(t *testing.T) {
		t.Parallel()
		f := newBuilderFixture(func(int, payment.AdapterRequest) (*payment.CheckoutResult, error) {
			return &payment.CheckoutResult{SessionID: "cs_1"}, nil
		})
		_, err := f.builder.Initiate(context.Background(), payment.CheckoutRequest{Plan: proPlan, User: alice, Provider: payment.ProviderStripe})
		assert.ErrorIs(t, err, payment.ErrRemoteRejected)
		assert.Len(t, f.adapter.Calls(), 1)
		assert.Equal(t, 1, f.notifier.Count(notifications.TypeError))
	})

	t.Run("caller metadata is kept", func(t *testing.T) {
		t.Parallel()
		f := newBuilderFixture(redirectTo("https://pay"))
		_, err := f.builder.Initiate(context.Background(), payment.CheckoutRequest{
			Plan: proPlan, User: alice, Provider: payment.ProviderStripe,
			Metadata: map[string]string{"campaign": "spring", "plan_id": "spoofed"},
		})
		require.NoError(t, err)
		md := f.adapter.Calls()[0].Metadata
		assert.Equal(t, "spring", md["campaign"])
		assert.Equal(t, "pro", md["plan_id"])
		assert.Equal(t, "monthly", md["interval"])
	})
}

func TestNewBuilderPanics(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{provider: payment.ProviderStripe}
	assert.Panics(t, func() { payment.NewBuilder([]payment.Adapter{a, a}) })
	assert.Panics(t, func() { payment.NewBuilder([]payment.Adapter{nil}) })
	assert.True(t, payment.NewBuilder([]payment.Adapter{a}).Supports(payment.ProviderStripe))
}
