package renewal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billingkit/pkg/cache"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/metrics"
	"github.com/dmitrymomot/billingkit/pkg/notifications"
	"github.com/dmitrymomot/billingkit/pkg/payment"
)

// DefaultStaleTime is how long a fetched status is served without a network call.
const DefaultStaleTime = 5 * time.Minute

// OutOfDateMessage is shown when neither the toggle nor the reconciling
// fetch could be confirmed.
const OutOfDateMessage = "Subscription status may be out of date, please refresh."

// Manager owns the cached renewal read-models.
type Manager struct {
	remote    Remote
	registry  *payment.Registry
	cache     *cache.Client
	prefs     payment.PreferenceStore
	staleTime time.Duration
	retry     payment.RetryPolicy
	notifier  notifications.Notifier
	log       *slog.Logger
	metrics   *metrics.Collector
}

// Option configures a Manager.
type Option func(*Manager)

func WithStaleTime(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.staleTime = d
		}
	}
}

func WithRetryPolicy(p payment.RetryPolicy) Option {
	return func(m *Manager) { m.retry = p }
}

func WithNotifier(n notifications.Notifier) Option {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithPreferences sets where a user's explicit provider choice is read from.
func WithPreferences(p payment.PreferenceStore) Option {
	return func(m *Manager) { m.prefs = p }
}

// NewManager panics if any collaborator is nil.
func NewManager(remote Remote, registry *payment.Registry, c *cache.Client, opts ...Option) *Manager {
	if remote == nil {
		panic("renewal: remote is required")
	}
	if registry == nil {
		panic("renewal: registry is required")
	}
	if c == nil {
		panic("renewal: cache client is required")
	}
	m := &Manager{
		remote:    remote,
		registry:  registry,
		cache:     c,
		staleTime: DefaultStaleTime,
		retry:     payment.RenewalRetryPolicy(),
		notifier:  notifications.NoOpNotifier{},
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("renewal"))
	return m
}

// ActiveProvider resolves the provider renewal calls go to for userID.
func (m *Manager) ActiveProvider(userID string) (payment.Provider, error) {
	var selected payment.Provider
	if m.prefs != nil {
		selected = m.prefs.Selected(userID)
	}
	p, ok := m.registry.GetActive(selected)
	if !ok {
		return "", payment.ErrProviderUnavailable
	}
	return p, nil
}

// GetStatus returns the renewal status, from cache while fresh. Concurrent
// reads of the same key share one fetch. Unauthorized and not-found failures
// are not retried.
func (m *Manager) GetStatus(ctx context.Context, userID, subscriptionID string) (Status, error) {
	p, err := m.ActiveProvider(userID)
	if err != nil {
		return Status{}, err
	}
	key := cache.KeyRenewal(p.String(), subscriptionID)
	return cache.Fetch(ctx, m.cache, key, m.staleTime, func(ctx context.Context) (Status, error) {
		return m.fetch(ctx, p, subscriptionID)
	})
}

// Cached returns what a UI would render right now for the subscription,
// including the optimistic overlay of an in-flight toggle.
func (m *Manager) Cached(ctx context.Context, p payment.Provider, subscriptionID string) (Status, cache.Entry, bool) {
	st, e, ok, err := cache.Peek[Status](ctx, m.cache, cache.KeyRenewal(p.String(), subscriptionID))
	if err != nil {
		return Status{}, cache.Entry{}, false
	}
	return st, e, ok
}

// SetAutoRenewal toggles auto-renewal optimistically. Until the provider
// answers, reads see the requested state. On success the server's value is
// cached and the dependent read-models of userID are invalidated. On failure
// the previous value is restored and re-fetched; if that fetch fails too the
// entry is flagged out of date and the error wraps cache.ErrOutOfDate. The
// returned status is what the cache holds after the call.
func (m *Manager) SetAutoRenewal(ctx context.Context, userID, subscriptionID string, enabled bool) (Status, error) {
	p, err := m.ActiveProvider(userID)
	if err != nil {
		return Status{}, err
	}
	key := cache.KeyRenewal(p.String(), subscriptionID)
	log := m.log.With(logger.UserID(userID), logger.Provider(p), logger.SubscriptionID(subscriptionID))

	var message string
	st, err := cache.Mutate(ctx, m.cache, key, cache.MutateOptions[Status]{
		Synthesize: func() Status {
			return Status{SubscriptionID: subscriptionID, AutoRenewal: !enabled, Provider: p}.Normalize()
		},
		Optimistic: func(s Status) Status {
			s.AutoRenewal = enabled
			return s.Normalize()
		},
		Call: func(ctx context.Context) (Status, error) {
			res, err := m.remote.Update(ctx, subscriptionID, enabled, p)
			if err != nil {
				return Status{}, err
			}
			message = res.Message
			return res.Subscription.Normalize(), nil
		},
		Refetch: func(ctx context.Context) (Status, error) {
			return m.fetch(ctx, p, subscriptionID)
		},
		Dependents: cache.DependentsOf(userID),
	})
	if err == nil {
		if message == "" {
			message = ToggleMessage(enabled)
		}
		m.metrics.RenewalChange(p.String(), metrics.OutcomeSuccess)
		log.InfoContext(ctx, "auto-renewal updated", slog.Bool("enabled", st.AutoRenewal))
		m.notify(ctx, notifications.Success(userID, message).With("subscription_id", subscriptionID))
		return st, nil
	}

	kind := payment.Classify(err)
	m.metrics.RemoteFailure(p.String(), kind.String())
	m.notify(ctx, notifications.Error(userID, payment.UserMessage(err)).With("kind", kind.String()))

	if errors.Is(err, cache.ErrOutOfDate) {
		m.metrics.RenewalChange(p.String(), metrics.OutcomeOutOfDate)
		log.WarnContext(ctx, "auto-renewal rolled back, state unconfirmed", logger.Error(err))
		m.notify(ctx, notifications.Warning(userID, OutOfDateMessage).With("subscription_id", subscriptionID))
	} else {
		m.metrics.RenewalChange(p.String(), metrics.OutcomeRolledBack)
		log.WarnContext(ctx, "auto-renewal rolled back", logger.Error(err), slog.String("kind", kind.String()))
	}

	current, _, _ := m.Cached(ctx, p, subscriptionID)
	return current, err
}

func (m *Manager) fetch(ctx context.Context, p payment.Provider, subscriptionID string) (Status, error) {
	policy := m.retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		m.metrics.Retry("renewal")
		m.log.InfoContext(ctx, "retrying renewal fetch",
			logger.SubscriptionID(subscriptionID),
			logger.RetryCount(attempt),
			logger.Duration(delay),
			logger.Error(err))
	})

	var st Status
	err := policy.Do(ctx, func(ctx context.Context) error {
		s, err := m.remote.Fetch(ctx, subscriptionID, p)
		if err != nil {
			return err
		}
		st = s
		return nil
	})
	if err != nil {
		return Status{}, err
	}
	if st.SubscriptionID == "" {
		st.SubscriptionID = subscriptionID
	}
	st.Provider = p
	return st.Normalize(), nil
}

func (m *Manager) notify(ctx context.Context, n notifications.Notification) {
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.log.WarnContext(ctx, "send notification", logger.Error(err))
	}
}
