// Command billingd serves the billing endpoints: plan pricing, checkout
// session creation and subscription auto-renewal, in front of whichever
// payment providers have credentials configured.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	billingmod "github.com/dmitrymomot/billingkit/modules/billing"
	"github.com/dmitrymomot/billingkit/pkg/cache"
	"github.com/dmitrymomot/billingkit/pkg/clientip"
	"github.com/dmitrymomot/billingkit/pkg/config"
	"github.com/dmitrymomot/billingkit/pkg/httpserver"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/metrics"
	"github.com/dmitrymomot/billingkit/pkg/notifications"
	"github.com/dmitrymomot/billingkit/pkg/payment"
	"github.com/dmitrymomot/billingkit/pkg/ratelimiter"
	"github.com/dmitrymomot/billingkit/pkg/redis"
	"github.com/dmitrymomot/billingkit/pkg/renewal"
	"github.com/dmitrymomot/billingkit/pkg/requestid"
)

type appConfig struct {
	Env              string        `env:"APP_ENV" envDefault:"development"`
	ServiceName      string        `env:"SERVICE_NAME" envDefault:"billingd"`
	PlansFile        string        `env:"PLANS_FILE" envDefault:"plans.yaml"`
	RenewalStaleTime time.Duration `env:"RENEWAL_STALE_TIME" envDefault:"5m"`
	CacheSize        int           `env:"CACHE_SIZE" envDefault:"10000"`
	MetricsNamespace string        `env:"METRICS_NAMESPACE" envDefault:"billing"`
	// Requests are expected to come through an authenticating proxy that
	// sets these headers.
	UserIDHeader    string `env:"IDENTITY_USER_HEADER" envDefault:"X-User-ID"`
	UserEmailHeader string `env:"IDENTITY_EMAIL_HEADER" envDefault:"X-User-Email"`
	// Headers carrying the client address, in trust order. Empty means
	// RemoteAddr only.
	ClientIPHeaders []string `env:"CLIENT_IP_HEADERS" envSeparator:","`

	CheckoutLimit ratelimiter.Config `envPrefix:"CHECKOUT_RATE_"`

	Payment payment.Config
	HTTP    httpserver.Config
	Redis   redis.Config
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "billingd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load[appConfig](config.WithEnvFiles(".env"))
	if err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.ServiceName),
		logger.WithContextExtractors(requestid.LoggerExtractor(), clientip.LoggerExtractor()),
	)
	slog.SetDefault(log)

	catalog, err := payment.LoadCatalogFile(cfg.PlansFile)
	if err != nil {
		return fmt.Errorf("load plans: %w", err)
	}

	adapters, err := payment.NewAdapters(cfg.Payment, nil)
	if err != nil {
		return fmt.Errorf("build payment adapters: %w", err)
	}
	registry := payment.NewRegistry(cfg.Payment.Availability())
	configured := registry.ListConfigured()
	if len(configured) == 0 {
		log.WarnContext(ctx, "no payment provider configured, checkout is disabled")
	} else {
		log.InfoContext(ctx, "payment providers configured", slog.Any("providers", configured))
	}

	collector := metrics.New(cfg.MetricsNamespace)
	readiness := []httpserver.Check{{
		Name: "providers",
		Fn: func(context.Context) error {
			if len(configured) == 0 {
				return payment.ErrProviderUnavailable
			}
			return nil
		},
	}}

	var store cache.Store = cache.NewMemoryStore(cfg.CacheSize)
	var buckets ratelimiter.Store = ratelimiter.NewMemoryStore()
	if cfg.Redis.Enabled() {
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		store = cache.NewRedisStore(client, cache.WithTTL(24*time.Hour))
		buckets = ratelimiter.NewRedisStore(client, "ratelimit:")
		readiness = append(readiness, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	}
	events := cache.NewClient(store, cache.WithLogger(log))

	notifier := notifications.NewLogNotifier(log)
	builder := payment.NewBuilder(adapters.Checkout,
		payment.WithNotifier(notifier),
		payment.WithEvents(events),
		payment.WithLogger(log),
		payment.WithMetrics(collector),
	)
	prefs := payment.NewMemoryPreferences()
	gateway := renewal.NewGatewayRemote(adapters.Renewal...)
	renewals := renewal.NewManager(gateway, registry, events,
		renewal.WithStaleTime(cfg.RenewalStaleTime),
		renewal.WithNotifier(notifier),
		renewal.WithLogger(log),
		renewal.WithMetrics(collector),
		renewal.WithPreferences(prefs),
	)

	limiter, err := ratelimiter.New(buckets, cfg.CheckoutLimit)
	if err != nil {
		return err
	}
	identity := headerIdentity(cfg.UserIDHeader, cfg.UserEmailHeader)
	checkoutKey := ratelimiter.FirstOf(
		ratelimiter.Prefixed("user:", func(r *http.Request) string {
			if u := identity(r); u != nil {
				return u.ID
			}
			return ""
		}),
		ratelimiter.Prefixed("ip:", func(r *http.Request) string { return clientip.FromContext(r.Context()) }),
	)
	ips := clientip.NewResolver(cfg.ClientIPHeaders...)

	r := chi.NewRouter()
	r.Use(requestid.Middleware, ips.Middleware)
	r.Get("/healthz", httpserver.Health(log))
	r.Get("/readyz", httpserver.Health(log, readiness...))
	r.Handle("/metrics", collector.Handler())
	r.Mount("/billing", billingmod.Router(billingmod.RouterOptions{
		Catalog:     catalog,
		Registry:    registry,
		Preferences: prefs,
		Builder:     builder,
		Manager:     renewals,
		Renewal:     gateway,
		Cache:       events,
		Identity:    identity,
		Logger:      log,
		CheckoutMiddleware: []func(http.Handler) http.Handler{
			ratelimiter.Middleware(limiter, checkoutKey, log),
		},
	}))

	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
	return srv.Run(ctx, r)
}

func headerIdentity(idHeader, emailHeader string) billingmod.IdentityFunc {
	return func(r *http.Request) *payment.User {
		id := strings.TrimSpace(r.Header.Get(idHeader))
		if id == "" {
			return nil
		}
		return &payment.User{ID: id, Email: strings.TrimSpace(r.Header.Get(emailHeader))}
	}
}
