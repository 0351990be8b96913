package payment

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/hashicorp/go-cleanhttp"
)

// Config groups provider credentials. Secrets stay inside the adapters; the
// rest of the system only sees Availability.
type Config struct {
	Stripe       StripeConfig
	LemonSqueezy LemonSqueezyConfig
	Polar        PolarConfig
	Paddle       PaddleConfig

	SuccessURL  string        `env:"CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:8080/billing/success"`
	CancelURL   string        `env:"CHECKOUT_CANCEL_URL" envDefault:"http://localhost:8080/billing"`
	HTTPTimeout time.Duration `env:"PAYMENT_HTTP_TIMEOUT" envDefault:"15s"`
}

type StripeConfig struct {
	SecretKey  string `env:"STRIPE_SECRET_KEY"`
	APIBaseURL string `env:"STRIPE_API_BASE_URL"`
}

func (c StripeConfig) Configured() bool { return c.SecretKey != "" }

type LemonSqueezyConfig struct {
	APIKey     string `env:"LEMONSQUEEZY_API_KEY"`
	StoreID    string `env:"LEMONSQUEEZY_STORE_ID"`
	APIBaseURL string `env:"LEMONSQUEEZY_API_BASE_URL" envDefault:"https://api.lemonsqueezy.com"`
}

func (c LemonSqueezyConfig) Configured() bool { return c.APIKey != "" && c.StoreID != "" }

type PolarConfig struct {
	AccessToken    string `env:"POLAR_ACCESS_TOKEN"`
	OrganizationID string `env:"POLAR_ORGANIZATION_ID"`
	APIBaseURL     string `env:"POLAR_API_BASE_URL" envDefault:"https://api.polar.sh"`
}

func (c PolarConfig) Configured() bool { return c.AccessToken != "" && c.OrganizationID != "" }

type PaddleConfig struct {
	APIKey      string `env:"PADDLE_API_KEY"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

func (c PaddleConfig) Configured() bool { return c.APIKey != "" }

// Availability reports which providers have their credentials present.
func (c Config) Availability() Availability {
	return Availability{
		ProviderStripe:       c.Stripe.Configured(),
		ProviderLemonSqueezy: c.LemonSqueezy.Configured(),
		ProviderPolar:        c.Polar.Configured(),
		ProviderPaddle:       c.Paddle.Configured(),
	}
}

// Adapters holds the constructed adapters of every configured provider.
type Adapters struct {
	Checkout []Adapter
	Renewal  []RenewalAdapter
}

// NewAdapters builds an adapter for each configured provider. A nil client
// gets a pooled one with the configured timeout, shared by every adapter.
func NewAdapters(cfg Config, client *http.Client) (*Adapters, error) {
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
		client.Timeout = cfg.HTTPTimeout
	}
	urls := RedirectURLs{Success: cfg.SuccessURL, Cancel: cfg.CancelURL}
	out := &Adapters{}
	var errs []error

	if cfg.Stripe.Configured() {
		s := NewStripeAdapter(NewStripeClient(cfg.Stripe.SecretKey, cfg.Stripe.APIBaseURL, client), urls)
		out.Checkout = append(out.Checkout, s)
		out.Renewal = append(out.Renewal, s)
	}
	if cfg.LemonSqueezy.Configured() {
		l, err := NewLemonSqueezyAdapter(cfg.LemonSqueezy, urls, client)
		if err != nil {
			errs = append(errs, err)
		} else {
			out.Checkout = append(out.Checkout, l)
			out.Renewal = append(out.Renewal, l)
		}
	}
	if cfg.Polar.Configured() {
		p, err := NewPolarAdapter(cfg.Polar, urls, client)
		if err != nil {
			errs = append(errs, err)
		} else {
			out.Checkout = append(out.Checkout, p)
			out.Renewal = append(out.Renewal, p)
		}
	}
	if cfg.Paddle.Configured() {
		sdk, err := newPaddleSDK(cfg.Paddle)
		if err != nil {
			errs = append(errs, err)
		} else {
			out.Checkout = append(out.Checkout, NewPaddleAdapter(sdk.TransactionsClient, urls))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func newPaddleSDK(cfg PaddleConfig) (*paddle.SDK, error) {
	var (
		sdk *paddle.SDK
		err error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		sdk, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		sdk, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("create paddle client: %w", err)
	}
	return sdk, nil
}
