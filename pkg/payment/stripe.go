package payment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v82"
)

// StripeAPI is the subset of the Stripe client the adapter calls.
type StripeAPI interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error)
}

type stripeClient struct {
	sc *stripe.Client
}

// NewStripeClient wraps the official client. SDK level retries are disabled;
// RetryPolicy owns that decision. An empty baseURL targets the live API.
func NewStripeClient(secretKey, baseURL string, httpClient *http.Client) StripeAPI {
	cfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
	}
	if baseURL != "" {
		cfg.URL = stripe.String(baseURL)
	}
	backends := stripe.NewBackendsWithConfig(cfg)
	return &stripeClient{sc: stripe.NewClient(secretKey, stripe.WithBackends(backends))}
}

func (c *stripeClient) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	return c.sc.V1CheckoutSessions.Create(ctx, params)
}

func (c *stripeClient) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	return c.sc.V1Subscriptions.Retrieve(ctx, id, nil)
}

func (c *stripeClient) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error) {
	return c.sc.V1Subscriptions.Update(ctx, id, params)
}

// StripeAdapter sells plans as recurring prices. Checkouts redirect to the
// hosted page unless an embedded session is requested, in which case the
// session's client secret is returned as the handle.
type StripeAdapter struct {
	api  StripeAPI
	urls RedirectURLs
}

func NewStripeAdapter(api StripeAPI, urls RedirectURLs) *StripeAdapter {
	if api == nil {
		panic("payment: nil stripe api")
	}
	return &StripeAdapter{api: api, urls: urls}
}

func (a *StripeAdapter) Provider() Provider { return ProviderStripe }

// CreateCheckout opens a subscription-mode checkout session for the price in
// req.ProductID.
func (a *StripeAdapter) CreateCheckout(ctx context.Context, req AdapterRequest) (*CheckoutResult, error) {
	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{Price: stripe.String(req.ProductID), Quantity: stripe.Int64(1)},
		},
		ClientReferenceID: stripe.String(req.User.ID),
		Metadata:          req.Metadata,
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.User.Email != "" {
		params.CustomerEmail = stripe.String(req.User.Email)
	}
	if req.Embedded {
		params.UIMode = stripe.String(string(stripe.CheckoutSessionUIModeEmbedded))
		params.ReturnURL = stripe.String(a.urls.success(req))
	} else {
		params.SuccessURL = stripe.String(a.urls.success(req))
		params.CancelURL = stripe.String(a.urls.cancel(req))
	}

	sess, err := a.api.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, stripeError("create checkout", err)
	}

	res := &CheckoutResult{Provider: ProviderStripe, SessionID: sess.ID}
	if req.Embedded {
		res.SessionHandle = sess.ClientSecret
	} else {
		res.RedirectURL = sess.URL
	}
	return res, nil
}

func (a *StripeAdapter) GetRenewal(ctx context.Context, subscriptionID string) (RenewalState, error) {
	sub, err := a.api.RetrieveSubscription(ctx, subscriptionID)
	if err != nil {
		return RenewalState{}, stripeError("get subscription", err)
	}
	return stripeRenewal(subscriptionID, sub), nil
}

// SetRenewal maps auto-renewal onto cancel_at_period_end.
func (a *StripeAdapter) SetRenewal(ctx context.Context, subscriptionID string, enabled bool) (RenewalState, error) {
	params := &stripe.SubscriptionUpdateParams{CancelAtPeriodEnd: stripe.Bool(!enabled)}
	sub, err := a.api.UpdateSubscription(ctx, subscriptionID, params)
	if err != nil {
		return RenewalState{}, stripeError("update subscription", err)
	}
	return stripeRenewal(subscriptionID, sub), nil
}

func stripeRenewal(id string, sub *stripe.Subscription) RenewalState {
	if sub == nil {
		return RenewalState{SubscriptionID: id, AutoRenewal: true}
	}
	var end *time.Time
	switch {
	case sub.CancelAt > 0:
		t := time.Unix(sub.CancelAt, 0).UTC()
		end = &t
	case sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].CurrentPeriodEnd > 0:
		t := time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0).UTC()
		end = &t
	}
	return RenewalState{
		SubscriptionID:    id,
		AutoRenewal:       !sub.CancelAtPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		EndDate:           end,
	}
}

func stripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return NewRemoteError(ProviderStripe, op, se.HTTPStatusCode, se.Msg, err)
	}
	return NewRemoteError(ProviderStripe, op, 0, "", err)
}
