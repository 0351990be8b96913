package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const lemonContentType = "application/vnd.api+json"

// LemonSqueezyAdapter sells plans as store variants. Checkouts can be
// mounted inline when an embedded session is requested.
type LemonSqueezyAdapter struct {
	api     *jsonAPI
	storeID string
	urls    RedirectURLs
}

// NewLemonSqueezyAdapter returns an adapter for the given store.
func NewLemonSqueezyAdapter(cfg LemonSqueezyConfig, urls RedirectURLs, client *http.Client) (*LemonSqueezyAdapter, error) {
	if cfg.APIKey == "" || cfg.StoreID == "" {
		return nil, fmt.Errorf("%w: lemonsqueezy api key and store id are required", ErrMissingCredentials)
	}
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	base := cfg.APIBaseURL
	if base == "" {
		base = "https://api.lemonsqueezy.com"
	}
	return &LemonSqueezyAdapter{
		api: &jsonAPI{
			provider:    ProviderLemonSqueezy,
			baseURL:     base,
			contentType: lemonContentType,
			token:       cfg.APIKey,
			client:      client,
		},
		storeID: cfg.StoreID,
		urls:    urls,
	}, nil
}

func (a *LemonSqueezyAdapter) Provider() Provider { return ProviderLemonSqueezy }

type lemonRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type lemonRelation struct {
	Data lemonRef `json:"data"`
}

type lemonCheckoutRequest struct {
	Data struct {
		Type       string `json:"type"`
		Attributes struct {
			CheckoutOptions struct {
				Embed bool `json:"embed"`
			} `json:"checkout_options"`
			CheckoutData struct {
				Email  string            `json:"email,omitempty"`
				Name   string            `json:"name,omitempty"`
				Custom map[string]string `json:"custom,omitempty"`
			} `json:"checkout_data"`
			ProductOptions struct {
				RedirectURL string `json:"redirect_url,omitempty"`
			} `json:"product_options"`
		} `json:"attributes"`
		Relationships struct {
			Store   lemonRelation `json:"store"`
			Variant lemonRelation `json:"variant"`
		} `json:"relationships"`
	} `json:"data"`
}

type lemonCheckoutResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
}

// CreateCheckout creates a checkout for the variant in req.ProductID.
func (a *LemonSqueezyAdapter) CreateCheckout(ctx context.Context, req AdapterRequest) (*CheckoutResult, error) {
	var body lemonCheckoutRequest
	body.Data.Type = "checkouts"
	body.Data.Attributes.CheckoutOptions.Embed = req.Embedded
	body.Data.Attributes.CheckoutData.Email = req.User.Email
	body.Data.Attributes.CheckoutData.Name = req.User.Name
	body.Data.Attributes.CheckoutData.Custom = req.Metadata
	body.Data.Attributes.ProductOptions.RedirectURL = a.urls.success(req)
	body.Data.Relationships.Store.Data = lemonRef{Type: "stores", ID: a.storeID}
	body.Data.Relationships.Variant.Data = lemonRef{Type: "variants", ID: req.ProductID}

	var resp lemonCheckoutResponse
	if err := a.api.do(ctx, "create checkout", http.MethodPost, "/v1/checkouts", body, &resp); err != nil {
		return nil, err
	}

	res := &CheckoutResult{Provider: ProviderLemonSqueezy, SessionID: resp.Data.ID}
	if req.Embedded {
		res.SessionHandle = resp.Data.Attributes.URL
	} else {
		res.RedirectURL = resp.Data.Attributes.URL
	}
	return res, nil
}

type lemonSubscription struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status    string     `json:"status"`
			Cancelled bool       `json:"cancelled"`
			RenewsAt  *time.Time `json:"renews_at"`
			EndsAt    *time.Time `json:"ends_at"`
		} `json:"attributes"`
	} `json:"data"`
}

func (s lemonSubscription) state(id string) RenewalState {
	attr := s.Data.Attributes
	end := attr.RenewsAt
	if attr.Cancelled || end == nil {
		end = attr.EndsAt
	}
	return RenewalState{
		SubscriptionID:    id,
		AutoRenewal:       !attr.Cancelled,
		CancelAtPeriodEnd: attr.Cancelled,
		EndDate:           end,
	}
}

func (a *LemonSqueezyAdapter) GetRenewal(ctx context.Context, subscriptionID string) (RenewalState, error) {
	var sub lemonSubscription
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if err := a.api.do(ctx, "get subscription", http.MethodGet, path, nil, &sub); err != nil {
		return RenewalState{}, err
	}
	return sub.state(subscriptionID), nil
}

// SetRenewal maps auto-renewal onto the subscription's "cancelled" flag.
func (a *LemonSqueezyAdapter) SetRenewal(ctx context.Context, subscriptionID string, enabled bool) (RenewalState, error) {
	body := map[string]any{
		"data": map[string]any{
			"type": "subscriptions",
			"id":   subscriptionID,
			"attributes": map[string]any{
				"cancelled": !enabled,
			},
		},
	}
	var sub lemonSubscription
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if err := a.api.do(ctx, "update subscription", http.MethodPatch, path, body, &sub); err != nil {
		return RenewalState{}, err
	}
	return sub.state(subscriptionID), nil
}
