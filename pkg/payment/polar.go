package payment

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// PolarAdapter sells plans as organization products. Checkouts always
// redirect to the hosted page.
type PolarAdapter struct {
	api            *jsonAPI
	organizationID string
	urls           RedirectURLs
}

// NewPolarAdapter returns an adapter bound to one organization.
func NewPolarAdapter(cfg PolarConfig, urls RedirectURLs, client *http.Client) (*PolarAdapter, error) {
	if cfg.AccessToken == "" || cfg.OrganizationID == "" {
		return nil, fmt.Errorf("%w: polar access token and organization id are required", ErrMissingCredentials)
	}
	if client == nil {
		client = cleanhttp.DefaultPooledClient()
	}
	base := cfg.APIBaseURL
	if base == "" {
		base = "https://api.polar.sh"
	}
	return &PolarAdapter{
		api: &jsonAPI{
			provider:    ProviderPolar,
			baseURL:     base,
			contentType: "application/json",
			token:       cfg.AccessToken,
			client:      client,
		},
		organizationID: cfg.OrganizationID,
		urls:           urls,
	}, nil
}

func (a *PolarAdapter) Provider() Provider { return ProviderPolar }

type polarCheckoutRequest struct {
	Products           []string          `json:"products"`
	CustomerEmail      string            `json:"customer_email,omitempty"`
	CustomerName       string            `json:"customer_name,omitempty"`
	ExternalCustomerID string            `json:"external_customer_id,omitempty"`
	SuccessURL         string            `json:"success_url,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type polarCheckoutResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckout creates a hosted checkout for the product in req.ProductID.
// The embedded flag is ignored.
func (a *PolarAdapter) CreateCheckout(ctx context.Context, req AdapterRequest) (*CheckoutResult, error) {
	md := make(map[string]string, len(req.Metadata)+1)
	maps.Copy(md, req.Metadata)
	md["organization_id"] = a.organizationID

	body := polarCheckoutRequest{
		Products:           []string{req.ProductID},
		CustomerEmail:      req.User.Email,
		CustomerName:       req.User.Name,
		ExternalCustomerID: req.User.ID,
		SuccessURL:         a.urls.success(req),
		Metadata:           md,
	}

	var resp polarCheckoutResponse
	if err := a.api.do(ctx, "create checkout", http.MethodPost, "/v1/checkouts/", body, &resp); err != nil {
		return nil, err
	}
	return &CheckoutResult{
		Provider:    ProviderPolar,
		RedirectURL: resp.URL,
		SessionID:   resp.ID,
	}, nil
}

type polarSubscription struct {
	ID                string     `json:"id"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end"`
	EndsAt            *time.Time `json:"ends_at"`
}

func (s polarSubscription) state(id string) RenewalState {
	end := s.CurrentPeriodEnd
	if s.EndsAt != nil {
		end = s.EndsAt
	}
	return RenewalState{
		SubscriptionID:    id,
		AutoRenewal:       !s.CancelAtPeriodEnd,
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		EndDate:           end,
	}
}

func (a *PolarAdapter) GetRenewal(ctx context.Context, subscriptionID string) (RenewalState, error) {
	var sub polarSubscription
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if err := a.api.do(ctx, "get subscription", http.MethodGet, path, nil, &sub); err != nil {
		return RenewalState{}, err
	}
	return sub.state(subscriptionID), nil
}

func (a *PolarAdapter) SetRenewal(ctx context.Context, subscriptionID string, enabled bool) (RenewalState, error) {
	body := map[string]bool{"cancel_at_period_end": !enabled}
	var sub polarSubscription
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if err := a.api.do(ctx, "update subscription", http.MethodPatch, path, body, &sub); err != nil {
		return RenewalState{}, err
	}
	return sub.state(subscriptionID), nil
}
