package renewal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/dmitrymomot/billingkit/pkg/payment"
)

// HTTPRemote calls the renewal endpoints served by modules/billing:
//
//	GET   {base}/subscriptions/{id}?provider=P
//	PATCH {base}/subscriptions/{id}  {"enabled": bool, "provider": P}
//
// Responses are {"data": ...} on success and {"error": {"code", "message"}}
// otherwise.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
	header  http.Header
}

// HTTPOption configures an HTTPRemote.
type HTTPOption func(*HTTPRemote)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPRemote) {
		if c != nil {
			r.client = c
		}
	}
}

// WithHeader adds a header to every request, such as a session cookie.
func WithHeader(key, value string) HTTPOption {
	return func(r *HTTPRemote) { r.header.Add(key, value) }
}

func NewHTTPRemote(baseURL string, opts ...HTTPOption) *HTTPRemote {
	r := &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  cleanhttp.DefaultPooledClient(),
		header:  make(http.Header),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type updateBody struct {
	Enabled  bool             `json:"enabled"`
	Provider payment.Provider `json:"provider"`
}

// envelope mirrors handler.Envelope without importing the HTTP layer.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r *HTTPRemote) Fetch(ctx context.Context, subscriptionID string, p payment.Provider) (Status, error) {
	u := fmt.Sprintf("%s/subscriptions/%s?%s", r.baseURL, url.PathEscape(subscriptionID),
		url.Values{"provider": {p.String()}}.Encode())
	var st Status
	if err := r.do(ctx, p, "get subscription", http.MethodGet, u, nil, &st); err != nil {
		return Status{}, err
	}
	if st.Provider == "" {
		st.Provider = p
	}
	return st.Normalize(), nil
}

func (r *HTTPRemote) Update(ctx context.Context, subscriptionID string, enabled bool, p payment.Provider) (UpdateResult, error) {
	u := fmt.Sprintf("%s/subscriptions/%s", r.baseURL, url.PathEscape(subscriptionID))
	var res UpdateResult
	if err := r.do(ctx, p, "update subscription", http.MethodPatch, u, updateBody{Enabled: enabled, Provider: p}, &res); err != nil {
		return UpdateResult{}, err
	}
	if res.Subscription.Provider == "" {
		res.Subscription.Provider = p
	}
	res.Subscription = res.Subscription.Normalize()
	return res, nil
}

func (r *HTTPRemote) do(ctx context.Context, p payment.Provider, op, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	for k, v := range r.header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return payment.NewRemoteError(p, op, 0, "request failed", err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env)

	if resp.StatusCode >= http.StatusMultipleChoices {
		msg := resp.Status
		if decodeErr == nil && env.Error != nil && env.Error.Message != "" {
			msg = env.Error.Message
		}
		return payment.NewRemoteError(p, op, resp.StatusCode, msg, nil)
	}
	if decodeErr == nil && len(env.Data) == 0 {
		decodeErr = errors.New("empty data")
	}
	if decodeErr == nil {
		decodeErr = json.Unmarshal(env.Data, out)
	}
	if err := decodeErr; err != nil {
		re := payment.NewRemoteError(p, op, resp.StatusCode, "malformed response", err)
		re.Kind = payment.KindRemoteRejected
		return re
	}
	return nil
}
