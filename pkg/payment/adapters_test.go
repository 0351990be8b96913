package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"

	"github.com/dmitrymomot/billingkit/pkg/payment"
)

var urls = payment.RedirectURLs{Success: "https://app.test/billing/success", Cancel: "https://app.test/billing"}

func adapterRequest(productID string, embedded bool) payment.AdapterRequest {
	return payment.AdapterRequest{
		ProductID: productID,
		PlanID:    "pro",
		User:      *alice,
		Interval:  payment.IntervalYearly,
		Embedded:  embedded,
		Metadata:  map[string]string{"plan_id": "pro", "user_id": "u1", "interval": "yearly"},
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestLemonSqueezyAdapter(t *testing.T) {
	t.Parallel()

	t.Run("creates embedded checkout", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/checkouts", r.URL.Path)
			assert.Equal(t, "Bearer ls_key", r.Header.Get("Authorization"))
			assert.Equal(t, "application/vnd.api+json", r.Header.Get("Content-Type"))

			body := decodeBody(t, r)
			data := body["data"].(map[string]any)
			attrs := data["attributes"].(map[string]any)
			assert.Equal(t, true, attrs["checkout_options"].(map[string]any)["embed"])
			checkoutData := attrs["checkout_data"].(map[string]any)
			assert.Equal(t, "alice@example.com", checkoutData["email"])
			assert.Equal(t, "pro", checkoutData["custom"].(map[string]any)["plan_id"])
			rel := data["relationships"].(map[string]any)
			assert.Equal(t, "77", rel["store"].(map[string]any)["data"].(map[string]any)["id"])
			assert.Equal(t, "1234", rel["variant"].(map[string]any)["data"].(map[string]any)["id"])

			w.Header().Set("Content-Type", "application/vnd.api+json")
			_, _ = w.Write([]byte(`{"data":{"id":"ck_1","attributes":{"url":"https://store.lemonsqueezy.com/checkout/ck_1"}}}`))
		}))
		t.Cleanup(srv.Close)

		a, err := payment.NewLemonSqueezyAdapter(payment.LemonSqueezyConfig{APIKey: "ls_key", StoreID: "77", APIBaseURL: srv.URL}, urls, srv.Client())
		require.NoError(t, err)

		res, err := a.CreateCheckout(context.Background(), adapterRequest("1234", true))
		require.NoError(t, err)
		assert.Equal(t, "https://store.lemonsqueezy.com/checkout/ck_1", res.SessionHandle)
		assert.Empty(t, res.RedirectURL)
		assert.Equal(t, "ck_1", res.SessionID)
	})

	t.Run("classifies validation errors", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"errors":[{"title":"Unprocessable","detail":"The variant does not exist."}]}`))
		}))
		t.Cleanup(srv.Close)

		a, err := payment.NewLemonSqueezyAdapter(payment.LemonSqueezyConfig{APIKey: "k", StoreID: "1", APIBaseURL: srv.URL}, urls, srv.Client())
		require.NoError(t, err)

		_, err = a.CreateCheckout(context.Background(), adapterRequest("nope", false))
		var re *payment.RemoteError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, payment.KindRemoteRejected, re.Kind)
		assert.Equal(t, "The variant does not exist.", re.Message)
		assert.Equal(t, "The variant does not exist.", payment.UserMessage(err))
	})

	t.Run("toggles renewal through cancelled flag", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/subscriptions/sub_1", r.URL.Path)
			switch r.Method {
			case http.MethodGet:
				_, _ = w.Write([]byte(`{"data":{"id":"sub_1","attributes":{"cancelled":false,"renews_at":"2026-11-01T00:00:00Z"}}}`))
			case http.MethodPatch:
				body := decodeBody(t, r)
				attrs := body["data"].(map[string]any)["attributes"].(map[string]any)
				assert.Equal(t, true, attrs["cancelled"])
				_, _ = w.Write([]byte(`{"data":{"id":"sub_1","attributes":{"cancelled":true,"ends_at":"2026-11-01T00:00:00Z"}}}`))
			}
		}))
		t.Cleanup(srv.Close)

		a, err := payment.NewLemonSqueezyAdapter(payment.LemonSqueezyConfig{APIKey: "k", StoreID: "1", APIBaseURL: srv.URL}, urls, srv.Client())
		require.NoError(t, err)

		st, err := a.GetRenewal(context.Background(), "sub_1")
		require.NoError(t, err)
		assert.True(t, st.AutoRenewal)
		assert.False(t, st.CancelAtPeriodEnd)
		require.NotNil(t, st.EndDate)

		st, err = a.SetRenewal(context.Background(), "sub_1", false)
		require.NoError(t, err)
		assert.False(t, st.AutoRenewal)
		assert.True(t, st.CancelAtPeriodEnd)
		require.NotNil(t, st.EndDate)
		assert.Equal(t, time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC), st.EndDate.UTC())
	})

	t.Run("works without a caller supplied client", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"id":"sub_2","attributes":{"cancelled":true}}}`))
		}))
		t.Cleanup(srv.Close)

		a, err := payment.NewLemonSqueezyAdapter(payment.LemonSqueezyConfig{APIKey: "k", StoreID: "1", APIBaseURL: srv.URL}, urls, nil)
		require.NoError(t, err)
		st, err := a.GetRenewal(context.Background(), "sub_2")
		require.NoError(t, err)
		assert.False(t, st.AutoRenewal)
	})

	t.Run("requires credentials", func(t *testing.T) {
		t.Parallel()
		_, err := payment.NewLemonSqueezyAdapter(payment.LemonSqueezyConfig{APIKey: "k"}, urls, nil)
		assert.ErrorIs(t, err, payment.ErrMissingCredentials)
	})
}

func TestPolarAdapter(t *testing.T) {
	t.Parallel()

	t.Run("creates hosted checkout even when embedded is asked", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/checkouts/", r.URL.Path)
			assert.Equal(t, "Bearer polar_tok", r.Header.Get("Authorization"))
			body := decodeBody(t, r)
			assert.Equal(t, []any{"prod_pro"}, body["products"])
			assert.Equal(t, "u1", body["external_customer_id"])
			assert.Equal(t, urls.Success, body["success_url"])
			md := body["metadata"].(map[string]any)
			assert.Equal(t, "org_1", md["organization_id"])
			assert.Equal(t, "yearly", md["interval"])
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"co_1","url":"https://buy.polar.sh/co_1"}`))
		}))
		t.Cleanup(srv.Close)

		a, err := payment.NewPolarAdapter(payment.PolarConfig{AccessToken: "polar_tok", OrganizationID: "org_1", APIBaseURL: srv.URL}, urls, srv.Client())
		require.NoError(t, err)

		res, err := a.CreateCheckout(context.Background(), adapterRequest("prod_pro", true))
		require.NoError(t, err)
		assert.Equal(t, "https://buy.polar.sh/co_1", res.RedirectURL)
		assert.False(t, res.IsEmbedded())
	})

	t.Run("maps status codes", func(t *testing.T) {
		t.Parallel()
		for status, kind := range map[int]payment.Kind{
			http.StatusUnauthorized:        payment.KindUnauthorized,
			http.StatusNotFound:            payment.KindNotFound,
			http.StatusInternalServerError: payment.KindTransient,
		} {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"detail":"nope"}`))
			}))
			a, err := payment.NewPolarAdapter(payment.PolarConfig{AccessToken: "t", OrganizationID: "o", APIBaseURL: srv.URL}, urls, srv.Client())
			require.NoError(t, err)
			_, err = a.GetRenewal(context.Background(), "sub_1")
			assert.Equal(t, kind, payment.Classify(err), "status %d", status)
			srv.Close()
		}
	})

	t.Run("toggles renewal through cancel_at_period_end", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPatch, r.Method)
			assert.Equal(t, "/v1/subscriptions/sub_9", r.URL.Path)
			body := decodeBody(t, r)
			assert.Equal(t, false, body["cancel_at_period_end"])
			_, _ = w.Write([]byte(`{"id":"sub_9","cancel_at_period_end":false,"current_period_end":"2026-12-01T00:00:00Z"}`))
		}))
		t.Cleanup(srv.Close)

		a, err := payment.NewPolarAdapter(payment.PolarConfig{AccessToken: "t", OrganizationID: "o", APIBaseURL: srv.URL}, urls, srv.Client())
		require.NoError(t, err)

		st, err := a.SetRenewal(context.Background(), "sub_9", true)
		require.NoError(t, err)
		assert.True(t, st.AutoRenewal)
		assert.False(t, st.CancelAtPeriodEnd)
		require.NotNil(t, st.EndDate)
	})

	t.Run("requires organization", func(t *testing.T) {
		t.Parallel()
		_, err := payment.NewPolarAdapter(payment.PolarConfig{AccessToken: "t"}, urls, nil)
		assert.ErrorIs(t, err, payment.ErrMissingCredentials)
	})
}

type fakeStripe struct {
	checkoutParams *stripe.CheckoutSessionCreateParams
	updateParams   *stripe.SubscriptionUpdateParams
	session        *stripe.CheckoutSession
	sub            *stripe.Subscription
	err            error
}

func (f *fakeStripe) CreateCheckoutSession(_ context.Context, p *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	f.checkoutParams = p
	return f.session, f.err
}

func (f *fakeStripe) RetrieveSubscription(context.Context, string) (*stripe.Subscription, error) {
	return f.sub, f.err
}

func (f *fakeStripe) UpdateSubscription(_ context.Context, _ string, p *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error) {
	f.updateParams = p
	return f.sub, f.err
}

func TestStripeAdapter(t *testing.T) {
	t.Parallel()

	t.Run("redirect checkout", func(t *testing.T) {
		t.Parallel()
		api := &fakeStripe{session: &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1"}}
		a := payment.NewStripeAdapter(api, urls)

		res, err := a.CreateCheckout(context.Background(), adapterRequest("price_x", false))
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.stripe.com/c/cs_1", res.RedirectURL)

		p := api.checkoutParams
		require.NotNil(t, p)
		assert.Equal(t, string(stripe.CheckoutSessionModeSubscription), *p.Mode)
		require.Len(t, p.LineItems, 1)
		assert.Equal(t, "price_x", *p.LineItems[0].Price)
		assert.Equal(t, "u1", *p.ClientReferenceID)
		assert.Equal(t, "alice@example.com", *p.CustomerEmail)
		assert.Equal(t, urls.Success, *p.SuccessURL)
		assert.Equal(t, urls.Cancel, *p.CancelURL)
		assert.Nil(t, p.UIMode)
		assert.Equal(t, "yearly", p.Metadata["interval"])
	})

	t.Run("embedded checkout returns client secret", func(t *testing.T) {
		t.Parallel()
		api := &fakeStripe{session: &stripe.CheckoutSession{ID: "cs_2", ClientSecret: "cs_2_secret"}}
		a := payment.NewStripeAdapter(api, urls)

		res, err := a.CreateCheckout(context.Background(), adapterRequest("price_x", true))
		require.NoError(t, err)
		assert.Equal(t, "cs_2_secret", res.SessionHandle)
		assert.Equal(t, string(stripe.CheckoutSessionUIModeEmbedded), *api.checkoutParams.UIMode)
		assert.Nil(t, api.checkoutParams.SuccessURL)
		assert.Equal(t, urls.Success, *api.checkoutParams.ReturnURL)
	})

	t.Run("classifies stripe errors", func(t *testing.T) {
		t.Parallel()
		api := &fakeStripe{err: &stripe.Error{HTTPStatusCode: http.StatusNotFound, Msg: "No such subscription"}}
		a := payment.NewStripeAdapter(api, urls)

		_, err := a.GetRenewal(context.Background(), "sub_x")
		assert.ErrorIs(t, err, payment.ErrNotFound)
		var re *payment.RemoteError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, "No such subscription", re.Message)
	})

	t.Run("renewal follows cancel_at_period_end", func(t *testing.T) {
		t.Parallel()
		cancelAt := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
		api := &fakeStripe{sub: &stripe.Subscription{ID: "sub_1", CancelAtPeriodEnd: true, CancelAt: cancelAt.Unix()}}
		a := payment.NewStripeAdapter(api, urls)

		st, err := a.SetRenewal(context.Background(), "sub_1", false)
		require.NoError(t, err)
		assert.True(t, *api.updateParams.CancelAtPeriodEnd)
		assert.False(t, st.AutoRenewal)
		assert.True(t, st.CancelAtPeriodEnd)
		require.NotNil(t, st.EndDate)
		assert.True(t, cancelAt.Equal(*st.EndDate))
	})
}

type fakePaddle struct {
	req *paddle.CreateTransactionRequest
	tx  *paddle.Transaction
	err error
}

func (f *fakePaddle) CreateTransaction(_ context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error) {
	f.req = req
	return f.tx, f.err
}

func TestPaddleAdapter(t *testing.T) {
	t.Parallel()

	t.Run("redirects to transaction checkout", func(t *testing.T) {
		t.Parallel()
		txs := &fakePaddle{tx: &paddle.Transaction{ID: "txn_1", Checkout: &paddle.TransactionCheckout{URL: paddle.PtrTo("https://pay.paddle.io/txn_1")}}}
		a := payment.NewPaddleAdapter(txs, urls)

		res, err := a.CreateCheckout(context.Background(), adapterRequest("pri_1", false))
		require.NoError(t, err)
		assert.Equal(t, "https://pay.paddle.io/txn_1", res.RedirectURL)
		assert.Equal(t, "txn_1", res.SessionID)
		require.NotNil(t, txs.req)
		assert.Equal(t, "pro", txs.req.CustomData["plan_id"])
		assert.Len(t, txs.req.Items, 1)
	})

	t.Run("missing checkout url is rejected", func(t *testing.T) {
		t.Parallel()
		a := payment.NewPaddleAdapter(&fakePaddle{tx: &paddle.Transaction{ID: "txn_1"}}, urls)
		_, err := a.CreateCheckout(context.Background(), adapterRequest("pri_1", false))
		assert.ErrorIs(t, err, payment.ErrRemoteRejected)
	})

	t.Run("network failure is transient", func(t *testing.T) {
		t.Parallel()
		a := payment.NewPaddleAdapter(&fakePaddle{err: errors.New("dial tcp: timeout")}, urls)
		_, err := a.CreateCheckout(context.Background(), adapterRequest("pri_1", false))
		assert.Equal(t, payment.KindTransient, payment.Classify(err))
	})

	apiErrors := []struct {
		name string
		err  *paddleerr.Error
		kind payment.Kind
	}{
		{"status 401", &paddleerr.Error{Status: 401, Type: paddleerr.ErrorTypeRequestError, Code: "authentication_malformed"}, payment.KindUnauthorized},
		{"status 403", &paddleerr.Error{Status: 403, Type: paddleerr.ErrorTypeRequestError, Code: "forbidden"}, payment.KindUnauthorized},
		{"status 404", &paddleerr.Error{Status: 404, Type: paddleerr.ErrorTypeRequestError, Code: "not_found"}, payment.KindNotFound},
		{"status 422", &paddleerr.Error{Status: 422, Type: paddleerr.ErrorTypeRequestError, Code: "invalid_field", Detail: "Price is archived."}, payment.KindRemoteRejected},
		{"status 500", &paddleerr.Error{Status: 500, Type: paddleerr.ErrorTypeAPIError, Code: "internal_error"}, payment.KindTransient},
		{"code without status", &paddleerr.Error{Type: paddleerr.ErrorTypeRequestError, Code: "authentication_missing"}, payment.KindUnauthorized},
		{"unknown request error", &paddleerr.Error{Type: paddleerr.ErrorTypeRequestError, Code: "invalid_field"}, payment.KindRemoteRejected},
		{"bad gateway", &paddleerr.Error{Type: paddleerr.ErrorTypeRequestError, Code: "bad_gateway"}, payment.KindTransient},
	}
	for _, tt := range apiErrors {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := payment.NewPaddleAdapter(&fakePaddle{err: tt.err}, urls)
			_, err := a.CreateCheckout(context.Background(), adapterRequest("pri_1", false))
			assert.Equal(t, tt.kind, payment.Classify(err))
			var pe *paddleerr.Error
			assert.ErrorAs(t, err, &pe)
		})
	}

	t.Run("rejection message reaches the user", func(t *testing.T) {
		t.Parallel()
		a := payment.NewPaddleAdapter(&fakePaddle{err: &paddleerr.Error{Status: 422, Code: "invalid_field", Detail: "Price is archived."}}, urls)
		_, err := a.CreateCheckout(context.Background(), adapterRequest("pri_1", false))
		assert.Equal(t, "Price is archived.", payment.UserMessage(err))
	})
}

type countingPaddle struct {
	calls int
	err   error
}

func (c *countingPaddle) CreateTransaction(context.Context, *paddle.CreateTransactionRequest) (*paddle.Transaction, error) {
	c.calls++
	return nil, c.err
}

func TestPaddleUnauthorizedIsNotRetried(t *testing.T) {
	t.Parallel()

	for _, status := range []int{401, 403, 404} {
		t.Run(fmt.Sprintf("status %d", status), func(t *testing.T) {
			t.Parallel()
			txs := &countingPaddle{err: &paddleerr.Error{Status: status, Type: paddleerr.ErrorTypeRequestError}}
			b := payment.NewBuilder([]payment.Adapter{payment.NewPaddleAdapter(txs, urls)},
				payment.WithRetryPolicy(payment.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}))

			plan := payment.PlanConfig{ID: "pro", Name: "Pro", BasePrice: 1000, Currency: "USD", PaddlePriceID: "pri_1"}
			_, err := b.Initiate(context.Background(), payment.CheckoutRequest{Plan: plan, User: alice, Provider: payment.ProviderPaddle})
			require.Error(t, err)
			assert.False(t, payment.Classify(err).Retryable())
			assert.Equal(t, 1, txs.calls)
		})
	}
}
