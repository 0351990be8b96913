package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/metrics"
)

func TestCollector(t *testing.T) {
	t.Parallel()

	c := metrics.New("billing")
	c.CheckoutAttempt("stripe", metrics.OutcomeSuccess, 0.2)
	c.CheckoutAttempt("stripe", metrics.OutcomeSuperseded, 0)
	c.RenewalChange("polar", metrics.OutcomeRolledBack)
	c.Retry("checkout")
	c.Retry("checkout")
	c.RemoteFailure("stripe", "transient")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.CheckoutAttempts.WithLabelValues("stripe", metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.CheckoutAttempts.WithLabelValues("stripe", metrics.OutcomeSuperseded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RenewalChanges.WithLabelValues("polar", metrics.OutcomeRolledBack)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.RemoteRetries.WithLabelValues("checkout")))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "billing_checkout_attempts_total")
}

func TestNilCollector(t *testing.T) {
	t.Parallel()

	var c *metrics.Collector
	assert.NotPanics(t, func() {
		c.CheckoutAttempt("stripe", metrics.OutcomeError, 1)
		c.RenewalChange("stripe", metrics.OutcomeSuccess)
		c.Retry("renewal")
		c.RemoteFailure("stripe", "unauthorized")
	})
}
