package payment_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingkit/pkg/payment"
)

func TestKindForStatus(t *testing.T) {
	t.Parallel()

	tests := map[int]payment.Kind{
		http.StatusUnauthorized:        payment.KindUnauthorized,
		http.StatusForbidden:           payment.KindUnauthorized,
		http.StatusNotFound:            payment.KindNotFound,
		http.StatusBadRequest:          payment.KindRemoteRejected,
		http.StatusUnprocessableEntity: payment.KindRemoteRejected,
		http.StatusTooManyRequests:     payment.KindTransient,
		http.StatusInternalServerError: payment.KindTransient,
		http.StatusBadGateway:          payment.KindTransient,
		http.StatusNotImplemented:      payment.KindRemoteRejected,
		0:                              payment.KindTransient,
	}
	for status, want := range tests {
		assert.Equal(t, want, payment.KindForStatus(status), "status %d", status)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want payment.Kind
	}{
		{"nil", nil, payment.KindUnknown},
		{"missing identity", payment.ErrMissingIdentity, payment.KindMissingIdentity},
		{"wrapped product mapping", fmt.Errorf("plan: %w", payment.ErrMissingProductMapping), payment.KindMissingProductMapping},
		{"remote 403", payment.NewRemoteError(payment.ProviderStripe, "op", 403, "", nil), payment.KindUnauthorized},
		{"remote 404 wrapped", fmt.Errorf("x: %w", payment.NewRemoteError(payment.ProviderPolar, "op", 404, "", nil)), payment.KindNotFound},
		{"network", errors.New("connection reset"), payment.KindTransient},
		{"deadline", context.DeadlineExceeded, payment.KindTransient},
		{"cancelled", context.Canceled, payment.KindUnknown},
		{"provider unavailable", payment.ErrProviderUnavailable, payment.KindUnknown},
		{"rejected", payment.Rejected(payment.ProviderPaddle, "op", "empty"), payment.KindRemoteRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, payment.Classify(tt.err))
		})
	}
}

func TestRemoteErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := payment.NewRemoteError(payment.ProviderStripe, "get subscription", 401, "invalid key", cause)

	assert.ErrorIs(t, err, payment.ErrUnauthorized)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, payment.ErrTransient)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "invalid key")

	var re *payment.RemoteError
	assert.True(t, errors.As(fmt.Errorf("wrap: %w", err), &re))
	assert.Equal(t, payment.KindUnauthorized, re.Kind)
}

func TestKindHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, payment.KindTransient.Retryable())
	for _, k := range []payment.Kind{payment.KindUnauthorized, payment.KindNotFound, payment.KindRemoteRejected, payment.KindMissingIdentity} {
		assert.False(t, k.Retryable(), k.String())
	}
	assert.True(t, payment.KindMissingIdentity.IsConfiguration())
	assert.True(t, payment.KindMissingProductMapping.IsConfiguration())
	assert.False(t, payment.KindTransient.IsConfiguration())
	assert.Equal(t, "not_found", payment.KindNotFound.String())
	assert.Equal(t, "unknown", payment.Kind(99).String())
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	assert.Empty(t, payment.UserMessage(nil))
	assert.Equal(t, "Subscription not found.", payment.UserMessage(payment.NewRemoteError(payment.ProviderStripe, "op", 404, "No such subscription", nil)))
	assert.Equal(t, "Card declined", payment.UserMessage(payment.NewRemoteError(payment.ProviderStripe, "op", 402, "Card declined", nil)))
	assert.Equal(t, "Please sign in to continue.", payment.UserMessage(payment.ErrMissingIdentity))
	assert.Equal(t, "Checkout is currently unavailable.", payment.UserMessage(payment.ErrProviderUnavailable))
	assert.Contains(t, payment.UserMessage(errors.New("timeout")), "try again")
}
