package binder_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/binder"
)

type toggleRequest struct {
	SubscriptionID string   `path:"id"`
	Provider       string   `query:"provider" json:"provider"`
	Enabled        bool     `json:"enabled"`
	Limit          *int     `query:"limit"`
	Tags           []string `query:"tag"`
}

func TestJSON(t *testing.T) {
	t.Parallel()

	bind := binder.JSON()

	t.Run("decodes body", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"enabled":true,"provider":"polar"}`))
		r.Header.Set("Content-Type", "application/json; charset=utf-8")
		var req toggleRequest
		require.NoError(t, bind(r, &req))
		assert.True(t, req.Enabled)
		assert.Equal(t, "polar", req.Provider)
	})

	t.Run("no body is not applicable", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		var req toggleRequest
		assert.ErrorIs(t, bind(r, &req), binder.ErrNotApplicable)
	})

	cases := map[string]struct {
		body        string
		contentType string
		want        error
	}{
		"missing content type": {`{}`, "", binder.ErrMissingContentType},
		"wrong media type":     {`{}`, "text/plain", binder.ErrUnsupportedMediaType},
		"unknown field":        {`{"foo":1}`, "application/json", binder.ErrInvalidJSON},
		"malformed":            {`{"enabled":`, "application/json", binder.ErrInvalidJSON},
		"trailing data":        {`{} {}`, "application/json", binder.ErrInvalidJSON},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			if tc.contentType != "" {
				r.Header.Set("Content-Type", tc.contentType)
			}
			var req toggleRequest
			assert.ErrorIs(t, bind(r, &req), tc.want)
		})
	}
}

func TestQuery(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/?provider=stripe&limit=5&tag=a,b&tag=c", nil)
	var req toggleRequest
	require.NoError(t, binder.Query()(r, &req))
	assert.Equal(t, "stripe", req.Provider)
	require.NotNil(t, req.Limit)
	assert.Equal(t, 5, *req.Limit)
	assert.Equal(t, []string{"a", "b", "c"}, req.Tags)

	r = httptest.NewRequest(http.MethodGet, "/?limit=many", nil)
	assert.ErrorIs(t, binder.Query()(r, &req), binder.ErrInvalidQuery)

	assert.ErrorIs(t, binder.Query()(r, req), binder.ErrInvalidQuery, "non-pointer target")
}

func TestPath(t *testing.T) {
	t.Parallel()

	extract := func(_ *http.Request, name string) string {
		if name == "id" {
			return "sub_42"
		}
		return ""
	}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	var req toggleRequest
	require.NoError(t, binder.Path(extract)(r, &req))
	assert.Equal(t, "sub_42", req.SubscriptionID)
	assert.Empty(t, req.Provider)

	assert.ErrorIs(t, binder.Path(nil)(r, &req), binder.ErrInvalidPath)
}
