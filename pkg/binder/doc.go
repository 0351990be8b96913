// Package binder populates request structs from an *http.Request.
//
// Each binder reads one source and one struct tag:
//
//	type toggleRequest struct {
//		SubscriptionID string           `path:"id"`
//		Provider       payment.Provider `query:"provider" json:"provider"`
//		Enabled        bool             `json:"enabled"`
//	}
//
// JSON decodes the body strictly, Query reads `query` tags and Path reads
// `path` tags through a router-specific extractor such as chi.URLParam.
package binder
