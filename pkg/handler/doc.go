// Package handler turns typed request handlers into http.HandlerFuncs.
//
//	type planQuery struct {
//		Interval string `query:"interval"`
//	}
//
//	r.Get("/plans", handler.Wrap(func(ctx handler.Context, req planQuery) handler.Response {
//		return handler.JSON(plans)
//	}, handler.WithBinders(binder.Query())))
//
// Binders fill the request struct in order; a binder returning
// binder.ErrNotApplicable is skipped. Binding and rendering failures go to the
// ErrorHandler, which by default answers with a JSON error envelope.
package handler
