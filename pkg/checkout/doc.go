// Package checkout keeps at most one checkout attempt in flight per user
// session.
//
// A [Coordinator] owns a small state machine (Idle, Pending, Terminal) and a
// monotonically increasing attempt counter. Starting a checkout for a
// different plan while one is pending supersedes the old attempt: its
// context is cancelled, cancel hooks run and the user is told once. Every
// asynchronous resolution carries the sequence number it was started with
// and is applied only while that number is still current, so a slow
// superseded call can never overwrite the state of a newer attempt.
//
//	co := checkout.New(builder,
//		checkout.WithNavigator(nav),
//		checkout.WithNotifier(notifier),
//	)
//	h := co.Start(ctx, payment.CheckoutRequest{...})
//	res, err := h.Wait(ctx)
package checkout
