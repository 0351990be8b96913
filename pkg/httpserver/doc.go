// Package httpserver runs an http.Handler until its context is cancelled or
// the process receives SIGINT/SIGTERM, then shuts down gracefully and runs
// the registered stop hooks, for example draining in-flight checkouts.
//
//	srv := httpserver.NewFromConfig(cfg.HTTP,
//		httpserver.WithLogger(log),
//		httpserver.WithStopHook(coordinator.Drain),
//	)
//	err := srv.Run(ctx, router)
//
// Health returns a probe handler: liveness without checks, readiness with.
package httpserver
