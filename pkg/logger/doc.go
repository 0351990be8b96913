// Package logger builds *slog.Logger instances with a small set of functional
// options and exposes attribute constructors that keep key names consistent
// across the billing packages.
//
// # Usage
//
//	import "github.com/dmitrymomot/billingkit/pkg/logger"
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "billingd"),
//		logger.WithContextValue("session_id", sessionKey{}),
//	)
//
//	log.LogAttrs(ctx, slog.LevelWarn, "checkout failed",
//		logger.Provider(provider),
//		logger.PlanID(planID),
//		logger.Error(err),
//	)
//
// Production and staging environments produce JSON at info level, everything
// else produces text at debug level.
package logger
