package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

func defaultErrorHandler(ctx Context, err error) {
	herr := ErrInternalServerError
	errors.As(err, &herr)
	http.Error(ctx.ResponseWriter(), herr.Key, herr.Code)
}

// NewErrorHandler logs the failure and answers with a JSON envelope. Client
// errors are logged at warn, everything else at error.
func NewErrorHandler(log *slog.Logger) ErrorHandler {
	if log == nil {
		log = logger.Nop()
	}
	return func(ctx Context, err error) {
		resp := JSONError(err, "").(*jsonResponse)
		level := slog.LevelError
		if resp.status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		r := ctx.Request()
		log.LogAttrs(r.Context(), level, "request error",
			logger.Error(err),
			slog.Int("status_code", resp.status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("http"),
		)
		if err := resp.Render(ctx.ResponseWriter(), r); err != nil {
			log.LogAttrs(r.Context(), slog.LevelError, "render error response", logger.Error(err))
		}
	}
}
