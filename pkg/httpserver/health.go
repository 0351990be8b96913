package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/billingkit/pkg/logger"
)

// Check is one named readiness dependency.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type healthBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health answers 200 {"status":"alive"} when no checks are given. With checks
// it runs each of them and answers 200 "ready" or 503 "not_ready" listing
// every check result.
func Health(log *slog.Logger, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		body := healthBody{Status: "alive"}
		status := http.StatusOK
		if len(checks) > 0 {
			body.Status = "ready"
			body.Checks = make(map[string]string, len(checks))
			for _, c := range checks {
				if err := c.Fn(r.Context()); err != nil {
					log.WarnContext(r.Context(), "readiness check failed", slog.String("check", c.Name), logger.Error(err))
					body.Checks[c.Name] = err.Error()
					body.Status = "not_ready"
					status = http.StatusServiceUnavailable
					continue
				}
				body.Checks[c.Name] = "ok"
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
