package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/licensekit/pkg/async"
	"github.com/dmitrymomot/licensekit/pkg/logger"
)

// Check is one readiness dependency, such as a database ping.
type Check struct {
	Name string
	Func func(ctx context.Context) error
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LivenessHandler answers 200 as long as the process serves requests.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, http.StatusOK, healthReport{Status: "alive"})
	}
}

// ReadinessHandler runs every check concurrently within timeout and answers
// 200 when all pass, 503 otherwise. The body lists each check's outcome.
func ReadinessHandler(log *slog.Logger, timeout time.Duration, checks ...Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		futures := make([]*async.Future[string], len(checks))
		for i, c := range checks {
			futures[i] = async.Go(ctx, func(ctx context.Context) (string, error) {
				return "ok", c.Func(ctx)
			})
		}

		report := healthReport{Status: "ready", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for i, f := range futures {
			if _, err := f.AwaitContext(ctx); err != nil {
				log.WarnContext(ctx, "readiness check failed",
					slog.String("check", checks[i].Name),
					logger.Error(err),
				)
				report.Checks[checks[i].Name] = err.Error()
				report.Status = "not_ready"
				status = http.StatusServiceUnavailable
				continue
			}
			report.Checks[checks[i].Name] = "ok"
		}

		writeHealth(w, status, report)
	}
}

func writeHealth(w http.ResponseWriter, status int, report healthReport) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
