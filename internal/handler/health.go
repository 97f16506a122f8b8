package handler

import (
	"context"
	"net/http"
	"sort"
)

// HealthCheck pings one dependency.
type HealthCheck func(ctx context.Context) error

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status      string            `json:"status"`
	Services    map[string]string `json:"services"`
	Connections int               `json:"connections"`
}

// Health returns a handler reporting each named dependency and the number of
// live realtime connections. Any failing check degrades the status to 503.
func Health(checks map[string]HealthCheck, connections func() int) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Services: make(map[string]string, len(checks)),
		}
		for _, name := range names {
			if err := checks[name](r.Context()); err != nil {
				resp.Status = "degraded"
				resp.Services[name] = "unhealthy: " + err.Error()
			} else {
				resp.Services[name] = "healthy"
			}
		}
		if connections != nil {
			resp.Connections = connections()
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}
