package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
	})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// Pinger is a dependency the readiness probe can check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// metadataProvider is implemented by checks that can describe themselves,
// such as connection pool statistics.
type metadataProvider interface {
	Metadata() map[string]interface{}
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Ready checks every named dependency in parallel and answers 503 when any
// of them is down.
func Ready(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		results := make(map[string]HealthCheckResult, len(checks))
		var mu sync.Mutex
		var wg sync.WaitGroup
		for name, p := range checks {
			wg.Add(1)
			go func(name string, p Pinger) {
				defer wg.Done()
				res := check(ctx, p)
				mu.Lock()
				results[name] = res
				mu.Unlock()
			}(name, p)
		}
		wg.Wait()

		allHealthy := true
		for _, res := range results {
			if res.Status != "up" {
				allHealthy = false
			}
		}

		response := map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    results,
		}

		w.Header().Set("Content-Type", "application/json")
		if allHealthy {
			response["status"] = "ready"
			w.WriteHeader(http.StatusOK)
		} else {
			response["status"] = "not_ready"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		json.NewEncoder(w).Encode(response)
	}
}

func check(ctx context.Context, p Pinger) HealthCheckResult {
	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Error:     err.Error(),
		}
	}
	res := HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
	}
	if m, ok := p.(metadataProvider); ok {
		res.Metadata = m.Metadata()
	}
	return res
}
