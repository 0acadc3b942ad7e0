package api

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/nerrad567/storefront-telemetry/internal/broadcast"
	"github.com/nerrad567/storefront-telemetry/internal/device"
	"github.com/nerrad567/storefront-telemetry/internal/ingestion"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 3 * time.Second

// ComponentHealth is one entry of the /health response.
type ComponentHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealth reports "ok" when every component check passes and
// "degraded" with 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status, code := "ok", http.StatusOK
	components := make([]ComponentHealth, 0, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()

		c := ComponentHealth{Name: name, Status: "ok"}
		if err != nil {
			c.Status, c.Error = "down", err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
		}
		components = append(components, c)
	}

	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}

// SystemStats is the /stats response.
type SystemStats struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeStats    `json:"runtime"`
	Ingestion     ingestion.Stats `json:"ingestion"`
	Broadcast     broadcast.Stats `json:"broadcast"`
	Devices       device.Stats    `json:"devices"`
}

// RuntimeStats contains Go runtime statistics.
type RuntimeStats struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, SystemStats{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeStats{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(mem.Alloc) / 1024 / 1024,
			NumGC:         mem.NumGC,
		},
		Ingestion: s.ingester.Stats(),
		Broadcast: s.hub.Stats(),
		Devices:   s.registry.GetStats(),
	})
}
