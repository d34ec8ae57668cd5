package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"subtitle-index/internal/logging"
	"subtitle-index/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Ready     bool   `json:"ready"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Scanning  bool   `json:"scanning"`
	Phase     string `json:"phase"`
	LastScan  string `json:"lastScan,omitempty"`
	LastError string `json:"lastError,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	// Stats summary
	Libraries     int `json:"libraries"`
	FilesIndexed  int `json:"filesIndexed"`
	Conversations int `json:"conversations"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	healthStatus := h.indexer.GetHealthStatus()

	response := HealthResponse{
		Ready:        healthStatus.Ready,
		Version:      startup.Version,
		Uptime:       healthStatus.Uptime,
		Scanning:     healthStatus.Scanning,
		Phase:        healthStatus.Progress.Phase,
		LastError:    healthStatus.LastError,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	switch {
	case !healthStatus.Ready:
		response.Status = statusStarting
	case healthStatus.LastError != "":
		response.Status = statusDegraded
	default:
		response.Status = statusHealthy
	}

	if !healthStatus.LastScan.IsZero() {
		response.LastScan = healthStatus.LastScan.Format(time.RFC3339)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if stats, err := h.db.GetStats(ctx); err == nil {
		response.Libraries = stats.Libraries
		response.FilesIndexed = stats.FilesIndexed
		response.Conversations = stats.Conversations
	}

	// Return 503 only if not ready at all
	status := http.StatusOK
	if !healthStatus.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, status, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 once the first scan cycle has finished and the
// database answers.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if !h.indexer.IsReady() {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	if err := h.db.Ping(r.Context()); err != nil {
		logging.Warn("Readiness check: database unavailable: %v", err)
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "database_unavailable"})
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ready"})
}
