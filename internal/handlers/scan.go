package handlers

import (
	"net/http"

	"subtitle-index/internal/indexer"
)

// ScanStatusResponse reports the current or most recent scan cycle.
type ScanStatusResponse struct {
	Ready     bool             `json:"ready"`
	LastScan  string           `json:"lastScan,omitempty"`
	LastError string           `json:"lastError,omitempty"`
	Progress  indexer.Progress `json:"progress"`
}

// TriggerScan requests an immediate scan cycle without waiting for it.
func (h *Handlers) TriggerScan(w http.ResponseWriter, _ *http.Request) {
	h.indexer.TriggerScan()
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "scan_triggered"})
}

// ScanStatus returns scan progress.
func (h *Handlers) ScanStatus(w http.ResponseWriter, _ *http.Request) {
	status := h.indexer.GetHealthStatus()

	resp := ScanStatusResponse{
		Ready:     status.Ready,
		LastError: status.LastError,
		Progress:  h.indexer.GetProgress(),
	}
	if !status.LastScan.IsZero() {
		resp.LastScan = status.LastScan.UTC().Format("2006-01-02T15:04:05Z07:00")
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, resp)
}
