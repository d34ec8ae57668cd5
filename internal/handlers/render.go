package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"subtitle-index/internal/render"
)

const maxRenderBody = 8 << 20

// Render produces a clip or still and returns its output path. Identical
// requests reuse the earlier artifact.
func (h *Handlers) Render(w http.ResponseWriter, r *http.Request) {
	var req render.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRenderBody)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "Render request too large", err)
			return
		}
		writeJSONError(w, http.StatusBadRequest, "Invalid render request", err)
		return
	}

	result, err := h.renderer.Render(r.Context(), &req)
	if err != nil {
		writeError(w, "Render failed", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, result)
}

// ServeOutput serves rendered artifacts under render.OutputPrefix. Hidden
// files, which include renders still in progress, and directory listings
// are not served.
func (h *Handlers) ServeOutput(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, render.OutputPrefix)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, filepath.Join(h.outputDir, name))
}
