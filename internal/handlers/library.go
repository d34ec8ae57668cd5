package handlers

import (
	"fmt"
	"net/http"
	"path/filepath"

	"subtitle-index/internal/database"
	"subtitle-index/internal/logging"
	"subtitle-index/internal/thumbnail"
)

// ListLibraries returns every registered library.
func (h *Handlers) ListLibraries(w http.ResponseWriter, r *http.Request) {
	libraries, err := h.db.ListLibraries(r.Context())
	if err != nil {
		writeError(w, "Failed to list libraries", err)
		return
	}
	if libraries == nil {
		libraries = []database.Library{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, libraries)
}

// GetFolders returns the folder tree of each library keyed by library id.
func (h *Handlers) GetFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.db.Folders(r.Context())
	if err != nil {
		writeError(w, "Failed to list folders", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, folders)
}

// GetFile returns a file and its tracks.
func (h *Handlers) GetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Invalid file id", nil)
		return
	}

	details, err := h.db.GetFileDetails(r.Context(), id)
	if err != nil {
		writeError(w, "Failed to get file", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, details)
}

// GetTrack returns a track with its preamble, non-dialogue events and
// every dialogue line in start order.
func (h *Handlers) GetTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Invalid track id", nil)
		return
	}

	track, err := h.db.GetTrackWithLines(r.Context(), id)
	if err != nil {
		writeError(w, "Failed to get track", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, track)
}

// GetThumbnail serves a JPEG of the file's first video track.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Invalid file id", nil)
		return
	}

	if h.thumbGen == nil || !h.thumbGen.IsEnabled() {
		writeJSONError(w, http.StatusNotFound, "Thumbnails are disabled", nil)
		return
	}

	details, err := h.db.GetFileDetails(r.Context(), id)
	if err != nil {
		writeError(w, "Failed to get file", err)
		return
	}

	var video *database.Track
	for i := range details.Tracks {
		if details.Tracks[i].Type == database.TrackTypeVideo {
			video = &details.Tracks[i]
			break
		}
	}
	if video == nil {
		writeJSONError(w, http.StatusNotFound, "File has no video track", nil)
		return
	}

	lib, err := h.db.GetLibrary(r.Context(), details.File.LibraryID)
	if err != nil {
		writeError(w, "Failed to get library", err)
		return
	}

	src := thumbnail.Source{
		Path:        filepath.Join(h.indexer.LibraryRoot(*lib), filepath.FromSlash(details.File.Path)),
		StreamIndex: video.TrackNumber,
		Version:     fmt.Sprintf("%d-%d", details.File.LastModified, details.File.Size),
	}

	data, err := h.thumbGen.Get(r.Context(), src)
	if err != nil {
		logging.Warn("Thumbnail for file %d failed: %v", id, err)
		writeJSONError(w, http.StatusInternalServerError, "Failed to generate thumbnail", err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := w.Write(data); err != nil {
		logging.Debug("Thumbnail write for file %d failed: %v", id, err)
	}
}
