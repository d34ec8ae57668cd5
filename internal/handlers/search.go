package handlers

import (
	"net/http"
	"strconv"

	"subtitle-index/internal/search"
)

// SearchResponse wraps search results.
type SearchResponse struct {
	Phrase  string          `json:"phrase"`
	Results []search.Result `json:"results"`
}

// Search finds conversations containing a phrase. Query parameters:
// phrase, files (libraryId[/path],...), languages (code,... where an empty
// entry matches untagged tracks) and limit.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	phrase := query.Get("phrase")

	files, err := search.ParseFileFilters(query.Get("files"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid file filter", err)
		return
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeJSONError(w, http.StatusBadRequest, "Invalid limit", nil)
			return
		}
	}

	filters := search.Filters{
		File:     files,
		Language: search.ParseLanguages(query.Get("languages")),
	}

	results, err := h.search.Search(r.Context(), phrase, filters, limit)
	if err != nil {
		writeError(w, "Search failed", err)
		return
	}
	if results == nil {
		results = []search.Result{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, SearchResponse{Phrase: phrase, Results: results})
}
