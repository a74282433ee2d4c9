package api

import (
	"net/http"
	"strconv"
	"strings"

	"conveyor/internal/metrics"
)

// handleSearchItems suggests catalog item identifiers for a query. The
// response order is the matcher's ranking; clients display it as-is.
func (rt *Router) handleSearchItems(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Query parameter q is required", nil)
		return
	}

	limit := rt.cfg.SearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed < limit {
			limit = parsed
		}
	}

	results := rt.catalog.Search(query, limit)
	metrics.SearchesTotal.Inc()
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
	})
}
