package api

import (
	"net/http"
	"strings"
)

type extractRequest struct {
	URL string `json:"url"`
}

// handleExtract resolves a URL without storing anything. A URL that matches
// no platform yields a null body.
// POST /api/v1/extract
func (r *Router) handleExtract(w http.ResponseWriter, req *http.Request) {
	var body extractRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	body.URL = strings.TrimSpace(body.URL)
	if body.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}

	res, err := r.extractor.Extract(req.Context(), body.URL)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
