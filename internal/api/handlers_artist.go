package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/sydlexius/nerdlinks/internal/api/middleware"
	"github.com/sydlexius/nerdlinks/internal/artist"
	"github.com/sydlexius/nerdlinks/internal/ugc"
)

// handleGetArtist returns one artist with its rendered links.
// GET /api/v1/artists/{id}
func (r *Router) handleGetArtist(w http.ResponseWriter, req *http.Request) {
	a, err := r.artistService.GetByID(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeError(w, err)
		return
	}
	links, err := r.linkBuilder.Build(req.Context(), a)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"artist": a,
		"links":  links,
	})
}

// handleArtistLinks returns only the rendered links.
// GET /api/v1/artists/{id}/links
func (r *Router) handleArtistLinks(w http.ResponseWriter, req *http.Request) {
	a, err := r.artistService.GetByID(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeError(w, err)
		return
	}
	links, err := r.linkBuilder.Build(req.Context(), a)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// handleSearchArtists searches artists by name.
// GET /api/v1/artists?q=&limit=
func (r *Router) handleSearchArtists(w http.ResponseWriter, req *http.Request) {
	params := artist.SearchParams{Query: strings.TrimSpace(req.URL.Query().Get("q"))}
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Limit = n
		}
	}
	artists, err := r.artistService.Search(req.Context(), params)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artists)
}

type addArtistRequest struct {
	SpotifyID string `json:"spotify_id"`
}

// handleAddArtist creates an artist from a Spotify ID, or returns the
// existing one.
// POST /api/v1/artists
func (r *Router) handleAddArtist(w http.ResponseWriter, req *http.Request) {
	if r.artistAdder == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "artist lookups are not configured"})
		return
	}
	var body addArtistRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	body.SpotifyID = strings.TrimSpace(body.SpotifyID)
	if body.SpotifyID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "spotify_id is required"})
		return
	}

	u, err := r.currentUser(req)
	if err != nil {
		r.writeError(w, err)
		return
	}
	if u == nil && !r.openMode {
		r.writeError(w, ugc.ErrAuthenticationRequired)
		return
	}
	var addedBy string
	if u != nil {
		addedBy = u.ID
	}

	res, err := r.artistAdder.AddFromSpotify(req.Context(), body.SpotifyID, addedBy, u.DisplayName())
	if err != nil {
		r.writeError(w, err)
		return
	}
	status := http.StatusOK
	if res.Status == artist.AddStatusAdded {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// handleRemovePlatform clears a platform value from an artist. For wallets,
// ?value= removes a single address.
// DELETE /api/v1/artists/{id}/platforms/{siteKey}
func (r *Router) handleRemovePlatform(w http.ResponseWriter, req *http.Request) {
	err := r.approver.Remove(req.Context(),
		middleware.UserIDFromContext(req.Context()),
		req.PathValue("id"),
		req.PathValue("siteKey"),
		req.URL.Query().Get("value"))
	if err != nil {
		r.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
