package api

import (
	"errors"
	"net/http"

	"github.com/sydlexius/nerdlinks/internal/bio"
)

// handleGetBio returns the artist biography, generating it when missing.
// GET /api/v1/artists/{id}/bio
func (r *Router) handleGetBio(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	text, err := r.bioService.Get(req.Context(), id)
	if errors.Is(err, bio.ErrDisabled) || errors.Is(err, bio.ErrNoPrompt) {
		text, err = bio.Placeholder, nil
	}
	if err != nil {
		r.writeError(w, err)
		return
	}
	if text == "" {
		text = bio.Placeholder
	}
	writeJSON(w, http.StatusOK, map[string]string{"artist_id": id, "bio": text})
}

type updateBioRequest struct {
	Bio string `json:"bio"`
}

// handleUpdateBio replaces the stored biography.
// PUT /api/v1/artists/{id}/bio
func (r *Router) handleUpdateBio(w http.ResponseWriter, req *http.Request) {
	if !r.requireAdmin(w, req) {
		return
	}
	var body updateBioRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	if err := r.bioService.Update(req.Context(), req.PathValue("id"), body.Bio); err != nil {
		if errors.Is(err, bio.ErrEmpty) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
