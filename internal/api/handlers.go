package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sydlexius/nerdlinks/internal/api/middleware"
	"github.com/sydlexius/nerdlinks/internal/artist"
	"github.com/sydlexius/nerdlinks/internal/bio"
	"github.com/sydlexius/nerdlinks/internal/database"
	"github.com/sydlexius/nerdlinks/internal/platform"
	"github.com/sydlexius/nerdlinks/internal/spotify"
	"github.com/sydlexius/nerdlinks/internal/ugc"
	"github.com/sydlexius/nerdlinks/internal/user"
	"github.com/sydlexius/nerdlinks/internal/version"
	"github.com/sydlexius/nerdlinks/internal/webhook"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Short client-facing error messages.
const (
	msgNotApproved = "not an approved link"
	msgDuplicate   = "already added"
	msgUnauthorized = "unauthorized"
	msgNotFound    = "not found"
	msgInternal    = "something went wrong, please try again"
)

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	status, code := "ok", http.StatusOK
	var schema int64
	if err := r.db.PingContext(req.Context()); err != nil {
		r.logger.Error("health check: database ping failed", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	} else if schema, err = database.SchemaVersion(req.Context(), r.db); err != nil {
		r.logger.Error("health check: reading schema version", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{
		"status":  status,
		"version": version.Version,
		"commit":  version.Commit,
		"schema":  strconv.FormatInt(schema, 10),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleMe(w http.ResponseWriter, req *http.Request) {
	u, err := r.userService.GetByID(req.Context(), middleware.UserIDFromContext(req.Context()))
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// currentUser returns the authenticated user, or nil for anonymous requests.
func (r *Router) currentUser(req *http.Request) (*user.User, error) {
	id := middleware.UserIDFromContext(req.Context())
	if id == "" {
		return nil, nil
	}
	u, err := r.userService.GetByID(req.Context(), id)
	if errors.Is(err, user.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

// requireAdmin writes an error response and returns false unless the caller
// is an admin.
func (r *Router) requireAdmin(w http.ResponseWriter, req *http.Request) bool {
	u, err := r.currentUser(req)
	if err != nil {
		r.writeError(w, err)
		return false
	}
	if u == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": msgUnauthorized})
		return false
	}
	if !u.IsAdmin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": msgUnauthorized})
		return false
	}
	return true
}

// decodeJSON reads a size-limited JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, req *http.Request, v any) bool {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	if err := json.NewDecoder(req.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// writeError maps domain errors to status codes and short messages. Errors
// without a mapping are logged and reported as internal errors.
func (r *Router) writeError(w http.ResponseWriter, err error) {
	code, msg := errorStatus(err)
	if code == http.StatusInternalServerError {
		r.logger.Error("request failed", "error", err)
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ugc.ErrAuthenticationRequired):
		return http.StatusUnauthorized, msgUnauthorized
	case errors.Is(err, ugc.ErrUnauthorized):
		return http.StatusForbidden, msgUnauthorized
	case errors.Is(err, ugc.ErrAlreadyAccepted):
		return http.StatusConflict, msgDuplicate
	case errors.Is(err, ugc.ErrUnsupportedSite), errors.Is(err, artist.ErrUnknownField):
		return http.StatusBadRequest, msgNotApproved
	case errors.Is(err, ugc.ErrNotFound), errors.Is(err, artist.ErrNotFound),
		errors.Is(err, user.ErrNotFound), errors.Is(err, platform.ErrNotFound),
		errors.Is(err, webhook.ErrNotFound), errors.Is(err, spotify.ErrNotFound):
		return http.StatusNotFound, msgNotFound
	case errors.Is(err, spotify.ErrInvalidID):
		return http.StatusBadRequest, "invalid spotify id"
	case errors.Is(err, bio.ErrDisabled), errors.Is(err, bio.ErrNoPrompt), errors.Is(err, spotify.ErrUnavailable):
		return http.StatusServiceUnavailable, msgInternal
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode error", http.StatusInternalServerError)
	}
}
