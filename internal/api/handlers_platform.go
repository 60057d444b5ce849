package api

import (
	"net/http"
	"regexp"
	"time"

	"github.com/sydlexius/nerdlinks/internal/platform"
)

type platformResponse struct {
	Rules      []platform.Rule `json:"rules"`
	Skipped    []skippedRule   `json:"skipped,omitempty"`
	Generation uint64          `json:"generation"`
	LoadedAt   time.Time       `json:"loaded_at"`
}

type skippedRule struct {
	SiteKey string `json:"site_key"`
	Error   string `json:"error"`
}

// handleListPlatforms returns the rules currently used for matching, plus
// any stored rules that failed to compile.
// GET /api/v1/platforms
func (r *Router) handleListPlatforms(w http.ResponseWriter, req *http.Request) {
	snap, err := r.registry.Load(req.Context())
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}

// handleRefreshPlatforms drops the cached snapshot and reloads the rules.
// POST /api/v1/platforms/refresh
func (r *Router) handleRefreshPlatforms(w http.ResponseWriter, req *http.Request) {
	if !r.requireAdmin(w, req) {
		return
	}
	r.registry.Invalidate()
	snap, err := r.registry.Load(req.Context())
	if err != nil {
		r.writeError(w, err)
		return
	}
	r.logger.Info("platform rules refreshed", "rules", len(snap.Rules), "skipped", len(snap.Skipped))
	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}

// handleUpsertPlatform creates or replaces the rule for a site key.
// PUT /api/v1/platforms/{siteKey}
func (r *Router) handleUpsertPlatform(w http.ResponseWriter, req *http.Request) {
	if !r.requireAdmin(w, req) {
		return
	}
	var rule platform.Rule
	if !decodeJSON(w, req, &rule) {
		return
	}
	rule.SiteKey = req.PathValue("siteKey")
	rule.ID = ""
	if rule.Pattern == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pattern is required"})
		return
	}
	if _, err := regexp.Compile("(?i)" + rule.Pattern); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pattern: " + err.Error()})
		return
	}
	if err := r.platformService.Upsert(req.Context(), &rule); err != nil {
		r.writeError(w, err)
		return
	}
	r.registry.Invalidate()
	saved, err := r.platformService.GetBySiteKey(req.Context(), rule.SiteKey)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// handleDeletePlatform removes the rule for a site key.
// DELETE /api/v1/platforms/{siteKey}
func (r *Router) handleDeletePlatform(w http.ResponseWriter, req *http.Request) {
	if !r.requireAdmin(w, req) {
		return
	}
	if err := r.platformService.Delete(req.Context(), req.PathValue("siteKey")); err != nil {
		r.writeError(w, err)
		return
	}
	r.registry.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func snapshotResponse(snap *platform.Snapshot) platformResponse {
	resp := platformResponse{
		Rules:      make([]platform.Rule, 0, len(snap.Rules)),
		Generation: snap.Generation,
		LoadedAt:   snap.LoadedAt,
	}
	for _, c := range snap.Rules {
		resp.Rules = append(resp.Rules, c.Rule)
	}
	for _, s := range snap.Skipped {
		resp.Skipped = append(resp.Skipped, skippedRule{SiteKey: s.Rule.SiteKey, Error: s.Err.Error()})
	}
	return resp
}
