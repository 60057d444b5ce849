package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sydlexius/nerdlinks/internal/api/middleware"
	"github.com/sydlexius/nerdlinks/internal/ugc"
)

type submitRequest struct {
	URL string `json:"url"`
}

// handleSubmitContribution records a URL against an artist. Rejections are
// reported with a 4xx status and the same body shape as successes.
// POST /api/v1/artists/{id}/contributions
func (r *Router) handleSubmitContribution(w http.ResponseWriter, req *http.Request) {
	var body submitRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	body.URL = strings.TrimSpace(body.URL)
	if body.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}

	res, err := r.ledger.Submit(req.Context(), ugc.SubmitRequest{
		URL:           body.URL,
		ArtistID:      req.PathValue("id"),
		ContributorID: middleware.UserIDFromContext(req.Context()),
	})
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, submitStatus(res), res)
}

func submitStatus(res *ugc.SubmitResult) int {
	switch {
	case res.Status == ugc.StatusAccepted:
		return http.StatusCreated
	case res.Status == ugc.StatusPending:
		return http.StatusAccepted
	case res.Reason == ugc.ReasonDuplicate:
		return http.StatusConflict
	case res.Reason == ugc.ReasonUnauthorized:
		return http.StatusForbidden
	default:
		return http.StatusUnprocessableEntity
	}
}

type approveRequest struct {
	IDs []string `json:"ids"`
}

// handleApproveContributions approves a batch of pending contributions.
// POST /api/v1/contributions/approve
func (r *Router) handleApproveContributions(w http.ResponseWriter, req *http.Request) {
	var body approveRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	if len(body.IDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ids is required"})
		return
	}
	results, err := r.approver.ApproveBatch(req.Context(), middleware.UserIDFromContext(req.Context()), body.IDs)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleListPending lists contributions awaiting moderation.
// GET /api/v1/contributions/pending?limit=
func (r *Router) handleListPending(w http.ResponseWriter, req *http.Request) {
	if !r.openMode && !r.requireAdmin(w, req) {
		return
	}
	limit := intParam(req, "limit", 50)
	pending, err := r.ledger.Pending(req.Context(), limit)
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// handlePendingCount returns the moderation queue length.
// GET /api/v1/contributions/pending/count
func (r *Router) handlePendingCount(w http.ResponseWriter, req *http.Request) {
	if !r.openMode && !r.requireAdmin(w, req) {
		return
	}
	n, err := r.ledger.PendingCount(req.Context())
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// handleLeaderboard ranks contributors, optionally within a date range.
// GET /api/v1/leaderboard?from=&to=&limit=
func (r *Router) handleLeaderboard(w http.ResponseWriter, req *http.Request) {
	from, ok := timeParam(w, req, "from")
	if !ok {
		return
	}
	to, ok := timeParam(w, req, "to")
	if !ok {
		return
	}
	entries, err := r.ledger.Leaderboard(req.Context(), from, to, intParam(req, "limit", 25))
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleMyStats returns the caller's contribution counts.
// GET /api/v1/me/stats
func (r *Router) handleMyStats(w http.ResponseWriter, req *http.Request) {
	stats, err := r.ledger.Stats(req.Context(), middleware.UserIDFromContext(req.Context()))
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func intParam(req *http.Request, name string, def int) int {
	n, err := strconv.Atoi(req.URL.Query().Get(name))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// timeParam parses an RFC3339 or YYYY-MM-DD query parameter. A missing
// parameter yields nil.
func timeParam(w http.ResponseWriter, req *http.Request, name string) (*time.Time, bool) {
	v := req.URL.Query().Get(name)
	if v == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, true
		}
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name + " date"})
	return nil, false
}
