package api

import (
	"net/http"

	"github.com/sydlexius/nerdlinks/internal/webhook"
)

type webhookRequest struct {
	Name    string   `json:"name"`
	URL     string   `json:"url"`
	Type    string   `json:"type"`
	Events  []string `json:"events"`
	Enabled *bool    `json:"enabled"`
}

// apply copies the request onto w. Enabled is left alone when omitted.
func (b *webhookRequest) apply(w *webhook.Webhook) {
	w.Name = b.Name
	w.URL = b.URL
	if b.Type != "" {
		w.Type = b.Type
	}
	w.Events = b.Events
	if b.Enabled != nil {
		w.Enabled = *b.Enabled
	}
}

// handleListWebhooks returns all configured webhooks.
// GET /api/v1/webhooks
func (r *Router) handleListWebhooks(w http.ResponseWriter, req *http.Request) {
	if !r.requireAdmin(w, req) {
		return
	}
	hooks, err := r.webhookService.List(req.Context())
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hooks)
}

// handleCreateWebhook creates a webhook.
// POST /api/v1/webhooks
func (r *Router) handleCreateWebhook(w http.ResponseWriter, req *http.Request) {
	if !r.requireAdmin(w, req) {
		return
	}
	var body webhookRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	wh := webhook.Webhook{Type: webhook.TypeGeneric, Enabled: true}
	body.apply(&wh)
	if err := wh.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := r.webhookService.Create(req.Context(), &wh); err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wh)
}

// handleGetWebhook returns one webhook.
// GET /api/v1/webhooks/{id}
func (r *Router) handleGetWebhook(w http.ResponseWriter, req *http.Request) {
	if !r.requireAdmin(w, req) {
		return
	}
	wh, err := r.webhookService.GetByID(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

// handleUpdateWebhook replaces a webhook's settings.
// PUT /api/v1/webhooks/{id}
func (r *Router) handleUpdateWebhook(w http.ResponseWriter, req *http.Request) {
	if !r.requireAdmin(w, req) {
		return
	}
	existing, err := r.webhookService.GetByID(req.Context(), req.PathValue("id"))
	if err != nil {
		r.writeError(w, err)
		return
	}
	var body webhookRequest
	if !decodeJSON(w, req, &body) {
		return
	}
	wh := *existing
	body.apply(&wh)
	if err := wh.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := r.webhookService.Update(req.Context(), &wh); err != nil {
		r.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

// handleDeleteWebhook removes a webhook.
// DELETE /api/v1/webhooks/{id}
func (r *Router) handleDeleteWebhook(w http.ResponseWriter, req *http.Request) {
	if !r.requireAdmin(w, req) {
		return
	}
	if err := r.webhookService.Delete(req.Context(), req.PathValue("id")); err != nil {
		r.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
