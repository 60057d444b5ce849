package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sydlexius/nerdlinks/internal/event"
)

// discordLimit is Discord's maximum message content length.
const discordLimit = 2000

// formatPayload returns the request body and content type for w.
func formatPayload(w *Webhook, e event.Event) ([]byte, string) {
	var payload any
	switch w.Type {
	case TypeDiscord:
		payload = map[string]any{"content": truncate(describe(e), discordLimit)}
	case TypeSlack:
		payload = map[string]any{"text": describe(e)}
	case TypeGotify:
		payload = map[string]any{
			"title":   fmt.Sprintf("nerdlinks: %s", e.Type),
			"message": describe(e),
		}
	default:
		payload = map[string]any{
			"event":     string(e.Type),
			"timestamp": e.Timestamp.UTC().Format(time.RFC3339),
			"artist_id": e.ArtistID,
			"message":   e.Message,
			"data":      e.Data,
		}
	}
	body, _ := json.Marshal(payload)
	return body, "application/json"
}

// describe returns the human-readable text of e.
func describe(e event.Event) string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Data) == 0 {
		return string(e.Type)
	}
	b, _ := json.Marshal(e.Data)
	return fmt.Sprintf("%s %s", e.Type, b)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
