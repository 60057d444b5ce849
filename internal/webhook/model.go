// Package webhook delivers contribution and artist events to chat and
// notification services.
package webhook

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/sydlexius/nerdlinks/internal/event"
)

// ErrNotFound is returned when a webhook does not exist.
var ErrNotFound = errors.New("webhook not found")

// Webhook is a configured delivery endpoint and the events it receives.
type Webhook struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Type      string    `json:"type"`
	Events    []string  `json:"events"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Webhook types.
const (
	TypeGeneric = "generic"
	TypeDiscord = "discord"
	TypeSlack   = "slack"
	TypeGotify  = "gotify"
)

// Validate checks required fields, the payload type and the event names.
func (w *Webhook) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("name is required")
	}
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("url must be an absolute http(s) URL")
	}
	switch w.Type {
	case TypeGeneric, TypeDiscord, TypeSlack, TypeGotify:
	default:
		return fmt.Errorf("unknown webhook type %q", w.Type)
	}
	for _, e := range w.Events {
		if !slices.Contains(event.Types, event.Type(e)) {
			return fmt.Errorf("unknown event %q", e)
		}
	}
	return nil
}
