package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/nerdlinks/internal/event"
)

// DiscordName is the name of the webhook seeded from configuration.
const DiscordName = "discord"

// Service stores webhooks.
type Service struct {
	db *sql.DB
}

// NewService creates a webhook service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const webhookColumns = `id, name, url, type, events, enabled, created_at, updated_at`

// Create validates and inserts a webhook. An empty type means generic.
func (s *Service) Create(ctx context.Context, w *Webhook) error {
	if w.Type == "" {
		w.Type = TypeGeneric
	}
	if err := w.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	w.ID = uuid.New().String()
	w.CreatedAt = now
	w.UpdatedAt = now

	events, err := marshalEvents(w.Events)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO webhooks (`+webhookColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.Name, w.URL, w.Type, events, boolToInt(w.Enabled),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting webhook: %w", err)
	}
	return nil
}

// GetByID returns a webhook.
func (s *Service) GetByID(ctx context.Context, id string) (*Webhook, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = ?`, id)
	w, err := scanWebhook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting webhook: %w", err)
	}
	return w, nil
}

// List returns all webhooks ordered by name.
func (s *Service) List(ctx context.Context) ([]Webhook, error) {
	return s.query(ctx, `SELECT `+webhookColumns+` FROM webhooks ORDER BY name, id`)
}

// ListByEvent returns the enabled webhooks subscribed to t.
func (s *Service) ListByEvent(ctx context.Context, t event.Type) ([]Webhook, error) {
	return s.query(ctx, `
		SELECT `+webhookColumns+` FROM webhooks
		WHERE enabled = 1 AND EXISTS (SELECT 1 FROM json_each(webhooks.events) WHERE value = ?)
		ORDER BY name, id
	`, string(t))
}

func (s *Service) query(ctx context.Context, q string, args ...any) ([]Webhook, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing webhooks: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	webhooks := []Webhook{}
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning webhook: %w", err)
		}
		webhooks = append(webhooks, *w)
	}
	return webhooks, rows.Err()
}

// Update replaces a webhook's settings.
func (s *Service) Update(ctx context.Context, w *Webhook) error {
	if err := w.Validate(); err != nil {
		return err
	}
	w.UpdatedAt = time.Now().UTC()
	events, err := marshalEvents(w.Events)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE webhooks SET name = ?, url = ?, type = ?, events = ?, enabled = ?, updated_at = ?
		WHERE id = ?
	`, w.Name, w.URL, w.Type, events, boolToInt(w.Enabled), w.UpdatedAt.Format(time.RFC3339), w.ID)
	if err != nil {
		return fmt.Errorf("updating webhook: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a webhook.
func (s *Service) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EnsureDiscord points the configured moderation channel webhook at url,
// creating it on first use. It subscribes to the contribution and artist
// notices.
func (s *Service) EnsureDiscord(ctx context.Context, url string) (*Webhook, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE name = ? AND type = ? LIMIT 1`, DiscordName, TypeDiscord)
	existing, err := scanWebhook(row)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("looking up discord webhook: %w", err)
	}

	if existing != nil {
		if existing.URL == url {
			return existing, nil
		}
		existing.URL = url
		return existing, s.Update(ctx, existing)
	}

	w := &Webhook{
		Name:    DiscordName,
		URL:     url,
		Type:    TypeDiscord,
		Events:  []string{string(event.ArtistDataAdded), string(event.ContributionPending), string(event.ArtistAdded)},
		Enabled: true,
	}
	return w, s.Create(ctx, w)
}

func scanWebhook(row interface{ Scan(...any) error }) (*Webhook, error) {
	var w Webhook
	var events, createdAt, updatedAt string
	var enabled int
	if err := row.Scan(&w.ID, &w.Name, &w.URL, &w.Type, &events, &enabled, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	w.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(events), &w.Events); err != nil || w.Events == nil {
		w.Events = []string{}
	}
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	w.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &w, nil
}

func marshalEvents(events []string) (string, error) {
	if events == nil {
		events = []string{}
	}
	b, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("marshaling events: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
