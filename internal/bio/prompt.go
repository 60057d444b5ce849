// Package bio generates and stores short artist biographies.
package bio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/nerdlinks/internal/artist"
	"github.com/sydlexius/nerdlinks/internal/database"
)

// ErrNoPrompt is returned when no prompt is active.
var ErrNoPrompt = errors.New("no active bio prompt")

// Prompt is the operator-editable text wrapped around an artist's name.
type Prompt struct {
	ID         string    `json:"id"`
	BeforeName string    `json:"prompt_before_name"`
	AfterName  string    `json:"prompt_after_name"`
	Active     bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}

// PromptStore persists prompts. At most one prompt is active.
type PromptStore struct {
	db *sql.DB
}

// NewPromptStore creates a prompt store.
func NewPromptStore(db *sql.DB) *PromptStore {
	return &PromptStore{db: db}
}

// Active returns the active prompt or ErrNoPrompt.
func (s *PromptStore) Active(ctx context.Context) (*Prompt, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, prompt_before_name, prompt_after_name, is_active, created_at
		FROM aiprompts WHERE is_active = 1
	`)
	var p Prompt
	var active int
	var createdAt string
	err := row.Scan(&p.ID, &p.BeforeName, &p.AfterName, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPrompt
	}
	if err != nil {
		return nil, fmt.Errorf("loading active prompt: %w", err)
	}
	p.Active = active == 1
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

// Create stores a prompt and makes it the active one.
func (s *PromptStore) Create(ctx context.Context, p *Prompt) error {
	if strings.TrimSpace(p.BeforeName) == "" {
		return fmt.Errorf("prompt_before_name is required")
	}
	p.ID = uuid.New().String()
	p.CreatedAt = time.Now().UTC()
	p.Active = true

	return database.InTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE aiprompts SET is_active = 0 WHERE is_active = 1`); err != nil {
			return fmt.Errorf("deactivating prompts: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO aiprompts (id, prompt_before_name, prompt_after_name, is_active, created_at)
			VALUES (?, ?, ?, 1, ?)
		`, p.ID, p.BeforeName, p.AfterName, p.CreatedAt.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("inserting prompt: %w", err)
		}
		return nil
	})
}

// BuildPrompt assembles the generation prompt for a: the prompt text around
// the artist's name followed by one line per known profile.
func BuildPrompt(p *Prompt, a *artist.Artist) string {
	parts := []string{p.BeforeName, a.Name, p.AfterName}
	if v := a.Value("spotify"); v != "" {
		parts = append(parts, "Spotify ID: "+v)
	}
	if v := a.Value("instagram"); v != "" {
		parts = append(parts, "Instagram: https://instagram.com/"+v)
	}
	if v := a.Value("x"); v != "" {
		parts = append(parts, "Twitter: https://twitter.com/"+v)
	}
	if v := a.Value("soundcloud"); v != "" {
		parts = append(parts, "SoundCloud: "+v)
	}
	if v := a.Value("youtube"); v != "" {
		parts = append(parts, "YouTube: https://youtube.com/@"+strings.TrimPrefix(v, "@"))
	}
	if v := a.Value("youtubechannel"); v != "" {
		parts = append(parts, "YouTube Channel: "+v)
	}
	parts = append(parts, "Focus on genre, key achievements, and unique traits; avoid speculation.")
	return strings.Join(parts, "\n")
}

// hasSourceData reports whether a has any profile a biography can be
// written from.
func hasSourceData(a *artist.Artist) bool {
	for _, key := range []string{"instagram", "x", "soundcloud", "youtube", "youtubechannel"} {
		if a.Value(key) != "" {
			return true
		}
	}
	return false
}
