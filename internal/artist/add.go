package artist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sydlexius/nerdlinks/internal/database"
	"github.com/sydlexius/nerdlinks/internal/event"
)

// NameLookup resolves a Spotify artist ID to the artist's name.
type NameLookup interface {
	ArtistName(ctx context.Context, spotifyID string) (string, error)
}

// Publisher accepts events.
type Publisher interface {
	Publish(e event.Event) bool
}

// AddStatus is the outcome of adding an artist.
type AddStatus string

// Add outcomes.
const (
	AddStatusAdded  AddStatus = "added"
	AddStatusExists AddStatus = "exists"
)

// AddResult reports the artist that was added or already present.
type AddResult struct {
	Status AddStatus `json:"status"`
	Artist *Artist   `json:"artist"`
}

// Adder creates artists from their Spotify ID.
type Adder struct {
	db     database.DBTX
	lookup NameLookup
	events Publisher
	logger *slog.Logger
}

// NewAdder creates an adder.
func NewAdder(db database.DBTX, lookup NameLookup, events Publisher, logger *slog.Logger) *Adder {
	return &Adder{
		db:     db,
		lookup: lookup,
		events: events,
		logger: logger.With(slog.String("component", "artist-adder")),
	}
}

// AddFromSpotify returns the artist with spotifyID, creating it from the
// Spotify name when it does not exist yet. addedBy is the contributor's user
// ID and addedByName the name shown in the announcement.
func (d *Adder) AddFromSpotify(ctx context.Context, spotifyID, addedBy, addedByName string) (*AddResult, error) {
	svc := NewService(d.db)
	if existing, err := svc.GetBySpotify(ctx, spotifyID); err != nil {
		return nil, err
	} else if existing != nil {
		return &AddResult{Status: AddStatusExists, Artist: existing}, nil
	}

	name, err := d.lookup.ArtistName(ctx, spotifyID)
	if err != nil {
		return nil, fmt.Errorf("looking up spotify artist: %w", err)
	}

	a := &Artist{Name: name, Platforms: map[string]string{"spotify": spotifyID}, AddedBy: addedBy}
	if err := svc.Create(ctx, a); err != nil {
		if database.IsUniqueViolation(err) {
			existing, gerr := svc.GetBySpotify(ctx, spotifyID)
			if gerr == nil && existing != nil {
				return &AddResult{Status: AddStatusExists, Artist: existing}, nil
			}
		}
		return nil, err
	}

	d.logger.Info("artist added", "artist_id", a.ID, "spotify", spotifyID)
	if addedBy != "" {
		d.events.Publish(event.Event{
			Type:     event.ArtistAdded,
			ArtistID: a.ID,
			Message: fmt.Sprintf("%s added new artist named: %s (Submitted SpotifyId: %s) %s",
				addedByName, a.Name, spotifyID, a.CreatedAt.Format(time.RFC3339)),
			Data: map[string]any{"spotify": spotifyID, "added_by": addedBy},
		})
	}
	return &AddResult{Status: AddStatusAdded, Artist: a}, nil
}
