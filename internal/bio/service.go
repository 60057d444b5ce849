package bio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/sydlexius/nerdlinks/internal/artist"
	"github.com/sydlexius/nerdlinks/internal/event"
)

// Placeholder is returned for artists with nothing to write a biography from.
const Placeholder = "We need artist data to generate a summary. Try adding some to get started!"

// maxBackground bounds concurrent event-driven regenerations.
const maxBackground = 4

// ErrDisabled is returned when no generator is configured.
var ErrDisabled = errors.New("bio generation is not configured")

// ErrEmpty is returned when an edited biography is blank.
var ErrEmpty = errors.New("bio must not be empty")

// Artists is the subset of the artist store the bio service needs.
type Artists interface {
	GetByID(ctx context.Context, id string) (*artist.Artist, error)
	SetBio(ctx context.Context, id, bio string) error
}

// Prompts provides the active prompt.
type Prompts interface {
	Active(ctx context.Context) (*Prompt, error)
}

// Service reads, generates and edits artist biographies.
type Service struct {
	artists Artists
	prompts Prompts
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger

	group singleflight.Group
	sem   *semaphore.Weighted

	// mu guards epochs and orders the staleness check before SetBio
	// against invalidations.
	mu     sync.Mutex
	epochs map[string]uint64
}

// NewService creates a bio service. gen may be nil, which disables
// generation.
func NewService(artists Artists, prompts Prompts, gen Generator, logger *slog.Logger) *Service {
	return &Service{
		artists: artists,
		prompts: prompts,
		gen:     gen,
		timeout: 25 * time.Second,
		logger:  logger.With(slog.String("component", "bio")),
		sem:     semaphore.NewWeighted(maxBackground),
		epochs:  make(map[string]uint64),
	}
}

// Get returns the stored biography, generating one when it is missing.
func (s *Service) Get(ctx context.Context, artistID string) (string, error) {
	a, err := s.artists.GetByID(ctx, artistID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(a.Bio) != "" {
		return a.Bio, nil
	}
	if !hasSourceData(a) {
		return Placeholder, nil
	}
	return s.Regenerate(ctx, artistID)
}

// Regenerate generates a new biography and stores it. An empty generation
// leaves the stored biography unchanged. Concurrent calls for the same
// artist share one generation unless the artist was invalidated in between.
func (s *Service) Regenerate(ctx context.Context, artistID string) (string, error) {
	if s.gen == nil {
		return "", ErrDisabled
	}
	epoch := s.epoch(artistID)
	key := artistID + "@" + strconv.FormatUint(epoch, 10)
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.regenerate(ctx, artistID, epoch)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Service) epoch(artistID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epochs[artistID]
}

// invalidate marks generations started before now as stale.
func (s *Service) invalidate(artistID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epochs[artistID]++
}

func (s *Service) regenerate(ctx context.Context, artistID string, epoch uint64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	a, err := s.artists.GetByID(ctx, artistID)
	if err != nil {
		return "", err
	}
	p, err := s.prompts.Active(ctx)
	if err != nil {
		return "", err
	}

	text, err := s.gen.Generate(ctx, BuildPrompt(p, a))
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		s.logger.Warn("generator returned an empty bio", "artist_id", artistID)
		return "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epochs[artistID] != epoch {
		s.logger.Debug("discarding bio generated from stale artist data", "artist_id", artistID)
		return text, nil
	}
	if err := s.artists.SetBio(ctx, artistID, text); err != nil {
		return "", fmt.Errorf("storing bio: %w", err)
	}
	s.logger.Info("bio regenerated", "artist_id", artistID)
	return text, nil
}

// Update stores an edited biography.
func (s *Service) Update(ctx context.Context, artistID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmpty
	}
	s.invalidate(artistID)
	return s.artists.SetBio(ctx, artistID, text)
}

// HandleInvalidated regenerates the biography named by a bio.invalidated
// event in the background. Generations already in flight for the artist
// are not stored. Failures are logged; when too many regenerations are
// already running the event is skipped and the next read generates the
// biography instead.
func (s *Service) HandleInvalidated(e event.Event) {
	if s.gen == nil || e.ArtistID == "" {
		return
	}
	s.invalidate(e.ArtistID)
	if !s.sem.TryAcquire(1) {
		s.logger.Debug("bio regeneration busy, deferring to next read", "artist_id", e.ArtistID)
		return
	}
	go func() {
		defer s.sem.Release(1)
		if _, err := s.Regenerate(context.Background(), e.ArtistID); err != nil {
			s.logger.Warn("background bio regeneration failed", "artist_id", e.ArtistID, "error", err)
		}
	}()
}

// Wait blocks until background regenerations finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, maxBackground); err != nil {
		return err
	}
	s.sem.Release(maxBackground)
	return nil
}
