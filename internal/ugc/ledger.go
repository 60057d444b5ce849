package ugc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/sydlexius/nerdlinks/internal/artist"
	"github.com/sydlexius/nerdlinks/internal/event"
	"github.com/sydlexius/nerdlinks/internal/extract"
	"github.com/sydlexius/nerdlinks/internal/user"
)

// Extractor resolves a URL to a platform identifier.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (*extract.Result, error)
}

// Ledger accepts URL submissions for artists.
type Ledger struct {
	store     *Store
	artists   *artist.Service
	extractor Extractor
	users     UserLookup
	approver  *Approver
	events    Publisher
	opts      Options
	pings     *rate.Limiter
	logger    *slog.Logger
}

// NewLedger creates a ledger.
func NewLedger(db *sql.DB, extractor Extractor, users UserLookup, approver *Approver, events Publisher, opts Options, logger *slog.Logger) *Ledger {
	l := &Ledger{
		store:     NewStore(db),
		artists:   artist.NewService(db),
		extractor: extractor,
		users:     users,
		approver:  approver,
		events:    events,
		opts:      opts,
		logger:    logger.With(slog.String("component", "ugc-ledger")),
	}
	if opts.PingInterval > 0 {
		l.pings = rate.NewLimiter(rate.Every(opts.PingInterval), 1)
	}
	return l
}

// Submit resolves req.URL and records it against the artist. Links that
// match no platform and repeats of an existing value are rejected with a
// StatusError result. Submissions from admins and whitelisted users are
// approved immediately; the rest wait for moderation.
func (l *Ledger) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.ContributorID == "" && !l.opts.OpenMode {
		return nil, ErrAuthenticationRequired
	}

	contributor, err := l.contributor(ctx, req.ContributorID)
	if err != nil {
		return nil, err
	}

	res, err := l.extractor.Extract(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	if res == nil || !artist.Supported(res.SiteKey) {
		if res != nil {
			l.logger.Warn("platform rule has no artist column", "site_key", res.SiteKey)
		}
		return rejected(ReasonNotApprovedLink, MessageNotApprovedLink), nil
	}

	a, err := l.artists.GetByID(ctx, req.ArtistID)
	if err != nil {
		return nil, err
	}

	c := &Contribution{
		SubmittedURL:  req.URL,
		SiteKey:       res.SiteKey,
		ExternalID:    res.ExternalID,
		ArtistID:      a.ID,
		ArtistName:    a.Name,
		ContributorID: req.ContributorID,
		CreatedAt:     time.Now().UTC(),
	}
	if contributor == nil {
		c.ContributorID = ""
	}

	if contributor.Privileged() {
		inserted, err := l.approver.SubmitAccepted(ctx, c)
		if err != nil {
			return nil, err
		}
		if !inserted {
			return rejected(ReasonDuplicate, MessageDuplicate), nil
		}
		l.announce(c, res.DisplayName, contributor)
		return &SubmitResult{Status: StatusAccepted, Message: MessageAccepted, DisplayName: res.DisplayName, Contribution: c}, nil
	}

	var inserted bool
	err = l.opts.Retry.Retry(ctx, func(ctx context.Context) error {
		var err error
		inserted, err = l.store.InsertIfNew(ctx, c)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		return rejected(ReasonDuplicate, MessageDuplicate), nil
	}

	l.announce(c, res.DisplayName, contributor)
	l.pingModerators(ctx, c)
	return &SubmitResult{Status: StatusPending, Message: MessagePending, DisplayName: res.DisplayName, Contribution: c}, nil
}

// contributor loads the submitting user. An unknown ID counts as anonymous
// in open mode and as unauthenticated otherwise.
func (l *Ledger) contributor(ctx context.Context, id string) (*user.User, error) {
	if id == "" {
		return nil, nil
	}
	u, err := l.users.GetByID(ctx, id)
	if errors.Is(err, user.ErrNotFound) {
		if l.opts.OpenMode {
			return nil, nil
		}
		return nil, ErrAuthenticationRequired
	}
	if err != nil {
		return nil, fmt.Errorf("loading contributor: %w", err)
	}
	return u, nil
}

// announce publishes the human-readable notice for a known contributor.
func (l *Ledger) announce(c *Contribution, platformName string, u *user.User) {
	if u == nil {
		return
	}
	msg := fmt.Sprintf("%s added %s's %s: %s (Submitted URL: %s) %s",
		u.DisplayName(), c.ArtistName, platformName, c.ExternalID, c.SubmittedURL,
		c.CreatedAt.Format(time.RFC3339))
	l.events.Publish(event.Event{
		Type:     event.ArtistDataAdded,
		ArtistID: c.ArtistID,
		Message:  msg,
		Data: map[string]any{
			"contribution_id": c.ID,
			"site_key":        c.SiteKey,
			"value":           c.ExternalID,
			"contributor_id":  u.ID,
		},
	})
}

// pingModerators publishes a pending notice with the current queue length,
// at most once per ping interval.
func (l *Ledger) pingModerators(ctx context.Context, c *Contribution) {
	if l.pings != nil && !l.pings.Allow() {
		return
	}
	pending, err := l.store.CountPending(ctx)
	if err != nil {
		l.logger.Warn("counting pending contributions", "error", err)
	}
	l.events.Publish(event.Event{
		Type:     event.ContributionPending,
		ArtistID: c.ArtistID,
		Message:  fmt.Sprintf("There are %d pending contributions awaiting review", pending),
		Data: map[string]any{
			"contribution_id": c.ID,
			"site_key":        c.SiteKey,
			"pending":         pending,
		},
	})
}

// Pending returns contributions awaiting review.
func (l *Ledger) Pending(ctx context.Context, limit int) ([]Contribution, error) {
	return l.store.ListPending(ctx, limit)
}

// PendingCount returns the number of contributions awaiting review.
func (l *Ledger) PendingCount(ctx context.Context) (int, error) {
	return l.store.CountPending(ctx)
}

// Stats returns a contributor's submission counts.
func (l *Ledger) Stats(ctx context.Context, userID string) (Stats, error) {
	return l.store.StatsForUser(ctx, userID)
}

// Leaderboard ranks contributors, optionally within [from, to).
func (l *Ledger) Leaderboard(ctx context.Context, from, to *time.Time, limit int) ([]LeaderboardEntry, error) {
	return l.store.Leaderboard(ctx, from, to, limit)
}
