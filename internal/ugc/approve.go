package ugc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sydlexius/nerdlinks/internal/artist"
	"github.com/sydlexius/nerdlinks/internal/database"
	"github.com/sydlexius/nerdlinks/internal/event"
	"github.com/sydlexius/nerdlinks/internal/platform"
	"github.com/sydlexius/nerdlinks/internal/user"
)

// UserLookup resolves contributor accounts.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

// Publisher accepts events for asynchronous side effects.
type Publisher interface {
	Publish(e event.Event) bool
}

// Options configures the ledger and approver.
type Options struct {
	// OpenMode lets anonymous callers submit and moderate.
	OpenMode bool
	Retry    database.RetryPolicy
	// PingInterval is the minimum gap between moderation pings. Zero
	// pings on every pending submission.
	PingInterval time.Duration
}

// Approver merges contributions into artist records.
type Approver struct {
	db     *sql.DB
	users  UserLookup
	events Publisher
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewApprover creates an approver.
func NewApprover(db *sql.DB, users UserLookup, events Publisher, opts Options, logger *slog.Logger) *Approver {
	return &Approver{
		db:     db,
		users:  users,
		events: events,
		opts:   opts,
		logger: logger.With(slog.String("component", "ugc-approver")),
		now:    time.Now,
	}
}

// Approve writes the contribution's value to the artist, clears the
// biography when the site feeds it, and marks the contribution accepted,
// all in one transaction. Approving an accepted contribution fails with
// ErrAlreadyAccepted and writes nothing. Notification and biography
// regeneration happen afterwards and never fail the approval.
func (a *Approver) Approve(ctx context.Context, req ApproveRequest) error {
	if !artist.Supported(req.SiteKey) {
		return fmt.Errorf("%w: %s", ErrUnsupportedSite, req.SiteKey)
	}

	err := a.opts.Retry.Retry(ctx, func(ctx context.Context) error {
		return database.InTx(ctx, a.db, func(tx *sql.Tx) error {
			return a.apply(ctx, tx, req)
		})
	})
	if err != nil {
		return fmt.Errorf("approving contribution %s: %w", req.ContributionID, err)
	}
	a.accepted(req)
	return nil
}

// SubmitAccepted records c and approves it in the same transaction. It
// reports false, writing nothing, when c duplicates an existing value.
func (a *Approver) SubmitAccepted(ctx context.Context, c *Contribution) (bool, error) {
	req := ApproveRequest{
		ContributionID: c.ID,
		ArtistID:       c.ArtistID,
		SiteKey:        c.SiteKey,
		ExternalID:     c.ExternalID,
	}
	var inserted bool
	err := a.opts.Retry.Retry(ctx, func(ctx context.Context) error {
		return database.InTx(ctx, a.db, func(tx *sql.Tx) error {
			var err error
			inserted, err = NewStore(tx).InsertIfNew(ctx, c)
			if err != nil || !inserted {
				return err
			}
			req.ContributionID = c.ID
			return a.apply(ctx, tx, req)
		})
	})
	if err != nil {
		return false, fmt.Errorf("accepting contribution: %w", err)
	}
	if !inserted {
		return false, nil
	}
	now := a.now().UTC()
	c.Accepted = true
	c.DateProcessed = &now
	a.accepted(req)
	return true, nil
}

// apply performs the approval writes inside tx.
func (a *Approver) apply(ctx context.Context, tx *sql.Tx, req ApproveRequest) error {
	accepted, err := NewStore(tx).MarkAccepted(ctx, req.ContributionID, a.now())
	if err != nil {
		return err
	}
	if !accepted {
		return ErrAlreadyAccepted
	}

	artists := artist.NewService(tx)
	if artist.IsWallets(req.SiteKey) {
		if _, err := artists.AddWallet(ctx, req.ArtistID, req.ExternalID); err != nil {
			return err
		}
	} else if err := artists.SetPlatform(ctx, req.ArtistID, req.SiteKey, req.ExternalID); err != nil {
		return err
	}

	if platform.BioRelevant(req.SiteKey) {
		return artists.ClearBio(ctx, req.ArtistID)
	}
	return nil
}

// accepted logs an approval and publishes its side effects.
func (a *Approver) accepted(req ApproveRequest) {
	a.logger.Info("contribution accepted",
		"contribution_id", req.ContributionID, "artist_id", req.ArtistID, "site", req.SiteKey)

	a.events.Publish(event.Event{
		Type:     event.ContributionAccepted,
		ArtistID: req.ArtistID,
		Data: map[string]any{
			"contribution_id": req.ContributionID,
			"site_key":        req.SiteKey,
			"value":           req.ExternalID,
		},
	})
	if platform.BioRelevant(req.SiteKey) {
		a.events.Publish(event.Event{Type: event.BioInvalidated, ArtistID: req.ArtistID})
	}
}

// ApproveByID loads a pending contribution and approves it.
func (a *Approver) ApproveByID(ctx context.Context, id string) error {
	c, err := NewStore(a.db).GetByID(ctx, id)
	if err != nil {
		return err
	}
	if c.Accepted {
		return ErrAlreadyAccepted
	}
	return a.Approve(ctx, ApproveRequest{
		ContributionID: c.ID,
		ArtistID:       c.ArtistID,
		SiteKey:        c.SiteKey,
		ExternalID:     c.ExternalID,
	})
}

// ApproveBatch approves each contribution in ids on behalf of a moderator.
// Only admins may moderate unless open mode is on. One failure does not
// stop the rest of the batch.
func (a *Approver) ApproveBatch(ctx context.Context, actorID string, ids []string) ([]BatchResult, error) {
	if err := a.authorize(ctx, actorID, true); err != nil {
		return nil, err
	}

	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		err := a.ApproveByID(ctx, id)
		r := BatchResult{ID: id, OK: err == nil}
		if err != nil {
			r.Error = err.Error()
			a.logger.Warn("batch approval failed", "contribution_id", id, "error", err)
		}
		results = append(results, r)
	}
	return results, nil
}

// Remove clears an artist's value for siteKey on behalf of an admin or
// whitelisted user. For wallets, only the given address is removed.
// Contribution rows are kept so contributors retain credit.
func (a *Approver) Remove(ctx context.Context, actorID, artistID, siteKey, value string) error {
	if err := a.authorize(ctx, actorID, false); err != nil {
		return err
	}
	if !artist.Supported(siteKey) {
		return fmt.Errorf("%w: %s", ErrUnsupportedSite, siteKey)
	}
	bioInvalidated := platform.BioRelevant(siteKey)

	err := a.opts.Retry.Retry(ctx, func(ctx context.Context) error {
		return database.InTx(ctx, a.db, func(tx *sql.Tx) error {
			artists := artist.NewService(tx)
			switch {
			case artist.IsWallets(siteKey) && value != "":
				if _, err := artists.RemoveWallet(ctx, artistID, value); err != nil {
					return err
				}
			case artist.IsWallets(siteKey):
				if err := artists.ClearWallets(ctx, artistID); err != nil {
					return err
				}
			default:
				if err := artists.ClearPlatform(ctx, artistID, siteKey); err != nil {
					return err
				}
			}
			if bioInvalidated {
				return artists.ClearBio(ctx, artistID)
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("removing %s from artist %s: %w", siteKey, artistID, err)
	}

	a.events.Publish(event.Event{
		Type:     event.ArtistDataRemoved,
		ArtistID: artistID,
		Data:     map[string]any{"site_key": siteKey, "removed_by": actorID},
	})
	if bioInvalidated {
		a.events.Publish(event.Event{Type: event.BioInvalidated, ArtistID: artistID})
	}
	return nil
}

// authorize checks that actorID may moderate. Admin-only operations pass
// requireAdmin; removal also allows whitelisted users.
func (a *Approver) authorize(ctx context.Context, actorID string, requireAdmin bool) error {
	if a.opts.OpenMode {
		return nil
	}
	if actorID == "" {
		return ErrAuthenticationRequired
	}
	u, err := a.users.GetByID(ctx, actorID)
	if errors.Is(err, user.ErrNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		return err
	}
	if u.IsAdmin || (!requireAdmin && u.IsWhitelisted) {
		return nil
	}
	return ErrUnauthorized
}
