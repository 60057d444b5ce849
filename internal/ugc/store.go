package ugc

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
	"github.com/sydlexius/nerdlinks/internal/user"
)

// Store persists contributions. It runs against either the database handle
// or an open transaction.
type Store struct {
	db database.DBTX
}

// NewStore creates a contribution store.
func NewStore(db database.DBTX) *Store {
	return &Store{db: db}
}

const contributionColumns = `id, ugc_url, site_name, site_username, artist_id, name,
	user_id, accepted, created_at, date_processed`

// InsertIfNew records c as pending unless the same URL was already
// contributed for the artist and the artist still holds a value for the
// contribution's site, or for wallets the same address. Check and insert
// are one statement, so concurrent submissions cannot both pass the check.
// It reports whether a row was written.
func (s *Store) InsertIfNew(ctx context.Context, c *Contribution) (bool, error) {
	present, presentArgs, ok := artist.PresentExpr("a", c.SiteKey, c.ExternalID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedSite, c.SiteKey)
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.Accepted = false

	args := []any{c.ID, c.SubmittedURL, c.SiteKey, c.ExternalID, c.ArtistID, c.ArtistName,
		nullString(c.ContributorID), c.CreatedAt.Format(time.RFC3339),
		c.SubmittedURL, c.ArtistID}
	args = append(args, presentArgs...)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ugcresearch (id, ugc_url, site_name, site_username, artist_id, name, user_id, accepted, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, 0, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM ugcresearch u
			JOIN artists a ON a.id = u.artist_id
			WHERE u.ugc_url = ? AND u.artist_id = ? AND `+present+`
		)
	`, args...)
	if err != nil {
		return false, fmt.Errorf("inserting contribution: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting contribution: %w", err)
	}
	return n == 1, nil
}

// GetByID returns a contribution.
func (s *Store) GetByID(ctx context.Context, id string) (*Contribution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contributionColumns+` FROM ugcresearch WHERE id = ?`, id)
	c, err := scanContribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting contribution: %w", err)
	}
	return c, nil
}

// MarkAccepted moves a pending contribution to accepted. It reports false
// when the contribution was already accepted.
func (s *Store) MarkAccepted(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE ugcresearch SET accepted = 1, date_processed = ?
		WHERE id = ? AND accepted = 0
	`, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return false, fmt.Errorf("accepting contribution: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 1 {
		return true, nil
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ListPending returns pending contributions, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]Contribution, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contributionColumns+` FROM ugcresearch
		WHERE accepted = 0 ORDER BY created_at, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending contributions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning contribution: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// CountPending returns the number of contributions awaiting review.
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ugcresearch WHERE accepted = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pending contributions: %w", err)
	}
	return n, nil
}

// StatsForUser counts a contributor's submissions.
func (s *Store) StatsForUser(ctx context.Context, userID string) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN accepted = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN accepted = 0 THEN 1 ELSE 0 END), 0)
		FROM ugcresearch WHERE user_id = ?
	`, userID).Scan(&st.Total, &st.Accepted, &st.Pending)
	if err != nil {
		return Stats{}, fmt.Errorf("counting contributions for user: %w", err)
	}
	return st, nil
}

// Leaderboard ranks visible contributors by submissions, optionally within
// [from, to).
func (s *Store) Leaderboard(ctx context.Context, from, to *time.Time, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	var conds []string
	var args []any
	if from != nil {
		conds = append(conds, "u.created_at >= ?")
		args = append(args, from.UTC().Format(time.RFC3339))
	}
	if to != nil {
		conds = append(conds, "u.created_at < ?")
		args = append(args, to.UTC().Format(time.RFC3339))
	}
	where := ""
	if len(conds) > 0 {
		where = " AND " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT usr.id, usr.username, usr.email, usr.wallet,
			COUNT(*) AS contributions,
			SUM(CASE WHEN u.accepted = 1 THEN 1 ELSE 0 END),
			(SELECT COUNT(*) FROM artists ar WHERE ar.added_by = usr.id)
		FROM ugcresearch u
		JOIN users usr ON usr.id = u.user_id
		WHERE usr.is_hidden = 0`+where+`
		GROUP BY usr.id
		ORDER BY contributions DESC, usr.id
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("building leaderboard: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		var username, email, wallet sql.NullString
		if err := rows.Scan(&e.UserID, &username, &email, &wallet, &e.Contributions, &e.Accepted, &e.ArtistsAdded); err != nil {
			return nil, fmt.Errorf("scanning leaderboard row: %w", err)
		}
		u := &user.User{Username: username.String, Email: email.String, Wallet: wallet.String}
		e.DisplayName = u.DisplayName()
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanContribution(row interface{ Scan(...any) error }) (*Contribution, error) {
	var c Contribution
	var userID, processed sql.NullString
	var accepted int
	var createdAt string
	err := row.Scan(&c.ID, &c.SubmittedURL, &c.SiteKey, &c.ExternalID, &c.ArtistID, &c.ArtistName,
		&userID, &accepted, &createdAt, &processed)
	if err != nil {
		return nil, err
	}
	c.ContributorID = userID.String
	c.Accepted = accepted == 1
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if processed.Valid {
		if t, err := time.Parse(time.RFC3339, processed.String); err == nil {
			c.DateProcessed = &t
		}
	}
	return &c, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
