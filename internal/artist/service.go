package artist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/nerdlinks/internal/database"
)

// Service provides artist data operations. It runs against either the
// database handle or an open transaction.
type Service struct {
	db database.DBTX
}

// NewService creates an artist service.
func NewService(db database.DBTX) *Service {
	return &Service{db: db}
}

var artistColumns = func() string {
	cols := []string{"id", "name", "lcname"}
	for _, c := range platformColumns {
		cols = append(cols, c.column)
	}
	cols = append(cols, "wallets", "bio", "added_by", "created_at", "updated_at")
	return strings.Join(cols, ", ")
}()

// Create inserts a new artist, assigning its ID and lcname.
func (s *Service) Create(ctx context.Context, a *Artist) error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("artist name is required")
	}
	for key := range a.Platforms {
		if _, ok := Column(key); !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, key)
		}
	}

	now := time.Now().UTC()
	a.ID = uuid.New().String()
	a.LCName = NormalizeName(a.Name)
	a.CreatedAt = now
	a.UpdatedAt = now

	args := []any{a.ID, a.Name, a.LCName}
	for _, c := range platformColumns {
		args = append(args, nullString(a.Value(c.key)))
	}
	args = append(args, MarshalStringSlice(a.Wallets), nullString(a.Bio), nullString(a.AddedBy),
		now.Format(time.RFC3339), now.Format(time.RFC3339))

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artists (`+artistColumns+`) VALUES (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("inserting artist: %w", err)
	}
	return nil
}

// GetByID returns the artist with the given ID.
func (s *Service) GetByID(ctx context.Context, id string) (*Artist, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artistColumns+` FROM artists WHERE id = ?`, id)
	a, err := scanArtist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting artist %s: %w", id, err)
	}
	return a, nil
}

// GetBySpotify returns the artist with the given Spotify ID, or nil if none.
func (s *Service) GetBySpotify(ctx context.Context, spotifyID string) (*Artist, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+artistColumns+` FROM artists WHERE spotify = ?`, spotifyID)
	a, err := scanArtist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting artist by spotify id: %w", err)
	}
	return a, nil
}

// Search finds artists whose folded name contains the folded query.
func (s *Service) Search(ctx context.Context, p SearchParams) ([]Artist, error) {
	p.Validate()
	q := NormalizeName(p.Query)
	if q == "" {
		return nil, nil
	}
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(q)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+artistColumns+` FROM artists
		WHERE lcname LIKE ? ESCAPE '\'
		ORDER BY CASE WHEN lcname = ? THEN 0 WHEN lcname LIKE ? ESCAPE '\' THEN 1 ELSE 2 END, lcname
		LIMIT ?
	`, "%"+escaped+"%", q, escaped+"%", p.Limit)
	if err != nil {
		return nil, fmt.Errorf("searching artists: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var artists []Artist
	for rows.Next() {
		a, err := scanArtist(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		artists = append(artists, *a)
	}
	return artists, rows.Err()
}

// SetPlatform overwrites the identifier stored for siteKey.
func (s *Service) SetPlatform(ctx context.Context, id, siteKey, value string) error {
	col, ok := Column(siteKey)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, siteKey)
	}
	return s.exec(ctx, id, "setting "+siteKey,
		"UPDATE artists SET "+col+" = ?, updated_at = ? WHERE id = ?", //nolint:gosec // col is from the column whitelist
		nullString(value))
}

// ClearPlatform unsets the identifier stored for siteKey.
func (s *Service) ClearPlatform(ctx context.Context, id, siteKey string) error {
	col, ok := Column(siteKey)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, siteKey)
	}
	return s.exec(ctx, id, "clearing "+siteKey,
		"UPDATE artists SET "+col+" = NULL, updated_at = ? WHERE id = ?") //nolint:gosec // col is from the column whitelist
}

// AddWallet adds addr to the wallet set. It reports false when the address
// was already present.
func (s *Service) AddWallet(ctx context.Context, id, addr string) (bool, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if a.HasWallet(addr) {
		return false, nil
	}
	wallets := append(a.Wallets, addr)
	if err := s.writeWallets(ctx, id, wallets); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveWallet removes addr from the wallet set. It reports false when the
// address was not present.
func (s *Service) RemoveWallet(ctx context.Context, id, addr string) (bool, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	kept := make([]string, 0, len(a.Wallets))
	for _, w := range a.Wallets {
		if !strings.EqualFold(w, addr) {
			kept = append(kept, w)
		}
	}
	if len(kept) == len(a.Wallets) {
		return false, nil
	}
	if err := s.writeWallets(ctx, id, kept); err != nil {
		return false, err
	}
	return true, nil
}

// ClearWallets empties the wallet set.
func (s *Service) ClearWallets(ctx context.Context, id string) error {
	return s.writeWallets(ctx, id, nil)
}

func (s *Service) writeWallets(ctx context.Context, id string, wallets []string) error {
	return s.exec(ctx, id, "updating wallets",
		"UPDATE artists SET wallets = ?, updated_at = ? WHERE id = ?", MarshalStringSlice(wallets))
}

// SetBio stores a biography.
func (s *Service) SetBio(ctx context.Context, id, bio string) error {
	return s.exec(ctx, id, "setting bio",
		"UPDATE artists SET bio = ?, updated_at = ? WHERE id = ?", nullString(bio))
}

// ClearBio removes the stored biography so it is regenerated.
func (s *Service) ClearBio(ctx context.Context, id string) error {
	return s.exec(ctx, id, "clearing bio",
		"UPDATE artists SET bio = NULL, updated_at = ? WHERE id = ?")
}

// exec runs an UPDATE whose trailing arguments are updated_at and id.
func (s *Service) exec(ctx context.Context, id, what, query string, args ...any) error {
	args = append(args, time.Now().UTC().Format(time.RFC3339), id)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanArtist(row interface{ Scan(...any) error }) (*Artist, error) {
	var a Artist
	platforms := make([]sql.NullString, len(platformColumns))
	var wallets string
	var bio, addedBy sql.NullString
	var createdAt, updatedAt string

	dest := []any{&a.ID, &a.Name, &a.LCName}
	for i := range platforms {
		dest = append(dest, &platforms[i])
	}
	dest = append(dest, &wallets, &bio, &addedBy, &createdAt, &updatedAt)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	a.Platforms = make(map[string]string)
	for i, c := range platformColumns {
		if platforms[i].Valid && platforms[i].String != "" {
			a.Platforms[c.key] = platforms[i].String
		}
	}
	a.Wallets = UnmarshalStringSlice(wallets)
	a.Bio = bio.String
	a.AddedBy = addedBy.String
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
