// Package user stores contributors, their moderation roles and the API
// tokens they authenticate with.
package user

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenPrefix marks API tokens issued by this service.
const TokenPrefix = "nl_"

// Sentinel errors.
var (
	ErrNotFound     = errors.New("user not found")
	ErrInvalidToken = errors.New("invalid api token")
)

// User is a contributor account.
type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username,omitempty"`
	Email         string    `json:"email,omitempty"`
	Wallet        string    `json:"wallet,omitempty"`
	IsAdmin       bool      `json:"is_admin"`
	IsWhitelisted bool      `json:"is_whitelisted"`
	IsHidden      bool      `json:"is_hidden"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Privileged reports whether the user's contributions skip moderation.
func (u *User) Privileged() bool {
	return u != nil && (u.IsAdmin || u.IsWhitelisted)
}

// DisplayName is the name shown in contribution notices: the username, else
// the local part of the email, else the wallet, else "Anonymous".
func (u *User) DisplayName() string {
	if u == nil {
		return "Anonymous"
	}
	if name := strings.TrimSpace(u.Username); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(u.Email, "@"); ok && local != "" {
		return local
	}
	if u.Wallet != "" {
		return u.Wallet
	}
	return "Anonymous"
}

// Service manages users and API tokens.
type Service struct {
	db *sql.DB
}

// NewService creates a user service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const userColumns = `id, username, email, wallet, is_admin, is_whitelisted, is_hidden, created_at, updated_at`

// Create inserts a user.
func (s *Service) Create(ctx context.Context, u *User) error {
	if u.Username == "" && u.Email == "" && u.Wallet == "" {
		return fmt.Errorf("username, email or wallet is required")
	}
	now := time.Now().UTC()
	u.ID = uuid.New().String()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, nullString(u.Username), nullString(u.Email), nullString(u.Wallet),
		boolToInt(u.IsAdmin), boolToInt(u.IsWhitelisted), boolToInt(u.IsHidden),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetByID returns the user with the given ID.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetByUsername returns the user with the given username, or nil if none.
func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// SetRoles updates the moderation flags of a user.
func (s *Service) SetRoles(ctx context.Context, id string, admin, whitelisted bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_admin = ?, is_whitelisted = ?, updated_at = ? WHERE id = ?
	`, boolToInt(admin), boolToInt(whitelisted), time.Now().UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("updating user roles: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAPIToken issues a new token for userID. The plaintext is returned
// once; only its hash is stored.
func (s *Service) CreateAPIToken(ctx context.Context, userID, name string) (string, error) {
	if _, err := s.GetByID(ctx, userID); err != nil {
		return "", err
	}
	raw, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	token := TokenPrefix + raw

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO api_tokens (id, user_id, name, token_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.New().String(), userID, name, hashToken(token), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("storing api token: %w", err)
	}
	return token, nil
}

// ValidateAPIToken returns the user ID the token belongs to.
func (s *Service) ValidateAPIToken(ctx context.Context, token string) (string, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return "", ErrInvalidToken
	}
	hash := hashToken(token)

	var userID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM api_tokens WHERE token_hash = ?`, hash).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("validating api token: %w", err)
	}

	_, _ = s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = ? WHERE token_hash = ?`,
		time.Now().UTC().Format(time.RFC3339), hash)
	return userID, nil
}

// RevokeAPITokens deletes every token of a user.
func (s *Service) RevokeAPITokens(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("revoking api tokens: %w", err)
	}
	return nil
}

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var username, email, wallet sql.NullString
	var admin, whitelisted, hidden int
	var createdAt, updatedAt string
	if err := row.Scan(&u.ID, &username, &email, &wallet, &admin, &whitelisted, &hidden, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	u.Username = username.String
	u.Email = email.String
	u.Wallet = wallet.String
	u.IsAdmin = admin == 1
	u.IsWhitelisted = whitelisted == 1
	u.IsHidden = hidden == 1
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &u, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
