package user

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/sydlexius/nerdlinks/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want string
	}{
		{"nil user", nil, "Anonymous"},
		{"username", &User{Username: "mara", Email: "m@example.com"}, "mara"},
		{"blank username falls back to email", &User{Username: "  ", Email: "mara@example.com"}, "mara"},
		{"wallet", &User{Wallet: "0xabc"}, "0xabc"},
		{"nothing", &User{}, "Anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrivileged(t *testing.T) {
	if (&User{}).Privileged() {
		t.Error("plain user should not be privileged")
	}
	if !(&User{IsWhitelisted: true}).Privileged() || !(&User{IsAdmin: true}).Privileged() {
		t.Error("admin and whitelisted users should be privileged")
	}
	var u *User
	if u.Privileged() {
		t.Error("nil user should not be privileged")
	}
}

func TestCreateGetAndRoles(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	u := &User{Username: "mara", Email: "mara@example.com"}
	if err := svc.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.SetRoles(ctx, u.ID, false, true); err != nil {
		t.Fatalf("SetRoles: %v", err)
	}

	got, err := svc.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.IsWhitelisted || got.IsAdmin {
		t.Errorf("roles = admin:%v whitelisted:%v", got.IsAdmin, got.IsWhitelisted)
	}

	byName, err := svc.GetByUsername(ctx, "mara")
	if err != nil || byName == nil || byName.ID != u.ID {
		t.Errorf("GetByUsername = %+v, %v", byName, err)
	}
	if _, err := svc.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := svc.Create(ctx, &User{}); err == nil {
		t.Error("expected error for a user without any identity")
	}
}

func TestAPITokens(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	u := &User{Username: "mara"}
	if err := svc.Create(ctx, u); err != nil {
		t.Fatal(err)
	}

	token, err := svc.CreateAPIToken(ctx, u.ID, "cli")
	if err != nil {
		t.Fatalf("CreateAPIToken: %v", err)
	}
	if !strings.HasPrefix(token, TokenPrefix) {
		t.Errorf("token %q lacks prefix", token)
	}

	userID, err := svc.ValidateAPIToken(ctx, token)
	if err != nil || userID != u.ID {
		t.Errorf("ValidateAPIToken = %q, %v", userID, err)
	}
	if _, err := svc.ValidateAPIToken(ctx, TokenPrefix+"nope"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
	if _, err := svc.ValidateAPIToken(ctx, "session-cookie"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}

	if err := svc.RevokeAPITokens(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateAPIToken(ctx, token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("revoked token err = %v, want ErrInvalidToken", err)
	}

	if _, err := svc.CreateAPIToken(ctx, "missing", "cli"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
