package platform

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
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

func TestSeedDefaults(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	if err := svc.SeedDefaults(ctx); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	// Seeding twice must not fail or duplicate.
	if err := svc.SeedDefaults(ctx); err != nil {
		t.Fatalf("SeedDefaults (second): %v", err)
	}

	rules, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	defaults, err := DefaultRules()
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != len(defaults) {
		t.Fatalf("got %d rules, want %d", len(rules), len(defaults))
	}
	for i := 1; i < len(rules); i++ {
		if rules[i-1].Position > rules[i].Position {
			t.Errorf("rules not ordered by position at %d", i)
		}
	}

	snap := Compile(rules)
	if len(snap.Skipped) != 0 {
		t.Errorf("built-in rules should all compile, skipped: %+v", snap.Skipped)
	}
}

func TestSeedDefaults_KeepsOperatorEdits(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	if err := svc.SeedDefaults(ctx); err != nil {
		t.Fatal(err)
	}
	r, err := svc.GetBySiteKey(ctx, "instagram")
	if err != nil {
		t.Fatalf("GetBySiteKey: %v", err)
	}
	r.DisplayName = "IG"
	if err := svc.Upsert(ctx, r); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := svc.SeedDefaults(ctx); err != nil {
		t.Fatal(err)
	}
	got, err := svc.GetBySiteKey(ctx, "instagram")
	if err != nil {
		t.Fatal(err)
	}
	if got.DisplayName != "IG" {
		t.Errorf("DisplayName = %q, want IG", got.DisplayName)
	}
	if got.ID != RuleID("instagram") {
		t.Errorf("ID = %q, want stable id", got.ID)
	}
}

func TestGetBySiteKey_NotFound(t *testing.T) {
	svc := NewService(setupTestDB(t))
	_, err := svc.GetBySiteKey(context.Background(), "myspace")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	if err := svc.Upsert(ctx, &Rule{SiteKey: "myspace", Pattern: `myspace\.com/([^/]+)`}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "myspace"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := svc.Delete(ctx, "myspace"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestImportFile(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := []byte(`
- site_key: myspace
  display_name: Myspace
  pattern: '^https?://(?:www\.)?myspace\.com/([^/?#]+)'
  url_template: 'https://myspace.com/%@'
  sort_order: 40
- site_key: bluesky
  pattern: '^https?://bsky\.app/profile/([^/?#]+)'
  url_template: 'https://bsky.app/profile/%@'
  position: 5
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	n, err := svc.ImportFile(ctx, path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d, want 2", n)
	}

	rules, err := svc.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	if rules[0].SiteKey != "bluesky" || rules[0].DisplayName != "bluesky" {
		t.Errorf("first rule = %+v, want bluesky with defaulted display name", rules[0])
	}
	if rules[1].Position != 10 {
		t.Errorf("myspace position = %d, want 10", rules[1].Position)
	}
}

func TestParseRules_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing site key", "- pattern: 'a'\n"},
		{"duplicate site key", "- site_key: a\n  pattern: 'a'\n- site_key: a\n  pattern: 'b'\n"},
		{"not a list", "site_key: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRules([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
