package platform

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultRulesYAML []byte

// ErrNotFound is returned when no rule exists for a site key.
var ErrNotFound = errors.New("platform rule not found")

// ruleNamespace seeds deterministic rule IDs so a site key keeps its ID
// across re-imports.
var ruleNamespace = uuid.MustParse("5b0c7f3e-6d8a-4c1e-9a43-2f6d1e8b7c90")

// RuleID returns the stable ID for a site key.
func RuleID(siteKey string) string {
	return uuid.NewSHA1(ruleNamespace, []byte(siteKey)).String()
}

// Service provides urlmap table operations.
type Service struct {
	db *sql.DB
}

// NewService creates a platform rule service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

const ruleColumns = `id, site_name, card_platform_name, regex, app_string_format,
	sort_order, position, example, is_web3_site, created_at, updated_at`

// LoadRules returns every rule in match order. It implements RuleSource.
func (s *Service) LoadRules(ctx context.Context) ([]Rule, error) {
	return s.List(ctx)
}

// List returns all rules ordered by position.
func (s *Service) List(ctx context.Context) ([]Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM urlmap ORDER BY position, site_name`)
	if err != nil {
		return nil, fmt.Errorf("listing platform rules: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var rules []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning platform rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// GetBySiteKey returns the rule for siteKey.
func (s *Service) GetBySiteKey(ctx context.Context, siteKey string) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM urlmap WHERE site_name = ?`, siteKey)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting platform rule %s: %w", siteKey, err)
	}
	return r, nil
}

// Upsert inserts r or replaces the rule with the same site key.
func (s *Service) Upsert(ctx context.Context, r *Rule) error {
	if r.SiteKey == "" {
		return fmt.Errorf("site key is required")
	}
	if r.DisplayName == "" {
		r.DisplayName = r.SiteKey
	}
	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = RuleID(r.SiteKey)
	}
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO urlmap (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site_name) DO UPDATE SET
			card_platform_name = excluded.card_platform_name,
			regex = excluded.regex,
			app_string_format = excluded.app_string_format,
			sort_order = excluded.sort_order,
			position = excluded.position,
			example = excluded.example,
			is_web3_site = excluded.is_web3_site,
			updated_at = excluded.updated_at
	`, r.ID, r.SiteKey, r.DisplayName, r.Pattern, r.URLTemplate,
		r.SortOrder, r.Position, r.Example, boolToInt(r.IsWeb3),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting platform rule %s: %w", r.SiteKey, err)
	}
	return nil
}

// Delete removes the rule for siteKey.
func (s *Service) Delete(ctx context.Context, siteKey string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM urlmap WHERE site_name = ?`, siteKey)
	if err != nil {
		return fmt.Errorf("deleting platform rule: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DefaultRules returns the built-in rule set.
func DefaultRules() ([]Rule, error) {
	return ParseRules(defaultRulesYAML)
}

// SeedDefaults inserts the built-in rules that are not already present.
// Existing rows, including operator edits, are left alone.
func (s *Service) SeedDefaults(ctx context.Context) error {
	rules, err := DefaultRules()
	if err != nil {
		return fmt.Errorf("parsing default rules: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range rules {
		_, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO urlmap (`+ruleColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, RuleID(r.SiteKey), r.SiteKey, r.DisplayName, r.Pattern, r.URLTemplate,
			r.SortOrder, r.Position, r.Example, boolToInt(r.IsWeb3), now, now)
		if err != nil {
			return fmt.Errorf("seeding platform rule %s: %w", r.SiteKey, err)
		}
	}
	return nil
}

// ImportFile upserts every rule in a YAML rule file and returns how many
// were written.
func (s *Service) ImportFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return 0, fmt.Errorf("reading rule file: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return 0, fmt.Errorf("parsing rule file %s: %w", path, err)
	}
	for i := range rules {
		if err := s.Upsert(ctx, &rules[i]); err != nil {
			return i, err
		}
	}
	return len(rules), nil
}

// ParseRules decodes a YAML list of rules. Rules without an explicit
// position are numbered by their place in the list.
func ParseRules(data []byte) ([]Rule, error) {
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(rules))
	for i := range rules {
		if rules[i].SiteKey == "" {
			return nil, fmt.Errorf("rule %d: site_key is required", i+1)
		}
		if seen[rules[i].SiteKey] {
			return nil, fmt.Errorf("rule %d: duplicate site_key %q", i+1, rules[i].SiteKey)
		}
		seen[rules[i].SiteKey] = true
		if rules[i].Position == 0 {
			rules[i].Position = (i + 1) * 10
		}
		if rules[i].DisplayName == "" {
			rules[i].DisplayName = rules[i].SiteKey
		}
	}
	return rules, nil
}

func scanRule(row interface{ Scan(...any) error }) (*Rule, error) {
	var r Rule
	var web3 int
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.SiteKey, &r.DisplayName, &r.Pattern, &r.URLTemplate,
		&r.SortOrder, &r.Position, &r.Example, &web3, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.IsWeb3 = web3 == 1
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
