package platform

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// RuleSource provides the raw rule table.
type RuleSource interface {
	LoadRules(ctx context.Context) ([]Rule, error)
}

// Compile turns raw rules into a snapshot ordered by Position. Rules whose
// pattern does not compile are returned in Skipped instead of failing the
// whole set.
func Compile(rules []Rule) *Snapshot {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Position != ordered[j].Position {
			return ordered[i].Position < ordered[j].Position
		}
		return ordered[i].SiteKey < ordered[j].SiteKey
	})

	snap := &Snapshot{all: ordered, bySiteKey: make(map[string]int, len(ordered))}
	for _, r := range ordered {
		if r.Pattern == "" {
			snap.Skipped = append(snap.Skipped, SkippedRule{Rule: r, Err: fmt.Errorf("empty pattern")})
			continue
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			snap.Skipped = append(snap.Skipped, SkippedRule{Rule: r, Err: err})
			continue
		}
		if _, dup := snap.bySiteKey[r.SiteKey]; !dup {
			snap.bySiteKey[r.SiteKey] = len(snap.Rules)
		}
		snap.Rules = append(snap.Rules, CompiledRule{Rule: r, Kind: KindOf(r.SiteKey), re: re})
	}
	return snap
}

// Registry serves compiled rule snapshots, re-reading the source once the
// current snapshot is older than the TTL or after Invalidate. A zero TTL
// keeps a snapshot until it is invalidated.
type Registry struct {
	source RuleSource
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	snap  *Snapshot
	stale bool
	gen   uint64

	group singleflight.Group
}

// NewRegistry creates a registry over source.
func NewRegistry(source RuleSource, ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		source: source,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "rule-registry")),
		now:    time.Now,
	}
}

// Load returns the current snapshot, reloading it when expired. If the
// source fails and an earlier snapshot exists, the earlier snapshot is
// returned and the failure is logged.
func (r *Registry) Load(ctx context.Context) (*Snapshot, error) {
	r.mu.RLock()
	snap, stale := r.snap, r.stale
	r.mu.RUnlock()

	if snap != nil && !stale && !r.expired(snap) {
		return snap, nil
	}

	v, err, _ := r.group.Do("load", func() (any, error) {
		return r.reload(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (r *Registry) expired(s *Snapshot) bool {
	return r.ttl > 0 && r.now().Sub(s.LoadedAt) >= r.ttl
}

func (r *Registry) reload(ctx context.Context) (*Snapshot, error) {
	rules, err := r.source.LoadRules(ctx)
	if err != nil {
		r.mu.RLock()
		prev := r.snap
		r.mu.RUnlock()
		if prev != nil {
			r.logger.Warn("reloading rules failed, serving previous snapshot",
				"generation", prev.Generation, "error", err)
			return prev, nil
		}
		return nil, fmt.Errorf("loading platform rules: %w", err)
	}

	next := Compile(rules)
	for _, s := range next.Skipped {
		r.logger.Warn("skipping malformed platform rule",
			"site_key", s.Rule.SiteKey, "pattern", s.Rule.Pattern, "error", s.Err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	next.Generation = r.gen
	next.LoadedAt = r.now()
	r.snap = next
	r.stale = false

	r.logger.Debug("platform rules loaded",
		"generation", next.Generation, "rules", len(next.Rules), "skipped", len(next.Skipped))
	return next, nil
}

// Invalidate forces the next Load to re-read the source.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.stale = true
	r.mu.Unlock()
}
