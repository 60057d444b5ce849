// Package links renders an artist's stored platform identifiers back into
// profile URLs for display.
package links

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sydlexius/nerdlinks/internal/artist"
	"github.com/sydlexius/nerdlinks/internal/platform"
)

// Link is one rendered profile link.
type Link struct {
	SiteKey     string `json:"site_key"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	SortOrder   int    `json:"sort_order"`
	position    int
}

// Rules provides the current rule snapshot.
type Rules interface {
	Load(ctx context.Context) (*platform.Snapshot, error)
}

// Builder renders artist links from the platform rules.
type Builder struct {
	rules Rules
}

// NewBuilder creates a link builder.
func NewBuilder(rules Rules) *Builder {
	return &Builder{rules: rules}
}

// Build returns the links for a, ordered by the rules' sort order.
func (b *Builder) Build(ctx context.Context, a *artist.Artist) ([]Link, error) {
	snap, err := b.rules.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("building artist links: %w", err)
	}
	return Render(snap, a), nil
}

// Render builds links for a against a rule snapshot, including rules whose
// match pattern failed to compile. Rules without a stored value are left
// out, as are ENS names and wallets, which are shown separately.
func Render(snap *platform.Snapshot, a *artist.Artist) []Link {
	if a == nil {
		return nil
	}
	hasUsername := a.Value(platform.SiteYouTube) != ""

	links := []Link{}
	seen := make(map[string]bool)
	for _, rule := range snap.DisplayRules() {
		value := a.Value(rule.SiteKey)
		if value == "" || seen[rule.SiteKey] {
			continue
		}
		seen[rule.SiteKey] = true
		u, ok := render(rule, platform.KindOf(rule.SiteKey), value, hasUsername)
		if !ok {
			continue
		}
		links = append(links, Link{
			SiteKey:     rule.SiteKey,
			DisplayName: rule.DisplayName,
			URL:         u,
			SortOrder:   rule.SortOrder,
			position:    rule.Position,
		})
	}

	sort.SliceStable(links, func(i, j int) bool {
		if links[i].SortOrder != links[j].SortOrder {
			return links[i].SortOrder < links[j].SortOrder
		}
		return links[i].position < links[j].position
	})
	return links
}

func render(rule platform.Rule, kind platform.Kind, value string, hasUsername bool) (string, bool) {
	switch kind {
	case platform.KindENS, platform.KindWallets:
		return "", false
	case platform.KindYouTubeChannel:
		if hasUsername {
			return "", false
		}
		if strings.HasPrefix(value, "@") {
			return youTubeHandleURL(value), true
		}
		return "https://www.youtube.com/channel/" + value, true
	case platform.KindYouTube:
		return youTubeHandleURL(value), true
	case platform.KindSoundCloud:
		if isDigits(value) {
			return "", false
		}
		return substitute(rule.URLTemplate, value), true
	case platform.KindSupercollector:
		return substitute(rule.URLTemplate, strings.TrimSuffix(value, ".eth")), true
	case platform.KindFacebookID:
		return "https://www.facebook.com/profile.php?id=" + value, true
	default:
		return substitute(rule.URLTemplate, value), true
	}
}

func youTubeHandleURL(value string) string {
	return "https://youtube.com/@" + strings.TrimLeft(value, "@")
}

func substitute(template, value string) string {
	return strings.Replace(template, platform.Placeholder, value, 1)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
