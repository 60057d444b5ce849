// Package extract resolves a submitted URL to the platform it belongs to and
// the artist identifier on that platform.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/publicsuffix"

	"github.com/sydlexius/nerdlinks/internal/platform"
)

// Result is a resolved (site key, identifier) pair.
type Result struct {
	SiteKey     string `json:"site_key"`
	DisplayName string `json:"display_name"`
	ExternalID  string `json:"external_id"`
}

// Rules provides the current rule snapshot.
type Rules interface {
	Load(ctx context.Context) (*platform.Snapshot, error)
}

// Extractor matches URLs against the platform rules. Results are memoised
// per rule snapshot generation.
type Extractor struct {
	rules  Rules
	cache  *lru.Cache[string, cached]
	logger *slog.Logger
}

type cached struct {
	res *Result
}

// New creates an Extractor. cacheSize <= 0 disables memoisation.
func New(rules Rules, cacheSize int, logger *slog.Logger) (*Extractor, error) {
	e := &Extractor{
		rules:  rules,
		logger: logger.With(slog.String("component", "extract")),
	}
	if cacheSize > 0 {
		c, err := lru.New[string, cached](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating extraction cache: %w", err)
		}
		e.cache = c
	}
	return e, nil
}

// Extract returns the platform and identifier for rawURL, or nil when no
// rule yields an identifier. It only fails when the rules cannot be loaded.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Result, error) {
	snap, err := e.rules.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("extracting artist id: %w", err)
	}

	var key string
	if e.cache != nil {
		key = strconv.FormatUint(snap.Generation, 10) + "\x00" + rawURL
		if c, ok := e.cache.Get(key); ok {
			return c.res.clone(), nil
		}
	}

	res := Match(snap, rawURL)
	if e.cache != nil {
		e.cache.Add(key, cached{res: res.clone()})
	}
	if res == nil {
		e.logger.Debug("no platform matched", "url", rawURL)
	}
	return res, nil
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Match runs the extraction algorithm against a rule snapshot. Rules are
// tried in snapshot order and the first rule whose pattern matches decides
// the outcome. When none match, SoundCloud profile URLs are recognised by
// host as a fallback.
func Match(snap *platform.Snapshot, rawURL string) *Result {
	decoded := decode(rawURL)

	for _, rule := range snap.Rules {
		if rule.Kind == platform.KindWikipedia && !englishWikipedia(decoded) {
			continue
		}

		groups := rule.Match(decoded)
		if groups == nil {
			continue
		}
		for i := 1; i < len(groups); i++ {
			groups[i] = decode(groups[i])
		}

		siteKey, id, ok := disambiguate(rule, groups)
		if !ok {
			return nil
		}
		return &Result{SiteKey: siteKey, DisplayName: rule.DisplayName, ExternalID: id}
	}

	return soundCloudFallback(snap, decoded)
}

// decode percent-decodes s, returning s unchanged when it is not valid
// percent-encoding.
func decode(s string) string {
	d, err := url.PathUnescape(s)
	if err != nil {
		return s
	}
	return d
}

// englishWikipedia reports whether s points at the English Wikipedia. A
// missing scheme is treated as https.
func englishWikipedia(s string) bool {
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "en.wikipedia.org" || host == "en.m.wikipedia.org"
}

var soundCloudNumeric = regexp.MustCompile(`(?i)^(?:user-?)?[0-9]+$`)

// numericSoundCloudID reports whether id is an auto-generated numeric
// SoundCloud account id rather than a chosen profile name.
func numericSoundCloudID(id string) bool {
	return soundCloudNumeric.MatchString(id)
}

func soundCloudFallback(snap *platform.Snapshot, decoded string) *Result {
	s := decoded
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(u.Hostname()))
	if err != nil || domain != "soundcloud.com" {
		return nil
	}

	var id string
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			id = seg
			break
		}
	}
	if id == "" || numericSoundCloudID(id) {
		return nil
	}

	name := "SoundCloud"
	if rule, ok := snap.Lookup(platform.SiteSoundCloud); ok {
		name = rule.DisplayName
	}
	return &Result{SiteKey: platform.SiteSoundCloud, DisplayName: name, ExternalID: id}
}
