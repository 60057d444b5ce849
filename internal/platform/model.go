// Package platform holds the URL-pattern rules that map a link on a
// third-party site to an artist attribute, and the registry that serves
// compiled snapshots of them.
package platform

import (
	"regexp"
	"time"
)

// Rule is one row of the urlmap table.
type Rule struct {
	ID          string `json:"id" yaml:"-"`
	SiteKey     string `json:"site_key" yaml:"site_key"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	// Pattern is matched case-insensitively against the decoded URL.
	Pattern string `json:"pattern" yaml:"pattern"`
	// URLTemplate renders a stored value back to a link; "%@" marks the value.
	URLTemplate string `json:"url_template" yaml:"url_template"`
	// SortOrder orders links for display.
	SortOrder int `json:"sort_order" yaml:"sort_order"`
	// Position orders rules for matching. Lower positions are tried first.
	Position  int       `json:"position" yaml:"position"`
	Example   string    `json:"example,omitempty" yaml:"example,omitempty"`
	IsWeb3    bool      `json:"is_web3" yaml:"web3,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Placeholder is the token in URLTemplate replaced by the stored value.
const Placeholder = "%@"

// Site keys with behaviour beyond "first capture group, substitute into the
// template". Every other key is handled generically.
const (
	SiteYouTubeChannel = "youtubechannel"
	SiteYouTube        = "youtube"
	SiteFacebook       = "facebook"
	SiteFacebookID     = "facebookID"
	SiteX              = "x"
	SiteSoundCloud     = "soundcloud"
	SiteENS            = "ens"
	SiteWallets        = "wallets"
	SiteWallet         = "wallet"
	SiteWikipedia      = "wikipedia"
	SiteSupercollector = "supercollector"
	SiteSpotify        = "spotify"
	SiteInstagram      = "instagram"
)

// Kind selects the disambiguation applied to a matched rule.
type Kind int

// Kinds. KindGeneric covers every site key without special handling.
const (
	KindGeneric Kind = iota
	KindYouTubeChannel
	KindYouTube
	KindFacebook
	KindFacebookID
	KindX
	KindSoundCloud
	KindENS
	KindWallets
	KindWikipedia
	KindSupercollector
)

var kindNames = map[Kind]string{
	KindGeneric:        "generic",
	KindYouTubeChannel: "youtubechannel",
	KindYouTube:        "youtube",
	KindFacebook:       "facebook",
	KindFacebookID:     "facebookID",
	KindX:              "x",
	KindSoundCloud:     "soundcloud",
	KindENS:            "ens",
	KindWallets:        "wallets",
	KindWikipedia:      "wikipedia",
	KindSupercollector: "supercollector",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// KindOf maps a site key to its Kind. "facebookId" and "wallet" are accepted
// as aliases of the canonical keys.
func KindOf(siteKey string) Kind {
	switch siteKey {
	case SiteYouTubeChannel:
		return KindYouTubeChannel
	case SiteYouTube:
		return KindYouTube
	case SiteFacebook:
		return KindFacebook
	case SiteFacebookID, "facebookId":
		return KindFacebookID
	case SiteX, "twitter":
		return KindX
	case SiteSoundCloud:
		return KindSoundCloud
	case SiteENS:
		return KindENS
	case SiteWallets, SiteWallet:
		return KindWallets
	case SiteWikipedia:
		return KindWikipedia
	case SiteSupercollector:
		return KindSupercollector
	default:
		return KindGeneric
	}
}

// bioRelevant lists the attributes the generated biography is built from.
var bioRelevant = map[string]bool{
	SiteSpotify:        true,
	SiteInstagram:      true,
	SiteX:              true,
	SiteSoundCloud:     true,
	SiteYouTube:        true,
	SiteYouTubeChannel: true,
}

// BioRelevant reports whether a change to siteKey invalidates the artist's
// generated biography.
func BioRelevant(siteKey string) bool {
	return bioRelevant[siteKey]
}

// CompiledRule is a Rule whose pattern compiled successfully.
type CompiledRule struct {
	Rule
	Kind Kind
	re   *regexp.Regexp
}

// Match returns the submatches of s, or nil when the rule does not apply.
func (c CompiledRule) Match(s string) []string {
	return c.re.FindStringSubmatch(s)
}

// SkippedRule is a rule left out of a snapshot because it could not be compiled.
type SkippedRule struct {
	Rule Rule  `json:"rule"`
	Err  error `json:"-"`
}

// Snapshot is an immutable, ordered set of compiled rules.
type Snapshot struct {
	Rules      []CompiledRule
	Skipped    []SkippedRule
	Generation uint64
	LoadedAt   time.Time

	all       []Rule
	bySiteKey map[string]int
}

// DisplayRules returns every rule in Position order, skipped ones
// included. A skipped rule cannot match URLs but its template and sort
// order still render stored values.
func (s *Snapshot) DisplayRules() []Rule {
	if s == nil {
		return nil
	}
	return s.all
}

// Lookup returns the rule for siteKey, if present in the snapshot.
func (s *Snapshot) Lookup(siteKey string) (CompiledRule, bool) {
	if s == nil {
		return CompiledRule{}, false
	}
	i, ok := s.bySiteKey[siteKey]
	if !ok {
		return CompiledRule{}, false
	}
	return s.Rules[i], true
}
