// Package artist stores artist records and the per-platform identifiers
// attached to them.
package artist

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Sentinel errors.
var (
	ErrNotFound     = errors.New("artist not found")
	ErrUnknownField = errors.New("unknown artist field")
)

// Artist is an artist record. Platforms maps a site key to the identifier
// stored for it; absent keys are unset.
type Artist struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	LCName    string            `json:"lcname"`
	Platforms map[string]string `json:"platforms"`
	Wallets   []string          `json:"wallets"`
	Bio       string            `json:"bio,omitempty"`
	AddedBy   string            `json:"added_by,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Value returns the identifier stored for siteKey, or "".
func (a *Artist) Value(siteKey string) string {
	if a == nil {
		return ""
	}
	return a.Platforms[canonicalKey(siteKey)]
}

// HasWallet reports whether addr is in the wallet set.
func (a *Artist) HasWallet(addr string) bool {
	for _, w := range a.Wallets {
		if strings.EqualFold(w, addr) {
			return true
		}
	}
	return false
}

// platformColumns lists every platform attribute in column order. The
// column name is the only part of an artist query built from input, so it
// must come from this table.
var platformColumns = []struct {
	key    string
	column string
}{
	{"spotify", "spotify"},
	{"bandcamp", "bandcamp"},
	{"facebook", "facebook"},
	{"facebookID", "facebook_id"},
	{"x", "x"},
	{"soundcloud", "soundcloud"},
	{"instagram", "instagram"},
	{"youtube", "youtube"},
	{"youtubechannel", "youtubechannel"},
	{"twitch", "twitch"},
	{"imdb", "imdb"},
	{"musicbrainz", "musicbrainz"},
	{"wikidata", "wikidata"},
	{"mixcloud", "mixcloud"},
	{"discogs", "discogs"},
	{"tiktok", "tiktok"},
	{"jaxsta", "jaxsta"},
	{"bandsintown", "bandsintown"},
	{"linktree", "linktree"},
	{"wikipedia", "wikipedia"},
	{"audius", "audius"},
	{"zora", "zora"},
	{"catalog", "catalog"},
	{"opensea", "opensea"},
	{"foundation", "foundation"},
	{"lastfm", "lastfm"},
	{"linkedin", "linkedin"},
	{"soundxyz", "soundxyz"},
	{"mirror", "mirror"},
	{"patreon", "patreon"},
	{"farcaster", "farcaster"},
	{"lens", "lens"},
	{"supercollector", "supercollector"},
	{"mintsongs", "mintsongs"},
	{"ens", "ens"},
}

var columnByKey = func() map[string]string {
	m := make(map[string]string, len(platformColumns))
	for _, c := range platformColumns {
		m[c.key] = c.column
	}
	return m
}()

// keyAliases maps alternate spellings onto canonical site keys.
var keyAliases = map[string]string{
	"facebookId": "facebookID",
	"twitter":    "x",
	"wallet":     WalletsKey,
}

// WalletsKey is the site key of the wallet set.
const WalletsKey = "wallets"

func canonicalKey(siteKey string) string {
	if k, ok := keyAliases[siteKey]; ok {
		return k
	}
	return siteKey
}

// IsWallets reports whether siteKey addresses the wallet set.
func IsWallets(siteKey string) bool {
	return canonicalKey(siteKey) == WalletsKey
}

// Column returns the column holding siteKey's identifier. It is false for
// the wallet set and for unknown keys.
func Column(siteKey string) (string, bool) {
	col, ok := columnByKey[canonicalKey(siteKey)]
	return col, ok
}

// Supported reports whether siteKey can be stored on an artist.
func Supported(siteKey string) bool {
	if IsWallets(siteKey) {
		return true
	}
	_, ok := Column(siteKey)
	return ok
}

// PresentExpr returns a SQL boolean expression that is true while the
// artist row aliased as alias holds value for siteKey, along with its bind
// arguments. Wallets match the address within the set; other sites match
// any stored value.
func PresentExpr(alias, siteKey, value string) (string, []any, bool) {
	if IsWallets(siteKey) {
		return "EXISTS (SELECT 1 FROM json_each(" + alias + ".wallets) WHERE lower(value) = lower(?))",
			[]any{value}, true
	}
	col, ok := Column(siteKey)
	if !ok {
		return "", nil, false
	}
	return "COALESCE(" + alias + "." + col + ", '') <> ''", nil, true
}

var foldName = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.Predicate(func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })),
	norm.NFC,
)

// NormalizeName folds a display name into the lcname search key: accents
// and punctuation removed, lowercased, whitespace collapsed.
func NormalizeName(name string) string {
	folded, _, err := transform.String(foldName, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// MarshalStringSlice serializes a string slice to a JSON array string.
func MarshalStringSlice(s []string) string {
	if s == nil {
		s = []string{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// UnmarshalStringSlice parses a JSON array string; invalid input yields nil.
func UnmarshalStringSlice(s string) []string {
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
