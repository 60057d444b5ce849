package extract

import (
	"strings"

	"github.com/sydlexius/nerdlinks/internal/platform"
)

// disambiguate turns the capture groups of a matched rule into a site key
// and identifier. ok is false when the match must not produce a result.
func disambiguate(rule platform.CompiledRule, groups []string) (siteKey, id string, ok bool) {
	switch rule.Kind {
	case platform.KindYouTubeChannel:
		return youTubeChannel(groups)
	case platform.KindYouTube:
		return youTube(groups)
	case platform.KindFacebook:
		return facebook(groups)
	case platform.KindX:
		return xHandle(rule.SiteKey, groups)
	case platform.KindSoundCloud:
		return soundCloud(rule.SiteKey, groups)
	case platform.KindENS:
		return ens(rule.SiteKey, groups)
	case platform.KindWallets:
		return wallet(rule.SiteKey, groups)
	case platform.KindGeneric, platform.KindFacebookID, platform.KindWikipedia, platform.KindSupercollector:
		return generic(rule.SiteKey, groups)
	default:
		return generic(rule.SiteKey, groups)
	}
}

// group returns capture group i, or "" when the pattern has fewer groups.
func group(groups []string, i int) string {
	if i < len(groups) {
		return groups[i]
	}
	return ""
}

func firstNonEmpty(groups []string, idx ...int) string {
	for _, i := range idx {
		if v := group(groups, i); v != "" {
			return v
		}
	}
	return ""
}

func withAt(name string) string {
	return "@" + strings.TrimPrefix(name, "@")
}

// youTubeChannel handles the combined YouTube rule: group 2 is a channel
// id, group 3 an @handle and group 4 a bare handle.
func youTubeChannel(groups []string) (string, string, bool) {
	if ch := group(groups, 2); ch != "" {
		return platform.SiteYouTubeChannel, ch, true
	}
	if name := firstNonEmpty(groups, 3, 4); name != "" {
		return platform.SiteYouTube, withAt(name), true
	}
	return "", "", false
}

// youTube handles the handle-only rule: group 2 is an @handle, group 3 a
// bare handle.
func youTube(groups []string) (string, string, bool) {
	if name := firstNonEmpty(groups, 2, 3); name != "" {
		return platform.SiteYouTube, withAt(name), true
	}
	return "", "", false
}

// facebookReserved are path segments that look like usernames but are
// Facebook routes.
var facebookReserved = map[string]bool{
	"profile.php": true,
	"people":      true,
}

// facebook handles group 1 (people/<name>/<id>), group 2
// (profile.php?id=<id>) and group 3 (vanity username).
func facebook(groups []string) (string, string, bool) {
	if id := firstNonEmpty(groups, 1, 2); id != "" {
		return platform.SiteFacebookID, id, true
	}
	name := group(groups, 3)
	if name == "" || facebookReserved[strings.ToLower(name)] {
		return "", "", false
	}
	return platform.SiteFacebook, name, true
}

// xHandle drops a query string that the pattern let into the handle.
func xHandle(siteKey string, groups []string) (string, string, bool) {
	id := firstNonEmpty(groups, 1, 2, 3)
	if i := strings.IndexByte(id, '?'); i >= 0 {
		id = id[:i]
	}
	if id == "" {
		return "", "", false
	}
	return siteKey, id, true
}

func soundCloud(siteKey string, groups []string) (string, string, bool) {
	id := firstNonEmpty(groups, 1, 2, 3)
	if id == "" || numericSoundCloudID(id) {
		return "", "", false
	}
	return siteKey, id, true
}

func ens(siteKey string, groups []string) (string, string, bool) {
	name := strings.ToLower(strings.TrimSpace(firstNonEmpty(groups, 1, 2, 3)))
	if name == "" {
		return "", "", false
	}
	return siteKey, name, true
}

// wallet takes the address as captured. Checksum validation is left to
// whoever consumes the address.
func wallet(siteKey string, groups []string) (string, string, bool) {
	addr := firstNonEmpty(groups, 1, 2, 3)
	if addr == "" {
		return "", "", false
	}
	return siteKey, addr, true
}

func generic(siteKey string, groups []string) (string, string, bool) {
	id := firstNonEmpty(groups, 1, 2, 3)
	if id == "" {
		return "", "", false
	}
	return siteKey, id, true
}
