package extract

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/sydlexius/nerdlinks/internal/platform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func defaultSnapshot(t *testing.T) *platform.Snapshot {
	t.Helper()
	rules, err := platform.DefaultRules()
	if err != nil {
		t.Fatalf("DefaultRules: %v", err)
	}
	snap := platform.Compile(rules)
	if len(snap.Skipped) > 0 {
		t.Fatalf("default rules skipped: %+v", snap.Skipped)
	}
	return snap
}

type want struct {
	siteKey string
	id      string
}

func runCases(t *testing.T, snap *platform.Snapshot, tests []struct {
	url  string
	want *want
}) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := Match(snap, tt.url)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("Match(%q) = %+v, want nil", tt.url, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("Match(%q) = nil, want (%s, %s)", tt.url, tt.want.siteKey, tt.want.id)
			}
			if got.SiteKey != tt.want.siteKey || got.ExternalID != tt.want.id {
				t.Errorf("Match(%q) = (%s, %s), want (%s, %s)",
					tt.url, got.SiteKey, got.ExternalID, tt.want.siteKey, tt.want.id)
			}
		})
	}
}

func TestMatch_YouTube(t *testing.T) {
	runCases(t, defaultSnapshot(t), []struct {
		url  string
		want *want
	}{
		{"https://www.youtube.com/@fkj", &want{"youtube", "@fkj"}},
		{"https://youtube.com/fkj", &want{"youtube", "@fkj"}},
		{"https://m.youtube.com/@fkj/", &want{"youtube", "@fkj"}},
		{"https://www.youtube.com/channel/UCq19-LqvG35A-30oyAiPiqA", &want{"youtubechannel", "UCq19-LqvG35A-30oyAiPiqA"}},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", nil},
	})
}

func TestMatch_Facebook(t *testing.T) {
	runCases(t, defaultSnapshot(t), []struct {
		url  string
		want *want
	}{
		{"https://www.facebook.com/username", &want{"facebook", "username"}},
		{"https://facebook.com/username", &want{"facebook", "username"}},
		{"https://m.facebook.com/username", &want{"facebook", "username"}},
		{"https://mobile.facebook.com/username", &want{"facebook", "username"}},
		{"https://touch.facebook.com/username/", &want{"facebook", "username"}},
		{"https://WWW.FACEBOOK.COM/Username", &want{"facebook", "Username"}},
		{"https://www.facebook.com/username?ref=bookmarks", &want{"facebook", "username"}},
		{"https://www.facebook.com/username#about", &want{"facebook", "username"}},
		{"https://www.facebook.com/profile.php?id=123", &want{"facebookID", "123"}},
		{"https://www.facebook.com/profile.php?id=100044180243805&sk=about", &want{"facebookID", "100044180243805"}},
		{"https://www.facebook.com/people/John-Doe/100012345678901/", &want{"facebookID", "100012345678901"}},
		{"https://www.facebook.com/people/John-Doe/100012345678901", &want{"facebookID", "100012345678901"}},
		{"https://www.facebook.com/profile.php?id=notanumber", nil},
		{"https://www.facebook.com/people/John-Doe/notanumber/", nil},
		{"https://www.facebook.com/", nil},
		{"https://www.notfacebook.com/username", nil},
	})
}

func TestMatch_X(t *testing.T) {
	runCases(t, defaultSnapshot(t), []struct {
		url  string
		want *want
	}{
		{"https://x.com/foo?si=21", &want{"x", "foo"}},
		{"https://x.com/foo", &want{"x", "foo"}},
		{"https://twitter.com/foo/", &want{"x", "foo"}},
		{"https://x.com/foo/status/1789", nil},
	})
}

func TestMatch_SoundCloud(t *testing.T) {
	runCases(t, defaultSnapshot(t), []struct {
		url  string
		want *want
	}{
		{"https://soundcloud.com/fkj", &want{"soundcloud", "fkj"}},
		{"https://soundcloud.com/fkj/tracks", &want{"soundcloud", "fkj"}},
		{"https://soundcloud.com/123456", nil},
		{"https://soundcloud.com/user-12345", nil},
		// No scheme: the rule misses and the host fallback applies.
		{"soundcloud.com/fkj", &want{"soundcloud", "fkj"}},
		{"https://on.soundcloud.com/fkj", &want{"soundcloud", "fkj"}},
		{"soundcloud.com/user-987", nil},
		{"soundcloud.com/42", nil},
		{"https://soundcloud.com.example.org/fkj", nil},
	})
}

func TestMatch_Wikipedia(t *testing.T) {
	runCases(t, defaultSnapshot(t), []struct {
		url  string
		want *want
	}{
		{"https://en.wikipedia.org/wiki/Radiohead", &want{"wikipedia", "Radiohead"}},
		{"https://en.m.wikipedia.org/wiki/Radiohead", &want{"wikipedia", "Radiohead"}},
		{"https://en.wikipedia.org/wiki/Sigur_R%C3%B3s", &want{"wikipedia", "Sigur_Rós"}},
		{"https://de.wikipedia.org/wiki/Radiohead", nil},
	})
}

func TestMatch_WikipediaHostGate(t *testing.T) {
	// A permissive pattern still only applies to the English Wikipedia.
	snap := platform.Compile([]platform.Rule{
		{SiteKey: "wikipedia", DisplayName: "Wikipedia", Pattern: `wikipedia\.org/wiki/([^?#/]+)`, Position: 1},
	})
	runCases(t, snap, []struct {
		url  string
		want *want
	}{
		{"https://de.wikipedia.org/wiki/Radiohead", nil},
		{"https://fr.m.wikipedia.org/wiki/Radiohead", nil},
		{"https://en.wikipedia.org/wiki/Radiohead", &want{"wikipedia", "Radiohead"}},
		{"en.wikipedia.org/wiki/Radiohead", &want{"wikipedia", "Radiohead"}},
		{"https://en.wikipedia.org.evil.net/wiki/Radiohead", nil},
	})
}

func TestMatch_Web3(t *testing.T) {
	addr := "0x" + strings.Repeat("aB", 20)
	runCases(t, defaultSnapshot(t), []struct {
		url  string
		want *want
	}{
		{"  Vitalik.ETH ", &want{"ens", "vitalik.eth"}},
		{"https://app.ens.domains/name/vitalik.eth", &want{"ens", "vitalik.eth"}},
		{addr, &want{"wallets", addr}},
		{"https://etherscan.io/address/" + addr, &want{"wallets", addr}},
	})
}

func TestMatch_Generic(t *testing.T) {
	runCases(t, defaultSnapshot(t), []struct {
		url  string
		want *want
	}{
		{"https://www.instagram.com/foo/", &want{"instagram", "foo"}},
		{"https://open.spotify.com/artist/4Z8W4fKeB5YxbusRsdQVPb", &want{"spotify", "4Z8W4fKeB5YxbusRsdQVPb"}},
		{"https://fkj.bandcamp.com", &want{"bandcamp", "fkj"}},
		{"https://www.tiktok.com/@fkj", &want{"tiktok", "fkj"}},
		{"https://www.imdb.com/name/nm0000149/", &want{"imdb", "nm0000149"}},
		{"https://www.discogs.com/artist/3840-Radiohead", &want{"discogs", "3840-Radiohead"}},
		{"https://example.com/fkj", nil},
		{"not a url", nil},
		{"", nil},
		{"%zz", nil},
	})
}

func TestMatch_FirstRuleWins(t *testing.T) {
	snap := platform.Compile([]platform.Rule{
		{SiteKey: "second", Pattern: `example\.com/(\w+)`, Position: 20},
		{SiteKey: "first", Pattern: `example\.com/(\w+)`, Position: 10},
	})
	got := Match(snap, "https://example.com/fkj")
	if got == nil || got.SiteKey != "first" {
		t.Fatalf("Match = %+v, want site key first", got)
	}
}

func TestMatch_DisambiguationFailureStopsScan(t *testing.T) {
	// A numeric SoundCloud id is rejected even when a later rule would match.
	snap := platform.Compile([]platform.Rule{
		{SiteKey: "soundcloud", Pattern: `soundcloud\.com/([^/]+)`, Position: 1},
		{SiteKey: "catchall", Pattern: `https://([^/]+)/`, Position: 2},
	})
	if got := Match(snap, "https://soundcloud.com/123456"); got != nil {
		t.Errorf("Match = %+v, want nil", got)
	}
}

func TestMatch_MalformedRuleSkipped(t *testing.T) {
	snap := platform.Compile([]platform.Rule{
		{SiteKey: "broken", Pattern: `(?P<oops`, Position: 1},
		{SiteKey: "instagram", DisplayName: "Instagram", Pattern: `instagram\.com/([^/]+)`, Position: 2},
	})
	got := Match(snap, "https://www.instagram.com/foo")
	if got == nil || got.SiteKey != "instagram" || got.ExternalID != "foo" || got.DisplayName != "Instagram" {
		t.Errorf("Match = %+v", got)
	}
}

type fakeRules struct {
	snap  *platform.Snapshot
	err   error
	calls int
}

func (f *fakeRules) Load(context.Context) (*platform.Snapshot, error) {
	f.calls++
	return f.snap, f.err
}

func TestExtractor_CachesPerGeneration(t *testing.T) {
	first := platform.Compile([]platform.Rule{{SiteKey: "a", Pattern: `example\.com/(\w+)`}})
	first.Generation = 1
	rules := &fakeRules{snap: first}

	ex, err := New(rules, 16, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	got, err := ex.Extract(ctx, "https://example.com/fkj")
	if err != nil || got == nil || got.SiteKey != "a" {
		t.Fatalf("Extract = %+v, %v", got, err)
	}
	// Mutating a returned result must not leak into the cache.
	got.ExternalID = "changed"
	again, _ := ex.Extract(ctx, "https://example.com/fkj")
	if again.ExternalID != "fkj" {
		t.Errorf("cached ExternalID = %q, want fkj", again.ExternalID)
	}

	second := platform.Compile([]platform.Rule{{SiteKey: "b", Pattern: `example\.com/(\w+)`}})
	second.Generation = 2
	rules.snap = second

	got, _ = ex.Extract(ctx, "https://example.com/fkj")
	if got == nil || got.SiteKey != "b" {
		t.Errorf("after reload Extract = %+v, want site key b", got)
	}
}

func TestExtractor_NoMatchIsNotAnError(t *testing.T) {
	ex, err := New(&fakeRules{snap: defaultSnapshot(t)}, 0, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	got, err := ex.Extract(context.Background(), "https://example.com/nothing")
	if err != nil || got != nil {
		t.Errorf("Extract = %+v, %v; want nil, nil", got, err)
	}
}

func TestExtractor_RulesUnavailable(t *testing.T) {
	sentinel := errors.New("db down")
	ex, err := New(&fakeRules{err: sentinel}, 16, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Extract(context.Background(), "https://x.com/foo"); !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want wrapped sentinel", err)
	}
}
