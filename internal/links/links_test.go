package links

import (
	"context"
	"errors"
	"testing"

	"github.com/sydlexius/nerdlinks/internal/artist"
	"github.com/sydlexius/nerdlinks/internal/platform"
)

func defaultSnapshot(t *testing.T) *platform.Snapshot {
	t.Helper()
	rules, err := platform.DefaultRules()
	if err != nil {
		t.Fatalf("DefaultRules: %v", err)
	}
	return platform.Compile(rules)
}

func urls(links []Link) map[string]string {
	m := make(map[string]string, len(links))
	for _, l := range links {
		m[l.SiteKey] = l.URL
	}
	return m
}

func TestRender_YouTube(t *testing.T) {
	snap := defaultSnapshot(t)

	tests := []struct {
		name      string
		platforms map[string]string
		want      map[string]string
	}{
		{
			name:      "username only",
			platforms: map[string]string{"youtube": "@fkj"},
			want:      map[string]string{"youtube": "https://youtube.com/@fkj"},
		},
		{
			name:      "username without at sign",
			platforms: map[string]string{"youtube": "fkj"},
			want:      map[string]string{"youtube": "https://youtube.com/@fkj"},
		},
		{
			name:      "channel only",
			platforms: map[string]string{"youtubechannel": "UC123"},
			want:      map[string]string{"youtubechannel": "https://www.youtube.com/channel/UC123"},
		},
		{
			name:      "channel holding a handle",
			platforms: map[string]string{"youtubechannel": "@fkj"},
			want:      map[string]string{"youtubechannel": "https://youtube.com/@fkj"},
		},
		{
			name:      "username preferred over channel",
			platforms: map[string]string{"youtube": "@x", "youtubechannel": "UC123"},
			want:      map[string]string{"youtube": "https://youtube.com/@x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := urls(Render(snap, &artist.Artist{Platforms: tt.platforms}))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestRender_SpecialCases(t *testing.T) {
	snap := defaultSnapshot(t)
	a := &artist.Artist{
		Platforms: map[string]string{
			"soundcloud":     "123456",
			"supercollector": "fkj.eth",
			"facebookID":     "100044180243805",
			"facebook":       "fkjmusic",
			"ens":            "fkj.eth",
			"instagram":      "fkj",
		},
		Wallets: []string{"0xabc"},
	}

	got := urls(Render(snap, a))

	if _, ok := got["soundcloud"]; ok {
		t.Error("numeric SoundCloud id should be skipped")
	}
	if _, ok := got["ens"]; ok {
		t.Error("ENS should not be rendered")
	}
	if _, ok := got["wallets"]; ok {
		t.Error("wallets should not be rendered")
	}
	if want := "https://release.supercollector.xyz/artist/fkj"; got["supercollector"] != want {
		t.Errorf("supercollector = %q, want %q", got["supercollector"], want)
	}
	if want := "https://www.facebook.com/profile.php?id=100044180243805"; got["facebookID"] != want {
		t.Errorf("facebookID = %q, want %q", got["facebookID"], want)
	}
	if want := "https://www.facebook.com/fkjmusic"; got["facebook"] != want {
		t.Errorf("facebook = %q, want %q", got["facebook"], want)
	}
	if want := "https://instagram.com/fkj"; got["instagram"] != want {
		t.Errorf("instagram = %q, want %q", got["instagram"], want)
	}
}

func TestRender_NamedSoundCloud(t *testing.T) {
	got := urls(Render(defaultSnapshot(t), &artist.Artist{Platforms: map[string]string{"soundcloud": "fkj"}}))
	if got["soundcloud"] != "https://soundcloud.com/fkj" {
		t.Errorf("soundcloud = %q", got["soundcloud"])
	}
}

func TestRender_SortedBySortOrder(t *testing.T) {
	snap := platform.Compile([]platform.Rule{
		{SiteKey: "c", DisplayName: "C", Pattern: "c", URLTemplate: "https://c/%@", SortOrder: 1, Position: 1},
		{SiteKey: "a", DisplayName: "A", Pattern: "a", URLTemplate: "https://a/%@", SortOrder: 3, Position: 2},
		{SiteKey: "b", DisplayName: "B", Pattern: "b", URLTemplate: "https://b/%@", SortOrder: 2, Position: 3},
		{SiteKey: "d", DisplayName: "D", Pattern: "d", URLTemplate: "https://d/%@", SortOrder: 2, Position: 4},
	})
	a := &artist.Artist{Platforms: map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"}}

	links := Render(snap, a)
	var order []string
	for _, l := range links {
		order = append(order, l.SiteKey)
	}
	want := []string{"c", "b", "d", "a"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if links[0].URL != "https://c/3" || links[0].DisplayName != "C" {
		t.Errorf("links[0] = %+v", links[0])
	}
}

func TestRender_MalformedPatternStillRenders(t *testing.T) {
	snap := platform.Compile([]platform.Rule{
		{SiteKey: "instagram", DisplayName: "Instagram", Pattern: "(unclosed", URLTemplate: "https://instagram.com/%@", SortOrder: 1, Position: 1},
		{SiteKey: "tiktok", DisplayName: "TikTok", Pattern: `tiktok\.com/@([^/?#]+)`, URLTemplate: "https://www.tiktok.com/@%@", SortOrder: 2, Position: 2},
	})
	if len(snap.Skipped) != 1 || len(snap.Rules) != 1 {
		t.Fatalf("rules = %d, skipped = %d; want 1 and 1", len(snap.Rules), len(snap.Skipped))
	}
	a := &artist.Artist{Platforms: map[string]string{"instagram": "fkj", "tiktok": "fkjmusic"}}

	links := Render(snap, a)
	if len(links) != 2 {
		t.Fatalf("links = %+v, want instagram and tiktok", links)
	}
	if links[0].SiteKey != "instagram" || links[0].URL != "https://instagram.com/fkj" {
		t.Errorf("links[0] = %+v", links[0])
	}
	if links[1].URL != "https://www.tiktok.com/@fkjmusic" {
		t.Errorf("links[1] = %+v", links[1])
	}
}

func TestRender_EmptyArtist(t *testing.T) {
	links := Render(defaultSnapshot(t), &artist.Artist{})
	if links == nil || len(links) != 0 {
		t.Errorf("links = %#v, want empty non-nil slice", links)
	}
}

type fakeRules struct {
	snap *platform.Snapshot
	err  error
}

func (f fakeRules) Load(context.Context) (*platform.Snapshot, error) { return f.snap, f.err }

func TestBuilder_Build(t *testing.T) {
	b := NewBuilder(fakeRules{snap: defaultSnapshot(t)})
	links, err := b.Build(context.Background(), &artist.Artist{Platforms: map[string]string{"x": "fkj"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(links) != 1 || links[0].URL != "https://x.com/fkj" || links[0].DisplayName != "X" {
		t.Errorf("links = %+v", links)
	}

	sentinel := errors.New("rules unavailable")
	if _, err := NewBuilder(fakeRules{err: sentinel}).Build(context.Background(), &artist.Artist{}); !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want sentinel", err)
	}
}
