package bio

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sydlexius/nerdlinks/internal/artist"
	"github.com/sydlexius/nerdlinks/internal/database"
	"github.com/sydlexius/nerdlinks/internal/event"
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

type fakeGenerator struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.text, f.err
}

func (f *fakeGenerator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fixture struct {
	artists *artist.Service
	prompts *PromptStore
	gen     *fakeGenerator
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{
		artists: artist.NewService(db),
		prompts: NewPromptStore(db),
		gen:     &fakeGenerator{text: "  A Berlin producer.  "},
	}
	if err := f.prompts.Create(context.Background(), &Prompt{BeforeName: "Write a short bio for", AfterName: "in two sentences."}); err != nil {
		t.Fatalf("creating prompt: %v", err)
	}
	f.svc = NewService(f.artists, f.prompts, f.gen, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) artist(t *testing.T, platforms map[string]string) *artist.Artist {
	t.Helper()
	a := &artist.Artist{Name: "Apparat", Platforms: platforms}
	if err := f.artists.Create(context.Background(), a); err != nil {
		t.Fatalf("creating artist: %v", err)
	}
	return a
}

func TestPromptStore_SingleActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	second := &Prompt{BeforeName: "Describe", AfterName: "briefly."}
	if err := f.prompts.Create(ctx, second); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := f.prompts.Active(ctx)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if got.ID != second.ID || got.BeforeName != "Describe" {
		t.Errorf("Active = %+v, want the newest prompt", got)
	}

	if err := f.prompts.Create(ctx, &Prompt{BeforeName: "  "}); err == nil {
		t.Error("expected error for empty prompt")
	}
}

func TestPromptStore_NoPrompt(t *testing.T) {
	store := NewPromptStore(setupTestDB(t))
	if _, err := store.Active(context.Background()); !errors.Is(err, ErrNoPrompt) {
		t.Errorf("Active error = %v, want ErrNoPrompt", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	a := &artist.Artist{Name: "Apparat", Platforms: map[string]string{
		"spotify":        "sp1",
		"instagram":      "apparat",
		"x":              "apparat_x",
		"soundcloud":     "apparat-sc",
		"youtube":        "@apparatmusic",
		"youtubechannel": "UC123",
		"tiktok":         "ignored",
	}}
	got := BuildPrompt(&Prompt{BeforeName: "Write about", AfterName: "now."}, a)
	want := strings.Join([]string{
		"Write about",
		"Apparat",
		"now.",
		"Spotify ID: sp1",
		"Instagram: https://instagram.com/apparat",
		"Twitter: https://twitter.com/apparat_x",
		"SoundCloud: apparat-sc",
		"YouTube: https://youtube.com/@apparatmusic",
		"YouTube Channel: UC123",
		"Focus on genre, key achievements, and unique traits; avoid speculation.",
	}, "\n")
	if got != want {
		t.Errorf("BuildPrompt =\n%s\nwant\n%s", got, want)
	}
}

func TestGet_PlaceholderWithoutSourceData(t *testing.T) {
	f := newFixture(t)
	a := f.artist(t, map[string]string{"spotify": "sp1"})

	got, err := f.svc.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != Placeholder {
		t.Errorf("Get = %q, want placeholder", got)
	}
	if f.gen.calls() != 0 {
		t.Error("generator should not be called")
	}
}

func TestGet_GeneratesOnceThenCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.artist(t, map[string]string{"instagram": "apparat"})

	for range 2 {
		got, err := f.svc.Get(ctx, a.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != "A Berlin producer." {
			t.Errorf("Get = %q", got)
		}
	}
	if f.gen.calls() != 1 {
		t.Errorf("generator calls = %d, want 1", f.gen.calls())
	}
}

func TestRegenerate_EmptyOutputKeepsBio(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.artist(t, map[string]string{"instagram": "apparat"})
	if err := f.artists.SetBio(ctx, a.ID, "existing"); err != nil {
		t.Fatal(err)
	}
	f.gen.text = "   "

	if _, err := f.svc.Regenerate(ctx, a.ID); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	got, _ := f.artists.GetByID(ctx, a.ID)
	if got.Bio != "existing" {
		t.Errorf("Bio = %q, want existing", got.Bio)
	}
}

func TestRegenerate_Disabled(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.artists, f.prompts, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if _, err := svc.Regenerate(context.Background(), "any"); !errors.Is(err, ErrDisabled) {
		t.Errorf("Regenerate error = %v, want ErrDisabled", err)
	}
}

func TestHandleInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.artist(t, map[string]string{"x": "apparat"})

	f.svc.HandleInvalidated(event.Event{Type: event.BioInvalidated, ArtistID: a.ID})

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := f.svc.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	got, _ := f.artists.GetByID(ctx, a.ID)
	if got.Bio != "A Berlin producer." {
		t.Errorf("Bio = %q", got.Bio)
	}
}

// gatedGenerator echoes the prompt back once release is closed.
type gatedGenerator struct {
	entered chan string
	release chan struct{}
}

func (g *gatedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.entered <- prompt
	select {
	case <-g.release:
		return prompt, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestHandleInvalidated_DuringReadGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen := &gatedGenerator{entered: make(chan string, 2), release: make(chan struct{})}
	f.svc = NewService(f.artists, f.prompts, gen, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a := f.artist(t, map[string]string{"x": "oldhandle"})

	readDone := make(chan error, 1)
	go func() {
		_, err := f.svc.Get(ctx, a.ID)
		readDone <- err
	}()
	first := <-gen.entered
	if strings.Contains(first, "Instagram") {
		t.Fatalf("first prompt already has instagram:\n%s", first)
	}

	if err := f.artists.SetPlatform(ctx, a.ID, "instagram", "newhandle"); err != nil {
		t.Fatal(err)
	}
	if err := f.artists.ClearBio(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	f.svc.HandleInvalidated(event.Event{Type: event.BioInvalidated, ArtistID: a.ID})

	second := <-gen.entered
	if !strings.Contains(second, "Instagram: https://instagram.com/newhandle") {
		t.Errorf("regeneration prompt is missing instagram:\n%s", second)
	}
	close(gen.release)

	if err := <-readDone; err != nil {
		t.Fatalf("Get: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := f.svc.Wait(waitCtx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	got, _ := f.artists.GetByID(ctx, a.ID)
	if !strings.Contains(got.Bio, "Instagram: https://instagram.com/newhandle") {
		t.Errorf("stored bio was generated from stale data:\n%s", got.Bio)
	}
}

func TestUpdate_WinsOverInFlightGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gen := &gatedGenerator{entered: make(chan string, 1), release: make(chan struct{})}
	f.svc = NewService(f.artists, f.prompts, gen, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a := f.artist(t, map[string]string{"x": "apparat"})

	readDone := make(chan error, 1)
	go func() {
		_, err := f.svc.Get(ctx, a.ID)
		readDone <- err
	}()
	<-gen.entered

	if err := f.svc.Update(ctx, a.ID, "Edited by hand."); err != nil {
		t.Fatalf("Update: %v", err)
	}
	close(gen.release)
	if err := <-readDone; err != nil {
		t.Fatalf("Get: %v", err)
	}

	got, _ := f.artists.GetByID(ctx, a.ID)
	if got.Bio != "Edited by hand." {
		t.Errorf("Bio = %q, want the edited text", got.Bio)
	}
}

func TestHandleInvalidated_ErrorsAreSwallowed(t *testing.T) {
	f := newFixture(t)
	a := f.artist(t, map[string]string{"x": "apparat"})
	f.gen.err = errors.New("quota exceeded")

	f.svc.HandleInvalidated(event.Event{Type: event.BioInvalidated, ArtistID: a.ID})
	if err := f.svc.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	got, _ := f.artists.GetByID(context.Background(), a.ID)
	if got.Bio != "" {
		t.Errorf("Bio = %q, want empty", got.Bio)
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.artist(t, nil)

	if err := f.svc.Update(ctx, a.ID, " "); err == nil {
		t.Error("expected error for empty bio")
	}
	if err := f.svc.Update(ctx, a.ID, "Edited."); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, _ := f.artists.GetByID(ctx, a.ID)
	if got.Bio != "Edited." {
		t.Errorf("Bio = %q", got.Bio)
	}
}
