package platform

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

type countingInvalidator struct{ n atomic.Int32 }

func (c *countingInvalidator) Invalidate() { c.n.Add(1) }

func TestFileWatcher_ReimportsOnWrite(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db)
	inv := &countingInvalidator{}

	path := filepath.Join(t.TempDir(), "rules.yaml")
	write := func(pattern string) {
		t.Helper()
		data := []byte("- site_key: myspace\n  pattern: '" + pattern + "'\n")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write(`myspace\.com/([^/]+)`)

	w := NewFileWatcher(path, svc, inv, testLogger())
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	go w.Run(ctx) //nolint:errcheck

	// Give the watcher time to register before the write.
	time.Sleep(100 * time.Millisecond)
	write(`myspace\.com/artist/([^/]+)`)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		r, err := svc.GetBySiteKey(ctx, "myspace")
		if err == nil && r.Pattern == `myspace\.com/artist/([^/]+)` && inv.n.Load() >= 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("rule file change was not imported")
}
