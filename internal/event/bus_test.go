package event

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startBus(t *testing.T, size int) *Bus {
	t.Helper()
	bus := NewBus(testLogger(), size)
	ctx, cancel := context.WithCancel(context.Background())
	go bus.Run(ctx)
	t.Cleanup(func() {
		cancel()
		bus.Close(time.Second)
	})
	return bus
}

func TestPublishSubscribe(t *testing.T) {
	bus := startBus(t, 16)

	got := make(chan Event, 1)
	bus.Subscribe(ContributionPending, func(e Event) { got <- e })

	if !bus.Publish(Event{Type: ContributionPending, ArtistID: "a1", Data: map[string]any{"site": "x"}}) {
		t.Fatal("Publish returned false")
	}

	select {
	case e := <-got:
		if e.ArtistID != "a1" {
			t.Errorf("ArtistID = %q, want a1", e.ArtistID)
		}
		if e.Data["site"] != "x" {
			t.Errorf("Data[site] = %v, want x", e.Data["site"])
		}
		if e.Timestamp.IsZero() {
			t.Error("expected timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := startBus(t, 16)

	var mu sync.Mutex
	seen := map[Type]int{}
	done := make(chan struct{}, 2)
	bus.SubscribeAll(func(e Event) {
		mu.Lock()
		seen[e.Type]++
		mu.Unlock()
		done <- struct{}{}
	})

	bus.Publish(Event{Type: ArtistAdded})
	bus.Publish(Event{Type: BioInvalidated})

	for range 2 {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if seen[ArtistAdded] != 1 || seen[BioInvalidated] != 1 {
		t.Errorf("seen = %v", seen)
	}
}

func TestHandlerPanicDoesNotStopBus(t *testing.T) {
	bus := startBus(t, 16)

	got := make(chan struct{}, 1)
	bus.Subscribe(ArtistDataAdded, func(Event) { panic("boom") })
	bus.Subscribe(ArtistDataAdded, func(Event) { got <- struct{}{} })

	bus.Publish(Event{Type: ArtistDataAdded})

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("second handler not called after panic")
	}
}

func TestPublish_FullBufferDrops(t *testing.T) {
	bus := NewBus(testLogger(), 1)

	if !bus.Publish(Event{Type: ArtistAdded}) {
		t.Fatal("first publish should be buffered")
	}
	if bus.Publish(Event{Type: ArtistAdded}) {
		t.Error("second publish should be dropped while nothing drains")
	}
}

func TestClose_DrainsQueue(t *testing.T) {
	bus := NewBus(testLogger(), 8)

	var mu sync.Mutex
	count := 0
	bus.Subscribe(ContributionAccepted, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	for range 3 {
		bus.Publish(Event{Type: ContributionAccepted})
	}

	go bus.Run(context.Background())
	bus.Close(time.Second)

	mu.Lock()
	defer mu.Unlock()
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if bus.Publish(Event{Type: ContributionAccepted}) {
		t.Error("publish after Close should be rejected")
	}
}
