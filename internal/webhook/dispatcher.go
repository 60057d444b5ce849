package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sydlexius/nerdlinks/internal/event"
)

const (
	maxAttempts    = 3
	requestTimeout = 10 * time.Second
)

// Options configures a dispatcher.
type Options struct {
	// HTTPClient overrides the default client (for testing).
	HTTPClient *http.Client
	// Backoff is the first retry delay. Zero means one second.
	Backoff time.Duration
}

// Dispatcher delivers events to the webhooks subscribed to them.
type Dispatcher struct {
	service    *Service
	httpClient *http.Client
	backoff    time.Duration
	logger     *slog.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(service *Service, opts Options, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		service:    service,
		httpClient: opts.HTTPClient,
		backoff:    opts.Backoff,
		logger:     logger.With(slog.String("component", "webhook-dispatcher")),
	}
	if d.httpClient == nil {
		d.httpClient = &http.Client{Timeout: requestTimeout}
	}
	if d.backoff <= 0 {
		d.backoff = time.Second
	}
	return d
}

// HandleEvent is an event.Handler that sends e to every matching webhook.
// Deliveries run in the background.
func (d *Dispatcher) HandleEvent(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	webhooks, err := d.service.ListByEvent(ctx, e.Type)
	if err != nil {
		d.logger.Error("listing webhooks for event", "type", string(e.Type), "error", err)
		return
	}

	for i := range webhooks {
		w := webhooks[i]
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(&w, e)
		}()
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(w *Webhook, e event.Event) {
	body, contentType := formatPayload(w, e)

	attempt := 0
	b := retry.WithMaxRetries(maxAttempts-1, retry.NewExponential(d.backoff))
	err := retry.Do(context.Background(), b, func(ctx context.Context) error {
		attempt++
		if err := d.send(ctx, w.URL, body, contentType); err != nil {
			d.logger.Warn("webhook delivery failed",
				"webhook", w.Name, "event", string(e.Type), "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		d.logger.Error("webhook delivery exhausted retries",
			"webhook", w.Name, "event", string(e.Type), "error", err)
		return
	}
	d.logger.Debug("webhook delivered", "webhook", w.Name, "event", string(e.Type), "attempt", attempt)
}

func (d *Dispatcher) send(ctx context.Context, url string, body []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "nerdlinks-webhook/1.0")

	resp, err := d.httpClient.Do(req) //nolint:gosec // URL is an operator-configured webhook
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()        //nolint:errcheck
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
