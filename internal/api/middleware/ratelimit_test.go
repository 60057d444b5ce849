package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func send(h http.Handler, remote string, headers map[string]string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/artists/a/contributions", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestIPRateLimiter_BlocksAfterBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewIPRateLimiter(ctx, 3).Middleware(okHandler())

	for i := range 3 {
		if code := send(h, "203.0.113.1:1234", nil); code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, code)
		}
	}
	if code := send(h, "203.0.113.1:1234", nil); code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", code)
	}
	if code := send(h, "203.0.113.2:1234", nil); code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", code)
	}
}

func TestIPRateLimiter_UsesForwardedFor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewIPRateLimiter(ctx, 1).Middleware(okHandler())

	proxy := "10.0.0.1:80"
	if code := send(h, proxy, map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if code := send(h, proxy, map[string]string{"X-Forwarded-For": "198.51.100.2"}); code != http.StatusOK {
		t.Errorf("distinct forwarded client status = %d, want 200", code)
	}
	if code := send(h, proxy, map[string]string{"X-Forwarded-For": "198.51.100.1"}); code != http.StatusTooManyRequests {
		t.Errorf("repeat forwarded client status = %d, want 429", code)
	}
}
