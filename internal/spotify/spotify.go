// Package spotify looks up artists in the Spotify Web API using the client
// credentials flow.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	defaultTokenURL = "https://accounts.spotify.com/api/token"
	defaultBaseURL  = "https://api.spotify.com/v1"
)

// Sentinel errors.
var (
	ErrNotFound    = errors.New("spotify artist not found")
	ErrInvalidID   = errors.New("invalid spotify artist id")
	ErrUnavailable = errors.New("spotify unavailable")
)

var idPattern = regexp.MustCompile(`^[0-9A-Za-z]{22}$`)

// ValidID reports whether id looks like a Spotify artist ID.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Artist is the subset of Spotify's artist object the service uses.
type Artist struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Genres    []string `json:"genres"`
	Followers struct {
		Total int `json:"total"`
	} `json:"followers"`
}

// Client calls the Spotify Web API.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	baseURL string
	logger  *slog.Logger
}

// New creates a client against the public Spotify endpoints.
func New(ctx context.Context, clientID, clientSecret string, logger *slog.Logger) *Client {
	return NewWithURLs(ctx, clientID, clientSecret, defaultTokenURL, defaultBaseURL, logger)
}

// NewWithURLs creates a client with custom token and API URLs (for testing).
func NewWithURLs(ctx context.Context, clientID, clientSecret, tokenURL, baseURL string, logger *slog.Logger) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	base := &http.Client{Timeout: 10 * time.Second}
	httpClient := cfg.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	httpClient.Timeout = 10 * time.Second

	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(5), 5),
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With(slog.String("component", "spotify")),
	}
}

// GetArtist fetches an artist by Spotify ID.
func (c *Client) GetArtist(ctx context.Context, id string) (*Artist, error) {
	if !ValidID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrUnavailable, err)
	}

	body, err := c.get(ctx, c.baseURL+"/artists/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var a Artist
	if err := json.Unmarshal(body, &a); err != nil {
		return nil, fmt.Errorf("parsing artist response: %w", err)
	}
	if a.Name == "" {
		return nil, fmt.Errorf("%w: artist %s has no name", ErrUnavailable, id)
	}
	c.logger.Debug("artist fetched", slog.String("id", id), slog.String("name", a.Name))
	return &a, nil
}

// ArtistName returns the display name of a Spotify artist.
func (c *Client) ArtistName(ctx context.Context, id string) (string, error) {
	a, err := c.GetArtist(ctx, id)
	if err != nil {
		return "", err
	}
	return a.Name, nil
}

func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req) //nolint:gosec // URL built from the configured base and a validated ID
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusBadRequest:
		return nil, ErrNotFound
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: rate limited by server", ErrUnavailable)
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1*1024*1024))
}
