package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/sydlexius/nerdlinks/internal/api/middleware"
	"github.com/sydlexius/nerdlinks/internal/artist"
	"github.com/sydlexius/nerdlinks/internal/bio"
	"github.com/sydlexius/nerdlinks/internal/extract"
	"github.com/sydlexius/nerdlinks/internal/links"
	"github.com/sydlexius/nerdlinks/internal/platform"
	"github.com/sydlexius/nerdlinks/internal/ugc"
	"github.com/sydlexius/nerdlinks/internal/user"
	"github.com/sydlexius/nerdlinks/internal/webhook"
)

// Extractor resolves a submitted URL.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (*extract.Result, error)
}

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	UserService     *user.Service
	ArtistService   *artist.Service
	ArtistAdder     *artist.Adder
	Extractor       Extractor
	LinkBuilder     *links.Builder
	Registry        *platform.Registry
	PlatformService *platform.Service
	Ledger          *ugc.Ledger
	Approver        *ugc.Approver
	BioService      *bio.Service
	WebhookService  *webhook.Service
	DB              *sql.DB
	Logger          *slog.Logger
	BasePath        string
	// AllowedOrigin enables CORS for browser clients when set.
	AllowedOrigin string
	// OpenMode accepts anonymous contributions.
	OpenMode bool
	// SubmitLimiter rate-limits write endpoints per client. Nil disables it.
	SubmitLimiter *middleware.IPRateLimiter
}

// Router sets up all HTTP routes for the application.
type Router struct {
	userService     *user.Service
	artistService   *artist.Service
	artistAdder     *artist.Adder
	extractor       Extractor
	linkBuilder     *links.Builder
	registry        *platform.Registry
	platformService *platform.Service
	ledger          *ugc.Ledger
	approver        *ugc.Approver
	bioService      *bio.Service
	webhookService  *webhook.Service
	db              *sql.DB
	logger          *slog.Logger
	basePath        string
	allowedOrigin   string
	openMode        bool
	submitLimiter   *middleware.IPRateLimiter
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		userService:     deps.UserService,
		artistService:   deps.ArtistService,
		artistAdder:     deps.ArtistAdder,
		extractor:       deps.Extractor,
		linkBuilder:     deps.LinkBuilder,
		registry:        deps.Registry,
		platformService: deps.PlatformService,
		ledger:          deps.Ledger,
		approver:        deps.Approver,
		bioService:      deps.BioService,
		webhookService:  deps.WebhookService,
		db:              deps.DB,
		logger:          deps.Logger.With(slog.String("component", "api")),
		basePath:        deps.BasePath,
		allowedOrigin:   deps.AllowedOrigin,
		openMode:        deps.OpenMode,
		submitLimiter:   deps.SubmitLimiter,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	authMw := middleware.Auth(r.userService)
	optionalMw := middleware.OptionalAuth(r.userService)
	mux := http.NewServeMux()
	bp := r.basePath

	// Public routes
	mux.HandleFunc("GET "+bp+"/api/v1/health", r.handleHealth)
	mux.HandleFunc("POST "+bp+"/api/v1/extract", r.handleExtract)
	mux.HandleFunc("GET "+bp+"/api/v1/artists", r.handleSearchArtists)
	mux.HandleFunc("GET "+bp+"/api/v1/artists/{id}", r.handleGetArtist)
	mux.HandleFunc("GET "+bp+"/api/v1/artists/{id}/links", r.handleArtistLinks)
	mux.HandleFunc("GET "+bp+"/api/v1/artists/{id}/bio", r.handleGetBio)
	mux.HandleFunc("GET "+bp+"/api/v1/platforms", r.handleListPlatforms)
	mux.HandleFunc("GET "+bp+"/api/v1/leaderboard", r.handleLeaderboard)

	// Contribution routes; anonymous callers are accepted in open mode
	mux.Handle("POST "+bp+"/api/v1/artists", r.limited(optionalMw(http.HandlerFunc(r.handleAddArtist))))
	mux.Handle("POST "+bp+"/api/v1/artists/{id}/contributions", r.limited(optionalMw(http.HandlerFunc(r.handleSubmitContribution))))
	mux.Handle("POST "+bp+"/api/v1/contributions/approve", optionalMw(http.HandlerFunc(r.handleApproveContributions)))
	mux.Handle("GET "+bp+"/api/v1/contributions/pending", optionalMw(http.HandlerFunc(r.handleListPending)))
	mux.Handle("GET "+bp+"/api/v1/contributions/pending/count", optionalMw(http.HandlerFunc(r.handlePendingCount)))
	mux.Handle("DELETE "+bp+"/api/v1/artists/{id}/platforms/{siteKey}", optionalMw(http.HandlerFunc(r.handleRemovePlatform)))

	// Authenticated routes
	mux.Handle("GET "+bp+"/api/v1/me", authMw(http.HandlerFunc(r.handleMe)))
	mux.Handle("GET "+bp+"/api/v1/me/stats", authMw(http.HandlerFunc(r.handleMyStats)))
	mux.Handle("PUT "+bp+"/api/v1/artists/{id}/bio", authMw(http.HandlerFunc(r.handleUpdateBio)))
	mux.Handle("POST "+bp+"/api/v1/platforms/refresh", authMw(http.HandlerFunc(r.handleRefreshPlatforms)))
	mux.Handle("PUT "+bp+"/api/v1/platforms/{siteKey}", authMw(http.HandlerFunc(r.handleUpsertPlatform)))
	mux.Handle("DELETE "+bp+"/api/v1/platforms/{siteKey}", authMw(http.HandlerFunc(r.handleDeletePlatform)))

	// Webhook routes
	mux.Handle("GET "+bp+"/api/v1/webhooks", authMw(http.HandlerFunc(r.handleListWebhooks)))
	mux.Handle("POST "+bp+"/api/v1/webhooks", authMw(http.HandlerFunc(r.handleCreateWebhook)))
	mux.Handle("GET "+bp+"/api/v1/webhooks/{id}", authMw(http.HandlerFunc(r.handleGetWebhook)))
	mux.Handle("PUT "+bp+"/api/v1/webhooks/{id}", authMw(http.HandlerFunc(r.handleUpdateWebhook)))
	mux.Handle("DELETE "+bp+"/api/v1/webhooks/{id}", authMw(http.HandlerFunc(r.handleDeleteWebhook)))

	var h http.Handler = mux
	h = middleware.CORS(r.allowedOrigin)(h)
	h = middleware.SecurityHeaders(h)
	return middleware.Logging(r.logger)(h)
}

// limited applies the per-client submission limiter when configured.
func (r *Router) limited(h http.Handler) http.Handler {
	if r.submitLimiter == nil {
		return h
	}
	return r.submitLimiter.Middleware(h)
}
