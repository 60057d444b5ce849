package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sydlexius/nerdlinks/internal/api"
	"github.com/sydlexius/nerdlinks/internal/api/middleware"
	"github.com/sydlexius/nerdlinks/internal/artist"
	"github.com/sydlexius/nerdlinks/internal/bio"
	"github.com/sydlexius/nerdlinks/internal/config"
	"github.com/sydlexius/nerdlinks/internal/database"
	"github.com/sydlexius/nerdlinks/internal/event"
	"github.com/sydlexius/nerdlinks/internal/extract"
	"github.com/sydlexius/nerdlinks/internal/links"
	"github.com/sydlexius/nerdlinks/internal/logging"
	"github.com/sydlexius/nerdlinks/internal/platform"
	"github.com/sydlexius/nerdlinks/internal/spotify"
	"github.com/sydlexius/nerdlinks/internal/ugc"
	"github.com/sydlexius/nerdlinks/internal/user"
	"github.com/sydlexius/nerdlinks/internal/version"
	"github.com/sydlexius/nerdlinks/internal/webhook"
)

// extractCacheSize bounds the memoised URL extractions.
const extractCacheSize = 4096

func main() {
	// A missing .env file is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: loading .env: %v\n", err)
	}

	// Handle subcommands before starting the server
	if len(os.Args) > 1 {
		var err error
		switch os.Args[1] {
		case "create-user":
			err = createUser(os.Args[2:])
		case "create-token":
			err = createToken(os.Args[2:])
		case "set-roles":
			err = setRoles(os.Args[2:])
		case "revoke-tokens":
			err = revokeTokens(os.Args[2:])
		case "import-rules":
			err = importRules(os.Args[2:])
		case "set-bio-prompt":
			err = setBioPrompt(os.Args[2:])
		case "version":
			fmt.Printf("nerdlinks %s (%s)\n", version.Version, version.Commit)
			return
		default:
			err = fmt.Errorf("unknown command %q", os.Args[1])
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	configPath := os.Getenv("NL_CONFIG_PATH")
	if configPath == "" {
		configPath = "/data/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// openDatabase opens and migrates the database and seeds the built-in
// platform rules.
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := platform.NewService(db).SeedDefaults(ctx); err != nil {
		db.Close() //nolint:errcheck,gosec
		return nil, fmt.Errorf("seeding default rules: %w", err)
	}
	return db, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Set up structured logging via the logging Manager
	logManager, logger := logging.New(loggingConfig(cfg))
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go reloadLoggingOnHangup(ctx, logManager, logging.Component(logger, "main"))

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	retry := database.RetryPolicy{
		Attempts: uint64(max(cfg.Database.RetryAttempts, 0)), //nolint:gosec // validated non-negative
		Base:     time.Duration(cfg.Database.RetryBaseMS) * time.Millisecond,
	}

	// Platform rules
	platformService := platform.NewService(db)
	registry := platform.NewRegistry(platformService, time.Duration(cfg.Rules.RefreshSeconds)*time.Second, logger)
	if cfg.Rules.File != "" {
		fileWatcher := platform.NewFileWatcher(cfg.Rules.File, platformService, registry, logger)
		if err := fileWatcher.Sync(ctx); err != nil {
			logger.Warn("importing rule file", "path", cfg.Rules.File, "error", err)
		}
		go func() {
			if err := fileWatcher.Run(ctx); err != nil {
				logger.Error("rule file watcher stopped", "error", err)
			}
		}()
	}
	extractor, err := extract.New(registry, extractCacheSize, logger)
	if err != nil {
		return err
	}

	// Event bus
	eventBus := event.NewBus(logger, 256)
	go eventBus.Run(ctx)

	// Core services
	userService := user.NewService(db)
	artistService := artist.NewService(db)
	opts := ugc.Options{
		OpenMode:     cfg.Contributions.OpenMode,
		Retry:        retry,
		PingInterval: time.Duration(cfg.Contributions.PendingPingMinutes) * time.Minute,
	}
	approver := ugc.NewApprover(db, userService, eventBus, opts, logger)
	ledger := ugc.NewLedger(db, extractor, userService, approver, eventBus, opts, logger)

	var adder *artist.Adder
	if cfg.Spotify.ClientID != "" {
		client := spotify.New(ctx, cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, logger)
		adder = artist.NewAdder(db, client, eventBus, logger)
	} else {
		logger.Warn("spotify credentials not set; adding artists is disabled")
	}

	var generator bio.Generator
	if cfg.Bio.APIKey != "" {
		g, err := bio.NewGeminiGenerator(ctx, cfg.Bio.APIKey, cfg.Bio.Model)
		if err != nil {
			return fmt.Errorf("creating bio generator: %w", err)
		}
		generator = g
	} else {
		logger.Warn("gemini api key not set; bio generation is disabled")
	}
	bioService := bio.NewService(artistService, bio.NewPromptStore(db), generator, logger)
	eventBus.Subscribe(event.BioInvalidated, bioService.HandleInvalidated)

	// Webhooks
	webhookService := webhook.NewService(db)
	if cfg.Discord.WebhookURL != "" {
		if _, err := webhookService.EnsureDiscord(ctx, cfg.Discord.WebhookURL); err != nil {
			logger.Error("configuring discord webhook", "error", err)
		}
	}
	dispatcher := webhook.NewDispatcher(webhookService, webhook.Options{}, logger)
	eventBus.SubscribeAll(dispatcher.HandleEvent)

	var submitLimiter *middleware.IPRateLimiter
	if cfg.Contributions.SubmitPerMinute > 0 {
		submitLimiter = middleware.NewIPRateLimiter(ctx, cfg.Contributions.SubmitPerMinute)
	}

	router := api.NewRouter(api.RouterDeps{
		UserService:     userService,
		ArtistService:   artistService,
		ArtistAdder:     adder,
		Extractor:       extractor,
		LinkBuilder:     links.NewBuilder(registry),
		Registry:        registry,
		PlatformService: platformService,
		Ledger:          ledger,
		Approver:        approver,
		BioService:      bioService,
		WebhookService:  webhookService,
		DB:              db,
		Logger:          logger,
		BasePath:        cfg.Server.BasePath,
		AllowedOrigin:   cfg.Server.AllowedOrigin,
		OpenMode:        cfg.Contributions.OpenMode,
		SubmitLimiter:   submitLimiter,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("base_path", cfg.Server.BasePath),
			slog.String("version", version.Version),
			slog.Bool("open_mode", cfg.Contributions.OpenMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	eventBus.Close(5 * time.Second)
	if werr := dispatcher.Wait(shutdownCtx); werr != nil {
		logger.Warn("webhook deliveries still running at shutdown", "error", werr)
	}
	if werr := bioService.Wait(shutdownCtx); werr != nil {
		logger.Warn("bio generations still running at shutdown", "error", werr)
	}
	return err
}

func loggingConfig(cfg *config.Config) logging.Config {
	return logging.Config{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		FilePath:       cfg.Logging.FilePath,
		FileMaxSizeMB:  cfg.Logging.FileMaxSizeMB,
		FileMaxFiles:   cfg.Logging.FileMaxFiles,
		FileMaxAgeDays: cfg.Logging.FileMaxAgeDays,
	}
}

// reloadLoggingOnHangup re-reads the config on SIGHUP and applies its
// logging section. Other settings need a restart.
func reloadLoggingOnHangup(ctx context.Context, mgr *logging.Manager, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := loadConfig()
			if err != nil {
				logger.Error("reloading config", "error", err)
				continue
			}
			mgr.Apply(loggingConfig(cfg))
			logger.Info("logging reconfigured", "config", mgr.Current().String())
		}
	}
}

// createUser adds a contributor account.
// Usage: create-user [-admin] [-whitelisted] [-email addr] <username>
func createUser(args []string) error {
	fset := flag.NewFlagSet("create-user", flag.ContinueOnError)
	admin := fset.Bool("admin", false, "grant admin rights")
	whitelisted := fset.Bool("whitelisted", false, "skip moderation for this user's submissions")
	email := fset.String("email", "", "email address")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return fmt.Errorf("usage: create-user [-admin] [-whitelisted] [-email addr] <username>")
	}

	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	u := &user.User{Username: fset.Arg(0), Email: *email, IsAdmin: *admin, IsWhitelisted: *whitelisted}
	if err := user.NewService(db).Create(ctx, u); err != nil {
		return err
	}
	fmt.Printf("Created user %s (%s)\n", u.Username, u.ID)
	return nil
}

// createToken issues an API token for an existing user and prints it once.
// Usage: create-token <username> [token-name]
func createToken(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: create-token <username> [token-name]")
	}
	name := "cli"
	if len(args) == 2 {
		name = args[1]
	}

	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	users := user.NewService(db)
	u, err := users.GetByUsername(ctx, args[0])
	if err != nil {
		return err
	}
	token, err := users.CreateAPIToken(ctx, u.ID, name)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// importRules loads a YAML rule file into the database.
// Usage: import-rules <path>
func importRules(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: import-rules <path>")
	}

	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	n, err := platform.NewService(db).ImportFile(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d rules from %s\n", n, args[0])
	return nil
}

// setBioPrompt stores a new biography prompt and makes it the active one.
// Usage: set-bio-prompt <before-name> [after-name]
func setBioPrompt(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: set-bio-prompt <before-name> [after-name]")
	}
	p := &bio.Prompt{BeforeName: args[0], Active: true}
	if len(args) == 2 {
		p.AfterName = args[1]
	}

	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	if err := bio.NewPromptStore(db).Create(ctx, p); err != nil {
		return err
	}
	fmt.Printf("Active bio prompt is now %s\n", p.ID)
	return nil
}

// setRoles changes a user's moderation flags. Flags left out are cleared.
// Usage: set-roles [-admin] [-whitelisted] <username>
func setRoles(args []string) error {
	fset := flag.NewFlagSet("set-roles", flag.ContinueOnError)
	admin := fset.Bool("admin", false, "grant admin rights")
	whitelisted := fset.Bool("whitelisted", false, "skip moderation for this user's submissions")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return fmt.Errorf("usage: set-roles [-admin] [-whitelisted] <username>")
	}

	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	users := user.NewService(db)
	u, err := users.GetByUsername(ctx, fset.Arg(0))
	if err != nil {
		return err
	}
	if err := users.SetRoles(ctx, u.ID, *admin, *whitelisted); err != nil {
		return err
	}
	fmt.Printf("Updated %s: admin=%t whitelisted=%t\n", u.Username, *admin, *whitelisted)
	return nil
}

// revokeTokens deletes every API token of a user.
// Usage: revoke-tokens <username>
func revokeTokens(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: revoke-tokens <username>")
	}

	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	users := user.NewService(db)
	u, err := users.GetByUsername(ctx, args[0])
	if err != nil {
		return err
	}
	if err := users.RevokeAPITokens(ctx, u.ID); err != nil {
		return err
	}
	fmt.Printf("Revoked all tokens of %s\n", u.Username)
	return nil
}
