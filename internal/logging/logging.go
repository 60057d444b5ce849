// Package logging builds the process-wide slog logger and lets its level,
// format and file sink change while the service is running.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes the desired logging setup.
type Config struct {
	Level          string
	Format         string
	FilePath       string
	FileMaxSizeMB  int
	FileMaxFiles   int
	FileMaxAgeDays int
}

// DefaultConfig returns info-level JSON logging to stdout.
func DefaultConfig() Config {
	return Config{
		Level:          "info",
		Format:         "json",
		FileMaxSizeMB:  100,
		FileMaxFiles:   3,
		FileMaxAgeDays: 30,
	}
}

func (c Config) sinkChanged(other Config) bool {
	return c.Format != other.Format ||
		c.FilePath != other.FilePath ||
		c.FileMaxSizeMB != other.FileMaxSizeMB ||
		c.FileMaxFiles != other.FileMaxFiles ||
		c.FileMaxAgeDays != other.FileMaxAgeDays
}

// String renders the config for startup logs.
func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "level=%s format=%s", c.Level, c.Format)
	if c.FilePath != "" {
		fmt.Fprintf(&b, " file=%s rotate=%dMB/%d files/%dd", c.FilePath, c.FileMaxSizeMB, c.FileMaxFiles, c.FileMaxAgeDays)
	}
	return b.String()
}

// switchHandler forwards to whichever handler is currently installed.
// Loggers derived with With/WithGroup replay their derivations on top of
// the installed handler, so they keep following later swaps.
type switchHandler struct {
	current *atomic.Pointer[slog.Handler]
	derive  []func(slog.Handler) slog.Handler
}

func (h *switchHandler) resolve() slog.Handler {
	inner := *h.current.Load()
	for _, d := range h.derive {
		inner = d(inner)
	}
	return inner
}

func (h *switchHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return (*h.current.Load()).Enabled(ctx, l)
}

func (h *switchHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h *switchHandler) with(d func(slog.Handler) slog.Handler) *switchHandler {
	derive := make([]func(slog.Handler) slog.Handler, 0, len(h.derive)+1)
	derive = append(derive, h.derive...)
	return &switchHandler{current: h.current, derive: append(derive, d)}
}

func (h *switchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(inner slog.Handler) slog.Handler { return inner.WithAttrs(attrs) })
}

func (h *switchHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(inner slog.Handler) slog.Handler { return inner.WithGroup(name) })
}

// Manager owns the logger and its output sink.
type Manager struct {
	mu      sync.Mutex
	cfg     Config
	level   slog.LevelVar
	current atomic.Pointer[slog.Handler]
	file    io.Closer
}

// New builds a Manager and the logger that follows its configuration.
func New(cfg Config) (*Manager, *slog.Logger) {
	m := &Manager{cfg: cfg}
	m.level.Set(ParseLevel(cfg.Level))
	m.install(cfg)
	return m, slog.New(&switchHandler{current: &m.current})
}

func (m *Manager) install(cfg Config) {
	w, closer := openSink(cfg)
	opts := &slog.HandlerOptions{Level: &m.level}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	m.current.Store(&h)
	m.file = closer
}

// Apply switches to cfg. A level change takes effect immediately; a format
// or file change reopens the sink.
func (m *Manager) Apply(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.level.Set(ParseLevel(cfg.Level))
	if cfg.sinkChanged(m.cfg) {
		if m.file != nil {
			_ = m.file.Close()
			m.file = nil
		}
		m.install(cfg)
	}
	m.cfg = cfg
}

// Current returns the active configuration.
func (m *Manager) Current() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Close flushes and closes the log file, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// openSink returns stdout, or stdout tee'd into a rotating file.
func openSink(cfg Config) (io.Writer, io.Closer) {
	if cfg.FilePath == "" {
		return os.Stdout, nil
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    orDefault(cfg.FileMaxSizeMB, 100),
		MaxBackups: orDefault(cfg.FileMaxFiles, 3),
		MaxAge:     orDefault(cfg.FileMaxAgeDays, 30),
	}
	return io.MultiWriter(os.Stdout, lj), lj
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ParseLevel maps a level name to a slog.Level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether s names a supported level.
func ValidLevel(s string) bool {
	switch strings.ToLower(s) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// Component returns a child logger tagged with the component name.
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(slog.String("component", name))
}
