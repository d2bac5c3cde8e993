package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/labelquest/internal/catalog"
	"github.com/p-n-ai/labelquest/internal/game"
	"github.com/p-n-ai/labelquest/internal/httpapi"
	"github.com/p-n-ai/labelquest/internal/notify"
	"github.com/p-n-ai/labelquest/internal/platform/cache"
	"github.com/p-n-ai/labelquest/internal/platform/config"
	"github.com/p-n-ai/labelquest/internal/platform/database"
	"github.com/p-n-ai/labelquest/internal/progression"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Driver, "cache", cfg.Cache.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Builtin()
	}
	return catalog.NewLoader(path)
}

// app is the wired service with the resources it must release.
type app struct {
	engine  *game.Engine
	handler http.Handler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	checks := make(map[string]httpapi.Checker)
	stats := make(map[string]func() any)
	engineCfg := game.EngineConfig{
		Catalog:         cat,
		CompletionDelay: cfg.Game.CompletionDelay,
		AdvanceDelay:    cfg.Game.AdvanceDelay,
		FeedbackDelay:   cfg.Game.FeedbackDelay,
	}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		db, err := database.New(ctx, database.Options{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		checks["database"] = db
		stats["database"] = func() any { return db.Stats() }

		progress, err := progression.NewPostgresStore(db.Pool)
		if err != nil {
			return nil, err
		}
		events := game.NewPostgresEventLogger(db.Pool)
		if err := db.Migrate(ctx,
			database.Migration{Name: "0001_progress", Apply: progress.EnsureSchema},
			database.Migration{Name: "0002_game_events", Apply: events.EnsureSchema},
		); err != nil {
			return nil, err
		}
		engineCfg.Progress = progress
		engineCfg.Events = events

	case config.DriverSQLite:
		progress, err := progression.NewSQLiteStore(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := progress.Close(); err != nil {
				slog.Warn("close sqlite store", "error", err)
			}
		})
		engineCfg.Progress = progress
	}

	if cfg.Cache.Enabled {
		c, err := cache.NewWithOptions(ctx, cfg.Cache.URL, cache.Options{PoolSize: cfg.Cache.PoolSize})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				slog.Warn("close cache", "error", err)
			}
		})
		checks["cache"] = c
		stats["cache"] = func() any { return c.Stats() }

		sessions, err := game.NewRedisSessionStore(c.Client, cfg.Cache.SessionTTL)
		if err != nil {
			return nil, err
		}
		engineCfg.Sessions = sessions
	}

	hub := notify.NewWebSocketHub(originPatterns(cfg.Server.CORSOrigins))
	gw := notify.NewGateway()
	gw.Register("websocket", hub)
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramChannel(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		tg.Start()
		a.closers = append(a.closers, tg.Stop)
		gw.Register("telegram", tg)
	}
	engineCfg.Notifier = gw

	a.engine, err = game.NewEngine(engineCfg)
	if err != nil {
		return nil, err
	}

	a.handler = httpapi.New(httpapi.Options{
		Engine:      a.engine,
		Hub:         hub,
		CORSOrigins: cfg.Server.CORSOrigins,
		Checks:      checks,
		Stats:       stats,
	}).Handler()
	return a, nil
}

// originPatterns turns CORS origins into host patterns for the WebSocket
// origin check.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
