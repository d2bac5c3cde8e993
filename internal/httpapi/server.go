// Package httpapi exposes the game engine over HTTP and streams play
// notifications over WebSocket.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/p-n-ai/labelquest/internal/game"
	"github.com/p-n-ai/labelquest/internal/notify"
)

const (
	defaultRequestTimeout = 10 * time.Second
	healthTimeout         = 2 * time.Second
)

// Checker is a backing service that can report its health.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Options configures the HTTP surface.
type Options struct {
	Engine         *game.Engine
	Hub            *notify.WebSocketHub // nil disables /ws
	CORSOrigins    []string
	Checks         map[string]Checker
	Stats          map[string]func() any // reported under "pools" by /readyz
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// Server routes HTTP requests to the game engine.
type Server struct {
	router *chi.Mux
	engine *game.Engine
	hub    *notify.WebSocketHub
	checks map[string]Checker
	stats  map[string]func() any
}

// New builds the router and registers every route.
func New(opts Options) *Server {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router: chi.NewRouter(),
		engine: opts.Engine,
		hub:    opts.Hub,
		checks: opts.Checks,
		stats:  opts.Stats,
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r := s.router
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(corsHandler.Handler)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(timeout))
		r.Use(jsonContentType)

		r.Get("/topics", s.handleTopics)
		r.Get("/topics/{topicID}/levels", s.handleLevels)

		r.Route("/players/{playerID}", func(r chi.Router) {
			r.Get("/snapshot", s.handleSnapshot)
			r.Get("/stats", s.handleStats)
			r.Get("/report.xlsx", s.handleReport)
			r.Post("/topic", s.handleSelectTopic)
			r.Post("/level", s.handleSelectLevel)
			r.Post("/drop", s.handleDrop)
			r.Post("/reset", s.handleReset)
			r.Post("/back", s.handleBack)
			r.Post("/next", s.handleNext)
			r.Delete("/progress", s.handleResetAll)
		})
	})

	// Streams outlive the request timeout.
	if s.hub != nil {
		r.Get("/ws/{playerID}", func(w http.ResponseWriter, r *http.Request) {
			s.hub.Serve(w, r, chi.URLParam(r, "playerID"))
		})
	}

	return s
}

// Router exposes the chi router for tests and embedding.
func (s *Server) Router() chi.Router {
	return s.router
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				level := slog.LevelInfo
				switch {
				case ww.Status() >= 500:
					level = slog.LevelError
				case ww.Status() >= 400:
					level = slog.LevelWarn
				}
				logger.LogAttrs(r.Context(), level, "request completed",
					slog.String("request_id", chimw.GetReqID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Int("status", ww.Status()),
					slog.Int("bytes_out", ww.BytesWritten()),
					slog.Duration("latency", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
