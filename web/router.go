// Package web serves the users REST API, the HTML listing page and the
// static assets under /public.
package web

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/hurl365/rest-db-starter/repo"
)

//go:embed views public
var assets embed.FS

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter wires the middleware stack and every route. health may be nil, in
// which case /health always reports ok.
func NewRouter(store repo.UserStore, health Pinger, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(logger))
	r.Use(requestIDField)
	r.Use(hlog.AccessHandler(accessLog))
	r.Use(middleware.Recoverer)

	NewUserHandler(store).RegisterRoutes(r)

	public, err := fs.Sub(assets, "public")
	if err != nil {
		panic(err)
	}
	r.Handle("/public/*", http.StripPrefix("/public/", http.FileServer(http.FS(public))))

	r.Get("/health", healthHandler(health))

	return r
}

func healthHandler(health Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health.Ping(ctx); err != nil {
				hlog.FromRequest(r).Error().Err(err).Msg("Health check failed")
				respondWithJSON(w, r, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		respondWithJSON(w, r, http.StatusOK, healthResponse{Status: "ok"})
	}
}

// requestIDField copies chi's request id onto the request-scoped logger.
func requestIDField(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("request_id", id)
			})
		}
		next.ServeHTTP(w, r)
	})
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Stringer("url", r.URL).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}
