package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sall0568/cinescope-client/pkg/cache"
	"github.com/sall0568/cinescope-client/pkg/client"
	"github.com/sall0568/cinescope-client/pkg/metadata"
	"github.com/sall0568/cinescope-client/pkg/metrics"
	"github.com/sall0568/cinescope-client/pkg/session"
)

var errBadRequest = errors.New("bad request")

type gateway struct {
	catalog    *metadata.Client
	dispatcher *client.Dispatcher
	store      cache.Store
	logger     zerolog.Logger
}

// newRouter exposes the session's catalog over HTTP.
func newRouter(sess *session.Session, logger zerolog.Logger) http.Handler {
	g := &gateway{
		catalog:    sess.Catalog(),
		dispatcher: sess.Dispatcher(),
		store:      sess.Store(),
		logger:     logger.With().Str("component", "gateway").Logger(),
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newLoggingMiddleware(g.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", g.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/movies", func(r chi.Router) {
			movies := g.catalog.Movies
			r.Get("/search", withQuery(g, movies.Search))
			r.Get("/now_playing", withPage(g, movies.NowPlaying))
			r.Get("/{id}", withID(g, movies.Details))
			r.Get("/{id}/credits", withID(g, movies.Credits))
			r.Get("/{id}/videos", withID(g, movies.Videos))
			r.Get("/{id}/similar", withID(g, movies.Similar))
			r.Get("/{id}/watch_providers", withID(g, movies.WatchProviders))
			r.Get("/{id}/reviews", withID(g, movies.Reviews))
		})

		r.Route("/tv", func(r chi.Router) {
			tv := g.catalog.TV
			r.Get("/search", withQuery(g, tv.Search))
			r.Get("/popular", withPage(g, tv.Popular))
			r.Get("/{id}", withID(g, tv.Details))
			r.Get("/{id}/credits", withID(g, tv.Credits))
			r.Get("/{id}/videos", withID(g, tv.Videos))
			r.Get("/{id}/similar", withID(g, tv.Similar))
			r.Get("/{id}/watch_providers", withID(g, tv.WatchProviders))
			r.Get("/{id}/season/{season}", g.season)
		})

		r.Route("/people", func(r chi.Router) {
			people := g.catalog.People
			r.Get("/{id}", withID(g, people.Details))
			r.Get("/{id}/movie_credits", withID(g, people.MovieCredits))
		})

		r.Get("/cache/stats", g.cacheStats)
		r.Post("/cache/clear", g.clearCache)
	})

	return r
}

func newLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Str("request_id", middleware.GetReqID(r.Context())).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (g *gateway) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (g *gateway) cacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.store.Stats(r.Context()))
}

func (g *gateway) clearCache(w http.ResponseWriter, r *http.Request) {
	cleared := g.store.Stats(r.Context()).Size
	g.dispatcher.Clear(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}

func (g *gateway) season(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	season, err := pathInt(r, "season")
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	respond(g, w, r, func(ctx context.Context) (*metadata.Season, error) {
		return g.catalog.TV.Season(ctx, id, season)
	})
}

func withID[T any](g *gateway, fetch func(ctx context.Context, id int) (*T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathInt(r, "id")
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		respond(g, w, r, func(ctx context.Context) (*T, error) {
			return fetch(ctx, id)
		})
	}
}

func withPage[T any](g *gateway, fetch func(ctx context.Context, page int) (*T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := queryPage(r)
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		respond(g, w, r, func(ctx context.Context) (*T, error) {
			return fetch(ctx, page)
		})
	}
}

func withQuery[T any](g *gateway, fetch func(ctx context.Context, query string, page int) (*T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := queryPage(r)
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		query := r.URL.Query().Get("query")
		respond(g, w, r, func(ctx context.Context) (*T, error) {
			return fetch(ctx, query, page)
		})
	}
}

func respond[T any](g *gateway, w http.ResponseWriter, r *http.Request, call func(ctx context.Context) (T, error)) {
	out, err := call(r.Context())
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func pathInt(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", errBadRequest, name, raw)
	}
	return n, nil
}

// queryPage returns the page query parameter; zero when absent.
func queryPage(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 0, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("%w: page %q must be a positive number", errBadRequest, raw)
	}
	return page, nil
}

// errorStatus maps a catalog error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, metadata.ErrInvalidArgument):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, client.ErrNotFound):
		return http.StatusNotFound, string(client.ErrorClassNotFound)
	case errors.Is(err, client.ErrRateLimited):
		return http.StatusTooManyRequests, string(client.ErrorClassRateLimit)
	case errors.Is(err, client.ErrNetworkUnavailable):
		return http.StatusServiceUnavailable, string(client.ErrorClassNetwork)
	case errors.Is(err, client.ErrUpstreamServer):
		return http.StatusBadGateway, string(client.ErrorClassServer)
	case errors.Is(err, metadata.ErrDecode):
		return http.StatusBadGateway, "decode"
	case errors.Is(err, client.ErrContextCancelled):
		return http.StatusGatewayTimeout, "cancelled"
	default:
		return http.StatusInternalServerError, string(client.ErrorClassUnknown)
	}
}

func (g *gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)

	message := "An error occurred."
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr):
		message = apiErr.UserMessage()
	case status == http.StatusBadRequest:
		message = err.Error()
	}

	event := g.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = g.logger.Error()
	}
	event.Err(err).
		Str("path", r.URL.Path).
		Int("status", status).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("Catalog request failed")

	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
