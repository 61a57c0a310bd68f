package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/renix-codex/feedsync/internal/logger"
)

// Routes:
//   - GET  /healthz
//   - GET  /metrics (when enabled)
//   - GET  /events (websocket)
//   - GET  /posts
//   - POST /posts/refresh
//   - POST /posts/more?index=N
//   - GET  /posts/{id}
//   - GET  /posts/{id}/like, POST /posts/{id}/like
//   - GET  /posts/{id}/avatar
func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// Long-lived, so outside the request timeout.
	r.Get("/events", s.handleEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))

		r.Get("/healthz", s.handleHealth)
		if s.opts.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
		}

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", s.handleGetPosts)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/more", s.handleLoadMore)
			r.Get("/{id}", s.handleGetPost)
			r.Get("/{id}/like", s.handleGetLike)
			r.Post("/{id}/like", s.handleToggleLike)
			r.Get("/{id}/avatar", s.handleAvatar)
		})
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		args := []any{
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDuration, logger.Duration(start),
		}
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			logger.Debug("request completed", args...)
			return
		}
		logger.Info("request completed", args...)
	})
}
