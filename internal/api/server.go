// Package api exposes the HTTP interface: scrape triggers, job history, and
// the catalog query surface.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookscout/bookscout/internal/metrics"
	"github.com/bookscout/bookscout/internal/scheduler"
	"github.com/bookscout/bookscout/internal/store"
)

// Server wires HTTP handlers to the scraper, coordinator, and store.
type Server struct {
	router      chi.Router
	store       store.Store
	runner      scheduler.Runner
	coordinator *scheduler.Coordinator
	log         *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(st store.Store, runner scheduler.Runner, coordinator *scheduler.Coordinator, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		store:       st,
		runner:      runner,
		coordinator: coordinator,
		log:         log,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/scraping", func(r chi.Router) {
			r.Post("/navigation", s.scrapeNavigation)
			r.Post("/categories", s.scrapeCategories)
			r.Post("/products", s.scrapeProducts)
			r.Post("/products/{productID}/details", s.scrapeProductDetails)
			r.Post("/refresh", s.refresh)
			r.Get("/jobs", s.listJobs)
		})

		r.Route("/navigation", func(r chi.Router) {
			r.Get("/", s.listNavigation)
			r.Post("/scrape", s.triggerNavigation)
			r.Get("/{headingID}", s.getNavigation)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", s.listCategories)
			r.Post("/scrape", s.triggerCategories)
			r.Get("/{categoryID}", s.getCategory)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", s.listProducts)
			r.Post("/scrape", s.triggerProducts)
			r.Route("/{productID}", func(r chi.Router) {
				r.Get("/", s.getProduct)
				r.Get("/related", s.relatedProducts)
				r.Get("/reviews", s.listReviews)
				r.Post("/reviews", s.createReview)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.CountProducts(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.log.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
