package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bookscout/bookscout/internal/catalog"
	"github.com/bookscout/bookscout/internal/scheduler"
	"github.com/bookscout/bookscout/internal/scrape"
)

// detachedRunBudget bounds fire-and-forget stage runs started by trigger
// endpoints, which outlive the originating request.
const detachedRunBudget = 15 * time.Minute

// scrapeNavigation runs the navigation stage synchronously.
func (s *Server) scrapeNavigation(w http.ResponseWriter, r *http.Request) {
	result, err := s.runner.ScrapeNavigation(r.Context())
	if err != nil {
		s.writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// scrapeCategories runs the category stage synchronously, scoped to one
// heading when navigationHeadingId is supplied.
func (s *Server) scrapeCategories(w http.ResponseWriter, r *http.Request) {
	result, err := s.runner.ScrapeCategories(r.Context(), r.URL.Query().Get("navigationHeadingId"))
	if err != nil {
		s.writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// scrapeProducts runs the product stage synchronously, scoped to one
// category when categoryId is supplied.
func (s *Server) scrapeProducts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	result, err := s.runner.ScrapeProducts(r.Context(), r.URL.Query().Get("categoryId"), limit)
	if err != nil {
		s.writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// scrapeProductDetails runs the detail stage for one product synchronously.
func (s *Server) scrapeProductDetails(w http.ResponseWriter, r *http.Request) {
	result, err := s.runner.ScrapeProductDetails(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		s.writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// refresh starts a full composite run in the background. A run already in
// flight yields 409.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if s.coordinator.Running() {
		writeError(w, http.StatusConflict, scheduler.ErrBusy.Error())
		return
	}
	jobID := "refresh-" + uuid.NewString()
	go s.runDetached(jobID, func(ctx context.Context) error {
		_, err := s.coordinator.RunComposite(ctx, scrape.DefaultProductLimit)
		return err
	})
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Full catalog refresh started",
		"jobId":   jobID,
	})
}

// listJobs returns recent crawl jobs, newest first.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	jobs, err := s.store.ListJobs(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if jobs == nil {
		jobs = []catalog.CrawlJob{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// triggerNavigation starts a navigation run in the background.
func (s *Server) triggerNavigation(w http.ResponseWriter, _ *http.Request) {
	jobID := "navigation-" + uuid.NewString()
	go s.runDetached(jobID, func(ctx context.Context) error {
		_, err := s.runner.ScrapeNavigation(ctx)
		return err
	})
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Navigation scraping started",
		"jobId":   jobID,
	})
}

// triggerCategories starts a category run in the background.
func (s *Server) triggerCategories(w http.ResponseWriter, r *http.Request) {
	headingID := r.URL.Query().Get("navigationHeadingId")
	jobID := "categories-" + uuid.NewString()
	go s.runDetached(jobID, func(ctx context.Context) error {
		_, err := s.runner.ScrapeCategories(ctx, headingID)
		return err
	})
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Category scraping started",
		"jobId":   jobID,
	})
}

// triggerProducts starts a product run in the background.
func (s *Server) triggerProducts(w http.ResponseWriter, r *http.Request) {
	categoryID := r.URL.Query().Get("categoryId")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	jobID := "products-" + uuid.NewString()
	go s.runDetached(jobID, func(ctx context.Context) error {
		_, err := s.runner.ScrapeProducts(ctx, categoryID, limit)
		return err
	})
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Product scraping started",
		"jobId":   jobID,
	})
}

func (s *Server) runDetached(jobID string, run func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), detachedRunBudget)
	defer cancel()
	if err := run(ctx); err != nil {
		s.log.Error("background scrape failed", zap.String("jobId", jobID), zap.Error(err))
		return
	}
	s.log.Info("background scrape finished", zap.String("jobId", jobID))
}

func (s *Server) writeStageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, fmt.Sprintf("scrape timed out: %v", err))
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
