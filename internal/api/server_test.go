package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bookscout/bookscout/internal/catalog"
	"github.com/bookscout/bookscout/internal/scheduler"
	"github.com/bookscout/bookscout/internal/store/memory"
)

// fakeRunner answers stage calls without touching the network.
type fakeRunner struct {
	mu       sync.Mutex
	navCalls int
	navGate  chan struct{}
}

func (f *fakeRunner) ScrapeNavigation(_ context.Context) (catalog.StageResult, error) {
	f.mu.Lock()
	f.navCalls++
	gate := f.navGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return catalog.StageResult{Success: true, Count: 3}, nil
}

func (f *fakeRunner) ScrapeCategories(_ context.Context, headingID string) (catalog.StageResult, error) {
	if headingID == "missing" {
		return catalog.StageResult{}, fmt.Errorf("heading %s: %w", headingID, catalog.ErrNotFound)
	}
	return catalog.StageResult{Success: true, Count: 2}, nil
}

func (f *fakeRunner) ScrapeProducts(_ context.Context, _ string, _ int) (catalog.StageResult, error) {
	return catalog.StageResult{Success: true, Count: 5}, nil
}

func (f *fakeRunner) ScrapeProductDetails(_ context.Context, productID string) (catalog.DetailResult, error) {
	if productID == "missing" {
		return catalog.DetailResult{}, fmt.Errorf("product %s: %w", productID, catalog.ErrNotFound)
	}
	return catalog.DetailResult{Success: true, ReviewsCount: 4}, nil
}

func newTestServer(t *testing.T) (*Server, *memory.Store, *fakeRunner) {
	t.Helper()
	st := memory.New()
	runner := &fakeRunner{}
	coordinator := scheduler.NewCoordinator(runner, st, nil)
	return NewServer(st, runner, coordinator, nil), st, runner
}

func doRequest(t *testing.T, s *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestScrapeNavigationReturnsStageResult(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/scraping/navigation", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result catalog.StageResult
	decodeBody(t, rec, &result)
	require.True(t, result.Success)
	require.Equal(t, 3, result.Count)
}

func TestScrapeCategoriesUnknownHeading(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/scraping/categories?navigationHeadingId=missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScrapeProductDetailsUnknownProduct(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/scraping/products/missing/details", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScrapeProductsRejectsBadLimit(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/scraping/products?limit=zero", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshConflictsWhileRunning(t *testing.T) {
	t.Parallel()

	st := memory.New()
	runner := &fakeRunner{navGate: make(chan struct{})}
	coordinator := scheduler.NewCoordinator(runner, st, nil)
	s := NewServer(st, runner, coordinator, nil)

	compositeDone := make(chan error, 1)
	go func() {
		_, err := coordinator.RunComposite(context.Background(), 50)
		compositeDone <- err
	}()
	require.Eventually(t, coordinator.Running, time.Second, time.Millisecond)

	rec := doRequest(t, s, http.MethodPost, "/api/scraping/refresh", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	close(runner.navGate)
	require.NoError(t, <-compositeDone)

	rec = doRequest(t, s, http.MethodPost, "/api/scraping/refresh", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	require.NotEmpty(t, body["message"])
	require.True(t, strings.HasPrefix(body["jobId"], "refresh-"))
}

func TestTriggerNavigationReturnsJobID(t *testing.T) {
	t.Parallel()

	s, _, runner := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/navigation/scrape", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	require.Equal(t, "Navigation scraping started", body["message"])
	require.True(t, strings.HasPrefix(body["jobId"], "navigation-"))

	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.navCalls == 1
	}, time.Second, time.Millisecond)
}

func TestListNavigationAndCategories(t *testing.T) {
	t.Parallel()

	s, st, _ := newTestServer(t)
	ctx := context.Background()
	heading, err := st.UpsertHeading(ctx, catalog.HeadingDraft{Name: "Fiction", URL: "https://shop.test/categories/fiction"})
	require.NoError(t, err)
	_, err = st.UpsertCategory(ctx, catalog.CategoryDraft{Name: "Crime", NavigationHeadingID: heading.ID})
	require.NoError(t, err)
	_, err = st.UpsertCategory(ctx, catalog.CategoryDraft{Name: "Stray", NavigationHeadingID: "other"})
	require.NoError(t, err)

	rec := doRequest(t, s, http.MethodGet, "/api/navigation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var navBody struct {
		Navigation []catalog.NavigationHeading `json:"navigation"`
	}
	decodeBody(t, rec, &navBody)
	require.Len(t, navBody.Navigation, 1)

	rec = doRequest(t, s, http.MethodGet, "/api/categories?navigationHeadingId="+heading.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var catBody struct {
		Categories []catalog.Category `json:"categories"`
	}
	decodeBody(t, rec, &catBody)
	require.Len(t, catBody.Categories, 1)
	require.Equal(t, "Crime", catBody.Categories[0].Name)

	rec = doRequest(t, s, http.MethodGet, "/api/navigation/unknown", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListProductsEnvelope(t *testing.T) {
	t.Parallel()

	s, st, _ := newTestServer(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := st.UpsertProduct(ctx, catalog.ProductDraft{
			Title:      fmt.Sprintf("Book %d", i),
			Price:      fmt.Sprintf("£%d.50", i+1),
			ProductURL: fmt.Sprintf("https://shop.test/products/b%d", i),
			SourceID:   fmt.Sprintf("b%d", i),
		})
		require.NoError(t, err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/products?minPrice=2&sortBy=price", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Products   []catalog.Product `json:"products"`
		Total      int               `json:"total"`
		TotalPages int               `json:"totalPages"`
		HasNext    bool              `json:"hasNext"`
	}
	decodeBody(t, rec, &page)
	require.Equal(t, 2, page.Total)
	require.Len(t, page.Products, 2)
	require.Equal(t, "Book 1", page.Products[0].Title)
	require.Equal(t, 1, page.TotalPages)
	require.False(t, page.HasNext)

	rec = doRequest(t, s, http.MethodGet, "/api/products?sortBy=publisher", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/products/unknown", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRelatedProductsExcludeSelf(t *testing.T) {
	t.Parallel()

	s, st, _ := newTestServer(t)
	ctx := context.Background()
	category, err := st.UpsertCategory(ctx, catalog.CategoryDraft{Name: "Fiction"})
	require.NoError(t, err)

	var first catalog.Product
	for i := 0; i < 3; i++ {
		p, err := st.UpsertProduct(ctx, catalog.ProductDraft{
			Title:      fmt.Sprintf("Book %d", i),
			ProductURL: fmt.Sprintf("https://shop.test/products/b%d", i),
			SourceID:   fmt.Sprintf("b%d", i),
			CategoryID: category.ID,
		})
		require.NoError(t, err)
		if i == 0 {
			first = p
		}
	}

	rec := doRequest(t, s, http.MethodGet, "/api/products/"+first.ID+"/related", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Products []catalog.Product `json:"products"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Products, 2)
	for _, p := range body.Products {
		require.NotEqual(t, first.ID, p.ID)
	}
}

func TestCreateReviewValidation(t *testing.T) {
	t.Parallel()

	s, st, _ := newTestServer(t)
	product, err := st.UpsertProduct(context.Background(), catalog.ProductDraft{
		Title:      "Book",
		ProductURL: "https://shop.test/products/b1",
		SourceID:   "b1",
	})
	require.NoError(t, err)
	reviewsPath := "/api/products/" + product.ID + "/reviews"

	rec := doRequest(t, s, http.MethodPost, reviewsPath, []byte(`{"content":"   "}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, reviewsPath, []byte(`{"content":"Fine book.","rating":6}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/products/unknown/reviews", []byte(`{"content":"Fine book.","rating":4}`))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodPost, reviewsPath, []byte(`{"content":"Fine book.","rating":4}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	var review catalog.Review
	decodeBody(t, rec, &review)
	require.Equal(t, "Anonymous", review.ReviewerName)
	require.NotNil(t, review.Rating)
	require.InDelta(t, 4.0, *review.Rating, 0.0001)
	require.False(t, review.IsVerified)

	rec = doRequest(t, s, http.MethodGet, reviewsPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Reviews []catalog.Review `json:"reviews"`
	}
	decodeBody(t, rec, &listing)
	require.Len(t, listing.Reviews, 1)
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	s, st, _ := newTestServer(t)
	job, err := st.RecordJob(context.Background(), catalog.CrawlJob{
		Type:   catalog.JobTypeNavigation,
		Status: catalog.JobStatusRunning,
	})
	require.NoError(t, err)
	require.NoError(t, st.FinishJob(context.Background(), job.ID, catalog.JobStatusCompleted, 2, ""))

	rec := doRequest(t, s, http.MethodGet, "/api/scraping/jobs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Jobs []catalog.CrawlJob `json:"jobs"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Jobs, 1)
	require.Equal(t, catalog.JobStatusCompleted, body.Jobs[0].Status)
}
