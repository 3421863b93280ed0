package scrape

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/bookscout/bookscout/internal/catalog"
	"github.com/bookscout/bookscout/internal/metrics"
	"github.com/bookscout/bookscout/internal/store"
	"github.com/bookscout/bookscout/internal/store/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

// fakeVisitor serves canned HTML by URL and records every visit.
type fakeVisitor struct {
	mu     sync.Mutex
	pages  map[string]string
	visits []string
}

func newFakeVisitor(pages map[string]string) *fakeVisitor {
	return &fakeVisitor{pages: pages}
}

func (f *fakeVisitor) Visit(_ context.Context, rawURL string) (*goquery.Document, error) {
	f.mu.Lock()
	f.visits = append(f.visits, rawURL)
	html, ok := f.pages[rawURL]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no page for %s", rawURL)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (f *fakeVisitor) Close() {}

func (f *fakeVisitor) visitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visits)
}

func newTestScraper(t *testing.T, st store.Store, visitor Visitor) *Scraper {
	t.Helper()
	s, err := New(Config{BaseURL: testBaseURL}, st, visitor, nil, nil, nil)
	require.NoError(t, err)
	return s
}

func TestScrapeNavigationSkipsEmptyAnchors(t *testing.T) {
	t.Parallel()

	st := memory.New()
	visitor := newFakeVisitor(map[string]string{
		testBaseURL: `<nav>
			<a href="/categories/fiction">Fiction</a>
			<a href="/categories/children"></a>
		</nav>`,
	})
	s := newTestScraper(t, st, visitor)

	result, err := s.ScrapeNavigation(context.Background())
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.Count)

	headings, err := st.ListHeadings(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, headings, 1)
	require.Equal(t, "Fiction", headings[0].Name)
}

func TestScrapeNavigationIsIdempotent(t *testing.T) {
	t.Parallel()

	st := memory.New()
	visitor := newFakeVisitor(map[string]string{
		testBaseURL: `<nav><a href="/categories/fiction">Fiction</a><a href="/categories/art">Art</a></nav>`,
	})
	s := newTestScraper(t, st, visitor)

	first, err := s.ScrapeNavigation(context.Background())
	require.NoError(t, err)
	second, err := s.ScrapeNavigation(context.Background())
	require.NoError(t, err)
	require.Equal(t, first.Count, second.Count)

	headings, err := st.ListHeadings(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, headings, 2)
}

func TestScrapeNavigationVisitFailure(t *testing.T) {
	t.Parallel()

	st := memory.New()
	s := newTestScraper(t, st, newFakeVisitor(nil))

	result, err := s.ScrapeNavigation(context.Background())
	require.Error(t, err)
	require.False(t, result.Success)
}

func TestScrapeCategoriesScopedToHeading(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()
	heading, err := st.UpsertHeading(ctx, catalog.HeadingDraft{Name: "Fiction", URL: testBaseURL + "/categories/fiction"})
	require.NoError(t, err)

	visitor := newFakeVisitor(map[string]string{
		heading.URL: `<div class="categories">
			<a href="/categories/fiction/crime">Crime</a>
			<a href="/categories/fiction/romance">Romance</a>
		</div>`,
	})
	s := newTestScraper(t, st, visitor)

	result, err := s.ScrapeCategories(ctx, heading.ID)
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)

	categories, err := st.ListCategories(ctx, store.CategoryFilter{NavigationHeadingID: heading.ID})
	require.NoError(t, err)
	require.Len(t, categories, 2)
}

func TestScrapeCategoriesUnknownHeadingFails(t *testing.T) {
	t.Parallel()

	s := newTestScraper(t, memory.New(), newFakeVisitor(nil))

	_, err := s.ScrapeCategories(context.Background(), "missing")
	require.Error(t, err)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestScrapeCategoriesCapsHeadings(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()
	pages := make(map[string]string)
	for i := 0; i < 7; i++ {
		url := fmt.Sprintf("%s/categories/h%d", testBaseURL, i)
		_, err := st.UpsertHeading(ctx, catalog.HeadingDraft{Name: fmt.Sprintf("H%d", i), URL: url})
		require.NoError(t, err)
		pages[url] = `<div class="categories"><a href="/categories/x/y">Sub</a></div>`
	}
	visitor := newFakeVisitor(pages)
	s := newTestScraper(t, st, visitor)

	_, err := s.ScrapeCategories(ctx, "")
	require.NoError(t, err)
	require.Equal(t, maxHeadingsPerRun, visitor.visitCount())
}

func TestScrapeCategoriesIsolatesFailedHeadingPage(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()
	pages := make(map[string]string)
	for i := 0; i < 3; i++ {
		url := fmt.Sprintf("%s/categories/h%d", testBaseURL, i)
		_, err := st.UpsertHeading(ctx, catalog.HeadingDraft{Name: fmt.Sprintf("H%d", i), URL: url})
		require.NoError(t, err)
		if i == 1 {
			// No page for this heading; its visit fails.
			continue
		}
		pages[url] = fmt.Sprintf(`<div class="categories"><a href="/categories/h%d/sub">Sub %d</a></div>`, i, i)
	}
	visitor := newFakeVisitor(pages)
	s := newTestScraper(t, st, visitor)

	result, err := s.ScrapeCategories(ctx, "")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.Count)
	require.Equal(t, 3, visitor.visitCount())
}

func TestScrapeProductsCapsCategoriesAndHonorsLimit(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()
	pages := make(map[string]string)
	for i := 0; i < 5; i++ {
		url := fmt.Sprintf("%s/categories/c%d", testBaseURL, i)
		_, err := st.UpsertCategory(ctx, catalog.CategoryDraft{Name: fmt.Sprintf("C%d", i), URL: url})
		require.NoError(t, err)
		var sb strings.Builder
		for j := 0; j < 4; j++ {
			sb.WriteString(fmt.Sprintf(
				`<div class="product-item"><a href="/products/c%d-p%d"></a><h3>Book %d-%d</h3></div>`,
				i, j, i, j))
		}
		pages[url] = sb.String()
	}
	visitor := newFakeVisitor(pages)
	s := newTestScraper(t, st, visitor)

	result, err := s.ScrapeProducts(ctx, "", 6)
	require.NoError(t, err)
	require.Equal(t, 6, result.Count)
	require.LessOrEqual(t, visitor.visitCount(), maxCategoriesPerRun)

	total, err := st.CountProducts(ctx)
	require.NoError(t, err)
	require.Equal(t, 6, total)
}

func TestScrapeProductsUnknownCategoryFails(t *testing.T) {
	t.Parallel()

	s := newTestScraper(t, memory.New(), newFakeVisitor(nil))

	_, err := s.ScrapeProducts(context.Background(), "missing", 10)
	require.Error(t, err)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestScrapeProductsIsolatesBadCards(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()
	url := testBaseURL + "/categories/fiction"
	category, err := st.UpsertCategory(ctx, catalog.CategoryDraft{Name: "Fiction", URL: url})
	require.NoError(t, err)

	visitor := newFakeVisitor(map[string]string{
		url: `
			<div class="product-item"><a href="/products/good-1"></a><h3>Good One</h3></div>
			<div class="product-item"><h3>No link, dropped</h3></div>
			<div class="product-item"><a href="/products/good-2"></a><h3>Good Two</h3></div>`,
	})
	s := newTestScraper(t, st, visitor)

	result, err := s.ScrapeProducts(ctx, category.ID, 0)
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)
}

const detailPageWithReviews = `
	<div class="description">A layered family saga.</div>
	<span class="publisher">Test Press</span>
	<div class="review"><span class="rating">5</span><p>Wonderful from the first page.</p></div>
	<div class="review"><span class="rating">3</span><p>Middling but worth a look.</p></div>
	<div class="review"><span class="rating">4</span><p>Strong ending, slow start.</p></div>`

func TestScrapeProductDetailsDerivesRating(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()
	product := seedProduct(t, st, "book-1")

	visitor := newFakeVisitor(map[string]string{product.ProductURL: detailPageWithReviews})
	s := newTestScraper(t, st, visitor)

	result, err := s.ScrapeProductDetails(ctx, product.ID)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 3, result.ReviewsCount)

	got, err := st.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Rating)
	require.InDelta(t, 4.0, *got.Rating, 0.0001)
	require.Equal(t, 3, got.ReviewCount)
	require.True(t, got.IsScraped)
	require.Equal(t, "A layered family saga.", got.Description)
	require.Equal(t, "Test Press", got.Publisher)

	reviews, err := st.ListReviews(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 3)
}

func TestScrapeProductDetailsUnratedReviewsCountAsZero(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()
	product := seedProduct(t, st, "book-2")

	visitor := newFakeVisitor(map[string]string{product.ProductURL: `
		<div class="review"><span class="rating">4</span><p>Good solid storytelling.</p></div>
		<div class="review"><p>No rating on this one at all.</p></div>`})
	s := newTestScraper(t, st, visitor)

	_, err := s.ScrapeProductDetails(ctx, product.ID)
	require.NoError(t, err)

	got, err := st.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Rating)
	require.InDelta(t, 2.0, *got.Rating, 0.0001)
}

func TestScrapeProductDetailsNoReviewsClearsRating(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()
	product := seedProduct(t, st, "book-3")

	visitor := newFakeVisitor(map[string]string{product.ProductURL: detailPageWithReviews})
	s := newTestScraper(t, st, visitor)

	_, err := s.ScrapeProductDetails(ctx, product.ID)
	require.NoError(t, err)

	// The page lost its reviews; a re-run reflects that.
	visitor.mu.Lock()
	visitor.pages[product.ProductURL] = `<div class="description">A layered family saga.</div>`
	visitor.mu.Unlock()

	result, err := s.ScrapeProductDetails(ctx, product.ID)
	require.NoError(t, err)
	require.Equal(t, 0, result.ReviewsCount)

	got, err := st.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	require.Nil(t, got.Rating)
	require.Equal(t, 0, got.ReviewCount)
	require.True(t, got.IsScraped)
}

func TestScrapeProductDetailsUnknownProductFails(t *testing.T) {
	t.Parallel()

	s := newTestScraper(t, memory.New(), newFakeVisitor(nil))

	_, err := s.ScrapeProductDetails(context.Background(), "missing")
	require.Error(t, err)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestScrapeReviewUpsertIsIdempotent(t *testing.T) {
	t.Parallel()

	st := memory.New()
	ctx := context.Background()
	product := seedProduct(t, st, "book-4")

	visitor := newFakeVisitor(map[string]string{product.ProductURL: detailPageWithReviews})
	s := newTestScraper(t, st, visitor)

	_, err := s.ScrapeProductDetails(ctx, product.ID)
	require.NoError(t, err)
	_, err = s.ScrapeProductDetails(ctx, product.ID)
	require.NoError(t, err)

	reviews, err := st.ListReviews(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, reviews, 3)
}

func TestStagesRecordJobs(t *testing.T) {
	t.Parallel()

	st := memory.New()
	visitor := newFakeVisitor(map[string]string{
		testBaseURL: `<nav><a href="/categories/fiction">Fiction</a></nav>`,
	})
	s := newTestScraper(t, st, visitor)

	_, err := s.ScrapeNavigation(context.Background())
	require.NoError(t, err)

	jobs, err := st.ListJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, catalog.JobTypeNavigation, jobs[0].Type)
	require.Equal(t, catalog.JobStatusCompleted, jobs[0].Status)
	require.Equal(t, 1, jobs[0].Count)
	require.NotNil(t, jobs[0].FinishedAt)
}

func seedProduct(t *testing.T, st store.Store, sourceID string) catalog.Product {
	t.Helper()
	product, err := st.UpsertProduct(context.Background(), catalog.ProductDraft{
		Title:      "Seeded Book",
		ProductURL: testBaseURL + "/products/" + sourceID,
		SourceID:   sourceID,
	})
	require.NoError(t, err)
	return product
}
