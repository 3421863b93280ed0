package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookscout/bookscout/internal/catalog"
	"github.com/bookscout/bookscout/internal/config"
	"github.com/bookscout/bookscout/internal/metrics"
	"github.com/bookscout/bookscout/internal/scheduler"
	"github.com/bookscout/bookscout/internal/scrape"
	"github.com/bookscout/bookscout/internal/store"
	"github.com/bookscout/bookscout/internal/store/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

const testBaseURL = "https://shop.test"

// pageVisitor serves canned HTML by URL.
type pageVisitor struct {
	pages map[string]string
}

func (v *pageVisitor) Visit(_ context.Context, rawURL string) (*goquery.Document, error) {
	html, ok := v.pages[rawURL]
	if !ok {
		return nil, fmt.Errorf("no page for %s", rawURL)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (v *pageVisitor) Close() {}

// testApp satisfies the App interface over an in-memory store.
type testApp struct {
	st          store.Store
	log         *zap.Logger
	scraper     *scrape.Scraper
	coordinator *scheduler.Coordinator
	sched       *scheduler.Scheduler
}

func newTestApp(t *testing.T, pages map[string]string) *testApp {
	t.Helper()
	st := memory.New()
	log := zap.NewNop()
	scraper, err := scrape.New(scrape.Config{BaseURL: testBaseURL}, st, &pageVisitor{pages: pages}, nil, nil, log)
	require.NoError(t, err)
	coordinator := scheduler.NewCoordinator(scraper, st, log)
	sched := scheduler.New(scheduler.Config{}, coordinator, st, log)
	return &testApp{st: st, log: log, scraper: scraper, coordinator: coordinator, sched: sched}
}

func (a *testApp) Close()                              {}
func (a *testApp) Config() config.Config               { return config.Config{} }
func (a *testApp) Logger() *zap.Logger                 { return a.log }
func (a *testApp) Catalog() store.Store                { return a.st }
func (a *testApp) Scraper() *scrape.Scraper            { return a.scraper }
func (a *testApp) Coordinator() *scheduler.Coordinator { return a.coordinator }
func (a *testApp) Scheduler() *scheduler.Scheduler     { return a.sched }

func withTestApp(t *testing.T, appInstance App) {
	t.Helper()
	orig := newApp
	newApp = func(context.Context) (App, error) { return appInstance, nil }
	t.Cleanup(func() { newApp = orig })
}

func TestScrapeAllRunsStagesInline(t *testing.T) {
	appInstance := newTestApp(t, map[string]string{
		testBaseURL:                               `<nav><a href="/categories/fiction">Fiction</a></nav>`,
		testBaseURL + "/categories/fiction":       `<div class="categories"><a href="/categories/fiction/crime">Crime</a></div>`,
		testBaseURL + "/categories/fiction/crime": `<div class="product-item"><a href="/products/book-1"></a><h3>Book One</h3></div>`,
	})
	withTestApp(t, appInstance)

	root := newRootCmd()
	root.SetArgs([]string{"scrape", "all"})
	require.NoError(t, root.Execute())

	ctx := context.Background()
	total, err := appInstance.st.CountProducts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, total)

	// Three per-stage job rows and no composite row: the stages ran inline.
	jobs, err := appInstance.st.ListJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	for _, job := range jobs {
		require.NotEqual(t, catalog.JobTypeComposite, job.Type)
		require.Equal(t, catalog.JobStatusCompleted, job.Status)
	}
}

func TestScrapeProductsRejectsBadLimit(t *testing.T) {
	withTestApp(t, newTestApp(t, nil))

	root := newRootCmd()
	root.SetArgs([]string{"scrape", "products", "cat-1", "zero"})
	require.Error(t, root.Execute())
}
