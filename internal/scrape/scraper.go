package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/bookscout/bookscout/internal/catalog"
	"github.com/bookscout/bookscout/internal/metrics"
	"github.com/bookscout/bookscout/internal/store"
)

// Stage names used in logs, metrics, and job records.
const (
	StageNavigation = "navigation"
	StageCategories = "categories"
	StageProducts   = "products"
	StageDetail     = "product_detail"
)

// Per-stage visit windows. Listing pages tolerate two parallel tabs; the
// entry and detail pages are visited one at a time.
const (
	categoriesWindow = 2
	productsWindow   = 2
)

// Scope caps when a stage runs without an explicit parent id.
const (
	maxHeadingsPerRun   = 5
	maxCategoriesPerRun = 3
)

// DefaultProductLimit bounds a product run when the caller passes no limit.
const DefaultProductLimit = 50

// Config controls scraper behavior.
type Config struct {
	// BaseURL is the storefront root; the navigation stage visits it and
	// relative links resolve against it.
	BaseURL string
	// VisitBudget bounds one page visit end to end, render wait included.
	VisitBudget time.Duration
}

// Scraper runs the crawl stages against a Visitor and persists what they
// find. All stages isolate per-record failures: a draft that fails to
// upsert is logged and skipped, never aborting the run.
type Scraper struct {
	cfg       Config
	store     store.Store
	visitor   Visitor
	limiter   *HostLimiter
	snapshots *SnapshotSink
	log       *zap.Logger
}

// New builds a Scraper. The snapshot sink may be nil.
func New(cfg Config, st store.Store, visitor Visitor, limiter *HostLimiter, snapshots *SnapshotSink, log *zap.Logger) (*Scraper, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.VisitBudget <= 0 {
		cfg.VisitBudget = 60 * time.Second
	}
	if st == nil || visitor == nil {
		return nil, fmt.Errorf("store and visitor are required")
	}
	if limiter == nil {
		limiter = NewHostLimiter(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scraper{
		cfg:       cfg,
		store:     st,
		visitor:   visitor,
		limiter:   limiter,
		snapshots: snapshots,
		log:       log,
	}, nil
}

// ScrapeNavigation visits the storefront root and upserts the discovered
// navigation headings.
func (s *Scraper) ScrapeNavigation(ctx context.Context) (catalog.StageResult, error) {
	done := s.beginStage(ctx, StageNavigation, catalog.JobTypeNavigation, nil)

	doc, err := s.visit(ctx, StageNavigation, s.cfg.BaseURL)
	if err != nil {
		done(catalog.StageResult{}, err)
		return catalog.StageResult{}, fmt.Errorf("navigation scrape: %w", err)
	}

	count := 0
	for _, draft := range extractHeadings(doc, s.cfg.BaseURL) {
		if _, err := s.store.UpsertHeading(ctx, draft); err != nil {
			metrics.ObserveUpsertFailure("heading")
			s.log.Warn("heading upsert failed", zap.String("name", draft.Name), zap.Error(err))
			continue
		}
		metrics.ObserveUpsert("heading")
		count++
	}

	result := catalog.StageResult{Success: true, Count: count}
	done(result, nil)
	s.log.Info("navigation scrape finished", zap.Int("headings", count))
	return result, nil
}

// ScrapeCategories visits heading pages and upserts the categories they
// link to. With a heading id the run covers that heading only and fails if
// it does not exist; otherwise it covers up to five active headings.
func (s *Scraper) ScrapeCategories(ctx context.Context, headingID string) (catalog.StageResult, error) {
	done := s.beginStage(ctx, StageCategories, catalog.JobTypeCategories, map[string]any{"navigationHeadingId": headingID})

	var headings []catalog.NavigationHeading
	if headingID != "" {
		heading, err := s.store.GetHeading(ctx, headingID)
		if err != nil {
			done(catalog.StageResult{}, err)
			return catalog.StageResult{}, fmt.Errorf("categories scrape: %w", err)
		}
		headings = []catalog.NavigationHeading{heading}
	} else {
		var err error
		headings, err = s.store.ListHeadings(ctx, true)
		if err != nil {
			done(catalog.StageResult{}, err)
			return catalog.StageResult{}, fmt.Errorf("categories scrape: %w", err)
		}
		if len(headings) > maxHeadingsPerRun {
			headings = headings[:maxHeadingsPerRun]
		}
	}

	urls := make([]string, len(headings))
	for i, h := range headings {
		urls[i] = h.URL
	}
	docs := s.visitAll(ctx, StageCategories, urls, categoriesWindow)

	var drafts []catalog.CategoryDraft
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		drafts = append(drafts, extractCategories(doc, s.cfg.BaseURL, headings[i].ID)...)
	}

	count := 0
	for _, draft := range drafts {
		if _, err := s.store.UpsertCategory(ctx, draft); err != nil {
			metrics.ObserveUpsertFailure("category")
			s.log.Warn("category upsert failed", zap.String("name", draft.Name), zap.Error(err))
			continue
		}
		metrics.ObserveUpsert("category")
		count++
	}

	result := catalog.StageResult{Success: true, Count: count}
	done(result, nil)
	s.log.Info("categories scrape finished",
		zap.Int("headings", len(headings)), zap.Int("categories", count))
	return result, nil
}

// ScrapeProducts visits category listing pages and upserts product cards.
// With a category id the run covers that category only and fails if it does
// not exist; otherwise it covers up to three active categories. Collection
// stops once limit products are gathered.
func (s *Scraper) ScrapeProducts(ctx context.Context, categoryID string, limit int) (catalog.StageResult, error) {
	if limit <= 0 {
		limit = DefaultProductLimit
	}
	done := s.beginStage(ctx, StageProducts, catalog.JobTypeProducts, map[string]any{"categoryId": categoryID, "limit": limit})

	var categories []catalog.Category
	if categoryID != "" {
		category, err := s.store.GetCategory(ctx, categoryID)
		if err != nil {
			done(catalog.StageResult{}, err)
			return catalog.StageResult{}, fmt.Errorf("products scrape: %w", err)
		}
		categories = []catalog.Category{category}
	} else {
		var err error
		categories, err = s.store.ListCategories(ctx, store.CategoryFilter{OnlyActive: true, Limit: maxCategoriesPerRun})
		if err != nil {
			done(catalog.StageResult{}, err)
			return catalog.StageResult{}, fmt.Errorf("products scrape: %w", err)
		}
	}

	var drafts []catalog.ProductDraft
	for start := 0; start < len(categories) && len(drafts) < limit; start += productsWindow {
		end := start + productsWindow
		if end > len(categories) {
			end = len(categories)
		}
		window := categories[start:end]
		urls := make([]string, len(window))
		for i, c := range window {
			urls[i] = c.URL
		}
		docs := s.visitAll(ctx, StageProducts, urls, productsWindow)
		for i, doc := range docs {
			if doc == nil {
				continue
			}
			found := extractProducts(doc, s.cfg.BaseURL, window[i].ID)
			drafts = append(drafts, found...)
			s.log.Debug("category listing extracted",
				zap.String("category", window[i].Name), zap.Int("products", len(found)))
		}
	}
	if len(drafts) > limit {
		drafts = drafts[:limit]
	}

	count := 0
	for _, draft := range drafts {
		if _, err := s.store.UpsertProduct(ctx, draft); err != nil {
			metrics.ObserveUpsertFailure("product")
			s.log.Warn("product upsert failed", zap.String("sourceId", draft.SourceID), zap.Error(err))
			continue
		}
		metrics.ObserveUpsert("product")
		count++
	}

	result := catalog.StageResult{Success: true, Count: count}
	done(result, nil)
	s.log.Info("products scrape finished",
		zap.Int("categories", len(categories)), zap.Int("products", count))
	return result, nil
}

// ScrapeProductDetails visits one product page, writes the detail fields
// and derived rating onto the product, and upserts its reviews. Fails when
// the product id does not exist.
func (s *Scraper) ScrapeProductDetails(ctx context.Context, productID string) (catalog.DetailResult, error) {
	done := s.beginStage(ctx, StageDetail, catalog.JobTypeProductDetail, map[string]any{"productId": productID})

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		done(catalog.StageResult{}, err)
		return catalog.DetailResult{}, fmt.Errorf("product details scrape: %w", err)
	}

	doc, err := s.visit(ctx, StageDetail, product.ProductURL)
	if err != nil {
		done(catalog.StageResult{}, err)
		return catalog.DetailResult{}, fmt.Errorf("product details scrape: %w", err)
	}

	detail := extractDetail(doc)
	reviews := extractReviews(doc, productID)

	// The stored rating is the mean over this run's reviews, unrated ones
	// counting as zero. No reviews clears it.
	if len(reviews) > 0 {
		sum := 0.0
		for _, r := range reviews {
			if r.Rating != nil {
				sum += *r.Rating
			}
		}
		mean := sum / float64(len(reviews))
		detail.Rating = &mean
	}
	detail.ReviewCount = len(reviews)

	if err := s.store.ApplyProductDetail(ctx, productID, detail); err != nil {
		done(catalog.StageResult{}, err)
		return catalog.DetailResult{}, fmt.Errorf("product details scrape: %w", err)
	}

	saved := 0
	for _, draft := range reviews {
		if _, err := s.store.UpsertReview(ctx, draft); err != nil {
			metrics.ObserveUpsertFailure("review")
			s.log.Warn("review upsert failed", zap.String("productId", productID), zap.Error(err))
			continue
		}
		metrics.ObserveUpsert("review")
		saved++
	}

	done(catalog.StageResult{Success: true, Count: saved}, nil)
	s.log.Info("product details scrape finished",
		zap.String("productId", productID), zap.Int("reviews", saved))
	return catalog.DetailResult{Success: true, ReviewsCount: saved}, nil
}

// visit loads one page within the visit budget, rate limited per host.
func (s *Scraper) visit(ctx context.Context, stage, rawURL string) (*goquery.Document, error) {
	if err := s.limiter.Wait(ctx, rawURL); err != nil {
		return nil, err
	}
	visitCtx, cancel := context.WithTimeout(ctx, s.cfg.VisitBudget)
	defer cancel()

	start := time.Now()
	doc, err := s.visitor.Visit(visitCtx, rawURL)
	if err != nil {
		metrics.ObserveVisit(stage, "error", time.Since(start))
		return nil, err
	}
	metrics.ObserveVisit(stage, "ok", time.Since(start))

	if s.snapshots != nil {
		if html, herr := doc.Html(); herr == nil {
			if _, serr := s.snapshots.Save(rawURL, html); serr != nil {
				s.log.Warn("snapshot save failed", zap.String("url", rawURL), zap.Error(serr))
			}
		}
	}
	return doc, nil
}

// visitAll loads the URLs with at most window visits in flight. The result
// slice is index-aligned with urls; failed visits leave a nil entry.
func (s *Scraper) visitAll(ctx context.Context, stage string, urls []string, window int) []*goquery.Document {
	if window < 1 {
		window = 1
	}
	docs := make([]*goquery.Document, len(urls))
	sem := make(chan struct{}, window)
	var wg sync.WaitGroup
	for i, rawURL := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, rawURL string) {
			defer wg.Done()
			defer func() { <-sem }()
			doc, err := s.visit(ctx, stage, rawURL)
			if err != nil {
				s.log.Warn("page visit failed", zap.String("url", rawURL), zap.Error(err))
				return
			}
			docs[i] = doc
		}(i, rawURL)
	}
	wg.Wait()
	return docs
}

// beginStage records a running job and returns a closer that finalizes it.
// Job bookkeeping is best effort and never fails the stage.
func (s *Scraper) beginStage(ctx context.Context, stage string, jobType catalog.JobType, params map[string]any) func(catalog.StageResult, error) {
	metrics.IncActiveStages()
	job, err := s.store.RecordJob(ctx, catalog.CrawlJob{
		Type:       jobType,
		Status:     catalog.JobStatusRunning,
		Parameters: params,
	})
	if err != nil {
		s.log.Warn("job record failed", zap.String("stage", stage), zap.Error(err))
	}

	return func(result catalog.StageResult, stageErr error) {
		metrics.DecActiveStages()
		outcome := "ok"
		status := catalog.JobStatusCompleted
		errText := ""
		if stageErr != nil {
			outcome = "error"
			status = catalog.JobStatusFailed
			errText = stageErr.Error()
		}
		metrics.ObserveStageRun(stage, outcome)
		if job.ID == "" {
			return
		}
		if err := s.store.FinishJob(ctx, job.ID, status, result.Count, errText); err != nil {
			s.log.Warn("job finish failed", zap.String("stage", stage), zap.Error(err))
		}
	}
}
