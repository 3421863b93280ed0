// Package memory provides an in-memory Store for development and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bookscout/bookscout/internal/catalog"
	"github.com/bookscout/bookscout/internal/store"
)

type headingKey struct {
	name string
}

type categoryKey struct {
	name      string
	headingID string
}

type reviewKey struct {
	productID string
	content   string
}

// Store keeps all entities in mutex-guarded maps. Upsert semantics mirror the
// Postgres implementation so tests exercise the same contract.
type Store struct {
	mu          sync.RWMutex
	headings    map[string]catalog.NavigationHeading
	categories  map[string]catalog.Category
	products    map[string]catalog.Product
	reviews     map[string]catalog.Review
	jobs        []catalog.CrawlJob
	headingIdx  map[headingKey]string
	categoryIdx map[categoryKey]string
	productIdx  map[string]string
	reviewIdx   map[reviewKey]string
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		headings:    make(map[string]catalog.NavigationHeading),
		categories:  make(map[string]catalog.Category),
		products:    make(map[string]catalog.Product),
		reviews:     make(map[string]catalog.Review),
		headingIdx:  make(map[headingKey]string),
		categoryIdx: make(map[categoryKey]string),
		productIdx:  make(map[string]string),
		reviewIdx:   make(map[reviewKey]string),
	}
}

var _ store.Store = (*Store)(nil)

// UpsertHeading inserts or updates a heading keyed by name.
func (s *Store) UpsertHeading(_ context.Context, draft catalog.HeadingDraft) (catalog.NavigationHeading, error) {
	if err := draft.Validate(); err != nil {
		return catalog.NavigationHeading{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := headingKey{name: draft.Name}
	if id, ok := s.headingIdx[key]; ok {
		heading := s.headings[id]
		heading.URL = draft.URL
		heading.IsActive = true
		heading.LastScrapedAt = now
		s.headings[id] = heading
		return heading, nil
	}

	heading := catalog.NavigationHeading{
		ID:            uuid.NewString(),
		Name:          draft.Name,
		URL:           draft.URL,
		IsActive:      true,
		LastScrapedAt: now,
	}
	s.headings[heading.ID] = heading
	s.headingIdx[key] = heading.ID
	return heading, nil
}

// UpsertCategory inserts or updates a category keyed by (name, heading).
func (s *Store) UpsertCategory(_ context.Context, draft catalog.CategoryDraft) (catalog.Category, error) {
	if err := draft.Validate(); err != nil {
		return catalog.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := categoryKey{name: draft.Name, headingID: draft.NavigationHeadingID}
	if id, ok := s.categoryIdx[key]; ok {
		category := s.categories[id]
		category.URL = draft.URL
		category.ParentCategoryID = draft.ParentCategoryID
		category.IsActive = true
		category.LastScrapedAt = now
		s.categories[id] = category
		return category, nil
	}

	category := catalog.Category{
		ID:                  uuid.NewString(),
		Name:                draft.Name,
		URL:                 draft.URL,
		NavigationHeadingID: draft.NavigationHeadingID,
		ParentCategoryID:    draft.ParentCategoryID,
		IsActive:            true,
		LastScrapedAt:       now,
	}
	s.categories[category.ID] = category
	s.categoryIdx[key] = category.ID
	return category, nil
}

// UpsertProduct inserts or updates a product keyed by source id.
func (s *Store) UpsertProduct(_ context.Context, draft catalog.ProductDraft) (catalog.Product, error) {
	if err := draft.Validate(); err != nil {
		return catalog.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if id, ok := s.productIdx[draft.SourceID]; ok {
		product := s.products[id]
		product.Title = draft.Title
		product.Author = draft.Author
		product.Price = draft.Price
		product.PriceAmount = catalog.ParsePriceAmount(draft.Price)
		product.OriginalPrice = draft.OriginalPrice
		product.ImageURL = draft.ImageURL
		product.ProductURL = draft.ProductURL
		product.CategoryID = draft.CategoryID
		product.IsAvailable = true
		product.LastScrapedAt = now
		s.products[id] = product
		return product, nil
	}

	product := catalog.Product{
		ID:            uuid.NewString(),
		Title:         draft.Title,
		Author:        draft.Author,
		Price:         draft.Price,
		PriceAmount:   catalog.ParsePriceAmount(draft.Price),
		OriginalPrice: draft.OriginalPrice,
		ImageURL:      draft.ImageURL,
		ProductURL:    draft.ProductURL,
		SourceID:      draft.SourceID,
		CategoryID:    draft.CategoryID,
		IsAvailable:   true,
		LastScrapedAt: now,
		CreatedAt:     now,
	}
	s.products[product.ID] = product
	s.productIdx[product.SourceID] = product.ID
	if category, ok := s.categories[product.CategoryID]; ok {
		category.ProductCount++
		s.categories[category.ID] = category
	}
	return product, nil
}

// UpsertReview inserts or updates a review keyed by (product, content).
func (s *Store) UpsertReview(_ context.Context, draft catalog.ReviewDraft) (catalog.Review, error) {
	if err := draft.Validate(); err != nil {
		return catalog.Review{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reviewKey{productID: draft.ProductID, content: draft.Content}
	if id, ok := s.reviewIdx[key]; ok {
		review := s.reviews[id]
		review.ReviewerName = draft.ReviewerName
		review.Rating = draft.Rating
		review.Title = draft.Title
		review.ReviewDate = draft.ReviewDate
		review.IsVerified = draft.IsVerified
		s.reviews[id] = review
		return review, nil
	}

	review := reviewFromDraft(draft)
	s.reviews[review.ID] = review
	s.reviewIdx[key] = review.ID
	return review, nil
}

// ApplyProductDetail writes detail-stage fields onto an existing product.
func (s *Store) ApplyProductDetail(_ context.Context, productID string, detail catalog.ProductDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return fmt.Errorf("product %s: %w", productID, catalog.ErrNotFound)
	}
	if detail.Description != "" {
		product.Description = detail.Description
	}
	if detail.Publisher != "" {
		product.Publisher = detail.Publisher
	}
	if detail.PublicationDate != "" {
		product.PublicationDate = detail.PublicationDate
	}
	if detail.ISBN != "" {
		product.ISBN = detail.ISBN
	}
	product.Rating = detail.Rating
	product.ReviewCount = detail.ReviewCount
	product.IsScraped = true
	product.LastScrapedAt = time.Now().UTC()
	s.products[productID] = product
	return nil
}

// ListHeadings returns headings sorted by name.
func (s *Store) ListHeadings(_ context.Context, onlyActive bool) ([]catalog.NavigationHeading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.NavigationHeading, 0, len(s.headings))
	for _, h := range s.headings {
		if onlyActive && !h.IsActive {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetHeading fetches a heading by id.
func (s *Store) GetHeading(_ context.Context, id string) (catalog.NavigationHeading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	heading, ok := s.headings[id]
	if !ok {
		return catalog.NavigationHeading{}, fmt.Errorf("heading %s: %w", id, catalog.ErrNotFound)
	}
	return heading, nil
}

// ListCategories returns categories matching the filter, sorted by name.
func (s *Store) ListCategories(_ context.Context, filter store.CategoryFilter) ([]catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if filter.OnlyActive && !c.IsActive {
			continue
		}
		if filter.NavigationHeadingID != "" && c.NavigationHeadingID != filter.NavigationHeadingID {
			continue
		}
		if filter.ParentCategoryID != "" && c.ParentCategoryID != filter.ParentCategoryID {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// GetCategory fetches a category by id.
func (s *Store) GetCategory(_ context.Context, id string) (catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	category, ok := s.categories[id]
	if !ok {
		return catalog.Category{}, fmt.Errorf("category %s: %w", id, catalog.ErrNotFound)
	}
	return category, nil
}

// ListProducts returns a paginated product listing.
func (s *Store) ListProducts(_ context.Context, filter store.ProductFilter) (store.ProductPage, error) {
	filter = filter.Normalize()

	s.mu.RLock()
	matched := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		if matchesProduct(p, filter) {
			matched = append(matched, p)
		}
	}
	s.mu.RUnlock()

	sortProducts(matched, filter)

	total := len(matched)
	start := (filter.Page - 1) * filter.Limit
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return store.NewProductPage(matched[start:end], total, filter.Page, filter.Limit), nil
}

func matchesProduct(p catalog.Product, filter store.ProductFilter) bool {
	if filter.IsAvailable != nil && p.IsAvailable != *filter.IsAvailable {
		return false
	}
	if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
		return false
	}
	if filter.MinPrice != nil && p.PriceAmount < *filter.MinPrice {
		return false
	}
	if filter.MaxPrice != nil && p.PriceAmount > *filter.MaxPrice {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(p.Title), needle) &&
			!strings.Contains(strings.ToLower(p.Author), needle) &&
			!strings.Contains(strings.ToLower(p.Description), needle) {
			return false
		}
	}
	return true
}

func sortProducts(products []catalog.Product, filter store.ProductFilter) {
	less := func(i, j int) bool { return products[i].CreatedAt.Before(products[j].CreatedAt) }
	switch filter.SortBy {
	case store.SortByTitle:
		less = func(i, j int) bool { return products[i].Title < products[j].Title }
	case store.SortByPrice:
		less = func(i, j int) bool { return products[i].PriceAmount < products[j].PriceAmount }
	case store.SortByRating:
		less = func(i, j int) bool { return ratingOf(products[i]) < ratingOf(products[j]) }
	}
	if filter.SortDesc {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(products, less)
}

func ratingOf(p catalog.Product) float64 {
	if p.Rating == nil {
		return 0
	}
	return *p.Rating
}

// GetProduct fetches a product by id.
func (s *Store) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := s.products[id]
	if !ok {
		return catalog.Product{}, fmt.Errorf("product %s: %w", id, catalog.ErrNotFound)
	}
	return product, nil
}

// CountProducts returns the total number of products.
func (s *Store) CountProducts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), nil
}

// ListReviews returns all reviews for a product, newest first.
func (s *Store) ListReviews(_ context.Context, productID string) ([]catalog.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Review, 0)
	for _, r := range s.reviews {
		if r.ProductID == productID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// CreateReview stores a review for an existing product. A resubmission with
// the same (product, content) key updates the stored review in place.
func (s *Store) CreateReview(_ context.Context, draft catalog.ReviewDraft) (catalog.Review, error) {
	if err := draft.Validate(); err != nil {
		return catalog.Review{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[draft.ProductID]; !ok {
		return catalog.Review{}, fmt.Errorf("product %s: %w", draft.ProductID, catalog.ErrNotFound)
	}

	key := reviewKey{productID: draft.ProductID, content: draft.Content}
	if id, ok := s.reviewIdx[key]; ok {
		review := s.reviews[id]
		review.ReviewerName = draft.ReviewerName
		review.Rating = draft.Rating
		review.Title = draft.Title
		review.ReviewDate = draft.ReviewDate
		review.IsVerified = draft.IsVerified
		s.reviews[id] = review
		return review, nil
	}

	review := reviewFromDraft(draft)
	s.reviews[review.ID] = review
	s.reviewIdx[key] = review.ID
	return review, nil
}

func reviewFromDraft(draft catalog.ReviewDraft) catalog.Review {
	return catalog.Review{
		ID:           uuid.NewString(),
		ProductID:    draft.ProductID,
		ReviewerName: draft.ReviewerName,
		Rating:       draft.Rating,
		Title:        draft.Title,
		Content:      draft.Content,
		ReviewDate:   draft.ReviewDate,
		IsVerified:   draft.IsVerified,
		CreatedAt:    time.Now().UTC(),
	}
}

// RecordJob appends a crawl job row.
func (s *Store) RecordJob(_ context.Context, job catalog.CrawlJob) (catalog.CrawlJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now().UTC()
	}
	s.jobs = append(s.jobs, job)
	return job, nil
}

// FinishJob marks a job terminal with its final count and error text.
func (s *Store) FinishJob(_ context.Context, id string, status catalog.JobStatus, count int, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.jobs {
		if s.jobs[i].ID != id {
			continue
		}
		now := time.Now().UTC()
		s.jobs[i].Status = status
		s.jobs[i].Count = count
		s.jobs[i].Error = errText
		s.jobs[i].FinishedAt = &now
		return nil
	}
	return fmt.Errorf("job %s: %w", id, catalog.ErrNotFound)
}

// ListJobs returns the most recent jobs, newest first.
func (s *Store) ListJobs(_ context.Context, limit int) ([]catalog.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.CrawlJob, len(s.jobs))
	copy(out, s.jobs)
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() {}
