// Package store defines the persistence boundary used by the scrape pipeline
// and the query API. Implementations provide upsert-by-natural-key and
// find-by-key/filter semantics; they never hard-delete crawl entities.
package store

import (
	"context"

	"github.com/bookscout/bookscout/internal/catalog"
)

// Store is the persistence contract. Upserts match on each entity's natural
// key (heading name; category name + heading; product source id; review
// product id + content), re-affirm active/available flags, and refresh
// LastScrapedAt. Missing lookups return errors wrapping catalog.ErrNotFound.
type Store interface {
	UpsertHeading(ctx context.Context, draft catalog.HeadingDraft) (catalog.NavigationHeading, error)
	UpsertCategory(ctx context.Context, draft catalog.CategoryDraft) (catalog.Category, error)
	UpsertProduct(ctx context.Context, draft catalog.ProductDraft) (catalog.Product, error)
	UpsertReview(ctx context.Context, draft catalog.ReviewDraft) (catalog.Review, error)

	// ApplyProductDetail writes the detail-stage fields onto an existing
	// product and marks it scraped.
	ApplyProductDetail(ctx context.Context, productID string, detail catalog.ProductDetail) error

	ListHeadings(ctx context.Context, onlyActive bool) ([]catalog.NavigationHeading, error)
	GetHeading(ctx context.Context, id string) (catalog.NavigationHeading, error)
	ListCategories(ctx context.Context, filter CategoryFilter) ([]catalog.Category, error)
	GetCategory(ctx context.Context, id string) (catalog.Category, error)
	ListProducts(ctx context.Context, filter ProductFilter) (ProductPage, error)
	GetProduct(ctx context.Context, id string) (catalog.Product, error)
	CountProducts(ctx context.Context) (int, error)
	ListReviews(ctx context.Context, productID string) ([]catalog.Review, error)

	// CreateReview stores a review submitted through the API. Unlike
	// UpsertReview it fails when the product does not exist; a duplicate
	// (product, content) submission updates the stored review in place.
	CreateReview(ctx context.Context, draft catalog.ReviewDraft) (catalog.Review, error)

	RecordJob(ctx context.Context, job catalog.CrawlJob) (catalog.CrawlJob, error)
	FinishJob(ctx context.Context, id string, status catalog.JobStatus, count int, errText string) error
	ListJobs(ctx context.Context, limit int) ([]catalog.CrawlJob, error)

	Close()
}

// CategoryFilter narrows category listings.
type CategoryFilter struct {
	NavigationHeadingID string
	ParentCategoryID    string
	OnlyActive          bool
	Limit               int
}

// ProductSort names the sortable product columns.
type ProductSort string

// Sortable product columns.
const (
	SortByCreatedAt ProductSort = "createdAt"
	SortByTitle     ProductSort = "title"
	SortByPrice     ProductSort = "price"
	SortByRating    ProductSort = "rating"
)

// ProductFilter narrows and paginates product listings.
type ProductFilter struct {
	CategoryID  string
	Search      string
	MinPrice    *float64
	MaxPrice    *float64
	IsAvailable *bool
	SortBy      ProductSort
	SortDesc    bool
	Page        int
	Limit       int
}

// Normalize clamps pagination and fills sort defaults.
func (f ProductFilter) Normalize() ProductFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	switch f.SortBy {
	case SortByTitle, SortByPrice, SortByRating, SortByCreatedAt:
	default:
		f.SortBy = SortByCreatedAt
		f.SortDesc = true
	}
	return f
}

// ProductPage is the paginated envelope returned by ListProducts.
type ProductPage struct {
	Products   []catalog.Product `json:"products"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	TotalPages int               `json:"totalPages"`
	HasNext    bool              `json:"hasNext"`
	HasPrev    bool              `json:"hasPrev"`
}

// NewProductPage assembles the envelope from a result slice and total count.
func NewProductPage(products []catalog.Product, total, page, limit int) ProductPage {
	totalPages := (total + limit - 1) / limit
	return ProductPage{
		Products:   products,
		Total:      total,
		Page:       page,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
