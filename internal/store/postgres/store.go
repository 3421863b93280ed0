// Package postgres provides the pgx-backed Store implementation.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookscout/bookscout/internal/catalog"
	"github.com/bookscout/bookscout/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// dbConn is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type dbConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists catalog entities in Postgres.
type Store struct {
	pool dbConn
}

var _ store.Store = (*Store)(nil)

// New connects a pool and returns a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithConn constructs a Store from an existing connection (primarily for
// testing with pgxmock).
func NewWithConn(conn dbConn) (*Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("conn is required")
	}
	return &Store{pool: conn}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const upsertHeadingSQL = `
INSERT INTO navigation_headings (id, name, url, is_active, last_scraped_at)
VALUES ($1, $2, $3, TRUE, $4)
ON CONFLICT (name)
DO UPDATE SET url = EXCLUDED.url, is_active = TRUE, last_scraped_at = EXCLUDED.last_scraped_at
RETURNING id, name, url, is_active, last_scraped_at`

// UpsertHeading inserts or updates a heading keyed by name.
func (s *Store) UpsertHeading(ctx context.Context, draft catalog.HeadingDraft) (catalog.NavigationHeading, error) {
	if err := draft.Validate(); err != nil {
		return catalog.NavigationHeading{}, err
	}
	row := s.pool.QueryRow(ctx, upsertHeadingSQL, uuid.NewString(), draft.Name, draft.URL, time.Now().UTC())
	var h catalog.NavigationHeading
	if err := row.Scan(&h.ID, &h.Name, &h.URL, &h.IsActive, &h.LastScrapedAt); err != nil {
		return catalog.NavigationHeading{}, fmt.Errorf("upsert heading %q: %w", draft.Name, err)
	}
	return h, nil
}

const upsertCategorySQL = `
INSERT INTO categories (id, name, url, navigation_heading_id, parent_category_id, is_active, last_scraped_at)
VALUES ($1, $2, $3, $4, $5, TRUE, $6)
ON CONFLICT (name, navigation_heading_id)
DO UPDATE SET url = EXCLUDED.url, parent_category_id = EXCLUDED.parent_category_id,
	is_active = TRUE, last_scraped_at = EXCLUDED.last_scraped_at
RETURNING id, name, url, navigation_heading_id, parent_category_id, is_active, product_count, last_scraped_at`

// UpsertCategory inserts or updates a category keyed by (name, heading).
func (s *Store) UpsertCategory(ctx context.Context, draft catalog.CategoryDraft) (catalog.Category, error) {
	if err := draft.Validate(); err != nil {
		return catalog.Category{}, err
	}
	row := s.pool.QueryRow(ctx, upsertCategorySQL,
		uuid.NewString(), draft.Name, draft.URL, draft.NavigationHeadingID,
		draft.ParentCategoryID, time.Now().UTC(),
	)
	var c catalog.Category
	if err := row.Scan(&c.ID, &c.Name, &c.URL, &c.NavigationHeadingID, &c.ParentCategoryID,
		&c.IsActive, &c.ProductCount, &c.LastScrapedAt); err != nil {
		return catalog.Category{}, fmt.Errorf("upsert category %q: %w", draft.Name, err)
	}
	return c, nil
}

const upsertProductSQL = `
INSERT INTO products (id, title, author, price, price_amount, original_price, image_url,
	product_url, source_id, category_id, is_available, is_scraped, last_scraped_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, FALSE, $11, $11)
ON CONFLICT (source_id)
DO UPDATE SET title = EXCLUDED.title, author = EXCLUDED.author, price = EXCLUDED.price,
	price_amount = EXCLUDED.price_amount, original_price = EXCLUDED.original_price,
	image_url = EXCLUDED.image_url, product_url = EXCLUDED.product_url,
	category_id = EXCLUDED.category_id, is_available = TRUE,
	last_scraped_at = EXCLUDED.last_scraped_at
RETURNING id, title, author, price, price_amount, original_price, image_url, product_url,
	source_id, category_id, description, publisher, publication_date, isbn, rating,
	review_count, tags, is_available, is_scraped, last_scraped_at, created_at`

const refreshCategoryCountSQL = `
UPDATE categories SET product_count = (SELECT COUNT(*) FROM products WHERE category_id = $1)
WHERE id = $1`

// UpsertProduct inserts or updates a product keyed by source id, then
// refreshes the owning category's product count.
func (s *Store) UpsertProduct(ctx context.Context, draft catalog.ProductDraft) (catalog.Product, error) {
	if err := draft.Validate(); err != nil {
		return catalog.Product{}, err
	}
	row := s.pool.QueryRow(ctx, upsertProductSQL,
		uuid.NewString(), draft.Title, draft.Author, draft.Price,
		catalog.ParsePriceAmount(draft.Price), draft.OriginalPrice, draft.ImageURL,
		draft.ProductURL, draft.SourceID, draft.CategoryID, time.Now().UTC(),
	)
	p, err := scanProduct(row)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("upsert product %q: %w", draft.SourceID, err)
	}
	if p.CategoryID != "" {
		if _, err := s.pool.Exec(ctx, refreshCategoryCountSQL, p.CategoryID); err != nil {
			return catalog.Product{}, fmt.Errorf("refresh category count: %w", err)
		}
	}
	return p, nil
}

const upsertReviewSQL = `
INSERT INTO reviews (id, product_id, reviewer_name, rating, title, content, review_date, is_verified, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (product_id, content)
DO UPDATE SET reviewer_name = EXCLUDED.reviewer_name, rating = EXCLUDED.rating,
	title = EXCLUDED.title, review_date = EXCLUDED.review_date, is_verified = EXCLUDED.is_verified
RETURNING id, product_id, reviewer_name, rating, title, content, review_date, is_verified, created_at`

// UpsertReview inserts or updates a review keyed by (product, content).
func (s *Store) UpsertReview(ctx context.Context, draft catalog.ReviewDraft) (catalog.Review, error) {
	if err := draft.Validate(); err != nil {
		return catalog.Review{}, err
	}
	row := s.pool.QueryRow(ctx, upsertReviewSQL,
		uuid.NewString(), draft.ProductID, draft.ReviewerName, draft.Rating,
		draft.Title, draft.Content, draft.ReviewDate, draft.IsVerified, time.Now().UTC(),
	)
	r, err := scanReview(row)
	if err != nil {
		return catalog.Review{}, fmt.Errorf("upsert review for product %s: %w", draft.ProductID, err)
	}
	return r, nil
}

const applyDetailSQL = `
UPDATE products SET
	description = COALESCE(NULLIF($2, ''), description),
	publisher = COALESCE(NULLIF($3, ''), publisher),
	publication_date = COALESCE(NULLIF($4, ''), publication_date),
	isbn = COALESCE(NULLIF($5, ''), isbn),
	rating = $6, review_count = $7, is_scraped = TRUE, last_scraped_at = $8
WHERE id = $1`

// ApplyProductDetail writes detail-stage fields onto an existing product.
func (s *Store) ApplyProductDetail(ctx context.Context, productID string, detail catalog.ProductDetail) error {
	tag, err := s.pool.Exec(ctx, applyDetailSQL,
		productID, detail.Description, detail.Publisher, detail.PublicationDate,
		detail.ISBN, detail.Rating, detail.ReviewCount, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("apply product detail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", productID, catalog.ErrNotFound)
	}
	return nil
}

const headingColumns = "id, name, url, is_active, last_scraped_at"

// ListHeadings returns headings sorted by name.
func (s *Store) ListHeadings(ctx context.Context, onlyActive bool) ([]catalog.NavigationHeading, error) {
	query := "SELECT " + headingColumns + " FROM navigation_headings"
	if onlyActive {
		query += " WHERE is_active"
	}
	query += " ORDER BY name"
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list headings: %w", err)
	}
	defer rows.Close()

	var out []catalog.NavigationHeading
	for rows.Next() {
		var h catalog.NavigationHeading
		if err := rows.Scan(&h.ID, &h.Name, &h.URL, &h.IsActive, &h.LastScrapedAt); err != nil {
			return nil, fmt.Errorf("scan heading: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list headings: %w", err)
	}
	return out, nil
}

// GetHeading fetches a heading by id.
func (s *Store) GetHeading(ctx context.Context, id string) (catalog.NavigationHeading, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+headingColumns+" FROM navigation_headings WHERE id = $1", id)
	var h catalog.NavigationHeading
	if err := row.Scan(&h.ID, &h.Name, &h.URL, &h.IsActive, &h.LastScrapedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.NavigationHeading{}, fmt.Errorf("heading %s: %w", id, catalog.ErrNotFound)
		}
		return catalog.NavigationHeading{}, fmt.Errorf("get heading: %w", err)
	}
	return h, nil
}

const categoryColumns = "id, name, url, navigation_heading_id, parent_category_id, is_active, product_count, last_scraped_at"

// ListCategories returns categories matching the filter, sorted by name.
func (s *Store) ListCategories(ctx context.Context, filter store.CategoryFilter) ([]catalog.Category, error) {
	var (
		conds []string
		args  []any
	)
	if filter.OnlyActive {
		conds = append(conds, "is_active")
	}
	if filter.NavigationHeadingID != "" {
		args = append(args, filter.NavigationHeadingID)
		conds = append(conds, fmt.Sprintf("navigation_heading_id = $%d", len(args)))
	}
	if filter.ParentCategoryID != "" {
		args = append(args, filter.ParentCategoryID)
		conds = append(conds, fmt.Sprintf("parent_category_id = $%d", len(args)))
	}
	query := "SELECT " + categoryColumns + " FROM categories"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY name"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []catalog.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// GetCategory fetches a category by id.
func (s *Store) GetCategory(ctx context.Context, id string) (catalog.Category, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+categoryColumns+" FROM categories WHERE id = $1", id)
	c, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Category{}, fmt.Errorf("category %s: %w", id, catalog.ErrNotFound)
		}
		return catalog.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

const productColumns = `id, title, author, price, price_amount, original_price, image_url,
	product_url, source_id, category_id, description, publisher, publication_date, isbn,
	rating, review_count, tags, is_available, is_scraped, last_scraped_at, created_at`

var productSortColumns = map[store.ProductSort]string{
	store.SortByCreatedAt: "created_at",
	store.SortByTitle:     "title",
	store.SortByPrice:     "price_amount",
	store.SortByRating:    "rating",
}

// ListProducts returns a paginated product listing.
func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) (store.ProductPage, error) {
	filter = filter.Normalize()

	var (
		conds []string
		args  []any
	)
	if filter.IsAvailable != nil {
		args = append(args, *filter.IsAvailable)
		conds = append(conds, fmt.Sprintf("is_available = $%d", len(args)))
	}
	if filter.CategoryID != "" {
		args = append(args, filter.CategoryID)
		conds = append(conds, fmt.Sprintf("category_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR author ILIKE $%d OR description ILIKE $%d)", n, n, n))
	}
	if filter.MinPrice != nil {
		args = append(args, *filter.MinPrice)
		conds = append(conds, fmt.Sprintf("price_amount >= $%d", len(args)))
	}
	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		conds = append(conds, fmt.Sprintf("price_amount <= $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM products"+where, args...).Scan(&total); err != nil {
		return store.ProductPage{}, fmt.Errorf("count products: %w", err)
	}

	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query := fmt.Sprintf("SELECT %s FROM products%s ORDER BY %s %s NULLS LAST LIMIT $%d OFFSET $%d",
		productColumns, where, productSortColumns[filter.SortBy], direction, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return store.ProductPage{}, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]catalog.Product, 0, filter.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return store.ProductPage{}, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return store.ProductPage{}, fmt.Errorf("list products: %w", err)
	}
	return store.NewProductPage(products, total, filter.Page, filter.Limit), nil
}

// GetProduct fetches a product by id.
func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+productColumns+" FROM products WHERE id = $1", id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Product{}, fmt.Errorf("product %s: %w", id, catalog.ErrNotFound)
		}
		return catalog.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// CountProducts returns the total number of products.
func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM products").Scan(&total); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return total, nil
}

const reviewColumns = "id, product_id, reviewer_name, rating, title, content, review_date, is_verified, created_at"

// ListReviews returns all reviews for a product, newest first.
func (s *Store) ListReviews(ctx context.Context, productID string) ([]catalog.Review, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+reviewColumns+" FROM reviews WHERE product_id = $1 ORDER BY created_at DESC", productID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var out []catalog.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return out, nil
}

// CreateReview stores a review for an existing product. A resubmission with
// the same (product, content) key updates the stored review in place.
func (s *Store) CreateReview(ctx context.Context, draft catalog.ReviewDraft) (catalog.Review, error) {
	if err := draft.Validate(); err != nil {
		return catalog.Review{}, err
	}
	if _, err := s.GetProduct(ctx, draft.ProductID); err != nil {
		return catalog.Review{}, err
	}
	row := s.pool.QueryRow(ctx, upsertReviewSQL,
		uuid.NewString(), draft.ProductID, draft.ReviewerName, draft.Rating,
		draft.Title, draft.Content, draft.ReviewDate, draft.IsVerified, time.Now().UTC(),
	)
	r, err := scanReview(row)
	if err != nil {
		return catalog.Review{}, fmt.Errorf("create review: %w", err)
	}
	return r, nil
}

// RecordJob inserts a crawl job row.
func (s *Store) RecordJob(ctx context.Context, job catalog.CrawlJob) (catalog.CrawlJob, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO crawl_jobs (id, type, status, started_at, count, error, parameters)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, string(job.Type), string(job.Status), job.StartedAt, job.Count, job.Error, job.Parameters,
	)
	if err != nil {
		return catalog.CrawlJob{}, fmt.Errorf("record job: %w", err)
	}
	return job, nil
}

// FinishJob marks a job terminal with its final count and error text.
func (s *Store) FinishJob(ctx context.Context, id string, status catalog.JobStatus, count int, errText string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE crawl_jobs SET status = $2, count = $3, error = $4, finished_at = $5 WHERE id = $1`,
		id, string(status), count, errText, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s: %w", id, catalog.ErrNotFound)
	}
	return nil
}

// ListJobs returns the most recent jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]catalog.CrawlJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, type, status, started_at, finished_at, count, error, parameters
FROM crawl_jobs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []catalog.CrawlJob
	for rows.Next() {
		var job catalog.CrawlJob
		var jobType, status string
		if err := rows.Scan(&job.ID, &jobType, &status, &job.StartedAt, &job.FinishedAt,
			&job.Count, &job.Error, &job.Parameters); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job.Type = catalog.JobType(jobType)
		job.Status = catalog.JobStatus(status)
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return out, nil
}

func scanCategory(row pgx.Row) (catalog.Category, error) {
	var c catalog.Category
	if err := row.Scan(&c.ID, &c.Name, &c.URL, &c.NavigationHeadingID, &c.ParentCategoryID,
		&c.IsActive, &c.ProductCount, &c.LastScrapedAt); err != nil {
		return catalog.Category{}, err
	}
	return c, nil
}

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var p catalog.Product
	if err := row.Scan(&p.ID, &p.Title, &p.Author, &p.Price, &p.PriceAmount, &p.OriginalPrice,
		&p.ImageURL, &p.ProductURL, &p.SourceID, &p.CategoryID, &p.Description, &p.Publisher,
		&p.PublicationDate, &p.ISBN, &p.Rating, &p.ReviewCount, &p.Tags, &p.IsAvailable,
		&p.IsScraped, &p.LastScrapedAt, &p.CreatedAt); err != nil {
		return catalog.Product{}, err
	}
	return p, nil
}

func scanReview(row pgx.Row) (catalog.Review, error) {
	var r catalog.Review
	if err := row.Scan(&r.ID, &r.ProductID, &r.ReviewerName, &r.Rating, &r.Title,
		&r.Content, &r.ReviewDate, &r.IsVerified, &r.CreatedAt); err != nil {
		return catalog.Review{}, err
	}
	return r, nil
}
