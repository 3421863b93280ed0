// Package catalog defines the crawl domain entities and stage results.
package catalog

import "time"

// NavigationHeading is a top-level site navigation entry discovered by the
// navigation stage. Headings are keyed by name.
type NavigationHeading struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	IsActive      bool      `json:"isActive"`
	LastScrapedAt time.Time `json:"lastScrapedAt"`
}

// Category is a browseable product grouping under a navigation heading.
// Categories are keyed by (name, navigation heading).
type Category struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	URL                 string    `json:"url"`
	NavigationHeadingID string    `json:"navigationHeadingId,omitempty"`
	ParentCategoryID    string    `json:"parentCategoryId,omitempty"`
	IsActive            bool      `json:"isActive"`
	ProductCount        int       `json:"productCount"`
	LastScrapedAt       time.Time `json:"lastScrapedAt"`
}

// Product is a catalog item. Listing-stage fields come from category pages;
// detail-stage fields are filled once the product page itself is visited.
// Products are keyed by SourceID, the site's own identifier.
type Product struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author,omitempty"`
	Price           string    `json:"price,omitempty"`
	PriceAmount     float64   `json:"priceAmount"`
	OriginalPrice   string    `json:"originalPrice,omitempty"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	ProductURL      string    `json:"productUrl"`
	SourceID        string    `json:"sourceId"`
	CategoryID      string    `json:"categoryId,omitempty"`
	Description     string    `json:"description,omitempty"`
	Publisher       string    `json:"publisher,omitempty"`
	PublicationDate string    `json:"publicationDate,omitempty"`
	ISBN            string    `json:"isbn,omitempty"`
	Rating          *float64  `json:"rating,omitempty"`
	ReviewCount     int       `json:"reviewCount"`
	Tags            []string  `json:"tags,omitempty"`
	IsAvailable     bool      `json:"isAvailable"`
	IsScraped       bool      `json:"isScraped"`
	LastScrapedAt   time.Time `json:"lastScrapedAt"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Review is a customer review attached to a product. Reviews are keyed by
// (product, content).
type Review struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"productId"`
	ReviewerName string    `json:"reviewerName,omitempty"`
	Rating       *float64  `json:"rating,omitempty"`
	Title        string    `json:"title,omitempty"`
	Content      string    `json:"content"`
	ReviewDate   string    `json:"reviewDate,omitempty"`
	IsVerified   bool      `json:"isVerified"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ProductDetail carries the detail-stage fields written onto a product.
// A nil Rating clears the stored rating.
type ProductDetail struct {
	Description     string
	Publisher       string
	PublicationDate string
	ISBN            string
	Rating          *float64
	ReviewCount     int
}

// StageResult reports the outcome of a discovery stage.
type StageResult struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

// DetailResult reports the outcome of a product detail run.
type DetailResult struct {
	Success      bool `json:"success"`
	ReviewsCount int  `json:"reviewsCount"`
}
