package catalog

import "fmt"

// HeadingDraft is the navigation stage's write payload.
type HeadingDraft struct {
	Name string
	URL  string
}

// Validate checks the natural key.
func (d HeadingDraft) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("heading name: %w", ErrMissingKey)
	}
	return nil
}

// CategoryDraft is the category stage's write payload.
type CategoryDraft struct {
	Name                string
	URL                 string
	NavigationHeadingID string
	ParentCategoryID    string
}

// Validate checks the natural key.
func (d CategoryDraft) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("category name: %w", ErrMissingKey)
	}
	return nil
}

// ProductDraft is the product stage's write payload.
type ProductDraft struct {
	Title         string
	Author        string
	Price         string
	OriginalPrice string
	ImageURL      string
	ProductURL    string
	SourceID      string
	CategoryID    string
}

// Validate checks the natural key and required listing fields.
func (d ProductDraft) Validate() error {
	if d.SourceID == "" {
		return fmt.Errorf("product source id: %w", ErrMissingKey)
	}
	if d.Title == "" {
		return fmt.Errorf("product title: %w", ErrMissingKey)
	}
	if d.ProductURL == "" {
		return fmt.Errorf("product url: %w", ErrMissingKey)
	}
	return nil
}

// ReviewDraft is the detail stage's review payload, also used for reviews
// submitted through the API.
type ReviewDraft struct {
	ProductID    string
	ReviewerName string
	Rating       *float64
	Title        string
	Content      string
	ReviewDate   string
	IsVerified   bool
}

// Validate checks the natural key.
func (d ReviewDraft) Validate() error {
	if d.ProductID == "" {
		return fmt.Errorf("review product id: %w", ErrMissingKey)
	}
	if d.Content == "" {
		return fmt.Errorf("review content: %w", ErrMissingKey)
	}
	return nil
}
