package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bookscout/bookscout/internal/catalog"
	"github.com/bookscout/bookscout/internal/store"
)

// listNavigation returns all navigation headings.
func (s *Server) listNavigation(w http.ResponseWriter, r *http.Request) {
	headings, err := s.store.ListHeadings(r.Context(), false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if headings == nil {
		headings = []catalog.NavigationHeading{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"navigation": headings})
}

// getNavigation returns one heading by id.
func (s *Server) getNavigation(w http.ResponseWriter, r *http.Request) {
	heading, err := s.store.GetHeading(r.Context(), chi.URLParam(r, "headingID"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, heading)
}

// listCategories returns categories, optionally scoped to a heading.
func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.ListCategories(r.Context(), store.CategoryFilter{
		NavigationHeadingID: r.URL.Query().Get("navigationHeadingId"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if categories == nil {
		categories = []catalog.Category{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

// getCategory returns one category by id.
func (s *Server) getCategory(w http.ResponseWriter, r *http.Request) {
	category, err := s.store.GetCategory(r.Context(), chi.URLParam(r, "categoryID"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

// listProducts returns a filtered, sorted, paginated product listing.
func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := productFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := s.store.ListProducts(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if page.Products == nil {
		page.Products = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, page)
}

// getProduct returns one product by id.
func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.store.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// relatedProducts returns other products from the same category.
func (s *Server) relatedProducts(w http.ResponseWriter, r *http.Request) {
	limit := 6
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	product, err := s.store.GetProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}

	related := []catalog.Product{}
	if product.CategoryID != "" {
		// Over-fetch by one so dropping the product itself still fills the limit.
		page, err := s.store.ListProducts(r.Context(), store.ProductFilter{
			CategoryID: product.CategoryID,
			Limit:      limit + 1,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for _, p := range page.Products {
			if p.ID == product.ID {
				continue
			}
			related = append(related, p)
			if len(related) == limit {
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": related})
}

// listReviews returns a product's reviews, newest first.
func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	if _, err := s.store.GetProduct(r.Context(), productID); err != nil {
		s.writeLookupError(w, err)
		return
	}
	reviews, err := s.store.ListReviews(r.Context(), productID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reviews == nil {
		reviews = []catalog.Review{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

type createReviewRequest struct {
	ReviewerName string   `json:"reviewerName"`
	Rating       *float64 `json:"rating"`
	Title        string   `json:"title"`
	Content      string   `json:"content"`
}

// createReview stores a user-submitted review for an existing product.
func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		writeError(w, http.StatusBadRequest, "rating must be between 1 and 5")
		return
	}
	reviewer := strings.TrimSpace(req.ReviewerName)
	if reviewer == "" {
		reviewer = "Anonymous"
	}

	review, err := s.store.CreateReview(r.Context(), catalog.ReviewDraft{
		ProductID:    chi.URLParam(r, "productID"),
		ReviewerName: reviewer,
		Rating:       req.Rating,
		Title:        strings.TrimSpace(req.Title),
		Content:      strings.TrimSpace(req.Content),
		IsVerified:   false,
	})
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, review)
}

func productFilterFromQuery(r *http.Request) (store.ProductFilter, error) {
	q := r.URL.Query()
	filter := store.ProductFilter{
		CategoryID: q.Get("categoryId"),
		Search:     strings.TrimSpace(q.Get("q")),
	}

	if raw := q.Get("minPrice"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 {
			return store.ProductFilter{}, errors.New("minPrice must be a non-negative number")
		}
		filter.MinPrice = &value
	}
	if raw := q.Get("maxPrice"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 {
			return store.ProductFilter{}, errors.New("maxPrice must be a non-negative number")
		}
		filter.MaxPrice = &value
	}
	if raw := q.Get("page"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 1 {
			return store.ProductFilter{}, errors.New("page must be a positive integer")
		}
		filter.Page = value
	}
	if raw := q.Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 1 {
			return store.ProductFilter{}, errors.New("limit must be a positive integer")
		}
		filter.Limit = value
	}
	if raw := q.Get("sortBy"); raw != "" {
		switch store.ProductSort(raw) {
		case store.SortByCreatedAt, store.SortByTitle, store.SortByPrice, store.SortByRating:
			filter.SortBy = store.ProductSort(raw)
		default:
			return store.ProductFilter{}, errors.New("sortBy must be one of createdAt, title, price, rating")
		}
	}
	filter.SortDesc = strings.EqualFold(q.Get("sortOrder"), "desc")
	return filter, nil
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
