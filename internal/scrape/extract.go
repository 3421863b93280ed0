package scrape

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/bookscout/bookscout/internal/catalog"
)

// Selector chains below mirror the markup variants the source site has been
// observed to serve. Matches resolve in document order.
const (
	headingAnchorSelector  = `nav a, .navigation a, header a[href*="/categories"]`
	categoryAnchorSelector = `.category-list a, .categories a, [data-testid*="category"] a, .sidebar a[href*="/categories/"]`
	productCardSelector    = `.product-item, .book-item, [data-testid*="product"], .product-card`
	reviewBlockSelector    = `.review, .review-item, [data-testid*="review"], .customer-review, .testimonial, .comment`
)

const (
	maxHeadingsPerPage = 10
	maxProductsPerPage = 20
	minReviewLength    = 10
)

var numberToken = regexp.MustCompile(`\d+(?:\.\d+)?`)

// extractHeadings pulls category-section links out of the site navigation.
// Only anchors pointing into /categories count; the first ten are kept and
// deduplicated by name, first occurrence winning.
func extractHeadings(doc *goquery.Document, baseURL string) []catalog.HeadingDraft {
	var drafts []catalog.HeadingDraft
	doc.Find(headingAnchorSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		name := strings.TrimSpace(sel.Text())
		if name == "" || href == "" || !strings.Contains(href, "/categories") {
			return true
		}
		drafts = append(drafts, catalog.HeadingDraft{
			Name: name,
			URL:  absoluteURL(baseURL, href),
		})
		return len(drafts) < maxHeadingsPerPage
	})

	seen := make(map[string]bool, len(drafts))
	unique := drafts[:0]
	for _, d := range drafts {
		if seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		unique = append(unique, d)
	}
	return unique
}

// extractCategories pulls category links from a heading's landing page.
func extractCategories(doc *goquery.Document, baseURL, headingID string) []catalog.CategoryDraft {
	var drafts []catalog.CategoryDraft
	doc.Find(categoryAnchorSelector).Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		name := strings.TrimSpace(sel.Text())
		if name == "" || href == "" {
			return
		}
		drafts = append(drafts, catalog.CategoryDraft{
			Name:                name,
			URL:                 absoluteURL(baseURL, href),
			NavigationHeadingID: headingID,
		})
	})
	return drafts
}

// extractProducts pulls product cards from a category listing page. At most
// twenty cards per page are considered; cards without a title or link are
// dropped. The source id is the last path segment of the product link.
func extractProducts(doc *goquery.Document, baseURL, categoryID string) []catalog.ProductDraft {
	var drafts []catalog.ProductDraft
	doc.Find(productCardSelector).EachWithBreak(func(i int, card *goquery.Selection) bool {
		if i >= maxProductsPerPage {
			return false
		}
		title := firstText(card, `h3, .title, [data-testid*="title"]`)
		link := card.Find("a").First()
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return true
		}
		imageURL, _ := card.Find("img").First().Attr("src")
		drafts = append(drafts, catalog.ProductDraft{
			Title:      title,
			Author:     firstText(card, `.author, [data-testid*="author"]`),
			Price:      firstText(card, `.price, [data-testid*="price"]`),
			ImageURL:   imageURL,
			ProductURL: absoluteURL(baseURL, href),
			SourceID:   lastPathSegment(href),
			CategoryID: categoryID,
		})
		return true
	})
	return drafts
}

// extractDetail pulls the description block fields from a product page.
func extractDetail(doc *goquery.Document) catalog.ProductDetail {
	body := doc.Selection
	return catalog.ProductDetail{
		Description:     firstText(body, `.description, .product-description, [data-testid*="description"], .synopsis, .about, #description`),
		Publisher:       firstText(body, `.publisher, [data-testid*="publisher"], .imprint, .published-by`),
		PublicationDate: firstText(body, `.publication-date, [data-testid*="publication"], .pub-date, .published`),
		ISBN:            firstText(body, `.isbn, [data-testid*="isbn"], .isbn13, .isbn-13`),
	}
}

// extractReviews pulls customer reviews from a product page. Blocks whose
// content is shorter than ten characters are discarded; missing reviewer
// names default to Anonymous. The rating is the first numeric token in the
// rating element, absent when none parses.
func extractReviews(doc *goquery.Document, productID string) []catalog.ReviewDraft {
	var drafts []catalog.ReviewDraft
	doc.Find(reviewBlockSelector).Each(func(_ int, block *goquery.Selection) {
		content := firstText(block, `.review-content, .content, .text, p`)
		if utf8.RuneCountInString(content) < minReviewLength {
			return
		}
		reviewer := firstText(block, `.reviewer, .author, .customer-name, .user`)
		if reviewer == "" {
			reviewer = "Anonymous"
		}
		var rating *float64
		if token := numberToken.FindString(firstText(block, `.rating, [data-testid*="rating"], .stars, .rating-value`)); token != "" {
			if value, err := strconv.ParseFloat(token, 64); err == nil {
				rating = &value
			}
		}
		drafts = append(drafts, catalog.ReviewDraft{
			ProductID:    productID,
			ReviewerName: reviewer,
			Rating:       rating,
			Title:        firstText(block, `.review-title, h4, .title, .summary`),
			Content:      content,
			ReviewDate:   firstText(block, `.review-date, .date, .posted, .timestamp`),
			IsVerified:   true,
		})
	})
	return drafts
}

func firstText(sel *goquery.Selection, selector string) string {
	return strings.TrimSpace(sel.Find(selector).First().Text())
}

func absoluteURL(baseURL, href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func lastPathSegment(href string) string {
	trimmed := strings.TrimSuffix(href, "/")
	if i := strings.Index(trimmed, "?"); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
