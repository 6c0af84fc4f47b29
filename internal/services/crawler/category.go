package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
)

const categoryGoal = "Extract the product listing from this category page: for each product capture id, name, price, url and availability"

var categoryShape = map[string]interface{}{
	"category": "category name",
	"products": []interface{}{
		map[string]interface{}{
			"id":        "product identifier",
			"name":      "product name",
			"price":     "displayed price",
			"url":       "product page url",
			"available": true,
		},
	},
}

// CrawlCategory visits a category listing page and persists the extracted
// product list as a category document
func (s *Service) CrawlCategory(ctx context.Context, task *models.CrawlTask) error {
	url := task.PayloadString("url")
	if url == "" {
		return common.NewValidationError("crawl category", fmt.Errorf("payload url is required"))
	}
	slug := task.PayloadString("slug")
	if slug == "" {
		slug = common.Slugify(task.PayloadString("name"))
	}
	if slug == "" {
		return common.NewValidationError("crawl category", fmt.Errorf("payload slug or name is required"))
	}

	html, err := s.fetchRenderedHTML(ctx, url, true)
	if err != nil {
		return err
	}

	doc, err := s.extraction.Extract(ctx, html, categoryGoal, interfaces.ExtractOptions{Shape: categoryShape})
	if err != nil {
		return common.NewParseError("extract category", err)
	}

	products := fieldMaps(doc.Fields, "products")
	if len(products) == 0 {
		return common.NewStructuralError("extract category", fmt.Errorf("no products found at %s", url))
	}

	category := &models.CategoryDocument{
		Slug:       slug,
		Name:       task.PayloadString("name"),
		URL:        url,
		ProductIDs: productIDs(products),
		Products:   products,
		Method:     doc.Method,
		CrawledAt:  time.Now(),
	}
	if category.Name == "" {
		category.Name = fieldString(doc.Fields, "category")
	}

	if err := s.storage.DocumentStorage().SaveCategory(ctx, category); err != nil {
		return fmt.Errorf("save category %s: %w", slug, err)
	}

	s.logger.Info().
		Str("slug", slug).
		Int("products", len(products)).
		Str("method", string(doc.Method)).
		Msg("Category crawled")
	s.publish(ctx, interfaces.EventCategoryCrawled, map[string]interface{}{
		"slug":     slug,
		"products": len(products),
	})
	return nil
}

// productIDs collects identifiers from listing entries, deriving one from
// the product URL when the listing shows no explicit id
func productIDs(products []map[string]interface{}) []string {
	ids := make([]string, 0, len(products))
	seen := make(map[string]bool, len(products))
	for _, p := range products {
		id := fieldString(p, "id")
		if id == "" {
			id = common.Slugify(fieldString(p, "url"))
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
