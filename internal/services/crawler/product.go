package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
)

const productGoal = "Extract the product details from this product page: name, price, availability, description, brand, specifications and image urls"

var productShape = map[string]interface{}{
	"name":           "product name",
	"price":          "displayed price",
	"available":      true,
	"description":    "product description",
	"brand":          "brand name",
	"specifications": map[string]interface{}{},
	"images":         []interface{}{"image url"},
}

// CrawlProductDetails visits a single product page and persists the
// extracted product document
func (s *Service) CrawlProductDetails(ctx context.Context, task *models.CrawlTask) error {
	id := task.PayloadString("id")
	url := task.PayloadString("url")
	if id == "" || url == "" {
		return common.NewValidationError("crawl product", fmt.Errorf("payload id and url are required"))
	}

	product, err := s.crawlOneProduct(ctx, id, url, task.PayloadString("category"))
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("product_id", id).
		Str("method", string(product.Method)).
		Msg("Product crawled")
	s.publish(ctx, interfaces.EventProductCrawled, map[string]interface{}{
		"product_id": id,
		"name":       product.Name,
	})
	return nil
}

// CrawlMultipleProducts fans a batch of product IDs into sequential detail
// crawls. The site rate limiter already serializes page traffic, so batch
// entries run one after another; individual failures do not sink the batch
// unless every entry fails.
func (s *Service) CrawlMultipleProducts(ctx context.Context, task *models.CrawlTask) error {
	ids := task.PayloadStrings("ids")
	urls := task.PayloadStrings("urls")
	if len(ids) == 0 {
		return common.NewValidationError("crawl batch", fmt.Errorf("payload ids is required"))
	}

	category := task.PayloadString("category")
	var crawled int
	var failures []string
	for i, id := range ids {
		url := ""
		if i < len(urls) {
			url = urls[i]
		}
		if url == "" {
			if existing, err := s.storage.DocumentStorage().GetProduct(ctx, id); err == nil && existing != nil {
				url = existing.URL
			}
		}
		if url == "" {
			failures = append(failures, fmt.Sprintf("%s: no url known", id))
			continue
		}

		if _, err := s.crawlOneProduct(ctx, id, url, category); err != nil {
			if ctx.Err() != nil {
				return err
			}
			failures = append(failures, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		crawled++
	}

	s.logger.Info().
		Int("crawled", crawled).
		Int("failed", len(failures)).
		Msg("Product batch finished")
	s.publish(ctx, interfaces.EventProductCrawled, map[string]interface{}{
		"batch":   true,
		"crawled": crawled,
		"failed":  len(failures),
	})

	if crawled == 0 {
		return common.NewStructuralError("crawl batch", fmt.Errorf("every entry failed: %s", strings.Join(failures, "; ")))
	}
	return nil
}

func (s *Service) crawlOneProduct(ctx context.Context, id, url, category string) (*models.ProductDocument, error) {
	html, err := s.fetchRenderedHTML(ctx, url, false)
	if err != nil {
		return nil, err
	}

	doc, err := s.extraction.Extract(ctx, html, productGoal, interfaces.ExtractOptions{Shape: productShape})
	if err != nil {
		return nil, common.NewParseError("extract product", err)
	}

	product := &models.ProductDocument{
		ID:        id,
		URL:       url,
		Name:      fieldString(doc.Fields, "name"),
		Price:     fieldString(doc.Fields, "price"),
		Available: fieldBool(doc.Fields, "available"),
		Category:  category,
		Fields:    doc.Fields,
		Method:    doc.Method,
		CrawledAt: time.Now(),
	}
	if product.Name == "" {
		return nil, common.NewStructuralError("extract product", fmt.Errorf("no product name found at %s", url))
	}

	if existing, err := s.storage.DocumentStorage().GetProduct(ctx, id); err == nil && existing != nil && product.Category == "" {
		product.Category = existing.Category
	}

	if err := s.storage.DocumentStorage().SaveProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("save product %s: %w", id, err)
	}
	return product, nil
}
