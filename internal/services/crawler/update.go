package crawler

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
)

const updateGoal = "Extract the current price and availability of the product on this page"

// updateBatchLimit caps how many stale products one update task refreshes,
// the rest wait for the next sweep
const updateBatchLimit = 50

var updateShape = map[string]interface{}{
	"price":     "displayed price",
	"available": true,
}

// UpdateProductsInfo refreshes price and availability of stale product
// documents. The refresh uses the DOM fallback only, two fields do not
// justify completion calls.
func (s *Service) UpdateProductsInfo(ctx context.Context, task *models.CrawlTask) error {
	staleAfter := s.site.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}

	stale, err := s.storage.DocumentStorage().GetStaleProducts(ctx, staleAfter, updateBatchLimit)
	if err != nil {
		return fmt.Errorf("list stale products: %w", err)
	}
	if len(stale) == 0 {
		s.logger.Debug().Msg("No stale products to refresh")
		return nil
	}

	var updated int
	for _, product := range stale {
		if ctx.Err() != nil {
			return common.NewTransientError("update products", ctx.Err())
		}
		if product.URL == "" {
			continue
		}

		if err := s.refreshProduct(ctx, product); err != nil {
			s.logger.Warn().
				Err(err).
				Str("product_id", product.ID).
				Msg("Product refresh failed")
			continue
		}
		updated++
	}

	s.logger.Info().
		Int("stale", len(stale)).
		Int("updated", updated).
		Msg("Stale products refreshed")
	s.publish(ctx, interfaces.EventProductsUpdated, map[string]interface{}{
		"stale":   len(stale),
		"updated": updated,
	})
	return nil
}

func (s *Service) refreshProduct(ctx context.Context, product *models.ProductDocument) error {
	html, err := s.fetchRenderedHTML(ctx, product.URL, false)
	if err != nil {
		return err
	}

	doc, err := s.extraction.Extract(ctx, html, updateGoal, interfaces.ExtractOptions{
		Shape:    updateShape,
		ForceDOM: true,
	})
	if err != nil {
		return common.NewParseError("extract update", err)
	}

	if price := fieldString(doc.Fields, "price"); price != "" {
		product.Price = price
	}
	product.Available = fieldBool(doc.Fields, "available")
	product.CrawledAt = time.Now()

	return s.storage.DocumentStorage().SaveProduct(ctx, product)
}
