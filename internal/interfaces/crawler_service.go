package interfaces

import (
	"context"

	"github.com/ternarybob/merx/internal/models"
)

// CrawlerService executes crawl task bodies against the retail site. Each
// method corresponds to one task kind dispatched by the scheduler.
type CrawlerService interface {
	// CrawlCategory visits a category listing and persists the product list
	CrawlCategory(ctx context.Context, task *models.CrawlTask) error

	// CrawlProductDetails visits a single product page and persists the
	// extracted product document
	CrawlProductDetails(ctx context.Context, task *models.CrawlTask) error

	// CrawlMultipleProducts fans a batch of product IDs into detail crawls
	CrawlMultipleProducts(ctx context.Context, task *models.CrawlTask) error

	// CrawlCheckoutProcess walks the purchase flow and captures the
	// step/form/field descriptor tree
	CrawlCheckoutProcess(ctx context.Context, task *models.CrawlTask) error

	// CrawlSearchResults runs a site search and persists the result set
	CrawlSearchResults(ctx context.Context, task *models.CrawlTask) error

	// UpdateProductsInfo refreshes price and availability of stale products
	UpdateProductsInfo(ctx context.Context, task *models.CrawlTask) error
}
