package crawler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
)

// fakePage serves canned HTML per URL and records interactions
type fakePage struct {
	mu       sync.Mutex
	pages    map[string]string
	current  string
	visible  map[string]bool
	nextURLs map[string]string // selector click -> destination
	closed   bool
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pages[url]; !ok {
		return fmt.Errorf("navigate: timeout at %s", url)
	}
	p.current = url
	return nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pages[p.current], nil
}

func (p *fakePage) EvaluateInPage(ctx context.Context, expression string, out interface{}) error {
	return nil
}

func (p *fakePage) IsVisible(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[selector], nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if dest, ok := p.nextURLs[p.current+"|"+selector]; ok {
		p.current = dest
		return nil
	}
	if !p.visible[selector] {
		return fmt.Errorf("click: selector not found %s", selector)
	}
	return nil
}

func (p *fakePage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}

func (p *fakePage) ScrollToBottom(ctx context.Context) error { return nil }

func (p *fakePage) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeBrowser struct {
	page *fakePage
}

func (b *fakeBrowser) Start(ctx context.Context) error { return nil }
func (b *fakeBrowser) AcquirePage(ctx context.Context) (interfaces.Page, error) {
	return b.page, nil
}
func (b *fakeBrowser) Stats() map[string]interface{} { return nil }
func (b *fakeBrowser) Shutdown() error               { return nil }

// fakeExtraction returns canned fields keyed by goal substring
type fakeExtraction struct {
	mu      sync.Mutex
	results map[string]map[string]interface{}
	calls   []string
}

func (e *fakeExtraction) Extract(ctx context.Context, rawMarkup, goal string, opts interfaces.ExtractOptions) (*models.ExtractionDocument, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, goal)
	for key, fields := range e.results {
		if len(key) > 0 && containsFold(goal, key) {
			method := models.ExtractionMethodLLM
			if opts.ForceDOM {
				method = models.ExtractionMethodDOM
			}
			return &models.ExtractionDocument{Fields: fields, Method: method}, nil
		}
	}
	return &models.ExtractionDocument{Fields: map[string]interface{}{}, Method: models.ExtractionMethodDOM}, nil
}

func containsFold(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || indexFold(s, substr) >= 0)
}

func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// memoryStorage is an in-memory StorageManager for crawler tests
type memoryStorage struct {
	mu         sync.Mutex
	categories map[string]*models.CategoryDocument
	products   map[string]*models.ProductDocument
	searches   map[string]*models.SearchDocument
	processes  map[string]*models.CheckoutProcessDescriptor
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{
		categories: make(map[string]*models.CategoryDocument),
		products:   make(map[string]*models.ProductDocument),
		searches:   make(map[string]*models.SearchDocument),
		processes:  make(map[string]*models.CheckoutProcessDescriptor),
	}
}

func (m *memoryStorage) DocumentStorage() interfaces.DocumentStorage { return m }
func (m *memoryStorage) CheckoutStorage() interfaces.CheckoutStorage { return m }
func (m *memoryStorage) CacheStorage() interfaces.CacheStorage       { return nil }
func (m *memoryStorage) Close() error                                { return nil }

func (m *memoryStorage) SaveCategory(ctx context.Context, doc *models.CategoryDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[doc.Slug] = doc
	return nil
}

func (m *memoryStorage) GetCategory(ctx context.Context, slug string) (*models.CategoryDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.categories[slug]; ok {
		return doc, nil
	}
	return nil, fmt.Errorf("not found")
}

func (m *memoryStorage) ListCategories(ctx context.Context) ([]*models.CategoryDocument, error) {
	return nil, nil
}

func (m *memoryStorage) SaveProduct(ctx context.Context, doc *models.ProductDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[doc.ID] = doc
	return nil
}

func (m *memoryStorage) SaveProducts(ctx context.Context, docs []*models.ProductDocument) error {
	for _, doc := range docs {
		if err := m.SaveProduct(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (m *memoryStorage) GetProduct(ctx context.Context, id string) (*models.ProductDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.products[id]; ok {
		return doc, nil
	}
	return nil, fmt.Errorf("not found")
}

func (m *memoryStorage) ListProducts(ctx context.Context) ([]*models.ProductDocument, error) {
	return nil, nil
}

func (m *memoryStorage) GetStaleProducts(ctx context.Context, olderThan time.Duration, limit int) ([]*models.ProductDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []*models.ProductDocument
	for _, doc := range m.products {
		if doc.IsStale(olderThan) && len(stale) < limit {
			stale = append(stale, doc)
		}
	}
	return stale, nil
}

func (m *memoryStorage) SearchProducts(ctx context.Context, query string, limit int) ([]*models.ProductDocument, error) {
	return nil, nil
}

func (m *memoryStorage) DeleteProduct(ctx context.Context, id string) error { return nil }

func (m *memoryStorage) CountProducts(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.products), nil
}

func (m *memoryStorage) SaveSearchResults(ctx context.Context, doc *models.SearchDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches[doc.QuerySlug] = doc
	return nil
}

func (m *memoryStorage) GetSearchResults(ctx context.Context, querySlug string) (*models.SearchDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc, ok := m.searches[querySlug]; ok {
		return doc, nil
	}
	return nil, fmt.Errorf("not found")
}

func (m *memoryStorage) ClearAll(ctx context.Context) error { return nil }

func (m *memoryStorage) SaveProcess(ctx context.Context, d *models.CheckoutProcessDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := "checkout:" + d.ProductID
	if d.ProductID == "" {
		key = "checkout:category:" + d.CategorySlug
	}
	m.processes[key] = d
	return nil
}

func (m *memoryStorage) GetProcessByProduct(ctx context.Context, productID string) (*models.CheckoutProcessDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.processes["checkout:"+productID]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("not found")
}

func (m *memoryStorage) GetProcessByCategory(ctx context.Context, slug string) (*models.CheckoutProcessDescriptor, error) {
	return nil, fmt.Errorf("not found")
}

func (m *memoryStorage) SaveSession(ctx context.Context, session *models.CheckoutSession) error {
	return nil
}

func (m *memoryStorage) GetSession(ctx context.Context, id string) (*models.CheckoutSession, error) {
	return nil, fmt.Errorf("not found")
}

func (m *memoryStorage) ListSessions(ctx context.Context) ([]*models.CheckoutSession, error) {
	return nil, nil
}

func (m *memoryStorage) DeleteSession(ctx context.Context, id string) error { return nil }

func testSite() *common.SiteConfig {
	return &common.SiteConfig{
		BaseURL:      "https://shop.example.com.br",
		SearchPath:   "/busca?q=",
		RequestDelay: time.Millisecond,
		StaleAfter:   24 * time.Hour,
	}
}

func newTestCrawler(t *testing.T, page *fakePage, extraction *fakeExtraction, storage *memoryStorage) *Service {
	t.Helper()
	svc, err := NewService(testSite(), &fakeBrowser{page: page}, extraction, storage, nil, arbor.NewLogger())
	require.NoError(t, err)
	return svc
}

func TestCrawlCategoryPersistsListing(t *testing.T) {
	page := &fakePage{pages: map[string]string{
		"https://shop.example.com.br/notebooks": "<html><body>listing</body></html>",
	}}
	extraction := &fakeExtraction{results: map[string]map[string]interface{}{
		"category page": {
			"category": "Notebooks",
			"products": []interface{}{
				map[string]interface{}{"id": "nb-1", "name": "Notebook A", "price": "3999", "url": "https://shop.example.com.br/p/nb-1"},
				map[string]interface{}{"id": "nb-2", "name": "Notebook B", "price": "5499", "url": "https://shop.example.com.br/p/nb-2"},
			},
		},
	}}
	storage := newMemoryStorage()
	svc := newTestCrawler(t, page, extraction, storage)

	task := models.NewCrawlTask(models.TaskKindCategory, map[string]interface{}{
		"slug": "notebooks",
		"url":  "https://shop.example.com.br/notebooks",
	})
	require.NoError(t, svc.CrawlCategory(context.Background(), task))

	saved, err := storage.GetCategory(context.Background(), "notebooks")
	require.NoError(t, err)
	assert.Equal(t, []string{"nb-1", "nb-2"}, saved.ProductIDs)
	assert.Len(t, saved.Products, 2)
}

func TestCrawlCategoryRequiresURL(t *testing.T) {
	svc := newTestCrawler(t, &fakePage{pages: map[string]string{}}, &fakeExtraction{}, newMemoryStorage())

	task := models.NewCrawlTask(models.TaskKindCategory, map[string]interface{}{"slug": "notebooks"})
	err := svc.CrawlCategory(context.Background(), task)
	require.Error(t, err)
	assert.Equal(t, common.ErrKindValidation, common.KindOf(err))
}

func TestCrawlCategoryEmptyListingIsStructural(t *testing.T) {
	page := &fakePage{pages: map[string]string{
		"https://shop.example.com.br/vazio": "<html><body>nothing here</body></html>",
	}}
	svc := newTestCrawler(t, page, &fakeExtraction{}, newMemoryStorage())

	task := models.NewCrawlTask(models.TaskKindCategory, map[string]interface{}{
		"slug": "vazio",
		"url":  "https://shop.example.com.br/vazio",
	})
	err := svc.CrawlCategory(context.Background(), task)
	require.Error(t, err)
	assert.Equal(t, common.ErrKindStructuralMismatch, common.KindOf(err))
}

func TestCrawlProductDetails(t *testing.T) {
	page := &fakePage{pages: map[string]string{
		"https://shop.example.com.br/p/nb-1": "<html><body>product</body></html>",
	}}
	extraction := &fakeExtraction{results: map[string]map[string]interface{}{
		"product details": {
			"name":      "Notebook A",
			"price":     "3999",
			"available": true,
			"brand":     "Acme",
		},
	}}
	storage := newMemoryStorage()
	svc := newTestCrawler(t, page, extraction, storage)

	task := models.NewCrawlTask(models.TaskKindProduct, map[string]interface{}{
		"id":       "nb-1",
		"url":      "https://shop.example.com.br/p/nb-1",
		"category": "notebooks",
	})
	require.NoError(t, svc.CrawlProductDetails(context.Background(), task))

	saved, err := storage.GetProduct(context.Background(), "nb-1")
	require.NoError(t, err)
	assert.Equal(t, "Notebook A", saved.Name)
	assert.Equal(t, "3999", saved.Price)
	assert.True(t, saved.Available)
	assert.Equal(t, "notebooks", saved.Category)
}

func TestCrawlMultipleProductsToleratesPartialFailure(t *testing.T) {
	page := &fakePage{pages: map[string]string{
		"https://shop.example.com.br/p/ok": "<html><body>product</body></html>",
	}}
	extraction := &fakeExtraction{results: map[string]map[string]interface{}{
		"product details": {"name": "Produto OK", "price": "10"},
	}}
	storage := newMemoryStorage()
	svc := newTestCrawler(t, page, extraction, storage)

	task := models.NewCrawlTask(models.TaskKindBatch, map[string]interface{}{
		"ids":  []interface{}{"ok", "broken"},
		"urls": []interface{}{"https://shop.example.com.br/p/ok", "https://shop.example.com.br/p/broken"},
	})
	require.NoError(t, svc.CrawlMultipleProducts(context.Background(), task))

	_, err := storage.GetProduct(context.Background(), "ok")
	assert.NoError(t, err)
	_, err = storage.GetProduct(context.Background(), "broken")
	assert.Error(t, err)
}

func TestCrawlSearchResults(t *testing.T) {
	page := &fakePage{pages: map[string]string{
		"https://shop.example.com.br/busca?q=caf%C3%A9": "<html><body>results</body></html>",
	}}
	extraction := &fakeExtraction{results: map[string]map[string]interface{}{
		"search result": {
			"results": []interface{}{
				map[string]interface{}{"id": "cf-1", "name": "Café Torrado", "price": "25"},
			},
		},
	}}
	storage := newMemoryStorage()
	svc := newTestCrawler(t, page, extraction, storage)

	task := models.NewCrawlTask(models.TaskKindSearch, map[string]interface{}{"query": "café"})
	require.NoError(t, svc.CrawlSearchResults(context.Background(), task))

	saved, err := storage.GetSearchResults(context.Background(), common.Slugify("café"))
	require.NoError(t, err)
	assert.Equal(t, "café", saved.Query)
	assert.Len(t, saved.Results, 1)
}

func TestCrawlCheckoutProcessCapturesSteps(t *testing.T) {
	productHTML := `<html><body><button id="buy-button">Comprar</button></body></html>`
	identHTML := `<html><body><form action="/checkout/id">
		<input name="fullName" type="text" required placeholder="Nome completo">
		<input name="email" type="email" required>
		<input name="cep" type="text" required>
		<button id="continue" type="submit">Continuar</button>
	</form></body></html>`
	payHTML := `<html><body><form action="/checkout/pay">
		<select name="installments" required>
			<option value="">Selecione</option>
			<option value="1x">1x sem juros</option>
		</select>
		<input name="terms" type="checkbox">
	</form></body></html>`

	page := &fakePage{
		pages: map[string]string{
			"https://shop.example.com.br/p/nb-1":       productHTML,
			"https://shop.example.com.br/checkout/id":  identHTML,
			"https://shop.example.com.br/checkout/pay": payHTML,
		},
		visible: map[string]bool{"#buy-button": true, "#continue": true},
		nextURLs: map[string]string{
			"https://shop.example.com.br/p/nb-1|#buy-button":    "https://shop.example.com.br/checkout/id",
			"https://shop.example.com.br/checkout/id|#continue": "https://shop.example.com.br/checkout/pay",
		},
	}
	storage := newMemoryStorage()
	svc := newTestCrawler(t, page, &fakeExtraction{}, storage)

	task := models.NewCrawlTask(models.TaskKindCheckout, map[string]interface{}{
		"product_id": "nb-1",
		"url":        "https://shop.example.com.br/p/nb-1",
	})
	require.NoError(t, svc.CrawlCheckoutProcess(context.Background(), task))

	descriptor, err := storage.GetProcessByProduct(context.Background(), "nb-1")
	require.NoError(t, err)
	require.Len(t, descriptor.Steps, 2)
	assert.Equal(t, "id", descriptor.Steps[0].Name)
	assert.Equal(t, "https://shop.example.com.br/checkout/pay", descriptor.Steps[0].NextStepURL)

	fields := descriptor.AllFields()
	names := make(map[string]models.FieldType, len(fields))
	for _, f := range fields {
		names[f.Name] = f.Type
	}
	assert.Equal(t, models.FieldTypeText, names["fullName"])
	assert.Equal(t, models.FieldTypeEmail, names["email"])
	assert.Equal(t, models.FieldTypeSelect, names["installments"])
	assert.Equal(t, models.FieldTypeCheckbox, names["terms"])
}

func TestUpdateProductsInfoRefreshesStaleOnly(t *testing.T) {
	page := &fakePage{pages: map[string]string{
		"https://shop.example.com.br/p/old": "<html><body>product</body></html>",
	}}
	extraction := &fakeExtraction{results: map[string]map[string]interface{}{
		"price and availability": {"price": "899", "available": "em estoque"},
	}}
	storage := newMemoryStorage()

	old := &models.ProductDocument{
		ID:        "old",
		URL:       "https://shop.example.com.br/p/old",
		Price:     "999",
		CrawledAt: time.Now().Add(-48 * time.Hour),
	}
	fresh := &models.ProductDocument{
		ID:        "fresh",
		URL:       "https://shop.example.com.br/p/fresh",
		Price:     "100",
		CrawledAt: time.Now(),
	}
	require.NoError(t, storage.SaveProduct(context.Background(), old))
	require.NoError(t, storage.SaveProduct(context.Background(), fresh))

	svc := newTestCrawler(t, page, extraction, storage)
	task := models.NewCrawlTask(models.TaskKindUpdate, nil)
	require.NoError(t, svc.UpdateProductsInfo(context.Background(), task))

	updated, err := storage.GetProduct(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "899", updated.Price)
	assert.True(t, updated.Available)

	untouched, err := storage.GetProduct(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, "100", untouched.Price)
}
