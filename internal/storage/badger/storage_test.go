package badger

import (
	"context"
	"testing"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merx/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	tmpDir := t.TempDir()

	options := badgerhold.DefaultOptions
	options.Options = badgerdb.DefaultOptions(tmpDir).WithLogger(nil)

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store, logger: arbor.NewLogger()}
}

func TestProductRoundTrip(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())
	ctx := context.Background()

	doc := &models.ProductDocument{
		ID:        "sku-1001",
		URL:       "https://shop.example.com/p/sku-1001",
		Name:      "Smart TV 55",
		Price:     "2999.90",
		Available: true,
		Category:  "eletronicos",
		Fields:    map[string]interface{}{"brand": "Acme"},
		Method:    models.ExtractionMethodLLM,
	}
	require.NoError(t, storage.SaveProduct(ctx, doc))

	got, err := storage.GetProduct(ctx, "sku-1001")
	require.NoError(t, err)
	assert.Equal(t, "Smart TV 55", got.Name)
	assert.Equal(t, "eletronicos", got.Category)
	assert.False(t, got.CrawledAt.IsZero(), "save stamps crawled_at")

	// Overwrite is idempotent
	doc.Price = "2799.90"
	require.NoError(t, storage.SaveProduct(ctx, doc))
	got, err = storage.GetProduct(ctx, "sku-1001")
	require.NoError(t, err)
	assert.Equal(t, "2799.90", got.Price)

	count, err := storage.CountProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetProductNotFound(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())

	_, err := storage.GetProduct(context.Background(), "missing")
	assert.Error(t, err)
}

func TestGetStaleProducts(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())
	ctx := context.Background()

	fresh := &models.ProductDocument{ID: "fresh", Name: "Fresh", CrawledAt: time.Now()}
	stale := &models.ProductDocument{ID: "stale", Name: "Stale", CrawledAt: time.Now().Add(-12 * time.Hour)}
	require.NoError(t, storage.SaveProduct(ctx, fresh))
	require.NoError(t, storage.SaveProduct(ctx, stale))

	got, err := storage.GetStaleProducts(ctx, 6*time.Hour, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "stale", got[0].ID)
}

func TestSearchProducts(t *testing.T) {
	db := newTestDB(t)
	storage := NewDocumentStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.SaveProducts(ctx, []*models.ProductDocument{
		{ID: "1", Name: "Smart TV 55", Category: "eletronicos"},
		{ID: "2", Name: "Geladeira Frost Free", Category: "eletrodomesticos"},
		{ID: "3", Name: "Notebook Gamer", Category: "eletronicos"},
	}))

	got, err := storage.SearchProducts(ctx, "smart tv", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)

	// Category matches too
	got, err = storage.SearchProducts(ctx, "eletronicos", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCheckoutDescriptorFallbackKeys(t *testing.T) {
	db := newTestDB(t)
	storage := NewCheckoutStorage(db, arbor.NewLogger())
	ctx := context.Background()

	byProduct := &models.CheckoutProcessDescriptor{
		ProductID: "sku-1",
		BaseURL:   "https://shop.example.com/checkout",
		Steps:     []models.CheckoutStep{{Index: 0, Name: "shipping"}},
	}
	require.NoError(t, storage.SaveProcess(ctx, byProduct))

	byCategory := &models.CheckoutProcessDescriptor{
		CategorySlug: "eletronicos",
		BaseURL:      "https://shop.example.com/checkout",
	}
	require.NoError(t, storage.SaveProcess(ctx, byCategory))

	got, err := storage.GetProcessByProduct(ctx, "sku-1")
	require.NoError(t, err)
	assert.Equal(t, "checkout:sku-1", got.Key)

	got, err = storage.GetProcessByCategory(ctx, "eletronicos")
	require.NoError(t, err)
	assert.Equal(t, "checkout:category:eletronicos", got.Key)

	_, err = storage.GetProcessByProduct(ctx, "sku-unknown")
	assert.Error(t, err)
}

func TestSessionMirror(t *testing.T) {
	db := newTestDB(t)
	storage := NewCheckoutStorage(db, arbor.NewLogger())
	ctx := context.Background()

	session := &models.CheckoutSession{
		ID:            "sess_1",
		UserID:        "user-1",
		ProductID:     "sku-1",
		State:         models.SessionStateCollecting,
		CollectedInfo: map[string]string{"email": "a@b.com"},
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, storage.SaveSession(ctx, session))

	got, err := storage.GetSession(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateCollecting, got.State)
	assert.Equal(t, "a@b.com", got.CollectedInfo["email"])

	require.NoError(t, storage.DeleteSession(ctx, "sess_1"))
	_, err = storage.GetSession(ctx, "sess_1")
	assert.Error(t, err)

	// Deleting an absent session is not an error
	assert.NoError(t, storage.DeleteSession(ctx, "sess_1"))
}

func TestCacheEntryTTL(t *testing.T) {
	db := newTestDB(t)
	storage := NewCacheStorage(db, arbor.NewLogger())
	ctx := context.Background()

	require.NoError(t, storage.Set(ctx, &models.CacheEntry{
		Key:      "abc123",
		Fields:   map[string]interface{}{"title": "x"},
		StoredAt: time.Now().Add(-48 * time.Hour),
	}))
	require.NoError(t, storage.Set(ctx, &models.CacheEntry{
		Key:    "def456",
		Fields: map[string]interface{}{"title": "y"},
	}))

	// Miss returns nil entry, nil error
	entry, err := storage.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, entry)

	entry, err = storage.Get(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.IsStale(24*time.Hour))

	purged, err := storage.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	entry, err = storage.Get(ctx, "def456")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, entry.IsStale(24*time.Hour))
}
