package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
)

type stubCheckoutStorage struct {
	byProduct  map[string]*models.CheckoutProcessDescriptor
	byCategory map[string]*models.CheckoutProcessDescriptor
	sessions   map[string]*models.CheckoutSession
}

func newStubCheckoutStorage() *stubCheckoutStorage {
	return &stubCheckoutStorage{
		byProduct:  make(map[string]*models.CheckoutProcessDescriptor),
		byCategory: make(map[string]*models.CheckoutProcessDescriptor),
		sessions:   make(map[string]*models.CheckoutSession),
	}
}

func (s *stubCheckoutStorage) SaveProcess(ctx context.Context, d *models.CheckoutProcessDescriptor) error {
	if d.ProductID != "" {
		s.byProduct[d.ProductID] = d
	}
	if d.CategorySlug != "" {
		s.byCategory[d.CategorySlug] = d
	}
	return nil
}

func (s *stubCheckoutStorage) GetProcessByProduct(ctx context.Context, productID string) (*models.CheckoutProcessDescriptor, error) {
	if d, ok := s.byProduct[productID]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("not found")
}

func (s *stubCheckoutStorage) GetProcessByCategory(ctx context.Context, slug string) (*models.CheckoutProcessDescriptor, error) {
	if d, ok := s.byCategory[slug]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("not found")
}

func (s *stubCheckoutStorage) SaveSession(ctx context.Context, session *models.CheckoutSession) error {
	s.sessions[session.ID] = session
	return nil
}

func (s *stubCheckoutStorage) GetSession(ctx context.Context, id string) (*models.CheckoutSession, error) {
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	return nil, fmt.Errorf("not found")
}

func (s *stubCheckoutStorage) ListSessions(ctx context.Context) ([]*models.CheckoutSession, error) {
	var out []*models.CheckoutSession
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

func (s *stubCheckoutStorage) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type stubDocumentStorage struct {
	interfaces.DocumentStorage
	products map[string]*models.ProductDocument
}

func (s *stubDocumentStorage) GetProduct(ctx context.Context, id string) (*models.ProductDocument, error) {
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("not found")
}

func testDescriptor(productID string) *models.CheckoutProcessDescriptor {
	return &models.CheckoutProcessDescriptor{
		Key:       "checkout:" + productID,
		ProductID: productID,
		BaseURL:   "https://shop.example.com.br/checkout",
		Steps: []models.CheckoutStep{
			{
				Index: 0,
				Name:  "identification",
				URL:   "https://shop.example.com.br/checkout/id",
				Forms: []models.FormDescriptor{{
					Fields: []models.FieldDescriptor{
						{Name: "fullName", Type: models.FieldTypeText, Required: true, Label: "Nome completo"},
						{Name: "email", Type: models.FieldTypeEmail, Required: true},
						{Name: "cep", Type: models.FieldTypeText, Required: true, Label: "CEP"},
						{Name: "senha", Type: models.FieldTypePassword, Required: true},
					},
				}},
				NextStepURL: "https://shop.example.com.br/checkout/pay",
			},
			{
				Index: 1,
				Name:  "payment",
				URL:   "https://shop.example.com.br/checkout/pay",
				Forms: []models.FormDescriptor{{
					Fields: []models.FieldDescriptor{
						{Name: "installments", Type: models.FieldTypeSelect, Required: true, Options: []models.FieldOption{
							{Value: "", Text: "Selecione"},
							{Value: "1x", Text: "1x sem juros"},
							{Value: "3x", Text: "3x sem juros"},
						}},
						{Name: "terms", Type: models.FieldTypeCheckbox, Required: false, Label: "Aceito os termos"},
					},
				}},
			},
		},
		CrawledAt: time.Now(),
	}
}

func newTestService(t *testing.T, storage *stubCheckoutStorage) *Service {
	t.Helper()
	cfg := &common.CheckoutConfig{SessionExpiry: 30 * time.Minute}
	svc, err := NewService(cfg, storage, &stubDocumentStorage{products: map[string]*models.ProductDocument{}}, nil, arbor.NewLogger())
	require.NoError(t, err)
	return svc
}

func TestCreateSessionRequiresDescriptor(t *testing.T) {
	svc := newTestService(t, newStubCheckoutStorage())

	_, err := svc.CreateSession(context.Background(), "user-1", "prod-unknown")
	assert.Error(t, err)
}

func TestCreateSessionCategoryFallback(t *testing.T) {
	storage := newStubCheckoutStorage()
	descriptor := testDescriptor("")
	descriptor.CategorySlug = "notebooks"
	require.NoError(t, storage.SaveProcess(context.Background(), descriptor))

	cfg := &common.CheckoutConfig{SessionExpiry: 30 * time.Minute}
	docs := &stubDocumentStorage{products: map[string]*models.ProductDocument{
		"prod-9": {ID: "prod-9", Category: "Notebooks"},
	}}
	svc, err := NewService(cfg, storage, docs, nil, arbor.NewLogger())
	require.NoError(t, err)

	session, err := svc.CreateSession(context.Background(), "user-1", "prod-9")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateCreated, session.State)
}

func TestMissingRequiredFieldsBeforeAndAfterUpdate(t *testing.T) {
	storage := newStubCheckoutStorage()
	require.NoError(t, storage.SaveProcess(context.Background(), testDescriptor("prod-1")))
	svc := newTestService(t, storage)

	session, err := svc.CreateSession(context.Background(), "user-1", "prod-1")
	require.NoError(t, err)

	missing, err := svc.GetMissingRequiredFields(context.Background(), session.ID)
	require.NoError(t, err)
	names := fieldNames(missing)
	assert.Contains(t, names, "fullName")
	assert.Contains(t, names, "email")
	assert.Contains(t, names, "cep")
	// Password fields are never fillable and never reported as missing
	assert.NotContains(t, names, "senha")

	updated, err := svc.UpdateSessionInfo(context.Background(), session.ID, map[string]string{
		"fullName": "Ana Souza",
		"email":    "ana@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateCollecting, updated.State)

	missing, err = svc.GetMissingRequiredFields(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cep"}, fieldNames(missing))
}

func TestZipSynonymSatisfiesCep(t *testing.T) {
	storage := newStubCheckoutStorage()
	require.NoError(t, storage.SaveProcess(context.Background(), testDescriptor("prod-1")))
	svc := newTestService(t, storage)

	session, err := svc.CreateSession(context.Background(), "user-1", "prod-1")
	require.NoError(t, err)

	updated, err := svc.UpdateSessionInfo(context.Background(), session.ID, map[string]string{
		"fullName": "Ana Souza",
		"email":    "ana@example.com",
		"zipCode":  "01310-100",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateReady, updated.State)

	missing, err := svc.GetMissingRequiredFields(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestDeeplinkNeverContainsPasswordValues(t *testing.T) {
	storage := newStubCheckoutStorage()
	require.NoError(t, storage.SaveProcess(context.Background(), testDescriptor("prod-1")))
	svc := newTestService(t, storage)

	session, err := svc.CreateSession(context.Background(), "user-1", "prod-1")
	require.NoError(t, err)

	_, err = svc.UpdateSessionInfo(context.Background(), session.ID, map[string]string{
		"fullName": "Ana Souza",
		"email":    "ana@example.com",
		"zipCode":  "01310-100",
		"senha":    "hunter2",
	})
	require.NoError(t, err)

	link, err := svc.GenerateDeeplink(context.Background(), session.ID)
	require.NoError(t, err)

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	params := parsed.Query()

	assert.NotContains(t, link, "hunter2")
	assert.Empty(t, params.Get("senha"))
	assert.Equal(t, "Ana Souza", params.Get("fullName"))
	assert.Equal(t, "ana@example.com", params.Get("email"))
	assert.Equal(t, "01310-100", params.Get("cep"))
	assert.Equal(t, session.ID, params.Get("session_id"))
	assert.NotEmpty(t, params.Get("ts"))
}

func TestDeeplinkPrefillsLaterSteps(t *testing.T) {
	storage := newStubCheckoutStorage()
	require.NoError(t, storage.SaveProcess(context.Background(), testDescriptor("prod-1")))
	svc := newTestService(t, storage)

	session, err := svc.CreateSession(context.Background(), "user-1", "prod-1")
	require.NoError(t, err)

	_, err = svc.UpdateSessionInfo(context.Background(), session.ID, map[string]string{
		"installments": "3x",
	})
	require.NoError(t, err)

	link, err := svc.GenerateDeeplink(context.Background(), session.ID)
	require.NoError(t, err)

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	params := parsed.Query()

	// The payment step comes after the current one but is still prefilled
	assert.Equal(t, "3x", params.Get("installments"))
	// Terms acceptance checkbox is always on
	assert.Equal(t, "on", params.Get("terms"))
}

func TestStepByStepAdvancement(t *testing.T) {
	storage := newStubCheckoutStorage()
	descriptor := testDescriptor("prod-1")
	// A required field on the second step with no synonym, only visible
	// once the session advances past identification
	descriptor.Steps[1].Forms[0].Fields = append(descriptor.Steps[1].Forms[0].Fields,
		models.FieldDescriptor{Name: "cpf", Type: models.FieldTypeText, Required: true, Label: "CPF"})
	require.NoError(t, storage.SaveProcess(context.Background(), descriptor))
	svc := newTestService(t, storage)

	session, err := svc.CreateSession(context.Background(), "user-1", "prod-1")
	require.NoError(t, err)

	// Identification is still incomplete, advancing is rejected
	_, err = svc.AddCompletedStep(context.Background(), session.ID, "identification")
	assert.Error(t, err)

	updated, err := svc.UpdateSessionInfo(context.Background(), session.ID, map[string]string{
		"fullName": "Ana Souza",
		"email":    "ana@example.com",
		"zipCode":  "01310-100",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateReady, updated.State)

	updated, err = svc.AddCompletedStep(context.Background(), session.ID, "identification")
	require.NoError(t, err)
	assert.True(t, updated.HasCompletedStep("identification"))
	// Payment still needs cpf and installments, so ready is revoked
	assert.Equal(t, models.SessionStateCollecting, updated.State)

	missing, err := svc.GetMissingRequiredFields(context.Background(), session.ID)
	require.NoError(t, err)
	names := fieldNames(missing)
	assert.Contains(t, names, "cpf")
	assert.Contains(t, names, "installments")
	assert.NotContains(t, names, "fullName")

	updated, err = svc.UpdateSessionInfo(context.Background(), session.ID, map[string]string{
		"cpf":          "123.456.789-09",
		"installments": "3x",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateReady, updated.State)

	updated, err = svc.AddCompletedStep(context.Background(), session.ID, "payment")
	require.NoError(t, err)
	assert.True(t, updated.HasCompletedStep("payment"))

	_, err = svc.AddCompletedStep(context.Background(), session.ID, "review")
	assert.Error(t, err)
}

func TestCompleteCheckout(t *testing.T) {
	storage := newStubCheckoutStorage()
	require.NoError(t, storage.SaveProcess(context.Background(), testDescriptor("prod-1")))
	svc := newTestService(t, storage)

	session, err := svc.CreateSession(context.Background(), "user-1", "prod-1")
	require.NoError(t, err)

	link, err := svc.CompleteCheckout(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://shop.example.com.br/checkout?"))

	final, err := svc.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStateCompleted, final.State)
	assert.True(t, final.HasCompletedStep("identification"))
	assert.True(t, final.HasCompletedStep("payment"))
}

func TestCleanupExpiredSessions(t *testing.T) {
	storage := newStubCheckoutStorage()
	require.NoError(t, storage.SaveProcess(context.Background(), testDescriptor("prod-1")))
	svc := newTestService(t, storage)

	stale, err := svc.CreateSession(context.Background(), "user-1", "prod-1")
	require.NoError(t, err)
	fresh, err := svc.CreateSession(context.Background(), "user-2", "prod-1")
	require.NoError(t, err)

	svc.mu.Lock()
	svc.sessions[stale.ID].UpdatedAt = time.Now().Add(-31 * time.Minute)
	svc.sessions[fresh.ID].UpdatedAt = time.Now().Add(-29 * time.Minute)
	svc.mu.Unlock()

	removed, err := svc.CleanupExpiredSessions(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = svc.GetSession(context.Background(), stale.ID)
	assert.Error(t, err)
	_, err = svc.GetSession(context.Background(), fresh.ID)
	assert.NoError(t, err)
}

func TestSessionsRestoredFromStorage(t *testing.T) {
	storage := newStubCheckoutStorage()
	require.NoError(t, storage.SaveProcess(context.Background(), testDescriptor("prod-1")))

	persisted := &models.CheckoutSession{
		ID:            "sess_persist",
		UserID:        "user-1",
		ProductID:     "prod-1",
		State:         models.SessionStateCollecting,
		CollectedInfo: map[string]string{"email": "ana@example.com"},
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, storage.SaveSession(context.Background(), persisted))

	svc := newTestService(t, storage)
	restored, err := svc.GetSession(context.Background(), "sess_persist")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", restored.CollectedInfo["email"])
}

func fieldNames(fields []models.FieldDescriptor) []string {
	var names []string
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return names
}
