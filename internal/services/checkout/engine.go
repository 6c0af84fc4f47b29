package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
)

// Service drives checkout sessions over crawled process descriptors. Live
// sessions are held in memory for fast field resolution and mirrored to
// storage so they survive a restart.
type Service struct {
	mu        sync.Mutex
	sessions  map[string]*models.CheckoutSession
	config    *common.CheckoutConfig
	storage   interfaces.CheckoutStorage
	documents interfaces.DocumentStorage
	events    interfaces.EventService
	logger    arbor.ILogger
}

func NewService(config *common.CheckoutConfig, storage interfaces.CheckoutStorage, documents interfaces.DocumentStorage, events interfaces.EventService, logger arbor.ILogger) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("checkout config is required")
	}
	if storage == nil {
		return nil, fmt.Errorf("checkout storage is required")
	}

	s := &Service{
		sessions:  make(map[string]*models.CheckoutSession),
		config:    config,
		storage:   storage,
		documents: documents,
		events:    events,
		logger:    logger,
	}

	if err := s.restoreSessions(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to restore persisted sessions")
	}
	return s, nil
}

// restoreSessions reloads mirrored sessions after a restart, skipping any
// that expired while the process was down
func (s *Service) restoreSessions() error {
	persisted, err := s.storage.ListSessions(context.Background())
	if err != nil {
		return err
	}

	restored := 0
	for _, session := range persisted {
		if session.IsExpired(s.config.SessionExpiry) || session.State == models.SessionStateExpired {
			continue
		}
		s.sessions[session.ID] = session
		restored++
	}
	if restored > 0 {
		s.logger.Info().Int("count", restored).Msg("Restored checkout sessions")
	}
	return nil
}

// CreateSession starts a checkout session for a user and product. The product
// descriptor is preferred; when absent the product's category descriptor is
// used as fallback.
func (s *Service) CreateSession(ctx context.Context, userID, productID string) (*models.CheckoutSession, error) {
	if userID == "" || productID == "" {
		return nil, fmt.Errorf("user id and product id are required")
	}

	if _, err := s.descriptorFor(ctx, productID); err != nil {
		return nil, err
	}

	now := time.Now()
	session := &models.CheckoutSession{
		ID:            common.NewSessionID(),
		UserID:        userID,
		ProductID:     productID,
		State:         models.SessionStateCreated,
		CollectedInfo: make(map[string]string),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	if err := s.storage.SaveSession(ctx, session); err != nil {
		s.logger.Warn().Err(err).Str("session_id", session.ID).Msg("Failed to mirror session")
	}

	s.logger.Info().
		Str("session_id", session.ID).
		Str("product_id", productID).
		Msg("Checkout session created")
	return copySession(session), nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*models.CheckoutSession, error) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("checkout session %s not found", id)
	}
	return copySession(session), nil
}

// UpdateSessionInfo merges collected user data into the session and advances
// the state machine. The session becomes ready once the current step has no
// missing required fields.
func (s *Service) UpdateSessionInfo(ctx context.Context, id string, info map[string]string) (*models.CheckoutSession, error) {
	descriptor, session, err := s.sessionAndDescriptor(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	for k, v := range info {
		session.CollectedInfo[k] = v
	}
	session.UpdatedAt = time.Now()

	switch session.State {
	case models.SessionStateCreated, models.SessionStateCollecting, models.SessionStateReady:
		if len(missingInStep(currentStep(descriptor, session), session.CollectedInfo)) == 0 {
			session.State = models.SessionStateReady
		} else {
			session.State = models.SessionStateCollecting
		}
	}
	updated := copySession(session)
	s.mu.Unlock()

	if err := s.storage.SaveSession(ctx, updated); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to mirror session")
	}
	return updated, nil
}

// GetMissingRequiredFields lists required fields of the session's current
// step that cannot be filled from the collected info
func (s *Service) GetMissingRequiredFields(ctx context.Context, id string) ([]models.FieldDescriptor, error) {
	descriptor, session, err := s.sessionAndDescriptor(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return missingInStep(currentStep(descriptor, session), session.CollectedInfo), nil
}

// AddCompletedStep marks one descriptor step done so the session advances to
// the next step. The step must exist in the descriptor and have no missing
// required fields.
func (s *Service) AddCompletedStep(ctx context.Context, id, stepName string) (*models.CheckoutSession, error) {
	descriptor, session, err := s.sessionAndDescriptor(ctx, id)
	if err != nil {
		return nil, err
	}

	var step *models.CheckoutStep
	for i := range descriptor.Steps {
		if descriptor.Steps[i].Name == stepName {
			step = &descriptor.Steps[i]
			break
		}
	}
	if step == nil {
		return nil, fmt.Errorf("checkout step %q not in descriptor", stepName)
	}

	s.mu.Lock()
	if missing := missingInStep(step, session.CollectedInfo); len(missing) > 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("checkout step %q has %d missing required fields", stepName, len(missing))
	}
	session.AddCompletedStep(stepName)
	session.UpdatedAt = time.Now()

	switch session.State {
	case models.SessionStateCreated, models.SessionStateCollecting, models.SessionStateReady:
		if len(missingInStep(currentStep(descriptor, session), session.CollectedInfo)) == 0 {
			session.State = models.SessionStateReady
		} else {
			session.State = models.SessionStateCollecting
		}
	}
	updated := copySession(session)
	s.mu.Unlock()

	if err := s.storage.SaveSession(ctx, updated); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to mirror session")
	}

	s.logger.Debug().
		Str("session_id", id).
		Str("step", stepName).
		Msg("Checkout step completed")
	return updated, nil
}

// GenerateDeeplink builds the prefilled checkout URL for the session
func (s *Service) GenerateDeeplink(ctx context.Context, id string) (string, error) {
	descriptor, session, err := s.sessionAndDescriptor(ctx, id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return buildDeeplink(descriptor, session)
}

// CompleteCheckout marks every step done, moves the session to completed and
// returns the final prefilled link
func (s *Service) CompleteCheckout(ctx context.Context, id string) (string, error) {
	descriptor, session, err := s.sessionAndDescriptor(ctx, id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	for _, step := range descriptor.Steps {
		session.AddCompletedStep(step.Name)
	}
	session.State = models.SessionStateCompleted
	session.UpdatedAt = time.Now()
	link, linkErr := buildDeeplink(descriptor, session)
	updated := copySession(session)
	s.mu.Unlock()

	if linkErr != nil {
		return "", linkErr
	}
	if err := s.storage.SaveSession(ctx, updated); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to mirror session")
	}

	s.logger.Info().Str("session_id", id).Msg("Checkout completed")
	return link, nil
}

// CleanupExpiredSessions expires and removes sessions idle beyond window
func (s *Service) CleanupExpiredSessions(ctx context.Context, window time.Duration) (int, error) {
	s.mu.Lock()
	var expired []string
	for id, session := range s.sessions {
		if session.IsExpired(window) {
			session.State = models.SessionStateExpired
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, id := range expired {
		if err := s.storage.DeleteSession(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to delete mirrored session")
		}
	}

	if len(expired) > 0 {
		s.logger.Info().Int("count", len(expired)).Msg("Expired checkout sessions removed")
	}
	return len(expired), nil
}

// descriptorFor resolves the checkout descriptor for a product, falling back
// to its category's descriptor
func (s *Service) descriptorFor(ctx context.Context, productID string) (*models.CheckoutProcessDescriptor, error) {
	descriptor, err := s.storage.GetProcessByProduct(ctx, productID)
	if err == nil && descriptor != nil {
		return descriptor, nil
	}

	if s.documents != nil {
		if product, perr := s.documents.GetProduct(ctx, productID); perr == nil && product != nil && product.Category != "" {
			if descriptor, err = s.storage.GetProcessByCategory(ctx, common.Slugify(product.Category)); err == nil && descriptor != nil {
				return descriptor, nil
			}
		}
	}
	return nil, fmt.Errorf("no checkout process descriptor for product %s", productID)
}

func (s *Service) sessionAndDescriptor(ctx context.Context, id string) (*models.CheckoutProcessDescriptor, *models.CheckoutSession, error) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("checkout session %s not found", id)
	}

	descriptor, err := s.descriptorFor(ctx, session.ProductID)
	if err != nil {
		return nil, nil, err
	}
	return descriptor, session, nil
}

// currentStep is the first descriptor step the session has not completed.
// A fully completed flow stays on the last step.
func currentStep(descriptor *models.CheckoutProcessDescriptor, session *models.CheckoutSession) *models.CheckoutStep {
	if len(descriptor.Steps) == 0 {
		return nil
	}
	for i := range descriptor.Steps {
		if !session.HasCompletedStep(descriptor.Steps[i].Name) {
			return &descriptor.Steps[i]
		}
	}
	return &descriptor.Steps[len(descriptor.Steps)-1]
}

func missingInStep(step *models.CheckoutStep, info map[string]string) []models.FieldDescriptor {
	if step == nil {
		return nil
	}
	var missing []models.FieldDescriptor
	for _, form := range step.Forms {
		for _, field := range form.Fields {
			if field.Required && field.Type != models.FieldTypePassword && !fieldSatisfied(field, info) {
				missing = append(missing, field)
			}
		}
	}
	return missing
}

func copySession(session *models.CheckoutSession) *models.CheckoutSession {
	clone := *session
	clone.CollectedInfo = make(map[string]string, len(session.CollectedInfo))
	for k, v := range session.CollectedInfo {
		clone.CollectedInfo[k] = v
	}
	clone.CompletedSteps = append([]string(nil), session.CompletedSteps...)
	return &clone
}
