package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/merx/internal/models"
)

// CheckoutService manages checkout sessions over crawled process descriptors.
// Missing user data is never an error: callers discover gaps through
// GetMissingRequiredFields and fill them with UpdateSessionInfo.
type CheckoutService interface {
	// CreateSession starts a session for a user and product. Fails only when
	// no checkout descriptor exists for the product or its category.
	CreateSession(ctx context.Context, userID, productID string) (*models.CheckoutSession, error)

	// GetSession returns a live session by ID
	GetSession(ctx context.Context, id string) (*models.CheckoutSession, error)

	// UpdateSessionInfo merges collected user data into the session
	UpdateSessionInfo(ctx context.Context, id string, info map[string]string) (*models.CheckoutSession, error)

	// GetMissingRequiredFields lists required descriptor fields of the
	// current step not yet satisfiable from the session's collected info
	GetMissingRequiredFields(ctx context.Context, id string) ([]models.FieldDescriptor, error)

	// AddCompletedStep marks the named step done, advancing the session to
	// the next descriptor step. Fails while the step still has missing
	// required fields.
	AddCompletedStep(ctx context.Context, id, stepName string) (*models.CheckoutSession, error)

	// GenerateDeeplink builds the prefilled checkout URL for the session
	GenerateDeeplink(ctx context.Context, id string) (string, error)

	// CompleteCheckout marks the session completed and returns the final link
	CompleteCheckout(ctx context.Context, id string) (string, error)

	// CleanupExpiredSessions expires and removes sessions idle beyond window,
	// returning how many were removed
	CleanupExpiredSessions(ctx context.Context, window time.Duration) (int, error)
}
