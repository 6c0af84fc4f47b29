package interfaces

import (
	"context"

	"github.com/ternarybob/merx/internal/models"
)

// ExtractOptions tunes a single extraction run
type ExtractOptions struct {
	// Shape optionally hints the desired output structure as an example
	// document. Nil means free-form extraction.
	Shape map[string]interface{}

	// ForceDOM skips the completion service and uses selector probes only
	ForceDOM bool
}

// ExtractionService turns raw page markup into a structured document.
// Recoverable problems degrade the output rather than failing the call; an
// error is returned only for empty markup or an empty goal.
type ExtractionService interface {
	Extract(ctx context.Context, rawMarkup string, goal string, opts ExtractOptions) (*models.ExtractionDocument, error)
}
