package checkout

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/ternarybob/merx/internal/models"
)

// buildDeeplink composes the descriptor's base URL with one query parameter
// per resolvable field across every step of the flow, plus the session id and
// a cache-busting timestamp. Password values are never emitted.
func buildDeeplink(descriptor *models.CheckoutProcessDescriptor, session *models.CheckoutSession) (string, error) {
	base, err := url.Parse(descriptor.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid checkout base url %q: %w", descriptor.BaseURL, err)
	}

	params := base.Query()
	for _, field := range collectLinkedFields(descriptor) {
		if field.Type == models.FieldTypePassword {
			continue
		}
		if value, ok := mapFieldValue(field, session.CollectedInfo); ok {
			params.Set(field.Name, value)
		}
	}
	params.Set("session_id", session.ID)
	params.Set("ts", strconv.FormatInt(time.Now().UnixMilli(), 10))

	base.RawQuery = params.Encode()
	return base.String(), nil
}

// collectLinkedFields walks the steps following each step's next-step link,
// so fields from later pages of the flow are prefilled too. Steps without an
// explicit link fall back to crawl order. A visited set guards against
// descriptors whose links loop.
func collectLinkedFields(descriptor *models.CheckoutProcessDescriptor) []models.FieldDescriptor {
	if len(descriptor.Steps) == 0 {
		return nil
	}

	byURL := make(map[string]*models.CheckoutStep, len(descriptor.Steps))
	for i := range descriptor.Steps {
		if u := descriptor.Steps[i].URL; u != "" {
			byURL[u] = &descriptor.Steps[i]
		}
	}

	var fields []models.FieldDescriptor
	visited := make(map[int]bool, len(descriptor.Steps))
	step := &descriptor.Steps[0]
	for step != nil && !visited[step.Index] {
		visited[step.Index] = true
		for _, form := range step.Forms {
			fields = append(fields, form.Fields...)
		}

		next := byURL[step.NextStepURL]
		if next == nil {
			next = stepAfter(descriptor, step.Index)
		}
		step = next
	}

	// Steps unreachable through the links still contribute their fields
	for i := range descriptor.Steps {
		if !visited[descriptor.Steps[i].Index] {
			for _, form := range descriptor.Steps[i].Forms {
				fields = append(fields, form.Fields...)
			}
		}
	}
	return fields
}

func stepAfter(descriptor *models.CheckoutProcessDescriptor, index int) *models.CheckoutStep {
	for i := range descriptor.Steps {
		if descriptor.Steps[i].Index == index+1 {
			return &descriptor.Steps[i]
		}
	}
	return nil
}
