package models

import "time"

// FieldType classifies a checkout form input for mapping purposes
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeEmail    FieldType = "email"
	FieldTypeTel      FieldType = "tel"
	FieldTypePassword FieldType = "password"
	FieldTypeNumber   FieldType = "number"
	FieldTypeSelect   FieldType = "select"
	FieldTypeRadio    FieldType = "radio"
	FieldTypeCheckbox FieldType = "checkbox"
	FieldTypeHidden   FieldType = "hidden"
	FieldTypeTextarea FieldType = "textarea"
)

// FieldOption is one choice of a select or radio group
type FieldOption struct {
	Value string `json:"value"`
	Text  string `json:"text"`
}

// FieldDescriptor describes one input captured from a checkout form
type FieldDescriptor struct {
	Name     string        `json:"name"`
	Type     FieldType     `json:"type"`
	Required bool          `json:"required"`
	Label    string        `json:"label,omitempty"`
	Value    string        `json:"value,omitempty"` // Default value observed during the crawl
	Options  []FieldOption `json:"options,omitempty"`
}

// FormDescriptor groups the fields of one form on a checkout step
type FormDescriptor struct {
	Action string            `json:"action,omitempty"`
	Fields []FieldDescriptor `json:"fields"`
}

// CheckoutStep is one page of the multi-step purchase flow. Index reflects
// crawl order and is never reordered.
type CheckoutStep struct {
	Index       int              `json:"index"`
	Name        string           `json:"name"`
	URL         string           `json:"url,omitempty"`
	NextStepURL string           `json:"next_step_url,omitempty"`
	Forms       []FormDescriptor `json:"forms"`
}

// CheckoutProcessDescriptor is the crawled shape of a site's checkout flow,
// persisted per product with a category-level fallback. The checkout engine
// treats descriptors as read-only.
type CheckoutProcessDescriptor struct {
	Key          string         `json:"key"` // "checkout:<product-id>" or "checkout:category:<slug>"
	ProductID    string         `json:"product_id,omitempty"`
	CategorySlug string         `json:"category_slug,omitempty"`
	BaseURL      string         `json:"base_url"`
	Steps        []CheckoutStep `json:"steps"`
	CrawledAt    time.Time      `json:"crawled_at"`
}

// AllFields walks every step and form in order
func (d *CheckoutProcessDescriptor) AllFields() []FieldDescriptor {
	var fields []FieldDescriptor
	for _, step := range d.Steps {
		for _, form := range step.Forms {
			fields = append(fields, form.Fields...)
		}
	}
	return fields
}

// SessionState represents the lifecycle stage of a checkout session
type SessionState string

const (
	SessionStateCreated    SessionState = "created"
	SessionStateCollecting SessionState = "collecting"
	SessionStateReady      SessionState = "ready"
	SessionStateCompleted  SessionState = "completed"
	SessionStateExpired    SessionState = "expired"
)

// CheckoutSession tracks one user's progress through a product's checkout
// flow. The checkout engine is the sole mutator.
type CheckoutSession struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	ProductID      string            `json:"product_id"`
	State          SessionState      `json:"state"`
	CollectedInfo  map[string]string `json:"collected_info"`
	CompletedSteps []string          `json:"completed_steps"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// IsExpired reports whether the session has been idle beyond window
func (s *CheckoutSession) IsExpired(window time.Duration) bool {
	return time.Since(s.UpdatedAt) > window
}

// AddCompletedStep records the named step as done, ignoring duplicates
func (s *CheckoutSession) AddCompletedStep(name string) {
	if !s.HasCompletedStep(name) {
		s.CompletedSteps = append(s.CompletedSteps, name)
	}
}

// HasCompletedStep reports whether the named step is done
func (s *CheckoutSession) HasCompletedStep(name string) bool {
	for _, step := range s.CompletedSteps {
		if step == name {
			return true
		}
	}
	return false
}
