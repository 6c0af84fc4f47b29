package models

import (
	"fmt"
	"time"
)

// TaskStatus represents the state of a crawl task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskKind identifies the crawl operation a task performs
type TaskKind string

const (
	TaskKindCategory TaskKind = "category" // Crawl a category listing page
	TaskKindProduct  TaskKind = "product"  // Crawl a single product detail page
	TaskKindBatch    TaskKind = "batch"    // Crawl a set of products in one task
	TaskKindCheckout TaskKind = "checkout" // Walk and capture the checkout flow
	TaskKindSearch   TaskKind = "search"   // Run a site search and capture results
	TaskKindUpdate   TaskKind = "update"   // Refresh stale product documents
)

// TaskOptions carries per-task overrides of scheduler defaults
type TaskOptions struct {
	// MaxRetries caps retry attempts for this task; -1 means use the
	// scheduler's configured default
	MaxRetries int `json:"max_retries"`

	// Timeout bounds a single execution attempt; zero means no task-level
	// timeout beyond the browser's own navigation timeout
	Timeout time.Duration `json:"timeout"`
}

// CrawlTask is one unit of crawl work flowing through the scheduler. Tasks
// are mutated only by the scheduler after submission; handlers read the
// payload and produce side effects through storage and events.
type CrawlTask struct {
	ID          string                 `json:"id"`
	Kind        TaskKind               `json:"kind" validate:"required"`
	Payload     map[string]interface{} `json:"payload"`
	Options     TaskOptions            `json:"options"`
	Priority    int                    `json:"priority"` // Lower number runs first
	Status      TaskStatus             `json:"status"`
	Retries     int                    `json:"retries"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	LastError   string                 `json:"last_error,omitempty"`
}

// NewCrawlTask creates a pending task with default options
func NewCrawlTask(kind TaskKind, payload map[string]interface{}) *CrawlTask {
	return &CrawlTask{
		Kind:      kind,
		Payload:   payload,
		Options:   TaskOptions{MaxRetries: -1},
		Status:    TaskStatusPending,
		CreatedAt: time.Now(),
	}
}

// PayloadString returns a string payload value, empty when absent or not a
// string
func (t *CrawlTask) PayloadString(key string) string {
	if t.Payload == nil {
		return ""
	}
	if v, ok := t.Payload[key].(string); ok {
		return v
	}
	return ""
}

// PayloadStrings returns a string-slice payload value. Accepts both []string
// and []interface{} since payloads round-trip through JSON.
func (t *CrawlTask) PayloadStrings(key string) []string {
	if t.Payload == nil {
		return nil
	}
	switch v := t.Payload[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// IsTerminal reports whether the task has finished for good
func (t *CrawlTask) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// EffectiveMaxRetries resolves the task's retry budget against the
// scheduler default
func (t *CrawlTask) EffectiveMaxRetries(schedulerDefault int) int {
	if t.Options.MaxRetries < 0 {
		return schedulerDefault
	}
	return t.Options.MaxRetries
}

// Validate checks the task is submittable
func (t *CrawlTask) Validate() error {
	if t.Kind == "" {
		return fmt.Errorf("task kind is required")
	}
	switch t.Kind {
	case TaskKindCategory, TaskKindProduct, TaskKindBatch, TaskKindCheckout, TaskKindSearch, TaskKindUpdate:
		return nil
	}
	return fmt.Errorf("unknown task kind: %s", t.Kind)
}
