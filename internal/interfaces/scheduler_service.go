package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/merx/internal/models"
)

// TaskHandler executes the body of one crawl task kind
type TaskHandler func(ctx context.Context, task *models.CrawlTask) error

// RetryDecision is the classifier's verdict for a failed task attempt
type RetryDecision int

const (
	// DecisionRetry re-enqueues the task after a delay
	DecisionRetry RetryDecision = iota
	// DecisionSkip marks the task failed and moves on
	DecisionSkip
	// DecisionAbort marks the task failed for a non-recoverable condition
	DecisionAbort
)

// Classification carries the decision plus an optional delay override.
// A zero Delay means the scheduler applies its default backoff.
type Classification struct {
	Decision RetryDecision
	Delay    time.Duration
	Reason   string
}

// ErrorClassifier decides how the scheduler responds to a task failure
type ErrorClassifier interface {
	Classify(err error, task *models.CrawlTask, retries int) Classification
}

// SchedulerStats is a point-in-time snapshot of queue activity
type SchedulerStats struct {
	Queued    int           `json:"queued"`
	Active    int           `json:"active"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Retried   int           `json:"retried"`
	Paused    bool          `json:"paused"`
	Elapsed   time.Duration `json:"elapsed"`
}

// SchedulerService owns the crawl task queue and its dispatch loop
type SchedulerService interface {
	// RegisterHandler binds a task kind to its execution body
	RegisterHandler(kind models.TaskKind, handler TaskHandler)

	// Submit validates and enqueues a task, returning its assigned ID
	Submit(task *models.CrawlTask) (string, error)

	// Start launches the dispatch loop
	Start(ctx context.Context) error

	// Pause stops dequeuing without interrupting in-flight tasks
	Pause()

	// Resume restarts dequeuing after a pause
	Resume()

	// Clear drops all queued tasks, leaving active ones untouched
	Clear() int

	// GetTask returns a queued, active or recently finished task by ID
	GetTask(id string) (*models.CrawlTask, bool)

	// Stats returns a snapshot of queue counters
	Stats() SchedulerStats

	// Stop drains the dispatch loop and waits for active tasks
	Stop() error
}
