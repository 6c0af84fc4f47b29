package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merx/internal/common"
	"github.com/ternarybob/merx/internal/interfaces"
	"github.com/ternarybob/merx/internal/models"
)

// Service runs the crawl task queue: a priority dispatch loop with a bounded
// worker pool, retry classification and a bounded history of finished tasks.
type Service struct {
	mu         sync.Mutex
	config     *common.SchedulerConfig
	queue      *taskQueue
	handlers   map[models.TaskKind]interfaces.TaskHandler
	classifier interfaces.ErrorClassifier
	events     interfaces.EventService
	logger     arbor.ILogger
	metrics    *metrics

	active       map[string]*models.CrawlTask
	history      []*models.CrawlTask
	retryTimers  map[string]*time.Timer
	pendingRetry map[string]*models.CrawlTask

	succeeded int
	failed    int
	retried   int
	paused    bool
	started   bool
	startedAt time.Time

	wake    chan struct{}
	stopCh  chan struct{}
	runCtx  context.Context
	wg      sync.WaitGroup
	workers sync.WaitGroup
}

func NewService(config *common.SchedulerConfig, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		config:       config,
		queue:        newTaskQueue(),
		handlers:     make(map[models.TaskKind]interfaces.TaskHandler),
		classifier:   newClassifier(config),
		events:       events,
		logger:       logger,
		metrics:      newMetrics(),
		active:       make(map[string]*models.CrawlTask),
		retryTimers:  make(map[string]*time.Timer),
		pendingRetry: make(map[string]*models.CrawlTask),
		wake:         make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
}

// RegisterHandler binds a task kind to its execution body. Later
// registrations replace earlier ones.
func (s *Service) RegisterHandler(kind models.TaskKind, handler interfaces.TaskHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = handler
}

// Submit validates and enqueues a task, returning its assigned ID
func (s *Service) Submit(task *models.CrawlTask) (string, error) {
	if task == nil {
		return "", common.NewValidationError("submit", fmt.Errorf("task is nil"))
	}
	if err := task.Validate(); err != nil {
		return "", common.NewValidationError("submit", err)
	}

	s.mu.Lock()
	if task.ID == "" {
		task.ID = common.NewTaskID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	task.Status = models.TaskStatusPending
	s.queue.Enqueue(task)
	s.metrics.queued.Set(float64(s.queue.Len()))
	s.mu.Unlock()

	s.metrics.submitted.WithLabelValues(string(task.Kind)).Inc()
	s.logger.Debug().
		Str("task_id", task.ID).
		Str("kind", string(task.Kind)).
		Int("priority", task.Priority).
		Msg("Task submitted")

	s.signalWake()
	return task.ID, nil
}

// Start launches the dispatch loop. It returns immediately; the loop runs
// until Stop or context cancellation.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	s.startedAt = time.Now()
	s.runCtx = ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go s.dispatchLoop(ctx)

	s.logger.Info().
		Int("max_active", s.config.MaxActiveTasks).
		Msg("Scheduler started")
	return nil
}

func (s *Service) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		task := s.tryDequeue()
		if task != nil {
			s.workers.Add(1)
			go s.runTask(ctx, task)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.wake:
		case <-time.After(s.config.DequeueBackoff):
		}
	}
}

// tryDequeue pops the next task when the scheduler is running and the
// worker pool has capacity
func (s *Service) tryDequeue() *models.CrawlTask {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || len(s.active) >= s.config.MaxActiveTasks {
		return nil
	}
	task := s.queue.Dequeue()
	if task == nil {
		return nil
	}

	now := time.Now()
	task.Status = models.TaskStatusProcessing
	task.StartedAt = &now
	s.active[task.ID] = task
	s.metrics.queued.Set(float64(s.queue.Len()))
	s.metrics.active.Set(float64(len(s.active)))
	return task
}

func (s *Service) runTask(ctx context.Context, task *models.CrawlTask) {
	defer s.workers.Done()

	s.mu.Lock()
	handler, ok := s.handlers[task.Kind]
	s.mu.Unlock()

	var err error
	if !ok {
		err = common.NewValidationError("dispatch", fmt.Errorf("no handler registered for kind %q", task.Kind))
	} else {
		taskCtx := ctx
		if task.Options.Timeout > 0 {
			var cancel context.CancelFunc
			taskCtx, cancel = context.WithTimeout(ctx, task.Options.Timeout)
			defer cancel()
		}
		err = handler(taskCtx, task)
	}

	if err == nil {
		s.finishTask(task, models.TaskStatusCompleted, "")
		s.metrics.succeeded.WithLabelValues(string(task.Kind)).Inc()
		s.publish(interfaces.EventTaskCompleted, map[string]interface{}{
			"task_id": task.ID,
			"kind":    string(task.Kind),
		})
		s.signalWake()
		return
	}

	s.handleFailure(task, err)
	s.signalWake()
}

// handleFailure consults the classifier and either re-enqueues the task
// after a delay or marks it terminally failed
func (s *Service) handleFailure(task *models.CrawlTask, err error) {
	classification := s.classifier.Classify(err, task, task.Retries)

	if classification.Decision == interfaces.DecisionRetry {
		delay := classification.Delay
		if delay <= 0 {
			delay = s.config.RetryBaseDelay
		}

		s.mu.Lock()
		delete(s.active, task.ID)
		s.metrics.active.Set(float64(len(s.active)))
		task.Retries++
		task.Priority++ // retried work yields to fresh submissions
		task.Status = models.TaskStatusPending
		task.LastError = err.Error()
		s.retried++
		s.pendingRetry[task.ID] = task
		s.retryTimers[task.ID] = time.AfterFunc(delay, func() { s.requeue(task) })
		s.mu.Unlock()

		s.metrics.retried.WithLabelValues(string(task.Kind)).Inc()
		s.logger.Warn().
			Str("task_id", task.ID).
			Str("kind", string(task.Kind)).
			Str("reason", classification.Reason).
			Int("retries", task.Retries).
			Dur("delay", delay).
			Err(err).
			Msg("Task retry scheduled")
		return
	}

	s.finishTask(task, models.TaskStatusFailed, err.Error())
	s.metrics.failed.WithLabelValues(string(task.Kind)).Inc()
	s.logger.Error().
		Str("task_id", task.ID).
		Str("kind", string(task.Kind)).
		Str("reason", classification.Reason).
		Err(err).
		Msg("Task failed")
	s.publish(interfaces.EventTaskFailed, map[string]interface{}{
		"task_id": task.ID,
		"kind":    string(task.Kind),
		"error":   err.Error(),
		"reason":  classification.Reason,
	})
	s.publish(interfaces.EventError, map[string]interface{}{
		"type":    string(common.KindOf(err)),
		"task_id": task.ID,
		"kind":    string(task.Kind),
		"error":   err.Error(),
	})
}

func (s *Service) requeue(task *models.CrawlTask) {
	s.mu.Lock()
	if _, waiting := s.pendingRetry[task.ID]; !waiting {
		// Clear took the task while the timer was firing
		s.mu.Unlock()
		return
	}
	delete(s.pendingRetry, task.ID)
	delete(s.retryTimers, task.ID)
	select {
	case <-s.stopCh:
		s.mu.Unlock()
		return
	default:
	}
	s.queue.Enqueue(task)
	s.metrics.queued.Set(float64(s.queue.Len()))
	s.mu.Unlock()
	s.signalWake()
}

func (s *Service) finishTask(task *models.CrawlTask, status models.TaskStatus, lastError string) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, task.ID)
	s.metrics.active.Set(float64(len(s.active)))
	task.Status = status
	task.CompletedAt = &now
	task.LastError = lastError

	switch status {
	case models.TaskStatusCompleted:
		s.succeeded++
	case models.TaskStatusFailed:
		s.failed++
	}

	s.appendHistoryLocked(task)
}

func (s *Service) appendHistoryLocked(task *models.CrawlTask) {
	s.history = append(s.history, task)
	if s.config.HistorySize > 0 && len(s.history) > s.config.HistorySize {
		s.history = s.history[len(s.history)-s.config.HistorySize:]
	}
}

// Pause stops dequeuing without interrupting in-flight tasks
func (s *Service) Pause() {
	s.mu.Lock()
	wasPaused := s.paused
	s.paused = true
	s.mu.Unlock()

	if !wasPaused {
		s.logger.Info().Msg("Scheduler paused")
		s.publish(interfaces.EventQueuePaused, nil)
	}
}

// Resume restarts dequeuing after a pause
func (s *Service) Resume() {
	s.mu.Lock()
	wasPaused := s.paused
	s.paused = false
	s.mu.Unlock()

	if wasPaused {
		s.logger.Info().Msg("Scheduler resumed")
		s.publish(interfaces.EventQueueResumed, nil)
		s.signalWake()
	}
}

// Clear drops all queued tasks and any waiting on a retry timer, leaving
// active ones untouched. Retry waiters land in history as failed so GetTask
// still resolves them.
func (s *Service) Clear() int {
	now := time.Now()

	s.mu.Lock()
	cleared := len(s.queue.Drain())
	for _, timer := range s.retryTimers {
		timer.Stop()
	}
	for _, task := range s.pendingRetry {
		task.Status = models.TaskStatusFailed
		task.CompletedAt = &now
		if task.LastError == "" {
			task.LastError = "cleared while awaiting retry"
		}
		s.failed++
		s.appendHistoryLocked(task)
		s.metrics.failed.WithLabelValues(string(task.Kind)).Inc()
		cleared++
	}
	s.retryTimers = make(map[string]*time.Timer)
	s.pendingRetry = make(map[string]*models.CrawlTask)
	s.metrics.queued.Set(0)
	s.mu.Unlock()

	if cleared > 0 {
		s.logger.Info().Int("count", cleared).Msg("Queue cleared")
		s.publish(interfaces.EventQueueCleared, map[string]interface{}{"count": cleared})
	}
	return cleared
}

// GetTask returns a queued, active or recently finished task by ID
func (s *Service) GetTask(id string) (*models.CrawlTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task, ok := s.active[id]; ok {
		return task, true
	}
	if task, ok := s.pendingRetry[id]; ok {
		return task, true
	}
	if task := s.queue.Find(id); task != nil {
		return task, true
	}
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ID == id {
			return s.history[i], true
		}
	}
	return nil, false
}

// Stats returns a snapshot of queue counters
func (s *Service) Stats() interfaces.SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var elapsed time.Duration
	if s.started {
		elapsed = time.Since(s.startedAt)
	}
	return interfaces.SchedulerStats{
		Queued:    s.queue.Len(),
		Active:    len(s.active),
		Succeeded: s.succeeded,
		Failed:    s.failed,
		Retried:   s.retried,
		Paused:    s.paused,
		Elapsed:   elapsed,
	}
}

// MetricsRegistry exposes the scheduler's Prometheus collectors for the
// process metrics endpoint
func (s *Service) MetricsRegistry() *prometheus.Registry {
	return s.metrics.Registry()
}

// Stop drains the dispatch loop and waits for active tasks to finish.
// Queued tasks stay queued; pending retry timers are cancelled.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	select {
	case <-s.stopCh:
		s.mu.Unlock()
		return nil
	default:
		close(s.stopCh)
	}
	for _, timer := range s.retryTimers {
		timer.Stop()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.workers.Wait()
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

func (s *Service) publish(eventType interfaces.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(context.Background(), interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Event publish failed")
	}
}

func (s *Service) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
