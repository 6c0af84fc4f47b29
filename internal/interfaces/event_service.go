package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventCategoryCrawled EventType = "category_crawled"
	EventProductCrawled  EventType = "product_crawled"
	EventCheckoutCrawled EventType = "checkout_crawled"
	EventSearchCrawled   EventType = "search_crawled"
	EventProductsUpdated EventType = "products_updated"
	EventTaskCompleted   EventType = "task_completed"
	EventTaskFailed      EventType = "task_failed"
	EventQueuePaused     EventType = "queue_paused"
	EventQueueResumed    EventType = "queue_resumed"
	EventQueueCleared    EventType = "queue_cleared"
	EventError           EventType = "error"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Unsubscribe from an event type
	Unsubscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
