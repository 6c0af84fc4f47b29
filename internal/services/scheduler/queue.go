package scheduler

import (
	"container/heap"

	"github.com/ternarybob/merx/internal/models"
)

// queueItem wraps a task with the insertion sequence number that gives FIFO
// ordering within a priority level
type queueItem struct {
	task *models.CrawlTask
	seq  uint64
}

// taskQueue is a min-heap ordered by priority, then submission order.
// Not safe for concurrent use; the scheduler serializes access.
type taskQueue struct {
	items []*queueItem
	seq   uint64
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	heap.Init(q)
	return q
}

func (q *taskQueue) Len() int { return len(q.items) }

func (q *taskQueue) Less(i, j int) bool {
	if q.items[i].task.Priority != q.items[j].task.Priority {
		return q.items[i].task.Priority < q.items[j].task.Priority
	}
	return q.items[i].seq < q.items[j].seq
}

func (q *taskQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *taskQueue) Push(x interface{}) {
	q.items = append(q.items, x.(*queueItem))
}

func (q *taskQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}

// Enqueue adds a task, stamping it with the next sequence number
func (q *taskQueue) Enqueue(task *models.CrawlTask) {
	q.seq++
	heap.Push(q, &queueItem{task: task, seq: q.seq})
}

// Dequeue removes and returns the highest-priority task, or nil when empty
func (q *taskQueue) Dequeue() *models.CrawlTask {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*queueItem).task
}

// Drain empties the queue and returns the dropped tasks
func (q *taskQueue) Drain() []*models.CrawlTask {
	dropped := make([]*models.CrawlTask, 0, q.Len())
	for q.Len() > 0 {
		dropped = append(dropped, q.Dequeue())
	}
	return dropped
}

// Find returns the queued task with the given ID, if present
func (q *taskQueue) Find(id string) *models.CrawlTask {
	for _, item := range q.items {
		if item.task.ID == id {
			return item.task
		}
	}
	return nil
}
