package worker

import (
	"sync"

	"github.com/mwhitten/foreman/pkg/models"
)

// Queues holds per-worker FIFO TaskUpdate queues. Delivery order is
// guaranteed per worker but not across workers.
type Queues struct {
	mu      sync.Mutex
	pending map[string][]models.TaskUpdate
}

// NewQueues creates an empty queue set.
func NewQueues() *Queues {
	return &Queues{pending: make(map[string][]models.TaskUpdate)}
}

// Push appends an update to the addressed worker's queue.
func (q *Queues) Push(update models.TaskUpdate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[update.WorkerID] = append(q.pending[update.WorkerID], update)
}

// Drain removes and returns all queued updates for a worker in FIFO
// order. Returns nil when the queue is empty.
func (q *Queues) Drain(workerID string) []models.TaskUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()

	updates := q.pending[workerID]
	delete(q.pending, workerID)
	return updates
}

// Len returns the number of queued updates for a worker.
func (q *Queues) Len(workerID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[workerID])
}

// Discard drops all queued updates for a worker, used when its session
// reaches a terminal state.
func (q *Queues) Discard(workerID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, workerID)
}
