package command

import (
	"errors"
	"sync"
)

var ErrQueueFull = errors.New("command queue full")

// Queue collects live commands from transport goroutines. The simulation
// goroutine drains it once at the start of each tick; commands keep their
// arrival order.
type Queue struct {
	mu      sync.Mutex
	pending []Command
	limit   int
	dropped uint64
}

// NewQueue returns a queue holding at most limit commands per tick; zero
// means unbounded.
func NewQueue(limit int) *Queue { return &Queue{limit: limit} }

// Push validates and enqueues c.
func (q *Queue) Push(c Command) error {
	if err := c.Validate(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && len(q.pending) >= q.limit {
		q.dropped++
		return ErrQueueFull
	}
	q.pending = append(q.pending, c)
	return nil
}

func (q *Queue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Dropped counts commands refused because the queue was full.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
