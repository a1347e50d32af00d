// Package vectorized executes compiled operator pipelines over row ranges of
// dense matrices with a pool of workers fed from task queues.
package vectorized

import (
	"sync"

	cferrors "github.com/paveg/colflow/internal/errors"
)

// Task is a unit of work pulled by a worker.
type Task interface {
	Execute() error
	// Rows is the number of input rows the task covers.
	Rows() int
}

// TaskQueue hands tasks from one producer to many workers. After CloseInput
// consumers drain the remaining tasks and then observe end-of-stream.
type TaskQueue interface {
	// Enqueue inserts t. It returns ErrQueueClosed after CloseInput.
	Enqueue(t Task) error
	CloseInput()
	// Dequeue blocks until a task is available or the queue is closed and
	// empty, in which case ok is false.
	Dequeue() (t Task, ok bool)
}

// NewTaskQueue returns a queue that blocks producers once capacity tasks are
// pending. A capacity of zero or less gives an unbounded queue.
func NewTaskQueue(capacity int) TaskQueue {
	if capacity > 0 {
		return &boundedQueue{ch: make(chan Task, capacity)}
	}
	q := &unboundedQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

type boundedQueue struct {
	// mu is held for reading while sending so that CloseInput never closes
	// the channel under a pending send.
	mu     sync.RWMutex
	closed bool
	ch     chan Task
}

func (q *boundedQueue) Enqueue(t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return cferrors.ErrQueueClosed
	}
	q.ch <- t
	return nil
}

func (q *boundedQueue) CloseInput() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

func (q *boundedQueue) Dequeue() (Task, bool) {
	t, ok := <-q.ch
	return t, ok
}

type unboundedQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []Task
	closed bool
}

func (q *unboundedQueue) Enqueue(t Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return cferrors.ErrQueueClosed
	}
	q.tasks = append(q.tasks, t)
	q.cond.Signal()
	return nil
}

func (q *unboundedQueue) CloseInput() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *unboundedQueue) Dequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.tasks) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.tasks) == 0 {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return t, true
}
