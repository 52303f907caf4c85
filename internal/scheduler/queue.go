package scheduler

import (
	"container/heap"
	"context"
	"sync"
)

// taskQueue is a priority heap: higher priority first, FIFO within a
// priority via the insertion sequence.
type taskQueue struct {
	items []*queueItem
}

type queueItem struct {
	task *Task
	fn   TaskFunc
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	heap.Init(q)
	return q
}

func (q *taskQueue) Len() int { return len(q.items) }

func (q *taskQueue) Less(i, j int) bool {
	a, b := q.items[i].task, q.items[j].task
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.seq < b.seq
}

func (q *taskQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *taskQueue) Push(x any) {
	q.items = append(q.items, x.(*queueItem))
}

func (q *taskQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}

// push enqueues an item.
func (q *taskQueue) push(item *queueItem) {
	heap.Push(q, item)
}

// pop removes the highest-priority item, or nil when empty.
func (q *taskQueue) pop() *queueItem {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(*queueItem)
}

// removeByID removes a queued task and rebuilds the heap. Reports
// whether the task was present.
func (q *taskQueue) removeByID(taskID string) *queueItem {
	for i, item := range q.items {
		if item.task.ID == taskID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			heap.Init(q)
			return item
		}
	}
	return nil
}

// pauseGate is the cooperative pause flag shared between the scheduler
// and a running task function. A closed channel means running; an open
// one means paused.
type pauseGate struct {
	mu sync.Mutex
	ch chan struct{}
}

func newPauseGate() *pauseGate {
	g := &pauseGate{ch: make(chan struct{})}
	close(g.ch)
	return g
}

func (g *pauseGate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
		g.ch = make(chan struct{})
	default:
	}
}

func (g *pauseGate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	select {
	case <-g.ch:
	default:
		close(g.ch)
	}
}

func (g *pauseGate) gateChan() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ch
}

func (g *pauseGate) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-g.gateChan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
