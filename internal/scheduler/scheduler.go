package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/internal/observability"
	"github.com/agiworkforce/workforce/internal/store"
)

// progressDebounce limits persisted progress updates to one per task
// per interval.
const progressDebounce = 50 * time.Millisecond

// Config configures the scheduler.
type Config struct {
	// MaxConcurrent bounds the executor pool. Default: 4.
	MaxConcurrent int

	// ShutdownGrace bounds how long Shutdown waits for running tasks.
	// Default: 10 seconds.
	ShutdownGrace time.Duration

	// Store persists task rows; nil disables persistence (tests).
	Store *store.Store

	// Sink receives task_progress events.
	Sink *observability.EventSink

	// Metrics records terminal outcomes.
	Metrics *observability.Metrics

	// Logger for scheduler events.
	Logger *slog.Logger
}

type runningTask struct {
	task   *Task
	fn     TaskFunc
	cancel context.CancelFunc
	pause  *pauseGate
	done   chan struct{}
}

// Scheduler owns the queue, the executor pool, and task lifecycle.
type Scheduler struct {
	config  Config
	logger  *slog.Logger
	sink    *observability.EventSink
	metrics *observability.Metrics
	st      *store.Store

	mu      sync.Mutex
	queue   *taskQueue
	running map[string]*runningTask
	tasks   map[string]*Task
	nextSeq uint64
	closed  bool

	progressCh   chan progressUpdate
	progressWG   sync.WaitGroup
	progressStop chan struct{}
}

// New creates a scheduler and starts its progress loop. Call Shutdown
// to stop it.
func New(cfg Config) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "scheduler")
	}

	s := &Scheduler{
		config:       cfg,
		logger:       logger,
		sink:         cfg.Sink,
		metrics:      cfg.Metrics,
		st:           cfg.Store,
		queue:        newTaskQueue(),
		running:      make(map[string]*runningTask),
		tasks:        make(map[string]*Task),
		progressCh:   make(chan progressUpdate, 1024),
		progressStop: make(chan struct{}),
	}
	s.progressWG.Add(1)
	go s.progressLoop()
	return s
}

// Restore demotes Running/Paused rows from a previous process to Queued.
// The tasks themselves are not resumed; their owner re-enqueues them.
func (s *Scheduler) Restore() error {
	if s.st == nil {
		return nil
	}
	n, err := s.st.RequeueInterrupted()
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("requeued interrupted tasks", "count", n)
	}
	return nil
}

// Enqueue adds a task to the queue. The task starts as soon as the pool
// has a free slot, in priority order.
func (s *Scheduler) Enqueue(task *Task, fn TaskFunc) error {
	return s.enqueue(task, fn, false)
}

// EnqueueImmediate adds a task that must start now; it is rejected with
// a concurrency resource error when the pool is saturated.
func (s *Scheduler) EnqueueImmediate(task *Task, fn TaskFunc) error {
	return s.enqueue(task, fn, true)
}

func (s *Scheduler) enqueue(task *Task, fn TaskFunc, immediate bool) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errdefs.Fatal("scheduler is shut down")
	}
	if immediate && len(s.running) >= s.config.MaxConcurrent {
		s.mu.Unlock()
		return errdefs.NewResourceError(errdefs.ResourceConcurrency,
			"executor pool is saturated (%d running)", s.config.MaxConcurrent)
	}

	task.Status = StatusQueued
	task.seq = s.nextSeq
	s.nextSeq++
	s.tasks[task.ID] = task
	s.queue.push(&queueItem{task: task, fn: fn})
	snapshot := *task
	s.mu.Unlock()

	s.persist(&snapshot)
	s.admit()
	return nil
}

// admit starts queued tasks while the pool has capacity.
func (s *Scheduler) admit() {
	for {
		s.mu.Lock()
		if s.closed || len(s.running) >= s.config.MaxConcurrent {
			s.mu.Unlock()
			return
		}
		item := s.queue.pop()
		if item == nil {
			s.mu.Unlock()
			return
		}

		task := item.task
		now := time.Now().UTC()
		task.Status = StatusRunning
		task.StartedAt = &now

		var ctx context.Context
		var cancel context.CancelFunc
		if task.Timeout > 0 {
			ctx, cancel = context.WithTimeout(context.Background(), task.Timeout)
		} else {
			ctx, cancel = context.WithCancel(context.Background())
		}
		rt := &runningTask{
			task:   task,
			fn:     item.fn,
			cancel: cancel,
			pause:  newPauseGate(),
			done:   make(chan struct{}),
		}
		s.running[task.ID] = rt
		snapshot := *task
		s.mu.Unlock()

		s.persist(&snapshot)
		go s.run(ctx, rt)
	}
}

// run executes one task to a terminal state. Panics are caught and
// surfaced as fatal errors; they never reach the process.
func (s *Scheduler) run(ctx context.Context, rt *runningTask) {
	task := rt.task
	defer close(rt.done)
	defer rt.cancel()

	tc := &TaskContext{
		TaskID:   task.ID,
		Payload:  task.Payload,
		progress: s.progressCh,
		pause:    rt.pause,
	}
	ctx = observability.WithTaskID(ctx, task.ID)

	var result json.RawMessage
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = errdefs.Fatal("task panicked: %v", r)
				s.logger.Error("task panic", "task_id", task.ID, "panic", r)
			}
		}()
		result, err = rt.fn(ctx, tc)
	}()

	now := time.Now().UTC()

	s.mu.Lock()
	delete(s.running, task.ID)
	task.CompletedAt = &now
	switch {
	case err == nil:
		task.Status = StatusCompleted
		task.Progress = 100
		task.Result = result
	case errors.Is(err, context.Canceled):
		task.Status = StatusCancelled
		task.Error = "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		task.Status = StatusFailed
		task.Error = errdefs.Redact(errdefs.Timeout("task exceeded its %s timeout", task.Timeout).Error())
	default:
		task.Status = StatusFailed
		task.Error = errdefs.Redact(err.Error())
	}
	if task.Status != StatusCompleted && task.Progress >= 100 {
		// Progress 100 is reserved for completion.
		task.Progress = 99
	}
	snapshot := *task
	s.mu.Unlock()

	s.persist(&snapshot)
	if s.metrics != nil {
		s.metrics.TaskOutcome(string(snapshot.Status))
	}
	s.logger.Info("task finished",
		"task_id", snapshot.ID, "status", snapshot.Status, "error", snapshot.Error)

	s.admit()
}

// Pause requests a cooperative pause of a running task.
func (s *Scheduler) Pause(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.running[taskID]
	if !ok {
		return errdefs.NewToolError(errdefs.ToolNotFound, "task %s is not running", taskID)
	}
	rt.pause.pause()
	rt.task.Status = StatusPaused
	snapshot := *rt.task
	go s.persist(&snapshot)
	return nil
}

// Resume releases a paused task.
func (s *Scheduler) Resume(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.running[taskID]
	if !ok {
		return errdefs.NewToolError(errdefs.ToolNotFound, "task %s is not running", taskID)
	}
	rt.pause.resume()
	rt.task.Status = StatusRunning
	snapshot := *rt.task
	go s.persist(&snapshot)
	return nil
}

// Cancel cancels a running task (cooperatively) or removes a queued one.
// Idempotent: cancelling a terminal task is a no-op.
func (s *Scheduler) Cancel(taskID string) error {
	s.mu.Lock()
	if rt, ok := s.running[taskID]; ok {
		// Resume first so a paused task can observe the cancellation.
		rt.pause.resume()
		rt.cancel()
		s.mu.Unlock()
		return nil
	}
	if item := s.queue.removeByID(taskID); item != nil {
		now := time.Now().UTC()
		item.task.Status = StatusCancelled
		item.task.CompletedAt = &now
		snapshot := *item.task
		s.mu.Unlock()
		s.persist(&snapshot)
		if s.metrics != nil {
			s.metrics.TaskOutcome(string(StatusCancelled))
		}
		return nil
	}
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the task's current state.
func (s *Scheduler) Get(taskID string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	copied := *task
	return &copied, true
}

// Wait blocks until the task reaches a terminal state or ctx is done.
func (s *Scheduler) Wait(ctx context.Context, taskID string) (*Task, error) {
	for {
		s.mu.Lock()
		task, ok := s.tasks[taskID]
		if !ok {
			s.mu.Unlock()
			return nil, errdefs.NewToolError(errdefs.ToolNotFound, "task %s not found", taskID)
		}
		if task.Status.IsTerminal() {
			copied := *task
			s.mu.Unlock()
			return &copied, nil
		}
		rt := s.running[taskID]
		s.mu.Unlock()

		if rt != nil {
			select {
			case <-rt.done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		select {
		case <-time.After(5 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// QueueDepth returns the number of queued (not yet running) tasks.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// RunningCount returns the number of running tasks.
func (s *Scheduler) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Shutdown cancels everything, waits up to the grace period, then
// abandons stragglers and stops the progress loop.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var waits []chan struct{}
	for _, rt := range s.running {
		rt.pause.resume()
		rt.cancel()
		waits = append(waits, rt.done)
	}
	for {
		item := s.queue.pop()
		if item == nil {
			break
		}
		now := time.Now().UTC()
		item.task.Status = StatusCancelled
		item.task.CompletedAt = &now
		snapshot := *item.task
		go s.persist(&snapshot)
	}
	s.mu.Unlock()

	grace := time.NewTimer(s.config.ShutdownGrace)
	defer grace.Stop()
	for _, done := range waits {
		select {
		case <-done:
		case <-grace.C:
			s.logger.Warn("shutdown grace period elapsed, abandoning running tasks")
			goto drained
		case <-ctx.Done():
			goto drained
		}
	}
drained:
	close(s.progressStop)
	s.progressWG.Wait()

	s.mu.Lock()
	s.running = make(map[string]*runningTask)
	s.mu.Unlock()
	return nil
}

// progressLoop debounces progress updates and persists them.
func (s *Scheduler) progressLoop() {
	defer s.progressWG.Done()
	lastPersist := make(map[string]time.Time)

	for {
		select {
		case <-s.progressStop:
			return
		case update := <-s.progressCh:
			s.mu.Lock()
			task, ok := s.tasks[update.taskID]
			if !ok || task.Status.IsTerminal() {
				s.mu.Unlock()
				continue
			}
			task.Progress = update.progress
			copied := *task
			s.mu.Unlock()

			if time.Since(lastPersist[update.taskID]) < progressDebounce {
				continue
			}
			lastPersist[update.taskID] = time.Now()

			s.persist(&copied)
			if s.sink != nil {
				s.sink.Emit(observability.TopicTaskProgress, map[string]any{
					"task_id":  update.taskID,
					"progress": update.progress,
				})
			}
		}
	}
}

// persist writes the task's full row.
func (s *Scheduler) persist(task *Task) {
	if s.st == nil {
		return
	}
	row := &store.TaskRow{
		ID:          task.ID,
		Name:        task.Name,
		Description: task.Description,
		Priority:    task.Priority.String(),
		Status:      string(task.Status),
		Progress:    task.Progress,
		RetryCount:  task.RetryCount,
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
		Result:      string(task.Result),
		Payload:     string(task.Payload),
	}
	if err := s.st.SaveTask(row); err != nil {
		s.logger.Error("task persistence failed", "task_id", task.ID, "error", err)
	}
}

// CleanupOldTasks GCs terminal rows older than the given number of days.
func (s *Scheduler) CleanupOldTasks(days int) (int64, error) {
	if s.st == nil {
		return 0, nil
	}
	return s.st.CleanupOldTasks(days)
}
