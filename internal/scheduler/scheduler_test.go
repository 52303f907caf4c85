package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/agiworkforce/workforce/internal/errdefs"
	"github.com/agiworkforce/workforce/pkg/models"
)

func newTestScheduler(t *testing.T, maxConcurrent int) *Scheduler {
	t.Helper()
	s := New(Config{MaxConcurrent: maxConcurrent, ShutdownGrace: time.Second})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func instant(json.RawMessage) TaskFunc {
	return func(context.Context, *TaskContext) (json.RawMessage, error) {
		return json.RawMessage(`"ok"`), nil
	}
}

func TestTaskRunsToCompletion(t *testing.T) {
	s := newTestScheduler(t, 2)

	task := &Task{Name: "quick", Priority: models.PriorityMedium}
	if err := s.Enqueue(task, instant(nil)); err != nil {
		t.Fatal(err)
	}

	done, err := s.Wait(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}
	if done.Progress != 100 {
		t.Errorf("completed task must have progress 100, got %d", done.Progress)
	}
	if string(done.Result) != `"ok"` {
		t.Errorf("result lost: %s", done.Result)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("timestamps missing")
	}
}

func TestPriorityOrderAtDequeue(t *testing.T) {
	s := newTestScheduler(t, 1)

	// Occupy the single slot so subsequent enqueues stay queued.
	block := make(chan struct{})
	gate := &Task{Name: "gate", Priority: models.PriorityCritical}
	if err := s.Enqueue(gate, func(ctx context.Context, _ *TaskContext) (json.RawMessage, error) {
		<-block
		return nil, nil
	}); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var order []string
	record := func(name string) TaskFunc {
		return func(context.Context, *TaskContext) (json.RawMessage, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}

	low := &Task{Name: "low", Priority: models.PriorityLow}
	high := &Task{Name: "high", Priority: models.PriorityHigh}
	medA := &Task{Name: "medA", Priority: models.PriorityMedium}
	medB := &Task{Name: "medB", Priority: models.PriorityMedium}

	for _, pair := range []struct {
		task *Task
		fn   TaskFunc
	}{
		{low, record("low")}, {medA, record("medA")}, {high, record("high")}, {medB, record("medB")},
	} {
		if err := s.Enqueue(pair.task, pair.fn); err != nil {
			t.Fatal(err)
		}
	}

	close(block)
	for _, task := range []*Task{low, high, medA, medB} {
		if _, err := s.Wait(context.Background(), task.ID); err != nil {
			t.Fatal(err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"high", "medA", "medB", "low"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v (priority desc, FIFO within priority)", order, want)
		}
	}
}

func TestRunningTaskNotPreempted(t *testing.T) {
	s := newTestScheduler(t, 1)

	release := make(chan struct{})
	var mu sync.Mutex
	var finished []string

	t1 := &Task{Name: "t1", Priority: models.PriorityLow}
	if err := s.Enqueue(t1, func(context.Context, *TaskContext) (json.RawMessage, error) {
		<-release
		mu.Lock()
		finished = append(finished, "t1")
		mu.Unlock()
		return nil, nil
	}); err != nil {
		t.Fatal(err)
	}

	// Give t1 time to start.
	time.Sleep(20 * time.Millisecond)
	if s.RunningCount() != 1 {
		t.Fatal("t1 should be running")
	}

	t2 := &Task{Name: "t2", Priority: models.PriorityCritical}
	if err := s.Enqueue(t2, func(context.Context, *TaskContext) (json.RawMessage, error) {
		mu.Lock()
		finished = append(finished, "t2")
		mu.Unlock()
		return nil, nil
	}); err != nil {
		t.Fatal(err)
	}

	// t2 must not start while t1 runs.
	time.Sleep(20 * time.Millisecond)
	if got, _ := s.Get(t2.ID); got.Status != StatusQueued {
		t.Errorf("critical task should wait at the queue boundary, got %s", got.Status)
	}

	close(release)
	if _, err := s.Wait(context.Background(), t2.ID); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(finished) != 2 || finished[0] != "t1" || finished[1] != "t2" {
		t.Errorf("finish order = %v, want [t1 t2]", finished)
	}
}

func TestEnqueueImmediateRejectsWhenSaturated(t *testing.T) {
	s := newTestScheduler(t, 1)

	block := make(chan struct{})
	defer close(block)
	running := &Task{Name: "running", Priority: models.PriorityMedium}
	if err := s.Enqueue(running, func(context.Context, *TaskContext) (json.RawMessage, error) {
		<-block
		return nil, nil
	}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	err := s.EnqueueImmediate(&Task{Name: "impatient", Priority: models.PriorityHigh}, instant(nil))
	e, ok := errdefs.AsError(err)
	if !ok || e.Resource != errdefs.ResourceConcurrency {
		t.Fatalf("expected concurrency error, got %v", err)
	}
}

func TestCancelRunningTask(t *testing.T) {
	s := newTestScheduler(t, 1)

	started := make(chan struct{})
	task := &Task{Name: "long", Priority: models.PriorityMedium}
	if err := s.Enqueue(task, func(ctx context.Context, _ *TaskContext) (json.RawMessage, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}); err != nil {
		t.Fatal(err)
	}
	<-started

	if err := s.Cancel(task.ID); err != nil {
		t.Fatal(err)
	}
	// Idempotent.
	if err := s.Cancel(task.ID); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done, err := s.Wait(ctx, task.ID)
	if err != nil {
		t.Fatal("cancelled task did not terminate within one suspension quantum")
	}
	if done.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", done.Status)
	}
	if done.Progress == 100 {
		t.Error("cancelled task must not report progress 100")
	}
}

func TestCancelQueuedTask(t *testing.T) {
	s := newTestScheduler(t, 1)

	block := make(chan struct{})
	defer close(block)
	if err := s.Enqueue(&Task{Name: "blocker", Priority: models.PriorityMedium}, func(context.Context, *TaskContext) (json.RawMessage, error) {
		<-block
		return nil, nil
	}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	queued := &Task{Name: "queued", Priority: models.PriorityLow}
	if err := s.Enqueue(queued, instant(nil)); err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(queued.ID); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Get(queued.ID)
	if got.Status != StatusCancelled {
		t.Errorf("queued task should cancel immediately, got %s", got.Status)
	}
	if s.QueueDepth() != 0 {
		t.Error("cancelled task should leave the queue")
	}
}

func TestPauseAndResume(t *testing.T) {
	s := newTestScheduler(t, 1)

	var mu sync.Mutex
	ticks := 0
	task := &Task{Name: "pausable", Priority: models.PriorityMedium}
	if err := s.Enqueue(task, func(ctx context.Context, tc *TaskContext) (json.RawMessage, error) {
		for i := 0; i < 50; i++ {
			if err := tc.CheckPause(ctx); err != nil {
				return nil, err
			}
			mu.Lock()
			ticks++
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
		}
		return nil, nil
	}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(15 * time.Millisecond)
	if err := s.Pause(task.ID); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	pausedAt := ticks
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	during := ticks
	mu.Unlock()
	if during > pausedAt+1 {
		t.Errorf("task kept ticking while paused: %d -> %d", pausedAt, during)
	}

	if got, _ := s.Get(task.ID); got.Status != StatusPaused {
		t.Errorf("status = %s, want paused", got.Status)
	}

	if err := s.Resume(task.ID); err != nil {
		t.Fatal(err)
	}
	done, err := s.Wait(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("status after resume = %s, want completed", done.Status)
	}
}

func TestCancelWhilePaused(t *testing.T) {
	s := newTestScheduler(t, 1)

	task := &Task{Name: "paused-cancel", Priority: models.PriorityMedium}
	if err := s.Enqueue(task, func(ctx context.Context, tc *TaskContext) (json.RawMessage, error) {
		for {
			if err := tc.CheckPause(ctx); err != nil {
				return nil, err
			}
			time.Sleep(2 * time.Millisecond)
		}
	}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(15 * time.Millisecond)
	if err := s.Pause(task.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(task.ID); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done, err := s.Wait(ctx, task.ID)
	if err != nil {
		t.Fatal("paused task did not observe cancellation")
	}
	if done.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", done.Status)
	}
}

func TestTaskTimeout(t *testing.T) {
	s := newTestScheduler(t, 1)

	task := &Task{Name: "slow", Priority: models.PriorityMedium, Timeout: 20 * time.Millisecond}
	if err := s.Enqueue(task, func(ctx context.Context, _ *TaskContext) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}); err != nil {
		t.Fatal(err)
	}

	done, err := s.Wait(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != StatusFailed {
		t.Errorf("timed-out task should fail, got %s", done.Status)
	}
}

func TestPanicSurfacesAsFailure(t *testing.T) {
	s := newTestScheduler(t, 1)

	task := &Task{Name: "panicky", Priority: models.PriorityMedium}
	if err := s.Enqueue(task, func(context.Context, *TaskContext) (json.RawMessage, error) {
		panic("boom")
	}); err != nil {
		t.Fatal(err)
	}

	done, err := s.Wait(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != StatusFailed {
		t.Errorf("panicking task should fail, got %s", done.Status)
	}
}

func TestProgressBounds(t *testing.T) {
	s := newTestScheduler(t, 1)

	task := &Task{Name: "progress", Priority: models.PriorityMedium}
	if err := s.Enqueue(task, func(ctx context.Context, tc *TaskContext) (json.RawMessage, error) {
		tc.ReportProgress(-5)
		tc.ReportProgress(150)
		tc.ReportProgress(42)
		time.Sleep(10 * time.Millisecond)
		return nil, nil
	}); err != nil {
		t.Fatal(err)
	}

	done, err := s.Wait(context.Background(), task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Progress != 100 {
		t.Errorf("completed task progress = %d, want 100", done.Progress)
	}
}

func TestShutdownCancelsEverything(t *testing.T) {
	s := New(Config{MaxConcurrent: 2, ShutdownGrace: time.Second})

	for i := 0; i < 4; i++ {
		task := &Task{Name: "worker", Priority: models.PriorityMedium}
		if err := s.Enqueue(task, func(ctx context.Context, _ *TaskContext) (json.RawMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if s.RunningCount() != 0 {
		t.Error("running map should be empty after shutdown")
	}
	if err := s.Enqueue(&Task{Name: "late"}, instant(nil)); err == nil {
		t.Error("enqueue after shutdown should fail")
	}
}
