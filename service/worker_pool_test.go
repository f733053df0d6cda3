package service

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ludo-technologies/pyqc/domain"
)

func task(name string, fn func(ctx context.Context) error) domain.ExecutableTask {
	if fn == nil {
		fn = func(context.Context) error { return nil }
	}
	return &funcTask{name: name, fn: fn}
}

// recordingProgress counts increments and completions
type recordingProgress struct {
	started    atomic.Int32
	increments atomic.Int32
	completed  atomic.Bool
}

func (p *recordingProgress) StartTask(string, int) domain.TaskProgress {
	p.started.Add(1)
	return p
}
func (p *recordingProgress) IsInteractive() bool { return false }
func (p *recordingProgress) Close()              {}
func (p *recordingProgress) Increment(n int)     { p.increments.Add(int32(n)) }
func (p *recordingProgress) Describe(string)     {}
func (p *recordingProgress) Complete()           { p.completed.Store(true) }

func TestNewPool_Defaults(t *testing.T) {
	p := NewPool(0, 0, nil)

	if p.Workers() != runtime.NumCPU() {
		t.Errorf("expected %d workers, got %d", runtime.NumCPU(), p.Workers())
	}
	if p.Timeout() != DefaultRunTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultRunTimeout, p.Timeout())
	}
}

func TestNewPool_Explicit(t *testing.T) {
	p := NewPool(3, time.Minute, nil)

	if p.Workers() != 3 {
		t.Errorf("expected 3 workers, got %d", p.Workers())
	}
	if p.Timeout() != time.Minute {
		t.Errorf("expected 1m timeout, got %v", p.Timeout())
	}
}

func TestPool_EmptyTaskList(t *testing.T) {
	progress := &recordingProgress{}
	p := NewPool(2, time.Second, progress)

	if err := p.Run(context.Background(), "Checking", nil); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if progress.started.Load() != 0 {
		t.Error("no progress bar should be started for an empty run")
	}
}

func TestPool_AllTasksSucceed(t *testing.T) {
	var ran atomic.Int32
	tasks := []domain.ExecutableTask{}
	for _, name := range []string{"a.py:ruff-lint", "a.py:mypy", "b.py:ruff-lint", "b.py:mypy"} {
		tasks = append(tasks, task(name, func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}

	if err := NewPool(2, time.Second, nil).Run(context.Background(), "Checking", tasks); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if ran.Load() != 4 {
		t.Errorf("expected 4 tasks to run, got %d", ran.Load())
	}
}

func TestPool_FailureDoesNotCancelSiblings(t *testing.T) {
	var finished atomic.Int32
	boom := errors.New("tool crashed")

	tasks := []domain.ExecutableTask{
		task("bad", func(context.Context) error { return boom }),
	}
	for i := 0; i < 5; i++ {
		tasks = append(tasks, task("good", func(ctx context.Context) error {
			select {
			case <-time.After(20 * time.Millisecond):
				finished.Add(1)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))
	}

	err := NewPool(3, time.Second, nil).Run(context.Background(), "Checking", tasks)

	var poolErr *PoolError
	if !errors.As(err, &poolErr) {
		t.Fatalf("expected *PoolError, got %T", err)
	}
	if len(poolErr.Failed) != 1 || poolErr.Failed[0].TaskName != "bad" {
		t.Errorf("expected only the bad task to fail, got %+v", poolErr.Failed)
	}
	if !errors.Is(err, boom) {
		t.Error("expected errors.Is to find the task error")
	}
	if finished.Load() != 5 {
		t.Errorf("expected 5 sibling tasks to finish, got %d", finished.Load())
	}
}

func TestPool_TimeoutReportsUnstartedTasks(t *testing.T) {
	tasks := []domain.ExecutableTask{
		task("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
		task("queued-1", nil),
		task("queued-2", nil),
	}

	start := time.Now()
	err := NewPool(1, 50*time.Millisecond, nil).Run(context.Background(), "Checking", tasks)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("run did not honour its timeout: %v", elapsed)
	}

	var poolErr *PoolError
	if !errors.As(err, &poolErr) {
		t.Fatalf("expected *PoolError, got %v", err)
	}
	if poolErr.Total != 3 || len(poolErr.Failed) != 3 {
		t.Errorf("expected all 3 tasks reported, got %d of %d", len(poolErr.Failed), poolErr.Total)
	}
	if skipped := poolErr.Skipped(); len(skipped) != 3 {
		t.Errorf("expected 3 skipped tasks, got %v", skipped)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected errors.Is(err, context.DeadlineExceeded)")
	}
}

func TestPool_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int32
	tasks := []domain.ExecutableTask{
		task("a", func(context.Context) error { ran.Add(1); return nil }),
		task("b", func(context.Context) error { ran.Add(1); return nil }),
	}

	err := NewPool(2, time.Second, nil).Run(ctx, "Checking", tasks)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if ran.Load() != 0 {
		t.Errorf("no task should run after cancellation, %d did", ran.Load())
	}
}

func TestPool_ConcurrencyLimit(t *testing.T) {
	const limit = 2
	var mu sync.Mutex
	current, peak := 0, 0

	tasks := []domain.ExecutableTask{}
	for i := 0; i < 8; i++ {
		tasks = append(tasks, task("t", func(context.Context) error {
			mu.Lock()
			current++
			if current > peak {
				peak = current
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()
			return nil
		}))
	}

	if err := NewPool(limit, time.Second, nil).Run(context.Background(), "Checking", tasks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak > limit {
		t.Errorf("expected at most %d concurrent tasks, saw %d", limit, peak)
	}
}

func TestPool_ProgressIntegration(t *testing.T) {
	progress := &recordingProgress{}
	tasks := []domain.ExecutableTask{
		task("a", nil),
		task("b", errFn(errors.New("x"))),
		task("c", nil),
	}

	_ = NewPool(2, time.Second, progress).Run(context.Background(), "Fixing", tasks)

	if progress.increments.Load() != 3 {
		t.Errorf("expected one increment per task including failures, got %d", progress.increments.Load())
	}
	if !progress.completed.Load() {
		t.Error("expected Complete() to be called")
	}
}

func errFn(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestPoolError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *PoolError
		contains []string
	}{
		{
			name:     "empty",
			err:      &PoolError{},
			contains: []string{"no errors"},
		},
		{
			name: "single",
			err: &PoolError{Total: 4, Failed: []TaskError{
				{TaskName: "a.py:mypy", Err: errors.New("exit 2")},
			}},
			contains: []string{"[a.py:mypy] exit 2"},
		},
		{
			name: "multiple",
			err: &PoolError{Total: 4, Failed: []TaskError{
				{TaskName: "a.py:mypy", Err: errors.New("exit 2")},
				{TaskName: "b.py:mypy", Err: errors.New("exit 2")},
			}},
			contains: []string{"2 of 4 tasks", "first: [a.py:mypy]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("expected %q in %q", want, msg)
				}
			}
		})
	}
}

func TestTaskError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := TaskError{TaskName: "t", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to unwrap TaskError")
	}
	if err.Error() != "[t] inner" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
