package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/ludo-technologies/pyqc/domain"
	"golang.org/x/sync/errgroup"
)

// DefaultRunTimeout bounds a whole run when performance.timeout_seconds is
// unset. Individual tool invocations carry their own, shorter timeouts.
const DefaultRunTimeout = 10 * time.Minute

// TaskError is one task that did not complete
type TaskError struct {
	TaskName string
	Err      error
}

// Error implements the error interface
func (e TaskError) Error() string {
	return fmt.Sprintf("[%s] %v", e.TaskName, e.Err)
}

// Unwrap returns the underlying error
func (e TaskError) Unwrap() error {
	return e.Err
}

// PoolError lists the tasks of one Run that failed or never started
type PoolError struct {
	Total  int
	Failed []TaskError
}

// Error implements the error interface
func (e *PoolError) Error() string {
	switch len(e.Failed) {
	case 0:
		return "no errors"
	case 1:
		return e.Failed[0].Error()
	}
	return fmt.Sprintf("%d of %d tasks did not complete, first: %s", len(e.Failed), e.Total, e.Failed[0].Error())
}

// Unwrap exposes every task error to errors.Is and errors.As
func (e *PoolError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f
	}
	return errs
}

// Skipped returns the names of tasks that never started because the run's
// context ended first
func (e *PoolError) Skipped() []string {
	var names []string
	for _, f := range e.Failed {
		if errors.Is(f.Err, context.Canceled) || errors.Is(f.Err, context.DeadlineExceeded) {
			names = append(names, f.TaskName)
		}
	}
	return names
}

// Pool runs independent tasks on a bounded set of goroutines. A failing
// task never cancels its siblings.
type Pool struct {
	workers  int
	timeout  time.Duration
	progress domain.ProgressManager
}

// NewPool creates a pool. workers <= 0 selects runtime.NumCPU(), timeout <= 0
// selects DefaultRunTimeout and a nil progress manager draws nothing.
func NewPool(workers int, timeout time.Duration, progress domain.ProgressManager) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	if progress == nil {
		progress = &NoOpProgressManager{}
	}
	return &Pool{workers: workers, timeout: timeout, progress: progress}
}

// Workers returns the concurrency limit
func (p *Pool) Workers() int {
	return p.workers
}

// Timeout returns the bound on one Run
func (p *Pool) Timeout() time.Duration {
	return p.timeout
}

// Run executes every task and waits for all of them. Tasks still queued
// when the context ends are reported with the context error rather than
// silently dropped.
func (p *Pool) Run(ctx context.Context, label string, tasks []domain.ExecutableTask) error {
	if len(tasks) == 0 {
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	bar := p.progress.StartTask(label, len(tasks))
	defer bar.Complete()

	var mu sync.Mutex
	var failed []TaskError
	record := func(name string, err error) {
		mu.Lock()
		failed = append(failed, TaskError{TaskName: name, Err: err})
		mu.Unlock()
	}

	// The group context is never cancelled by a task: every Go func
	// returns nil and failures are collected separately.
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(p.workers)
	for _, t := range tasks {
		g.Go(func() error {
			defer bar.Increment(1)
			if err := gctx.Err(); err != nil {
				record(t.Name(), err)
				return nil
			}
			if err := t.Execute(gctx); err != nil {
				record(t.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		return &PoolError{Total: len(tasks), Failed: failed}
	}
	return nil
}

// funcTask adapts a closure to domain.ExecutableTask
type funcTask struct {
	name string
	fn   func(ctx context.Context) error
}

func (t *funcTask) Name() string                      { return t.name }
func (t *funcTask) Execute(ctx context.Context) error { return t.fn(ctx) }
