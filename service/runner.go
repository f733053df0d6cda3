package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/cache"
	"github.com/ludo-technologies/pyqc/internal/checker"
	"github.com/ludo-technologies/pyqc/internal/config"
	"github.com/ludo-technologies/pyqc/internal/metrics"
)

// Runner schedules every (file, checker) pair of a run onto the parallel
// worker pool and merges the results.
type Runner struct {
	registry *checker.Registry
	store    cache.Store
	metrics  *metrics.Metrics
	logger   *zap.Logger
	perf     config.PerformanceConfig
	progress domain.ProgressManager
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithCache sets the result cache (default: none)
func WithCache(store cache.Store) RunnerOption {
	return func(r *Runner) { r.store = store }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithLogger sets the diagnostic logger
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithPerformance sets worker and run-timeout limits
func WithPerformance(p config.PerformanceConfig) RunnerOption {
	return func(r *Runner) { r.perf = p }
}

// WithProgress sets the progress manager
func WithProgress(pm domain.ProgressManager) RunnerOption {
	return func(r *Runner) { r.progress = pm }
}

// NewRunner creates a runner over the checkers in registry
func NewRunner(registry *checker.Registry, opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: registry,
		store:    cache.Noop{},
		metrics:  metrics.New(),
		logger:   zap.NewNop(),
		progress: &NoOpProgressManager{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Metrics returns the sink the runner reports to
func (r *Runner) Metrics() *metrics.Metrics {
	return r.metrics
}

// Registry returns the checker registry
func (r *Runner) Registry() *checker.Registry {
	return r.registry
}

// pool sizes a worker pool for one run. An explicit worker count wins over
// performance.max_goroutines.
func (r *Runner) pool(workers int) *Pool {
	if workers <= 0 {
		workers = r.perf.Workers()
	}
	return NewPool(workers, time.Duration(r.perf.TimeoutSeconds)*time.Second, r.progress)
}

// RunChecks runs the selected checkers against every file. Configuration
// and missing-tool errors abort the run, normally before any work starts;
// any other failure is confined to its pair and reported in the result.
func (r *Runner) RunChecks(ctx context.Context, files []string, opts domain.CheckOptions) (*domain.AggregateReport, error) {
	start := time.Now()

	checkers, err := r.registry.Select(opts.Checkers)
	if err != nil {
		return nil, err
	}
	if len(checkers) == 0 {
		return nil, domain.NewConfigError("", "no checkers enabled", nil)
	}
	if err := checker.Preflight(checkers); err != nil {
		return nil, err
	}

	files = dedupe(files)
	m := len(checkers)
	results := make([]domain.CheckResult, len(files)*m)
	var misses atomic.Int64

	tasks := make([]domain.ExecutableTask, 0, len(results))
	for fi, file := range files {
		for ci, c := range checkers {
			slot := fi*m + ci
			tasks = append(tasks, &funcTask{
				name: file + ":" + c.Name(),
				fn: func(ctx context.Context) error {
					res, missed := r.runPair(ctx, file, c, opts.NoCache)
					if missed {
						misses.Add(1)
					}
					results[slot] = res
					return nil
				},
			})
		}
	}

	if err := r.pool(opts.Workers).Run(ctx, "Checking", tasks); err != nil {
		r.logger.Debug("pool reported unfinished pairs", zap.Error(err))
	}

	// Pairs the pool never started (run cancelled or timed out) still
	// get exactly one result each.
	for fi, file := range files {
		for ci, c := range checkers {
			slot := fi*m + ci
			if results[slot].Checker != "" {
				continue
			}
			cause := ctx.Err()
			if cause == nil {
				cause = context.DeadlineExceeded
			}
			results[slot] = domain.CheckResult{
				File:    file,
				Checker: c.Name(),
				Issues:  []domain.Issue{},
				Error:   domain.NewExecutionError(c.Name(), file, -1, "not run", cause),
			}
		}
	}

	report := Aggregate(results, time.Since(start))
	report.CacheMisses = int(misses.Load())
	// A tool can vanish after preflight; that still ends the run
	for _, f := range report.Failures {
		if f.Error != nil && f.Error.Aborts() {
			return nil, f.Error
		}
	}
	for _, w := range report.Warnings {
		r.logger.Warn(w)
	}
	return report, nil
}

// runPair checks one file with one checker. The boolean reports a cache miss.
func (r *Runner) runPair(ctx context.Context, file string, c domain.Checker, noCache bool) (domain.CheckResult, bool) {
	start := time.Now()
	res := domain.CheckResult{File: file, Checker: c.Name(), Issues: []domain.Issue{}}
	fail := func(qe *domain.QualityError) domain.CheckResult {
		res.Error = qe
		res.Duration = time.Since(start)
		r.metrics.PairFailed(c.Name(), string(qe.Kind))
		r.logger.Warn("check failed",
			zap.String("file", file), zap.String("checker", c.Name()), zap.Error(qe))
		return res
	}

	content, err := os.ReadFile(file)
	if err != nil {
		return fail(domain.NewExecutionError(c.Name(), file, -1, "cannot read file", err)), false
	}

	key := cache.Key(content, c.Name(), c.Fingerprint())
	if !noCache {
		if entry, ok := r.store.Get(key); ok {
			r.metrics.CacheHit()
			res.Issues = relocate(entry.Issues, file)
			res.Success = true
			res.Cached = true
			res.Duration = time.Since(start)
			return res, false
		}
		r.metrics.CacheMiss()
	}

	out, err := c.Invoke(ctx, file)
	r.metrics.ObserveInvocation(c.Name(), out.Duration)
	if err != nil {
		return fail(asQualityError(err, c.Name(), file)), !noCache
	}

	parsed := c.Parse(file, out)
	if parsed.Issues != nil {
		res.Issues = parsed.Issues
	}
	res.Warnings = parsed.Warnings
	res.Success = true
	res.Duration = time.Since(start)

	// Output we could not fully interpret is not worth remembering
	if !noCache && len(parsed.Warnings) == 0 {
		if err := r.store.Put(key, res.Issues); err != nil {
			r.logger.Debug("cache write failed", zap.String("file", file), zap.Error(err))
		}
	}
	return res, !noCache
}

// relocate copies cached issues onto the path being checked; identical
// content may live at more than one path.
func relocate(issues []domain.Issue, file string) []domain.Issue {
	out := make([]domain.Issue, len(issues))
	for i, is := range issues {
		is.File = file
		out[i] = is
	}
	return out
}

func asQualityError(err error, checkerName, file string) *domain.QualityError {
	if qe, ok := domain.AsQualityError(err); ok {
		return qe
	}
	return domain.NewExecutionError(checkerName, file, -1, err.Error(), err)
}

func dedupe(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		key := filepath.Clean(f)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}

// RunFix applies autofixes. Files are processed in parallel; the checkers
// for one file run strictly one after another in registry order, so a
// formatter and a linter never write the same file at once. A dry run
// reports fixable issues without modifying anything.
func (r *Runner) RunFix(ctx context.Context, files []string, opts domain.FixOptions) (*domain.FixReport, error) {
	start := time.Now()

	selected, err := r.registry.Select(opts.Checkers)
	if err != nil {
		return nil, err
	}
	fixers := checker.Fixers(selected)
	if len(fixers) == 0 {
		return nil, domain.NewConfigError("", "no enabled checker supports autofix", nil)
	}
	if err := checker.Preflight(fixers); err != nil {
		return nil, err
	}

	names := make([]string, len(fixers))
	for i, f := range fixers {
		names[i] = f.Name()
	}

	files = dedupe(files)
	report := &domain.FixReport{Files: make([]domain.FileFix, len(files)), DryRun: opts.DryRun}

	if opts.DryRun {
		checked, err := r.RunChecks(ctx, files, domain.CheckOptions{Checkers: names, Workers: opts.Workers, NoCache: true})
		if err != nil {
			return nil, err
		}
		for i, f := range files {
			report.Files[i] = domain.FileFix{File: f, Applied: []string{}}
		}
		index := make(map[string]int, len(files))
		for i, f := range files {
			index[f] = i
		}
		for _, is := range checked.Issues {
			if is.Fixable {
				report.Files[index[is.File]].Fixable++
			}
		}
		for _, failure := range checked.Failures {
			ff := &report.Files[index[failure.File]]
			ff.Error = joinError(ff.Error, failure.Error.Error())
		}
		finishFixReport(report, start)
		return report, nil
	}

	tasks := make([]domain.ExecutableTask, 0, len(files))
	for i, file := range files {
		tasks = append(tasks, &funcTask{
			name: file,
			fn: func(ctx context.Context) error {
				report.Files[i] = r.fixFile(ctx, file, fixers)
				return nil
			},
		})
	}
	if err := r.pool(opts.Workers).Run(ctx, "Fixing", tasks); err != nil {
		r.logger.Debug("pool reported unfinished files", zap.Error(err))
	}
	for i, file := range files {
		if report.Files[i].File == "" {
			report.Files[i] = domain.FileFix{File: file, Applied: []string{}, Error: "not run: cancelled"}
		}
	}

	finishFixReport(report, start)
	return report, nil
}

// fixFile runs each fixer on one file in order and reports whether the
// content changed.
func (r *Runner) fixFile(ctx context.Context, file string, fixers []domain.Checker) domain.FileFix {
	ff := domain.FileFix{File: file, Applied: []string{}}

	before, err := os.ReadFile(file)
	if err != nil {
		ff.Error = fmt.Sprintf("cannot read file: %v", err)
		return ff
	}

	for _, c := range fixers {
		out, err := c.Fix(ctx, file)
		r.metrics.ObserveInvocation(c.Name(), out.Duration)
		if err != nil {
			qe := asQualityError(err, c.Name(), file)
			r.metrics.PairFailed(c.Name(), string(qe.Kind))
			ff.Error = joinError(ff.Error, qe.Error())
			if errors.Is(ctx.Err(), context.Canceled) {
				break
			}
			continue
		}
		ff.Applied = append(ff.Applied, c.Name())
	}

	after, err := os.ReadFile(file)
	if err != nil {
		ff.Error = joinError(ff.Error, fmt.Sprintf("cannot re-read file: %v", err))
		return ff
	}
	ff.Changed = !bytes.Equal(before, after)
	return ff
}

func finishFixReport(report *domain.FixReport, start time.Time) {
	for _, f := range report.Files {
		if f.Changed {
			report.FixedFiles++
		}
		if f.Error != "" {
			report.FailedFiles++
		}
	}
	report.Duration = time.Since(start)
}

func joinError(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "; " + next
}
