package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/cache"
	"github.com/ludo-technologies/pyqc/internal/checker"
	"github.com/ludo-technologies/pyqc/internal/config"
	"github.com/ludo-technologies/pyqc/internal/hooklog"
	"github.com/ludo-technologies/pyqc/internal/metrics"
	"github.com/ludo-technologies/pyqc/service"
)

// QualityUseCase is the engine's entry point. It owns the run context: the
// checker registry, the cache, the hook logs and the commit gate. One value
// serves one process; call Close before exiting.
type QualityUseCase struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *checker.Registry
	store    cache.Store
	metrics  *metrics.Metrics
	runner   *service.Runner
	files    *FileHelper
	editLog  *hooklog.Logger
	gateLog  *hooklog.Logger
	gate     *service.Gate
	progress domain.ProgressManager
	tests    domain.TestRunner
	source   service.FileSource

	// edit-time checks in flight
	edits     sync.WaitGroup
	editCtx   context.Context
	cancelAll context.CancelFunc
	closeOnce sync.Once
}

// Option configures a QualityUseCase
type Option func(*QualityUseCase)

// WithLogger sets the diagnostic logger
func WithLogger(l *zap.Logger) Option {
	return func(uc *QualityUseCase) { uc.logger = l }
}

// WithStore replaces the cache opened from configuration
func WithStore(s cache.Store) Option {
	return func(uc *QualityUseCase) { uc.store = s }
}

// WithProgress sets the progress manager for check and fix runs
func WithProgress(pm domain.ProgressManager) Option {
	return func(uc *QualityUseCase) { uc.progress = pm }
}

// WithTestRunner replaces the configured test command
func WithTestRunner(r domain.TestRunner) Option {
	return func(uc *QualityUseCase) { uc.tests = r }
}

// WithFileSource replaces how the gate finds the files to check
func WithFileSource(fs service.FileSource) Option {
	return func(uc *QualityUseCase) { uc.source = fs }
}

// NewQualityUseCase wires every component from cfg. It fails only on
// configuration errors; a cache that cannot be opened degrades to no cache.
func NewQualityUseCase(cfg *config.Config, opts ...Option) (*QualityUseCase, error) {
	uc := &QualityUseCase{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(uc)
	}

	registry, err := checker.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	uc.registry = registry

	if uc.store == nil {
		if cfg.Cache.Enabled {
			uc.store = cache.OpenOrNoop(cfg.CacheDir(), cfg.Cache.TTL(), uc.logger.Named("cache"))
		} else {
			uc.store = cache.Noop{}
		}
	}
	if uc.progress == nil {
		uc.progress = service.NewProgressManager(false)
	}

	uc.metrics = metrics.New()
	uc.files = NewFileHelper(cfg.Root(), cfg.Analysis)
	uc.runner = service.NewRunner(registry,
		service.WithCache(uc.store),
		service.WithMetrics(uc.metrics),
		service.WithLogger(uc.logger.Named("runner")),
		service.WithPerformance(cfg.Performance),
		service.WithProgress(uc.progress),
	)

	uc.editLog = hooklog.NewEditLog(cfg.LogDir(), cfg.Hooks.ExcerptBytes)
	uc.gateLog = hooklog.NewGateLog(cfg.LogDir(), cfg.Hooks.ExcerptBytes)

	total, check, test := cfg.Gate.Timeouts()
	if uc.tests == nil && cfg.Gate.RunTests {
		uc.tests = service.NewCommandTestRunner(cfg.Gate.TestCommand, cfg.Root(), test)
	}
	if uc.source == nil {
		uc.source = uc.gateFiles
	}
	uc.gate = service.NewGate(uc.runner, uc.tests, uc.source,
		service.WithGateLog(uc.gateLog),
		service.WithGateMetrics(uc.metrics),
		service.WithGateLogger(uc.logger.Named("gate")),
		service.WithGateMode(domain.GateMode(cfg.Gate.Mode)),
		service.WithGateTimeouts(service.GateTimeouts{Total: total, Check: check, Test: test}),
		service.WithCheckOptions(domain.CheckOptions{NoCache: !cfg.Cache.Enabled}),
	)

	uc.editCtx, uc.cancelAll = context.WithCancel(context.Background())
	return uc, nil
}

// Config returns the configuration in use
func (uc *QualityUseCase) Config() *config.Config { return uc.cfg }

// Registry returns the enabled checkers
func (uc *QualityUseCase) Registry() *checker.Registry { return uc.registry }

// Store returns the result cache
func (uc *QualityUseCase) Store() cache.Store { return uc.store }

// Metrics returns the run metrics
func (uc *QualityUseCase) Metrics() *metrics.Metrics { return uc.metrics }

// EditLog returns the edit-time hook log
func (uc *QualityUseCase) EditLog() *hooklog.Logger { return uc.editLog }

// GateLog returns the commit gate log
func (uc *QualityUseCase) GateLog() *hooklog.Logger { return uc.gateLog }

// Gate returns the commit gate
func (uc *QualityUseCase) Gate() *service.Gate { return uc.gate }

// RunChecks collects the Python files under paths and checks them. An
// empty path list means the project root.
func (uc *QualityUseCase) RunChecks(ctx context.Context, paths []string, opts domain.CheckOptions) (*domain.AggregateReport, error) {
	files, err := uc.files.CollectPythonFiles(paths)
	if err != nil {
		return nil, fmt.Errorf("failed to collect Python files: %w", err)
	}
	if !uc.cfg.Cache.Enabled {
		opts.NoCache = true
	}

	ctx, cancel := uc.runContext(ctx)
	defer cancel()

	uc.logger.Debug("running checks", zap.Int("files", len(files)), zap.Strings("checkers", opts.Checkers))
	return uc.runner.RunChecks(ctx, files, opts)
}

// RunFix collects the Python files under paths and applies autofixes
func (uc *QualityUseCase) RunFix(ctx context.Context, paths []string, opts domain.FixOptions) (*domain.FixReport, error) {
	files, err := uc.files.CollectPythonFiles(paths)
	if err != nil {
		return nil, fmt.Errorf("failed to collect Python files: %w", err)
	}

	ctx, cancel := uc.runContext(ctx)
	defer cancel()

	uc.logger.Debug("running fixers", zap.Int("files", len(files)), zap.Bool("dry_run", opts.DryRun))
	return uc.runner.RunFix(ctx, files, opts)
}

// runContext applies performance.timeout_seconds when set
func (uc *QualityUseCase) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.cfg.Performance.TimeoutSeconds > 0 {
		return context.WithTimeout(ctx, time.Duration(uc.cfg.Performance.TimeoutSeconds)*time.Second)
	}
	return context.WithCancel(ctx)
}

// Close waits for in-flight edit-time checks, exports metrics when a
// textfile path is configured and closes the cache.
func (uc *QualityUseCase) Close() error {
	var err error
	uc.closeOnce.Do(func() {
		uc.Wait()
		uc.cancelAll()
		uc.progress.Close()

		if path := uc.cfg.Metrics.TextfilePath; path != "" {
			if werr := uc.metrics.WriteTextfile(uc.cfg.Resolve(path)); werr != nil {
				uc.logger.Warn("metrics export failed", zap.Error(werr))
			}
		}
		err = uc.store.Close()
	})
	return err
}
