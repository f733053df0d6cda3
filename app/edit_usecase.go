package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/hooklog"
	"github.com/ludo-technologies/pyqc/internal/watch"
)

// OnFileChanged starts a background check of one edited file and returns
// immediately. The outcome goes to the edit-time hook log; nothing is ever
// returned to the caller. Files that are not Python or are excluded are
// ignored.
func (uc *QualityUseCase) OnFileChanged(path string) {
	if !uc.files.Accepts(path) {
		uc.logger.Debug("ignoring edited file", zap.String("path", path))
		return
	}

	uc.edits.Add(1)
	go func() {
		defer uc.edits.Done()
		_, _ = uc.CheckFile(uc.editCtx, path)
	}()
}

// Wait blocks until every check started by OnFileChanged has finished
func (uc *QualityUseCase) Wait() {
	uc.edits.Wait()
}

// CheckFile checks one file synchronously and records the execution in the
// edit-time hook log.
func (uc *QualityUseCase) CheckFile(ctx context.Context, path string) (*domain.AggregateReport, error) {
	command := strings.Join(uc.registry.Names(), ",")
	if err := uc.editLog.Start(path, command); err != nil {
		uc.logger.Warn("failed to write hook log", zap.Error(err))
	}

	start := time.Now()
	ctx, cancel := uc.runContext(ctx)
	defer cancel()

	report, err := uc.runner.RunChecks(ctx, []string{path}, domain.CheckOptions{NoCache: !uc.cfg.Cache.Enabled})

	entry := hooklog.Entry{
		Target:   path,
		Command:  command,
		Duration: time.Since(start),
	}
	switch {
	case err != nil:
		entry.Error = err.Error()
		uc.logger.Warn("edit-time check failed", zap.String("path", path), zap.Error(err))
	default:
		entry.Success = report.Success
		entry.Issues = report.TotalIssues()
		entry.Output = issueLines(report)
		entry.Error = failureLines(report)
	}
	if lerr := uc.editLog.Log(entry); lerr != nil {
		uc.logger.Warn("failed to write hook log", zap.String("path", uc.editLog.Path()), zap.Error(lerr))
	}
	return report, err
}

// Watch hands every debounced batch of saved Python files under root to
// handle until ctx ends. A nil handle runs OnFileChanged on each file.
func (uc *QualityUseCase) Watch(ctx context.Context, root string, handle func(paths []string)) error {
	if root == "" {
		root = uc.cfg.Root()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	if handle == nil {
		handle = func(paths []string) {
			for _, p := range paths {
				uc.OnFileChanged(p)
			}
		}
	}
	w, err := watch.New(abs, func(paths []string) {
		var accepted []string
		for _, p := range paths {
			if uc.files.Accepts(p) {
				accepted = append(accepted, p)
			}
		}
		if len(accepted) > 0 {
			handle(accepted)
		}
	}, watch.Options{Logger: uc.logger.Named("watch")})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}

	<-ctx.Done()
	w.Stop()
	uc.Wait()
	return nil
}

func issueLines(r *domain.AggregateReport) string {
	var b strings.Builder
	for _, is := range r.Issues {
		fmt.Fprintf(&b, "%s %s [%s %s] %s\n", is.Location(), is.Severity, is.Checker, is.Code, is.Message)
	}
	return strings.TrimSpace(b.String())
}

func failureLines(r *domain.AggregateReport) string {
	msgs := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		msgs = append(msgs, f.Error.Error())
	}
	return strings.Join(msgs, "; ")
}
