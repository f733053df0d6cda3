// Package watch turns filesystem writes to Python sources into debounced
// batches of paths for the edit-time check path.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ludo-technologies/pyqc/internal/constants"
)

// DefaultDebounce collapses the burst of events an editor save produces
const DefaultDebounce = 300 * time.Millisecond

// Handler receives a deduplicated, sorted batch of changed files
type Handler func(paths []string)

// Options configures a Watcher
type Options struct {
	Debounce   time.Duration
	IgnoreDirs []string
	Extensions []string
	Logger     *zap.Logger
}

// Watcher watches a directory tree recursively
type Watcher struct {
	root       string
	watcher    *fsnotify.Watcher
	handler    Handler
	debounce   time.Duration
	ignoreDirs []string
	extensions []string
	logger     *zap.Logger

	changes  chan string
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher on root. Nothing is watched until Start.
func New(root string, handler Handler, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.IgnoreDirs == nil {
		opts.IgnoreDirs = constants.DefaultExcludeDirs
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".py", ".pyi"}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:       root,
		watcher:    fw,
		handler:    handler,
		debounce:   opts.Debounce,
		ignoreDirs: opts.IgnoreDirs,
		extensions: opts.Extensions,
		logger:     opts.Logger,
		changes:    make(chan string, 1024),
		done:       make(chan struct{}),
	}, nil
}

// Start adds the tree and begins delivering batches until ctx ends or Stop
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.debounceLoop(ctx)
	return nil
}

// Stop closes the watcher and waits for the final batch to be handled
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && w.ignoredDir(d.Name()) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) ignoredDir(name string) bool {
	return slices.Contains(w.ignoreDirs, name)
}

// relevant reports whether path is a source file outside ignored directories
func (w *Watcher) relevant(path string) bool {
	if !slices.Contains(w.extensions, filepath.Ext(path)) {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.Dir(rel), string(filepath.Separator)) {
		if w.ignoredDir(part) {
			return false
		}
	}
	return true
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if w.isNewDir(event.Name) {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Debug("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
					continue
				}
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !w.relevant(event.Name) {
				continue
			}
			select {
			case w.changes <- event.Name:
			default:
				w.logger.Warn("watch buffer full, dropping event", zap.String("path", event.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) isNewDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir() && !w.ignoredDir(filepath.Base(path))
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if len(pending) == 0 {
			return
		}
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		clear(pending)
		if w.handler != nil {
			w.handler(paths)
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case path := <-w.changes:
			pending[path] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			flush()
		}
	}
}
