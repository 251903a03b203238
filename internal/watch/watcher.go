// Package watch is the thin filesystem-watch collaborator backing the
// folder_rescan/folder_update job kinds (spec.md §4.5). Filesystem
// scanning itself - fingerprinting, mime sniffing, diffing against the
// store - is out of scope (spec.md §1); this package only watches
// directories for change notifications and enumerates paths a rescan
// would need to consider: one fsnotify.Watcher, a debounced
// accumulate-then-callback loop, recursive directory registration.
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// Event is one debounced batch of changed paths.
type Event struct {
	Paths []string
}

// Watcher recursively watches a set of root folders, filtering out paths
// matched by Exclude globs, and delivers debounced batches of changed
// paths to a callback.
type Watcher struct {
	fsw     *fsnotify.Watcher
	roots   []string
	exclude []glob.Glob

	debounce time.Duration

	mu          sync.Mutex
	accumulated map[string]struct{}
	timer       *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// New builds a Watcher over roots, skipping any path matching one of the
// exclude glob patterns, matched against full paths (e.g. "**.tmp",
// "**/.git/**").
func New(roots []string, exclude []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: failed to start fsnotify: %w", err)
	}

	globs := make([]glob.Glob, 0, len(exclude))
	for _, pattern := range exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch: invalid exclude pattern %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}

	w := &Watcher{
		fsw:         fsw,
		roots:       roots,
		exclude:     globs,
		debounce:    500 * time.Millisecond,
		accumulated: make(map[string]struct{}),
		done:        make(chan struct{}),
	}

	for _, root := range roots {
		if err := w.addRecursively(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) excluded(path string) bool {
	for _, g := range w.exclude {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func (w *Watcher) addRecursively(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.excluded(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Start runs the debounced event loop until ctx is cancelled or Stop is
// called, invoking onChange once per quiet period with the batch of
// changed paths observed since the last call.
func (w *Watcher) Start(ctx context.Context, onChange func(Event)) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	go w.run(onChange)
}

// Stop halts the event loop and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		if w.cancel != nil {
			w.cancel()
			<-w.done
		} else {
			close(w.done)
		}
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) run(onChange func(Event)) {
	defer close(w.done)

	fire := make(chan struct{}, 1)
	for {
		select {
		case <-w.ctx.Done():
			w.stopTimer()
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !w.excluded(ev.Name) {
					if err := w.fsw.Add(ev.Name); err != nil {
						log.Printf("watch: failed to watch new directory %s: %v", ev.Name, err)
					}
				}
			}
			if w.excluded(ev.Name) {
				continue
			}

			w.mu.Lock()
			w.accumulated[ev.Name] = struct{}{}
			w.mu.Unlock()
			w.resetTimer(fire)

		case <-fire:
			w.flush(onChange)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watch: fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) resetTimer(fire chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case fire <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) flush(onChange func(Event)) {
	w.mu.Lock()
	if len(w.accumulated) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.accumulated))
	for p := range w.accumulated {
		paths = append(paths, p)
	}
	w.accumulated = make(map[string]struct{})
	w.mu.Unlock()

	if onChange != nil {
		onChange(Event{Paths: paths})
	}
}

// ListMatching walks roots once and returns every regular file path not
// matched by an exclude glob - the bounded enumeration a folder_rescan/
// folder_update job performs before handing paths to the extraction
// pipeline. It does not fingerprint or classify files; that belongs to
// the out-of-scope filesystem-scanning collaborator (spec.md §1).
func ListMatching(roots []string, exclude []string) ([]string, error) {
	globs := make([]glob.Glob, 0, len(exclude))
	for _, pattern := range exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("watch: invalid exclude pattern %q: %w", pattern, err)
		}
		globs = append(globs, g)
	}

	var out []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			for _, g := range globs {
				if g.Match(path) {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
			}
			if !d.IsDir() {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("watch: failed to walk %s: %w", root, err)
		}
	}
	return out, nil
}
