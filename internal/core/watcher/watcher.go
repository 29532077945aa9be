// Package watcher turns fsnotify activity under the project roots into
// debounced batches of source file events.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"phelnav/internal/shared/observability"
	"phelnav/internal/shared/util"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

type Op int

const (
	OpChanged Op = iota
	OpCreated
	OpDeleted
	OpRenamed
	// OpDirRemoved reports a watched directory that was deleted or moved
	// away; the files indexed under it are not reported one by one.
	OpDirRemoved
)

func (o Op) String() string {
	switch o {
	case OpCreated:
		return "created"
	case OpDeleted:
		return "deleted"
	case OpRenamed:
		return "renamed"
	case OpDirRemoved:
		return "dir-removed"
	default:
		return "changed"
	}
}

// Event is one coalesced change to a source file. A rename is reported on
// the old path; the new path arrives as its own create.
type Event struct {
	Path string
	Op   Op
}

type Watcher struct {
	fsWatcher    *fsnotify.Watcher
	debounce     time.Duration
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
	extFilters   map[string]bool
	onChange     func([]Event)
	callbackMu   sync.Mutex

	pending   map[string]Op
	pendingMu sync.Mutex
	timer     *time.Timer
	closed    bool

	dirs  map[string]bool
	dirMu sync.Mutex
}

func NewWatcher(debounce time.Duration, excludeDirs, excludeFiles []string, onChange func([]Event)) (*Watcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}
	compiledDirs, err := util.CompileGlobs(excludeDirs)
	if err != nil {
		return nil, err
	}
	compiledFiles, err := util.CompileGlobs(excludeFiles)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher:    fsw,
		debounce:     debounce,
		excludeDirs:  compiledDirs,
		excludeFiles: compiledFiles,
		extFilters:   map[string]bool{".phel": true},
		onChange:     onChange,
		pending:      make(map[string]Op),
		dirs:         make(map[string]bool),
	}, nil
}

// SetExtensions replaces the recognised source file extensions.
func (w *Watcher) SetExtensions(extensions []string) {
	filters := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		filters[normalized] = true
	}
	w.pendingMu.Lock()
	w.extFilters = filters
	w.pendingMu.Unlock()
}

func (w *Watcher) SetDebounce(debounce time.Duration) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.debounce = debounce
}

func (w *Watcher) Watch(paths []string) error {
	for _, path := range paths {
		if err := w.watchRecursive(path); err != nil {
			return err
		}
	}

	go w.run()
	return nil
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && w.shouldExcludeDir(path) {
				return filepath.SkipDir
			}
			if err := w.fsWatcher.Add(path); err != nil {
				return err
			}
			w.dirMu.Lock()
			w.dirs[filepath.Clean(path)] = true
			w.dirMu.Unlock()
		}
		return nil
	})
}

// forgetDir drops dir and every watched directory below it. It reports
// whether dir was being watched.
func (w *Watcher) forgetDir(dir string) bool {
	dir = filepath.Clean(dir)
	prefix := dir + string(filepath.Separator)

	w.dirMu.Lock()
	watched := w.dirs[dir]
	var gone []string
	for d := range w.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			gone = append(gone, d)
			delete(w.dirs, d)
		}
	}
	w.dirMu.Unlock()

	for _, d := range gone {
		// The kernel may already have dropped the watch.
		_ = w.fsWatcher.Remove(d)
	}
	return watched
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()

			if event.Has(fsnotify.Create) {
				info, err := os.Stat(event.Name)
				if err == nil && info.IsDir() {
					if !w.shouldExcludeDir(event.Name) {
						if err := w.watchRecursive(event.Name); err != nil {
							slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
						} else {
							w.enqueueExistingFiles(event.Name)
						}
					}
					continue
				}
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if w.forgetDir(event.Name) {
					w.schedule(event.Name, OpDirRemoved)
					continue
				}
			}

			if w.shouldExcludeFile(event.Name) {
				continue
			}

			switch {
			case event.Has(fsnotify.Remove):
				w.schedule(event.Name, OpDeleted)
			case event.Has(fsnotify.Rename):
				w.schedule(event.Name, OpRenamed)
			case event.Has(fsnotify.Create):
				w.schedule(event.Name, OpCreated)
			case event.Has(fsnotify.Write):
				w.schedule(event.Name, OpChanged)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

// schedule records the latest operation for path and re-arms the batch timer.
func (w *Watcher) schedule(path string, op Op) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	if w.closed {
		return
	}

	// A write right after a create is still a create for the consumer.
	if prev, ok := w.pending[path]; ok && prev == OpCreated && op == OpChanged {
		op = OpCreated
	}
	w.pending[path] = op

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	events := make([]Event, 0, len(w.pending))
	for path, op := range w.pending {
		events = append(events, Event{Path: path, Op: op})
	}
	w.pending = make(map[string]Op)
	w.pendingMu.Unlock()

	if len(events) == 0 {
		return
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	w.onChange(events)
}

func (w *Watcher) shouldExcludeDir(path string) bool {
	return util.MatchesAny(w.excludeDirs, path)
}

func (w *Watcher) shouldExcludeFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))

	w.pendingMu.Lock()
	filters := w.extFilters
	w.pendingMu.Unlock()
	if len(filters) > 0 && !filters[strings.ToLower(filepath.Ext(base))] {
		return true
	}
	return util.MatchesAny(w.excludeFiles, path)
}

func (w *Watcher) Close() error {
	w.pendingMu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return w.fsWatcher.Close()
}

func (w *Watcher) enqueueExistingFiles(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}
		if info.IsDir() {
			if path != root && w.shouldExcludeDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.shouldExcludeFile(path) {
			return nil
		}
		w.schedule(path, OpCreated)
		return nil
	})
}
