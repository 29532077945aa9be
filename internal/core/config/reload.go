package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Runtime holds the settings a running session takes over from an edited
// phelnav.toml. Everything else only applies after a restart.
type Runtime struct {
	Watch      Watch
	Reanalysis Reanalysis
}

// Runtime extracts the hot-reloadable part of c.
func (c *Config) Runtime() Runtime {
	return Runtime{Watch: c.Watch, Reanalysis: c.Reanalysis}
}

// WithRuntime returns a copy of c carrying rt.
func (c *Config) WithRuntime(rt Runtime) *Config {
	next := *c
	next.Watch = rt.Watch
	next.Reanalysis = rt.Reanalysis
	return &next
}

// RestartOnly names the sections of next that differ from c but are not
// picked up until the session is rebuilt.
func (c *Config) RestartOnly(next *Config) []string {
	var changed []string
	for _, s := range []struct {
		name     string
		old, new any
	}{
		{"watch_paths", c.WatchPaths, next.WatchPaths},
		{"paths", c.Paths, next.Paths},
		{"index", c.Index, next.Index},
		{"exclude", c.Exclude, next.Exclude},
		{"resolver", c.Resolver, next.Resolver},
		{"observability", c.Observability, next.Observability},
	} {
		if !reflect.DeepEqual(s.old, s.new) {
			changed = append(changed, s.name)
		}
	}
	return changed
}

const reloadSettle = 100 * time.Millisecond

// Reloader follows one configuration file and hands runtime settings to
// apply whenever a valid edit changes them.
type Reloader struct {
	path  string
	apply func(Runtime)

	mu      sync.Mutex
	current *Config

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewReloader starts from current, the configuration the session was built
// with.
func NewReloader(path string, current *Config, apply func(Runtime)) *Reloader {
	return &Reloader{
		path:    filepath.Clean(path),
		apply:   apply,
		current: current,
		stop:    make(chan struct{}),
	}
}

// Start watches the file's directory, since editors replace the file on save.
func (r *Reloader) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(r.path)); err != nil {
		_ = fsw.Close()
		return err
	}
	slog.Info("following configuration", "path", r.path)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer fsw.Close()
		r.loop(ctx, fsw)
	}()
	return nil
}

func (r *Reloader) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	settle := time.NewTimer(reloadSettle)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == r.path && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				settle.Reset(reloadSettle)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Error("configuration watch failed", "path", r.path, "error", err)
		case <-settle.C:
			r.reload()
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the watch. It is safe to call more than once.
func (r *Reloader) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

// Current is the configuration with every applied runtime change.
func (r *Reloader) Current() *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Reloader) reload() {
	next, err := Load(r.path)
	if err != nil {
		slog.Warn("keeping previous configuration", "path", r.path, "error", err)
		return
	}

	r.mu.Lock()
	prev := r.current
	if pending := prev.RestartOnly(next); len(pending) > 0 {
		slog.Warn("configuration sections change on restart only", "path", r.path, "sections", pending)
	}
	rt := next.Runtime()
	if rt == prev.Runtime() {
		r.mu.Unlock()
		slog.Debug("configuration edit leaves runtime settings unchanged", "path", r.path)
		return
	}
	r.current = prev.WithRuntime(rt)
	r.mu.Unlock()

	if r.apply != nil {
		r.apply(rt)
	}
}
