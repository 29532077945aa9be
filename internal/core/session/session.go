// Package session owns everything one open project needs: the symbol index,
// the resolver over it, the change bridge and the producers feeding it.
package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"phelnav/internal/core/bridge"
	"phelnav/internal/core/config"
	errs "phelnav/internal/core/errors"
	"phelnav/internal/core/watcher"
	"phelnav/internal/engine/index"
	"phelnav/internal/engine/parser"
	"phelnav/internal/engine/resolver"
	"phelnav/internal/shared/observability"
	"phelnav/internal/shared/util"

	"github.com/google/uuid"
)

type Session struct {
	ID     string
	Paths  config.ResolvedPaths
	Parser *parser.Parser

	// Documents holds editor buffers that shadow the files on disk.
	Documents *index.Overlay
	Index     *index.Index
	Resolver  *resolver.Resolver
	Bridge    *bridge.Bridge

	logger          *slog.Logger
	configPath      string
	cwd             string
	reanalyze       bridge.Reanalyzer
	onConfig        func(config.Runtime)
	shutdownTracing func(context.Context) error

	mu         sync.Mutex
	cfg        *config.Config
	fsWatcher  *watcher.Watcher
	cfgWatcher *config.Reloader
	closed     bool
}

type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConfigPath enables hot reload of the given configuration file once
// Watch starts.
func WithConfigPath(path string) Option {
	return func(s *Session) { s.configPath = path }
}

// WithWorkingDir sets the directory relative paths are resolved against.
func WithWorkingDir(dir string) Option {
	return func(s *Session) { s.cwd = dir }
}

// WithReanalysis registers the downstream consumer told about every applied
// index change.
func WithReanalysis(fn bridge.Reanalyzer) Option {
	return func(s *Session) { s.reanalyze = fn }
}

// WithConfigListener is called after edited runtime settings were applied.
func WithConfigListener(fn func(config.Runtime)) Option {
	return func(s *Session) { s.onConfig = fn }
}

func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Session{
		ID:     uuid.NewString(),
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.ID)

	if s.cwd == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		s.cwd = cwd
	}
	paths, err := config.ResolvePaths(cfg, s.cwd)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeValidationError, "resolve project paths")
	}
	s.Paths = paths
	for _, err := range config.CheckWatchPaths(paths.WatchPaths) {
		s.logger.Warn("watch path skipped", "error", err)
	}

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Endpoint:    cfg.Observability.OTLPEndpoint,
		ServiceName: cfg.Observability.ServiceName,
		SessionID:   s.ID,
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeInternal, "initialize tracing")
	}
	s.shutdownTracing = shutdown

	s.Parser = parser.NewParser(cfg.Index.Extensions)
	disk, err := index.NewDirSource(existing(paths.WatchPaths), s.Parser, cfg.Exclude.Dirs, cfg.Exclude.Files)
	if err != nil {
		_ = shutdown(ctx)
		return nil, errs.Wrap(err, errs.CodeValidationError, "compile exclude patterns")
	}
	s.Documents = index.NewOverlay(disk, s.Parser)
	s.Index = index.New(s.Documents,
		index.WithWorkers(cfg.Index.Workers),
		index.WithTreeCacheSize(cfg.Index.TreeCacheSize),
		index.WithLogger(s.logger),
	)
	s.Resolver = resolver.New(s.Index,
		resolver.WithLogger(s.logger),
		resolver.WithMaxVariants(cfg.Resolver.MaxVariants),
	)

	bridgeOpts := []bridge.Option{
		bridge.WithLogger(s.logger),
		bridge.WithEditDebounce(cfg.Watch.EditDebounce),
	}
	if s.reanalyze != nil {
		bridgeOpts = append(bridgeOpts, bridge.WithReanalysis(s.reanalyze,
			util.NewLimiter(cfg.Reanalysis.PerSecond, cfg.Reanalysis.Burst)))
	}
	s.Bridge = bridge.New(s.Index, s.Documents, bridgeOpts...)

	s.logger.Info("session opened", "root", paths.ProjectRoot, "watch_paths", paths.WatchPaths)
	return s, nil
}

// Config returns the configuration currently in effect.
func (s *Session) Config() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Build runs the full index build now instead of on first lookup.
func (s *Session) Build(ctx context.Context) error {
	return s.Index.EnsureBuilt(ctx)
}

// Watch starts the filesystem producer and, when a configuration path is
// known, the configuration hot reload.
func (s *Session) Watch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New(errs.CodeInternal, "session is closed")
	}
	if s.fsWatcher != nil {
		return nil
	}

	w, err := watcher.NewWatcher(s.cfg.Watch.Debounce, s.cfg.Exclude.Dirs, s.cfg.Exclude.Files, s.handleFileEvents)
	if err != nil {
		return err
	}
	w.SetExtensions(s.cfg.Index.Extensions)
	if err := w.Watch(existing(s.Paths.WatchPaths)); err != nil {
		_ = w.Close()
		return err
	}
	s.fsWatcher = w

	if s.configPath != "" {
		cw := config.NewReloader(s.configPath, s.cfg, s.applyConfig)
		if err := cw.Start(ctx); err != nil {
			s.logger.Warn("config hot reload unavailable", "path", s.configPath, "error", err)
		} else {
			s.cfgWatcher = cw
		}
	}
	return nil
}

func (s *Session) handleFileEvents(events []watcher.Event) {
	for i := range events {
		events[i].Path = util.CanonicalPath(events[i].Path)
	}
	s.Bridge.HandleFileEvents(events)
}

// applyConfig pushes edited runtime settings into the producers.
func (s *Session) applyConfig(rt config.Runtime) {
	s.mu.Lock()
	s.cfg = s.cfg.WithRuntime(rt)
	w := s.fsWatcher
	s.mu.Unlock()

	s.Bridge.SetDebounce(rt.Watch.EditDebounce)
	s.Bridge.SetReanalysisRate(rt.Reanalysis.PerSecond, rt.Reanalysis.Burst)
	if w != nil {
		w.SetDebounce(rt.Watch.Debounce)
	}
	s.logger.Info("runtime settings reloaded",
		"debounce", rt.Watch.Debounce,
		"edit_debounce", rt.Watch.EditDebounce,
		"reanalysis_per_second", rt.Reanalysis.PerSecond,
		"reanalysis_burst", rt.Reanalysis.Burst,
	)
	if s.onConfig != nil {
		s.onConfig(rt)
	}
}

// Close stops the producers first so nothing feeds a closed bridge.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	fsw, cw := s.fsWatcher, s.cfgWatcher
	s.mu.Unlock()

	var errList []error
	if cw != nil {
		cw.Stop()
	}
	if fsw != nil {
		errList = append(errList, fsw.Close())
	}
	errList = append(errList, s.Bridge.Close(), s.Index.Close())
	if s.shutdownTracing != nil {
		errList = append(errList, s.shutdownTracing(context.Background()))
	}
	s.logger.Info("session closed")
	return errors.Join(errList...)
}

func existing(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}
