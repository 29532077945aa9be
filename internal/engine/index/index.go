// Package index aggregates per-file definition scans into a project-wide
// lookup keyed by short namespace and by file.
package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"phelnav/internal/engine/parser"
	"phelnav/internal/engine/symbols"
	"phelnav/internal/shared/observability"
	"phelnav/internal/shared/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const defaultTreeCacheSize = 512

// Index is the symbol table of one open project. Lookups build it lazily on
// first use; afterwards it only changes through Refresh, RefreshFromTree and
// Remove.
type Index struct {
	source  Source
	logger  *slog.Logger
	workers int

	mu          sync.RWMutex
	byNamespace map[string][]symbols.Definition
	byFile      map[string][]symbols.Definition
	trees       *lruCache[string, *parser.File]

	buildMu sync.Mutex
	built   atomic.Bool
}

type Option func(*Index)

// WithWorkers bounds how many files a full build scans concurrently.
func WithWorkers(n int) Option {
	return func(x *Index) {
		if n > 0 {
			x.workers = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(x *Index) {
		if logger != nil {
			x.logger = logger
		}
	}
}

// WithTreeCacheSize sets how many parsed trees are kept for resolution.
func WithTreeCacheSize(n int) Option {
	return func(x *Index) {
		x.trees = newLRUCache[string, *parser.File](n)
	}
}

func New(source Source, opts ...Option) *Index {
	x := &Index{
		source:      source,
		logger:      slog.Default(),
		workers:     runtime.NumCPU(),
		byNamespace: make(map[string][]symbols.Definition),
		byFile:      make(map[string][]symbols.Definition),
		trees:       newLRUCache[string, *parser.File](defaultTreeCacheSize),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Built reports whether the first full build has completed.
func (x *Index) Built() bool {
	return x.built.Load()
}

// EnsureBuilt runs the one-time full build unless it already happened.
func (x *Index) EnsureBuilt(ctx context.Context) error {
	if x.built.Load() {
		return nil
	}
	x.buildMu.Lock()
	defer x.buildMu.Unlock()
	if x.built.Load() {
		return nil
	}
	if err := x.build(ctx); err != nil {
		return err
	}
	x.built.Store(true)
	return nil
}

// Build discards the current contents and rescans every project file.
func (x *Index) Build(ctx context.Context) error {
	x.buildMu.Lock()
	defer x.buildMu.Unlock()
	x.reset()
	if err := x.build(ctx); err != nil {
		return err
	}
	x.built.Store(true)
	return nil
}

func (x *Index) build(ctx context.Context) error {
	ctx, span := observability.Tracer().Start(ctx, "index.Build")
	defer span.End()
	start := time.Now()

	files, err := x.source.Files(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttributes(attribute.Int("phelnav.files", len(files)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers)
	for _, path := range files {
		path := path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			x.scanAndApply(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return err
	}

	observability.IndexBuildDuration.Observe(time.Since(start).Seconds())
	stats := x.Stats()
	x.logger.Info("symbol index built",
		"files", stats.Files,
		"symbols", stats.Symbols,
		"namespaces", stats.Namespaces,
		"duration", time.Since(start),
	)
	return nil
}

func (x *Index) ensureBuilt() {
	if err := x.EnsureBuilt(context.Background()); err != nil {
		x.logger.Warn("symbol index build failed", "error", err)
	}
}

// SymbolsForNamespace returns the definitions of a short namespace.
func (x *Index) SymbolsForNamespace(ns string) []symbols.Definition {
	x.ensureBuilt()
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]symbols.Definition(nil), x.byNamespace[ns]...)
}

// AllSymbols returns every definition ordered by namespace, then file, then
// position.
func (x *Index) AllSymbols() []symbols.Definition {
	x.ensureBuilt()
	x.mu.RLock()
	defer x.mu.RUnlock()
	var out []symbols.Definition
	for _, ns := range util.SortedStringKeys(x.byNamespace) {
		out = append(out, x.byNamespace[ns]...)
	}
	return out
}

// FindSymbol returns the first definition of name in a short namespace.
func (x *Index) FindSymbol(ns, name string) (symbols.Definition, bool) {
	x.ensureBuilt()
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, d := range x.byNamespace[ns] {
		if d.Name == name {
			return d, true
		}
	}
	return symbols.Definition{}, false
}

// Namespaces lists the short namespaces that currently hold definitions.
func (x *Index) Namespaces() []string {
	x.ensureBuilt()
	x.mu.RLock()
	defer x.mu.RUnlock()
	return util.SortedStringKeys(x.byNamespace)
}

// Files lists every indexed file in stable order, including files that
// define nothing.
func (x *Index) Files() []string {
	x.ensureBuilt()
	x.mu.RLock()
	defer x.mu.RUnlock()
	return util.SortedStringKeys(x.byFile)
}

// FileSymbols returns the definitions attributed to one file.
func (x *Index) FileSymbols(path string) []symbols.Definition {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]symbols.Definition(nil), x.byFile[path]...)
}

// Tree returns the parsed tree of an indexed file, loading it on a cache miss.
func (x *Index) Tree(path string) (*parser.File, error) {
	if file, ok := x.trees.Get(path); ok {
		return file, nil
	}
	file, err := x.source.Load(path)
	if err != nil {
		return nil, err
	}
	x.trees.Put(path, file)
	return file, nil
}

// Refresh rescans one file from the source and replaces its contribution.
func (x *Index) Refresh(ctx context.Context, path string) {
	_, span := observability.Tracer().Start(ctx, "index.Refresh",
		trace.WithAttributes(attribute.String("phelnav.path", path)))
	defer span.End()

	observability.IndexUpdatesTotal.WithLabelValues("refresh").Inc()
	x.scanAndApply(path)
}

// RefreshFromTree replaces a file's contribution using an already parsed tree.
func (x *Index) RefreshFromTree(ctx context.Context, file *parser.File) {
	if file == nil {
		return
	}
	_, span := observability.Tracer().Start(ctx, "index.RefreshFromTree",
		trace.WithAttributes(attribute.String("phelnav.path", file.Path)))
	defer span.End()

	observability.IndexUpdatesTotal.WithLabelValues("tree").Inc()
	x.apply(file.Path, file, symbols.Scan(file))
}

// Remove purges every definition owned by path.
func (x *Index) Remove(path string) {
	observability.IndexUpdatesTotal.WithLabelValues("remove").Inc()
	x.mu.Lock()
	x.removeLocked(path)
	x.mu.Unlock()
	x.trees.Evict(path)
	x.updateGauges()
}

// Close clears the index; a later lookup builds it again.
func (x *Index) Close() error {
	x.buildMu.Lock()
	defer x.buildMu.Unlock()
	x.reset()
	x.built.Store(false)
	return nil
}

type Stats struct {
	Files      int  `json:"files"`
	Symbols    int  `json:"symbols"`
	Namespaces int  `json:"namespaces"`
	Trees      int  `json:"cached_trees"`
	Built      bool `json:"built"`
}

func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.statsLocked()
}

func (x *Index) statsLocked() Stats {
	s := Stats{
		Files:      len(x.byFile),
		Namespaces: len(x.byNamespace),
		Trees:      x.trees.Len(),
		Built:      x.built.Load(),
	}
	for _, defs := range x.byNamespace {
		s.Symbols += len(defs)
	}
	return s
}

// scanAndApply loads one file. A vanished file is removed; any other failure
// leaves the file indexed with no definitions.
func (x *Index) scanAndApply(path string) {
	file, err := x.source.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		x.Remove(path)
		return
	}
	if err != nil {
		observability.ScanFailuresTotal.Inc()
		x.logger.Warn("failed to scan file", "path", path, "error", err)
		x.apply(path, nil, nil)
		return
	}
	x.apply(path, file, symbols.Scan(file))
}

func (x *Index) apply(path string, file *parser.File, defs []symbols.Definition) {
	defs = dedupeByName(defs)

	x.mu.Lock()
	x.removeLocked(path)
	x.byFile[path] = defs
	for _, d := range defs {
		bucket := append(x.byNamespace[d.ShortNamespace], d)
		sort.SliceStable(bucket, func(i, j int) bool {
			if bucket[i].File != bucket[j].File {
				return bucket[i].File < bucket[j].File
			}
			return bucket[i].Location.Offset < bucket[j].Location.Offset
		})
		x.byNamespace[d.ShortNamespace] = bucket
	}
	x.mu.Unlock()

	if file != nil {
		x.trees.Put(path, file)
	} else {
		x.trees.Evict(path)
	}
	x.updateGauges()
}

func (x *Index) removeLocked(path string) {
	old, ok := x.byFile[path]
	if !ok {
		return
	}
	touched := make(map[string]bool)
	for _, d := range old {
		touched[d.ShortNamespace] = true
	}
	for ns := range touched {
		bucket := x.byNamespace[ns]
		kept := bucket[:0:0]
		for _, d := range bucket {
			if d.File != path {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			delete(x.byNamespace, ns)
		} else {
			x.byNamespace[ns] = kept
		}
	}
	delete(x.byFile, path)
}

func (x *Index) reset() {
	x.mu.Lock()
	x.byNamespace = make(map[string][]symbols.Definition)
	x.byFile = make(map[string][]symbols.Definition)
	x.mu.Unlock()
	x.trees.Clear()
	x.updateGauges()
}

func (x *Index) updateGauges() {
	s := x.Stats()
	observability.IndexedFiles.Set(float64(s.Files))
	observability.IndexedSymbols.Set(float64(s.Symbols))
	observability.IndexedNamespaces.Set(float64(s.Namespaces))
}

// dedupeByName keeps the last definition of each name; a later top-level
// redefinition shadows the earlier one.
func dedupeByName(defs []symbols.Definition) []symbols.Definition {
	if len(defs) < 2 {
		return defs
	}
	last := make(map[string]int, len(defs))
	for i, d := range defs {
		last[d.Name] = i
	}
	out := make([]symbols.Definition, 0, len(last))
	for i, d := range defs {
		if last[d.Name] == i {
			out = append(out, d)
		}
	}
	return out
}
