// Package bridge feeds the symbol index from two producers: batched
// filesystem events and live edits of open documents. Both go through one
// queue drained by a single consumer, and every applied change schedules a
// throttled downstream re-analysis.
package bridge

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"phelnav/internal/core/watcher"
	"phelnav/internal/engine/parser"
	"phelnav/internal/shared/observability"
	"phelnav/internal/shared/util"
)

const DefaultEditDebounce = 250 * time.Millisecond

// Target is the index side of the bridge.
type Target interface {
	Refresh(ctx context.Context, path string)
	RefreshFromTree(ctx context.Context, file *parser.File)
	Remove(path string)
	Files() []string
}

// TreeSource yields the current tree of an open document.
type TreeSource interface {
	Load(path string) (*parser.File, error)
}

// Reanalyzer is told which files changed once their index update applied.
type Reanalyzer func(ctx context.Context, paths []string)

type job struct {
	events []watcher.Event
	edits  []string
}

type Bridge struct {
	target    Target
	trees     TreeSource
	reanalyze Reanalyzer
	limiter   *util.Limiter
	logger    *slog.Logger

	mu       sync.Mutex
	debounce time.Duration
	pending  map[string]struct{}
	timer    *time.Timer
	closed   bool

	jobs chan job

	reMu      sync.Mutex
	rePending map[string]struct{}
	reSignal  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Bridge)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithEditDebounce sets how long live edits are collected before the index
// is refreshed.
func WithEditDebounce(d time.Duration) Option {
	return func(b *Bridge) {
		if d >= 0 {
			b.debounce = d
		}
	}
}

// WithReanalysis installs the downstream callback and its rate limit.
func WithReanalysis(fn Reanalyzer, limiter *util.Limiter) Option {
	return func(b *Bridge) {
		b.reanalyze = fn
		if limiter != nil {
			b.limiter = limiter
		}
	}
}

// New starts the consumer and re-analysis goroutines; Close stops them.
func New(target Target, trees TreeSource, opts ...Option) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		target:    target,
		trees:     trees,
		limiter:   util.NewLimiter(0, 1),
		logger:    slog.Default(),
		debounce:  DefaultEditDebounce,
		pending:   make(map[string]struct{}),
		jobs:      make(chan job, 64),
		rePending: make(map[string]struct{}),
		reSignal:  make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.wg.Add(2)
	go b.consume()
	go b.reanalysisLoop()
	return b
}

// HandleFileEvents queues one filesystem batch. Changed, created and renamed
// files are refreshed, deleted files are removed. A removed directory
// refreshes every indexed file below it, which drops the ones that are gone.
func (b *Bridge) HandleFileEvents(events []watcher.Event) {
	if len(events) == 0 {
		return
	}
	b.enqueue(job{events: events})
}

// TreeChanged records a structural edit of an open document. Edits inside
// one debounce window collapse into a single refresh per file, taken from
// the tree current when the window closes.
func (b *Bridge) TreeChanged(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if _, ok := b.pending[path]; ok {
		observability.BridgeCoalescedTotal.Inc()
	}
	b.pending[path] = struct{}{}
	observability.BridgePending.Set(float64(len(b.pending)))
	if b.timer == nil {
		b.timer = time.AfterFunc(b.debounce, b.fire)
	}
}

// SetDebounce changes the live-edit window for the next armed timer.
func (b *Bridge) SetDebounce(d time.Duration) {
	if d < 0 {
		return
	}
	b.mu.Lock()
	b.debounce = d
	b.mu.Unlock()
}

// SetReanalysisRate adjusts the re-analysis throttle.
func (b *Bridge) SetReanalysisRate(perSecond float64, burst int) {
	b.limiter.SetRate(perSecond, burst)
}

func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = make(map[string]struct{})
	b.mu.Unlock()
	observability.BridgePending.Set(0)

	b.cancel()
	b.wg.Wait()
	return nil
}

func (b *Bridge) fire() {
	b.mu.Lock()
	paths := util.SortedStringKeys(b.pending)
	b.pending = make(map[string]struct{})
	b.timer = nil
	b.mu.Unlock()
	observability.BridgePending.Set(0)

	if len(paths) > 0 {
		b.enqueue(job{edits: paths})
	}
}

func (b *Bridge) enqueue(j job) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	select {
	case b.jobs <- j:
	case <-b.ctx.Done():
	}
}

func (b *Bridge) consume() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case j := <-b.jobs:
			b.apply(j)
		}
	}
}

func (b *Bridge) apply(j job) {
	var changed []string
	for _, e := range j.events {
		switch e.Op {
		case watcher.OpDirRemoved:
			under := b.filesUnder(e.Path)
			b.logger.Debug("refreshing files of removed directory", "dir", e.Path, "files", len(under))
			for _, p := range under {
				b.target.Refresh(b.ctx, p)
			}
			changed = append(changed, under...)
			continue
		case watcher.OpDeleted:
			b.logger.Debug("removing deleted file", "path", e.Path)
			b.target.Remove(e.Path)
		default:
			b.logger.Debug("refreshing file", "path", e.Path, "op", e.Op.String())
			b.target.Refresh(b.ctx, e.Path)
		}
		changed = append(changed, e.Path)
	}

	for _, path := range j.edits {
		b.refreshFromCurrentTree(path)
		changed = append(changed, path)
	}

	if len(changed) > 0 {
		b.scheduleReanalysis(changed)
	}
}

func (b *Bridge) filesUnder(dir string) []string {
	prefix := filepath.Clean(dir) + string(filepath.Separator)
	var out []string
	for _, p := range b.target.Files() {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

func (b *Bridge) refreshFromCurrentTree(path string) {
	file, err := b.trees.Load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		b.target.Remove(path)
	case err != nil || file == nil:
		// Let the index record the failure the same way a scan would.
		b.target.Refresh(b.ctx, path)
	default:
		b.target.RefreshFromTree(b.ctx, file)
	}
}

func (b *Bridge) scheduleReanalysis(paths []string) {
	if b.reanalyze == nil {
		return
	}
	b.reMu.Lock()
	for _, p := range paths {
		b.rePending[p] = struct{}{}
	}
	b.reMu.Unlock()
	select {
	case b.reSignal <- struct{}{}:
	default:
	}
}

func (b *Bridge) reanalysisLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-b.reSignal:
		}
		if err := b.limiter.Wait(b.ctx, 1); err != nil {
			return
		}

		b.reMu.Lock()
		paths := util.SortedStringKeys(b.rePending)
		b.rePending = make(map[string]struct{})
		b.reMu.Unlock()
		if len(paths) == 0 {
			continue
		}
		observability.ReanalysisTotal.Inc()
		b.reanalyze(b.ctx, paths)
	}
}
