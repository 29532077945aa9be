// Package resolver answers navigation queries for one symbol occurrence:
// where a usage may be defined, and where a definition is used.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	errs "phelnav/internal/core/errors"
	"phelnav/internal/engine/namespace"
	"phelnav/internal/engine/parser"
	"phelnav/internal/engine/symbols"
	"phelnav/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultMaxVariants = 20

// Workspace is the project view searched beyond the current file.
// *index.Index satisfies it.
type Workspace interface {
	Files() []string
	Tree(path string) (*parser.File, error)
	AllSymbols() []symbols.Definition
}

// Occurrence is one symbol node inside a parsed file.
type Occurrence struct {
	File *parser.File
	Node *parser.Node
}

// At returns the occurrence under a 1-based line and column.
func At(file *parser.File, line, column int) (Occurrence, bool) {
	sym := file.SymbolAt(line, column)
	if sym == nil {
		return Occurrence{}, false
	}
	return Occurrence{File: file, Node: sym}, true
}

func (o Occurrence) path() string {
	if o.File == nil {
		return ""
	}
	return o.File.Path
}

// Target is one resolution candidate.
type Target struct {
	Path      string
	Node      *parser.Node
	Namespace string // short namespace of the declaring file
	Local     bool

	file *parser.File
}

func (t Target) Occurrence() Occurrence {
	return Occurrence{File: t.file, Node: t.Node}
}

func (t Target) String() string {
	return fmt.Sprintf("%s:%d:%d %s", t.Path, t.Node.Start.Line, t.Node.Start.Column, t.Node.Text)
}

func (t Target) key() string {
	return fmt.Sprintf("%s#%d", t.Path, t.Node.Start.Offset)
}

type Mode int

const (
	ModeNone Mode = iota
	ModeUsageToDefinitions
	ModeDefinitionToUsages
)

func (m Mode) String() string {
	switch m {
	case ModeUsageToDefinitions:
		return "definitions"
	case ModeDefinitionToUsages:
		return "usages"
	default:
		return "none"
	}
}

type Resolver struct {
	ws          Workspace
	logger      *slog.Logger
	maxVariants int
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxVariants caps how many completion variants are returned.
func WithMaxVariants(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxVariants = n
		}
	}
}

func New(ws Workspace, opts ...Option) *Resolver {
	r := &Resolver{ws: ws, logger: slog.Default(), maxVariants: DefaultMaxVariants}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Classify picks the resolution mode from the occurrence's syntactic role.
func (r *Resolver) Classify(occ Occurrence) Mode {
	if occ.File == nil || occ.Node == nil || occ.Node.Kind != parser.KindSymbol {
		return ModeNone
	}
	if classifySite(occ.Node).isDefinition() {
		return ModeDefinitionToUsages
	}
	return ModeUsageToDefinitions
}

// MultiResolve returns every candidate for the occurrence: definitions for a
// usage, usages and redefinitions for a definition. Local scope results come
// first, then the current file, then other files in index order.
func (r *Resolver) MultiResolve(ctx context.Context, occ Occurrence) ([]Target, error) {
	mode := r.Classify(occ)
	if mode == ModeNone {
		return nil, nil
	}
	return r.run(ctx, "MultiResolve", mode.String(), occ, func(ctx context.Context) ([]Target, error) {
		if mode == ModeDefinitionToUsages {
			return r.usages(ctx, occ)
		}
		return r.definitions(ctx, occ)
	})
}

// Resolve narrows MultiResolve to one target. A definition with more than one
// usage has no single target; a usage resolves to its first candidate.
func (r *Resolver) Resolve(ctx context.Context, occ Occurrence) (Target, bool, error) {
	targets, err := r.MultiResolve(ctx, occ)
	if err != nil || len(targets) == 0 {
		return Target{}, false, err
	}
	if r.Classify(occ) == ModeDefinitionToUsages && len(targets) > 1 {
		return Target{}, false, nil
	}
	return targets[0], true, nil
}

// Definitions resolves occ as a usage regardless of its role.
func (r *Resolver) Definitions(ctx context.Context, occ Occurrence) ([]Target, error) {
	if r.Classify(occ) == ModeNone {
		return nil, nil
	}
	return r.run(ctx, "Definitions", ModeUsageToDefinitions.String(), occ, func(ctx context.Context) ([]Target, error) {
		return r.definitions(ctx, occ)
	})
}

// IsReferenceTo reports whether target is among the definitions occ may
// refer to. A definition refers only to itself.
func (r *Resolver) IsReferenceTo(ctx context.Context, occ Occurrence, target Target) (bool, error) {
	if occ.Node == nil || target.Node == nil {
		return false, nil
	}
	if occ.path() == target.Path && occ.Node.Start.Offset == target.Node.Start.Offset {
		return true, nil
	}
	if r.Classify(occ) != ModeUsageToDefinitions {
		return false, nil
	}
	targets, err := r.Definitions(ctx, occ)
	if err != nil {
		return false, err
	}
	for _, t := range targets {
		if t.key() == target.key() {
			return true, nil
		}
	}
	return false, nil
}

// run wraps one resolver operation in a span, a latency observation and the
// fail-soft boundary: malformed trees and lookup failures produce an empty
// result, cancellation is returned as is.
func (r *Resolver) run(ctx context.Context, op, label string, occ Occurrence, fn func(context.Context) ([]Target, error)) (out []Target, err error) {
	ctx, span := observability.Tracer().Start(ctx, "resolver."+op, trace.WithAttributes(
		attribute.String("phelnav.mode", label),
		attribute.String("phelnav.path", occ.path()),
		attribute.String("phelnav.symbol", occ.Node.Text),
	))
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, nil
			if e, ok := rec.(error); ok && errs.IsCancellation(e) {
				err = e
			} else {
				r.recovered(op, occ, fmt.Errorf("%v", rec))
			}
		}
		if err != nil {
			span.RecordError(err)
		}
		span.SetAttributes(attribute.Int("phelnav.targets", len(out)))
		span.End()
		observability.ResolveDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	out, err = fn(ctx)
	if err != nil {
		if errs.IsCancellation(err) {
			return nil, err
		}
		r.recovered(op, occ, err)
		return nil, nil
	}
	return out, nil
}

func (r *Resolver) recovered(op string, occ Occurrence, err error) {
	observability.ResolveRecoveredTotal.Inc()
	r.logger.Error("resolver operation failed", "operation", op, "path", occ.path(), "symbol", occ.Node.Text, "error", err)
}

// definitions searches, in order, the enclosing lexical scopes (returning the
// innermost match alone), top-level definitions of the current file, every
// parameter binding of the current file, and top-level definitions of the
// other indexed files.
func (r *Resolver) definitions(ctx context.Context, occ Occurrence) ([]Target, error) {
	sym := occ.Node
	name, qual := Name(sym.Text), Qualifier(sym.Text)
	if qual == namespace.Interop {
		return nil, nil
	}
	info, hasNS := namespace.Parse(occ.File)
	current := ""
	if hasNS {
		current = info.Short
	}

	if qual == "" {
		if b := resolveLocal(sym, name); b != nil {
			return []Target{{Path: occ.File.Path, Node: b, Namespace: current, Local: true, file: occ.File}}, nil
		}
	}

	want := ""
	if qual != "" {
		want = namespace.ShortName(qual)
		if hasNS {
			if short, ok := info.ResolveQualifier(qual); ok {
				want = short
			}
		}
	}

	set := newTargetSet()
	if qual == "" || (hasNS && want == current) {
		for _, n := range topLevelDefinitions(occ.File, name) {
			set.add(Target{Path: occ.File.Path, Node: n, Namespace: current, file: occ.File})
		}
	}
	if qual == "" {
		for _, n := range allParameters(occ.File, name) {
			set.add(Target{Path: occ.File.Path, Node: n, Namespace: current, Local: true, file: occ.File})
		}
	}

	err := r.eachOtherFile(ctx, occ.File.Path, func(tree *parser.File, ns string) {
		if qual != "" && ns != want {
			return
		}
		for _, n := range topLevelDefinitions(tree, name) {
			set.add(Target{Path: tree.Path, Node: n, Namespace: ns, file: tree})
		}
	})
	if err != nil {
		return nil, err
	}
	return set.items, nil
}

// usages finds the occurrences a definition binds. A local binding is only
// searched inside the form that binds it; a top-level definition is searched
// in the current file first and then across the project.
func (r *Resolver) usages(ctx context.Context, occ Occurrence) ([]Target, error) {
	sym := occ.Node
	s := classifySite(sym)
	info, hasNS := namespace.Parse(occ.File)
	current := ""
	if hasNS {
		current = info.Short
	}

	set := newTargetSet()
	if s.isLocal() {
		if s.form == nil {
			return nil, errs.New(errs.CodeMalformedTree, "local binding without an owning form")
		}
		s.form.Walk(func(n *parser.Node) bool {
			if n != sym && n.Kind == parser.KindSymbol && n.Text == sym.Text &&
				!classifySite(n).isDefinition() && resolveLocal(n, sym.Text) == sym {
				set.add(Target{Path: occ.File.Path, Node: n, Namespace: current, Local: true, file: occ.File})
			}
			return true
		})
		return set.items, nil
	}

	name := sym.Text
	collect := func(tree *parser.File, ns string, nsInfo *namespace.Info) {
		for _, n := range tree.Symbols() {
			if n == sym || Name(n.Text) != name || !r.refersTo(n, name, current, nsInfo) {
				continue
			}
			set.add(Target{Path: tree.Path, Node: n, Namespace: ns, file: tree})
		}
	}

	var currentInfo *namespace.Info
	if hasNS {
		currentInfo = info
	}
	collect(occ.File, current, currentInfo)

	err := r.eachOtherFile(ctx, occ.File.Path, func(tree *parser.File, ns string) {
		nsInfo, ok := namespace.Parse(tree)
		if !ok {
			nsInfo = nil
		}
		collect(tree, ns, nsInfo)
	})
	if err != nil {
		return nil, err
	}
	return set.items, nil
}

// refersTo filters same-named occurrences of a top-level definition living in
// namespace defNS: local bindings and names shadowed by them are skipped, and
// a qualifier must resolve to defNS.
func (r *Resolver) refersTo(n *parser.Node, name, defNS string, info *namespace.Info) bool {
	qual := Qualifier(n.Text)
	if qual == "" {
		s := classifySite(n)
		if s.isLocal() {
			return false
		}
		return s.kind == siteTopLevel || resolveLocal(n, name) == nil
	}
	if qual == namespace.Interop {
		return false
	}
	short := namespace.ShortName(qual)
	if info != nil {
		if resolved, ok := info.ResolveQualifier(qual); ok {
			short = resolved
		}
	}
	return defNS == "" || short == defNS
}

// eachOtherFile visits every indexed file except skip in index order. Files
// that fail to load are logged and skipped.
func (r *Resolver) eachOtherFile(ctx context.Context, skip string, fn func(tree *parser.File, ns string)) error {
	for _, path := range r.ws.Files() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == skip {
			continue
		}
		tree, err := r.ws.Tree(path)
		if err != nil || tree == nil {
			r.logger.Debug("skipping unreadable file", "path", path, "error", err)
			continue
		}
		ns := ""
		if info, ok := namespace.Parse(tree); ok {
			ns = info.Short
		}
		fn(tree, ns)
	}
	return nil
}

type targetSet struct {
	seen  map[string]bool
	items []Target
}

func newTargetSet() *targetSet {
	return &targetSet{seen: make(map[string]bool)}
}

func (s *targetSet) add(t Target) {
	k := t.key()
	if s.seen[k] {
		return
	}
	s.seen[k] = true
	s.items = append(s.items, t)
}

// Variant is one completion candidate.
type Variant struct {
	Label     string `json:"label"`
	Kind      string `json:"kind"`
	Namespace string `json:"namespace,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Variants lists completion candidates for the token at occ whose label starts
// with the token text: local bindings in scope, then top-level definitions of
// the current file, then project definitions spelled the way this file would
// reference them.
func (r *Resolver) Variants(ctx context.Context, occ Occurrence) ([]Variant, error) {
	if r.Classify(occ) == ModeNone {
		return nil, nil
	}
	prefix := occ.Node.Text
	var out []Variant
	seen := make(map[string]bool)
	add := func(v Variant) bool {
		if seen[v.Label] || !strings.HasPrefix(v.Label, prefix) {
			return len(out) < r.maxVariants
		}
		seen[v.Label] = true
		out = append(out, v)
		return len(out) < r.maxVariants
	}

	_, err := r.run(ctx, "Variants", "variants", occ, func(ctx context.Context) ([]Target, error) {
		seen[prefix] = true
		for _, b := range visibleBindings(occ.Node) {
			if !add(Variant{Label: b.Text, Kind: "local"}) {
				return nil, nil
			}
		}

		info, hasNS := namespace.Parse(occ.File)
		current := ""
		if hasNS {
			current = info.Short
		}
		for _, form := range occ.File.TopLevel() {
			if form.Kind != parser.KindList || !definingHeads[form.HeadSymbol()] {
				continue
			}
			n := nameOf(form)
			if n == nil || n == occ.Node {
				continue
			}
			if !add(Variant{Label: n.Text, Kind: headKind(form.HeadSymbol()), Namespace: current}) {
				return nil, nil
			}
		}

		defs := r.ws.AllSymbols()
		sort.SliceStable(defs, func(i, j int) bool {
			return defs[i].ShortNamespace == current && defs[j].ShortNamespace != current
		})
		for _, d := range defs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			label := d.Name
			if hasNS {
				label = info.Qualify(d.ShortNamespace, d.Name)
			} else if d.ShortNamespace != namespace.Core {
				label = d.QualifiedName()
			}
			if !add(Variant{Label: label, Kind: d.Kind.String(), Namespace: d.ShortNamespace, Signature: d.Signature}) {
				return nil, nil
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func headKind(head string) string {
	if kind, ok := symbols.KindForHead(head); ok {
		return kind.String()
	}
	return symbols.KindValue.String()
}
