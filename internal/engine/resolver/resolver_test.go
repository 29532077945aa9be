package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	errs "phelnav/internal/core/errors"
	"phelnav/internal/engine/parser"
	"phelnav/internal/engine/symbols"
	"phelnav/internal/shared/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// workspace serves parsed fixtures and records how often the project-wide
// enumeration is used.
type workspace struct {
	mu        sync.Mutex
	trees     map[string]*parser.File
	fileCalls int
	treeHook  func(path string)
}

func newWorkspace(t *testing.T, files map[string]string) *workspace {
	t.Helper()
	ws := &workspace{trees: make(map[string]*parser.File)}
	for path, src := range files {
		file, err := parser.Parse(path, []byte(src))
		require.NoError(t, err, path)
		ws.trees[path] = file
	}
	return ws
}

func (w *workspace) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fileCalls++
	out := make([]string, 0, len(w.trees))
	for p := range w.trees {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (w *workspace) Tree(path string) (*parser.File, error) {
	if w.treeHook != nil {
		w.treeHook(path)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	file, ok := w.trees[path]
	if !ok {
		return nil, fmt.Errorf("no tree for %s", path)
	}
	return file, nil
}

func (w *workspace) AllSymbols() []symbols.Definition {
	var out []symbols.Definition
	for _, path := range w.Files() {
		out = append(out, symbols.Scan(w.trees[path])...)
	}
	return out
}

func (w *workspace) calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fileCalls
}

// occurrence returns the nth (0-based) symbol spelled text in path.
func occurrence(t *testing.T, ws *workspace, path, text string, nth int) Occurrence {
	t.Helper()
	file := ws.trees[path]
	require.NotNil(t, file, path)
	seen := 0
	for _, n := range file.Symbols() {
		if n.Text != text {
			continue
		}
		if seen == nth {
			return Occurrence{File: file, Node: n}
		}
		seen++
	}
	t.Fatalf("symbol %q #%d not found in %s", text, nth, path)
	return Occurrence{}
}

func locations(targets []Target) []string {
	out := make([]string, 0, len(targets))
	for _, tg := range targets {
		out = append(out, fmt.Sprintf("%s:%d:%d", tg.Path, tg.Node.Start.Line, tg.Node.Start.Column))
	}
	return out
}

func TestParameterResolvesWithoutProjectSearch(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/a.phel": "(ns app\\a)\n(defn f [x] (let [y 1] (+ x y)))",
		"/p/b.phel": "(ns app\\b)\n(def x 1)",
	})
	r := New(ws)
	use := occurrence(t, ws, "/p/a.phel", "x", 1)
	param := occurrence(t, ws, "/p/a.phel", "x", 0)

	assert.Equal(t, ModeUsageToDefinitions, r.Classify(use))
	targets, err := r.MultiResolve(context.Background(), use)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Same(t, param.Node, targets[0].Node)
	assert.True(t, targets[0].Local)
	assert.Equal(t, "a", targets[0].Namespace)
	assert.Zero(t, ws.calls(), "local resolution must not enumerate project files")
}

func TestInnermostBindingShadows(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/a.phel": "(ns app\\a)\n(let [x 1] (let [x 2] x))",
	})
	r := New(ws)
	inner := occurrence(t, ws, "/p/a.phel", "x", 1)
	use := occurrence(t, ws, "/p/a.phel", "x", 2)

	target, ok, err := r.Resolve(context.Background(), use)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, inner.Node, target.Node)
}

func TestLetUsagesStayInsideLet(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/a.phel": "(ns app\\a)\n(defn g [] (let [x 1] (inc x)))\n(defn h [] x)",
		"/p/b.phel": "(ns app\\b)\n(def x 5)\n(defn k [] x)",
	})
	r := New(ws)
	binding := occurrence(t, ws, "/p/a.phel", "x", 0)
	use := occurrence(t, ws, "/p/a.phel", "x", 1)

	assert.Equal(t, ModeDefinitionToUsages, r.Classify(binding))
	targets, err := r.MultiResolve(context.Background(), binding)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Same(t, use.Node, targets[0].Node)
	assert.Zero(t, ws.calls())

	target, ok, err := r.Resolve(context.Background(), binding)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Same(t, use.Node, target.Node)
}

func TestLocalUsagesSkipShadowedNames(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/a.phel": "(ns app\\a)\n(let [x 1] (+ x (let [x 2] x)))",
	})
	r := New(ws)
	outer := occurrence(t, ws, "/p/a.phel", "x", 0)
	first := occurrence(t, ws, "/p/a.phel", "x", 1)

	targets, err := r.MultiResolve(context.Background(), outer)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Same(t, first.Node, targets[0].Node)
}

func TestUsageSearchOrder(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/main.phel": "(ns app\\main)\n" +
			"(defn run [] (helper 1))\n" +
			"(defn other [helper] helper)\n" +
			"(defn helper [] 0)",
		"/p/util.phel":  "(ns app\\util)\n(defn helper [x] x)",
		"/p/util2.phel": "(ns other\\util)\n(def helper 2)",
	})
	r := New(ws)
	use := occurrence(t, ws, "/p/main.phel", "helper", 0)

	targets, err := r.MultiResolve(context.Background(), use)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/p/main.phel:4:7",
		"/p/main.phel:3:14",
		"/p/util.phel:2:7",
		"/p/util2.phel:2:6",
	}, locations(targets))
	assert.Equal(t, 1, ws.calls())

	first, ok, err := r.Resolve(context.Background(), use)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, targets[0].Node, first.Node)
}

func TestQualifiedUsageFollowsAlias(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/main.phel": "(ns app\\main (:require app\\util :as u))\n(defn helper [] 0)\n(defn run [] (u/helper 1))",
		"/p/util.phel": "(ns app\\util)\n(defn helper [x] x)",
		"/p/text.phel": "(ns app\\text)\n(defn helper [] 3)",
	})
	r := New(ws)
	use := occurrence(t, ws, "/p/main.phel", "u/helper", 0)

	targets, err := r.MultiResolve(context.Background(), use)
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/util.phel:2:7"}, locations(targets))
	assert.Equal(t, "util", targets[0].Namespace)
}

func TestInteropSymbolsResolveToNothing(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/a.phel": "(ns app\\a)\n(defn f [s] (php/strlen s))",
	})
	r := New(ws)
	use := occurrence(t, ws, "/p/a.phel", "php/strlen", 0)

	targets, err := r.MultiResolve(context.Background(), use)
	require.NoError(t, err)
	assert.Empty(t, targets)
	assert.Zero(t, ws.calls())

	_, err = r.RenameEdits(context.Background(), use, "len")
	assert.True(t, errs.IsCode(err, errs.CodeNotSupported))
}

func TestDefinitionUsagesAcrossProject(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/util.phel": "(ns app\\util)\n(defn helper [x] x)\n(defn twice [x] (helper (helper x)))",
		"/p/main.phel": "(ns app\\main (:require app\\util :as u))\n(defn run [] (u/helper 1))\n(defn shadow [helper] (helper 2))",
		"/p/text.phel": "(ns app\\text)\n(defn helper [] 3)\n(defn go [] (x/helper 1))",
	})
	r := New(ws)
	def := occurrence(t, ws, "/p/util.phel", "helper", 0)

	targets, err := r.MultiResolve(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"/p/util.phel:3:18",
		"/p/util.phel:3:26",
		"/p/main.phel:2:15",
		"/p/text.phel:2:7",
	}, locations(targets))

	_, ok, err := r.Resolve(context.Background(), def)
	require.NoError(t, err)
	assert.False(t, ok, "several usages leave no single target")
}

func TestBindingVectorVisibility(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/a.phel": "(ns app\\a)\n(for [x :in x :when (pos? x)] x)",
	})
	r := New(ws)
	binding := occurrence(t, ws, "/p/a.phel", "x", 0)
	ctx := context.Background()

	collection := occurrence(t, ws, "/p/a.phel", "x", 1)
	targets, err := r.MultiResolve(ctx, collection)
	require.NoError(t, err)
	assert.Empty(t, targets, "a clause does not see its own binding")

	for _, nth := range []int{2, 3} {
		use := occurrence(t, ws, "/p/a.phel", "x", nth)
		target, ok, err := r.Resolve(ctx, use)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Same(t, binding.Node, target.Node)
	}
}

func TestBindingForms(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		symbol  string
		binding int
		use     int
	}{
		{"catch", "(try (risky) (catch Exception e (log e)))", "e", 0, 1},
		{"vector destructuring", "(defn f [[a b] & rest] (+ a b))", "a", 0, 1},
		{"map destructuring", "(defn f [{:k c}] c)", "c", 0, 1},
		{"rest parameter", "(defn f [a & rest] rest)", "rest", 0, 1},
		{"multi arity", "(defn f ([a] a) ([a b] (+ a b)))", "a", 2, 3},
		{"anonymous fn", "(map (fn [n] (inc n)) xs)", "n", 0, 1},
		{"loop", "(loop [i 0] (recur (inc i)))", "i", 0, 1},
		{"foreach", "(foreach [k v m] (print k v))", "v", 0, 1},
		{"sequential let", "(let [a 1 b (inc a)] b)", "a", 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newWorkspace(t, map[string]string{"/p/a.phel": "(ns app\\a)\n" + tt.src})
			r := New(ws)
			binding := occurrence(t, ws, "/p/a.phel", tt.symbol, tt.binding)
			use := occurrence(t, ws, "/p/a.phel", tt.symbol, tt.use)

			assert.Equal(t, ModeDefinitionToUsages, r.Classify(binding))
			target, ok, err := r.Resolve(context.Background(), use)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Same(t, binding.Node, target.Node)
			assert.Zero(t, ws.calls())
		})
	}
}

func TestAmpersandIsNotABinding(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"/p/a.phel": "(ns app\\a)\n(defn f [a & rest] rest)"})
	r := New(ws)
	amp := occurrence(t, ws, "/p/a.phel", "&", 0)
	assert.Equal(t, ModeUsageToDefinitions, r.Classify(amp))
}

func TestClassifyNonSymbols(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"/p/a.phel": "(ns app\\a)\n(def x :kw)"})
	r := New(ws)
	file := ws.trees["/p/a.phel"]
	kw := file.TopLevel()[1].Form(2)
	assert.Equal(t, ModeNone, r.Classify(Occurrence{File: file, Node: kw}))
	assert.Equal(t, ModeNone, r.Classify(Occurrence{}))

	targets, err := r.MultiResolve(context.Background(), Occurrence{File: file, Node: kw})
	require.NoError(t, err)
	assert.Nil(t, targets)
}

func TestIsReferenceTo(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/main.phel": "(ns app\\main (:require app\\util :as u))\n(defn run [] (u/helper 1))",
		"/p/util.phel": "(ns app\\util)\n(defn helper [x] x)",
		"/p/text.phel": "(ns app\\text)\n(defn helper [] 3)",
	})
	r := New(ws)
	ctx := context.Background()
	use := occurrence(t, ws, "/p/main.phel", "u/helper", 0)
	util := occurrence(t, ws, "/p/util.phel", "helper", 0)
	text := occurrence(t, ws, "/p/text.phel", "helper", 0)

	ok, err := r.IsReferenceTo(ctx, use, Target{Path: "/p/util.phel", Node: util.Node})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.IsReferenceTo(ctx, use, Target{Path: "/p/text.phel", Node: text.Node})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.IsReferenceTo(ctx, util, Target{Path: "/p/util.phel", Node: util.Node})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVariants(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/main.phel": "(ns app\\main (:require app\\util :as u))\n(defn run [value] (let [vars 1] v))\n(def version 2)\n(defn call [] (u/v))",
		"/p/util.phel": "(ns app\\util)\n(defn helper [x] x)\n(def verbose true)",
	})
	ctx := context.Background()

	r := New(ws)
	variants, err := r.Variants(ctx, occurrence(t, ws, "/p/main.phel", "v", 0))
	require.NoError(t, err)
	var labels []string
	for _, v := range variants {
		labels = append(labels, v.Label)
	}
	assert.Equal(t, []string{"vars", "value", "version"}, labels)
	assert.Equal(t, "local", variants[0].Kind)
	assert.Equal(t, "value", variants[2].Kind)

	qualified, err := r.Variants(ctx, occurrence(t, ws, "/p/main.phel", "u/v", 0))
	require.NoError(t, err)
	require.Len(t, qualified, 1)
	assert.Equal(t, "u/verbose", qualified[0].Label)
	assert.Equal(t, "util", qualified[0].Namespace)

	capped, err := New(ws, WithMaxVariants(1)).Variants(ctx, occurrence(t, ws, "/p/main.phel", "v", 0))
	require.NoError(t, err)
	require.Len(t, capped, 1)
	assert.Equal(t, "vars", capped[0].Label)
}

func TestFailSoftOnPanic(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/a.phel": "(ns app\\a)\n(defn f [] (helper))",
		"/p/b.phel": "(ns app\\b)\n(defn helper [] 1)",
	})
	ws.treeHook = func(string) { panic("broken tree") }
	r := New(ws)
	before := testutil.ToFloat64(observability.ResolveRecoveredTotal)

	targets, err := r.MultiResolve(context.Background(), occurrence(t, ws, "/p/a.phel", "helper", 0))
	require.NoError(t, err)
	assert.Empty(t, targets)
	assert.Equal(t, before+1, testutil.ToFloat64(observability.ResolveRecoveredTotal))
}

func TestCancellationPropagates(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/a.phel": "(ns app\\a)\n(defn f [] (helper))",
		"/p/b.phel": "(ns app\\b)\n(defn helper [] 1)",
	})
	r := New(ws)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.MultiResolve(ctx, occurrence(t, ws, "/p/a.phel", "helper", 0))
	assert.True(t, errors.Is(err, context.Canceled))

	ws.treeHook = func(string) { panic(context.Canceled) }
	_, err = r.MultiResolve(context.Background(), occurrence(t, ws, "/p/a.phel", "helper", 0))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestUnreadableFilesAreSkipped(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/a.phel": "(ns app\\a)\n(defn f [] (helper))",
		"/p/b.phel": "(ns app\\b)\n(defn helper [] 1)",
	})
	ws.treeHook = func(path string) {
		if path == "/p/b.phel" {
			ws.mu.Lock()
			delete(ws.trees, path)
			ws.mu.Unlock()
		}
	}
	r := New(ws)

	targets, err := r.MultiResolve(context.Background(), occurrence(t, ws, "/p/a.phel", "helper", 0))
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestMetadataSymbolIsNotTheDefinedName(t *testing.T) {
	ws := newWorkspace(t, map[string]string{
		"/p/a.phel": "(ns app\\a)\n(defn ^{:see-also other} helper [a] a)\n(defn run [] (helper 1))",
	})
	r := New(ws)
	def := occurrence(t, ws, "/p/a.phel", "helper", 0)
	use := occurrence(t, ws, "/p/a.phel", "helper", 1)
	meta := occurrence(t, ws, "/p/a.phel", "other", 0)

	assert.Equal(t, ModeDefinitionToUsages, r.Classify(def))
	assert.Equal(t, ModeUsageToDefinitions, r.Classify(meta))

	targets, err := r.MultiResolve(context.Background(), use)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Same(t, def.Node, targets[0].Node)

	usages, err := r.MultiResolve(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, []string{"/p/a.phel:3:15"}, locations(usages))
}
