package resolver

import (
	"context"
	"testing"

	errs "phelnav/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenParts(t *testing.T) {
	tests := []struct {
		token     string
		name      string
		qualifier string
		start     int
	}{
		{"helper", "helper", "", 0},
		{"u/helper", "helper", "u", 2},
		{"app\\util/helper", "helper", "app\\util", 9},
		{"/", "/", "", 0},
		{"core//", "/", "core", 5},
		{"odd/", "odd/", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			assert.Equal(t, tt.name, Name(tt.token))
			assert.Equal(t, tt.qualifier, Qualifier(tt.token))
			start, end := ReferenceRange(tt.token)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, len(tt.token), end)
		})
	}
}

func TestRenameToken(t *testing.T) {
	assert.Equal(t, "u/assist", RenameToken("u/helper", "assist"))
	assert.Equal(t, "assist", RenameToken("helper", "assist"))
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("valid-name?"))
	for _, bad := range []string{"", "two words", "ns/name", "(x)", ":kw", "nil", "12"} {
		err := ValidateName(bad)
		assert.True(t, errs.IsCode(err, errs.CodeValidationError), "%q: %v", bad, err)
	}
}

func TestRenameEditsFromUsage(t *testing.T) {
	sources := map[string]string{
		"/p/util.phel": "(ns app\\util)\n(defn helper [x] x)",
		"/p/main.phel": "(ns app\\main (:require app\\util :as u))\n(defn run [] (u/helper 1))",
	}
	ws := newWorkspace(t, sources)
	r := New(ws)

	edits, err := r.RenameEdits(context.Background(), occurrence(t, ws, "/p/main.phel", "u/helper", 0), "assist")
	require.NoError(t, err)
	require.Len(t, edits, 2)
	assert.Equal(t, "/p/main.phel", edits[0].Path)
	assert.Equal(t, 17, edits[0].Start.Column)
	assert.Equal(t, "/p/util.phel", edits[1].Path)

	assert.Equal(t,
		"(ns app\\main (:require app\\util :as u))\n(defn run [] (u/assist 1))",
		string(ApplyEdits("/p/main.phel", []byte(sources["/p/main.phel"]), edits)))
	assert.Equal(t,
		"(ns app\\util)\n(defn assist [x] x)",
		string(ApplyEdits("/p/util.phel", []byte(sources["/p/util.phel"]), edits)))
}

func TestRenameLocalBinding(t *testing.T) {
	src := "(ns app\\a)\n(defn f [x] (let [y x] (+ x y)))"
	ws := newWorkspace(t, map[string]string{"/p/a.phel": src})
	r := New(ws)

	edits, err := r.RenameEdits(context.Background(), occurrence(t, ws, "/p/a.phel", "x", 0), "n")
	require.NoError(t, err)
	assert.Len(t, edits, 3)
	assert.Equal(t, "(ns app\\a)\n(defn f [n] (let [y n] (+ n y)))", string(ApplyEdits("/p/a.phel", []byte(src), edits)))
	assert.Zero(t, ws.calls())
}

func TestRenameUnresolved(t *testing.T) {
	ws := newWorkspace(t, map[string]string{"/p/a.phel": "(ns app\\a)\n(defn f [] (missing))"})
	r := New(ws)

	_, err := r.RenameEdits(context.Background(), occurrence(t, ws, "/p/a.phel", "missing", 0), "found")
	assert.True(t, errs.IsCode(err, errs.CodeNotFound))

	_, err = r.RenameEdits(context.Background(), occurrence(t, ws, "/p/a.phel", "missing", 0), "two words")
	assert.True(t, errs.IsCode(err, errs.CodeValidationError))
}
