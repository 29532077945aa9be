package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "core.phel")
	if err := os.WriteFile(file, []byte("(ns core)"), 0o644); err != nil {
		t.Fatal(err)
	}

	want := CanonicalPath(file)
	if !filepath.IsAbs(want) {
		t.Fatalf("expected absolute path, got %q", want)
	}

	dotted := filepath.Join(dir, "sub", "..", "core.phel")
	if got := CanonicalPath(dotted); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	// A deleted file must still map to the same identity it had while present.
	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	if got := CanonicalPath(file); got != want {
		t.Fatalf("expected deleted path to stay %q, got %q", want, got)
	}
}

func TestSortedStringKeys(t *testing.T) {
	t.Parallel()

	got := SortedStringKeys(map[string]int{"b": 2, "c": 3, "a": 1})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestGlobs(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		patterns []string
		path     string
		expected bool
	}{
		{name: "BaseName", patterns: []string{".git"}, path: "/repo/.git", expected: true},
		{name: "Wildcard", patterns: []string{"*.tmp"}, path: "/repo/src/a.tmp", expected: true},
		{name: "NoMatch", patterns: []string{"vendor"}, path: "/repo/src", expected: false},
		{name: "Empty", patterns: nil, path: "/repo/src", expected: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			globs, err := CompileGlobs(tc.patterns)
			if err != nil {
				t.Fatal(err)
			}
			if got := MatchesAny(globs, tc.path); got != tc.expected {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
		})
	}

	if _, err := CompileGlobs([]string{"[unclosed"}); err == nil {
		t.Fatal("expected invalid glob to fail")
	}
}
