package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcher_RejectsNilCallback(t *testing.T) {
	w, err := NewWatcher(100*time.Millisecond, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrInvalid))
	assert.Nil(t, w)
}

func TestNewWatcher_RejectsBadGlob(t *testing.T) {
	_, err := NewWatcher(100*time.Millisecond, []string{"[bad"}, nil, func([]Event) {})
	assert.Error(t, err)
}

// waitFor drains batches until one carries path, returning its op.
func waitFor(t *testing.T, batches <-chan []Event, path string, timeout time.Duration) Op {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case events := <-batches:
			for _, e := range events {
				if e.Path == path {
					return e.Op
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event on %s", path)
			return OpChanged
		}
	}
}

func TestWatcher(t *testing.T) {
	tmpDir := t.TempDir()

	batches := make(chan []Event, 8)
	w, err := NewWatcher(100*time.Millisecond, []string{"exclude_dir"}, []string{"*.tmp.phel"}, func(events []Event) {
		batches <- events
	})
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Watch([]string{tmpDir}))

	testFile := filepath.Join(tmpDir, "core.phel")
	require.NoError(t, os.WriteFile(testFile, []byte("(ns app\\core)"), 0644))
	assert.Equal(t, OpCreated, waitFor(t, batches, testFile, 2*time.Second))

	// Excluded and foreign files never show up.
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "scratch.tmp.phel"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("x"), 0644))
	select {
	case events := <-batches:
		for _, e := range events {
			base := filepath.Base(e.Path)
			assert.NotEqual(t, "scratch.tmp.phel", base)
			assert.NotEqual(t, "notes.txt", base)
		}
	case <-time.After(500 * time.Millisecond):
	}

	// New directories are watched recursively after create.
	subdir := filepath.Join(tmpDir, "nested")
	require.NoError(t, os.MkdirAll(subdir, 0755))
	subFile := filepath.Join(subdir, "inner.phel")
	require.NoError(t, os.WriteFile(subFile, []byte("(ns app\\inner)"), 0644))
	waitFor(t, batches, subFile, 2*time.Second)

	require.NoError(t, os.Remove(testFile))
	assert.Equal(t, OpDeleted, waitFor(t, batches, testFile, 2*time.Second))
}

func TestWatcher_RenameTriggersEvent(t *testing.T) {
	tmpDir := t.TempDir()

	batches := make(chan []Event, 8)
	w, err := NewWatcher(100*time.Millisecond, nil, nil, func(events []Event) {
		batches <- events
	})
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Watch([]string{tmpDir}))

	oldPath := filepath.Join(tmpDir, "old.phel")
	newPath := filepath.Join(tmpDir, "new.phel")
	require.NoError(t, os.WriteFile(oldPath, []byte("(ns old)"), 0644))
	require.NoError(t, os.Rename(oldPath, newPath))

	waitFor(t, batches, newPath, 2*time.Second)
}

func TestWatcher_RemovedDirectoryIsReported(t *testing.T) {
	tests := []struct {
		name   string
		remove func(dir string) error
	}{
		{"moved away", func(dir string) error {
			return os.Rename(dir, filepath.Join(t.TempDir(), "moved"))
		}},
		{"deleted", os.RemoveAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			lib := filepath.Join(tmpDir, "lib")
			require.NoError(t, os.MkdirAll(filepath.Join(lib, "deep"), 0755))
			require.NoError(t, os.WriteFile(filepath.Join(lib, "extra.phel"), []byte("(ns app\\extra)"), 0644))

			batches := make(chan []Event, 8)
			w, err := NewWatcher(50*time.Millisecond, nil, nil, func(events []Event) {
				batches <- events
			})
			require.NoError(t, err)
			defer w.Close()
			require.NoError(t, w.Watch([]string{tmpDir}))

			require.NoError(t, tt.remove(lib))
			assert.Equal(t, OpDirRemoved, waitFor(t, batches, lib, 2*time.Second))

			w.dirMu.Lock()
			defer w.dirMu.Unlock()
			assert.True(t, w.dirs[filepath.Clean(tmpDir)])
			assert.False(t, w.dirs[lib])
			assert.False(t, w.dirs[filepath.Join(lib, "deep")])
		})
	}
}

func TestWatcher_BatchCoalescesPerPath(t *testing.T) {
	var got []Event
	done := make(chan struct{})
	w, err := NewWatcher(20*time.Millisecond, nil, nil, func(events []Event) {
		got = events
		close(done)
	})
	require.NoError(t, err)
	defer w.Close()

	w.schedule("/p/b.phel", OpCreated)
	w.schedule("/p/a.phel", OpChanged)
	w.schedule("/p/b.phel", OpChanged)
	w.schedule("/p/a.phel", OpDeleted)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("batch never flushed")
	}
	assert.Equal(t, []Event{
		{Path: "/p/a.phel", Op: OpDeleted},
		{Path: "/p/b.phel", Op: OpCreated},
	}, got)
}

func TestWatcher_Extensions(t *testing.T) {
	w, err := NewWatcher(10*time.Millisecond, nil, []string{"*.skip.phel"}, func([]Event) {})
	require.NoError(t, err)
	defer w.Close()

	assert.False(t, w.shouldExcludeFile("/p/main.phel"))
	assert.True(t, w.shouldExcludeFile("/p/main.go"))
	assert.True(t, w.shouldExcludeFile("/p/file.skip.phel"))

	w.SetExtensions([]string{".PHEL", ".cljc", " "})
	assert.False(t, w.shouldExcludeFile("/p/shared.cljc"))
	assert.False(t, w.shouldExcludeFile("/p/Main.Phel"))
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "changed", OpChanged.String())
	assert.Equal(t, "created", OpCreated.String())
	assert.Equal(t, "deleted", OpDeleted.String())
	assert.Equal(t, "renamed", OpRenamed.String())
	assert.Equal(t, "dir-removed", OpDirRemoved.String())
}
