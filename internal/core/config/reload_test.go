package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func startReloader(t *testing.T, content string) (string, *Reloader, chan Runtime) {
	t.Helper()
	path := writeConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	applied := make(chan Runtime, 4)
	r := NewReloader(path, cfg, func(rt Runtime) { applied <- rt })
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Stop)
	return path, r, applied
}

func TestReloaderAppliesRuntimeChanges(t *testing.T) {
	path, r, applied := startReloader(t, "version = 1\n")

	if err := os.WriteFile(path, []byte("version = 1\n[watch]\nedit_debounce = \"5ms\"\n[reanalysis]\nburst = 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case rt := <-applied:
		if rt.Watch.EditDebounce != 5*time.Millisecond {
			t.Errorf("expected edit_debounce 5ms, got %v", rt.Watch.EditDebounce)
		}
		if rt.Reanalysis.Burst != 9 {
			t.Errorf("expected burst 9, got %d", rt.Reanalysis.Burst)
		}
		if got := r.Current().Runtime(); got != rt {
			t.Errorf("current config not updated: %+v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("runtime settings were not applied")
	}
}

func TestReloaderSkipsRestartOnlyEdits(t *testing.T) {
	path, r, applied := startReloader(t, "version = 1\n[resolver]\nmax_variants = 3\n")

	if err := os.WriteFile(path, []byte("version = 1\n[resolver]\nmax_variants = 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case rt := <-applied:
		t.Fatalf("unexpected apply: %+v", rt)
	case <-time.After(400 * time.Millisecond):
	}
	if got := r.Current().Resolver.MaxVariants; got != 3 {
		t.Errorf("resolver settings must wait for a restart, got max_variants %d", got)
	}
}

func TestReloaderIgnoresInvalidConfigAndSiblings(t *testing.T) {
	path, _, applied := startReloader(t, "version = 1\n")

	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.toml"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("version = 7\n[watch]\nedit_debounce = \"5ms\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case rt := <-applied:
		t.Fatalf("unexpected apply: %+v", rt)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestReloaderStopIsIdempotent(t *testing.T) {
	r := NewReloader(writeConfig(t, ""), Default(), nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.Stop()
	r.Stop()
}

func TestRuntimeSplit(t *testing.T) {
	base := Default()
	next := Default()
	next.Watch.Debounce = time.Second
	next.Resolver.MaxVariants = base.Resolver.MaxVariants + 1
	next.Exclude.Dirs = append(next.Exclude.Dirs, "tmp")

	if got, want := base.RestartOnly(next), []string{"exclude", "resolver"}; !reflect.DeepEqual(got, want) {
		t.Errorf("RestartOnly() = %v, want %v", got, want)
	}

	merged := base.WithRuntime(next.Runtime())
	if merged.Watch.Debounce != time.Second {
		t.Errorf("runtime setting not carried: %v", merged.Watch.Debounce)
	}
	if merged.Resolver != base.Resolver {
		t.Errorf("restart-only setting leaked: %+v", merged.Resolver)
	}
	if base.Watch.Debounce == time.Second {
		t.Error("WithRuntime modified its receiver")
	}
}
