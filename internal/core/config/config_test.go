package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
version = 1
watch_paths = ["./src"]

[index]
extensions = [".PHEL", " .cljc "]
workers = 2

[exclude]
dirs = [".git"]
files = ["*.tmp.phel"]

[watch]
debounce = "1s"
edit_debounce = "50ms"

[reanalysis]
per_second = 10.5
burst = 3

[resolver]
max_variants = 7

[observability]
metrics_address = " :9090 "
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.WatchPaths) != 1 || cfg.WatchPaths[0] != "./src" {
		t.Errorf("unexpected watch paths: %v", cfg.WatchPaths)
	}
	if strings.Join(cfg.Index.Extensions, ",") != ".phel,.cljc" {
		t.Errorf("extensions not normalised: %v", cfg.Index.Extensions)
	}
	if cfg.Index.Workers != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.Index.Workers)
	}
	if cfg.Index.TreeCacheSize != 512 {
		t.Errorf("expected default tree cache size, got %d", cfg.Index.TreeCacheSize)
	}
	if cfg.Watch.Debounce != time.Second {
		t.Errorf("expected 1s debounce, got %v", cfg.Watch.Debounce)
	}
	if cfg.Watch.EditDebounce != 50*time.Millisecond {
		t.Errorf("expected 50ms edit debounce, got %v", cfg.Watch.EditDebounce)
	}
	if cfg.Reanalysis.PerSecond != 10.5 || cfg.Reanalysis.Burst != 3 {
		t.Errorf("unexpected reanalysis settings: %+v", cfg.Reanalysis)
	}
	if cfg.Resolver.MaxVariants != 7 {
		t.Errorf("expected 7 variants, got %d", cfg.Resolver.MaxVariants)
	}
	if cfg.Observability.MetricsAddress != ":9090" {
		t.Errorf("metrics address not trimmed: %q", cfg.Observability.MetricsAddress)
	}
	if cfg.Observability.ServiceName != "phelnav" {
		t.Errorf("expected default service name, got %q", cfg.Observability.ServiceName)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("expected version 1, got %d", cfg.Version)
	}
	if len(cfg.WatchPaths) != 1 || cfg.WatchPaths[0] != "." {
		t.Errorf("unexpected default watch paths: %v", cfg.WatchPaths)
	}
	if cfg.Watch.Debounce != 300*time.Millisecond {
		t.Errorf("unexpected default debounce: %v", cfg.Watch.Debounce)
	}
	if cfg.Watch.EditDebounce != 250*time.Millisecond {
		t.Errorf("unexpected default edit debounce: %v", cfg.Watch.EditDebounce)
	}
	if cfg.Resolver.MaxVariants != 20 {
		t.Errorf("unexpected default max variants: %d", cfg.Resolver.MaxVariants)
	}
	if len(cfg.Exclude.Dirs) == 0 {
		t.Error("expected default excluded dirs")
	}
}

func TestLoad_ExplicitEmptyExcludeIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[exclude]\ndirs = []\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Exclude.Dirs) != 0 {
		t.Errorf("expected no excluded dirs, got %v", cfg.Exclude.Dirs)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		fragment string
	}{
		{"version", "version = 2", "unsupported config version 2"},
		{"glob", "[exclude]\nfiles = [\"[bad\"]", "exclude.files[0]"},
		{"debounce", "[watch]\ndebounce = \"-1s\"", "watch.debounce must not be negative"},
		{"variants", "[resolver]\nmax_variants = -1", "resolver.max_variants"},
		{"extension", "[index]\nextensions = [\"phel\"]", "must start with a dot"},
		{"syntax", "version = ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.fragment) {
				t.Errorf("error %q does not mention %q", err, tt.fragment)
			}
		})
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if cfg.Resolver.MaxVariants != 20 {
		t.Errorf("expected defaults, got %+v", cfg.Resolver)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PHELNAV_WATCH_EDIT_DEBOUNCE", "75ms")
	t.Setenv("PHELNAV_RESOLVER_MAX_VARIANTS", "5")
	t.Setenv("PHELNAV_REANALYSIS_PER_SECOND", "not-a-number")

	cfg, err := Load(writeConfig(t, "[reanalysis]\nper_second = 2.0\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Watch.EditDebounce != 75*time.Millisecond {
		t.Errorf("env override not applied: %v", cfg.Watch.EditDebounce)
	}
	if cfg.Resolver.MaxVariants != 5 {
		t.Errorf("env override not applied: %d", cfg.Resolver.MaxVariants)
	}
	if cfg.Reanalysis.PerSecond != 2 {
		t.Errorf("malformed override should be ignored, got %v", cfg.Reanalysis.PerSecond)
	}
}
