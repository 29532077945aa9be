package config

import (
	"errors"
	"io/fs"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	ApplyEnvOverrides(&cfg)
	normalize(&cfg)

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &cfg, nil
}

// LoadOrDefault reads path when it exists and falls back to Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		ApplyEnvOverrides(cfg)
		normalize(cfg)
		if errs := Validate(cfg); len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return cfg, nil
	}
	return cfg, err
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if len(cfg.WatchPaths) == 0 {
		cfg.WatchPaths = []string{"."}
	}

	if strings.TrimSpace(cfg.Paths.StateDir) == "" {
		cfg.Paths.StateDir = ".phelnav"
	}

	if len(cfg.Index.Extensions) == 0 {
		cfg.Index.Extensions = []string{".phel"}
	}
	if cfg.Index.Workers == 0 {
		cfg.Index.Workers = runtime.NumCPU()
	}
	if cfg.Index.TreeCacheSize == 0 {
		cfg.Index.TreeCacheSize = 512
	}

	if cfg.Exclude.Dirs == nil {
		cfg.Exclude.Dirs = []string{".git", "vendor", "node_modules", ".phelnav"}
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 300 * time.Millisecond
	}
	if cfg.Watch.EditDebounce == 0 {
		cfg.Watch.EditDebounce = 250 * time.Millisecond
	}

	if cfg.Reanalysis.PerSecond == 0 {
		cfg.Reanalysis.PerSecond = 4
	}
	if cfg.Reanalysis.Burst == 0 {
		cfg.Reanalysis.Burst = 2
	}

	if cfg.Resolver.MaxVariants == 0 {
		cfg.Resolver.MaxVariants = 20
	}

	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "phelnav"
	}
}

func normalize(cfg *Config) {
	cfg.Paths.ProjectRoot = strings.TrimSpace(cfg.Paths.ProjectRoot)
	cfg.Paths.StateDir = strings.TrimSpace(cfg.Paths.StateDir)
	cfg.Observability.MetricsAddress = strings.TrimSpace(cfg.Observability.MetricsAddress)
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)
	cfg.Observability.ServiceName = strings.TrimSpace(cfg.Observability.ServiceName)

	exts := make([]string, 0, len(cfg.Index.Extensions))
	for _, ext := range cfg.Index.Extensions {
		exts = append(exts, strings.ToLower(strings.TrimSpace(ext)))
	}
	cfg.Index.Extensions = exts
}
