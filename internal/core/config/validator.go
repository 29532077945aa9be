package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/gobwas/glob"
)

// Validate reports every problem with cfg instead of stopping at the first.
func Validate(cfg *Config) []error {
	var errs []error

	if err := validateVersion(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := validateIndex(cfg); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, validateExclude(cfg)...)
	if err := validateWatch(cfg); err != nil {
		errs = append(errs, err)
	}
	if err := validateReanalysis(cfg); err != nil {
		errs = append(errs, err)
	}
	if cfg.Resolver.MaxVariants < 1 {
		errs = append(errs, fmt.Errorf("resolver.max_variants must be >= 1, got %d", cfg.Resolver.MaxVariants))
	}
	return errs
}

func validateVersion(cfg *Config) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported config version %d; the supported version is 1", cfg.Version)
	}
	return nil
}

func validateIndex(cfg *Config) error {
	if cfg.Index.Workers < 1 {
		return fmt.Errorf("index.workers must be >= 1, got %d", cfg.Index.Workers)
	}
	if cfg.Index.TreeCacheSize < 1 {
		return fmt.Errorf("index.tree_cache_size must be >= 1, got %d", cfg.Index.TreeCacheSize)
	}
	for i, ext := range cfg.Index.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return fmt.Errorf("index.extensions[%d] %q must start with a dot", i, ext)
		}
	}
	return nil
}

func validateExclude(cfg *Config) []error {
	var errs []error
	check := func(section string, patterns []string) {
		for i, pattern := range patterns {
			if strings.TrimSpace(pattern) == "" {
				errs = append(errs, fmt.Errorf("exclude.%s[%d] must not be empty", section, i))
				continue
			}
			if _, err := glob.Compile(pattern); err != nil {
				errs = append(errs, fmt.Errorf("exclude.%s[%d] %q: %w", section, i, pattern, err))
			}
		}
	}
	check("dirs", cfg.Exclude.Dirs)
	check("files", cfg.Exclude.Files)
	return errs
}

func validateWatch(cfg *Config) error {
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if cfg.Watch.EditDebounce < 0 {
		return fmt.Errorf("watch.edit_debounce must not be negative")
	}
	return nil
}

func validateReanalysis(cfg *Config) error {
	if cfg.Reanalysis.PerSecond < 0 {
		return fmt.Errorf("reanalysis.per_second must not be negative")
	}
	if cfg.Reanalysis.Burst < 1 {
		return fmt.Errorf("reanalysis.burst must be >= 1, got %d", cfg.Reanalysis.Burst)
	}
	return nil
}

// CheckWatchPaths reports watch paths that do not exist.
func CheckWatchPaths(paths []string) []error {
	var errs []error
	for i, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("watch_paths[%d] %q does not exist", i, path))
		}
	}
	return errs
}
