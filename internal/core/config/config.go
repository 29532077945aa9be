// Package config loads phelnav.toml.
package config

import "time"

const DefaultFileName = "phelnav.toml"

type Config struct {
	Version       int           `toml:"version"`
	WatchPaths    []string      `toml:"watch_paths"`
	Paths         Paths         `toml:"paths"`
	Index         Index         `toml:"index"`
	Exclude       Exclude       `toml:"exclude"`
	Watch         Watch         `toml:"watch"`
	Reanalysis    Reanalysis    `toml:"reanalysis"`
	Resolver      Resolver      `toml:"resolver"`
	Observability Observability `toml:"observability"`
}

type Paths struct {
	ProjectRoot string `toml:"project_root"`
	StateDir    string `toml:"state_dir"`
}

type Index struct {
	Extensions    []string `toml:"extensions"`
	Workers       int      `toml:"workers"`
	TreeCacheSize int      `toml:"tree_cache_size"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Watch struct {
	// Debounce batches filesystem events.
	Debounce time.Duration `toml:"debounce"`
	// EditDebounce collects live edits of open documents.
	EditDebounce time.Duration `toml:"edit_debounce"`
}

type Reanalysis struct {
	PerSecond float64 `toml:"per_second"`
	Burst     int     `toml:"burst"`
}

type Resolver struct {
	MaxVariants int `toml:"max_variants"`
}

type Observability struct {
	MetricsAddress string `toml:"metrics_address"`
	OTLPEndpoint   string `toml:"otlp_endpoint"`
	ServiceName    string `toml:"service_name"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
