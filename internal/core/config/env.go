package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: PHELNAV_[SECTION]_[KEY] (e.g., PHELNAV_WATCH_DEBOUNCE).
func ApplyEnvOverrides(cfg *Config) {
	setEnvString(&cfg.Paths.ProjectRoot, "PHELNAV_PATHS_PROJECT_ROOT")
	setEnvString(&cfg.Paths.StateDir, "PHELNAV_PATHS_STATE_DIR")

	setEnvInt(&cfg.Index.Workers, "PHELNAV_INDEX_WORKERS")
	setEnvInt(&cfg.Index.TreeCacheSize, "PHELNAV_INDEX_TREE_CACHE_SIZE")

	setEnvDuration(&cfg.Watch.Debounce, "PHELNAV_WATCH_DEBOUNCE")
	setEnvDuration(&cfg.Watch.EditDebounce, "PHELNAV_WATCH_EDIT_DEBOUNCE")

	setEnvFloat64(&cfg.Reanalysis.PerSecond, "PHELNAV_REANALYSIS_PER_SECOND")
	setEnvInt(&cfg.Reanalysis.Burst, "PHELNAV_REANALYSIS_BURST")

	setEnvInt(&cfg.Resolver.MaxVariants, "PHELNAV_RESOLVER_MAX_VARIANTS")

	setEnvString(&cfg.Observability.MetricsAddress, "PHELNAV_OBSERVABILITY_METRICS_ADDRESS")
	setEnvString(&cfg.Observability.OTLPEndpoint, "PHELNAV_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvString(&cfg.Observability.ServiceName, "PHELNAV_OBSERVABILITY_SERVICE_NAME")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvFloat64(target *float64, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = f
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
