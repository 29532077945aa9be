package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type ResolvedPaths struct {
	ProjectRoot string
	StateDir    string
	LogFile     string
	WatchPaths  []string
}

func ResolvePaths(cfg *Config, cwd string) (ResolvedPaths, error) {
	if strings.TrimSpace(cwd) == "" {
		return ResolvedPaths{}, fmt.Errorf("cwd must not be empty")
	}

	projectRoot := strings.TrimSpace(cfg.Paths.ProjectRoot)
	if projectRoot != "" {
		projectRoot = ResolveRelative(cwd, projectRoot)
	} else {
		candidates := make([]string, 0, len(cfg.WatchPaths)+1)
		for _, p := range cfg.WatchPaths {
			candidates = append(candidates, ResolveRelative(cwd, p))
		}
		root, err := DetectProjectRoot(append(candidates, cwd))
		if err != nil {
			return ResolvedPaths{}, err
		}
		projectRoot = root
	}

	stateDir := ResolveRelative(projectRoot, cfg.Paths.StateDir)
	watch := make([]string, 0, len(cfg.WatchPaths))
	for _, p := range cfg.WatchPaths {
		watch = append(watch, ResolveRelative(projectRoot, p))
	}

	return ResolvedPaths{
		ProjectRoot: filepath.Clean(projectRoot),
		StateDir:    filepath.Clean(stateDir),
		LogFile:     filepath.Join(stateDir, "phelnav.log"),
		WatchPaths:  watch,
	}, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// DetectProjectRoot walks up from each candidate until a directory holds a
// project marker, falling back to the working directory.
func DetectProjectRoot(candidates []string) (string, error) {
	markers := []string{
		DefaultFileName,
		"phel-config.php",
		"composer.json",
		".git",
	}

	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}

		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		root := abs
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			root = filepath.Dir(abs)
		}

		for {
			for _, marker := range markers {
				if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
					return filepath.Clean(root), nil
				}
			}
			parent := filepath.Dir(root)
			if parent == root {
				break
			}
			root = parent
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Clean(cwd), nil
}
