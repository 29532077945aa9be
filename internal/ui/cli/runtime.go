package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"phelnav/internal/core/config"
	"phelnav/internal/core/session"
)

type logMode int

const (
	// logToStderr keeps stdout free for command output.
	logToStderr logMode = iota
	// logToFile is used when stdout and stderr belong to a UI or a protocol.
	logToFile
)

// runtime bundles what every command needs: configuration, logging and an
// open session.
type runtime struct {
	cfg     *config.Config
	cfgPath string
	session *session.Session

	closeLogs func()
}

func openRuntime(ctx context.Context, opts *globalOptions, mode logMode, sessionOpts ...session.Option) (*runtime, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("detect working directory: %w", err)
	}

	cfg, cfgPath, err := loadConfig(opts.configPath, cwd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	workDir := cwd
	if cfgPath != "" {
		workDir = filepath.Dir(cfgPath)
	}
	paths, err := config.ResolvePaths(cfg, workDir)
	if err != nil {
		return nil, fmt.Errorf("resolve runtime paths: %w", err)
	}

	logFile := strings.TrimSpace(opts.logFile)
	if logFile == "" && mode == logToFile {
		logFile = paths.LogFile
	}
	closeLogs := configureLogging(os.Stderr, logFile, opts.verbose)

	all := []session.Option{session.WithWorkingDir(workDir)}
	if cfgPath != "" {
		all = append(all, session.WithConfigPath(cfgPath))
	}
	s, err := session.New(ctx, cfg, append(all, sessionOpts...)...)
	if err != nil {
		closeLogs()
		return nil, err
	}
	return &runtime{cfg: cfg, cfgPath: cfgPath, session: s, closeLogs: closeLogs}, nil
}

func (r *runtime) Close() {
	if err := r.session.Close(); err != nil {
		slog.Warn("session close failed", "error", err)
	}
	r.closeLogs()
}

// loadConfig reads an explicit config path strictly; without one it uses
// ./phelnav.toml when present and the defaults otherwise. The returned path
// is empty when no file backs the configuration.
func loadConfig(path, cwd string) (*config.Config, string, error) {
	if strings.TrimSpace(path) != "" {
		resolved := config.ResolveRelative(cwd, path)
		cfg, err := config.Load(resolved)
		if err != nil {
			return nil, "", err
		}
		return cfg, resolved, nil
	}

	candidate := filepath.Join(cwd, config.DefaultFileName)
	if _, err := os.Stat(candidate); err != nil {
		cfg, err := config.LoadOrDefault(candidate)
		return cfg, "", err
	}
	cfg, err := config.Load(candidate)
	if err != nil {
		return nil, "", err
	}
	return cfg, candidate, nil
}

func configureLogging(fallback io.Writer, logPath string, verbose bool) func() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	output := fallback
	closeFn := func() {}
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to create log dir for %s: %v\n", logPath, err)
		} else if fi, err := os.Lstat(logPath); err == nil && (fi.Mode()&os.ModeSymlink) != 0 {
			fmt.Fprintf(os.Stderr, "warning: refusing to write logs to symlink path %s\n", logPath)
		} else {
			f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
			if err == nil {
				output = f
				closeFn = func() { _ = f.Close() }
			} else {
				fmt.Fprintf(os.Stderr, "warning: failed to open log file %s: %v\n", logPath, err)
			}
		}
	}

	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	return closeFn
}
