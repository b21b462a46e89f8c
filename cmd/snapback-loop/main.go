// Command snapback-loop is the Launch Loop companion (spec.md §4.8):
// a long-running process that serializes backup invocations by
// polling a trigger directory and spawning the snapshot engine.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/snapback/snapback2/internal/adapters/configfile"
	"github.com/snapback/snapback2/internal/adapters/loghandler"
	"github.com/snapback/snapback2/internal/adapters/localoverride"
	"github.com/snapback/snapback2/internal/adapters/trigger"
	"github.com/snapback/snapback2/internal/app"
	"github.com/snapback/snapback2/internal/usecase"
	"github.com/snapback/snapback2/internal/usecase/launchloop"
)

var defaultSearchPaths = []string{
	"/etc/snapback2.conf",
	"/etc/snapback/snapback2.conf",
	"/etc/snapback.conf",
	"/etc/snapback/snapback.conf",
}

func main() {
	os.Exit(runMain())
}

func runMain() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	var configPath string
	var debug, once bool

	cmd := &cobra.Command{
		Use:           "snapback-loop",
		Short:         "Run the backup trigger launch loop",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	// -h: process whatever triggers are present once, then exit,
	// instead of polling forever. Useful under cron as an alternative
	// to running the loop as a daemon.
	cmd.Flags().BoolVarP(&once, "halt-after-pass", "h", false, "process pending triggers once and exit")

	exitCode := exitSuccess
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		code, err := run(ctx, configPath, debug, once)
		exitCode = code
		return err
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitCode == exitSuccess {
			exitCode = exitUsageError
		}
	}
	return exitCode
}

func run(ctx context.Context, configPath string, debug, once bool) (int, error) {
	logger := setupLogger(debug)

	path, err := resolveConfigPath(configPath)
	if err != nil {
		return exitConfigFatal, err
	}
	f, err := os.Open(path) // #nosec G304 - operator-specified configuration path
	if err != nil {
		return exitConfigFatal, fmt.Errorf("%w: open config %s: %v", usecase.ErrConfigFatal, path, err)
	}
	defer f.Close()

	root, err := configfile.Parse(f)
	if err != nil {
		return exitConfigFatal, fmt.Errorf("%w: parse config %s: %v", usecase.ErrConfigFatal, path, err)
	}
	globals := configfile.ResolveGlobals(root)
	loopDir := root.String("LoopDirectory", "/tmp/backups")

	overrides := localoverride.New(logger)
	settings, err := overrides.Load(ctx, localoverride.ResolvePath())
	if err != nil {
		return exitConfigFatal, fmt.Errorf("%w: load local overrides: %v", usecase.ErrConfigFatal, err)
	}

	exePath, err := os.Executable()
	if err != nil {
		return exitConfigFatal, fmt.Errorf("%w: resolve executable path: %v", usecase.ErrConfigFatal, err)
	}
	enginePath := filepath.Join(filepath.Dir(exePath), "snapback")

	deps := app.NewDefaultDependencies(logger)
	// Metrics are recorded here, not inside the engine child process:
	// this loop is the long-lived side of the pair and is what
	// settings.MetricsAddr actually serves below.
	loop := launchloop.New(logger, deps.FileSystem, deps.Runner, deps.Clock, deps.Mailer, launchloop.Config{
		LoopDirectory: loopDir,
		PollInterval:  time.Duration(settings.LoopPollSeconds) * time.Second,
		EnginePath:    enginePath,
		ConfigFile:    path,
		AdminEmail:    globals.AdminEmail,
		SendMail:      globals.SendMail,
		Debug:         debug,
	}, launchloop.WithMetrics(deps.Metrics))

	if err := os.MkdirAll(loopDir, 0o755); err != nil {
		return exitConfigFatal, fmt.Errorf("%w: ensure loop directory %s: %v", usecase.ErrConfigFatal, loopDir, err)
	}

	if once {
		present, err := deps.FileSystem.ReadDirNames(ctx, loopDir)
		if err != nil {
			return exitConfigFatal, fmt.Errorf("%w: read loop directory %s: %v", usecase.ErrConfigFatal, loopDir, err)
		}
		if _, err := loop.PollOnce(ctx, present); err != nil {
			logger.ErrorContext(ctx, "poll failed", "error", err)
		}
		return exitSuccess, nil
	}

	watcher, err := trigger.New(logger, loopDir, time.Duration(settings.LoopPollSeconds)*time.Second)
	if err != nil {
		return exitConfigFatal, fmt.Errorf("%w: start trigger watcher: %v", usecase.ErrConfigFatal, err)
	}
	defer watcher.Close()

	if settings.MetricsAddr != "" {
		go func() {
			if err := deps.Metrics.(interface {
				Serve(context.Context, string) error
			}).Serve(ctx, settings.MetricsAddr); err != nil {
				logger.WarnContext(ctx, "metrics server stopped", "error", err)
			}
		}()
	}

	names := make(chan string, 64)
	watchErrCh := make(chan error, 1)
	go func() { watchErrCh <- watcher.Watch(ctx, names) }()

	logger.InfoContext(ctx, "launch loop started", "directory", loopDir, "engine", enginePath)

	for {
		select {
		case <-ctx.Done():
			return exitInterrupted, nil
		case name := <-names:
			base := filepath.Base(name)
			if _, err := loop.PollOnce(ctx, []string{base}); err != nil {
				logger.ErrorContext(ctx, "poll failed", "error", err)
			}
		case err := <-watchErrCh:
			if err != nil && ctx.Err() == nil {
				logger.ErrorContext(ctx, "trigger watcher stopped unexpectedly", "error", err)
			}
			return exitSuccess, nil
		}
	}
}

func resolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	for _, candidate := range defaultSearchPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no configuration file found in %v", usecase.ErrConfigFatal, defaultSearchPaths)
}

func setupLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := loghandler.NewHandler(os.Stderr, &loghandler.Options{
		Level:    level,
		UseColor: shouldUseColor(os.Stderr),
	})
	return slog.New(handler)
}

func shouldUseColor(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
