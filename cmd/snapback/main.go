// Command snapback is the Snapshot Engine CLI (spec.md §4.6, §6): a
// single invocation that walks every configured (host, directory)
// pair, in declaration order, applying the schedule gate, ring
// rotation, hard-link promotion, and external sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/snapback/snapback2/internal/adapters/configfile"
	"github.com/snapback/snapback2/internal/adapters/loghandler"
	"github.com/snapback/snapback2/internal/adapters/localoverride"
	"github.com/snapback/snapback2/internal/app"
	"github.com/snapback/snapback2/internal/usecase"
	"github.com/snapback/snapback2/internal/usecase/engine"
	"github.com/snapback/snapback2/internal/usecase/runlog"
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
	var debug, force bool
	var hostPattern, dirPattern, altLog string

	cmd := &cobra.Command{
		Use:           "snapback [NAME]",
		Short:         "Run the snapshot backup engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "bypass the schedule gate")
	cmd.Flags().StringVarP(&hostPattern, "hosts", "p", "", "restrict to host blocks matching this regex")
	cmd.Flags().StringVarP(&dirPattern, "directories", "P", "", "restrict to directories matching this regex")
	cmd.Flags().StringVarP(&altLog, "log", "l", "", "alternate run log file (used by the launch loop)")

	exitCode := exitSuccess
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		var name string
		if len(args) == 1 {
			name = args[0]
		}
		code, err := run(ctx, runOptions{
			configPath:  configPath,
			debug:       debug,
			force:       force,
			hostPattern: hostPattern,
			dirPattern:  dirPattern,
			altLog:      altLog,
			name:        name,
		})
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

type runOptions struct {
	configPath  string
	debug       bool
	force       bool
	hostPattern string
	dirPattern  string
	altLog      string
	name        string
}

func run(ctx context.Context, opts runOptions) (int, error) {
	logger := setupLogger(opts.debug)

	path, err := resolveConfigPath(opts.configPath, opts.name)
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

	hostFilter, err := engine.CompileFilter(opts.hostPattern)
	if err != nil {
		return exitConfigFatal, err
	}
	dirFilter, err := engine.CompileFilter(opts.dirPattern)
	if err != nil {
		return exitConfigFatal, err
	}

	jobs, err := configfile.ResolveJobs(root, hostFilter, dirFilter)
	if err != nil {
		return exitConfigFatal, err
	}

	deps := app.NewDefaultDependencies(logger)

	overrides := localoverride.New(logger)
	settings, err := overrides.Load(ctx, localoverride.ResolvePath())
	if err != nil {
		return exitConfigFatal, fmt.Errorf("%w: load local overrides: %v", usecase.ErrConfigFatal, err)
	}

	logFile := globals.LogFile
	if opts.altLog != "" {
		logFile = opts.altLog
	}

	runLogger := runlog.New(logger, deps.Mailer, runlog.Config{
		LogFile:     logFile,
		DebugFile:   globals.DebugFile,
		ChargeFile:  globals.ChargeFile,
		AdminEmail:  globals.AdminEmail,
		AlwaysEmail: globals.AlwaysEmail,
		SendMail:    globals.SendMail,
		Debug:       opts.debug,
	})

	rc := runlog.NewRunContext(uuid.NewString())
	eng := engine.New(logger, deps.FileSystem, deps.Runner, deps.Clock, engine.WithMetrics(deps.Metrics))

	outcomes := eng.Run(ctx, rc, jobs, opts.force)
	if ctx.Err() != nil {
		return exitInterrupted, fmt.Errorf("%w", usecase.ErrInterrupted)
	}

	if _, err := runLogger.Finish(ctx, rc, outcomes); err != nil {
		logger.ErrorContext(ctx, "failed to finalize run log", "error", err)
	}

	// This process exits right after this line, so its own Prometheus
	// counters are never scraped in place; push them to a gateway if
	// the operator configured one, or they're just discarded.
	if settings.PushGatewayAddr != "" {
		if pusher, ok := deps.Metrics.(interface {
			Push(ctx context.Context, url, job string) error
		}); ok {
			if err := pusher.Push(ctx, settings.PushGatewayAddr, "snapback"); err != nil {
				logger.WarnContext(ctx, "failed to push metrics to gateway", "error", err)
			}
		}
	}

	for _, outcome := range outcomes {
		if outcome.Err != nil && !errors.Is(outcome.Err, usecase.ErrSkip) {
			logger.ErrorContext(ctx, "job failed", "host", outcome.Host, "directory", outcome.Directory, "error", outcome.Err)
		}
	}

	// §7: "Exit code is zero unless a config fatal fires" — job
	// failures are recorded and emailed, not surfaced as a nonzero exit.
	return exitSuccess, nil
}

func resolveConfigPath(explicit, name string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if name != "" {
		candidate := filepath.Join("/etc/snapback", name+".conf")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
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
