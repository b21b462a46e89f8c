// Package launchloop implements the Launch Loop companion process
// (spec.md §4.8): it serializes backup invocations by watching a
// trigger directory, atomically claiming each trigger with a rename,
// running the Snapshot Engine as a child process, and filing the
// result into a dated success or error folder.
package launchloop

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/snapback/snapback2/internal/usecase"
)

// validTriggerName matches spec.md §4.8's allowed trigger filename
// character set; anything else is a spurious trigger.
var validTriggerName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const (
	inprocessSuffix = ".inprocess"
	doneSuffix      = ".done"
)

// Config configures a Loop.
type Config struct {
	LoopDirectory string
	DoneDir       string
	ErrDir        string
	PollInterval  time.Duration
	EnginePath    string // path to the snapback engine binary, run as a child
	ConfigFile    string
	AdminEmail    string
	SendMail      string
	Debug         bool
}

// Loop drives the companion trigger-polling process.
type Loop struct {
	logger       *slog.Logger
	fs           usecase.FileSystemPort
	runner       usecase.CommandPort
	clock        usecase.ClockPort
	mailer       usecase.MailPort
	metrics      usecase.MetricsPort
	cfg          Config
	spuriousMail rate.Sometimes
}

// Option configures a Loop.
type Option func(*Loop)

// WithMetrics attaches a usecase.MetricsPort so launch outcomes are
// recorded by the long-lived loop process itself rather than by the
// short-lived engine child it spawns (whose own counters die with it
// before anything can scrape them). nil leaves metrics disabled.
func WithMetrics(m usecase.MetricsPort) Option {
	return func(l *Loop) { l.metrics = m }
}

// New creates a Loop.
func New(logger *slog.Logger, fs usecase.FileSystemPort, runner usecase.CommandPort, clock usecase.ClockPort, mailer usecase.MailPort, cfg Config, opts ...Option) *Loop {
	if logger == nil {
		panic("launchloop requires a logger")
	}
	if cfg.LoopDirectory == "" {
		cfg.LoopDirectory = "/tmp/backups"
	}
	if cfg.DoneDir == "" {
		cfg.DoneDir = filepath.Join(cfg.LoopDirectory, "done")
	}
	if cfg.ErrDir == "" {
		cfg.ErrDir = filepath.Join(cfg.LoopDirectory, "errors")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	l := &Loop{
		logger: logger, fs: fs, runner: runner, clock: clock, mailer: mailer, cfg: cfg,
		// First spurious trigger in a burst always reaches the
		// administrator; further ones within the interval are
		// suppressed so a flood of bad trigger files can't flood
		// the mailbox (spec.md §4.8).
		spuriousMail: rate.Sometimes{Interval: time.Minute},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PollOnce processes the given loop-directory entry names, in the
// order given, one after the other (§5: "one after the other in the
// same poll pass"). Names ending in .inprocess or .done and entries
// that are directories are skipped. It returns the names it processed.
func (l *Loop) PollOnce(ctx context.Context, names []string) ([]string, error) {
	processed := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasSuffix(name, inprocessSuffix) || strings.HasSuffix(name, doneSuffix) {
			continue
		}
		if isDir, _, err := l.fs.IsDir(ctx, filepath.Join(l.cfg.LoopDirectory, name)); err == nil && isDir {
			continue
		}
		if err := l.handleTrigger(ctx, name); err != nil {
			l.logger.ErrorContext(ctx, "trigger handling failed", "name", name, "error", err)
		}
		processed = append(processed, name)
	}
	return processed, nil
}

func (l *Loop) handleTrigger(ctx context.Context, name string) error {
	triggerPath := filepath.Join(l.cfg.LoopDirectory, name)

	if !validTriggerName.MatchString(name) {
		return l.handleSpurious(ctx, name, triggerPath)
	}

	inprocessPath := triggerPath + inprocessSuffix
	if err := l.fs.Rename(ctx, triggerPath, inprocessPath); err != nil {
		return fmt.Errorf("claim trigger %s: %w", name, err)
	}

	result, err := l.runner.Run(ctx, l.cfg.EnginePath, l.engineArgs(inprocessPath, name), "")
	if err != nil {
		return fmt.Errorf("run engine for trigger %s: %w", name, err)
	}

	if err := l.appendOutput(inprocessPath, result.Output); err != nil {
		l.logger.WarnContext(ctx, "failed to append engine output", "path", inprocessPath, "error", err)
	}

	timestamp := l.clock.Now().Format("20060102-150405")
	if result.ExitCode == 0 {
		if l.metrics != nil {
			l.metrics.JobRan(name, "")
		}
		return l.fileSuccess(ctx, name, inprocessPath, timestamp)
	}
	if l.metrics != nil {
		l.metrics.JobFailed(name, "")
	}
	return l.fileFailure(ctx, name, inprocessPath, timestamp, result.ExitCode)
}

func (l *Loop) engineArgs(inprocessPath, name string) []string {
	args := []string{"-l", inprocessPath}
	if l.cfg.ConfigFile != "" {
		args = append(args, "-c", l.cfg.ConfigFile)
	}
	if l.cfg.Debug {
		args = append(args, "-d")
	}
	return append(args, name)
}

func (l *Loop) fileSuccess(ctx context.Context, name, inprocessPath, timestamp string) error {
	dayDir := filepath.Join(l.cfg.DoneDir, l.clock.Now().Format("20060102"))
	if err := l.fs.MkdirAll(ctx, dayDir); err != nil {
		return fmt.Errorf("ensure done dir %s: %w", dayDir, err)
	}
	dest := filepath.Join(dayDir, fmt.Sprintf("%s.%s", name, timestamp))
	return l.fs.Rename(ctx, inprocessPath, dest)
}

func (l *Loop) fileFailure(ctx context.Context, name, inprocessPath, timestamp string, exitCode int) error {
	banner := fmt.Sprintf("\n--- engine exited %d: %s %s ---\n", exitCode, l.cfg.EnginePath, strings.Join(l.engineArgs(inprocessPath, name), " "))
	if err := l.appendOutput(inprocessPath, banner); err != nil {
		l.logger.WarnContext(ctx, "failed to append failure banner", "path", inprocessPath, "error", err)
	}
	if err := l.fs.MkdirAll(ctx, l.cfg.ErrDir); err != nil {
		return fmt.Errorf("ensure err dir %s: %w", l.cfg.ErrDir, err)
	}
	dest := filepath.Join(l.cfg.ErrDir, fmt.Sprintf("%s.%s", name, timestamp))
	return l.fs.Rename(ctx, inprocessPath, dest)
}

// handleSpurious implements §4.8's disallowed-character handling:
// write an error file, email the administrator, delete the trigger,
// and never launch the engine.
func (l *Loop) handleSpurious(ctx context.Context, name, triggerPath string) error {
	if err := l.fs.MkdirAll(ctx, l.cfg.ErrDir); err != nil {
		return fmt.Errorf("%w: ensure err dir: %v", usecase.ErrSpuriousTrigger, err)
	}
	timestamp := l.clock.Now().Format("20060102-150405")
	errPath := filepath.Join(l.cfg.ErrDir, fmt.Sprintf("%s.%s", safeName(name), timestamp))
	message := fmt.Sprintf("spurious trigger rejected: %q contains characters outside [A-Za-z0-9_-]\n", name)
	if err := os.WriteFile(errPath, []byte(message), 0o644); err != nil { // #nosec G306 - world-readable error log is intentional
		return fmt.Errorf("%w: write error file: %v", usecase.ErrSpuriousTrigger, err)
	}

	if l.mailer != nil && l.cfg.AdminEmail != "" {
		l.spuriousMail.Do(func() {
			if err := l.mailer.Send(ctx, l.cfg.SendMail, l.cfg.AdminEmail, "snapback: spurious trigger rejected", message); err != nil {
				l.logger.WarnContext(ctx, "mail failure on spurious trigger (non-fatal)", "error", err)
			}
		})
	}

	if err := l.fs.RemoveAll(ctx, triggerPath); err != nil {
		return fmt.Errorf("%w: delete trigger: %v", usecase.ErrSpuriousTrigger, err)
	}
	return fmt.Errorf("%w: %s", usecase.ErrSpuriousTrigger, name)
}

// safeName strips characters unsafe for an error-log filename out of
// an otherwise-spurious trigger name, purely for the resulting path.
func safeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if validTriggerName.MatchString(string(r)) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "trigger"
	}
	return b.String()
}

func (l *Loop) appendOutput(path, output string) error {
	if output == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G304 - path is the loop's own in-progress file
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(output)
	return err
}
