// Package engine implements the Snapshot Engine (spec.md §4.6): the
// orchestrator that, for each (host, directory) job, selects a
// destination, checks the schedule gate, rotates and hard-link-clones
// the snapshot rings, invokes the external sync, and promotes into
// daily/weekly/monthly tiers when the calendar trigger fires.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/snapback/snapback2/internal/usecase"
	"github.com/snapback/snapback2/internal/usecase/calendar"
	"github.com/snapback/snapback2/internal/usecase/destination"
	"github.com/snapback/snapback2/internal/usecase/ring"
	"github.com/snapback/snapback2/internal/usecase/runlog"
	"github.com/snapback/snapback2/internal/usecase/schedule"
)

// SyncOptions are the fixed rsync-compatible flags the external sync
// is always invoked with (§6: "honor --delete, --delete-excluded,
// --one-file-system, -avz -e ssh").
var SyncOptions = []string{"-avz", "-e", "ssh", "--delete", "--delete-excluded", "--one-file-system"}

// Engine runs backup jobs against injected ports.
type Engine struct {
	logger  *slog.Logger
	fs      usecase.FileSystemPort
	runner  usecase.CommandPort
	clock   usecase.ClockPort
	metrics usecase.MetricsPort
	sync    string // path to the external sync binary, default "rsync"
}

// Option configures an Engine.
type Option func(*Engine)

// WithSyncCommand overrides the external sync binary (default "rsync").
func WithSyncCommand(path string) Option {
	return func(e *Engine) { e.sync = path }
}

// WithMetrics attaches a usecase.MetricsPort; nil leaves metrics disabled.
func WithMetrics(m usecase.MetricsPort) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an Engine.
func New(logger *slog.Logger, fs usecase.FileSystemPort, runner usecase.CommandPort, clock usecase.ClockPort, opts ...Option) *Engine {
	if logger == nil {
		panic("engine requires a logger")
	}
	e := &Engine{logger: logger, fs: fs, runner: runner, clock: clock, sync: "rsync"}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes jobs sequentially in declaration order (§5: no
// intra-process parallelism), recording one JobOutcome per job and
// appending to rc's transcript and error log.
func (e *Engine) Run(ctx context.Context, rc *runlog.RunContext, jobs []usecase.BackupJob, force bool) []usecase.JobOutcome {
	outcomes := make([]usecase.JobOutcome, 0, len(jobs))
	for _, job := range jobs {
		outcomes = append(outcomes, e.runJob(ctx, rc, job, force))
	}
	return outcomes
}

func (e *Engine) runJob(ctx context.Context, rc *runlog.RunContext, job usecase.BackupJob, force bool) usecase.JobOutcome {
	outcome := usecase.JobOutcome{Host: job.Host, Directory: job.Directory}

	dest, err := destination.Select(ctx, e.fs, job.Destination, job.Host, job.Directory, job.DirNameFor(usecase.Hourly))
	if err != nil {
		return e.fail(rc, outcome, fmt.Errorf("%w: select destination: %v", usecase.ErrJobFatal, err))
	}
	prefix := e.fs.Join(dest, job.Host, job.Directory)

	if err := e.ensurePrefix(ctx, prefix, job.CreateDir); err != nil {
		return e.fail(rc, outcome, fmt.Errorf("%w: %v", usecase.ErrJobFatal, err))
	}

	hourlyBase := e.fs.Join(prefix, job.DirNameFor(usecase.Hourly))
	slot0 := ring.SlotPath(hourlyBase, 0)
	slot0Mtime, _, err := e.fs.Stat(ctx, slot0)
	if err != nil {
		return e.fail(rc, outcome, fmt.Errorf("%w: stat %s: %v", usecase.ErrJobFatal, slot0, err))
	}

	flags := calendar.Evaluate(slot0Mtime, e.clock.Now())

	if !schedule.Due(job.Retention.Hourlies, slot0Mtime, e.clock.Now(), job.MustExceed, force, job.AutoTime) {
		outcome.Skipped = true
		if e.metrics != nil {
			e.metrics.JobSkipped(job.Host, job.Directory)
		}
		return outcome
	}

	if err := ring.Rotate(ctx, e.fs, hourlyBase, int(job.Retention.Hourlies), false); err != nil {
		return e.fail(rc, outcome, fmt.Errorf("%w: rotate hourly ring: %v", usecase.ErrJobFatal, err))
	}

	if _, exists, err := e.fs.IsDir(ctx, slot0); err != nil {
		return e.fail(rc, outcome, fmt.Errorf("%w: stat %s: %v", usecase.ErrJobFatal, slot0, err))
	} else if exists {
		slot1 := ring.SlotPath(hourlyBase, 1)
		if err := e.fs.CloneTree(ctx, slot0, slot1); err != nil {
			return e.fail(rc, outcome, fmt.Errorf("%w: clone hourly.0 -> hourly.1: %v", usecase.ErrJobFatal, err))
		}
	}

	rc.BeginClient(job.Host)
	bytesRead, err := e.invokeSync(ctx, rc, job, slot0)
	if err != nil {
		return e.fail(rc, outcome, fmt.Errorf("%w: sync: %v", usecase.ErrJobFatal, err))
	}
	outcome.BytesRead = bytesRead

	if err := e.fs.Touch(ctx, slot0, e.clock.Now()); err != nil {
		return e.fail(rc, outcome, fmt.Errorf("%w: touch %s: %v", usecase.ErrJobFatal, slot0, err))
	}

	if err := e.promote(ctx, job, prefix, slot0, usecase.Daily, flags.DoDailies); err != nil {
		return e.fail(rc, outcome, err)
	}
	if err := e.promote(ctx, job, prefix, slot0, usecase.Weekly, flags.DoWeeklies); err != nil {
		return e.fail(rc, outcome, err)
	}
	if err := e.promote(ctx, job, prefix, slot0, usecase.Monthly, flags.DoMonthlies); err != nil {
		return e.fail(rc, outcome, err)
	}

	if e.metrics != nil {
		e.metrics.JobRan(job.Host, job.Directory)
		e.metrics.BytesTransferred(job.Host, bytesRead)
	}
	return outcome
}

func (e *Engine) fail(rc *runlog.RunContext, outcome usecase.JobOutcome, err error) usecase.JobOutcome {
	outcome.Err = err
	rc.LogError("%s (%s): %v", outcome.Host, outcome.Directory, err)
	if e.metrics != nil {
		e.metrics.JobFailed(outcome.Host, outcome.Directory)
	}
	return outcome
}

func (e *Engine) ensurePrefix(ctx context.Context, prefix string, createDir bool) error {
	isDir, exists, err := e.fs.IsDir(ctx, prefix)
	if err != nil {
		return fmt.Errorf("stat %s: %w", prefix, err)
	}
	if exists && !isDir {
		return fmt.Errorf("%s exists and is not a directory", prefix)
	}
	if exists {
		return nil
	}
	if !createDir {
		return fmt.Errorf("%s does not exist and CreateDir is disabled", prefix)
	}
	if err := e.fs.MkdirAll(ctx, prefix); err != nil {
		return fmt.Errorf("mkdir %s: %w", prefix, err)
	}
	return nil
}

// invokeSync runs the external sync from fqdn:dir into slot0,
// redirecting its combined output into the run transcript (§4.7).
func (e *Engine) invokeSync(ctx context.Context, rc *runlog.RunContext, job usecase.BackupJob, slot0 string) (int64, error) {
	args := append([]string{}, SyncOptions...)
	for _, pattern := range job.Excludes {
		if !doublestar.ValidatePattern(pattern) {
			return 0, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
		args = append(args, "--exclude="+pattern)
	}
	source := job.Host + ":" + job.Directory
	args = append(args, source, slot0)

	result, err := e.runner.Run(ctx, e.sync, args, "")
	rc.AppendOutput(result.Output)
	if err != nil {
		return 0, err
	}
	if result.ExitCode != 0 {
		return 0, fmt.Errorf("sync exited %d", result.ExitCode)
	}
	return parseReadBytes(result.Output), nil
}

var wroteReadPattern = regexp.MustCompile(`wrote\s+(\d+)\s+bytes\s+read\s+(\d+)\s+bytes`)

func parseReadBytes(output string) int64 {
	m := wroteReadPattern.FindStringSubmatch(output)
	if m == nil {
		return 0
	}
	var read int64
	_, _ = fmt.Sscanf(m[2], "%d", &read)
	return read
}

// promote, if triggered and retention > 0, rotates tier's ring
// (rotate_all=true) and clones the just-written hourly slot 0 into
// tier's slot 0; otherwise it does nothing. This implements the "yesterdays_hourly" behavior preserved
// per spec.md §9: promotion always clones *today's* freshly-synced
// hourly 0, never a snapshot from before this run.
func (e *Engine) promote(ctx context.Context, job usecase.BackupJob, prefix, hourlySlot0 string, tier usecase.Tier, trigger bool) error {
	count := job.Retention.Count(tier)
	if !trigger || count == 0 {
		return nil
	}
	base := e.fs.Join(prefix, job.DirNameFor(tier))
	if err := ring.Rotate(ctx, e.fs, base, int(count), true); err != nil {
		return fmt.Errorf("%w: rotate %s ring: %v", usecase.ErrJobFatal, tier, err)
	}
	if _, exists, err := e.fs.IsDir(ctx, hourlySlot0); err != nil {
		return fmt.Errorf("%w: stat %s: %v", usecase.ErrJobFatal, hourlySlot0, err)
	} else if !exists {
		return nil
	}
	tierSlot0 := ring.SlotPath(base, 0)
	if err := e.fs.CloneTree(ctx, hourlySlot0, tierSlot0); err != nil {
		return fmt.Errorf("%w: clone hourly.0 -> %s: %v", usecase.ErrJobFatal, tierSlot0, err)
	}
	return nil
}

// compileRegex is used by the CLI layer to build -p/-P host/directory
// filters (§6); lives here so engine and cmd share one ErrConfigFatal
// wrapping rule for a malformed pattern.
func compileRegex(pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid regex %q: %v", usecase.ErrConfigFatal, pattern, err)
	}
	return re, nil
}

// CompileFilter compiles pattern into a predicate usable as
// ResolveJobs' hostFilter/dirFilter, or nil (meaning "match
// everything") for an empty pattern.
func CompileFilter(pattern string) (func(string) bool, error) {
	re, err := compileRegex(pattern)
	if err != nil {
		return nil, err
	}
	if re == nil {
		return nil, nil
	}
	return re.MatchString, nil
}
