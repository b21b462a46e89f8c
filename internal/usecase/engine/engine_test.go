package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snapback/snapback2/internal/adapters/filesystem"
	"github.com/snapback/snapback2/internal/usecase"
	"github.com/snapback/snapback2/internal/usecase/runlog"
)

// fakeRunner stands in for the external sync: it mimics rsync by
// materializing the destination directory (the last argument) so the
// engine's subsequent touch/clone/promote steps have something real
// to operate on, and reports a canned "wrote/read" summary line.
type fakeRunner struct {
	calls [][]string
}

func (r *fakeRunner) Run(_ context.Context, name string, args []string, _ string) (usecase.CommandResult, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if len(args) > 0 {
		dest := args[len(args)-1]
		if err := os.MkdirAll(dest, 0o755); err == nil {
			_ = os.WriteFile(filepath.Join(dest, "data.bin"), []byte("payload"), 0o644)
		}
	}
	return usecase.CommandResult{
		ExitCode: 0,
		Output:   "wrote 128 bytes  read 4096 bytes  1000.00 bytes/sec",
	}, nil
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

func newJob(destRoot string) usecase.BackupJob {
	return usecase.BackupJob{
		Host:      "db1.example.com",
		Directory: "/var/lib/mysql/",
		Retention: usecase.RetentionPolicy{Hourlies: 4, Dailies: 3},
		Destination: usecase.DestinationPolicy{
			Kind:  usecase.DestinationFixed,
			Fixed: destRoot,
		},
		AutoTime:   true,
		MustExceed: 5 * time.Minute,
		CreateDir:  true,
	}
}

func TestEngine_ColdStart_CreatesHourlyAndDaily(t *testing.T) {
	destRoot := t.TempDir()
	fs := filesystem.New(slog.Default())
	runner := &fakeRunner{}
	// Thursday, not day-of-month 1: only the daily tier should trigger.
	clock := fakeClock{now: time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)}

	eng := New(slog.Default(), fs, runner, clock)
	rc := runlog.NewRunContext("run-1")
	job := newJob(destRoot)

	outcomes := eng.Run(context.Background(), rc, []usecase.BackupJob{job}, false)
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	require.False(t, outcomes[0].Skipped)

	prefix := filepath.Join(destRoot, job.Host, job.Directory)
	hourly0 := filepath.Join(prefix, "hourly.0")
	daily0 := filepath.Join(prefix, "daily.0")

	info, err := os.Stat(hourly0)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	dailyInfo, err := os.Stat(daily0)
	require.NoError(t, err)
	require.True(t, dailyInfo.IsDir())

	// hourly.0's payload file must be hard-linked into daily.0, not copied.
	hourlyFile, err := os.Stat(filepath.Join(hourly0, "data.bin"))
	require.NoError(t, err)
	dailyFile, err := os.Stat(filepath.Join(daily0, "data.bin"))
	require.NoError(t, err)
	require.True(t, os.SameFile(hourlyFile, dailyFile))

	require.Len(t, runner.calls, 1)
	require.Contains(t, runner.calls[0][0], "rsync")
}

func TestEngine_GateSkip_NoMutation(t *testing.T) {
	destRoot := t.TempDir()
	fs := filesystem.New(slog.Default())
	runner := &fakeRunner{}
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	clock := fakeClock{now: now}

	job := newJob(destRoot)
	prefix := filepath.Join(destRoot, job.Host, job.Directory)
	hourly0 := filepath.Join(prefix, "hourly.0")
	require.NoError(t, os.MkdirAll(hourly0, 0o755))
	aged := now.Add(-30 * time.Minute)
	require.NoError(t, os.Chtimes(hourly0, aged, aged))

	eng := New(slog.Default(), fs, runner, clock)
	rc := runlog.NewRunContext("run-1")

	outcomes := eng.Run(context.Background(), rc, []usecase.BackupJob{job}, false)
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Skipped)
	require.NoError(t, outcomes[0].Err)
	require.Empty(t, runner.calls)

	info, err := os.Stat(hourly0)
	require.NoError(t, err)
	require.True(t, info.ModTime().Equal(aged), "gate skip must not mutate the existing slot")
}

func TestEngine_ForceBypassesGate(t *testing.T) {
	destRoot := t.TempDir()
	fs := filesystem.New(slog.Default())
	runner := &fakeRunner{}
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	clock := fakeClock{now: now}

	job := newJob(destRoot)
	prefix := filepath.Join(destRoot, job.Host, job.Directory)
	hourly0 := filepath.Join(prefix, "hourly.0")
	require.NoError(t, os.MkdirAll(hourly0, 0o755))
	aged := now.Add(-30 * time.Minute)
	require.NoError(t, os.Chtimes(hourly0, aged, aged))

	eng := New(slog.Default(), fs, runner, clock)
	rc := runlog.NewRunContext("run-1")

	outcomes := eng.Run(context.Background(), rc, []usecase.BackupJob{job}, true)
	require.Len(t, outcomes, 1)
	require.False(t, outcomes[0].Skipped)
	require.NoError(t, outcomes[0].Err)
	require.Len(t, runner.calls, 1)
}

func TestEngine_InvalidExcludePattern_FailsJobWithoutRunningSync(t *testing.T) {
	destRoot := t.TempDir()
	fs := filesystem.New(slog.Default())
	runner := &fakeRunner{}
	clock := fakeClock{now: time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)}

	job := newJob(destRoot)
	job.Excludes = []string{"*.log", "["}

	eng := New(slog.Default(), fs, runner, clock)
	rc := runlog.NewRunContext("run-1")

	outcomes := eng.Run(context.Background(), rc, []usecase.BackupJob{job}, false)
	require.Len(t, outcomes, 1)
	require.ErrorIs(t, outcomes[0].Err, usecase.ErrJobFatal)
	require.ErrorContains(t, outcomes[0].Err, "invalid exclude pattern")
	require.Empty(t, runner.calls, "sync must not run when an exclude pattern is malformed")
}

func TestEngine_JobFailure_IsolatedFromOtherJobs(t *testing.T) {
	destRoot := t.TempDir()
	fs := filesystem.New(slog.Default())
	runner := &fakeRunner{}
	clock := fakeClock{now: time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)}

	badJob := usecase.BackupJob{
		Host:        "broken.example.com",
		Directory:   "/data/",
		Retention:   usecase.RetentionPolicy{Hourlies: 4},
		Destination: usecase.DestinationPolicy{Kind: usecase.DestinationFixed, Fixed: ""},
		AutoTime:    true,
		CreateDir:   true,
	}
	goodJob := newJob(destRoot)

	eng := New(slog.Default(), fs, runner, clock)
	rc := runlog.NewRunContext("run-1")

	outcomes := eng.Run(context.Background(), rc, []usecase.BackupJob{badJob, goodJob}, false)
	require.Len(t, outcomes, 2)
	require.Error(t, outcomes[0].Err)
	require.ErrorIs(t, outcomes[0].Err, usecase.ErrJobFatal)
	require.NoError(t, outcomes[1].Err)
	require.True(t, rc.ErrorLogged)
}
