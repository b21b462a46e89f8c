package launchloop

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/snapback/snapback2/internal/adapters/filesystem"
	"github.com/snapback/snapback2/internal/usecase"
)

type fakeRunner struct {
	exitCode int
	output   string
	calls    int
	lastArgs []string
}

func (r *fakeRunner) Run(_ context.Context, _ string, args []string, _ string) (usecase.CommandResult, error) {
	r.calls++
	r.lastArgs = args
	return usecase.CommandResult{ExitCode: r.exitCode, Output: r.output}, nil
}

type fakeMailer struct {
	sent bool
	to   string
}

func (m *fakeMailer) Send(_ context.Context, _, to, _, _ string) error {
	m.sent = true
	m.to = to
	return nil
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeMetrics struct {
	ran    []string
	failed []string
}

func (m *fakeMetrics) JobRan(host, _ string)          { m.ran = append(m.ran, host) }
func (m *fakeMetrics) JobSkipped(_, _ string)         {}
func (m *fakeMetrics) JobFailed(host, _ string)       { m.failed = append(m.failed, host) }
func (m *fakeMetrics) BytesTransferred(_ string, _ int64) {}

func newLoop(t *testing.T, runner *fakeRunner, mailer *fakeMailer) (*Loop, string) {
	t.Helper()
	dir := t.TempDir()
	fs := filesystem.New(slog.Default())
	clock := fakeClock{now: time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)}
	loop := New(slog.Default(), fs, runner, clock, mailer, Config{
		LoopDirectory: dir,
		EnginePath:    "/usr/local/bin/snapback",
		AdminEmail:    "admin@example.com",
		SendMail:      "/usr/sbin/sendmail -t",
	})
	return loop, dir
}

func TestLoop_SuccessfulRunMovesToDoneDir(t *testing.T) {
	runner := &fakeRunner{exitCode: 0, output: "all good"}
	loop, dir := newLoop(t, runner, &fakeMailer{})

	trigger := filepath.Join(dir, "db1-example-com")
	require.NoError(t, os.WriteFile(trigger, nil, 0o644))

	processed, err := loop.PollOnce(context.Background(), []string{"db1-example-com"})
	require.NoError(t, err)
	require.Equal(t, []string{"db1-example-com"}, processed)
	require.Equal(t, 1, runner.calls)

	_, statErr := os.Stat(trigger)
	require.True(t, os.IsNotExist(statErr))

	doneDay := filepath.Join(loop.cfg.DoneDir, "20260730")
	entries, err := os.ReadDir(doneDay)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Name(), "db1-example-com")
}

func TestLoop_FailedRunMovesToErrDirWithBanner(t *testing.T) {
	runner := &fakeRunner{exitCode: 3, output: "sync failed"}
	loop, dir := newLoop(t, runner, &fakeMailer{})

	trigger := filepath.Join(dir, "db2-example-com")
	require.NoError(t, os.WriteFile(trigger, nil, 0o644))

	_, err := loop.PollOnce(context.Background(), []string{"db2-example-com"})
	require.NoError(t, err)

	entries, err := os.ReadDir(loop.cfg.ErrDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	content, err := os.ReadFile(filepath.Join(loop.cfg.ErrDir, entries[0].Name()))
	require.NoError(t, err)
	require.Contains(t, string(content), "sync failed")
	require.Contains(t, string(content), "exited 3")
}

func TestLoop_SpuriousTriggerIsDeletedAndEmailedNotLaunched(t *testing.T) {
	runner := &fakeRunner{}
	mailer := &fakeMailer{}
	loop, dir := newLoop(t, runner, mailer)

	name := "evil; rm -rf /"
	trigger := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(trigger, nil, 0o644))

	_, err := loop.PollOnce(context.Background(), []string{name})
	require.NoError(t, err)

	require.Equal(t, 0, runner.calls, "engine must never be invoked for a spurious trigger")
	require.True(t, mailer.sent)
	require.Equal(t, "admin@example.com", mailer.to)

	_, statErr := os.Stat(trigger)
	require.True(t, os.IsNotExist(statErr), "spurious trigger file must be deleted")

	entries, err := os.ReadDir(loop.cfg.ErrDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLoop_IgnoresInprocessAndDoneSuffixedEntries(t *testing.T) {
	runner := &fakeRunner{}
	loop, _ := newLoop(t, runner, &fakeMailer{})

	processed, err := loop.PollOnce(context.Background(), []string{"stale.inprocess", "old.done"})
	require.NoError(t, err)
	require.Empty(t, processed)
	require.Equal(t, 0, runner.calls)
}

func TestLoop_SpuriousTriggerBurstThrottlesAdminEmail(t *testing.T) {
	runner := &fakeRunner{}
	mailer := &fakeMailer{}
	loop, dir := newLoop(t, runner, mailer)

	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("evil %d", i)
		trigger := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(trigger, nil, 0o644))
		_, err := loop.PollOnce(context.Background(), []string{name})
		require.NoError(t, err)
		// Only the first spurious trigger in the burst reaches the
		// mailer; rate.Sometimes suppresses the rest within Interval.
		require.Equal(t, i == 0, mailer.sent, "spurious trigger %d", i)
		mailer.sent = false // reset between iterations to observe per-call behavior
	}

	entries, err := os.ReadDir(loop.cfg.ErrDir)
	require.NoError(t, err)
	require.Len(t, entries, 3, "every spurious trigger still gets an error file regardless of throttling")
}

func TestLoop_RecordsMetricsOnSuccessAndFailure(t *testing.T) {
	metrics := &fakeMetrics{}

	okRunner := &fakeRunner{exitCode: 0}
	dir := t.TempDir()
	fs := filesystem.New(slog.Default())
	clock := fakeClock{now: time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)}
	loop := New(slog.Default(), fs, okRunner, clock, &fakeMailer{}, Config{
		LoopDirectory: dir,
		EnginePath:    "/usr/local/bin/snapback",
	}, WithMetrics(metrics))

	trigger := filepath.Join(dir, "db1-example-com")
	require.NoError(t, os.WriteFile(trigger, nil, 0o644))
	_, err := loop.PollOnce(context.Background(), []string{"db1-example-com"})
	require.NoError(t, err)
	require.Equal(t, []string{"db1-example-com"}, metrics.ran)
	require.Empty(t, metrics.failed)

	failRunner := &fakeRunner{exitCode: 1}
	loop2 := New(slog.Default(), fs, failRunner, clock, &fakeMailer{}, Config{
		LoopDirectory: dir,
		EnginePath:    "/usr/local/bin/snapback",
	}, WithMetrics(metrics))
	trigger2 := filepath.Join(dir, "db2-example-com")
	require.NoError(t, os.WriteFile(trigger2, nil, 0o644))
	_, err = loop2.PollOnce(context.Background(), []string{"db2-example-com"})
	require.NoError(t, err)
	require.Equal(t, []string{"db2-example-com"}, metrics.failed)
}
