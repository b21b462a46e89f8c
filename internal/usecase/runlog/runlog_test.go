package runlog

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/snapback/snapback2/internal/usecase"
)

type fakeMailer struct {
	sent    bool
	to      string
	subject string
	body    string
}

func (m *fakeMailer) Send(_ context.Context, _, to, subject, body string) error {
	m.sent = true
	m.to = to
	m.subject = subject
	m.body = body
	return nil
}

func TestScanTranscript_ExtractsReadBytesPerClient(t *testing.T) {
	lines := []string{
		"client db1.example.com",
		"some sync chatter",
		"wrote 1024 bytes  read 2048 bytes  500.00 bytes/sec",
		"client db2.example.com",
		"wrote 10 bytes  read 30 bytes  1.00 bytes/sec",
		"wrote 5 bytes  read 70 bytes  1.00 bytes/sec",
	}
	charges := ScanTranscript(lines)
	require.Equal(t, int64(2048), charges["db1.example.com"])
	require.Equal(t, int64(100), charges["db2.example.com"])
}

func TestScanTranscript_IgnoresLinesBeforeAnyClientMarker(t *testing.T) {
	lines := []string{
		"wrote 99 bytes read 99 bytes",
	}
	charges := ScanTranscript(lines)
	require.Empty(t, charges)
}

func TestRunContext_BeginClientAndAppend(t *testing.T) {
	rc := NewRunContext("run-1")
	rc.BeginClient("db1.example.com")
	rc.AppendOutput("wrote 1 bytes read 2 bytes\nsecond line\n")
	require.Equal(t, []string{"client db1.example.com", "wrote 1 bytes read 2 bytes", "second line"}, rc.Transcript)
}

func TestRunContext_LogErrorSetsFlag(t *testing.T) {
	rc := NewRunContext("run-1")
	require.False(t, rc.ErrorLogged)
	rc.LogError("job fatal: %s", "disk full")
	require.True(t, rc.ErrorLogged)
	require.Contains(t, rc.Transcript, "ERROR: job fatal: disk full")
}

func TestLogger_Finish_WritesChargeFileAndEmailsOnError(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "errors.log")
	chargeFile := filepath.Join(dir, "charges")

	mailer := &fakeMailer{}
	logger := New(slog.Default(), mailer, Config{
		LogFile:     logFile,
		ChargeFile:  chargeFile,
		AdminEmail:  "admin@example.com",
		AlwaysEmail: false,
		SendMail:    "/usr/sbin/sendmail -t",
	})

	rc := NewRunContext("run-1")
	rc.BeginClient("db1.example.com")
	rc.Append("wrote 1 bytes  read 4096 bytes")
	rc.LogError("job fatal: missing destination")

	summary, err := logger.Finish(context.Background(), rc, nil)
	require.NoError(t, err)
	require.True(t, summary.ErrorsLogged)

	logged, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.Contains(t, string(logged), "job fatal: missing destination")

	charges, err := os.ReadFile(chargeFile)
	require.NoError(t, err)
	require.Contains(t, string(charges), "db1.example.com:")
	require.Contains(t, string(charges), ":4096")

	require.True(t, mailer.sent)
	require.Equal(t, "admin@example.com", mailer.to)
}

func TestLogger_Finish_NoEmailWhenNoErrorsAndNotAlways(t *testing.T) {
	mailer := &fakeMailer{}
	logger := New(slog.Default(), mailer, Config{AdminEmail: "admin@example.com"})

	rc := NewRunContext("run-1")
	rc.BeginClient("db1.example.com")
	rc.Append("wrote 1 bytes read 1 bytes")

	_, err := logger.Finish(context.Background(), rc, []usecase.JobOutcome{{Host: "db1.example.com"}})
	require.NoError(t, err)
	require.False(t, mailer.sent)
}

func TestLogger_Finish_AlwaysEmailSendsEvenWithoutErrors(t *testing.T) {
	mailer := &fakeMailer{}
	logger := New(slog.Default(), mailer, Config{AdminEmail: "admin@example.com", AlwaysEmail: true})

	rc := NewRunContext("run-1")
	_, err := logger.Finish(context.Background(), rc, nil)
	require.NoError(t, err)
	require.True(t, mailer.sent)
}
