// Package runlog implements the Run Logger & Accounting component
// (spec.md §4.7): error/debug logging, transcript scanning for
// per-client byte totals, charge-file billing records, and the
// end-of-run email decision. The active configuration, debug handle,
// and in-memory transcript the original kept as process-wide globals
// are threaded explicitly through a RunContext value instead (§9).
package runlog

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/snapback/snapback2/internal/usecase"
)

// wroteReadPattern matches the external sync's summary line, e.g.
// "wrote 1234 bytes  read 5678 bytes  123456.78 bytes/sec".
var wroteReadPattern = regexp.MustCompile(`wrote\s+(\d+)\s+bytes\s+read\s+(\d+)\s+bytes`)

// clientLinePattern matches the section marker the engine writes to
// the transcript itself, immediately before invoking the sync for a
// given client.
var clientLinePattern = regexp.MustCompile(`^client\s+(\S+)`)

// RunContext accumulates everything a single engine invocation needs
// to log, independent of any process-wide mutable state.
type RunContext struct {
	RunID       string
	Transcript  []string
	ErrorsLog   []string
	ErrorLogged bool
	Charges     map[string]int64
	currentHost string
}

// NewRunContext creates an empty RunContext for runID.
func NewRunContext(runID string) *RunContext {
	return &RunContext{RunID: runID, Charges: map[string]int64{}}
}

// BeginClient writes the "client <fqdn>" section marker that later
// scanning (ScanTranscript) uses to attribute bytes to the right host.
func (rc *RunContext) BeginClient(host string) {
	rc.currentHost = host
	rc.Append(fmt.Sprintf("client %s", host))
}

// Append records a transcript line (e.g. a chunk of the external
// sync's combined output) in the in-memory run log.
func (rc *RunContext) Append(line string) {
	rc.Transcript = append(rc.Transcript, line)
}

// AppendOutput splits multi-line process output into transcript lines.
func (rc *RunContext) AppendOutput(output string) {
	for _, line := range strings.Split(strings.TrimRight(output, "\n"), "\n") {
		if line == "" {
			continue
		}
		rc.Append(line)
	}
}

// LogError records a job-fatal or config-fatal error both in the
// transcript and in the dedicated error log, and sets the flag that
// forces an end-of-run email (§7: "errors_logged flag").
func (rc *RunContext) LogError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	rc.ErrorsLog = append(rc.ErrorsLog, msg)
	rc.Append("ERROR: " + msg)
	rc.ErrorLogged = true
}

// ScanTranscript walks the accumulated transcript applying the
// "client <fqdn>" / "wrote N bytes read M bytes" extraction rules
// (§4.7) and returns per-client read-byte totals. It is safe to call
// after all jobs have completed, independent of the live BeginClient
// bookkeeping used during the run.
func ScanTranscript(lines []string) map[string]int64 {
	charges := map[string]int64{}
	current := ""
	for _, line := range lines {
		if m := clientLinePattern.FindStringSubmatch(line); m != nil {
			current = m[1]
			continue
		}
		if m := wroteReadPattern.FindStringSubmatch(line); m != nil && current != "" {
			read, err := strconv.ParseInt(m[2], 10, 64)
			if err != nil {
				continue
			}
			charges[current] += read
		}
	}
	return charges
}

// ScanReader reads every line from r and applies ScanTranscript to
// them. All lines are collected in memory before scanning.
func ScanReader(r *bufio.Scanner) map[string]int64 {
	var lines []string
	for r.Scan() {
		lines = append(lines, r.Text())
	}
	return ScanTranscript(lines)
}

// Logger writes the error log, the debug log, and the charge file
// to their configured destinations, and dispatches the end-of-run
// email via usecase.MailPort.
type Logger struct {
	logger      *slog.Logger
	mailer      usecase.MailPort
	sendProgram string
	adminEmail  string
	alwaysEmail bool
	logFile     string
	debugFile   string
	chargeFile  string
	debug       bool
}

// Config configures a Logger.
type Config struct {
	LogFile     string
	DebugFile   string
	ChargeFile  string
	AdminEmail  string
	AlwaysEmail bool
	SendMail    string
	Debug       bool
}

// New creates a Logger.
func New(logger *slog.Logger, mailer usecase.MailPort, cfg Config) *Logger {
	if logger == nil {
		panic("runlog.Logger requires a logger")
	}
	return &Logger{
		logger:      logger,
		mailer:      mailer,
		sendProgram: cfg.SendMail,
		adminEmail:  cfg.AdminEmail,
		alwaysEmail: cfg.AlwaysEmail,
		logFile:     cfg.LogFile,
		debugFile:   cfg.DebugFile,
		chargeFile:  cfg.ChargeFile,
		debug:       cfg.Debug,
	}
}

// Debugf emits a debug-level message only when debug logging is
// enabled: to the debug file when one is configured, or to the process
// logger otherwise (§4.7: "else write to standard error").
func (l *Logger) Debugf(ctx context.Context, format string, args ...any) {
	if !l.debug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.debugFile == "" {
		l.logger.DebugContext(ctx, msg)
		return
	}
	if err := appendLine(l.debugFile, msg); err != nil {
		l.logger.WarnContext(ctx, "failed to append debug log", "file", l.debugFile, "error", err)
	}
}

// Finish writes the run's error log entries, appends charge-file
// billing records, and sends the end-of-run email if warranted,
// producing the final usecase.RunSummary for the CLI layer.
func (l *Logger) Finish(ctx context.Context, rc *RunContext, outcomes []usecase.JobOutcome) (usecase.RunSummary, error) {
	for _, msg := range rc.ErrorsLog {
		if err := appendLine(l.logFile, msg); err != nil {
			l.logger.WarnContext(ctx, "failed to append error log", "file", l.logFile, "error", err)
		}
	}

	charges := ScanTranscript(rc.Transcript)
	if l.chargeFile != "" {
		today := time.Now().Format("20060102")
		for host, bytesRead := range charges {
			if bytesRead == 0 {
				continue
			}
			line := fmt.Sprintf("%s:%s:%d", host, today, bytesRead)
			if err := appendLine(l.chargeFile, line); err != nil {
				l.logger.WarnContext(ctx, "failed to append charge file", "file", l.chargeFile, "error", err)
			}
		}
	}

	summary := usecase.RunSummary{
		Outcomes:     outcomes,
		ErrorsLogged: rc.ErrorLogged,
		Transcript:   rc.Transcript,
		RunID:        rc.RunID,
	}

	if l.shouldEmail(summary) {
		body := strings.Join(rc.Transcript, "\n")
		subject := fmt.Sprintf("snapback run %s", rc.RunID)
		if err := l.mailer.Send(ctx, l.sendProgram, l.adminEmail, subject, body); err != nil {
			l.logger.WarnContext(ctx, "mail failure (non-fatal)", "error", err)
		}
	}

	return summary, nil
}

func (l *Logger) shouldEmail(summary usecase.RunSummary) bool {
	if l.adminEmail == "" || l.mailer == nil {
		return false
	}
	return l.alwaysEmail || summary.ErrorsLogged
}

func appendLine(path, line string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G304 - path is operator-configured
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, line)
	return err
}
