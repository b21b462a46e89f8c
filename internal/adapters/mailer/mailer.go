// Package mailer implements usecase.MailPort by invoking a mail
// submission program that accepts headers and body on stdin (spec.md
// §6), the same "Command abstraction" style as internal/adapters/process.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/snapback/snapback2/internal/usecase"
)

// Adapter implements usecase.MailPort using a subprocess.
type Adapter struct {
	logger *slog.Logger
	runner usecase.CommandPort
}

// New creates a new mailer adapter over runner.
func New(logger *slog.Logger, runner usecase.CommandPort) *Adapter {
	if logger == nil {
		panic("mailer adapter requires logger")
	}
	if runner == nil {
		panic("mailer adapter requires a command runner")
	}
	return &Adapter{logger: logger, runner: runner}
}

// Send runs program (e.g. "/usr/sbin/sendmail -t") feeding it an
// RFC-5322-ish message with To/Subject headers and body on stdin.
func (a *Adapter) Send(ctx context.Context, program, to, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("mailer: recipient is empty")
	}
	fields := strings.Fields(program)
	if len(fields) == 0 {
		return fmt.Errorf("mailer: submission program is empty")
	}
	name, args := fields[0], fields[1:]

	message := fmt.Sprintf("To: %s\nSubject: %s\n\n%s", to, subject, body)
	result, err := a.runner.Run(ctx, name, args, message)
	if err != nil {
		return fmt.Errorf("run mail submission program: %w", err)
	}
	if result.ExitCode != 0 {
		a.logger.WarnContext(ctx, "mail submission exited non-zero", "exit_code", result.ExitCode, "output", result.Output)
		return fmt.Errorf("mail submission program exited %d: %s", result.ExitCode, result.Output)
	}
	return nil
}
