package usecase

import (
	"context"
	"time"
)

// Dependencies represents all external collaborators needed by the
// core use cases (hexagonal architecture, ports on this side, adapters
// on the other).
type Dependencies struct {
	FileSystem FileSystemPort
	Runner     CommandPort
	Clock      ClockPort
	Mailer     MailPort
	Metrics    MetricsPort
}

// FileSystemPort defines the filesystem operations the engine needs:
// stat for slot mtimes, rename/remove for ring rotation, hard-link
// clone for promotion, and touch for stamping completion time.
type FileSystemPort interface {
	// Stat returns the ModTime of path, or the zero time and ok=false
	// if the path does not exist. Never returns a non-nil error for a
	// missing path (§3: "missing as time zero").
	Stat(ctx context.Context, path string) (modTime time.Time, ok bool, err error)

	// IsDir reports whether path exists and is a directory; exists is
	// false with no error when the path is absent.
	IsDir(ctx context.Context, path string) (isDir bool, exists bool, err error)

	// MkdirAll creates path and any missing parents.
	MkdirAll(ctx context.Context, path string) error

	// RemoveAll recursively removes path. A missing path is not an error.
	RemoveAll(ctx context.Context, path string) error

	// Rename moves oldpath to newpath (used for ring-slot aging and
	// launch-loop trigger/.inprocess/.done transitions).
	Rename(ctx context.Context, oldpath, newpath string) error

	// CloneTree reproduces src at dst such that every regular file in
	// dst shares an inode with its counterpart in src (the hard-link
	// clone contract, §6). src must exist; dst must not.
	CloneTree(ctx context.Context, src, dst string) error

	// Touch sets both atime and mtime of path to now, creating an
	// empty file if it does not exist.
	Touch(ctx context.Context, path string, now time.Time) error

	// ReadDirNames lists the base names of path's immediate entries.
	ReadDirNames(ctx context.Context, path string) ([]string, error)

	// Join joins path elements using the OS separator.
	Join(elem ...string) string
}

// CommandResult captures the outcome of an external process invocation.
type CommandResult struct {
	ExitCode int
	Output   string // combined stdout+stderr
}

// CommandPort abstracts invocation of external processes: the sync
// tool (§6) and, implicitly, anything else modeled as a Command
// (design note §9). Composing over raw shell strings is avoided so
// exclusion patterns never need quoting.
type CommandPort interface {
	Run(ctx context.Context, name string, args []string, stdin string) (CommandResult, error)
}

// ClockPort abstracts wall-clock time so the schedule gate and
// calendar trigger are deterministically testable.
type ClockPort interface {
	Now() time.Time
}

// MailPort sends a run transcript to an administrator via a mail
// submission program that accepts headers+body on stdin (§6).
type MailPort interface {
	Send(ctx context.Context, program string, to string, subject string, body string) error
}

// MetricsPort records counters for the optional Prometheus endpoint
// (SPEC_FULL §11). The engine and the launch loop skip recording when
// their MetricsPort is nil.
type MetricsPort interface {
	JobRan(host, directory string)
	JobSkipped(host, directory string)
	JobFailed(host, directory string)
	BytesTransferred(host string, n int64)
}
