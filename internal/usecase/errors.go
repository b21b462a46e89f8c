package usecase

import "errors"

var (
	// ErrConfigFatal indicates an unrecoverable configuration problem:
	// no config file found, Hourlies < 1, a malformed block, or a bad
	// -p/-P regex. The process must exit non-zero.
	ErrConfigFatal = errors.New("config fatal")

	// ErrJobFatal indicates a single (host, directory) job aborted:
	// missing destination, a non-directory occupying the destination
	// path, or a rename/remove/clone/sync failure. Other jobs continue.
	ErrJobFatal = errors.New("job fatal")

	// ErrSkip indicates the schedule gate determined the job is not
	// due. Not an error: the run is still a success.
	ErrSkip = errors.New("skip: not due")

	// ErrSpuriousTrigger indicates the launch loop found a trigger
	// file whose name contains disallowed characters.
	ErrSpuriousTrigger = errors.New("spurious trigger")

	// ErrInterrupted indicates the run was canceled via signal.
	ErrInterrupted = errors.New("interrupted")

	// ErrMissingDestination indicates destination resolution produced
	// no usable path (§4.2). Wrapped by ErrJobFatal.
	ErrMissingDestination = errors.New("missing destination")
)
