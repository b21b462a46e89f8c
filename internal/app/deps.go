// Package app wires together the concrete adapters behind
// usecase.Dependencies, mirroring the hexagonal composition root the
// teacher's cmd/app package used.
package app

import (
	"log/slog"

	"github.com/snapback/snapback2/internal/adapters/clock"
	"github.com/snapback/snapback2/internal/adapters/filesystem"
	"github.com/snapback/snapback2/internal/adapters/mailer"
	"github.com/snapback/snapback2/internal/adapters/metrics"
	"github.com/snapback/snapback2/internal/adapters/process"
	"github.com/snapback/snapback2/internal/usecase"
)

// NewDefaultDependencies creates usecase.Dependencies wired to real
// adapters: the filesystem, a subprocess runner, the system clock,
// a sendmail-style mailer, and a Prometheus metrics collector.
func NewDefaultDependencies(logger *slog.Logger) *usecase.Dependencies {
	if logger == nil {
		panic("default dependencies require logger")
	}
	fsAdapter := filesystem.New(logger)
	processAdapter := process.New(logger)
	clockAdapter := clock.New()
	mailerAdapter := mailer.New(logger, processAdapter)
	metricsAdapter := metrics.New(logger)

	return &usecase.Dependencies{
		FileSystem: fsAdapter,
		Runner:     processAdapter,
		Clock:      clockAdapter,
		Mailer:     mailerAdapter,
		Metrics:    metricsAdapter,
	}
}
