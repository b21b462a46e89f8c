package app

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/snapback/snapback2/internal/adapters/clock"
	"github.com/snapback/snapback2/internal/adapters/filesystem"
	"github.com/snapback/snapback2/internal/adapters/mailer"
	"github.com/snapback/snapback2/internal/adapters/metrics"
	"github.com/snapback/snapback2/internal/adapters/process"
)

func TestNewDefaultDependencies(t *testing.T) {
	deps := NewDefaultDependencies(slog.Default())
	require.NotNil(t, deps)

	require.NotNil(t, deps.FileSystem)
	require.NotNil(t, deps.Runner)
	require.NotNil(t, deps.Clock)
	require.NotNil(t, deps.Mailer)
	require.NotNil(t, deps.Metrics)

	_, ok := deps.FileSystem.(*filesystem.Adapter)
	require.True(t, ok, "expected FileSystem to be filesystem.Adapter")

	_, ok = deps.Runner.(*process.Adapter)
	require.True(t, ok, "expected Runner to be process.Adapter")

	_, ok = deps.Clock.(clock.Adapter)
	require.True(t, ok, "expected Clock to be clock.Adapter")

	_, ok = deps.Mailer.(*mailer.Adapter)
	require.True(t, ok, "expected Mailer to be mailer.Adapter")

	_, ok = deps.Metrics.(*metrics.Adapter)
	require.True(t, ok, "expected Metrics to be metrics.Adapter")
}

func BenchmarkNewDefaultDependencies(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		deps := NewDefaultDependencies(slog.Default())
		if deps == nil {
			b.Fatal("expected dependencies to be created")
		}
	}
}
