package trigger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcher_ObservesNewFile(t *testing.T) {
	dir := t.TempDir()
	w, err := New(slog.Default(), dir, 20*time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	names := make(chan string, 8)
	go func() { _ = w.Watch(ctx, names) }()

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db1.example.com"), []byte("x"), 0o644))

	select {
	case name := <-names:
		require.Contains(t, name, "db1.example.com")
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("timed out waiting for trigger observation")
	}
}

func TestWatcher_PollingFallbackSeesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "already-there"), []byte("x"), 0o644))

	w := &Watcher{logger: slog.Default(), dir: dir, poll: 20 * time.Millisecond, fallback: true}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	names := make(chan string, 8)
	go func() { _ = w.Watch(ctx, names) }()

	select {
	case name := <-names:
		require.Equal(t, "already-there", name)
	case <-time.After(400 * time.Millisecond):
		t.Fatal("polling fallback did not observe existing file")
	}
}
