package controlfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startWatcher(t *testing.T, path string, opts Options) (*Watcher, <-chan Command) {
	t.Helper()
	applied := make(chan Command, 8)
	opts.Logger = zaptest.NewLogger(t)
	if opts.Debounce == 0 {
		opts.Debounce = 20 * time.Millisecond
	}
	w := NewWatcher(path, func(cmd Command) error {
		applied <- cmd
		return nil
	}, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return w, applied
}

func waitCommand(t *testing.T, applied <-chan Command) Command {
	t.Helper()
	select {
	case cmd := <-applied:
		return cmd
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for control file to apply")
		return Command{}
	}
}

func drain(applied <-chan Command) {
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case <-applied:
		default:
			return
		}
	}
}

func TestWatcherAppliesWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controls.yaml")
	w, applied := startWatcher(t, path, Options{})

	// Let the watch register before the first write.
	require.Eventually(t, func() bool {
		if err := os.WriteFile(path, []byte("preset: overload\n"), 0o644); err != nil {
			return false
		}
		select {
		case cmd := <-applied:
			return cmd.Preset == "overload"
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	drain(applied)

	require.NoError(t, os.WriteFile(path, []byte("precision: 10\n"), 0o644))
	cmd := waitCommand(t, applied)
	require.NotNil(t, cmd.Precision)
	require.Equal(t, 10, *cmd.Precision)
	require.GreaterOrEqual(t, w.Stats().Applied, 2)
}

func TestWatcherLoadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controls.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: depressed\n"), 0o644))

	_, applied := startWatcher(t, path, Options{LoadExisting: true})
	cmd := waitCommand(t, applied)
	require.Equal(t, "depressed", cmd.Mode)
}

func TestWatcherIgnoresOtherFilesAndBadContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controls.yaml")
	w, applied := startWatcher(t, path, Options{})

	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("preset: overload\n"), 0o644)
		_ = os.WriteFile(path, []byte("mode: manic\n"), 0o644)
		return w.Stats().Errors > 0
	}, 3*time.Second, 50*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	select {
	case cmd := <-applied:
		t.Fatalf("unexpected apply: %+v", cmd)
	default:
	}
}
