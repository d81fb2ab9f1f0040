package watcher

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/halyard/halyard/config"
	"github.com/halyard/halyard/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "watcher-test")
}

func TestReloadOnWrite(t *testing.T) {
	path := testutil.WriteConfig(t, `
port = 2022

[users.alice]
password = "hunter2"
`)

	reloads := make(chan *config.Config, 4)
	w, err := New(path, 10*time.Millisecond, quietLogger(), func(cfg *config.Config) {
		reloads <- cfg
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	// Give the watch loop a moment to be scheduled
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`
port = 2022

[users.bob]
password = "new-user"
`), 0600))

	select {
	case cfg := <-reloads:
		_, ok := cfg.Users["bob"]
		require.True(t, ok, "reloaded config should contain bob")
		_, ok = cfg.Users["alice"]
		require.False(t, ok, "alice was removed from the file")
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestBrokenConfigKeepsPrevious(t *testing.T) {
	path := testutil.WriteConfig(t, "port = 2022\n")

	reloads := make(chan *config.Config, 4)
	w, err := New(path, 10*time.Millisecond, quietLogger(), func(cfg *config.Config) {
		reloads <- cfg
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	time.Sleep(50 * time.Millisecond)

	// A config that fails to parse must not reach the callback
	require.NoError(t, os.WriteFile(path, []byte("port = = 99\n"), 0600))

	select {
	case cfg := <-reloads:
		t.Fatalf("unexpected reload with config: %+v", cfg)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestUnrelatedFileIgnored(t *testing.T) {
	path := testutil.WriteConfig(t, "port = 2022\n")

	reloads := make(chan *config.Config, 4)
	w, err := New(path, 10*time.Millisecond, quietLogger(), func(cfg *config.Config) {
		reloads <- cfg
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	time.Sleep(50 * time.Millisecond)

	// Write a sibling file in the watched directory
	sibling := path + ".bak"
	require.NoError(t, os.WriteFile(sibling, []byte("noise"), 0600))

	select {
	case <-reloads:
		t.Fatal("sibling file must not trigger a reload")
	case <-time.After(500 * time.Millisecond):
	}
}
