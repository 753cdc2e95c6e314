package reload

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierLocalReloadOnSighup(t *testing.T) {
	n := New(nil, "needle:reload", nil)
	watcher := n.Watch()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go n.Run(ctx, func() (string, error) { return "fingerprint-1", nil })

	// Give Run a moment to install its signal handler before raising it.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))

	select {
	case change := <-watcher:
		assert.Equal(t, "fingerprint-1", change.Fingerprint)
	case <-time.After(400 * time.Millisecond):
		t.Fatal("timed out waiting for reload notification")
	}
}

func TestNotifierWithoutRedisIsLocalOnly(t *testing.T) {
	n := New(nil, "needle:reload", nil)
	assert.Nil(t, n.redis)
}
