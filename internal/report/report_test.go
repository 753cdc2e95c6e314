package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig stages a minimal defaults/experiments/kpis bundle with no
// declared experiments, so a report run completes without needing a real
// analytics database.
func writeConfig(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "defaults.yaml"), []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "experiments.yaml"), []byte("experiments: []\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kpis.yaml"), []byte("connection: x\nget-users: x\nkpis: {}\n"), 0o644))
}

func TestRunnerPublishesSnapshotOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir)

	runner := NewRunner(dir, 50*time.Millisecond, nil)

	assert.Nil(t, runner.Snapshot())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go runner.Run(ctx)

	require.Eventually(t, func() bool {
		return runner.Snapshot() != nil
	}, 200*time.Millisecond, 5*time.Millisecond)

	snap := runner.Snapshot()
	assert.NotEmpty(t, snap.RunID)
	assert.Empty(t, snap.Results)

	<-ctx.Done()
	runner.Wait()
}

func TestRunnerRearmsAfterEachRun(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir)

	runner := NewRunner(dir, 20*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	go runner.Run(ctx)

	require.Eventually(t, func() bool { return runner.Snapshot() != nil }, 200*time.Millisecond, 5*time.Millisecond)

	first := runner.Snapshot().RunID

	require.Eventually(t, func() bool {
		return runner.Snapshot() != nil && runner.Snapshot().RunID != first
	}, 300*time.Millisecond, 5*time.Millisecond)

	<-ctx.Done()
	runner.Wait()
}
