package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/needle-ab/needle/internal/report"
)

func newTestRunner(t *testing.T) *report.Runner {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "defaults.yaml"), []byte("{}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "experiments.yaml"), []byte("experiments: []\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kpis.yaml"), []byte("connection: x\nget-users: x\nkpis: {}\n"), 0o644))
	return report.NewRunner(dir, 20*time.Millisecond, nil)
}

func TestHealthzUnavailableBeforeFirstRun(t *testing.T) {
	runner := newTestRunner(t)
	handler := NewHealthz(runner)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthzAndReportAPIAfterFirstRun(t *testing.T) {
	runner := newTestRunner(t)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	go runner.Run(ctx)

	require.Eventually(t, func() bool { return runner.Snapshot() != nil }, 200*time.Millisecond, 5*time.Millisecond)

	healthz := NewHealthz(runner)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	healthz.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	reportAPI := NewReportAPI(runner, nil)
	req = httptest.NewRequest(http.MethodGet, "/experiments", nil)
	rec = httptest.NewRecorder()
	reportAPI.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body)

	<-ctx.Done()
	runner.Wait()
}

func TestReportAPIBeforeFirstRunReturnsEmptyObject(t *testing.T) {
	runner := newTestRunner(t)
	reportAPI := NewReportAPI(runner, nil)

	req := httptest.NewRequest(http.MethodGet, "/experiments", nil)
	rec := httptest.NewRecorder()
	reportAPI.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "{}", rec.Body.String())
}
