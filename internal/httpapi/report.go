package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/needle-ab/needle/internal/report"
)

// ReportAPI serves GET /experiments: the most recently published snapshot
// of every in-progress experiment's evaluation.
type ReportAPI struct {
	base
	runner *report.Runner
}

// NewReportAPI constructs a ReportAPI reading snapshots from runner.
func NewReportAPI(runner *report.Runner, logger *slog.Logger) *ReportAPI {
	return &ReportAPI{base: newBase(logger), runner: runner}
}

func (a *ReportAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := a.runner.Snapshot()
	if snapshot == nil {
		a.JSON(w, map[string]any{}, http.StatusOK)
		return
	}

	SetCacheHeaders(w, 60*time.Second)
	w.Header().Set("Link", "</>; rel=index")
	a.JSON(w, snapshot.Results, http.StatusOK)
}

// Healthz serves GET /healthz: liveness once the initial configuration
// load and first report cycle attempt have completed.
type Healthz struct {
	runner *report.Runner
}

func NewHealthz(runner *report.Runner) *Healthz {
	return &Healthz{runner: runner}
}

func (h *Healthz) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.runner.Snapshot() == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("starting"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
