package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/needle-ab/needle/internal/assign"
	"github.com/needle-ab/needle/internal/config"
	"github.com/needle-ab/needle/internal/errs"
)

var errConfigNotLoaded = errors.New("configuration not yet loaded")

// debugAssignment mirrors the original implementation's debug-experiments
// entries: which site-area, experiment, and branch a user landed in.
type debugAssignment struct {
	SiteArea   string `json:"site-area"`
	Experiment string `json:"experiment"`
	Branch     string `json:"branch"`
}

type lookupUserResponse struct {
	UserID           int64             `json:"user-id"`
	DebugExperiments []debugAssignment `json:"debug-experiments"`
	Parameters       map[string]any    `json:"-"`
}

// MarshalJSON flattens Parameters alongside the fixed fields, matching the
// original handler's **experiment_parameters response merge. user-id is
// rendered as a JSON integer, not a string.
func (r lookupUserResponse) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Parameters)+2)
	for k, v := range r.Parameters {
		out[k] = v
	}
	out["user-id"] = r.UserID
	out["debug-experiments"] = r.DebugExperiments
	return json.Marshal(out)
}

// AssignmentAPI serves GET /user: deterministic experiment assignment and
// merged parameter overrides for one user.
type AssignmentAPI struct {
	base
	configSource func() *config.Configuration
	metrics      *Metrics
}

// NewAssignmentAPI constructs an AssignmentAPI reading the live
// configuration from configSource on every request (so a reload is
// observed immediately, without restarting handlers). metrics may be nil.
func NewAssignmentAPI(configSource func() *config.Configuration, metrics *Metrics, logger *slog.Logger) *AssignmentAPI {
	return &AssignmentAPI{base: newBase(logger), configSource: configSource, metrics: metrics}
}

func (a *AssignmentAPI) count(outcome string) {
	if a.metrics != nil {
		a.metrics.AssignmentRequests.WithLabelValues(outcome).Inc()
	}
}

func (a *AssignmentAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := a.configSource()
	if cfg == nil {
		a.count("config_not_loaded")
		a.ErrorJSON(w, r, errs.ConfigurationError(errConfigNotLoaded))
		return
	}

	userID := r.URL.Query().Get("user-id")
	if userID == "" {
		a.count("bad_request")
		a.ErrorJSON(w, r, errs.BadRequest("missing required parameter: user-id"))
		return
	}
	userIDNum, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		a.count("bad_request")
		a.ErrorJSON(w, r, errs.BadRequest("user-id must be an integer"))
		return
	}

	signupRaw := r.URL.Query().Get("user-signup-date")
	if signupRaw == "" {
		a.count("bad_request")
		a.ErrorJSON(w, r, errs.BadRequest("missing required parameter: user-signup-date"))
		return
	}
	signupDate, err := parseDate(signupRaw)
	if err != nil {
		a.count("bad_request")
		a.ErrorJSON(w, r, errs.BadRequest("user-signup-date must be a valid date"))
		return
	}

	assignments, err := assign.Assignments(cfg, userID, signupDate, time.Now())
	if err != nil {
		a.count("error")
		a.ErrorJSON(w, r, errs.Wrap(errs.Internal, "ASSIGNMENT_ERROR", err))
		return
	}
	a.count("ok")

	debug := make([]debugAssignment, 0, len(assignments))
	for _, asn := range assignments {
		debug = append(debug, debugAssignment{
			SiteArea:   asn.Experiment.SiteArea,
			Experiment: asn.Experiment.Name,
			Branch:     asn.Branch.Name,
		})
	}

	resp := lookupUserResponse{
		UserID:           userIDNum,
		DebugExperiments: debug,
		Parameters:       assign.Merge(cfg.Defaults, assignments),
	}

	SetCacheHeaders(w, 60*time.Second)
	w.Header().Set("Link", "</>; rel=index")
	a.JSON(w, resp, http.StatusOK)
}

// parseDate accepts RFC3339 timestamps and bare "2006-01-02" dates, the
// two shapes the original dateutil.parser.parse call in practice receives.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
