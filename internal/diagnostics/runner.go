package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wardenhq/warden/internal/metrics"
)

const DefaultProbeTimeout = 5 * time.Second

// Runner orchestrates one diagnostics run: static validation first (cheap,
// fully local), live probes only for the checks that passed it. Run never
// fails for a broken dependency; every failure mode is a typed result in
// the Report.
type Runner struct {
	log     *slog.Logger
	client  *http.Client
	checks  []CheckSpec
	timeout time.Duration
}

// NewRunner validates the check specs up front. Malformed specs are a
// configuration error and refuse construction.
func NewRunner(log *slog.Logger, checks []CheckSpec, timeout time.Duration) (*Runner, error) {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	seen := make(map[string]struct{}, len(checks))
	for i := range checks {
		if err := checks[i].Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[checks[i].Name]; dup {
			return nil, fmt.Errorf("duplicate check name %s", checks[i].Name)
		}
		seen[checks[i].Name] = struct{}{}
	}
	return &Runner{
		log:     log,
		client:  &http.Client{}, // per-probe contexts carry the timeout
		checks:  checks,
		timeout: timeout,
	}, nil
}

// Checks returns the configured check specs.
func (r *Runner) Checks() []CheckSpec { return r.checks }

// Run produces a fresh Report. The report's order follows the configured
// check order; the overall flag is true iff every result is OK.
func (r *Runner) Run(ctx context.Context, snap Snapshot) Report {
	started := time.Now()
	static := ValidateStatic(snap, r.checks)

	// Only statically valid credentials are worth probing, but a failed
	// static check still lands in the report rather than being omitted.
	var toProbe []CheckSpec
	for i, c := range r.checks {
		if static[i].Status == StatusOK && c.Probe != nil {
			toProbe = append(toProbe, c)
		}
	}
	probed := ProbeLive(ctx, r.client, snap, toProbe, r.timeout)

	rep := Report{GeneratedAt: started, AllOK: true}
	for i, c := range r.checks {
		res := static[i]
		if pr, ok := probed[c.Name]; ok {
			res = pr
		}
		if res.Status != StatusOK {
			rep.AllOK = false
		}
		metrics.IncCheckResult(c.Name, string(res.Status))
		rep.Results = append(rep.Results, res)
	}
	metrics.ObserveDiagnosticsRun(time.Since(started).Seconds())
	r.log.Info("diagnostics run finished",
		"checks", len(rep.Results), "all_ok", rep.AllOK,
		"elapsed", time.Since(started).Round(time.Millisecond).String())
	return rep
}
