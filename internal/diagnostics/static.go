package diagnostics

import "time"

// Snapshot is the configuration view diagnostics validates: named
// credential/endpoint values sourced from the process environment or an
// equivalent external store.
type Snapshot map[string]string

// ValidateStatic applies each check's rule to the snapshot. Absent keys
// yield MISSING; rule violations yield INVALID_FORMAT naming the failing
// constraint; passing values yield OK with a redacted preview only.
func ValidateStatic(snap Snapshot, checks []CheckSpec) []CheckResult {
	out := make([]CheckResult, 0, len(checks))
	for _, c := range checks {
		now := time.Now()
		v, ok := snap[c.Key]
		if !ok || v == "" {
			// An empty value is indistinguishable from an unset one for
			// every credential shape we gate on.
			out = append(out, CheckResult{Name: c.Name, Status: StatusMissing,
				Evidence: c.Key + " is not set", CheckedAt: now})
			continue
		}
		if err := c.Rule.Apply(v); err != nil {
			out = append(out, CheckResult{Name: c.Name, Status: StatusInvalidFormat,
				Evidence: err.Error(), CheckedAt: now})
			continue
		}
		out = append(out, CheckResult{Name: c.Name, Status: StatusOK,
			Evidence: "value " + redactedPreview(v), CheckedAt: now})
	}
	return out
}
