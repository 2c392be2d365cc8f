package diagnostics

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status classifies the outcome of a single dependency check.
type Status string

const (
	StatusOK            Status = "OK"
	StatusMissing       Status = "MISSING"
	StatusInvalidFormat Status = "INVALID_FORMAT"
	StatusProbeFailed   Status = "PROBE_FAILED"
	StatusProbeTimeout  Status = "PROBE_TIMEOUT"
)

// Rule is the static shape a credential value must satisfy. Rules are data
// supplied by configuration, not code baked per dependency: the deployment
// decides which prefixes and lengths apply to which service.
type Rule struct {
	NonEmpty bool   `json:"non_empty"`
	Prefix   string `json:"prefix,omitempty"`
	MinLen   int    `json:"min_len,omitempty"`
}

// Empty reports whether the rule constrains nothing.
func (r Rule) Empty() bool {
	return !r.NonEmpty && r.Prefix == "" && r.MinLen <= 0
}

// Apply checks value against the rule and names the failing constraint.
func (r Rule) Apply(value string) error {
	if r.NonEmpty && value == "" {
		return errors.New("must be non-empty")
	}
	if r.Prefix != "" && !strings.HasPrefix(value, r.Prefix) {
		return fmt.Errorf("must start with %q", r.Prefix)
	}
	if r.MinLen > 0 && len(value) < r.MinLen {
		return fmt.Errorf("must be at least %d characters", r.MinLen)
	}
	return nil
}

// Probe describes a live reachability call for one dependency: an HTTP(S)
// request to its well-known endpoint, authenticated with the credential
// under CheckSpec.Key as a bearer token.
type Probe struct {
	URL        string `json:"url"`
	Method     string `json:"method,omitempty"` // default GET
	AuthHeader string `json:"auth_header,omitempty"`
	AuthScheme string `json:"auth_scheme,omitempty"` // default "Bearer"
}

// CheckSpec is one required dependency: where its credential lives, the
// static shape it must have, and optionally how to probe the service.
type CheckSpec struct {
	Name  string `json:"name"`
	Key   string `json:"key"` // snapshot key holding the credential/endpoint
	Rule  Rule   `json:"rule"`
	Probe *Probe `json:"probe,omitempty"`
}

// Validate refuses malformed check specs at configuration-load time. A
// check without any validator is a programming error, not a runtime one.
func (c *CheckSpec) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("check requires name")
	}
	if strings.TrimSpace(c.Key) == "" {
		return fmt.Errorf("check %s requires key", c.Name)
	}
	if c.Rule.Empty() {
		return fmt.Errorf("check %s has no validator", c.Name)
	}
	if c.Probe != nil && strings.TrimSpace(c.Probe.URL) == "" {
		return fmt.Errorf("check %s probe requires url", c.Name)
	}
	return nil
}

// CheckResult is the typed outcome of one check. Every failure mode of a
// dependency becomes a result; nothing unwinds past a single check.
type CheckResult struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Evidence  string    `json:"evidence,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Report aggregates one diagnostics run. A fresh Report is produced per
// run; nothing is cached between runs.
type Report struct {
	Results     []CheckResult `json:"results"`
	AllOK       bool          `json:"all_ok"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// redactedPreview returns a fixed-length prefix of a secret for evidence.
// Full values are never logged or reported.
func redactedPreview(v string) string {
	const n = 6
	if len(v) <= n {
		return v[:len(v)/2] + "..."
	}
	return v[:n] + "..."
}
