package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const evidenceLimit = 200

// ProbeLive issues every check's probe concurrently, each bounded by
// timeout. The wall-clock time of a run is the slowest probe (or its
// timeout), never the sum. Results come back keyed by check name; a check
// without a probe is absent from the map.
func ProbeLive(ctx context.Context, client *http.Client, snap Snapshot, checks []CheckSpec, timeout time.Duration) map[string]CheckResult {
	if client == nil {
		client = http.DefaultClient
	}
	results := make(map[string]CheckResult, len(checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range checks {
		if c.Probe == nil {
			continue
		}
		wg.Add(1)
		go func(c CheckSpec) {
			defer wg.Done()
			res := probeOne(ctx, client, snap, c, timeout)
			mu.Lock()
			results[c.Name] = res
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

// probeOne performs one bounded HTTP call. Any failure becomes a typed
// result; a timed-out probe's in-flight request is abandoned, not awaited.
func probeOne(ctx context.Context, client *http.Client, snap Snapshot, c CheckSpec, timeout time.Duration) CheckResult {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := c.Probe.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(pctx, method, c.Probe.URL, nil)
	if err != nil {
		return CheckResult{Name: c.Name, Status: StatusProbeFailed,
			Evidence: err.Error(), CheckedAt: time.Now()}
	}
	if cred := snap[c.Key]; cred != "" {
		header := c.Probe.AuthHeader
		if header == "" {
			header = "Authorization"
		}
		scheme := c.Probe.AuthScheme
		if scheme == "" {
			scheme = "Bearer"
		}
		val := cred
		if scheme != "none" {
			val = scheme + " " + cred
		}
		req.Header.Set(header, val)
	}

	resp, err := client.Do(req)
	if err != nil {
		status := StatusProbeFailed
		if errors.Is(err, context.DeadlineExceeded) || pctx.Err() == context.DeadlineExceeded {
			status = StatusProbeTimeout
		}
		return CheckResult{Name: c.Name, Status: status,
			Evidence: trimEvidence(err.Error()), CheckedAt: time.Now()}
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ev := fmt.Sprintf("status %d", resp.StatusCode)
		if len(body) > 0 {
			ev += ": " + trimEvidence(string(body))
		}
		return CheckResult{Name: c.Name, Status: StatusProbeFailed,
			Evidence: ev, CheckedAt: time.Now()}
	}
	return CheckResult{Name: c.Name, Status: StatusOK,
		Evidence: confirmEvidence(body, resp.StatusCode), CheckedAt: time.Now()}
}

// confirmEvidence distills a small confirming fact from a successful
// response: an item count when the body is a JSON array (directly or under
// a conventional list field), otherwise the status code.
func confirmEvidence(body []byte, status int) string {
	var arr []json.RawMessage
	if err := json.Unmarshal(body, &arr); err == nil {
		return fmt.Sprintf("%d items", len(arr))
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, field := range []string{"items", "data", "results", "models", "channels"} {
			if raw, ok := obj[field]; ok {
				if err := json.Unmarshal(raw, &arr); err == nil {
					return fmt.Sprintf("%d items", len(arr))
				}
			}
		}
	}
	return fmt.Sprintf("status %d", status)
}

func trimEvidence(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > evidenceLimit {
		return s[:evidenceLimit] + "..."
	}
	return s
}
