package diagnostics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestProbeLiveSuccessWithItemCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"m1"},{"id":"m2"}]}`))
	}))
	defer srv.Close()

	checks := []CheckSpec{{
		Name:  "svc",
		Key:   "KEY",
		Rule:  Rule{NonEmpty: true},
		Probe: &Probe{URL: srv.URL},
	}}
	snap := Snapshot{"KEY": "sk-token"}
	res := ProbeLive(context.Background(), srv.Client(), snap, checks, time.Second)
	r, ok := res["svc"]
	if !ok {
		t.Fatal("no result for svc")
	}
	if r.Status != StatusOK {
		t.Fatalf("status: %s evidence: %s", r.Status, r.Evidence)
	}
	if r.Evidence != "2 items" {
		t.Fatalf("evidence: %q", r.Evidence)
	}
}

func TestProbeLiveNon2xxIsProbeFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid key"}`))
	}))
	defer srv.Close()

	checks := []CheckSpec{{
		Name:  "svc",
		Key:   "KEY",
		Rule:  Rule{NonEmpty: true},
		Probe: &Probe{URL: srv.URL},
	}}
	res := ProbeLive(context.Background(), srv.Client(), Snapshot{"KEY": "bad"}, checks, time.Second)
	r := res["svc"]
	if r.Status != StatusProbeFailed {
		t.Fatalf("status: %s", r.Status)
	}
	if !strings.Contains(r.Evidence, "401") || !strings.Contains(r.Evidence, "invalid key") {
		t.Fatalf("evidence: %q", r.Evidence)
	}
}

func TestProbeLiveTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	checks := []CheckSpec{{
		Name:  "slow",
		Key:   "KEY",
		Rule:  Rule{NonEmpty: true},
		Probe: &Probe{URL: srv.URL},
	}}
	start := time.Now()
	res := ProbeLive(context.Background(), srv.Client(), Snapshot{"KEY": "x"}, checks, 50*time.Millisecond)
	elapsed := time.Since(start)
	r := res["slow"]
	if r.Status != StatusProbeTimeout {
		t.Fatalf("status: %s evidence: %s", r.Status, r.Evidence)
	}
	// The run is bounded by the timeout, not the server's response time.
	if elapsed > time.Second {
		t.Fatalf("probe not bounded by timeout: %s", elapsed)
	}
}

func TestProbeLiveUnreachableHostIsProbeFailed(t *testing.T) {
	checks := []CheckSpec{{
		Name:  "down",
		Key:   "KEY",
		Rule:  Rule{NonEmpty: true},
		Probe: &Probe{URL: "http://127.0.0.1:1"},
	}}
	res := ProbeLive(context.Background(), nil, Snapshot{"KEY": "x"}, checks, time.Second)
	if res["down"].Status != StatusProbeFailed {
		t.Fatalf("status: %s", res["down"].Status)
	}
}

func TestProbeLiveRunsConcurrently(t *testing.T) {
	delay := 300 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	var checks []CheckSpec
	for _, n := range []string{"one", "two", "three", "four"} {
		checks = append(checks, CheckSpec{
			Name:  n,
			Key:   "KEY",
			Rule:  Rule{NonEmpty: true},
			Probe: &Probe{URL: srv.URL},
		})
	}
	start := time.Now()
	res := ProbeLive(context.Background(), srv.Client(), Snapshot{"KEY": "x"}, checks, 2*time.Second)
	elapsed := time.Since(start)
	if len(res) != 4 {
		t.Fatalf("results: %d", len(res))
	}
	// Four serialized probes would take 4x the delay.
	if elapsed > 3*delay {
		t.Fatalf("probes serialized: %s", elapsed)
	}
}

func TestProbeCustomHeaderAndScheme(t *testing.T) {
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	checks := []CheckSpec{{
		Name: "raw",
		Key:  "KEY",
		Rule: Rule{NonEmpty: true},
		Probe: &Probe{
			URL:        srv.URL,
			AuthHeader: "X-Api-Key",
			AuthScheme: "none",
		},
	}}
	res := ProbeLive(context.Background(), srv.Client(), Snapshot{"KEY": "raw-secret"}, checks, time.Second)
	if res["raw"].Status != StatusOK {
		t.Fatalf("status: %s", res["raw"].Status)
	}
	if gotHeader != "raw-secret" {
		t.Fatalf("header: %q", gotHeader)
	}
}
