package diagnostics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewRunnerRejectsBadSpecs(t *testing.T) {
	if _, err := NewRunner(nil, []CheckSpec{{Name: "x", Key: "K"}}, 0); err == nil {
		t.Fatal("check without validator accepted")
	}
	dup := []CheckSpec{
		{Name: "x", Key: "A", Rule: Rule{NonEmpty: true}},
		{Name: "x", Key: "B", Rule: Rule{NonEmpty: true}},
	}
	if _, err := NewRunner(nil, dup, 0); err == nil {
		t.Fatal("duplicate check name accepted")
	}
}

func TestRunMergesStaticAndProbeInConfiguredOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["a","b","c"]`))
	}))
	defer srv.Close()

	checks := []CheckSpec{
		{Name: "missing", Key: "ABSENT", Rule: Rule{NonEmpty: true}},
		{Name: "probed", Key: "TOKEN", Rule: Rule{Prefix: "sk-"}, Probe: &Probe{URL: srv.URL}},
		{Name: "static-only", Key: "PLAIN", Rule: Rule{MinLen: 3}},
	}
	r, err := NewRunner(nil, checks, time.Second)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	rep := r.Run(context.Background(), Snapshot{"TOKEN": "sk-abcdef", "PLAIN": "abcdef"})

	if len(rep.Results) != 3 {
		t.Fatalf("results: %d", len(rep.Results))
	}
	for i, want := range []string{"missing", "probed", "static-only"} {
		if rep.Results[i].Name != want {
			t.Fatalf("order at %d: got %s want %s", i, rep.Results[i].Name, want)
		}
	}
	if rep.Results[0].Status != StatusMissing {
		t.Fatalf("missing: %s", rep.Results[0].Status)
	}
	// The probe result supersedes the static OK for probed checks.
	if rep.Results[1].Status != StatusOK || rep.Results[1].Evidence != "3 items" {
		t.Fatalf("probed: %+v", rep.Results[1])
	}
	if rep.Results[2].Status != StatusOK {
		t.Fatalf("static-only: %s", rep.Results[2].Status)
	}
	if rep.AllOK {
		t.Fatal("all_ok must be false with a missing credential")
	}
}

func TestRunSkipsProbeWhenStaticFails(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	checks := []CheckSpec{
		{Name: "bad-shape", Key: "K", Rule: Rule{Prefix: "sk-"}, Probe: &Probe{URL: srv.URL}},
	}
	r, err := NewRunner(nil, checks, time.Second)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	rep := r.Run(context.Background(), Snapshot{"K": "wrong"})
	if hits != 0 {
		t.Fatalf("probe fired for statically invalid credential: %d hits", hits)
	}
	if rep.Results[0].Status != StatusInvalidFormat {
		t.Fatalf("status: %s", rep.Results[0].Status)
	}
}

func TestRunAllOKWhenEverythingPasses(t *testing.T) {
	checks := []CheckSpec{
		{Name: "a", Key: "A", Rule: Rule{NonEmpty: true}},
		{Name: "b", Key: "B", Rule: Rule{MinLen: 2}},
	}
	r, err := NewRunner(nil, checks, time.Second)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	rep := r.Run(context.Background(), Snapshot{"A": "x", "B": "yy"})
	if !rep.AllOK {
		t.Fatalf("all_ok: %+v", rep.Results)
	}
	if rep.GeneratedAt.IsZero() {
		t.Fatal("generated_at not set")
	}
}

func TestRunIsBoundedBySlowestProbe(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
	}))
	defer slow.Close()

	checks := []CheckSpec{
		{Name: "hang", Key: "K", Rule: Rule{NonEmpty: true}, Probe: &Probe{URL: slow.URL}},
	}
	r, err := NewRunner(nil, checks, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	start := time.Now()
	rep := r.Run(context.Background(), Snapshot{"K": "x"})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("run not bounded: %s", elapsed)
	}
	if rep.Results[0].Status != StatusProbeTimeout {
		t.Fatalf("status: %s", rep.Results[0].Status)
	}
}
