package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/diagnostics"
	"github.com/wardenhq/warden/internal/process"
	"github.com/wardenhq/warden/internal/supervisor"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

func setupRouter(t *testing.T, base string) (http.Handler, *supervisor.Supervisor) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sup := supervisor.New()
	checks := []diagnostics.CheckSpec{
		{Name: "token", Key: "TOKEN", Rule: diagnostics.Rule{NonEmpty: true, MinLen: 4}},
	}
	runner, err := diagnostics.NewRunner(nil, checks, time.Second)
	if err != nil {
		t.Fatalf("runner: %v", err)
	}
	snapshot := func() diagnostics.Snapshot { return diagnostics.Snapshot{"TOKEN": "abcd1234"} }
	r := NewRouter(sup, runner, snapshot, base)
	return r.Handler(), sup
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegisterMissingName(t *testing.T) {
	h, _ := setupRouter(t, "/abc")
	spec := process.Spec{Command: "/bin/true"}
	rec := doReq(t, h, http.MethodPost, "/abc/register", spec)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRegisterRejectsUnsafeName(t *testing.T) {
	h, _ := setupRouter(t, "")
	spec := process.Spec{Name: "../evil", Command: "/bin/true"}
	rec := doReq(t, h, http.MethodPost, "/register", spec)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterRejectsRelativeWorkDir(t *testing.T) {
	h, _ := setupRouter(t, "")
	spec := process.Spec{Name: "w", Command: "/bin/true", WorkDir: "relative/dir"}
	rec := doReq(t, h, http.MethodPost, "/register", spec)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartWithoutNameStartsAll(t *testing.T) {
	// No processes registered, so start-all succeeds trivially.
	h, _ := setupRouter(t, "")
	rec := doReq(t, h, http.MethodPost, "/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartUnknownProcess(t *testing.T) {
	h, _ := setupRouter(t, "")
	rec := doReq(t, h, http.MethodPost, "/start?name=ghost", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStatusUnknownIs404(t *testing.T) {
	h, _ := setupRouter(t, "")
	rec := doReq(t, h, http.MethodGet, "/status?name=ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRegisterStartStatusStopFlow(t *testing.T) {
	requireUnix(t)
	h, _ := setupRouter(t, "/api")
	spec := process.Spec{Name: "p1", Command: "sleep 2"}
	if rec := doReq(t, h, http.MethodPost, "/api/register", spec); rec.Code != http.StatusOK {
		t.Fatalf("register: %d: %s", rec.Code, rec.Body.String())
	}
	rec := doReq(t, h, http.MethodPost, "/api/start?name=p1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: %d: %s", rec.Code, rec.Body.String())
	}
	var sr struct {
		Started bool `json:"started"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sr); err != nil || !sr.Started {
		t.Fatalf("start response: %s err=%v", rec.Body.String(), err)
	}

	rec = doReq(t, h, http.MethodGet, "/api/status?name=p1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var st process.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Name != "p1" {
		t.Fatalf("status name: %q", st.Name)
	}

	rec = doReq(t, h, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status all: %d", rec.Code)
	}
	var all []process.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil || len(all) != 1 {
		t.Fatalf("status all: %s err=%v", rec.Body.String(), err)
	}

	if rec := doReq(t, h, http.MethodPost, "/api/stop?name=p1&wait=1s", nil); rec.Code != http.StatusOK {
		t.Fatalf("stop: %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDiagnosticsEndpointReturnsReport(t *testing.T) {
	h, _ := setupRouter(t, "")
	rec := doReq(t, h, http.MethodPost, "/diagnostics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("diagnostics: %d: %s", rec.Code, rec.Body.String())
	}
	var rep diagnostics.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !rep.AllOK || len(rep.Results) != 1 {
		t.Fatalf("report: %+v", rep)
	}
}

func TestDiagnosticsNotConfiguredIs404(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(supervisor.New(), nil, nil, "")
	rec := doReq(t, r.Handler(), http.MethodPost, "/diagnostics", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h, _ := setupRouter(t, "")
	rec := doReq(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := setupRouter(t, "")
	rec := doReq(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
}
