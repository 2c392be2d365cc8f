package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wardenhq/warden/internal/diagnostics"
	"github.com/wardenhq/warden/internal/metrics"
	"github.com/wardenhq/warden/internal/process"
	"github.com/wardenhq/warden/internal/supervisor"
)

// Router provides embeddable HTTP handlers for the supervisor and
// diagnostics runner.
// Endpoints:
//   POST {basePath}/register     body: Spec JSON
//   POST {basePath}/start        query: name=... (empty name starts all)
//   POST {basePath}/stop         query: name=...&wait=2s (empty name stops all)
//   POST {basePath}/restart      query: name=...&wait=2s (empty name restarts all)
//   GET  {basePath}/status       query: name=... (single) or empty (all)
//   POST {basePath}/diagnostics  runs all checks, returns the report
//   GET  {basePath}/healthz
//   GET  {basePath}/metrics
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	sup      *supervisor.Supervisor
	runner   *diagnostics.Runner
	snapshot func() diagnostics.Snapshot
	basePath string
}

// NewRouter constructs a Router with configurable basePath. runner and
// snapshot may be nil when diagnostics are not configured; the endpoint
// then responds 404.
func NewRouter(sup *supervisor.Supervisor, runner *diagnostics.Runner, snapshot func() diagnostics.Snapshot, basePath string) *Router {
	return &Router{sup: sup, runner: runner, snapshot: snapshot, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/register", r.handleRegister)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/restart", r.handleRestart)
	group.GET("/status", r.handleStatus)
	group.POST("/diagnostics", r.handleDiagnostics)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type startResp struct {
	OK      bool `json:"ok"`
	Started bool `json:"started"`
}

func (r *Router) handleRegister(c *gin.Context) {
	var spec process.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeName(spec.Name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid spec.name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	if !isSafeAbsPath(spec.WorkDir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid work_dir: must be absolute path without traversal"})
		return
	}
	if !isSafeAbsPath(spec.Log.Dir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid log.dir: must be absolute path without traversal"})
		return
	}
	if !isSafeAbsPath(spec.Log.StdoutPath) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid log.stdout_path: must be absolute path without traversal"})
		return
	}
	if !isSafeAbsPath(spec.Log.StderrPath) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid log.stderr_path: must be absolute path without traversal"})
		return
	}
	if err := r.sup.Register(spec); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStart(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		if err := r.sup.StartAll(); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, okResp{OK: true})
		return
	}
	started, err := r.sup.Start(name)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, startResp{OK: true, Started: started})
}

func (r *Router) handleStop(c *gin.Context) {
	name := c.Query("name")
	wait := parseWait(c, 2*time.Second)
	if name == "" {
		if err := r.sup.StopAll(wait); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, okResp{OK: true})
		return
	}
	if err := r.sup.Stop(name, wait); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRestart(c *gin.Context) {
	name := c.Query("name")
	wait := parseWait(c, 2*time.Second)
	if name == "" {
		if err := r.sup.RestartAll(wait); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, okResp{OK: true})
		return
	}
	if err := r.sup.Restart(name, wait); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		writeJSON(c, http.StatusOK, r.sup.StatusAll())
		return
	}
	st, err := r.sup.Status(name)
	if err != nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleDiagnostics(c *gin.Context) {
	if r.runner == nil || r.snapshot == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "diagnostics not configured"})
		return
	}
	rep := r.runner.Run(c.Request.Context(), r.snapshot())
	writeJSON(c, http.StatusOK, rep)
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func parseWait(c *gin.Context, def time.Duration) time.Duration {
	if s := c.Query("wait"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return def
}
