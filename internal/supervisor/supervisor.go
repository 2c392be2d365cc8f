package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/wardenhq/warden/internal/env"
	"github.com/wardenhq/warden/internal/history"
	"github.com/wardenhq/warden/internal/metrics"
	"github.com/wardenhq/warden/internal/process"
	"github.com/wardenhq/warden/internal/store"
)

const defaultMemInterval = 500 * time.Millisecond

// Supervisor keeps a fixed set of named processes alive under each spec's
// restart policy. One monitor goroutine runs per live child; the supervisor
// mutex guards the entries map and per-entry bookkeeping only, never an
// exec or signal syscall.
type Supervisor struct {
	mu          sync.RWMutex
	log         *slog.Logger
	envM        *env.Env
	st          store.Store
	sinks       []history.Sink
	memInterval time.Duration
	entries     map[string]*entry
}

// entry is the mutable runtime state for one registered spec. All fields
// are guarded by Supervisor.mu.
type entry struct {
	spec     process.Spec
	state    process.State
	child    *process.Child
	track    *tracker
	restarts int // in-window failure count at last observation
	lastRSS  uint64
	stopReq  bool
	memKill  bool
	gen      uint64 // run generation; stale monitors and timers check it
	timer    *time.Timer
	cancel   context.CancelFunc
	exitErr  string
	stopAt   time.Time
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(s *Supervisor) { s.log = l } }

// WithStore persists lifecycle events.
func WithStore(st store.Store) Option { return func(s *Supervisor) { s.st = st } }

// WithHistorySinks streams lifecycle events to external sinks.
func WithHistorySinks(sinks ...history.Sink) Option {
	return func(s *Supervisor) { s.sinks = append([]history.Sink(nil), sinks...) }
}

// WithMemoryInterval overrides the RSS sampling period.
func WithMemoryInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.memInterval = d
		}
	}
}

func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		log:         slog.Default(),
		envM:        env.New(),
		memInterval: defaultMemInterval,
		entries:     make(map[string]*entry),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetGlobalEnv sets global environment overrides applied to every process.
// kvs must be in the form "KEY=VALUE".
func (s *Supervisor) SetGlobalEnv(kvs []string) {
	for _, kv := range kvs {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				s.envM.Set(kv[:i], kv[i+1:])
				break
			}
		}
	}
}

// Register adds a spec without starting it. Duplicate names are a
// configuration error.
func (s *Supervisor) Register(spec process.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[spec.Name]; ok {
		return fmt.Errorf("process %s already registered", spec.Name)
	}
	s.entries[spec.Name] = &entry{
		spec:  spec,
		state: process.StateStopped,
		track: newTracker(spec.Policy.Window),
	}
	return nil
}

// Start launches a registered process. Calling Start on an already running
// process is a no-op reported as started=false with a nil error.
func (s *Supervisor) Start(name string) (started bool, err error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("unknown process: %s", name)
	}
	switch e.state {
	case process.StateStarting, process.StateRunning, process.StateRestarting:
		s.mu.Unlock()
		return false, nil
	}
	// Explicit Start clears a permanent failure and its exhausted budget.
	if e.state == process.StateFailed {
		e.track.reset()
		e.restarts = 0
	}
	e.stopReq = false
	e.memKill = false
	e.exitErr = ""
	s.transitionLocked(e, process.StateStarting)
	spec := e.spec
	gen := e.gen + 1
	e.gen = gen
	s.mu.Unlock()

	if err := s.launch(e, spec, gen); err != nil {
		return false, err
	}
	return true, nil
}

// launch starts the child outside the lock, then records the run and spawns
// its monitor. Launch failures are routed through the restart policy.
func (s *Supervisor) launch(e *entry, spec process.Spec, gen uint64) error {
	child, err := process.Launch(spec, s.envM.Merge(spec.Env))
	if err != nil {
		s.log.Error("launch failed", "process", spec.Name, "err", err)
		s.mu.Lock()
		s.failureLocked(e, time.Now(), 0, process.StateCrashed, err.Error())
		s.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if e.gen != gen || e.stopReq {
		// Stopped while we were launching; undo.
		if e.stopReq {
			s.transitionLocked(e, process.StateStopped)
		}
		s.mu.Unlock()
		cancel()
		child.Kill()
		return nil
	}
	e.child = child
	e.cancel = cancel
	s.transitionLocked(e, process.StateRunning)
	s.mu.Unlock()

	s.log.Info("process started", "process", spec.Name, "pid", child.PID())
	metrics.IncStart(spec.Name)
	s.recordStart(spec.Name, child)
	go s.monitor(ctx, e, spec, child, gen)
	return nil
}

// monitor owns one run of one child: it consumes the exit event and samples
// RSS against the spec's ceiling. A crash here never serializes with any
// other process's monitor.
func (s *Supervisor) monitor(ctx context.Context, e *entry, spec process.Spec, child *process.Child, gen uint64) {
	ticker := time.NewTicker(s.memInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-child.Wait():
			s.handleExit(e, spec, child, gen, ev)
			return
		case <-ticker.C:
			rss, err := child.MemoryRSS()
			if err != nil {
				continue // exit event will arrive shortly
			}
			s.mu.Lock()
			if e.gen == gen {
				e.lastRSS = rss
			}
			s.mu.Unlock()
			metrics.SetMemoryRSS(spec.Name, rss)
			if spec.MemoryLimit > 0 && rss > spec.MemoryLimit {
				s.mu.Lock()
				breach := e.gen == gen && !e.memKill && !e.stopReq
				if breach {
					e.memKill = true
				}
				s.mu.Unlock()
				if breach {
					s.log.Warn("memory ceiling exceeded",
						"process", spec.Name, "rss", rss, "limit", spec.MemoryLimit)
					metrics.IncMemoryExceeded(spec.Name)
					child.Kill()
				}
			}
		}
	}
}

// handleExit classifies one exit event and applies the restart policy.
func (s *Supervisor) handleExit(e *entry, spec process.Spec, child *process.Child, gen uint64, ev process.ExitEvent) {
	uptime := ev.At.Sub(child.StartedAt())
	exitMsg := ""
	if ev.Err != nil {
		exitMsg = ev.Err.Error()
	}
	metrics.IncStop(spec.Name)
	s.recordStop(spec.Name, child, ev)

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.gen != gen {
		return // a newer run owns this entry
	}
	e.lastRSS = 0
	e.stopAt = ev.At
	e.exitErr = exitMsg

	if e.stopReq {
		s.transitionLocked(e, process.StateStopped)
		e.child = nil
		return
	}
	cause := process.StateCrashed
	if e.memKill {
		cause = process.StateMemExceeded
		e.memKill = false
	}
	s.log.Warn("process down", "process", spec.Name,
		"cause", string(cause), "uptime", uptime.String(), "exit", exitMsg)
	s.failureLocked(e, ev.At, uptime, cause, exitMsg)
}

// failureLocked runs the crash-budget bookkeeping. Caller holds s.mu.
// A run that sustained the policy's minimum uptime forgives earlier
// failures; timestamps outside the window are always pruned before the
// current failure is counted.
func (s *Supervisor) failureLocked(e *entry, now time.Time, uptime time.Duration, cause process.State, exitMsg string) {
	s.transitionLocked(e, cause)
	pol := e.spec.Policy
	if pol.MinUptime > 0 && uptime >= pol.MinUptime {
		e.track.reset()
	}
	count := e.track.observe(now)
	e.restarts = count
	if count > pol.MaxRestarts {
		s.log.Error("restart budget exhausted",
			"process", e.spec.Name, "failures_in_window", count, "max_restarts", pol.MaxRestarts)
		s.transitionLocked(e, process.StateFailed)
		e.child = nil
		return
	}
	s.transitionLocked(e, process.StateRestarting)
	e.child = nil
	spec := e.spec
	gen := e.gen + 1
	e.gen = gen
	e.timer = time.AfterFunc(pol.RestartDelay, func() {
		s.mu.Lock()
		stale := e.gen != gen || e.stopReq
		if !stale {
			s.transitionLocked(e, process.StateStarting)
		}
		s.mu.Unlock()
		if stale {
			return
		}
		metrics.IncRestart(spec.Name)
		_ = s.launch(e, spec, gen)
	})
}

// Stop requests graceful termination: SIGTERM, a bounded grace period, then
// SIGKILL. Stopping a process that is not running (including one in
// failed_permanently) is a no-op.
func (s *Supervisor) Stop(name string, wait time.Duration) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown process: %s", name)
	}
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	switch e.state {
	case process.StateStopped, process.StateFailed:
		s.mu.Unlock()
		return nil
	case process.StateRestarting, process.StateCrashed, process.StateMemExceeded:
		// Nothing running; cancel the pending restart.
		e.stopReq = true
		e.gen++
		s.transitionLocked(e, process.StateStopped)
		s.mu.Unlock()
		return nil
	}
	e.stopReq = true
	child := e.child
	s.transitionLocked(e, process.StateStopping)
	s.mu.Unlock()

	if child != nil {
		child.Terminate(wait)
		// The monitor finalizes the transition when it reaps the exit.
		deadline := time.Now().Add(wait + 500*time.Millisecond)
		for time.Now().Before(deadline) {
			s.mu.RLock()
			done := e.state == process.StateStopped
			s.mu.RUnlock()
			if done {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	return nil
}

// Restart stops then starts one process.
func (s *Supervisor) Restart(name string, wait time.Duration) error {
	if err := s.Stop(name, wait); err != nil {
		return err
	}
	_, err := s.Start(name)
	return err
}

// StartAll starts every registered process, in name order. The first error
// is returned but the remaining processes are still attempted.
func (s *Supervisor) StartAll() error {
	var firstErr error
	for _, name := range s.names() {
		if _, err := s.Start(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StopAll stops every registered process.
func (s *Supervisor) StopAll(wait time.Duration) error {
	var firstErr error
	for _, name := range s.names() {
		if err := s.Stop(name, wait); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RestartAll restarts every registered process, in name order.
func (s *Supervisor) RestartAll(wait time.Duration) error {
	var firstErr error
	for _, name := range s.names() {
		if err := s.Restart(name, wait); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Status returns a consistent snapshot for one process. Safe to call while
// monitors are active.
func (s *Supervisor) Status(name string) (process.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return process.Status{}, fmt.Errorf("unknown process: %s", name)
	}
	return s.statusLocked(e), nil
}

// StatusAll returns snapshots for every registered process, in name order.
func (s *Supervisor) StatusAll() []process.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for n := range s.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]process.Status, 0, len(names))
	for _, n := range names {
		out = append(out, s.statusLocked(s.entries[n]))
	}
	return out
}

func (s *Supervisor) statusLocked(e *entry) process.Status {
	st := process.Status{
		Name:      e.spec.Name,
		State:     e.state,
		Running:   e.state == process.StateRunning,
		Restarts:  e.track.count(time.Now()),
		MemoryRSS: e.lastRSS,
		ExitErr:   e.exitErr,
		StoppedAt: e.stopAt,
	}
	if e.child != nil {
		st.PID = e.child.PID()
		st.StartedAt = e.child.StartedAt()
		if st.Running {
			st.Uptime = time.Since(st.StartedAt).Round(time.Millisecond).String()
		}
	}
	return st
}

// Shutdown stops all processes and cancels their monitors.
func (s *Supervisor) Shutdown(wait time.Duration) {
	_ = s.StopAll(wait)
	s.mu.Lock()
	for _, e := range s.entries {
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
	}
	s.mu.Unlock()
}

func (s *Supervisor) names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.entries))
	for n := range s.entries {
		names = append(names, n)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// transitionLocked updates state and metrics. Caller holds s.mu.
func (s *Supervisor) transitionLocked(e *entry, to process.State) {
	from := e.state
	if from == to {
		return
	}
	e.state = to
	metrics.RecordStateTransition(e.spec.Name, string(from), string(to))
	metrics.SetCurrentState(e.spec.Name, string(from), false)
	metrics.SetCurrentState(e.spec.Name, string(to), true)
}

func (s *Supervisor) recordStart(name string, child *process.Child) {
	s.mu.RLock()
	st := s.st
	sinks := append([]history.Sink(nil), s.sinks...)
	s.mu.RUnlock()
	rec := store.Record{
		Name:      name,
		PID:       child.PID(),
		StartedAt: child.StartedAt(),
		Running:   true,
	}
	if st != nil {
		if err := st.RecordStart(context.Background(), rec); err != nil {
			s.log.Warn("record start failed", "process", name, "err", err)
		}
	}
	evt := history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Record: rec}
	for _, snk := range sinks {
		_ = snk.Send(context.Background(), evt)
	}
}

func (s *Supervisor) recordStop(name string, child *process.Child, ev process.ExitEvent) {
	s.mu.RLock()
	st := s.st
	sinks := append([]history.Sink(nil), s.sinks...)
	s.mu.RUnlock()
	uniq := store.UniqueKey(child.PID(), child.StartedAt())
	if st != nil {
		if err := st.RecordStop(context.Background(), uniq, ev.At, ev.Err); err != nil {
			s.log.Warn("record stop failed", "process", name, "err", err)
		}
	}
	rec := store.Record{
		Name:      name,
		PID:       child.PID(),
		StartedAt: child.StartedAt(),
		Running:   false,
	}
	rec.SetStoppedAt(ev.At)
	if ev.Err != nil {
		rec.SetExitErr(ev.Err.Error())
	}
	evt := history.Event{Type: history.EventStop, OccurredAt: time.Now().UTC(), Record: rec}
	for _, snk := range sinks {
		_ = snk.Send(context.Background(), evt)
	}
}
