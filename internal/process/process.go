package process

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	gops "github.com/shirou/gopsutil/v4/process"
)

// Child wraps one running instance of a Spec. The supervisor owns exactly
// one waiter goroutine per running child; everyone else observes exit via
// the channel returned from Wait.
type Child struct {
	mu        sync.Mutex
	spec      Spec
	cmd       *exec.Cmd
	startedAt time.Time
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	exited    chan ExitEvent
}

// ExitEvent carries the outcome of cmd.Wait for one run.
type ExitEvent struct {
	Err  error
	At   time.Time
	Code int
}

// Launch configures and starts the spec's command with mergedEnv. The
// child runs in its own process group so Terminate/Kill can signal the
// whole tree.
func Launch(spec Spec, mergedEnv []string) (*Child, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(mergedEnv) > 0 {
		cmd.Env = mergedEnv
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	c := &Child{spec: spec, exited: make(chan ExitEvent, 1)}
	if spec.Log.Dir != "" || spec.Log.StdoutPath != "" || spec.Log.StderrPath != "" {
		if spec.Log.Dir != "" {
			_ = os.MkdirAll(spec.Log.Dir, 0o750)
		}
		outW, errW, _ := spec.Log.Writers(spec.Name)
		c.outCloser, c.errCloser = outW, errW
		cmd.Stdout, cmd.Stderr = writerOrNull(outW), writerOrNull(errW)
	} else {
		null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		cmd.Stdout = null
		cmd.Stderr = null
	}

	if err := cmd.Start(); err != nil {
		c.closeWriters()
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}
	c.cmd = cmd
	c.startedAt = time.Now()

	go func() {
		err := cmd.Wait()
		c.closeWriters()
		c.exited <- ExitEvent{Err: err, At: time.Now(), Code: exitCode(cmd)}
	}()
	return c, nil
}

func writerOrNull(w io.WriteCloser) io.Writer {
	if w != nil {
		return w
	}
	null, _ := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	return null
}

func exitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}
	return cmd.ProcessState.ExitCode()
}

// Wait returns the channel the waiter goroutine delivers the exit event on.
// It yields exactly one event per Launch.
func (c *Child) Wait() <-chan ExitEvent { return c.exited }

// PID of the running instance.
func (c *Child) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// StartedAt is the launch timestamp.
func (c *Child) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// Alive reports whether the process group still responds to signal 0.
func (c *Child) Alive() bool {
	pid := c.PID()
	if pid == 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// MemoryRSS samples the resident set size of the child in bytes.
func (c *Child) MemoryRSS() (uint64, error) {
	pid := c.PID()
	if pid == 0 {
		return 0, fmt.Errorf("%s: not running", c.spec.Name)
	}
	p, err := gops.NewProcess(int32(pid))
	if err != nil {
		return 0, err
	}
	mi, err := p.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return mi.RSS, nil
}

// Terminate sends SIGTERM to the process group, waits up to grace for the
// exit event, then escalates to SIGKILL. The exit event itself stays in the
// channel for the monitor goroutine to consume.
func (c *Child) Terminate(grace time.Duration) {
	pid := c.PID()
	if pid == 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	t := time.NewTimer(grace)
	defer t.Stop()
	for {
		if !c.Alive() {
			return
		}
		select {
		case <-t.C:
			_ = syscall.Kill(-pid, syscall.SIGKILL)
			return
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// Kill sends SIGKILL to the process group.
func (c *Child) Kill() {
	if pid := c.PID(); pid != 0 {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
}

func (c *Child) closeWriters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outCloser != nil {
		_ = c.outCloser.Close()
		c.outCloser = nil
	}
	if c.errCloser != nil {
		_ = c.errCloser.Close()
		c.errCloser = nil
	}
}
