package process

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/logger"
)

// RestartPolicy bounds how often a crashed process may be restarted.
// MaxRestarts counts failures whose timestamps fall inside Window; the
// failure that pushes the count past MaxRestarts is terminal. MinUptime is
// the run length after which earlier failures are forgiven. RestartDelay is
// waited before every restart attempt.
type RestartPolicy struct {
	MaxRestarts  int           `json:"max_restarts"`
	Window       time.Duration `json:"window"`
	MinUptime    time.Duration `json:"min_uptime"`
	RestartDelay time.Duration `json:"restart_delay"`
}

// Validate rejects policies the supervisor cannot honor.
func (p RestartPolicy) Validate() error {
	if p.MaxRestarts < 0 {
		return errors.New("max_restarts must be >= 0")
	}
	if p.Window < 0 {
		return errors.New("window must be >= 0")
	}
	if p.RestartDelay < 0 {
		return errors.New("restart_delay must be >= 0")
	}
	if p.MinUptime < 0 {
		return errors.New("min_uptime must be >= 0")
	}
	return nil
}

// Spec describes a worker process to be supervised. It is built once at
// configuration load and never mutated afterwards.
type Spec struct {
	Name        string        `json:"name"`
	Command     string        `json:"command"`      // command to start the process (shell)
	WorkDir     string        `json:"work_dir"`     // optional working dir
	Env         []string      `json:"env"`          // optional extra env, "K=V" entries
	MemoryLimit uint64        `json:"memory_limit"` // RSS ceiling in bytes; 0 disables the check
	Policy      RestartPolicy `json:"policy"`
	Log         logger.Config `json:"log"` // per-process stdout/stderr capture
}

// Validate checks the spec at configuration-load time.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("spec requires name")
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("process %s requires command", s.Name)
	}
	if err := s.Policy.Validate(); err != nil {
		return fmt.Errorf("process %s: %w", s.Name, err)
	}
	return nil
}

// BuildCommand constructs an *exec.Cmd for the given spec.Command.
// It avoids invoking a shell when not necessary, and it also respects
// an explicit shell invocation already present in the command string
// (e.g., "sh -c 'echo hi'"), avoiding double-wrapping with another shell.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	// If the command already explicitly uses a shell, honor it without adding another layer.
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		// Always use absolute shell path to avoid PATH dependency when Env is overridden.
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	// Fallback: when metacharacters are present, use /bin/sh -c
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// ok: intentional execution, input is validated and safe
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
// It preserves the substring after "-c " verbatim to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// If after is wrapped in single or double quotes, strip one pair so that
			// we pass the actual script to the shell (the outer quotes would otherwise
			// inhibit parsing/redirection inside the script).
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
