// Package launcher starts managed service processes detached from obsctl's
// own lifetime. Children get the orchestrator's environment plus a
// per-service overlay (the orchestrator's environment itself is never
// mutated), write their output to a per-service log file, and survive obsctl
// exiting: this tool bootstraps the stack, it does not babysit it.
package launcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"obsctl/pkg/logging"
)

// Spec describes one process launch.
type Spec struct {
	// Name is the service name, used for logging.
	Name string

	// Path is the resolved executable path.
	Path string

	// Args is the argument list (without the executable itself).
	Args []string

	// Env is the environment overlay applied to the child only.
	Env map[string]string

	// WorkDir is the child's working directory. Created if missing.
	WorkDir string

	// LogPath receives the child's combined stdout/stderr. Empty discards
	// output.
	LogPath string
}

// Handle is the opaque record of a launched process.
type Handle struct {
	PID int
}

// Launcher starts service processes.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Handle, error)
}

// ExecLauncher is the production Launcher backed by os/exec.
type ExecLauncher struct{}

// NewExecLauncher returns a Launcher backed by os/exec.
func NewExecLauncher() *ExecLauncher {
	return &ExecLauncher{}
}

// Launch starts the process described by spec in its own session so it
// outlives obsctl, and releases the process handle immediately: the launcher
// never waits on or kills its children. The context only gates the launch
// itself; cancellation after start does not terminate the child.
func (l *ExecLauncher) Launch(ctx context.Context, spec Spec) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return Handle{}, err
	}

	if spec.WorkDir != "" {
		if err := os.MkdirAll(spec.WorkDir, 0o755); err != nil {
			return Handle{}, fmt.Errorf("failed to create work directory for %s: %w", spec.Name, err)
		}
	}

	// Deliberately not exec.CommandContext: the child must not die with the
	// orchestrator's context.
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.WorkDir
	cmd.Env = overlayEnviron(spec.Env)
	detach(cmd)

	if spec.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0o755); err != nil {
			return Handle{}, fmt.Errorf("failed to create log directory for %s: %w", spec.Name, err)
		}
		logFile, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return Handle{}, fmt.Errorf("failed to open log file for %s: %w", spec.Name, err)
		}
		defer logFile.Close()
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return Handle{}, fmt.Errorf("failed to start %s (%s): %w", spec.Name, spec.Path, err)
	}

	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		logging.Warn("Launcher", "Failed to release process handle for %s (pid %d): %v", spec.Name, pid, err)
	}

	logging.Info("Launcher", "Started %s (pid %d): %s", spec.Name, pid, spec.Path)
	return Handle{PID: pid}, nil
}

// overlayEnviron combines the current environment with the overlay. Overlay
// keys are appended last in sorted order, so they win over inherited values.
func overlayEnviron(overlay map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(overlay))
	for k := range overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overlay[k])
	}
	return env
}
