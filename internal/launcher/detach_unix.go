//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own session so it is not delivered the
// terminal's SIGINT and keeps running after obsctl exits.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
