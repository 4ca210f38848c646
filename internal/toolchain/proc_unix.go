//go:build unix

package toolchain

import (
	"os/exec"
	"syscall"
)

// configureProcessGroup puts the tool in its own process group so that a
// timeout kills the compiler driver together with cc1/as children.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
