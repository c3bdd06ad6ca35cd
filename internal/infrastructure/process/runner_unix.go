//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative pid targets the whole group so rasterizer helpers die too.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
