//go:build !windows

package agent

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/Iron-Ham/consensus/internal/errors"
)

// killProcessGroup starts the agent in its own process group and kills the
// whole group on cancellation, so wrapper scripts do not leave children
// running past the deadline.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
}
