//go:build unix

package camera

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// killProcessGroup は子プロセスを新しいプロセスグループで起動し、
// キャンセル時にグループ全体へSIGKILLを送るようにする
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
}
