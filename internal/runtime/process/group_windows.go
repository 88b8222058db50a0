//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

const isWindows = true

func configureCmdSysProcAttr(cmd *exec.Cmd) {}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process %d: %w", cmd.Process.Pid, err)
	}
	return nil
}
