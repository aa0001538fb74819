//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

// setProcessGroup puts the child in its own process group when requested.
func setProcessGroup(cmd *exec.Cmd, own bool) {
	if own {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
}

// terminate asks the child (and its group) to exit.
func terminate(cmd *exec.Cmd, group bool) {
	sendSignal(cmd, group, syscall.SIGTERM)
}

// kill stops the child (and its group) unconditionally.
func kill(cmd *exec.Cmd, group bool) {
	sendSignal(cmd, group, syscall.SIGKILL)
}

func sendSignal(cmd *exec.Cmd, group bool, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	if group {
		if err := syscall.Kill(-cmd.Process.Pid, sig); err == nil {
			return
		}
	}
	_ = cmd.Process.Signal(sig)
}

// signaledCode reports 128+N for a child terminated by signal N.
func signaledCode(err *exec.ExitError) (int, bool) {
	status, ok := err.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return 0, false
	}
	return 128 + int(status.Signal()), true
}
