//go:build !unix

package process

import "os/exec"

func setProcessGroup(cmd *exec.Cmd, own bool) {}

// terminate has no graceful variant outside unix; the child is killed.
func terminate(cmd *exec.Cmd, group bool) {
	kill(cmd, group)
}

func kill(cmd *exec.Cmd, group bool) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func signaledCode(err *exec.ExitError) (int, bool) {
	return 0, false
}
