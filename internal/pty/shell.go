package pty

import (
	"os"
	"os/exec"
	"syscall"
)

// Spawn starts shellPath as a new session leader with slave as its
// controlling terminal, duplicated over stdin, stdout, and stderr — the Go
// equivalent of pty_exec_bash's setsid → open slave → dup2 ×3 → exec
// sequence, expressed through os/exec's SysProcAttr instead of a literal
// fork. The caller owns slave and must close its own copy once Start
// returns; the child keeps the fd via ExtraFiles.
func Spawn(shellPath string, slave *os.File, extraEnv []string) (*exec.Cmd, error) {
	cmd := exec.Command(shellPath)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.Env = append(os.Environ(), extraEnv...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    3, // fd index of slave in the child; see ExtraFiles below
	}
	cmd.ExtraFiles = []*os.File{slave}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}
