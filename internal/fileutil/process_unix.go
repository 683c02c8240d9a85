//go:build !windows

package fileutil

import (
	"errors"
	"syscall"
)

// writerGone reports whether the process that owned a temp file has exited.
// Signal 0 probes without delivering anything; EPERM means it still runs
// under another user.
func writerGone(pid int) bool {
	return errors.Is(syscall.Kill(pid, 0), syscall.ESRCH)
}
