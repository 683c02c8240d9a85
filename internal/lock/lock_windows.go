//go:build windows

package lock

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

func lockEx(fd *os.File, flags uint32) error {
	var ov windows.Overlapped
	return windows.LockFileEx(windows.Handle(fd.Fd()), flags, 0, 1, 0, &ov)
}

func tryExclusiveLock(fd *os.File) error {
	return lockEx(fd, windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY)
}

func exclusiveLock(fd *os.File) error {
	return lockEx(fd, windows.LOCKFILE_EXCLUSIVE_LOCK)
}

func unlock(fd *os.File) error {
	var ov windows.Overlapped
	return windows.UnlockFileEx(windows.Handle(fd.Fd()), 0, 1, 0, &ov)
}

func isLockHeldError(err error) bool {
	return errors.Is(err, windows.ERROR_LOCK_VIOLATION)
}
