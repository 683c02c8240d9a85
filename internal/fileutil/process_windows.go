//go:build windows

package fileutil

import (
	"errors"

	"golang.org/x/sys/windows"
)

// writerGone reports whether the process that owned a temp file has exited.
// Only an invalid PID counts as gone; access errors keep the file.
func writerGone(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return errors.Is(err, windows.ERROR_INVALID_PARAMETER)
	}
	_ = windows.CloseHandle(h)
	return false
}
