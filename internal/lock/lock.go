package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLocked is returned when the lockfile is already held by another process.
var ErrLocked = errors.New("lock is held by another process")

// Lock represents an acquired process lock backed by an OS file lock.
type Lock struct {
	fd   *os.File
	path string
}

// Info is the JSON written into a held lockfile.
type Info struct {
	PID        int       `json:"pid"`
	Owner      string    `json:"owner,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// HeldError describes the current holder of a contended lock. It unwraps to
// ErrLocked.
type HeldError struct {
	Path   string
	Holder Info
}

func (e *HeldError) Error() string {
	msg := fmt.Sprintf("%s: held by PID %d", ErrLocked, e.Holder.PID)
	if e.Holder.Owner != "" {
		msg += fmt.Sprintf(" (%s)", e.Holder.Owner)
	}
	return msg
}

func (e *HeldError) Unwrap() error { return ErrLocked }

// Acquire opens the lockfile at path and takes an exclusive non-blocking
// lock. On success the file holds our PID, owner label and timestamp. If
// the lock is held, the returned error is a *HeldError naming the holder.
func Acquire(path, owner string) (*Lock, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock directory %s: %w", dir, err)
	}

	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lockfile %s: %w", path, err)
	}

	if err := tryExclusiveLock(fd); err != nil {
		defer fd.Close()
		if isLockHeldError(err) {
			return nil, &HeldError{Path: path, Holder: readHolder(fd)}
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	if err := writeInfo(fd, Info{PID: os.Getpid(), Owner: owner, AcquiredAt: time.Now().UTC()}); err != nil {
		fd.Close()
		return nil, err
	}
	return &Lock{fd: fd, path: path}, nil
}

// AcquireWait retries Acquire every interval until it succeeds, fails for a
// reason other than contention, or ctx is done. On ctx expiry the last
// *HeldError is returned so callers can report the holder.
func AcquireWait(ctx context.Context, path, owner string, interval time.Duration) (*Lock, error) {
	for {
		l, err := Acquire(path, owner)
		if err == nil || !errors.Is(err, ErrLocked) {
			return l, err
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, err
		case <-timer.C:
		}
	}
}

func writeInfo(fd *os.File, info Info) error {
	if err := fd.Truncate(0); err != nil {
		return fmt.Errorf("truncate lockfile: %w", err)
	}
	if _, err := fd.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lockfile: %w", err)
	}
	data, _ := json.Marshal(info)
	if _, err := fd.Write(data); err != nil {
		return fmt.Errorf("write lockfile metadata: %w", err)
	}
	if err := fd.Sync(); err != nil {
		return fmt.Errorf("fsync lockfile: %w", err)
	}
	return nil
}

// Path returns the lockfile path.
func (l *Lock) Path() string { return l.path }

// Release closes the file descriptor, which releases the OS lock. The
// lockfile itself stays so its inode is never swapped under a waiter.
func (l *Lock) Release() error {
	if l == nil || l.fd == nil {
		return nil
	}
	err := l.fd.Close()
	l.fd = nil
	return err
}

// ReadInfo reads the holder metadata from an existing lockfile without
// attempting to acquire the lock.
func ReadInfo(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("read lockfile %s: %w", path, err)
	}
	if len(data) == 0 {
		// possibly mid-write; retry once
		time.Sleep(500 * time.Millisecond)
		if data, err = os.ReadFile(path); err != nil {
			return Info{}, fmt.Errorf("read lockfile %s (retry): %w", path, err)
		}
	}
	if len(data) == 0 {
		return Info{}, fmt.Errorf("lockfile %s is empty", path)
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("parse lockfile %s: %w", path, err)
	}
	return info, nil
}

// readHolder reads the holder from the lockfile fd. An empty file gets one
// retry after 500ms in case the holder has not flushed yet.
func readHolder(fd *os.File) Info {
	read := func() []byte {
		if _, err := fd.Seek(0, 0); err != nil {
			return nil
		}
		buf := make([]byte, 512)
		n, _ := fd.Read(buf)
		return buf[:n]
	}

	data := read()
	if len(data) == 0 {
		time.Sleep(500 * time.Millisecond)
		data = read()
	}

	var info Info
	_ = json.Unmarshal(data, &info)
	return info
}

// Append writes data to the end of the file at path while holding a
// blocking exclusive lock on it, then fsyncs. Concurrent appenders from
// other processes are serialized.
func Append(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	fd, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer fd.Close()

	if err := exclusiveLock(fd); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer unlock(fd)

	if _, err := fd.Write(data); err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}
	if err := fd.Sync(); err != nil {
		return fmt.Errorf("fsync %s: %w", path, err)
	}
	return nil
}
