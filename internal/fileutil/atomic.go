package fileutil

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// ErrExists is returned by CreateJSON when the target is already present.
var ErrExists = errors.New("file already exists")

// orphanAge is how old a temp file must be before it is swept regardless of
// whether its owner is still alive.
const orphanAge = 24 * time.Hour

// TempFileName generates a temp file name: <filename>.tmp.<pid>.<random>
func TempFileName(path string) string {
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("%s.tmp.%d.%s", path, os.Getpid(), hex.EncodeToString(b))
}

// writeTemp writes data to a fresh temp file beside path and fsyncs it.
// The caller owns the returned temp file; on error nothing is left behind.
func writeTemp(path string, data []byte, perm os.FileMode) (tmp string, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("prepare %s: %w", filepath.Dir(path), err)
	}

	tmp = TempFileName(path)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return "", fmt.Errorf("open temp for %s: %w", filepath.Base(path), err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
			tmp = ""
		}
	}()

	_, werr := f.Write(data)
	if werr == nil {
		werr = f.Sync()
	}
	cerr := f.Close()
	switch {
	case werr != nil:
		return tmp, fmt.Errorf("write temp for %s: %w", filepath.Base(path), werr)
	case cerr != nil:
		return tmp, fmt.Errorf("close temp for %s: %w", filepath.Base(path), cerr)
	}
	return tmp, nil
}

// AtomicWrite replaces path with data using temp+rename, so readers see
// either the old or the new content. Used for session snapshots, results
// and the config file.
func AtomicWrite(path string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	syncParent(path)
	return nil
}

// AtomicCreate creates path only if it does not exist yet, using
// temp+hardlink. Returns (true, nil) if created, (false, nil) if another
// writer got there first.
func AtomicCreate(path string, data []byte, perm os.FileMode) (bool, error) {
	tmp, err := writeTemp(path, data, perm)
	if err != nil {
		return false, err
	}

	linkErr := os.Link(tmp, path)
	os.Remove(tmp)
	switch {
	case linkErr == nil:
	case errors.Is(linkErr, fs.ErrExist):
		return false, nil
	case isLinkUnsupported(linkErr):
		return false, fmt.Errorf("create %s: filesystem does not support hardlinks. Move ~/.jml-tasks to a local filesystem (ext4, APFS, NTFS)", filepath.Base(path))
	default:
		return false, fmt.Errorf("link %s: %w", filepath.Base(path), linkErr)
	}
	syncParent(path)
	return true, nil
}

// WriteJSON atomically replaces path with the indented JSON encoding of v.
func WriteJSON(path string, v any) error {
	data, err := marshalJSON(v)
	if err != nil {
		return err
	}
	return AtomicWrite(path, data, 0644)
}

// CreateJSON is WriteJSON with create-once semantics. It returns ErrExists
// when path is already taken.
func CreateJSON(path string, v any) error {
	data, err := marshalJSON(v)
	if err != nil {
		return err
	}
	created, err := AtomicCreate(path, data, 0644)
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	return nil
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return append(data, '\n'), nil
}

// syncParent fsyncs the directory holding path so the new entry is durable.
// Windows has no directory fsync.
func syncParent(path string) {
	if runtime.GOOS == "windows" {
		return
	}
	if d, err := os.Open(filepath.Dir(path)); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
}

func isLinkUnsupported(err error) bool {
	msg := err.Error()
	for _, hint := range []string{"not supported", "not permitted"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// CleanOrphanTemps sweeps temp files left behind in dirs by interrupted
// writes. A temp file is removed when its owner PID is dead or, failing
// that, when it is older than 24h. Missing directories are skipped.
func CleanOrphanTemps(dirs []string) (int, error) {
	cleaned := 0
	now := time.Now()

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return cleaned, fmt.Errorf("scan %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() || !strings.Contains(entry.Name(), ".tmp.") || !orphaned(entry, now) {
				continue
			}
			if os.Remove(filepath.Join(dir, entry.Name())) == nil {
				cleaned++
			}
		}
	}
	return cleaned, nil
}

func orphaned(entry os.DirEntry, now time.Time) bool {
	if pid := extractPID(entry.Name()); pid > 0 && writerGone(pid) {
		return true
	}
	info, err := entry.Info()
	if err != nil {
		return false
	}
	return now.Sub(info.ModTime()) > orphanAge
}

// extractPID reads the owner PID from <base>.tmp.<pid>.<random>.
func extractPID(name string) int {
	idx := strings.Index(name, ".tmp.")
	if idx < 0 {
		return 0
	}
	pidPart, _, _ := strings.Cut(name[idx+len(".tmp."):], ".")
	if pid, err := strconv.Atoi(pidPart); err == nil {
		return pid
	}
	return 0
}
