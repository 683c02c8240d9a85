package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// TempFileName
// ---------------------------------------------------------------------------

func TestTempFileName_Format(t *testing.T) {
	path := "/some/dir/sess.json"
	name := TempFileName(path)

	re := regexp.MustCompile(`^/some/dir/sess\.json\.tmp\.\d+\.[0-9a-f]{8}$`)
	if !re.MatchString(name) {
		t.Fatalf("TempFileName(%q) = %q; does not match expected pattern", path, name)
	}
	if !strings.Contains(name, fmt.Sprintf(".tmp.%d.", os.Getpid())) {
		t.Errorf("TempFileName does not contain current PID (%d): %s", os.Getpid(), name)
	}
	if TempFileName(path) == name {
		t.Error("two calls returned the same name")
	}
}

// ---------------------------------------------------------------------------
// AtomicWrite
// ---------------------------------------------------------------------------

func TestAtomicWrite_WritesAndOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions", "a.json")

	if err := AtomicWrite(path, []byte("first"), 0644); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}
	if err := AtomicWrite(path, []byte("second"), 0644); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("content = %q; want second", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestAtomicWrite_ParentIsFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "sessions")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(filepath.Join(blocker, "a.json"), []byte("x"), 0644); err == nil {
		t.Fatal("expected error when parent is a regular file")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("dir has %d entries; want only the blocker", len(entries))
	}
}

// ---------------------------------------------------------------------------
// AtomicCreate / CreateJSON / WriteJSON
// ---------------------------------------------------------------------------

func TestAtomicCreate_OnlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sess.json")

	created, err := AtomicCreate(path, []byte("original"), 0644)
	if err != nil {
		t.Fatalf("AtomicCreate: %v", err)
	}
	if !created {
		t.Fatal("first AtomicCreate should return true")
	}

	created, err = AtomicCreate(path, []byte("intruder"), 0644)
	if err != nil {
		t.Fatalf("AtomicCreate (second): %v", err)
	}
	if created {
		t.Error("second AtomicCreate should return false")
	}

	got, _ := os.ReadFile(path)
	if string(got) != "original" {
		t.Errorf("content = %q; want original", got)
	}
}

func TestCreateJSON_ExistsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	v := map[string]string{"id": "s"}

	if err := CreateJSON(path, v); err != nil {
		t.Fatalf("CreateJSON: %v", err)
	}
	err := CreateJSON(path, v)
	if !errors.Is(err, ErrExists) {
		t.Fatalf("second CreateJSON err = %v; want ErrExists", err)
	}

	if err := WriteJSON(path, map[string]string{"id": "t"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	got, _ := os.ReadFile(path)
	if !strings.Contains(string(got), `"id": "t"`) || !strings.HasSuffix(string(got), "\n") {
		t.Errorf("content = %q", got)
	}
}

func TestWriteJSON_Unmarshalable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := WriteJSON(path, make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("no file should be written on marshal error")
	}
}

// ---------------------------------------------------------------------------
// CleanOrphanTemps
// ---------------------------------------------------------------------------

func TestCleanOrphanTemps(t *testing.T) {
	dir := t.TempDir()

	// PID 999999999 almost certainly doesn't exist.
	dead := filepath.Join(dir, "a.json.tmp.999999999.abcd1234")
	alive := filepath.Join(dir, fmt.Sprintf("b.json.tmp.%d.abcd1234", os.Getpid()))
	old := filepath.Join(dir, fmt.Sprintf("c.json.tmp.%d.ffff0000", os.Getpid()))
	regular := filepath.Join(dir, "d.json")
	for _, p := range []string{dead, alive, old, regular} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-25 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	cleaned, err := CleanOrphanTemps([]string{dir, "/nonexistent/dir/xyz"})
	if err != nil {
		t.Fatalf("CleanOrphanTemps: %v", err)
	}
	if cleaned != 2 {
		t.Errorf("cleaned = %d; want 2", cleaned)
	}
	for p, wantGone := range map[string]bool{dead: true, old: true, alive: false, regular: false} {
		_, err := os.Stat(p)
		if gone := os.IsNotExist(err); gone != wantGone {
			t.Errorf("%s removed = %v; want %v", filepath.Base(p), gone, wantGone)
		}
	}
}

func TestExtractPID(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"sess.json.tmp.12345.abcd", 12345},
		{"data.tmp.1.ff", 1},
		{"notatemp", 0},
		{"file.tmp.", 0},
		{"file.tmp.notanumber.abc", 0},
		{".tmp.42.dead", 42},
	}
	for _, tt := range tests {
		if got := extractPID(tt.name); got != tt.want {
			t.Errorf("extractPID(%q) = %d; want %d", tt.name, got, tt.want)
		}
	}
}
