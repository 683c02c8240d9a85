package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate points HOME at a temp dir and clears every config env var.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, key := range Keys() {
		t.Setenv(EnvVar(key), "")
		os.Unsetenv(EnvVar(key))
	}
	return dir
}

// ---------------------------------------------------------------------------
// Load with defaults
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.StrictTaskIDs {
		t.Errorf("StrictTaskIDs default = %v; want true", cfg.StrictTaskIDs)
	}
	if cfg.DanglingDependencies != "keep" {
		t.Errorf("DanglingDependencies default = %q; want keep", cfg.DanglingDependencies)
	}
	if cfg.OutputFormat != "yaml" {
		t.Errorf("OutputFormat default = %q; want yaml", cfg.OutputFormat)
	}
	if cfg.HandoffURL != "" {
		t.Errorf("HandoffURL default = %q; want empty", cfg.HandoffURL)
	}
	if cfg.HandoffTimeout != 10*time.Second {
		t.Errorf("HandoffTimeout default = %v; want 10s", cfg.HandoffTimeout)
	}
	if !cfg.Color {
		t.Errorf("Color default = %v; want true", cfg.Color)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := isolate(t)

	confDir := filepath.Join(dir, ".jml-tasks")
	os.MkdirAll(confDir, 0755)
	content := `strict_task_ids: false
dangling_dependencies: prune
output_format: json
handoff_url: "https://example.com/tasks"
handoff_timeout: "30s"
color: false
`
	os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte(content), 0644)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.StrictTaskIDs {
		t.Error("StrictTaskIDs should be false from file")
	}
	if cfg.DanglingDependencies != "prune" {
		t.Errorf("DanglingDependencies = %q; want prune", cfg.DanglingDependencies)
	}
	if cfg.OutputFormat != "json" {
		t.Errorf("OutputFormat = %q; want json", cfg.OutputFormat)
	}
	if cfg.HandoffURL != "https://example.com/tasks" {
		t.Errorf("HandoffURL = %q; want https://example.com/tasks", cfg.HandoffURL)
	}
	if cfg.HandoffTimeout != 30*time.Second {
		t.Errorf("HandoffTimeout = %v; want 30s", cfg.HandoffTimeout)
	}
	if cfg.Color {
		t.Error("Color should be false from file")
	}
}

func TestLoad_InvalidFileValuesIgnored(t *testing.T) {
	dir := isolate(t)

	confDir := filepath.Join(dir, ".jml-tasks")
	os.MkdirAll(confDir, 0755)
	content := "dangling_dependencies: sometimes\noutput_format: xml\nhandoff_timeout: soon\n"
	os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte(content), 0644)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DanglingDependencies != "keep" || cfg.OutputFormat != "yaml" || cfg.HandoffTimeout != 10*time.Second {
		t.Errorf("invalid file values leaked into config: %+v", cfg)
	}
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := isolate(t)

	confDir := filepath.Join(dir, ".jml-tasks")
	os.MkdirAll(confDir, 0755)
	os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte("output_format: json\n"), 0644)
	t.Setenv("JML_TASKS_OUTPUT_FORMAT", "yaml")
	t.Setenv("JML_TASKS_STRICT_TASK_IDS", "no")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputFormat != "yaml" {
		t.Errorf("OutputFormat = %q; want yaml from env", cfg.OutputFormat)
	}
	if cfg.StrictTaskIDs {
		t.Error("StrictTaskIDs should be false from env")
	}
}

func TestLoad_InvalidEnvValuesIgnored(t *testing.T) {
	isolate(t)
	t.Setenv(EnvVar("output_format"), "xml")
	t.Setenv(EnvVar("handoff_timeout"), "later")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputFormat != "yaml" || cfg.HandoffTimeout != 10*time.Second {
		t.Errorf("invalid env values leaked into config: %+v", cfg)
	}
}

func TestSource_Layers(t *testing.T) {
	dir := isolate(t)

	confDir := filepath.Join(dir, ".jml-tasks")
	os.MkdirAll(confDir, 0755)
	os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte("color: false\nhandoff_url: http://x\n"), 0644)
	t.Setenv(EnvVar("handoff_url"), "http://y")

	for key, want := range map[string]string{
		"color":         "file",
		"handoff_url":   "env",
		"output_format": "default",
	} {
		if got := Source(key); got != want {
			t.Errorf("Source(%s) = %q; want %q", key, got, want)
		}
	}
}

func TestKeys_Sorted(t *testing.T) {
	keys := Keys()
	if len(keys) != len(settings) {
		t.Fatalf("Keys() returned %d keys; want %d", len(keys), len(settings))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] > keys[i] {
			t.Errorf("Keys() not sorted: %v", keys)
		}
	}
}

func TestEnvVar(t *testing.T) {
	if got := EnvVar("handoff_url"); got != "JML_TASKS_HANDOFF_URL" {
		t.Errorf("EnvVar = %q; want JML_TASKS_HANDOFF_URL", got)
	}
}

func TestLoad_OverridesApplied(t *testing.T) {
	isolate(t)
	t.Setenv("JML_TASKS_DANGLING_DEPENDENCIES", "keep")

	overrides := map[string]string{
		"dangling_dependencies": "prune",
		"handoff_timeout":       "2s",
	}

	cfg, err := Load(overrides)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DanglingDependencies != "prune" {
		t.Errorf("DanglingDependencies = %q; want prune from override", cfg.DanglingDependencies)
	}
	if cfg.HandoffTimeout != 2*time.Second {
		t.Errorf("HandoffTimeout = %v; want 2s", cfg.HandoffTimeout)
	}
}

func TestLoad_UnknownOverrideKey(t *testing.T) {
	isolate(t)

	_, err := Load(map[string]string{"nonexistent_key": "value"})
	if err == nil {
		t.Fatal("expected error for unknown override key")
	}
}

func TestLoad_InvalidOverrideValue(t *testing.T) {
	isolate(t)

	for key, value := range map[string]string{
		"output_format":         "csv",
		"dangling_dependencies": "drop",
		"handoff_timeout":       "ten",
	} {
		if _, err := Load(map[string]string{key: value}); err == nil {
			t.Errorf("Load(%s=%s) = nil error; want error", key, value)
		}
	}
}

// ---------------------------------------------------------------------------
// ValidateKey
// ---------------------------------------------------------------------------

func TestValidateKey_Known(t *testing.T) {
	for k := range settings {
		if err := ValidateKey(k); err != nil {
			t.Errorf("ValidateKey(%q) = %v; want nil", k, err)
		}
	}
}

func TestValidateKey_Unknown(t *testing.T) {
	unknowns := []string{"bad_key", "", "StrictTaskIDs", "OUTPUT_FORMAT"}
	for _, k := range unknowns {
		if err := ValidateKey(k); err == nil {
			t.Errorf("ValidateKey(%q) = nil; want error", k)
		}
	}
}

// ---------------------------------------------------------------------------
// SetConfigValue / GetConfigValue roundtrip
// ---------------------------------------------------------------------------

func TestSetGetConfigValue_Roundtrip(t *testing.T) {
	isolate(t)

	if err := SetConfigValue("handoff_url", "https://hooks.example.com"); err != nil {
		t.Fatalf("SetConfigValue: %v", err)
	}
	if err := SetConfigValue("strict_task_ids", "false"); err != nil {
		t.Fatalf("SetConfigValue: %v", err)
	}

	val, err := GetConfigValue("handoff_url")
	if err != nil {
		t.Fatalf("GetConfigValue: %v", err)
	}
	if val != "https://hooks.example.com" {
		t.Errorf("GetConfigValue = %q; want https://hooks.example.com", val)
	}
	val, _ = GetConfigValue("strict_task_ids")
	if val != "false" {
		t.Errorf("GetConfigValue(strict_task_ids) = %q; want false", val)
	}
}

func TestSetConfigValue_InvalidKey(t *testing.T) {
	isolate(t)
	if err := SetConfigValue("not_a_key", "value"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

func TestSetConfigValue_InvalidValue(t *testing.T) {
	isolate(t)
	if err := SetConfigValue("output_format", "toml"); err == nil {
		t.Fatal("expected error for invalid value")
	}
	if _, err := os.Stat(FilePath()); !os.IsNotExist(err) {
		t.Errorf("config file should not be written on invalid value; stat err = %v", err)
	}
}

func TestSetConfigValue_RejectsBoolTypos(t *testing.T) {
	isolate(t)
	for _, key := range []string{"strict_task_ids", "color"} {
		if err := SetConfigValue(key, "tru"); err == nil {
			t.Errorf("SetConfigValue(%s, tru) = nil error; want error", key)
		}
	}
	if _, err := os.Stat(FilePath()); !os.IsNotExist(err) {
		t.Errorf("config file should not be written on invalid value; stat err = %v", err)
	}

	if _, err := Load(map[string]string{"strict_task_ids": "maybe"}); err == nil {
		t.Error("Load with strict_task_ids=maybe should fail")
	}

	t.Setenv(EnvVar("strict_task_ids"), "ture")
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.StrictTaskIDs {
		t.Error("a typo in the env var must not switch to lenient ids")
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
		ok   bool
	}{
		{"true", true, true},
		{"1", true, true},
		{"YES", true, true},
		{"false", false, true},
		{"no", false, true},
		{"0", false, true},
		{"tru", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		got, err := parseBool(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("parseBool(%q) = %v, %v; want %v, ok=%v", tt.in, got, err, tt.want, tt.ok)
		}
	}
}

func TestGetConfigValue_InvalidKey(t *testing.T) {
	isolate(t)
	if _, err := GetConfigValue("not_a_key"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

// ---------------------------------------------------------------------------
// ListConfig / EnsureDirs
// ---------------------------------------------------------------------------

func TestListConfig_ReturnsAllKeys(t *testing.T) {
	isolate(t)

	result, err := ListConfig()
	if err != nil {
		t.Fatalf("ListConfig: %v", err)
	}
	for k := range settings {
		if _, ok := result[k]; !ok {
			t.Errorf("ListConfig missing key %q", k)
		}
	}
	if len(result) != len(settings) {
		t.Errorf("ListConfig returned %d keys; want %d", len(result), len(settings))
	}
}

func TestEnsureDirs(t *testing.T) {
	isolate(t)

	if err := EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	for _, d := range []string{SessionsDir(), ResultsDir(), JournalDir()} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("stat %s: %v", d, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", d)
		}
	}
}
