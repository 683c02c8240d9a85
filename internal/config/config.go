package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hseinmoussa/jml-tasks/internal/fileutil"
	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration for jml-tasks.
type Config struct {
	StrictTaskIDs        bool          `yaml:"strict_task_ids"`
	DanglingDependencies string        `yaml:"dangling_dependencies"`
	OutputFormat         string        `yaml:"output_format"`
	HandoffURL           string        `yaml:"handoff_url"`
	HandoffTimeout       time.Duration `yaml:"handoff_timeout"`
	Color                bool          `yaml:"color"`
}

// setting describes how one configuration key is validated, applied to a
// Config and rendered back as a string.
type setting struct {
	check func(string) error
	apply func(*Config, string)
	show  func(Config) string
}

// settings is the registry of every valid configuration key. All layers
// (file, env, flag) resolve through it.
var settings = map[string]setting{
	"strict_task_ids": {
		check: boolValue("strict_task_ids"),
		apply: func(c *Config, v string) { c.StrictTaskIDs, _ = parseBool(v) },
		show:  func(c Config) string { return strconv.FormatBool(c.StrictTaskIDs) },
	},
	"dangling_dependencies": {
		check: oneOf("dangling_dependencies", "keep", "prune"),
		apply: func(c *Config, v string) { c.DanglingDependencies = v },
		show:  func(c Config) string { return c.DanglingDependencies },
	},
	"output_format": {
		check: oneOf("output_format", "yaml", "json"),
		apply: func(c *Config, v string) { c.OutputFormat = v },
		show:  func(c Config) string { return c.OutputFormat },
	},
	"handoff_url": {
		check: anyValue,
		apply: func(c *Config, v string) { c.HandoffURL = v },
		show:  func(c Config) string { return c.HandoffURL },
	},
	"handoff_timeout": {
		check: func(v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid handoff_timeout %q: %w", v, err)
			}
			return nil
		},
		apply: func(c *Config, v string) { c.HandoffTimeout, _ = time.ParseDuration(v) },
		show:  func(c Config) string { return c.HandoffTimeout.String() },
	},
	"color": {
		check: boolValue("color"),
		apply: func(c *Config, v string) { c.Color, _ = parseBool(v) },
		show:  func(c Config) string { return strconv.FormatBool(c.Color) },
	},
}

func anyValue(string) error { return nil }

func boolValue(key string) func(string) error {
	return func(v string) error {
		if _, err := parseBool(v); err != nil {
			return fmt.Errorf("invalid %s %q: want true or false", key, v)
		}
		return nil
	}
}

func oneOf(key string, allowed ...string) func(string) error {
	return func(v string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("invalid %s %q: want %s", key, v, strings.Join(allowed, " or "))
	}
}

// defaults returns a Config with all default values applied.
func defaults() Config {
	return Config{
		StrictTaskIDs:        true,
		DanglingDependencies: "keep",
		OutputFormat:         "yaml",
		HandoffTimeout:       10 * time.Second,
		Color:                true,
	}
}

// configFileRaw is the on-disk representation. Pointers distinguish "unset"
// from zero values, and durations stay strings ("10s") until resolved.
type configFileRaw struct {
	StrictTaskIDs        *bool   `yaml:"strict_task_ids,omitempty"`
	DanglingDependencies *string `yaml:"dangling_dependencies,omitempty"`
	OutputFormat         *string `yaml:"output_format,omitempty"`
	HandoffURL           *string `yaml:"handoff_url,omitempty"`
	HandoffTimeout       *string `yaml:"handoff_timeout,omitempty"`
	Color                *bool   `yaml:"color,omitempty"`
}

// BaseDir returns the root data directory: ~/.jml-tasks/
func BaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".jml-tasks")
}

// SessionsDir holds session snapshots and their lock files.
func SessionsDir() string { return filepath.Join(BaseDir(), "sessions") }

// ResultsDir holds confirmed session results.
func ResultsDir() string { return filepath.Join(BaseDir(), "results") }

// JournalDir holds the per-session operation journals.
func JournalDir() string { return filepath.Join(BaseDir(), "journal") }

// EnsureDirs creates the full directory tree required by jml-tasks:
// base, sessions, results, journal.
func EnsureDirs() error {
	for _, d := range []string{BaseDir(), SessionsDir(), ResultsDir(), JournalDir()} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", d, err)
		}
	}
	return nil
}

// FilePath returns the path to the main config file.
func FilePath() string {
	return filepath.Join(BaseDir(), "config.yaml")
}

// Load reads configuration from disk and applies the resolution order:
//
//	CLI flag > env var > config file > default
//
// CLI flag overrides are passed via the overrides map (key -> string value).
// Invalid file and env values are ignored; an invalid override is an error.
func Load(overrides map[string]string) (Config, error) {
	cfg := defaults()

	raw, err := loadRawFile()
	if err != nil {
		return cfg, err
	}
	applyLenient(&cfg, raw.values())
	applyLenient(&cfg, envValues())

	for k, v := range overrides {
		if err := ValidateKey(k); err != nil {
			return cfg, err
		}
		if err := settings[k].check(v); err != nil {
			return cfg, err
		}
		settings[k].apply(&cfg, v)
	}
	return cfg, nil
}

// loadRawFile reads and parses the YAML config file. If the file does not
// exist the returned struct is zero-valued (all pointers nil).
func loadRawFile() (configFileRaw, error) {
	var raw configFileRaw
	data, err := os.ReadFile(FilePath())
	if errors.Is(err, fs.ErrNotExist) {
		return raw, nil
	}
	if err != nil {
		return raw, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return raw, fmt.Errorf("parse config file %s: %w", FilePath(), err)
	}
	return raw, nil
}

// values returns the keys present in the file as strings.
func (r configFileRaw) values() map[string]string {
	out := make(map[string]string)
	if r.StrictTaskIDs != nil {
		out["strict_task_ids"] = strconv.FormatBool(*r.StrictTaskIDs)
	}
	if r.DanglingDependencies != nil {
		out["dangling_dependencies"] = *r.DanglingDependencies
	}
	if r.OutputFormat != nil {
		out["output_format"] = *r.OutputFormat
	}
	if r.HandoffURL != nil {
		out["handoff_url"] = *r.HandoffURL
	}
	if r.HandoffTimeout != nil {
		out["handoff_timeout"] = *r.HandoffTimeout
	}
	if r.Color != nil {
		out["color"] = strconv.FormatBool(*r.Color)
	}
	return out
}

// envValues collects JML_TASKS_<UPPER_SNAKE_KEY> variables.
func envValues() map[string]string {
	out := make(map[string]string)
	for k := range settings {
		if v, ok := os.LookupEnv(EnvVar(k)); ok {
			out[k] = v
		}
	}
	return out
}

// EnvVar returns the environment variable that overrides key.
func EnvVar(key string) string {
	return "JML_TASKS_" + strings.ToUpper(key)
}

func applyLenient(cfg *Config, values map[string]string) {
	for k, v := range values {
		if s, ok := settings[k]; ok && s.check(v) == nil {
			s.apply(cfg, v)
		}
	}
}

// parseBool accepts strconv.ParseBool forms plus yes and no.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "on":
		return true, nil
	case "no", "n", "off":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}

// ValidateKey returns an error if key is not a known configuration key.
func ValidateKey(key string) error {
	if _, ok := settings[key]; !ok {
		return fmt.Errorf("unknown config key %q; known keys: %s", key, strings.Join(Keys(), ", "))
	}
	return nil
}

// Keys returns every configuration key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Source reports which layer supplies the effective value of key: "env",
// "file" or "default". Flags are per-invocation and not considered.
func Source(key string) string {
	if _, ok := os.LookupEnv(EnvVar(key)); ok {
		return "env"
	}
	if raw, err := loadRawFile(); err == nil {
		if _, ok := raw.values()[key]; ok {
			return "file"
		}
	}
	return "default"
}

// SetConfigValue writes a key-value pair to the config file. The file is
// created if it does not exist. Uses atomic write for crash safety.
func SetConfigValue(key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := settings[key].check(value); err != nil {
		return err
	}

	raw, err := loadRawFile()
	if err != nil {
		return err
	}
	setRawValue(&raw, key, value)

	data, err := yaml.Marshal(&raw)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(BaseDir(), 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", BaseDir(), err)
	}
	return fileutil.AtomicWrite(FilePath(), data, 0644)
}

func setRawValue(raw *configFileRaw, key, value string) {
	switch key {
	case "strict_task_ids":
		b, _ := parseBool(value)
		raw.StrictTaskIDs = &b
	case "dangling_dependencies":
		raw.DanglingDependencies = &value
	case "output_format":
		raw.OutputFormat = &value
	case "handoff_url":
		raw.HandoffURL = &value
	case "handoff_timeout":
		raw.HandoffTimeout = &value
	case "color":
		b, _ := parseBool(value)
		raw.Color = &b
	}
}

// GetConfigValue returns the current effective value of a config key as a
// string, after applying the full resolution order (file + env; no CLI flags).
func GetConfigValue(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	all, err := ListConfig()
	if err != nil {
		return "", err
	}
	return all[key], nil
}

// ListConfig returns all config keys and their current effective values.
func ListConfig() (map[string]string, error) {
	cfg, err := Load(nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(settings))
	for k, s := range settings {
		out[k] = s.show(cfg)
	}
	return out, nil
}
