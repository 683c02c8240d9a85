package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hseinmoussa/jml-tasks/internal/config"
	"github.com/hseinmoussa/jml-tasks/internal/store"
	"github.com/hseinmoussa/jml-tasks/internal/taskgraph"
	"github.com/spf13/cobra"
)

// Global flag values. Each one overrides the matching config key when set.
var (
	flagDangling string
	flagFormat   string
	flagNoColor  bool
	flagLenient  bool
)

// commandTimeout bounds how long a command waits for a contended session lock.
const commandTimeout = 30 * time.Second

// rootCmd is the top-level cobra command for jml-tasks.
var rootCmd = &cobra.Command{
	Use:   "jml-tasks",
	Short: "Configure joiner/mover/leaver task batches",
	Long: "Configure joiner/mover/leaver task batches: edit fields, select tasks and wire " +
		"dependencies without ever creating a cycle, then confirm the result for task creation.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetVersion sets the CLI version string shown by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// loadConfig resolves the effective configuration with the global flags as
// the top layer.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	overrides := map[string]string{}
	flags := cmd.Flags()
	if flags.Changed("dangling") {
		overrides["dangling_dependencies"] = flagDangling
	}
	if flags.Changed("format") {
		overrides["output_format"] = flagFormat
	}
	if flags.Changed("no-color") && flagNoColor {
		overrides["color"] = "false"
	}
	if flags.Changed("lenient-ids") && flagLenient {
		overrides["strict_task_ids"] = "false"
	}
	return config.Load(overrides)
}

// sessionOptions maps configuration onto gateway options.
func sessionOptions(cfg config.Config) ([]taskgraph.Option, error) {
	policy, err := taskgraph.ParseDanglingPolicy(cfg.DanglingDependencies)
	if err != nil {
		return nil, err
	}
	opts := []taskgraph.Option{taskgraph.WithDanglingPolicy(policy)}
	if !cfg.StrictTaskIDs {
		opts = append(opts, taskgraph.WithLenientIDs())
	}
	return opts, nil
}

// openStore creates the data directories and returns the session store.
func openStore() (*store.Store, error) {
	if err := config.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}
	return store.New(config.BaseDir()), nil
}

// mutate loads config and store, then applies fn to the session under its
// lock. owner names the command in the lockfile.
func mutate(cmd *cobra.Command, sid, owner string, fn func(*taskgraph.Session) error) (config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	opts, err := sessionOptions(cfg)
	if err != nil {
		return cfg, err
	}
	st, err := openStore()
	if err != nil {
		return cfg, err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	return cfg, st.Update(ctx, sid, owner, fn, opts...)
}

// load reads a session for display without taking its lock. Snapshots are
// replaced atomically so a concurrent writer never exposes a partial file.
func load(cmd *cobra.Command, sid string) (*taskgraph.Session, config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, fmt.Errorf("load config: %w", err)
	}
	opts, err := sessionOptions(cfg)
	if err != nil {
		return nil, cfg, err
	}
	st, err := openStore()
	if err != nil {
		return nil, cfg, err
	}
	sess, err := st.Load(sid, opts...)
	return sess, cfg, err
}

// ── init & execute ──────────────────────────────────────────────────────

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDangling, "dangling", "", "dependencies on deselected tasks at confirm: keep or prune")
	pf.StringVar(&flagFormat, "format", "", "result format: yaml or json")
	pf.BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	pf.BoolVar(&flagLenient, "lenient-ids", false, "ignore operations on unknown task ids instead of failing")

	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(depCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command and returns any error. The caller (main.go)
// is responsible for calling os.Exit on error.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// exitError wraps an exit code for signaling from RunE handlers. Commands
// return it after they have already printed their own explanation.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
