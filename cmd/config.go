package cmd

import (
	"fmt"
	"strings"

	"github.com/hseinmoussa/jml-tasks/internal/catalog"
	"github.com/hseinmoussa/jml-tasks/internal/config"
	"github.com/hseinmoussa/jml-tasks/internal/fileutil"
	"github.com/spf13/cobra"
)

// ── config ──────────────────────────────────────────────────────────────

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if err := config.ValidateKey(key); err != nil {
		return err
	}
	previous, err := config.GetConfigValue(key)
	if err != nil {
		return err
	}
	if err := config.EnsureDirs(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	if err := config.SetConfigValue(key, value); err != nil {
		return fmt.Errorf("set config: %w", err)
	}

	if previous == value {
		fmt.Printf("%s already %s; saved to %s\n", key, value, config.FilePath())
		return nil
	}
	fmt.Printf("%s: %s -> %s\n", key, displayValue(previous), value)
	if src := config.Source(key); src == "env" {
		fmt.Printf("note: %s is set and takes precedence over the file\n", config.EnvVar(key))
	}
	return nil
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value and the layer it comes from",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := config.GetConfigValue(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n", displayValue(val), config.Source(args[0]))
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configuration values",
	Args:  cobra.NoArgs,
	RunE:  runConfigList,
}

func runConfigList(cmd *cobra.Command, args []string) error {
	values, err := config.ListConfig()
	if err != nil {
		return fmt.Errorf("list config: %w", err)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rows := make([][]string, 0, len(values))
	for _, k := range config.Keys() {
		rows = append(rows, []string{k, displayValue(values[k]), config.Source(k)})
	}
	newPrinter(cfg.Color).table([]string{"KEY", "VALUE", "SOURCE"}, rows, nil)
	return nil
}

func displayValue(v string) string {
	if v == "" {
		return "(unset)"
	}
	return v
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config and catalog file paths",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.FilePath())
		fmt.Println(catalog.UserPath())
	},
}

// ── catalog ─────────────────────────────────────────────────────────────

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show categories, known roles and field defaults",
	Args:  cobra.NoArgs,
	RunE:  runCatalog,
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cat, err := catalog.Load()
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	p := newPrinter(cfg.Color)

	rows := make([][]string, 0, len(cat.Categories))
	for _, c := range cat.Categories {
		rows = append(rows, []string{string(c.Name), c.Prefix, c.Description})
	}
	p.table([]string{"CATEGORY", "PREFIX", "DESCRIPTION"}, rows, nil)

	p.printf("\nRoles: %s\n", strings.Join(cat.Roles, ", "))
	d := cat.Defaults
	p.printf("Defaults: %s", d.AssignmentType)
	if d.AssignedRole != "" {
		p.printf(" (%s)", d.AssignedRole)
	}
	p.printf(", %s priority, due %s, email %t, teams %t, on complete %t\n",
		d.Priority, d.Offset, d.NotifyEmail, d.NotifyTeams, d.NotifyOnComplete)
	return nil
}

// ── clean ───────────────────────────────────────────────────────────────

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove orphan temp files left by interrupted writes",
	Args:  cobra.NoArgs,
	RunE:  runClean,
}

func runClean(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	n, err := fileutil.CleanOrphanTemps(st.TempDirs())
	if err != nil {
		return fmt.Errorf("clean orphan temps: %w", err)
	}
	fmt.Printf("Cleaned %d temp files\n", n)
	return nil
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configPathCmd)
}
