// Package catalog loads the category table, known role names and the field
// defaults applied to inbound tasks.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hseinmoussa/jml-tasks/internal/config"
	"github.com/hseinmoussa/jml-tasks/internal/taskgraph"
	"github.com/hseinmoussa/jml-tasks/internal/timing"
)

//go:embed catalog.default.yaml
var defaultCatalogYAML []byte

// Category is one row of the category table.
type Category struct {
	Name        taskgraph.Category `yaml:"name"`
	Prefix      string             `yaml:"prefix"`
	Description string             `yaml:"description"`
}

// Catalog is the merged view of the embedded and user catalogs.
type Catalog struct {
	Categories []Category              `yaml:"categories"`
	Roles      []string                `yaml:"roles"`
	Defaults   taskgraph.FieldDefaults `yaml:"defaults"`
}

// userCatalog is the optional override file. Pointers mark the defaults the
// user actually set; categories cannot be overridden.
type userCatalog struct {
	Roles        []string `yaml:"roles"`
	ExcludeRoles []string `yaml:"exclude_roles,omitempty"`
	Defaults     struct {
		AssignmentType   *taskgraph.AssignmentType `yaml:"assignment_type"`
		AssignedRole     *string                   `yaml:"assigned_role"`
		Priority         *taskgraph.Priority       `yaml:"priority"`
		Offset           *timing.Offset            `yaml:"offset"`
		NotifyEmail      *bool                     `yaml:"notify_email"`
		NotifyTeams      *bool                     `yaml:"notify_teams"`
		NotifyOnComplete *bool                     `yaml:"notify_on_complete"`
	} `yaml:"defaults"`
}

// UserPath returns ~/.jml-tasks/catalog.yaml.
func UserPath() string {
	return filepath.Join(config.BaseDir(), "catalog.yaml")
}

// Load returns the embedded catalog merged with the user file at UserPath,
// if there is one.
func Load() (Catalog, error) {
	return LoadFrom(UserPath())
}

// LoadFrom is Load with an explicit user file path. A missing file is not
// an error.
func LoadFrom(userPath string) (Catalog, error) {
	var base Catalog
	if err := yaml.Unmarshal(defaultCatalogYAML, &base); err != nil {
		return base, fmt.Errorf("parse default catalog: %w", err)
	}
	if err := checkPrefixes(base.Categories); err != nil {
		return base, err
	}

	data, err := os.ReadFile(userPath)
	if err != nil {
		if os.IsNotExist(err) {
			return base, base.validate()
		}
		return base, fmt.Errorf("read user catalog: %w", err)
	}

	var user userCatalog
	if err := yaml.Unmarshal(data, &user); err != nil {
		return base, fmt.Errorf("parse user catalog %s: %w", userPath, err)
	}

	merged := merge(base, user)
	if err := merged.validate(); err != nil {
		return base, fmt.Errorf("user catalog %s: %w", userPath, err)
	}
	return merged, nil
}

// checkPrefixes keeps the embedded table honest against the prefixes the
// task code generator uses.
func checkPrefixes(cats []Category) error {
	for _, c := range cats {
		if got := taskgraph.Prefix(c.Name); got != c.Prefix {
			return fmt.Errorf("default catalog: category %q has prefix %s; task codes use %s", c.Name, c.Prefix, got)
		}
	}
	return nil
}

func (c Catalog) validate() error {
	d := c.Defaults
	if !d.AssignmentType.IsValid() {
		return fmt.Errorf("unknown default assignment_type %q", d.AssignmentType)
	}
	if !d.Priority.IsValid() {
		return fmt.Errorf("unknown default priority %q", d.Priority)
	}
	if err := d.Offset.Validate(); err != nil {
		return fmt.Errorf("default offset: %w", err)
	}
	return nil
}

// merge applies the user's field defaults on top of base. User roles extend
// the default list; exclude_roles removes entries from it.
func merge(base Catalog, user userCatalog) Catalog {
	out := base
	out.Roles = appendUnique(filterExcluded(base.Roles, toSet(user.ExcludeRoles)), user.Roles)

	u := user.Defaults
	if u.AssignmentType != nil {
		out.Defaults.AssignmentType = *u.AssignmentType
	}
	if u.AssignedRole != nil {
		out.Defaults.AssignedRole = *u.AssignedRole
	}
	if u.Priority != nil {
		out.Defaults.Priority = *u.Priority
	}
	if u.Offset != nil {
		out.Defaults.Offset = *u.Offset
	}
	if u.NotifyEmail != nil {
		out.Defaults.NotifyEmail = *u.NotifyEmail
	}
	if u.NotifyTeams != nil {
		out.Defaults.NotifyTeams = *u.NotifyTeams
	}
	if u.NotifyOnComplete != nil {
		out.Defaults.NotifyOnComplete = *u.NotifyOnComplete
	}
	return out
}

// HasRole reports whether role is listed in the catalog.
func (c Catalog) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}

func filterExcluded(items []string, exclude map[string]bool) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !exclude[it] {
			out = append(out, it)
		}
	}
	return out
}

func appendUnique(base, additions []string) []string {
	existing := toSet(base)
	for _, a := range additions {
		if !existing[a] {
			base = append(base, a)
			existing[a] = true
		}
	}
	return base
}
