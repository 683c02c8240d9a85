package timing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Anchor places a task relative to the employee's start date.
type Anchor string

const (
	AnchorOn     Anchor = "on"
	AnchorBefore Anchor = "before"
	AnchorAfter  Anchor = "after"
)

// Offset is the scheduling offset of a task relative to the start date.
// The zero value means "on start date".
type Offset struct {
	Anchor Anchor `yaml:"anchor,omitempty" json:"anchor,omitempty"`
	Days   int    `yaml:"days,omitempty"   json:"days,omitempty"`
}

// OnStart returns the default offset: due on the start date itself.
func OnStart() Offset {
	return Offset{Anchor: AnchorOn}
}

// Parse parses a human-readable offset string into an Offset.
//
// Supported formats include:
//   - "on start", "on start date", "start", ""   (no offset)
//   - "3 days before", "3d before start"
//   - "2 weeks after", "1w after"
//   - "-3", "+5", "-2w", "+1d"                   (signed shorthand)
//
// A zero-day before/after offset collapses to "on start date".
func Parse(s string) (Offset, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || reOnStart.MatchString(s) {
		return OnStart(), nil
	}

	if m := reSigned.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return Offset{}, fmt.Errorf("parse offset %q: %w", s, err)
		}
		days := n * unitDays(m[3])
		anchor := AnchorAfter
		if m[1] == "-" {
			anchor = AnchorBefore
		}
		return normalize(Offset{Anchor: anchor, Days: days}), nil
	}

	if m := reWords.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Offset{}, fmt.Errorf("parse offset %q: %w", s, err)
		}
		days := n * unitDays(m[2])
		return normalize(Offset{Anchor: Anchor(m[3]), Days: days}), nil
	}

	return Offset{}, fmt.Errorf("no recognizable offset pattern in %q", s)
}

// reOnStart matches the spellings of "no offset".
var reOnStart = regexp.MustCompile(`^(on\s+)?start(\s+date)?$|^on$|^0+[dw]?$`)

// reSigned matches shorthand offsets: "-3", "+5d", "-2w".
var reSigned = regexp.MustCompile(`^([+-])\s*(\d{1,4})\s*([dw])?$`)

// reWords matches "3 days before", "1w after start", "2 weeks after start date".
var reWords = regexp.MustCompile(`^(\d{1,4})\s*(d|day|days|w|wk|week|weeks)\s+(before|after)(\s+start(\s+date)?)?$`)

func unitDays(unit string) int {
	if strings.HasPrefix(unit, "w") {
		return 7
	}
	return 1
}

func normalize(o Offset) Offset {
	if o.Days == 0 || o.Anchor == "" {
		return OnStart()
	}
	return o
}

// Validate reports whether the offset is well formed.
func (o Offset) Validate() error {
	switch o.Anchor {
	case "", AnchorOn:
		if o.Days != 0 {
			return fmt.Errorf("offset anchored on start date cannot carry %d days", o.Days)
		}
		return nil
	case AnchorBefore, AnchorAfter:
		if o.Days < 0 {
			return fmt.Errorf("offset days must be >= 0 (got %d)", o.Days)
		}
		return nil
	default:
		return fmt.Errorf("unknown offset anchor %q", o.Anchor)
	}
}

// SignedDays returns the offset as a signed day count: negative before the
// start date, positive after.
func (o Offset) SignedDays() int {
	switch o.Anchor {
	case AnchorBefore:
		return -o.Days
	case AnchorAfter:
		return o.Days
	default:
		return 0
	}
}

// Apply returns the due date for a task with this offset.
func (o Offset) Apply(start time.Time) time.Time {
	return start.AddDate(0, 0, o.SignedDays())
}

// String returns a human-readable label, e.g. "3 days before start".
func (o Offset) String() string {
	if o.SignedDays() == 0 {
		return "on start date"
	}
	unit := "days"
	if o.Days == 1 {
		unit = "day"
	}
	return fmt.Sprintf("%d %s %s start", o.Days, unit, o.Anchor)
}

// MarshalYAML writes the offset in its readable form so it round-trips
// through UnmarshalYAML.
func (o Offset) MarshalYAML() (any, error) {
	return o.String(), nil
}

// UnmarshalYAML accepts either a scalar ("3 days before") or a mapping
// with anchor/days keys.
func (o *Offset) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		parsed, err := Parse(node.Value)
		if err != nil {
			return err
		}
		*o = parsed
		return nil
	}

	var raw struct {
		Anchor Anchor `yaml:"anchor"`
		Days   int    `yaml:"days"`
	}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("decode offset: %w", err)
	}
	parsed := Offset{Anchor: raw.Anchor, Days: raw.Days}
	if err := parsed.Validate(); err != nil {
		return err
	}
	*o = normalize(parsed)
	return nil
}

// ParseDate parses a start date in YYYY-MM-DD form (local midnight).
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}
