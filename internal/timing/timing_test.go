package timing

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParse_OnStartSpellings(t *testing.T) {
	for _, in := range []string{"", "on start", "On Start Date", "start", "on", "0", "0d"} {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", in, err)
		}
		if got != OnStart() {
			t.Errorf("Parse(%q) = %+v; want on start", in, got)
		}
	}
}

func TestParse_Words(t *testing.T) {
	tests := []struct {
		in   string
		want Offset
	}{
		{"3 days before", Offset{Anchor: AnchorBefore, Days: 3}},
		{"3d before start", Offset{Anchor: AnchorBefore, Days: 3}},
		{"1 day after", Offset{Anchor: AnchorAfter, Days: 1}},
		{"2 weeks after start date", Offset{Anchor: AnchorAfter, Days: 14}},
		{"1w before", Offset{Anchor: AnchorBefore, Days: 7}},
		{"0 days after", OnStart()},
	}
	for _, tc := range tests {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %+v; want %+v", tc.in, got, tc.want)
		}
	}
}

func TestParse_Signed(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"-3", -3},
		{"+5", 5},
		{"+1d", 1},
		{"-2w", -14},
	}
	for _, tc := range tests {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tc.in, err)
		}
		if got.SignedDays() != tc.want {
			t.Errorf("Parse(%q).SignedDays() = %d; want %d", tc.in, got.SignedDays(), tc.want)
		}
	}
}

func TestParse_Garbage(t *testing.T) {
	for _, in := range []string{"soon", "3 fortnights before", "before 3 days"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", in)
		}
	}
}

func TestOffset_Apply(t *testing.T) {
	start := time.Date(2026, time.November, 2, 0, 0, 0, 0, time.UTC)

	before := Offset{Anchor: AnchorBefore, Days: 5}
	if got := before.Apply(start); !got.Equal(time.Date(2026, time.October, 28, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Apply(before 5) = %s", got)
	}
	after := Offset{Anchor: AnchorAfter, Days: 30}
	if got := after.Apply(start); !got.Equal(time.Date(2026, time.December, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Apply(after 30) = %s", got)
	}
	if got := (Offset{}).Apply(start); !got.Equal(start) {
		t.Errorf("zero offset Apply = %s; want %s", got, start)
	}
}

func TestOffset_String(t *testing.T) {
	tests := []struct {
		o    Offset
		want string
	}{
		{OnStart(), "on start date"},
		{Offset{}, "on start date"},
		{Offset{Anchor: AnchorBefore, Days: 1}, "1 day before start"},
		{Offset{Anchor: AnchorAfter, Days: 14}, "14 days after start"},
	}
	for _, tc := range tests {
		if got := tc.o.String(); got != tc.want {
			t.Errorf("%+v.String() = %q; want %q", tc.o, got, tc.want)
		}
	}
}

func TestOffset_Validate(t *testing.T) {
	if err := (Offset{Anchor: "sideways", Days: 1}).Validate(); err == nil {
		t.Error("expected error for unknown anchor")
	}
	if err := (Offset{Anchor: AnchorOn, Days: 2}).Validate(); err == nil {
		t.Error("expected error for on-start offset with days")
	}
	if err := (Offset{Anchor: AnchorAfter, Days: -1}).Validate(); err == nil {
		t.Error("expected error for negative days")
	}
	if err := (Offset{Anchor: AnchorAfter, Days: 3}).Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestOffset_UnmarshalYAML(t *testing.T) {
	var doc struct {
		A Offset `yaml:"a"`
		B Offset `yaml:"b"`
	}
	data := []byte("a: 3 days before\nb:\n  anchor: after\n  days: 2\n")
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if doc.A.SignedDays() != -3 {
		t.Errorf("A.SignedDays() = %d; want -3", doc.A.SignedDays())
	}
	if doc.B.SignedDays() != 2 {
		t.Errorf("B.SignedDays() = %d; want 2", doc.B.SignedDays())
	}

	if err := yaml.Unmarshal([]byte("a: whenever\n"), &doc); err == nil {
		t.Error("expected error for unparseable scalar offset")
	}
}

func TestOffset_YAMLRoundTrip(t *testing.T) {
	for _, o := range []Offset{OnStart(), {Anchor: AnchorBefore, Days: 1}, {Anchor: AnchorAfter, Days: 14}} {
		data, err := yaml.Marshal(o)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", o, err)
		}
		var got Offset
		if err := yaml.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%q): %v", data, err)
		}
		if got != o {
			t.Errorf("round trip of %v = %v (yaml %q)", o, got, data)
		}
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2026-11-02")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if got.Year() != 2026 || got.Month() != time.November || got.Day() != 2 {
		t.Errorf("ParseDate = %s", got)
	}
	if _, err := ParseDate("02/11/2026"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}
