package taskgraph

import (
	"fmt"
	"strconv"
	"strings"
)

// categoryPrefixes is the fixed category -> task code prefix table.
var categoryPrefixes = map[Category]string{
	CategoryDocumentation: "DOC",
	CategorySystemAccess:  "SYS",
	CategoryEquipment:     "EQP",
	CategoryTraining:      "TRN",
	CategoryOrientation:   "ORI",
	CategoryCompliance:    "CMP",
	CategoryGeneral:       "GEN",
}

// Prefix returns the task code prefix of a category; unknown categories
// map to GEN.
func Prefix(c Category) string {
	if p, ok := categoryPrefixes[c]; ok {
		return p
	}
	return "GEN"
}

// AssignTaskCodes gives every task without a code the next
// {PREFIX}-{NNN} code of its category. Sequences start at 001 for each call,
// so codes are unique within one batch only. Codes already present are kept
// and their sequence numbers are skipped.
func AssignTaskCodes(tasks []Task) {
	used := make(map[string]map[int]bool)
	for _, t := range tasks {
		prefix, seq, ok := splitCode(t.TaskCode)
		if !ok {
			continue
		}
		if used[prefix] == nil {
			used[prefix] = make(map[int]bool)
		}
		used[prefix][seq] = true
	}

	next := make(map[string]int)
	for i := range tasks {
		if tasks[i].TaskCode != "" {
			continue
		}
		prefix := Prefix(tasks[i].Category)
		n := next[prefix] + 1
		for used[prefix][n] {
			n++
		}
		next[prefix] = n
		tasks[i].TaskCode = fmt.Sprintf("%s-%03d", prefix, n)
	}
}

// splitCode parses "DOC-004" into ("DOC", 4).
func splitCode(code string) (string, int, bool) {
	prefix, num, found := strings.Cut(code, "-")
	if !found || prefix == "" {
		return "", 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return "", 0, false
	}
	return prefix, n, true
}
