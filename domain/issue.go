package domain

import (
	"fmt"
	"strings"
)

// Severity is the normalized severity of an issue
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityNote    Severity = "note"
)

// AllSeverities lists the known severities in descending order of importance
var AllSeverities = []Severity{SeverityError, SeverityWarning, SeverityInfo, SeverityNote}

// ParseSeverity maps a tool-reported severity string to a Severity.
// Unknown values are treated as errors so they can never silently pass a gate.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "fatal", "e", "f":
		return SeverityError
	case "warning", "warn", "w":
		return SeverityWarning
	case "info", "information", "i":
		return SeverityInfo
	case "note", "hint", "n":
		return SeverityNote
	default:
		return SeverityError
	}
}

// Rank orders severities for sorting and thresholds (lower is more severe)
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	case SeverityNote:
		return 3
	default:
		return 0
	}
}

// Issue is a single normalized finding reported by a checker
type Issue struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   *int     `json:"column,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Code     string   `json:"code,omitempty"`
	Checker  string   `json:"checker"`
	Fixable  bool     `json:"fixable"`
}

// ColumnOrZero returns the column, or 0 when the tool did not report one
func (i Issue) ColumnOrZero() int {
	if i.Column == nil {
		return 0
	}
	return *i.Column
}

// HasColumn reports whether the tool reported a column
func (i Issue) HasColumn() bool {
	return i.Column != nil
}

// Location renders file:line[:col]
func (i Issue) Location() string {
	if i.Column != nil {
		return fmt.Sprintf("%s:%d:%d", i.File, i.Line, *i.Column)
	}
	return fmt.Sprintf("%s:%d", i.File, i.Line)
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int {
	return &v
}

// CompareIssues orders issues by path, line, column, checker, then code and message
// so that ties never depend on scheduling order.
func CompareIssues(a, b Issue) int {
	if c := strings.Compare(a.File, b.File); c != 0 {
		return c
	}
	if a.Line != b.Line {
		return cmpInt(a.Line, b.Line)
	}
	if a.HasColumn() != b.HasColumn() {
		// absent column sorts first
		if !a.HasColumn() {
			return -1
		}
		return 1
	}
	if a.ColumnOrZero() != b.ColumnOrZero() {
		return cmpInt(a.ColumnOrZero(), b.ColumnOrZero())
	}
	if c := strings.Compare(a.Checker, b.Checker); c != 0 {
		return c
	}
	if c := strings.Compare(a.Code, b.Code); c != 0 {
		return c
	}
	return strings.Compare(a.Message, b.Message)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
