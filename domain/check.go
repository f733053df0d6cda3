package domain

import (
	"context"
	"time"
)

// Capability describes what a checker does
type Capability string

const (
	CapabilityLint      Capability = "lint"
	CapabilityFormat    Capability = "format"
	CapabilityTypeCheck Capability = "typecheck"
)

// RawOutput is what a single tool invocation produced
type RawOutput struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// ParseResult holds the issues recovered from raw output plus any
// lines or documents that could not be interpreted.
type ParseResult struct {
	Issues   []Issue
	Warnings []string
}

// Checker wraps one external analysis tool
type Checker interface {
	Name() string
	Capabilities() []Capability
	SupportsFix() bool
	Executable() string

	// Fingerprint identifies the options that affect this checker's output.
	// It is part of every cache key.
	Fingerprint() string

	// Invoke runs the tool against a file. Returns a *QualityError of kind
	// execution, timeout or tool_unavailable when the run was abnormal.
	Invoke(ctx context.Context, file string) (RawOutput, error)

	// Parse never fails; uninterpretable content is reported in Warnings.
	Parse(file string, out RawOutput) ParseResult

	// Fix applies the tool's autofix to a file in place.
	Fix(ctx context.Context, file string) (RawOutput, error)
}

// CheckResult is the outcome of one (file, checker) pair
type CheckResult struct {
	File     string        `json:"file"`
	Checker  string        `json:"checker"`
	Issues   []Issue       `json:"issues"`
	Success  bool          `json:"success"`
	Error    *QualityError `json:"error,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Cached   bool          `json:"cached"`
}

// FileResult groups the pair results of one file
type FileResult struct {
	File    string        `json:"file"`
	Results []CheckResult `json:"results"`
	Issues  []Issue       `json:"issues"`
}

// Success reports whether every checker ran normally on this file
func (f FileResult) Success() bool {
	for _, r := range f.Results {
		if !r.Success {
			return false
		}
	}
	return true
}

// CheckOptions selects what a run does
type CheckOptions struct {
	// Checkers restricts the run to these checker names; empty means all enabled
	Checkers []string
	Workers  int
	NoCache  bool
}

// FixOptions selects what a fix run does
type FixOptions struct {
	Checkers []string
	Workers  int
	DryRun   bool
}
