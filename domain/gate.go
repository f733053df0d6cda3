package domain

import (
	"context"
	"time"
)

// GateState is the state of the commit gate
type GateState string

const (
	GateIdle     GateState = "IDLE"
	GateDetected GateState = "DETECTED"
	GateRunning  GateState = "RUNNING"
	GatePassed   GateState = "PASSED"
	GateFailed   GateState = "FAILED"
)

// Outcome is the gate's verdict
type Outcome string

const (
	OutcomeAllow Outcome = "ALLOW"
	OutcomeBlock Outcome = "BLOCK"
)

// GateReason explains a decision
type GateReason string

const (
	ReasonNone        GateReason = "none"
	ReasonIssues      GateReason = "issues"
	ReasonTests       GateReason = "tests"
	ReasonTimeout     GateReason = "timeout"
	ReasonToolFailure GateReason = "tool-failure"
	ReasonError       GateReason = "error"
)

// GateMode selects which files the quality stream covers
type GateMode string

const (
	// GateModePreCommit checks the whole project before the commit happens
	GateModePreCommit GateMode = "pre-commit"
	// GateModePostCommit checks only the files changed by the last commit
	GateModePostCommit GateMode = "post-commit"
)

// GatePolicy decides whether a BLOCK stops the commit
type GatePolicy string

const (
	PolicyBlock GatePolicy = "block"
	PolicyWarn  GatePolicy = "warn"
)

// StreamOutcome is the result of one of the two concurrent gate streams
type StreamOutcome struct {
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration_ns"`
	Output   string        `json:"output,omitempty"`
	Err      string        `json:"error,omitempty"`
	TimedOut bool          `json:"timed_out"`
	// Report is the quality stream's aggregate, nil for the test stream
	Report *AggregateReport `json:"-"`
}

// GateDecision is the result of one commit attempt
type GateDecision struct {
	ID            string        `json:"id"`
	Command       string        `json:"command"`
	Mode          GateMode      `json:"mode"`
	Check         StreamOutcome `json:"check"`
	Tests         StreamOutcome `json:"tests"`
	Outcome       Outcome       `json:"outcome"`
	Reason        GateReason    `json:"reason"`
	FailureDetail string        `json:"failure_detail,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
	StartedAt     time.Time     `json:"started_at"`
}

// Allowed reports whether the commit may proceed
func (d *GateDecision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}

// TestRunResult is what the external test runner reported
type TestRunResult struct {
	Success  bool
	Duration time.Duration
	Output   string
}

// TestRunner runs the project's test suite
type TestRunner interface {
	Run(ctx context.Context, paths []string) TestRunResult
}
