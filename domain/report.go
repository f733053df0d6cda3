package domain

import (
	"context"
	"io"
	"time"
)

// OutputFormat represents the supported report encodings
type OutputFormat string

const (
	OutputFormatText   OutputFormat = "text"
	OutputFormatJSON   OutputFormat = "json"
	OutputFormatGitHub OutputFormat = "github"
	OutputFormatSARIF  OutputFormat = "sarif"
)

// AggregateReport is the merged result of a check run
type AggregateReport struct {
	FilesChecked     int              `json:"files_checked"`
	Pairs            int              `json:"pairs"`
	IssuesBySeverity map[Severity]int `json:"issues_by_severity"`
	Issues           []Issue          `json:"issues"`
	Files            []FileResult     `json:"files"`
	Failures         []CheckResult    `json:"failures"`
	Success          bool             `json:"success"`
	Duration         time.Duration    `json:"duration_ns"`
	CacheHits        int              `json:"cache_hits"`
	CacheMisses      int              `json:"cache_misses"`
	Warnings         []string         `json:"warnings,omitempty"`
	GeneratedAt      string           `json:"generated_at"`
	Version          string           `json:"version"`
}

// TotalIssues returns the number of issues across all severities
func (r *AggregateReport) TotalIssues() int {
	return len(r.Issues)
}

// HasExecutionFailures reports whether any pair failed to run normally
func (r *AggregateReport) HasExecutionFailures() bool {
	return len(r.Failures) > 0
}

// FixableCount returns how many issues an autofix could address
func (r *AggregateReport) FixableCount() int {
	n := 0
	for _, is := range r.Issues {
		if is.Fixable {
			n++
		}
	}
	return n
}

// FileFix is the outcome of fixing one file
type FileFix struct {
	File    string   `json:"file"`
	Applied []string `json:"applied"`
	Changed bool     `json:"changed"`
	// Fixable is the number of fixable issues found (dry run only)
	Fixable int    `json:"fixable,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FixReport is the result of a fix run
type FixReport struct {
	Files       []FileFix     `json:"files"`
	FixedFiles  int           `json:"fixed_files"`
	FailedFiles int           `json:"failed_files"`
	DryRun      bool          `json:"dry_run"`
	Duration    time.Duration `json:"duration_ns"`
}

// OutputFormatter renders an aggregate report
type OutputFormatter interface {
	Write(report *AggregateReport, format OutputFormat, writer io.Writer) error
}

// ProgressManager creates progress indicators for long-running work
type ProgressManager interface {
	StartTask(description string, total int) TaskProgress
	IsInteractive() bool
	Close()
}

// TaskProgress tracks one task
type TaskProgress interface {
	Increment(n int)
	Describe(description string)
	Complete()
}

// ExecutableTask is a unit of work for the worker pool
type ExecutableTask interface {
	Name() string
	Execute(ctx context.Context) error
}
