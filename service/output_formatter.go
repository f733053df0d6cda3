package service

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ludo-technologies/pyqc/domain"
)

// OutputFormatterImpl implements the OutputFormatter interface
type OutputFormatterImpl struct {
	showPerformance bool
}

// FormatterOption configures an OutputFormatterImpl
type FormatterOption func(*OutputFormatterImpl)

// WithPerformanceBlock appends timing and throughput figures to text output
func WithPerformanceBlock(show bool) FormatterOption {
	return func(f *OutputFormatterImpl) { f.showPerformance = show }
}

// NewOutputFormatter creates a new output formatter
func NewOutputFormatter(opts ...FormatterOption) *OutputFormatterImpl {
	f := &OutputFormatterImpl{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WriteJSON writes data as JSON to the writer
func WriteJSON(writer io.Writer, data interface{}) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// ReportJSON is the JSON encoding of an aggregate report
type ReportJSON struct {
	Version     string           `json:"version"`
	GeneratedAt string           `json:"generated_at"`
	DurationMs  int64            `json:"duration_ms"`
	Summary     SummaryJSON      `json:"summary"`
	Issues      []domain.Issue   `json:"issues"`
	Failures    []FailureJSON    `json:"failures"`
	Warnings    []string         `json:"warnings,omitempty"`
	Performance *PerformanceJSON `json:"performance,omitempty"`
}

// SummaryJSON holds the report totals
type SummaryJSON struct {
	FilesChecked int            `json:"files_checked"`
	TotalIssues  int            `json:"total_issues"`
	Errors       int            `json:"errors"`
	Warnings     int            `json:"warnings"`
	Info         int            `json:"info"`
	Notes        int            `json:"notes"`
	Fixable      int            `json:"fixable"`
	ByChecker    map[string]int `json:"by_checker"`
	Failures     int            `json:"failures"`
	Success      bool           `json:"success"`
}

// FailureJSON describes a pair that did not run normally
type FailureJSON struct {
	File     string           `json:"file"`
	Checker  string           `json:"checker"`
	Kind     domain.ErrorKind `json:"kind"`
	Message  string           `json:"message"`
	ExitCode int              `json:"exit_code,omitempty"`
}

// PerformanceJSON holds run timing figures
type PerformanceJSON struct {
	Pairs          int     `json:"pairs"`
	CacheHits      int     `json:"cache_hits"`
	CacheMisses    int     `json:"cache_misses"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	FilesPerSecond float64 `json:"files_per_second"`
	AvgFileMs      float64 `json:"avg_file_ms"`
	SlowestPair    string  `json:"slowest_pair,omitempty"`
	SlowestPairMs  int64   `json:"slowest_pair_ms,omitempty"`
}

// Write writes the report in the specified format
func (f *OutputFormatterImpl) Write(report *domain.AggregateReport, format domain.OutputFormat, writer io.Writer) error {
	switch format {
	case domain.OutputFormatJSON:
		return f.writeJSON(report, writer)
	case domain.OutputFormatText:
		return f.writeText(report, writer)
	case domain.OutputFormatGitHub:
		return f.writeGitHub(report, writer)
	case domain.OutputFormatSARIF:
		return WriteSARIF(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteFix writes a fix report as text or JSON
func (f *OutputFormatterImpl) WriteFix(report *domain.FixReport, format domain.OutputFormat, writer io.Writer) error {
	switch format {
	case domain.OutputFormatJSON:
		return WriteJSON(writer, report)
	case domain.OutputFormatText:
		return f.writeFixText(report, writer)
	default:
		return fmt.Errorf("unsupported output format for fix: %s", format)
	}
}

func buildSummary(report *domain.AggregateReport) SummaryJSON {
	s := SummaryJSON{
		FilesChecked: report.FilesChecked,
		TotalIssues:  report.TotalIssues(),
		Errors:       report.IssuesBySeverity[domain.SeverityError],
		Warnings:     report.IssuesBySeverity[domain.SeverityWarning],
		Info:         report.IssuesBySeverity[domain.SeverityInfo],
		Notes:        report.IssuesBySeverity[domain.SeverityNote],
		Fixable:      report.FixableCount(),
		ByChecker:    make(map[string]int),
		Failures:     len(report.Failures),
		Success:      report.Success,
	}
	for _, is := range report.Issues {
		s.ByChecker[is.Checker]++
	}
	return s
}

func buildPerformance(report *domain.AggregateReport) *PerformanceJSON {
	p := &PerformanceJSON{
		Pairs:       report.Pairs,
		CacheHits:   report.CacheHits,
		CacheMisses: report.CacheMisses,
	}
	if lookups := report.CacheHits + report.CacheMisses; lookups > 0 {
		p.CacheHitRate = float64(report.CacheHits) / float64(lookups)
	}
	if secs := report.Duration.Seconds(); secs > 0 {
		p.FilesPerSecond = float64(report.FilesChecked) / secs
	}
	if report.FilesChecked > 0 {
		p.AvgFileMs = float64(report.Duration.Milliseconds()) / float64(report.FilesChecked)
	}

	var slowest time.Duration
	for _, fr := range report.Files {
		for _, r := range fr.Results {
			if r.Duration > slowest {
				slowest = r.Duration
				p.SlowestPair = r.File + " (" + r.Checker + ")"
			}
		}
	}
	p.SlowestPairMs = slowest.Milliseconds()
	return p
}

func buildFailures(report *domain.AggregateReport) []FailureJSON {
	out := make([]FailureJSON, 0, len(report.Failures))
	for _, r := range report.Failures {
		fj := FailureJSON{File: r.File, Checker: r.Checker, Kind: domain.KindExecution}
		if r.Error != nil {
			fj.Kind = r.Error.Kind
			fj.Message = r.Error.Error()
			fj.ExitCode = r.Error.ExitCode
		}
		out = append(out, fj)
	}
	return out
}

// writeJSON writes the report as JSON
func (f *OutputFormatterImpl) writeJSON(report *domain.AggregateReport, writer io.Writer) error {
	return WriteJSON(writer, ReportJSON{
		Version:     report.Version,
		GeneratedAt: report.GeneratedAt,
		DurationMs:  report.Duration.Milliseconds(),
		Summary:     buildSummary(report),
		Issues:      report.Issues,
		Failures:    buildFailures(report),
		Warnings:    report.Warnings,
		Performance: buildPerformance(report),
	})
}

// writeText writes the report as plain text
func (f *OutputFormatterImpl) writeText(report *domain.AggregateReport, writer io.Writer) error {
	fmt.Fprintf(writer, "\n=== pyqc Quality Report ===\n\n")
	fmt.Fprintf(writer, "Generated: %s\n", report.GeneratedAt)
	fmt.Fprintf(writer, "Version: %s\n\n", report.Version)

	for _, fr := range report.Files {
		if len(fr.Issues) == 0 {
			continue
		}
		fmt.Fprintf(writer, "%s:\n", fr.File)
		for _, is := range fr.Issues {
			fmt.Fprintf(writer, "  %s\n", formatIssueLine(is))
		}
		fmt.Fprintf(writer, "\n")
	}

	// Per-file lines only help once there is more than one file
	if len(report.Files) > 1 {
		fmt.Fprintf(writer, "Files:\n")
		for _, fr := range report.Files {
			status := "ok"
			switch {
			case !fr.Success():
				status = "failed"
			case len(fr.Issues) > 0:
				status = fmt.Sprintf("%d issue(s)", len(fr.Issues))
			}
			fmt.Fprintf(writer, "  %s: %s\n", fr.File, status)
		}
		fmt.Fprintf(writer, "\n")
	}

	if len(report.Failures) > 0 {
		fmt.Fprintf(writer, "Execution Failures:\n")
		for _, r := range report.Failures {
			msg := "failed"
			if r.Error != nil {
				msg = r.Error.Error()
			}
			fmt.Fprintf(writer, "  - %s [%s]: %s\n", r.File, r.Checker, msg)
		}
		fmt.Fprintf(writer, "\n")
	}

	if len(report.Warnings) > 0 {
		fmt.Fprintf(writer, "Warnings:\n")
		for _, w := range report.Warnings {
			fmt.Fprintf(writer, "  - %s\n", w)
		}
		fmt.Fprintf(writer, "\n")
	}

	s := buildSummary(report)
	fmt.Fprintf(writer, "Summary:\n")
	fmt.Fprintf(writer, "  Files checked: %d\n", s.FilesChecked)
	fmt.Fprintf(writer, "  Total issues: %d\n", s.TotalIssues)
	fmt.Fprintf(writer, "  Errors: %d\n", s.Errors)
	fmt.Fprintf(writer, "  Warnings: %d\n", s.Warnings)
	if s.Info+s.Notes > 0 {
		fmt.Fprintf(writer, "  Info: %d\n", s.Info+s.Notes)
	}
	if s.Fixable > 0 {
		fmt.Fprintf(writer, "  Fixable: %d (run `pyqc fix`)\n", s.Fixable)
	}
	if s.Failures > 0 {
		fmt.Fprintf(writer, "  Execution failures: %d\n", s.Failures)
	}
	if report.Success {
		fmt.Fprintf(writer, "  Result: PASSED\n")
	} else {
		fmt.Fprintf(writer, "  Result: FAILED\n")
	}

	if f.showPerformance {
		p := buildPerformance(report)
		fmt.Fprintf(writer, "\nPerformance:\n")
		fmt.Fprintf(writer, "  Duration: %dms\n", report.Duration.Milliseconds())
		fmt.Fprintf(writer, "  Checks run: %d\n", p.Pairs)
		fmt.Fprintf(writer, "  Cache: %d hit(s), %d miss(es) (%.0f%%)\n", p.CacheHits, p.CacheMisses, p.CacheHitRate*100)
		fmt.Fprintf(writer, "  Throughput: %.1f files/s\n", p.FilesPerSecond)
		fmt.Fprintf(writer, "  Average per file: %.1fms\n", p.AvgFileMs)
		if p.SlowestPair != "" {
			fmt.Fprintf(writer, "  Slowest: %s %dms\n", p.SlowestPair, p.SlowestPairMs)
		}
	}

	return nil
}

func formatIssueLine(is domain.Issue) string {
	var sb strings.Builder
	if is.HasColumn() {
		fmt.Fprintf(&sb, "%d:%d", is.Line, *is.Column)
	} else {
		fmt.Fprintf(&sb, "%d", is.Line)
	}
	fmt.Fprintf(&sb, " %s [%s", is.Severity, is.Checker)
	if is.Code != "" {
		sb.WriteString(" ")
		sb.WriteString(is.Code)
	}
	sb.WriteString("] ")
	sb.WriteString(is.Message)
	if is.Fixable {
		sb.WriteString(" (fixable)")
	}
	return sb.String()
}

// writeGitHub writes one workflow command per issue and failure
func (f *OutputFormatterImpl) writeGitHub(report *domain.AggregateReport, writer io.Writer) error {
	for _, is := range report.Issues {
		props := fmt.Sprintf("file=%s,line=%d", escapeProperty(is.File), is.Line)
		if is.HasColumn() {
			props += fmt.Sprintf(",col=%d", *is.Column)
		}
		msg := is.Message
		if is.Code != "" {
			msg = fmt.Sprintf("[%s %s] %s", is.Checker, is.Code, msg)
		} else {
			msg = fmt.Sprintf("[%s] %s", is.Checker, msg)
		}
		if _, err := fmt.Fprintf(writer, "::%s %s::%s\n", annotationLevel(is.Severity), props, escapeData(msg)); err != nil {
			return err
		}
	}
	for _, r := range report.Failures {
		msg := r.Checker + " failed"
		if r.Error != nil {
			msg = r.Error.Error()
		}
		if _, err := fmt.Fprintf(writer, "::error file=%s::%s\n", escapeProperty(r.File), escapeData(msg)); err != nil {
			return err
		}
	}
	return nil
}

func annotationLevel(s domain.Severity) string {
	switch s {
	case domain.SeverityError:
		return "error"
	case domain.SeverityWarning:
		return "warning"
	default:
		return "notice"
	}
}

var (
	dataEscaper     = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A")
	propertyEscaper = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A", ":", "%3A", ",", "%2C")
)

func escapeData(s string) string     { return dataEscaper.Replace(s) }
func escapeProperty(s string) string { return propertyEscaper.Replace(s) }

// writeFixText writes a fix report as plain text
func (f *OutputFormatterImpl) writeFixText(report *domain.FixReport, writer io.Writer) error {
	if report.DryRun {
		fmt.Fprintf(writer, "\n=== pyqc Fix (dry run) ===\n\n")
	} else {
		fmt.Fprintf(writer, "\n=== pyqc Fix ===\n\n")
	}

	files := make([]domain.FileFix, len(report.Files))
	copy(files, report.Files)
	sort.SliceStable(files, func(i, j int) bool { return files[i].File < files[j].File })

	fixable := 0
	for _, ff := range files {
		switch {
		case ff.Error != "":
			fmt.Fprintf(writer, "  %s: error: %s\n", ff.File, ff.Error)
		case report.DryRun && ff.Fixable > 0:
			fmt.Fprintf(writer, "  %s: %d fixable issue(s)\n", ff.File, ff.Fixable)
		case ff.Changed:
			fmt.Fprintf(writer, "  %s: fixed (%s)\n", ff.File, strings.Join(ff.Applied, ", "))
		}
		fixable += ff.Fixable
	}

	fmt.Fprintf(writer, "\nSummary:\n")
	fmt.Fprintf(writer, "  Files: %d\n", len(files))
	if report.DryRun {
		fmt.Fprintf(writer, "  Fixable issues: %d\n", fixable)
	} else {
		fmt.Fprintf(writer, "  Fixed: %d\n", report.FixedFiles)
	}
	if report.FailedFiles > 0 {
		fmt.Fprintf(writer, "  Failed: %d\n", report.FailedFiles)
	}
	fmt.Fprintf(writer, "  Duration: %dms\n", report.Duration.Milliseconds())
	return nil
}
