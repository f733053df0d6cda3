package service

import (
	"cmp"
	"slices"
	"sort"
	"time"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/version"
)

// Aggregate merges pair results into one report. It does no I/O; the same
// results always give the same report apart from GeneratedAt.
func Aggregate(results []domain.CheckResult, duration time.Duration) *domain.AggregateReport {
	report := &domain.AggregateReport{
		Pairs:            len(results),
		IssuesBySeverity: make(map[domain.Severity]int),
		Issues:           []domain.Issue{},
		Files:            []domain.FileResult{},
		Failures:         []domain.CheckResult{},
		Duration:         duration,
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Version:          version.Version,
	}

	byFile := make(map[string]*domain.FileResult)
	var order []string
	for _, r := range results {
		fr, ok := byFile[r.File]
		if !ok {
			fr = &domain.FileResult{File: r.File, Issues: []domain.Issue{}}
			byFile[r.File] = fr
			order = append(order, r.File)
		}
		fr.Results = append(fr.Results, r)
		fr.Issues = append(fr.Issues, r.Issues...)

		report.Issues = append(report.Issues, r.Issues...)
		for _, is := range r.Issues {
			report.IssuesBySeverity[is.Severity]++
		}
		if !r.Success {
			report.Failures = append(report.Failures, r)
		}
		if r.Cached {
			report.CacheHits++
		}
		for _, w := range r.Warnings {
			if !slices.Contains(report.Warnings, w) {
				report.Warnings = append(report.Warnings, w)
			}
		}
	}

	sort.Strings(order)
	for _, f := range order {
		fr := byFile[f]
		slices.SortStableFunc(fr.Issues, domain.CompareIssues)
		report.Files = append(report.Files, *fr)
	}
	report.FilesChecked = len(report.Files)

	slices.SortStableFunc(report.Issues, domain.CompareIssues)
	slices.SortStableFunc(report.Failures, func(a, b domain.CheckResult) int {
		if c := cmp.Compare(a.File, b.File); c != 0 {
			return c
		}
		return cmp.Compare(a.Checker, b.Checker)
	})

	report.Success = len(report.Failures) == 0 && report.IssuesBySeverity[domain.SeverityError] == 0
	return report
}
