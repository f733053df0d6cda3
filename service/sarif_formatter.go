package service

import (
	"fmt"
	"io"
	"sort"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/ludo-technologies/pyqc/domain"
)

const pyqcInformationURI = "https://github.com/ludo-technologies/pyqc"

// WriteSARIF encodes the report as SARIF 2.1.0 with one run per checker.
// Execution failures become tool notifications of the affected run.
func WriteSARIF(report *domain.AggregateReport, writer io.Writer) error {
	doc, err := sarif.New(sarif.Version210)
	if err != nil {
		return fmt.Errorf("failed to create SARIF report: %w", err)
	}

	byChecker := make(map[string][]domain.Issue)
	for _, is := range report.Issues {
		byChecker[is.Checker] = append(byChecker[is.Checker], is)
	}
	failures := make(map[string][]domain.CheckResult)
	for _, r := range report.Failures {
		failures[r.Checker] = append(failures[r.Checker], r)
	}

	names := make([]string, 0, len(byChecker))
	for name := range byChecker {
		names = append(names, name)
	}
	for name := range failures {
		if _, ok := byChecker[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		run := sarif.NewRunWithInformationURI(name, pyqcInformationURI)
		seen := make(map[string]bool)
		for _, is := range byChecker[name] {
			ruleID := is.Code
			if ruleID == "" {
				ruleID = name
			}
			if !seen[ruleID] {
				run.AddRule(ruleID).
					WithDescription(fmt.Sprintf("%s %s", name, ruleID)).
					WithDefaultConfiguration(&sarif.ReportingConfiguration{
						Level: sarifLevel(is.Severity),
					})
				seen[ruleID] = true
			}

			region := sarif.NewRegion().WithStartLine(is.Line)
			if is.HasColumn() {
				region = region.WithStartColumn(*is.Column)
			}
			location := sarif.NewLocation().WithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewArtifactLocation().WithUri(is.File)).
					WithRegion(region),
			)
			result := sarif.NewRuleResult(ruleID).
				WithMessage(sarif.NewTextMessage(is.Message)).
				WithLevel(sarifLevel(is.Severity)).
				WithLocations([]*sarif.Location{location})
			run.AddResult(result)
		}

		if fs := failures[name]; len(fs) > 0 {
			notes := make([]*sarif.Notification, 0, len(fs))
			for _, r := range fs {
				msg := name + " failed on " + r.File
				if r.Error != nil {
					msg = r.Error.Error()
				}
				notes = append(notes, sarif.NewNotification().
					WithLevel("error").
					WithMessage(sarif.NewTextMessage(msg)))
			}
			run.AddInvocations(sarif.NewInvocation().
				WithExecutionSuccess(false).
				WithToolExecutionNotifications(notes))
		}

		doc.AddRun(run)
	}

	return doc.PrettyWrite(writer)
}

func sarifLevel(s domain.Severity) string {
	switch s {
	case domain.SeverityError:
		return "error"
	case domain.SeverityWarning:
		return "warning"
	default:
		return "note"
	}
}
