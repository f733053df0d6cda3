package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ludo-technologies/pyqc/domain"
)

func TestWriteJSON(t *testing.T) {
	data := map[string]interface{}{
		"name":  "test",
		"value": 42,
	}

	var buf bytes.Buffer
	err := WriteJSON(&buf, data)
	if err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	// Check that it's valid JSON
	var result map[string]interface{}
	err = json.Unmarshal(buf.Bytes(), &result)
	if err != nil {
		t.Fatalf("Failed to parse output as JSON: %v", err)
	}

	if result["name"] != "test" {
		t.Errorf("Expected name to be 'test', got %v", result["name"])
	}
}

// sampleReport builds the report of two files where ruff found an unused
// import, mypy a type error and ruff-format failed to run on one file.
func sampleReport() *domain.AggregateReport {
	results := []domain.CheckResult{
		{
			File: "src/a.py", Checker: "ruff", Success: true, Duration: 40 * time.Millisecond,
			Issues: []domain.Issue{{
				File: "src/a.py", Line: 1, Column: domain.IntPtr(8), Severity: domain.SeverityError,
				Message: "`os` imported but unused", Code: "F401", Checker: "ruff", Fixable: true,
			}},
		},
		{
			File: "src/a.py", Checker: "mypy", Success: true, Duration: 300 * time.Millisecond,
			Issues: []domain.Issue{{
				File: "src/a.py", Line: 4, Severity: domain.SeverityWarning,
				Message: "Missing return statement, line: 4", Code: "return", Checker: "mypy",
			}},
		},
		{File: "src/b.py", Checker: "ruff", Success: true, Issues: []domain.Issue{}, Cached: true},
		{
			File: "src/b.py", Checker: "ruff-format", Issues: []domain.Issue{},
			Error: domain.NewExecutionError("ruff-format", "src/b.py", 2, "unexpected exit code", errors.New("boom")),
		},
	}
	report := Aggregate(results, 2*time.Second)
	report.CacheMisses = 3
	return report
}

func TestOutputFormatterWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := NewOutputFormatter().Write(sampleReport(), domain.OutputFormatText, &buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out := buf.String()

	expected := []string{
		"=== pyqc Quality Report ===",
		"src/a.py:",
		"  1:8 error [ruff F401] `os` imported but unused (fixable)",
		"  4 warning [mypy return] Missing return statement, line: 4",
		"Files:",
		"  src/b.py: failed",
		"Execution Failures:",
		"src/b.py [ruff-format]",
		"Total issues: 2",
		"Errors: 1",
		"Fixable: 1",
		"Result: FAILED",
	}
	for _, s := range expected {
		if !strings.Contains(out, s) {
			t.Errorf("text output missing %q\n%s", s, out)
		}
	}
	if strings.Contains(out, "Performance:") {
		t.Error("performance block should be off by default")
	}
}

func TestOutputFormatterWriteTextPerformance(t *testing.T) {
	var buf bytes.Buffer
	f := NewOutputFormatter(WithPerformanceBlock(true))
	if err := f.Write(sampleReport(), domain.OutputFormatText, &buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out := buf.String()
	for _, s := range []string{"Performance:", "Checks run: 4", "Cache: 1 hit(s), 3 miss(es) (25%)", "Throughput: 1.0 files/s", "Slowest: src/a.py (mypy) 300ms"} {
		if !strings.Contains(out, s) {
			t.Errorf("performance block missing %q\n%s", s, out)
		}
	}
}

func TestOutputFormatterWriteTextClean(t *testing.T) {
	report := Aggregate([]domain.CheckResult{
		{File: "a.py", Checker: "ruff", Success: true, Issues: []domain.Issue{}},
	}, time.Millisecond)

	var buf bytes.Buffer
	if err := NewOutputFormatter().Write(report, domain.OutputFormatText, &buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Result: PASSED") {
		t.Errorf("expected PASSED, got\n%s", out)
	}
	if strings.Contains(out, "Files:") {
		t.Error("single-file run should not list per-file lines")
	}
}

func TestOutputFormatterWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := NewOutputFormatter().Write(sampleReport(), domain.OutputFormatJSON, &buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var decoded ReportJSON
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Summary.TotalIssues != 2 || decoded.Summary.Errors != 1 || decoded.Summary.Warnings != 1 {
		t.Errorf("unexpected summary: %+v", decoded.Summary)
	}
	if decoded.Summary.ByChecker["ruff"] != 1 || decoded.Summary.ByChecker["mypy"] != 1 {
		t.Errorf("unexpected by_checker: %v", decoded.Summary.ByChecker)
	}
	if decoded.Summary.Success {
		t.Error("summary.success should be false")
	}
	if len(decoded.Issues) != 2 || decoded.Issues[0].Code != "F401" {
		t.Errorf("issues not in report order: %+v", decoded.Issues)
	}
	if decoded.Issues[1].Column != nil {
		t.Error("absent column should stay absent")
	}
	if len(decoded.Failures) != 1 || decoded.Failures[0].Kind != domain.KindExecution || decoded.Failures[0].ExitCode != 2 {
		t.Errorf("unexpected failures: %+v", decoded.Failures)
	}
	if decoded.DurationMs != 2000 {
		t.Errorf("expected duration_ms 2000, got %d", decoded.DurationMs)
	}

	// top-level keys consumers rely on
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"summary", "issues", "failures", "performance"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing top-level key %q", key)
		}
	}
}

func TestOutputFormatterWriteGitHub(t *testing.T) {
	var buf bytes.Buffer
	if err := NewOutputFormatter().Write(sampleReport(), domain.OutputFormatGitHub, &buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 annotations, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "::error file=src/a.py,line=1,col=8::[ruff F401] `os` imported but unused" {
		t.Errorf("unexpected first annotation: %s", lines[0])
	}
	if lines[1] != "::warning file=src/a.py,line=4::[mypy return] Missing return statement, line: 4" {
		t.Errorf("unexpected second annotation: %s", lines[1])
	}
	if !strings.HasPrefix(lines[2], "::error file=src/b.py::") {
		t.Errorf("expected failure annotation, got: %s", lines[2])
	}
}

func TestAnnotationLevel(t *testing.T) {
	tests := map[domain.Severity]string{
		domain.SeverityError:   "error",
		domain.SeverityWarning: "warning",
		domain.SeverityInfo:    "notice",
		domain.SeverityNote:    "notice",
	}
	for sev, want := range tests {
		if got := annotationLevel(sev); got != want {
			t.Errorf("annotationLevel(%s) = %s, want %s", sev, got, want)
		}
	}
}

func TestGitHubEscaping(t *testing.T) {
	if got := escapeData("50% done\nnext"); got != "50%25 done%0Anext" {
		t.Errorf("escapeData: %q", got)
	}
	if got := escapeProperty("a,b:c.py"); got != "a%2Cb%3Ac.py" {
		t.Errorf("escapeProperty: %q", got)
	}
}

func TestOutputFormatterUnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := NewOutputFormatter().Write(sampleReport(), domain.OutputFormat("xml"), &buf); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestOutputFormatterWriteSARIF(t *testing.T) {
	var buf bytes.Buffer
	if err := NewOutputFormatter().Write(sampleReport(), domain.OutputFormatSARIF, &buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var doc struct {
		Version string `json:"version"`
		Runs    []struct {
			Tool struct {
				Driver struct {
					Name  string `json:"name"`
					Rules []struct {
						ID string `json:"id"`
					} `json:"rules"`
				} `json:"driver"`
			} `json:"tool"`
			Results []struct {
				RuleID    string `json:"ruleId"`
				Level     string `json:"level"`
				Locations []struct {
					PhysicalLocation struct {
						ArtifactLocation struct {
							URI string `json:"uri"`
						} `json:"artifactLocation"`
						Region struct {
							StartLine   int `json:"startLine"`
							StartColumn int `json:"startColumn"`
						} `json:"region"`
					} `json:"physicalLocation"`
				} `json:"locations"`
			} `json:"results"`
			Invocations []struct {
				ExecutionSuccessful bool `json:"executionSuccessful"`
			} `json:"invocations"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid SARIF JSON: %v", err)
	}
	if doc.Version != "2.1.0" {
		t.Errorf("expected SARIF 2.1.0, got %s", doc.Version)
	}
	if len(doc.Runs) != 3 {
		t.Fatalf("expected one run per checker (3), got %d", len(doc.Runs))
	}

	// runs are sorted by checker name
	mypy, ruff, format := doc.Runs[0], doc.Runs[1], doc.Runs[2]
	if mypy.Tool.Driver.Name != "mypy" || ruff.Tool.Driver.Name != "ruff" || format.Tool.Driver.Name != "ruff-format" {
		t.Fatalf("unexpected run order: %s %s %s", mypy.Tool.Driver.Name, ruff.Tool.Driver.Name, format.Tool.Driver.Name)
	}
	if len(ruff.Results) != 1 || ruff.Results[0].RuleID != "F401" || ruff.Results[0].Level != "error" {
		t.Errorf("unexpected ruff results: %+v", ruff.Results)
	}
	loc := ruff.Results[0].Locations[0].PhysicalLocation
	if loc.ArtifactLocation.URI != "src/a.py" || loc.Region.StartLine != 1 || loc.Region.StartColumn != 8 {
		t.Errorf("unexpected location: %+v", loc)
	}
	if len(mypy.Results) != 1 || mypy.Results[0].Level != "warning" {
		t.Errorf("unexpected mypy results: %+v", mypy.Results)
	}
	if len(format.Results) != 0 || len(format.Invocations) != 1 || format.Invocations[0].ExecutionSuccessful {
		t.Errorf("failed checker should carry an unsuccessful invocation: %+v", format)
	}
}

func TestOutputFormatterWriteFixText(t *testing.T) {
	report := &domain.FixReport{
		Files: []domain.FileFix{
			{File: "b.py", Applied: []string{"ruff-format", "ruff"}, Changed: true},
			{File: "a.py", Applied: []string{}, Error: "[execution] ruff: boom"},
		},
		FixedFiles:  1,
		FailedFiles: 1,
		Duration:    120 * time.Millisecond,
	}

	var buf bytes.Buffer
	if err := NewOutputFormatter().WriteFix(report, domain.OutputFormatText, &buf); err != nil {
		t.Fatalf("WriteFix failed: %v", err)
	}
	out := buf.String()
	for _, s := range []string{"=== pyqc Fix ===", "b.py: fixed (ruff-format, ruff)", "a.py: error:", "Fixed: 1", "Failed: 1"} {
		if !strings.Contains(out, s) {
			t.Errorf("fix output missing %q\n%s", s, out)
		}
	}
	if strings.Index(out, "a.py") > strings.Index(out, "b.py") {
		t.Error("files should be listed in path order")
	}
}

func TestOutputFormatterWriteFixDryRun(t *testing.T) {
	report := &domain.FixReport{
		DryRun: true,
		Files:  []domain.FileFix{{File: "a.py", Applied: []string{}, Fixable: 3}},
	}

	var buf bytes.Buffer
	if err := NewOutputFormatter().WriteFix(report, domain.OutputFormatText, &buf); err != nil {
		t.Fatalf("WriteFix failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "(dry run)") || !strings.Contains(out, "a.py: 3 fixable issue(s)") || !strings.Contains(out, "Fixable issues: 3") {
		t.Errorf("unexpected dry-run output:\n%s", out)
	}

	if err := NewOutputFormatter().WriteFix(report, domain.OutputFormatSARIF, &buf); err == nil {
		t.Error("SARIF is not a fix report format")
	}
}
