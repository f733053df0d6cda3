package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ludo-technologies/pyqc/domain"
	"github.com/ludo-technologies/pyqc/internal/constants"
	"github.com/ludo-technologies/pyqc/internal/hooklog"
	"github.com/ludo-technologies/pyqc/internal/metrics"
)

// CheckRunner is the quality stream's entry point
type CheckRunner interface {
	RunChecks(ctx context.Context, files []string, opts domain.CheckOptions) (*domain.AggregateReport, error)
}

// FileSource lists the files the quality stream covers in a given mode
type FileSource func(ctx context.Context, mode domain.GateMode) ([]string, error)

// GateTimeouts bounds the gate. Total is the combined budget across both
// streams; Check and Test bound each stream on its own.
type GateTimeouts struct {
	Total time.Duration
	Check time.Duration
	Test  time.Duration
}

func (t GateTimeouts) withDefaults() GateTimeouts {
	if t.Total <= 0 {
		t.Total = constants.DefaultGateTimeout
	}
	if t.Check <= 0 {
		t.Check = constants.DefaultCheckTimeout
	}
	if t.Test <= 0 {
		t.Test = constants.DefaultTestTimeout
	}
	return t
}

// GateOption configures a Gate
type GateOption func(*Gate)

// WithGateLog records every decision in log
func WithGateLog(log *hooklog.Logger) GateOption {
	return func(g *Gate) { g.log = log }
}

// WithGateMetrics sets the metrics sink
func WithGateMetrics(m *metrics.Metrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

// WithGateLogger sets the diagnostic logger
func WithGateLogger(l *zap.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// WithGateMode selects pre-commit or post-commit file coverage
func WithGateMode(mode domain.GateMode) GateOption {
	return func(g *Gate) { g.mode = mode }
}

// WithGateTimeouts overrides the default budgets
func WithGateTimeouts(t GateTimeouts) GateOption {
	return func(g *Gate) { g.timeouts = t.withDefaults() }
}

// WithCheckOptions sets the options the quality stream runs with
func WithCheckOptions(opts domain.CheckOptions) GateOption {
	return func(g *Gate) { g.checkOpts = opts }
}

// WithTransitionHook is called on every state change, under the state lock
func WithTransitionHook(fn func(from, to domain.GateState)) GateOption {
	return func(g *Gate) { g.onTransition = fn }
}

// Gate decides whether a commit may proceed by running the quality checks
// and the test suite side by side.
//
// States: IDLE -> DETECTED -> RUNNING -> PASSED|FAILED -> IDLE. Commands that
// are not commits never leave IDLE. Cycles are serialized.
type Gate struct {
	checks    CheckRunner
	tests     domain.TestRunner
	files     FileSource
	mode      domain.GateMode
	timeouts  GateTimeouts
	checkOpts domain.CheckOptions

	log          *hooklog.Logger
	metrics      *metrics.Metrics
	logger       *zap.Logger
	onTransition func(from, to domain.GateState)

	cycle sync.Mutex
	mu    sync.Mutex
	state domain.GateState
}

// NewGate creates a gate in the IDLE state
func NewGate(checks CheckRunner, tests domain.TestRunner, files FileSource, opts ...GateOption) *Gate {
	g := &Gate{
		checks:   checks,
		tests:    tests,
		files:    files,
		mode:     domain.GateModePreCommit,
		timeouts: GateTimeouts{}.withDefaults(),
		metrics:  metrics.New(),
		logger:   zap.NewNop(),
		state:    domain.GateIdle,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.tests == nil {
		g.tests = NoopTestRunner{}
	}
	return g
}

// State returns the current state
func (g *Gate) State() domain.GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) transition(to domain.GateState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	from := g.state
	g.state = to
	if g.onTransition != nil {
		g.onTransition(from, to)
	}
}

// OnCommitAttempt runs one gate cycle for command. It returns a nil decision
// and does nothing else when command is not a commit. The decision is
// returned even when recording it in the gate log fails; that failure is
// the returned error.
func (g *Gate) OnCommitAttempt(ctx context.Context, command string) (*domain.GateDecision, error) {
	if !IsCommitCommand(command) {
		return nil, nil
	}

	g.cycle.Lock()
	defer g.cycle.Unlock()

	decision := &domain.GateDecision{
		ID:        uuid.NewString(),
		Command:   command,
		Mode:      g.mode,
		StartedAt: time.Now(),
	}
	g.transition(domain.GateDetected)
	g.logger.Info("commit detected", zap.String("gate_id", decision.ID), zap.String("command", command))

	g.run(ctx, decision)

	if decision.Outcome == domain.OutcomeAllow {
		g.transition(domain.GatePassed)
	} else {
		g.transition(domain.GateFailed)
	}
	decision.Duration = time.Since(decision.StartedAt)

	g.metrics.GateDecided(string(decision.Outcome), string(decision.Reason), decision.Duration)
	logErr := g.record(decision)

	g.transition(domain.GateIdle)
	return decision, logErr
}

type checkStreamResult struct {
	report *domain.AggregateReport
	err    error
	took   time.Duration
}

type testStreamResult struct {
	res domain.TestRunResult
	err error
}

// run drives RUNNING: both streams start together and are joined on their
// results or the combined deadline, whichever comes first.
func (g *Gate) run(ctx context.Context, d *domain.GateDecision) {
	d.Check = domain.StreamOutcome{Name: "check"}
	d.Tests = domain.StreamOutcome{Name: "tests"}

	g.transition(domain.GateRunning)

	files, err := g.files(ctx, g.mode)
	if err != nil {
		d.Check.Err = err.Error()
		g.decide(d, nil, err)
		return
	}

	combined, cancel := context.WithTimeout(ctx, g.timeouts.Total)
	defer cancel()

	checkCh := make(chan checkStreamResult, 1)
	testCh := make(chan testStreamResult, 1)

	go func() {
		sctx, scancel := context.WithTimeout(combined, g.timeouts.Check)
		defer scancel()
		start := time.Now()
		report, err := g.checks.RunChecks(sctx, files, g.checkOpts)
		if err == nil && sctx.Err() != nil {
			err = sctx.Err()
		}
		checkCh <- checkStreamResult{report: report, err: err, took: time.Since(start)}
	}()

	go func() {
		sctx, scancel := context.WithTimeout(combined, g.timeouts.Test)
		defer scancel()
		res := g.tests.Run(sctx, nil)
		if sctx.Err() != nil {
			res.Success = false
		}
		testCh <- testStreamResult{res: res, err: sctx.Err()}
	}()

	var checkRes *checkStreamResult
	var testRes *testStreamResult
	for checkRes == nil || testRes == nil {
		select {
		case r := <-checkCh:
			checkRes = &r
		case r := <-testCh:
			testRes = &r
		case <-combined.Done():
			// Streams still running are abandoned and cancelled by the
			// deferred cancel; their channels are buffered.
			if errors.Is(combined.Err(), context.Canceled) {
				g.fillCheck(d, checkRes)
				g.fillTests(d, testRes)
				g.decide(d, nil, combined.Err())
				return
			}
			if checkRes == nil {
				d.Check.TimedOut = true
				d.Check.Duration = g.timeouts.Total
				d.Check.Err = fmt.Sprintf("exceeded combined budget of %s", g.timeouts.Total)
			}
			if testRes == nil {
				d.Tests.TimedOut = true
				d.Tests.Duration = g.timeouts.Total
				d.Tests.Err = fmt.Sprintf("exceeded combined budget of %s", g.timeouts.Total)
			}
			g.fillCheck(d, checkRes)
			g.fillTests(d, testRes)
			g.decide(d, nil, nil)
			return
		}
	}

	g.fillCheck(d, checkRes)
	g.fillTests(d, testRes)
	g.decide(d, checkRes.report, checkRes.err)
}

func (g *Gate) fillCheck(d *domain.GateDecision, r *checkStreamResult) {
	if r == nil {
		return
	}
	d.Check.Duration = r.took
	d.Check.Report = r.report
	switch {
	case errors.Is(r.err, context.DeadlineExceeded):
		d.Check.TimedOut = true
		d.Check.Err = fmt.Sprintf("exceeded %s", g.timeouts.Check)
	case r.err != nil:
		d.Check.Err = r.err.Error()
	case r.report != nil:
		d.Check.Success = r.report.Success
		d.Check.Output = checkSummary(r.report)
	}
}

func (g *Gate) fillTests(d *domain.GateDecision, r *testStreamResult) {
	if r == nil {
		return
	}
	d.Tests.Duration = r.res.Duration
	d.Tests.Output = r.res.Output
	d.Tests.Success = r.res.Success
	switch {
	case errors.Is(r.err, context.DeadlineExceeded):
		d.Tests.TimedOut = true
		d.Tests.Err = fmt.Sprintf("exceeded %s", g.timeouts.Test)
	case r.err != nil:
		d.Tests.Err = r.err.Error()
	}
}

// decide sets the outcome and reason. Timeouts outrank errors, which
// outrank tool failures, findings and finally failing tests.
func (g *Gate) decide(d *domain.GateDecision, report *domain.AggregateReport, checkErr error) {
	d.Outcome = domain.OutcomeBlock
	switch {
	case d.Check.TimedOut || d.Tests.TimedOut:
		d.Reason = domain.ReasonTimeout
		d.FailureDetail = timeoutDetail(d)
	case checkErr != nil:
		d.Reason = domain.ReasonError
		if domain.IsKind(checkErr, domain.KindToolUnavailable) {
			d.Reason = domain.ReasonToolFailure
		}
		d.FailureDetail = checkErr.Error()
	case report != nil && report.HasExecutionFailures():
		d.Reason = domain.ReasonToolFailure
		d.FailureDetail = failureDetail(report)
		if allTimeouts(report) {
			d.Reason = domain.ReasonTimeout
		}
	case report != nil && !report.Success:
		d.Reason = domain.ReasonIssues
		d.FailureDetail = issueDetail(report)
	case !d.Tests.Success:
		d.Reason = domain.ReasonTests
		d.FailureDetail = hooklog.Excerpt(d.Tests.Output, 300)
	default:
		d.Outcome = domain.OutcomeAllow
		d.Reason = domain.ReasonNone
	}
}

// record appends the decision to the gate log
func (g *Gate) record(d *domain.GateDecision) error {
	allowed := d.Allowed()
	if allowed {
		g.logger.Info("commit allowed", zap.String("gate_id", d.ID), zap.Duration("duration", d.Duration))
	} else {
		g.logger.Warn("commit blocked",
			zap.String("gate_id", d.ID),
			zap.String("reason", string(d.Reason)),
			zap.String("detail", d.FailureDetail))
	}
	if g.log == nil {
		return nil
	}

	entry := hooklog.Entry{
		Event:    hooklog.EventGate,
		Target:   hooklog.GateTarget,
		Command:  d.Command,
		Success:  allowed,
		Duration: d.Duration,
		Output:   streamOutput(d),
		GateID:   d.ID,
	}
	if !allowed {
		entry.Error = d.FailureDetail
		entry.Reason = string(d.Reason)
	}
	if d.Check.Report != nil {
		entry.Issues = d.Check.Report.TotalIssues()
	}
	if err := g.log.Log(entry); err != nil {
		g.logger.Warn("failed to write gate log", zap.String("path", g.log.Path()), zap.Error(err))
		return fmt.Errorf("write gate log: %w", err)
	}
	return nil
}

func checkSummary(r *domain.AggregateReport) string {
	return fmt.Sprintf("%d file(s), %d issue(s), %d error(s), %d failure(s)",
		r.FilesChecked, r.TotalIssues(), r.IssuesBySeverity[domain.SeverityError], len(r.Failures))
}

func streamOutput(d *domain.GateDecision) string {
	var parts []string
	if d.Check.Output != "" {
		parts = append(parts, "check: "+d.Check.Output)
	}
	if d.Tests.Output != "" {
		parts = append(parts, "tests: "+d.Tests.Output)
	}
	return strings.Join(parts, "\n")
}

func timeoutDetail(d *domain.GateDecision) string {
	var streams []string
	if d.Check.TimedOut {
		streams = append(streams, "check "+d.Check.Err)
	}
	if d.Tests.TimedOut {
		streams = append(streams, "tests "+d.Tests.Err)
	}
	return "timeout: " + strings.Join(streams, "; ")
}

func failureDetail(r *domain.AggregateReport) string {
	msgs := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		if f.Error != nil {
			msgs = append(msgs, f.Error.Error())
		} else {
			msgs = append(msgs, f.Checker+" failed on "+f.File)
		}
	}
	return strings.Join(msgs, "; ")
}

func allTimeouts(r *domain.AggregateReport) bool {
	for _, f := range r.Failures {
		if f.Error == nil || f.Error.Kind != domain.KindTimeout {
			return false
		}
	}
	return len(r.Failures) > 0
}

// issueDetail lists the first few error-severity findings
func issueDetail(r *domain.AggregateReport) string {
	const shown = 5
	var lines []string
	errCount := 0
	for _, is := range r.Issues {
		if is.Severity != domain.SeverityError {
			continue
		}
		errCount++
		if len(lines) < shown {
			lines = append(lines, fmt.Sprintf("%s %s %s", is.Location(), is.Code, is.Message))
		}
	}
	detail := fmt.Sprintf("%d error issue(s)", errCount)
	if len(lines) > 0 {
		detail += ": " + strings.Join(lines, "; ")
	}
	return detail
}
