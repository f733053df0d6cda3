// Package hooklog records hook executions in append-only, pipe-delimited log
// files and computes statistics from them.
//
// A line looks like
//
//	2026-10-18T09:12:44.120Z | INFO | HOOKS_EXECUTION | {"status": "SUCCESS", ...}
//
// Lines are produced by a zap console encoder and written with a single
// write on an O_APPEND descriptor, so concurrent hook processes never
// interleave partial lines.
package hooklog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ludo-technologies/pyqc/internal/constants"
)

// Events written to the logs
const (
	EventStart     = "HOOKS_START"
	EventExecution = "HOOKS_EXECUTION"
	EventGate      = "GATE_DECISION"
)

// Status values
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// GateTarget is the target recorded for commit gate entries
const GateTarget = "git-gate"

const (
	separator  = " | "
	timeLayout = "2006-01-02T15:04:05.000Z0700"
)

// Entry is one hook execution record
type Entry struct {
	Event    string
	Target   string
	Command  string
	Success  bool
	Duration time.Duration
	Output   string
	Error    string
	Reason   string
	GateID   string
	Issues   int
}

// Stats summarizes the execution entries of one log
type Stats struct {
	Total         int        `json:"total_executions"`
	Successful    int        `json:"successful_executions"`
	Failed        int        `json:"failed_executions"`
	SuccessRate   float64    `json:"success_rate"`
	MeanDurationS float64    `json:"average_execution_time"`
	LastExecution *time.Time `json:"last_execution"`
}

// Logger appends entries to one log file
type Logger struct {
	path    string
	excerpt int
	now     func() time.Time

	mu sync.Mutex
}

// New creates a logger for file name under dir. Output and error excerpts
// are cut to excerptBytes (500 when not positive).
func New(dir, name string, excerptBytes int) *Logger {
	if excerptBytes <= 0 {
		excerptBytes = 500
	}
	return &Logger{
		path:    filepath.Join(dir, name),
		excerpt: excerptBytes,
		now:     time.Now,
	}
}

// NewEditLog creates the logger for edit-time file checks
func NewEditLog(dir string, excerptBytes int) *Logger {
	return New(dir, constants.HookLogFile, excerptBytes)
}

// NewGateLog creates the logger for commit gate decisions
func NewGateLog(dir string, excerptBytes int) *Logger {
	return New(dir, constants.GateLogFile, excerptBytes)
}

// Path returns the log file path
func (l *Logger) Path() string {
	return l.path
}

func newEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		MessageKey:       "event",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.SecondsDurationEncoder,
		ConsoleSeparator: separator,
	})
}

// Start records that a hook began working on target
func (l *Logger) Start(target, command string) error {
	return l.Log(Entry{Event: EventStart, Target: target, Command: command, Success: true})
}

// Log appends one entry
func (l *Logger) Log(e Entry) error {
	if e.Event == "" {
		e.Event = EventExecution
	}

	status, level := StatusSuccess, zapcore.InfoLevel
	if !e.Success {
		status, level = StatusFailed, zapcore.ErrorLevel
	}

	fields := []zap.Field{
		zap.String("status", status),
		zap.String("target", e.Target),
		zap.String("command", e.Command),
		zap.Bool("success", e.Success),
		zap.Float64("duration_s", math.Round(e.Duration.Seconds()*1000)/1000),
	}
	if e.Issues > 0 {
		fields = append(fields, zap.Int("issues", e.Issues))
	}
	if e.Output != "" {
		fields = append(fields, zap.String("output", Excerpt(e.Output, l.excerpt)))
	}
	if e.Error != "" {
		fields = append(fields, zap.String("error", Excerpt(e.Error, l.excerpt)))
	}
	if e.Reason != "" {
		fields = append(fields, zap.String("reason", e.Reason))
	}
	if e.GateID != "" {
		fields = append(fields, zap.String("gate_id", e.GateID))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open hook log: %w", err)
	}
	defer f.Close()

	core := zapcore.NewCore(newEncoder(), zapcore.AddSync(f), zapcore.DebugLevel)
	return core.Write(zapcore.Entry{Level: level, Time: l.now(), Message: e.Event}, fields)
}

// Excerpt cuts s to at most n bytes without splitting a UTF-8 sequence
func Excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8Start(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}

// record is the JSON tail of a line
type record struct {
	Status    string  `json:"status"`
	Success   bool    `json:"success"`
	DurationS float64 `json:"duration_s"`
}

// parsedLine is a decoded log line
type parsedLine struct {
	time   time.Time
	event  string
	record record
}

func parseLine(line string) (parsedLine, bool) {
	parts := strings.SplitN(line, separator, 4)
	if len(parts) != 4 {
		return parsedLine{}, false
	}
	ts, err := time.Parse(timeLayout, parts[0])
	if err != nil {
		return parsedLine{}, false
	}
	var rec record
	if err := json.Unmarshal([]byte(parts[3]), &rec); err != nil {
		return parsedLine{}, false
	}
	return parsedLine{time: ts, event: parts[2], record: rec}, true
}

// Stats scans the log. Start entries and unparseable lines are skipped.
func (l *Logger) Stats() (Stats, error) {
	var stats Stats

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("open hook log: %w", err)
	}
	defer f.Close()

	var totalDuration float64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		p, ok := parseLine(scanner.Text())
		if !ok || p.event == EventStart {
			continue
		}
		stats.Total++
		if p.record.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
		totalDuration += p.record.DurationS
		last := p.time
		stats.LastExecution = &last
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read hook log: %w", err)
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
		stats.MeanDurationS = totalDuration / float64(stats.Total)
	}
	return stats, nil
}

// Tail returns the last n lines; n <= 0 returns every line
func (l *Logger) Tail(n int) ([]string, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read hook log: %w", err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	lines := strings.Split(text, "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Clear truncates the log to empty. A missing log is already clear.
func (l *Logger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := os.Truncate(l.path, 0)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear hook log: %w", err)
	}
	return nil
}
