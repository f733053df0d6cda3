package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind tags the category of a QualityError
type ErrorKind string

const (
	// KindConfiguration is an invalid or unreadable configuration. Aborts the run.
	KindConfiguration ErrorKind = "configuration"
	// KindToolUnavailable is a checker executable that cannot be found. Aborts the run.
	KindToolUnavailable ErrorKind = "tool_unavailable"
	// KindExecution is a tool that ran but failed outside its issue-reporting convention.
	KindExecution ErrorKind = "execution"
	// KindParse is tool output that could not be interpreted. Never surfaced as a failure.
	KindParse ErrorKind = "parse"
	// KindTimeout is a tool invocation that exceeded its time budget.
	KindTimeout ErrorKind = "timeout"
	// KindCacheCorruption is an unreadable cache entry. Treated as a miss.
	KindCacheCorruption ErrorKind = "cache_corruption"
)

// QualityError is the single error type produced by the engine
type QualityError struct {
	Kind       ErrorKind     `json:"kind"`
	Message    string        `json:"message"`
	Checker    string        `json:"checker,omitempty"`
	File       string        `json:"file,omitempty"`
	ConfigPath string        `json:"config_path,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty"`
	ExitCode   int           `json:"exit_code,omitempty"`
	Cause      error         `json:"-"`
}

// Error implements the error interface
func (e *QualityError) Error() string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(string(e.Kind))
	sb.WriteString("] ")
	if e.Checker != "" {
		sb.WriteString(e.Checker)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.File != "" {
		sb.WriteString(" (")
		sb.WriteString(e.File)
		sb.WriteString(")")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause
func (e *QualityError) Unwrap() error {
	return e.Cause
}

// Aborts reports whether this error must stop the whole run
func (e *QualityError) Aborts() bool {
	return e.Kind == KindConfiguration || e.Kind == KindToolUnavailable
}

// IsKind reports whether err is (or wraps) a QualityError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var qe *QualityError
	if errors.As(err, &qe) {
		return qe.Kind == kind
	}
	return false
}

// AsQualityError extracts a QualityError from err
func AsQualityError(err error) (*QualityError, bool) {
	var qe *QualityError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

// NewConfigError creates a configuration error
func NewConfigError(path, message string, cause error) *QualityError {
	return &QualityError{Kind: KindConfiguration, ConfigPath: path, Message: message, Cause: cause}
}

// NewToolUnavailableError creates an error for a missing checker executable
func NewToolUnavailableError(checker, executable string, cause error) *QualityError {
	return &QualityError{
		Kind:    KindToolUnavailable,
		Checker: checker,
		Message: fmt.Sprintf("executable %q not found", executable),
		Cause:   cause,
	}
}

// NewExecutionError creates an error for an abnormal tool run
func NewExecutionError(checker, file string, exitCode int, message string, cause error) *QualityError {
	return &QualityError{
		Kind:     KindExecution,
		Checker:  checker,
		File:     file,
		ExitCode: exitCode,
		Message:  message,
		Cause:    cause,
	}
}

// NewParseError creates an error for uninterpretable tool output
func NewParseError(checker, file, message string, cause error) *QualityError {
	return &QualityError{Kind: KindParse, Checker: checker, File: file, Message: message, Cause: cause}
}

// NewTimeoutError creates an error for a tool invocation that ran out of time
func NewTimeoutError(checker, file string, timeout time.Duration) *QualityError {
	return &QualityError{
		Kind:    KindTimeout,
		Checker: checker,
		File:    file,
		Timeout: timeout,
		Message: fmt.Sprintf("timed out after %s", timeout),
	}
}

// NewCacheCorruptionError creates an error for an unreadable cache entry
func NewCacheCorruptionError(key string, cause error) *QualityError {
	return &QualityError{Kind: KindCacheCorruption, Message: "corrupt cache entry " + key, Cause: cause}
}
