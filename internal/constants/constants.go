package constants

import "time"

// Tool name and related constants
const (
	// ToolName is the name of this tool
	ToolName = "pyqc"

	// ConfigFileName is the default config file name written by init
	ConfigFileName = ".pyqc.yaml"

	// EnvVarPrefix is the prefix for environment variables
	EnvVarPrefix = "PYQC"

	// StateDirName holds logs and the cache, relative to the project root
	StateDirName = ".pyqc"
)

// Built-in checker names
const (
	CheckerRuffLint   = "ruff-lint"
	CheckerRuffFormat = "ruff-format"
	CheckerMypy       = "mypy"
)

// OutputFormatText is the default report encoding
const OutputFormatText = "text"

// Timeouts and retention
const (
	DefaultToolTimeout  = 30 * time.Second
	DefaultGateTimeout  = 30 * time.Second
	DefaultCheckTimeout = 20 * time.Second
	DefaultTestTimeout  = 25 * time.Second
	DefaultCacheTTL     = 7 * 24 * time.Hour

	// KillGracePeriod is how long a timed-out tool gets between SIGINT and SIGKILL
	KillGracePeriod = 2 * time.Second
)

// Hook log file names inside the log directory
const (
	HookLogFile = "hooks.log"
	GateLogFile = "git_hooks.log"
)

// DefaultExcludeDirs are never descended into when collecting Python files
var DefaultExcludeDirs = []string{
	".git",
	"__pycache__",
	".pytest_cache",
	".mypy_cache",
	".ruff_cache",
	".venv",
	"venv",
	"node_modules",
	".pyqc",
}
