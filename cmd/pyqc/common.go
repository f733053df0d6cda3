package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ludo-technologies/pyqc/app"
	"github.com/ludo-technologies/pyqc/internal/config"
	"github.com/ludo-technologies/pyqc/internal/logging"
	"github.com/ludo-technologies/pyqc/service"
)

// Exit codes shared by every command
const (
	exitOK     = 0
	exitIssues = 1
	exitError  = 2
)

// CheckExitError is a custom error type for command exit codes
type CheckExitError struct {
	Code    int
	Message string
}

func (e *CheckExitError) Error() string {
	return e.Message
}

// toExitError maps an engine error to exit code 2
func toExitError(err error) *CheckExitError {
	return &CheckExitError{Code: exitError, Message: err.Error()}
}

// addConfigFlags registers the flags every engine-backed command shares
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "Path to config file")
	cmd.Flags().BoolP("verbose", "v", false, "Enable debug logging on stderr")
}

// loadConfig loads configuration for target and applies overrides
func loadConfig(cmd *cobra.Command, target string, overrides service.ConfigOverrides) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	overrides.Verbose, _ = cmd.Flags().GetBool("verbose")

	loader := service.NewConfigurationLoader()
	cfg, err := loader.LoadConfig(configPath, target)
	if err != nil {
		return nil, toExitError(err)
	}
	merged, err := loader.MergeConfig(cfg, overrides)
	if err != nil {
		return nil, toExitError(err)
	}
	return merged, nil
}

func newLogger(cfg *config.Config) *zap.Logger {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// newUseCase builds the engine for a command
func newUseCase(cfg *config.Config, progress bool, opts ...app.Option) (*app.QualityUseCase, error) {
	opts = append([]app.Option{
		app.WithLogger(newLogger(cfg)),
		app.WithProgress(service.NewProgressManager(progress)),
	}, opts...)
	uc, err := app.NewQualityUseCase(cfg, opts...)
	if err != nil {
		return nil, toExitError(err)
	}
	return uc, nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func pluralize(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// commandContext returns the command's context, which is nil when a
// command runs outside Execute
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
