package execshell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

const (
	loggerNotConfiguredMessageConstant        = "shell executor requires a logger"
	commandRunnerNotConfiguredMessageConstant = "shell executor requires a command runner"
	commandFailedErrorTemplateConstant        = "%s exited with code %d"
	commandFailedStandardErrorTemplate        = "%s exited with code %d: %s"
	commandTimeoutErrorTemplateConstant       = "%s timed out after %s"
	commandExecutionErrorTemplateConstant     = "%s could not be executed: %v"
	logFieldCommandConstant                   = "command"
	logFieldWorkingDirectoryConstant          = "working_directory"
	logFieldExitCodeConstant                  = "exit_code"
	logFieldDurationConstant                  = "duration"
	logFieldTimeoutConstant                   = "timeout"
	logFieldStandardErrorConstant             = "stderr_tail"
)

// CommandName identifies the executable used to launch a command.
type CommandName string

// Interpreters commonly used to launch migration units.
const (
	CommandNode  CommandName = CommandName("node")
	CommandShell CommandName = CommandName("sh")
)

// ErrLoggerNotConfigured indicates that NewShellExecutor received a nil logger.
var ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)

// ErrCommandRunnerNotConfigured indicates that NewShellExecutor received a nil runner.
var ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)

// CommandDetails describes a single invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
	// Timeout bounds the process lifetime; zero disables the bound.
	Timeout time.Duration
	// StandardOutput and StandardError receive live output; nil discards it after capture.
	StandardOutput io.Writer
	StandardError  io.Writer
}

// ShellCommand pairs an executable with invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable results of executing a command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
	TimedOut       bool
	Duration       time.Duration
}

// CommandRunner launches a ShellCommand and reports its result.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// CommandEventObserver is told when a command starts, when its process ends (including a
// timeout stop), and when no process result could be obtained at all. The last case covers
// cancellation of the run, which IsInterruption distinguishes.
type CommandEventObserver interface {
	CommandStarted(command ShellCommand)
	CommandCompleted(command ShellCommand, result ExecutionResult)
	CommandExecutionFailed(command ShellCommand, failure error)
}

type discardingObserver struct{}

func (discardingObserver) CommandStarted(ShellCommand)                    {}
func (discardingObserver) CommandCompleted(ShellCommand, ExecutionResult) {}
func (discardingObserver) CommandExecutionFailed(ShellCommand, error)     {}

// CommandFailedError reports a command that exited with a non-zero code.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failed command and the tail of its standard error.
func (failure CommandFailedError) Error() string {
	label := CommandMessageFormatter{}.DescribeCommand(failure.Command)
	standardError := StandardErrorTail(failure.Result.StandardError)
	if len(standardError) == 0 {
		return fmt.Sprintf(commandFailedErrorTemplateConstant, label, failure.Result.ExitCode)
	}
	return fmt.Sprintf(commandFailedStandardErrorTemplate, label, failure.Result.ExitCode, standardError)
}

// CommandTimeoutError reports a command stopped because it exceeded its timeout.
type CommandTimeoutError struct {
	Command ShellCommand
	Timeout time.Duration
	Result  ExecutionResult
}

// Error describes the command and the timeout it exceeded.
func (failure CommandTimeoutError) Error() string {
	return fmt.Sprintf(commandTimeoutErrorTemplateConstant, CommandMessageFormatter{}.DescribeCommand(failure.Command), failure.Timeout)
}

// CommandExecutionError reports a command that could not be started or awaited.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the command and the underlying failure.
func (failure CommandExecutionError) Error() string {
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, CommandMessageFormatter{}.DescribeCommand(failure.Command), failure.Cause)
}

// Unwrap exposes the underlying failure.
func (failure CommandExecutionError) Unwrap() error {
	return failure.Cause
}

// IsInterruption reports whether failure stems from cancellation of the surrounding run rather
// than from the command itself.
func IsInterruption(failure error) bool {
	return errors.Is(failure, context.Canceled) || errors.Is(failure, context.DeadlineExceeded)
}

// ShellExecutor runs commands through a CommandRunner, logging each lifecycle stage
// and converting unsuccessful outcomes into typed errors.
type ShellExecutor struct {
	logger        *zap.Logger
	runner        CommandRunner
	eventObserver CommandEventObserver
	formatter     CommandMessageFormatter
}

// NewShellExecutor validates dependencies and constructs a ShellExecutor.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	return &ShellExecutor{
		logger:        logger,
		runner:        runner,
		eventObserver: discardingObserver{},
		formatter:     CommandMessageFormatter{},
	}, nil
}

// SetEventObserver registers the observer notified about command lifecycle events.
func (executor *ShellExecutor) SetEventObserver(observer CommandEventObserver) {
	if observer == nil {
		executor.eventObserver = discardingObserver{}
		return
	}
	executor.eventObserver = observer
}

// Execute runs the command and returns its result. Non-zero exits yield CommandFailedError,
// exceeded timeouts yield CommandTimeoutError, and launch failures yield CommandExecutionError.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.eventObserver.CommandStarted(command)
	executor.logger.Debug(
		executor.formatter.BuildStartedMessage(command),
		zap.String(logFieldCommandConstant, executor.formatter.DescribeCommand(command)),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
		zap.Duration(logFieldTimeoutConstant, command.Details.Timeout),
	)

	result, runError := executor.runner.Run(executionContext, command)
	if runError != nil {
		executor.eventObserver.CommandExecutionFailed(command, runError)
		if IsInterruption(runError) {
			executor.logger.Warn(
				executor.formatter.BuildInterruptedMessage(command, runError),
				zap.String(logFieldCommandConstant, executor.formatter.DescribeCommand(command)),
				zap.Error(runError),
			)
			return result, CommandExecutionError{Command: command, Cause: runError}
		}
		executor.logger.Error(
			executor.formatter.BuildExecutionFailureMessage(command, runError),
			zap.String(logFieldCommandConstant, executor.formatter.DescribeCommand(command)),
			zap.Error(runError),
		)
		return result, CommandExecutionError{Command: command, Cause: runError}
	}

	executor.eventObserver.CommandCompleted(command, result)

	switch {
	case result.TimedOut:
		executor.logger.Warn(
			executor.formatter.BuildTimeoutMessage(command),
			zap.String(logFieldCommandConstant, executor.formatter.DescribeCommand(command)),
			zap.Duration(logFieldTimeoutConstant, command.Details.Timeout),
			zap.Duration(logFieldDurationConstant, result.Duration),
		)
		return result, CommandTimeoutError{Command: command, Timeout: command.Details.Timeout, Result: result}
	case result.ExitCode != 0:
		executor.logger.Warn(
			executor.formatter.BuildFailureMessage(command, result),
			zap.String(logFieldCommandConstant, executor.formatter.DescribeCommand(command)),
			zap.Int(logFieldExitCodeConstant, result.ExitCode),
			zap.String(logFieldStandardErrorConstant, StandardErrorTail(result.StandardError)),
			zap.Duration(logFieldDurationConstant, result.Duration),
		)
		return result, CommandFailedError{Command: command, Result: result}
	default:
		executor.logger.Debug(
			executor.formatter.BuildSuccessMessage(command),
			zap.String(logFieldCommandConstant, executor.formatter.DescribeCommand(command)),
			zap.Duration(logFieldDurationConstant, result.Duration),
		)
		return result, nil
	}
}
