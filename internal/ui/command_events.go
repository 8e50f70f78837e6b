package ui

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/propertybuilder/propsync/internal/execshell"
)

// Status markers prefixed to transcript lines.
const (
	StartMarker   = "▶"
	SuccessMarker = "✔"
	FailureMarker = "✖"
	SkippedMarker = "…"
)

const (
	commandStartedMessageTemplateConstant          = "%s Running %s"
	commandCompletedMessageTemplateConstant        = "%s %s completed in %s"
	commandFailedExitCodeMessageTemplateConstant   = "%s %s failed with exit code %d"
	commandTimedOutMessageTemplateConstant         = "%s %s timed out after %s"
	commandExecutionFailureMessageTemplateConstant = "%s %s could not be started: %s"
	commandInterruptedMessageTemplateConstant      = "%s %s interrupted: %s"
	standardErrorSuffixTemplateConstant            = ": %s"
	unknownFailureMessageConstant                  = "unknown error"
	emptyStringConstant                            = ""
	durationRoundingConstant                       = 10 * time.Millisecond
)

// CommandEventFormatter builds transcript lines for command lifecycle events.
type CommandEventFormatter struct {
	describer execshell.CommandMessageFormatter
}

// BuildStartedMessage formats the line describing a unit about to run.
func (formatter CommandEventFormatter) BuildStartedMessage(command execshell.ShellCommand) string {
	return fmt.Sprintf(commandStartedMessageTemplateConstant, StartMarker, formatter.describer.DescribeScript(command))
}

// BuildSuccessMessage formats the line describing a unit that exited with code zero.
func (formatter CommandEventFormatter) BuildSuccessMessage(command execshell.ShellCommand, result execshell.ExecutionResult) string {
	return fmt.Sprintf(commandCompletedMessageTemplateConstant, SuccessMarker, formatter.describer.DescribeScript(command), result.Duration.Round(durationRoundingConstant))
}

// BuildFailureMessage formats the line describing a unit that exited with a non-zero code.
func (formatter CommandEventFormatter) BuildFailureMessage(command execshell.ShellCommand, result execshell.ExecutionResult) string {
	baseMessage := fmt.Sprintf(commandFailedExitCodeMessageTemplateConstant, FailureMarker, formatter.describer.DescribeScript(command), result.ExitCode)
	return baseMessage + formatter.formatStandardErrorSuffix(result.StandardError)
}

// BuildTimeoutMessage formats the line describing a unit stopped by its timeout.
func (formatter CommandEventFormatter) BuildTimeoutMessage(command execshell.ShellCommand) string {
	return fmt.Sprintf(commandTimedOutMessageTemplateConstant, FailureMarker, formatter.describer.DescribeScript(command), command.Details.Timeout)
}

// BuildExecutionFailureMessage formats the line describing a unit that could not be launched.
func (formatter CommandEventFormatter) BuildExecutionFailureMessage(command execshell.ShellCommand, failure error) string {
	failureMessage := unknownFailureMessageConstant
	if failure != nil {
		failureMessage = failure.Error()
	}
	return fmt.Sprintf(commandExecutionFailureMessageTemplateConstant, FailureMarker, formatter.describer.DescribeScript(command), failureMessage)
}

// BuildInterruptedMessage formats the line describing a unit stopped because the run was cancelled.
func (formatter CommandEventFormatter) BuildInterruptedMessage(command execshell.ShellCommand, cause error) string {
	causeMessage := unknownFailureMessageConstant
	if cause != nil {
		causeMessage = cause.Error()
	}
	return fmt.Sprintf(commandInterruptedMessageTemplateConstant, SkippedMarker, formatter.describer.DescribeScript(command), causeMessage)
}

func (formatter CommandEventFormatter) formatStandardErrorSuffix(standardError string) string {
	lines := strings.Split(strings.TrimSpace(standardError), "\n")
	lastLine := strings.TrimSpace(lines[len(lines)-1])
	if len(lastLine) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, lastLine)
}

// ConsoleCommandEventLogger renders command lifecycle events using a zap logger configured for human-readable output.
type ConsoleCommandEventLogger struct {
	logger    *zap.Logger
	formatter CommandEventFormatter
}

// NewConsoleCommandEventLogger constructs a console event logger backed by the provided zap logger.
func NewConsoleCommandEventLogger(logger *zap.Logger) *ConsoleCommandEventLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleCommandEventLogger{logger: logger, formatter: CommandEventFormatter{}}
}

// CommandStarted implements execshell.CommandEventObserver by logging the start marker.
func (eventLogger *ConsoleCommandEventLogger) CommandStarted(command execshell.ShellCommand) {
	if eventLogger == nil {
		return
	}
	eventLogger.logger.Info(eventLogger.formatter.BuildStartedMessage(command))
}

// CommandCompleted implements execshell.CommandEventObserver by logging the success or failure marker.
func (eventLogger *ConsoleCommandEventLogger) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if eventLogger == nil {
		return
	}
	switch {
	case result.TimedOut:
		eventLogger.logger.Warn(eventLogger.formatter.BuildTimeoutMessage(command))
	case result.ExitCode != 0:
		eventLogger.logger.Warn(eventLogger.formatter.BuildFailureMessage(command, result))
	default:
		eventLogger.logger.Info(eventLogger.formatter.BuildSuccessMessage(command, result))
	}
}

// CommandExecutionFailed implements execshell.CommandEventObserver by logging launch failures.
// A cancelled run is logged with the skipped marker instead.
func (eventLogger *ConsoleCommandEventLogger) CommandExecutionFailed(command execshell.ShellCommand, failure error) {
	if eventLogger == nil {
		return
	}
	if execshell.IsInterruption(failure) {
		eventLogger.logger.Warn(eventLogger.formatter.BuildInterruptedMessage(command, failure))
		return
	}
	eventLogger.logger.Error(eventLogger.formatter.BuildExecutionFailureMessage(command, failure))
}
