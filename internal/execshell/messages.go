package execshell

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericTimeoutTemplateConstant          = "%s timed out after %s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	genericInterruptedTemplateConstant      = "%s interrupted: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	standardErrorLineLimitConstant          = 5
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// DescribeCommand renders the executable, its arguments, and the working directory.
func (formatter CommandMessageFormatter) DescribeCommand(command ShellCommand) string {
	commandParts := []string{string(command.Name)}
	if len(command.Details.Arguments) > 0 {
		commandParts = append(commandParts, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	commandLabel := strings.Join(commandParts, commandArgumentsJoinSeparatorConstant)
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, formatter.formatWorkingDirectorySuffix(command))
}

// DescribeScript returns the base name of the script a command launches, falling back to the full label.
func (formatter CommandMessageFormatter) DescribeScript(command ShellCommand) string {
	for _, argument := range command.Details.Arguments {
		trimmed := strings.TrimSpace(argument)
		if len(trimmed) == 0 || strings.HasPrefix(trimmed, "-") {
			continue
		}
		return filepath.Base(trimmed)
	}
	return formatter.DescribeCommand(command)
}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return fmt.Sprintf(genericStartTemplateConstant, formatter.DescribeCommand(command))
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return fmt.Sprintf(genericSuccessTemplateConstant, formatter.DescribeCommand(command))
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return fmt.Sprintf(genericFailureTemplateConstant, formatter.DescribeCommand(command), result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
}

// BuildTimeoutMessage formats the message describing a command stopped by its timeout.
func (formatter CommandMessageFormatter) BuildTimeoutMessage(command ShellCommand) string {
	return fmt.Sprintf(genericTimeoutTemplateConstant, formatter.DescribeCommand(command), command.Details.Timeout)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	failureMessage := unknownFailureMessageConstant
	if failure != nil {
		failureMessage = failure.Error()
	}
	return fmt.Sprintf(genericExecutionFailureTemplateConstant, formatter.DescribeCommand(command), failureMessage)
}

// BuildInterruptedMessage formats the message describing a command stopped because the run was cancelled.
func (formatter CommandMessageFormatter) BuildInterruptedMessage(command ShellCommand, cause error) string {
	causeMessage := unknownFailureMessageConstant
	if cause != nil {
		causeMessage = cause.Error()
	}
	return fmt.Sprintf(genericInterruptedTemplateConstant, formatter.DescribeCommand(command), causeMessage)
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmed := StandardErrorTail(standardError)
	if len(trimmed) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmed)
}

// StandardErrorTail keeps the last few non-empty lines of captured standard error joined by " | ".
func StandardErrorTail(standardError string) string {
	lines := strings.Split(strings.TrimSpace(standardError), "\n")
	nonEmptyLines := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmedLine := strings.TrimSpace(line)
		if len(trimmedLine) == 0 {
			continue
		}
		nonEmptyLines = append(nonEmptyLines, trimmedLine)
	}
	if len(nonEmptyLines) > standardErrorLineLimitConstant {
		nonEmptyLines = nonEmptyLines[len(nonEmptyLines)-standardErrorLineLimitConstant:]
	}
	return strings.Join(nonEmptyLines, " | ")
}
