package execshell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	environmentAssignmentSeparatorConstant = "="
	environmentAssignmentTemplateConstant  = "%s%s%s"
	capturedOutputLimitBytesConstant       = 64 * 1024
	processWaitDelayConstant               = 5 * time.Second
	timedOutExitCodeConstant               = -1
)

// OSCommandRunner executes commands using the operating system facilities.
type OSCommandRunner struct {
	waitDelay time.Duration
}

// NewOSCommandRunner constructs a runner backed by os/exec.
func NewOSCommandRunner() *OSCommandRunner {
	return NewOSCommandRunnerWithWaitDelay(processWaitDelayConstant)
}

// NewOSCommandRunnerWithWaitDelay constructs a runner that stops waiting for output pipes
// the given duration after the process exits or is killed.
func NewOSCommandRunnerWithWaitDelay(waitDelay time.Duration) *OSCommandRunner {
	if waitDelay <= 0 {
		waitDelay = processWaitDelayConstant
	}
	return &OSCommandRunner{waitDelay: waitDelay}
}

// Run executes the supplied command using os/exec. Output is streamed to the configured
// writers while its tail is captured for the result. A process stopped by its own timeout
// yields a result with TimedOut set and no error; cancellation of the parent context is
// returned as an error. A process that exits successfully while a descendant still holds
// its output pipes is reported with exit code zero once the wait delay expires.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	runContext := executionContext
	if command.Details.Timeout > 0 {
		var cancel context.CancelFunc
		runContext, cancel = context.WithTimeout(executionContext, command.Details.Timeout)
		defer cancel()
	}

	commandArguments := append([]string{}, command.Details.Arguments...)
	executable := exec.CommandContext(runContext, string(command.Name), commandArguments...)
	executable.WaitDelay = runner.waitDelay
	if executable.WaitDelay <= 0 {
		executable.WaitDelay = processWaitDelayConstant
	}

	if len(command.Details.WorkingDirectory) > 0 {
		executable.Dir = command.Details.WorkingDirectory
	}

	if len(command.Details.EnvironmentVariables) > 0 {
		mergedEnvironment := append([]string{}, os.Environ()...)
		for environmentKey, environmentValue := range command.Details.EnvironmentVariables {
			mergedEnvironment = append(mergedEnvironment, fmt.Sprintf(environmentAssignmentTemplateConstant, environmentKey, environmentAssignmentSeparatorConstant, environmentValue))
		}
		executable.Env = mergedEnvironment
	}

	standardOutputCapture := newTailBuffer(capturedOutputLimitBytesConstant)
	standardErrorCapture := newTailBuffer(capturedOutputLimitBytesConstant)
	executable.Stdout = teeWriter(command.Details.StandardOutput, standardOutputCapture)
	executable.Stderr = teeWriter(command.Details.StandardError, standardErrorCapture)

	startTime := time.Now()
	runError := executable.Run()
	duration := time.Since(startTime)

	result := ExecutionResult{
		StandardOutput: standardOutputCapture.String(),
		StandardError:  standardErrorCapture.String(),
		Duration:       duration,
	}

	if runError == nil {
		return result, nil
	}

	if executionContext.Err() != nil {
		return result, executionContext.Err()
	}

	// Wait reports ErrWaitDelay only when the process itself exited with status zero.
	if errors.Is(runError, exec.ErrWaitDelay) {
		return result, nil
	}

	if errors.Is(runContext.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = timedOutExitCodeConstant
		return result, nil
	}

	exitError := &exec.ExitError{}
	if errors.As(runError, &exitError) {
		result.ExitCode = exitError.ExitCode()
		return result, nil
	}

	return ExecutionResult{Duration: duration}, runError
}

func teeWriter(passthrough io.Writer, capture io.Writer) io.Writer {
	if passthrough == nil {
		return capture
	}
	return io.MultiWriter(passthrough, capture)
}

// tailBuffer retains the most recent limit bytes written to it.
type tailBuffer struct {
	mutex  sync.Mutex
	buffer bytes.Buffer
	limit  int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (tail *tailBuffer) Write(data []byte) (int, error) {
	tail.mutex.Lock()
	defer tail.mutex.Unlock()

	written, writeError := tail.buffer.Write(data)
	if overflow := tail.buffer.Len() - tail.limit; overflow > 0 {
		tail.buffer.Next(overflow)
	}
	return written, writeError
}

func (tail *tailBuffer) String() string {
	tail.mutex.Lock()
	defer tail.mutex.Unlock()
	return tail.buffer.String()
}
