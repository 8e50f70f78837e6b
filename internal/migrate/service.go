package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/propertybuilder/propsync/internal/execshell"
	"github.com/propertybuilder/propsync/internal/plan"
	"github.com/propertybuilder/propsync/internal/units"
)

const (
	// DefaultUnitTimeout bounds each directory unit when no timeout is configured.
	DefaultUnitTimeout = defaultUnitTimeoutConstant

	unitExecutorMissingMessageConstant = "migration service requires a unit executor"
	planBuildErrorTemplateConstant     = "unable to build migration plan: %w"
	reasonTimedOutTemplateConstant     = "timed out after %s"
	reasonExitCodeTemplateConstant     = "exited with code %d"
	reasonExitCodeWithOutputTemplate   = "exited with code %d: %s"
	reasonNotStartedTemplateConstant   = "could not be started: %v"
	reasonCancelledTemplateConstant    = "run cancelled: %v"
	reasonInterruptedTemplateConstant  = "interrupted: %v"
	logMessagePlanBuiltConstant        = "Migration plan built"
	logMessageUnitFailedConstant       = "Migration unit failed"
	logMessageUnitInterruptedConstant  = "Migration unit interrupted"
	logMessageRunCancelledConstant     = "Migration run cancelled, remaining units skipped"
	logMessagePhaseCompletedConstant   = "Migration phase completed"
	logFieldUnitConstant               = "unit"
	logFieldPhaseConstant              = "phase"
	logFieldReasonConstant             = "reason"
	logFieldDirectoryConstant          = "directory"
	logFieldPlanConstant               = "plan"
	logFieldSkippedUnitsConstant       = "skipped_units"
	logFieldSucceededCountConstant     = "succeeded"
	logFieldFailedCountConstant        = "failed"
	logFieldSkippedCountConstant       = "skipped"
	logFieldUnitTimeoutConstant        = "unit_timeout"
	noTimeoutConstant                  = time.Duration(0)
)

// ErrUnitExecutorMissing indicates that NewService received no executor.
var ErrUnitExecutorMissing = errors.New(unitExecutorMissingMessageConstant)

// UnitExecutor runs one unit subprocess.
type UnitExecutor interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
}

// UnitDiscoverer lists the candidate units in a directory.
type UnitDiscoverer interface {
	DiscoverUnits(directory string, options units.DiscoveryOptions) ([]string, error)
}

// ServiceDependencies describes collaborators and settings shared by every unit of a run.
type ServiceDependencies struct {
	Logger               *zap.Logger
	Executor             UnitExecutor
	Discoverer           UnitDiscoverer
	Interpreter          execshell.CommandName
	UnitTimeout          time.Duration
	EnvironmentOverrides map[string]string
	StandardOutput       io.Writer
	StandardError        io.Writer
	Clock                func() time.Time
}

// Options configures a complete run.
type Options struct {
	Directory     string
	RootDirectory string
	Discovery     units.DiscoveryOptions
	Priority      []string
	// Dependencies, when non-nil, replaces priority ordering with dependency ordering.
	Dependencies plan.Dependencies
	RootScripts  []string
}

// Service runs migration units sequentially and reports their outcomes.
type Service struct {
	logger               *zap.Logger
	executor             UnitExecutor
	discoverer           UnitDiscoverer
	interpreter          execshell.CommandName
	unitTimeout          time.Duration
	environmentOverrides map[string]string
	standardOutput       io.Writer
	standardError        io.Writer
	clock                func() time.Time
}

// NewService constructs a Service, filling unset optional dependencies with defaults.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Executor == nil {
		return nil, ErrUnitExecutorMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	discoverer := dependencies.Discoverer
	if discoverer == nil {
		discoverer = units.NewFilesystemUnitDiscoverer()
	}

	interpreter := dependencies.Interpreter
	if len(interpreter) == 0 {
		interpreter = execshell.CommandNode
	}

	unitTimeout := dependencies.UnitTimeout
	if unitTimeout <= 0 {
		unitTimeout = DefaultUnitTimeout
	}

	clock := dependencies.Clock
	if clock == nil {
		clock = time.Now
	}

	environmentOverrides := make(map[string]string, len(dependencies.EnvironmentOverrides))
	for name, value := range dependencies.EnvironmentOverrides {
		environmentOverrides[name] = value
	}

	return &Service{
		logger:               logger,
		executor:             dependencies.Executor,
		discoverer:           discoverer,
		interpreter:          interpreter,
		unitTimeout:          unitTimeout,
		environmentOverrides: environmentOverrides,
		standardOutput:       dependencies.StandardOutput,
		standardError:        dependencies.StandardError,
		clock:                clock,
	}, nil
}

// Plan discovers the units in options.Directory and returns their execution order.
// A *units.DirectoryReadError or *plan.DependencyCycleError is returned wrapped.
func (service *Service) Plan(options Options) ([]string, error) {
	discovered, discoveryError := service.discoverer.DiscoverUnits(options.Directory, options.Discovery)
	if discoveryError != nil {
		return nil, fmt.Errorf(planBuildErrorTemplateConstant, discoveryError)
	}

	if options.Dependencies == nil {
		return plan.BuildExecutionPlan(discovered, options.Priority), nil
	}

	executionPlan, planError := plan.BuildDependencyPlan(discovered, options.Dependencies)
	if planError != nil {
		return nil, fmt.Errorf(planBuildErrorTemplateConstant, planError)
	}
	return executionPlan, nil
}

// Run plans the directory units, runs them, then runs the root scripts. Unit failures are
// reported in the returned RunReport; only planning failures are returned as errors.
func (service *Service) Run(executionContext context.Context, options Options) (RunReport, error) {
	executionPlan, planError := service.Plan(options)
	if planError != nil {
		return RunReport{}, planError
	}

	service.logger.Info(
		logMessagePlanBuiltConstant,
		zap.String(logFieldDirectoryConstant, options.Directory),
		zap.Strings(logFieldPlanConstant, executionPlan),
		zap.Duration(logFieldUnitTimeoutConstant, service.unitTimeout),
	)

	directoryReport := service.RunPlan(executionContext, executionPlan, options.Directory)
	rootReport := service.RunRootScripts(executionContext, options.RootScripts, options.RootDirectory)
	return directoryReport.Append(rootReport), nil
}

// RunPlan runs every planned unit once, in order, with the configured unit timeout.
func (service *Service) RunPlan(executionContext context.Context, executionPlan []string, directory string) RunReport {
	return service.runSequence(executionContext, PhaseDirectory, executionPlan, directory, service.unitTimeout)
}

// RunRootScripts runs the root-level scripts in order without a timeout.
func (service *Service) RunRootScripts(executionContext context.Context, names []string, rootDirectory string) RunReport {
	return service.runSequence(executionContext, PhaseRoot, names, rootDirectory, noTimeoutConstant)
}

// RunUnit runs one directory unit and converts every failure into a Failure outcome.
func (service *Service) RunUnit(executionContext context.Context, name string, directory string, timeout time.Duration) UnitOutcome {
	return service.runUnit(executionContext, PhaseDirectory, name, directory, timeout)
}

func (service *Service) runSequence(executionContext context.Context, phase Phase, names []string, directory string, timeout time.Duration) RunReport {
	report := RunReport{StartedAt: service.clock()}

	for index, name := range names {
		if cancellationError := executionContext.Err(); cancellationError != nil {
			remaining := names[index:]
			for _, skippedName := range remaining {
				report.Outcomes = append(report.Outcomes, UnitOutcome{
					Name:   skippedName,
					Phase:  phase,
					Status: OutcomeSkipped,
					Reason: fmt.Sprintf(reasonCancelledTemplateConstant, cancellationError),
				})
			}
			service.logger.Warn(
				logMessageRunCancelledConstant,
				zap.String(logFieldPhaseConstant, string(phase)),
				zap.Strings(logFieldSkippedUnitsConstant, remaining),
				zap.Error(cancellationError),
			)
			break
		}

		report.Outcomes = append(report.Outcomes, service.runUnit(executionContext, phase, name, directory, timeout))
	}

	report.FinishedAt = service.clock()
	if len(names) > 0 {
		service.logger.Info(
			logMessagePhaseCompletedConstant,
			zap.String(logFieldPhaseConstant, string(phase)),
			zap.Int(logFieldSucceededCountConstant, len(report.Succeeded())),
			zap.Int(logFieldFailedCountConstant, len(report.Failed())),
			zap.Int(logFieldSkippedCountConstant, len(report.Skipped())),
		)
	}
	return report
}

func (service *Service) runUnit(executionContext context.Context, phase Phase, name string, directory string, timeout time.Duration) UnitOutcome {
	outcome := UnitOutcome{Name: name, Phase: phase}

	command := execshell.ShellCommand{
		Name: service.interpreter,
		Details: execshell.CommandDetails{
			Arguments:            []string{filepath.Join(directory, name)},
			EnvironmentVariables: service.unitEnvironment(),
			Timeout:              timeout,
			StandardOutput:       service.standardOutput,
			StandardError:        service.standardError,
		},
	}

	startedAt := service.clock()
	result, executionError := service.executor.Execute(executionContext, command)
	outcome.Duration = result.Duration
	if outcome.Duration <= 0 {
		outcome.Duration = service.clock().Sub(startedAt)
	}

	if executionError == nil {
		outcome.Status = OutcomeSuccess
		return outcome
	}

	if cancellationError := executionContext.Err(); cancellationError != nil {
		outcome.Status = OutcomeSkipped
		outcome.Reason = fmt.Sprintf(reasonInterruptedTemplateConstant, cancellationError)
		service.logger.Warn(
			logMessageUnitInterruptedConstant,
			zap.String(logFieldUnitConstant, name),
			zap.String(logFieldPhaseConstant, string(phase)),
		)
		return outcome
	}

	outcome.Status = OutcomeFailure
	outcome.Reason = describeFailure(executionError)
	service.logger.Warn(
		logMessageUnitFailedConstant,
		zap.String(logFieldUnitConstant, name),
		zap.String(logFieldPhaseConstant, string(phase)),
		zap.String(logFieldReasonConstant, outcome.Reason),
	)
	return outcome
}

func (service *Service) unitEnvironment() map[string]string {
	if len(service.environmentOverrides) == 0 {
		return nil
	}
	environmentVariables := make(map[string]string, len(service.environmentOverrides))
	for name, value := range service.environmentOverrides {
		environmentVariables[name] = value
	}
	return environmentVariables
}

func describeFailure(failure error) string {
	var timeoutError execshell.CommandTimeoutError
	if errors.As(failure, &timeoutError) {
		return fmt.Sprintf(reasonTimedOutTemplateConstant, timeoutError.Timeout)
	}

	var commandFailure execshell.CommandFailedError
	if errors.As(failure, &commandFailure) {
		standardErrorTail := execshell.StandardErrorTail(commandFailure.Result.StandardError)
		if len(standardErrorTail) == 0 {
			return fmt.Sprintf(reasonExitCodeTemplateConstant, commandFailure.Result.ExitCode)
		}
		return fmt.Sprintf(reasonExitCodeWithOutputTemplate, commandFailure.Result.ExitCode, standardErrorTail)
	}

	var executionFailure execshell.CommandExecutionError
	if errors.As(failure, &executionFailure) {
		return fmt.Sprintf(reasonNotStartedTemplateConstant, executionFailure.Cause)
	}

	return failure.Error()
}
