package migrate_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/propertybuilder/propsync/internal/execshell"
	"github.com/propertybuilder/propsync/internal/migrate"
	"github.com/propertybuilder/propsync/internal/plan"
	"github.com/propertybuilder/propsync/internal/units"
)

const (
	testMigrateUnitConstant         = "migrate.js"
	testOTPUnitConstant             = "create-otp-tables.js"
	testRunMigrationUnitConstant    = "run-migration.js"
	testTrailingUnitConstant        = "zzz.js"
	testRootScriptConstant          = "create-site-visits-table.js"
	testUnitFailedLogMessage        = "Migration unit failed"
	testRunCancelledLogMessage      = "Migration run cancelled, remaining units skipped"
	testDuplicateColumnErrorMessage = "error: column \"role\" of relation \"users\" already exists"
)

type scriptedOutcome struct {
	result execshell.ExecutionResult
	err    error
}

type scriptedExecutor struct {
	outcomes  map[string]scriptedOutcome
	commands  []execshell.ShellCommand
	onExecute func(unitName string)
}

func (executor *scriptedExecutor) Execute(_ context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	executor.commands = append(executor.commands, command)
	unitName := filepath.Base(command.Details.Arguments[0])
	if executor.onExecute != nil {
		executor.onExecute(unitName)
	}
	outcome := executor.outcomes[unitName]
	return outcome.result, outcome.err
}

func (executor *scriptedExecutor) executedUnits() []string {
	executed := make([]string, 0, len(executor.commands))
	for _, command := range executor.commands {
		executed = append(executed, filepath.Base(command.Details.Arguments[0]))
	}
	return executed
}

func failedCommand(exitCode int, standardError string) scriptedOutcome {
	result := execshell.ExecutionResult{ExitCode: exitCode, StandardError: standardError, Duration: time.Second}
	return scriptedOutcome{result: result, err: execshell.CommandFailedError{Result: result}}
}

func createUnitDirectory(testInstance *testing.T, names ...string) string {
	testInstance.Helper()
	directory := testInstance.TempDir()
	for _, name := range names {
		require.NoError(testInstance, os.WriteFile(filepath.Join(directory, name), []byte("process.exit(0)\n"), 0o644))
	}
	return directory
}

func newTestService(testInstance *testing.T, executor migrate.UnitExecutor, logger *zap.Logger) *migrate.Service {
	testInstance.Helper()
	service, serviceError := migrate.NewService(migrate.ServiceDependencies{
		Logger:   logger,
		Executor: executor,
	})
	require.NoError(testInstance, serviceError)
	return service
}

func TestNewServiceRequiresExecutor(testInstance *testing.T) {
	_, serviceError := migrate.NewService(migrate.ServiceDependencies{})
	require.ErrorIs(testInstance, serviceError, migrate.ErrUnitExecutorMissing)
}

func TestServiceRunOrdersPriorityUnitsFirst(testInstance *testing.T) {
	directory := createUnitDirectory(testInstance, testMigrateUnitConstant, testTrailingUnitConstant, testOTPUnitConstant, "sync-database.js")
	executor := &scriptedExecutor{}
	service := newTestService(testInstance, executor, zap.NewNop())

	report, runError := service.Run(context.Background(), migrate.Options{
		Directory:     directory,
		RootDirectory: directory,
		Discovery:     units.DefaultDiscoveryOptions(),
		Priority:      []string{testMigrateUnitConstant, testOTPUnitConstant, testRunMigrationUnitConstant},
		RootScripts:   []string{testRootScriptConstant},
	})
	require.NoError(testInstance, runError)

	require.Equal(testInstance, []string{testMigrateUnitConstant, testOTPUnitConstant, testTrailingUnitConstant, testRootScriptConstant}, executor.executedUnits())
	require.Len(testInstance, report.Succeeded(), 4)
	require.Empty(testInstance, report.Failed())
	require.Equal(testInstance, migrate.PhaseRoot, report.Outcomes[3].Phase)
	require.Equal(testInstance, execshell.CommandNode, executor.commands[0].Name)
	require.Equal(testInstance, filepath.Join(directory, testMigrateUnitConstant), executor.commands[0].Details.Arguments[0])
}

func TestServiceRunPlanContinuesPastFailures(testInstance *testing.T) {
	observerCore, observedLogs := observer.New(zap.DebugLevel)
	executor := &scriptedExecutor{
		outcomes: map[string]scriptedOutcome{
			"add-user-roles.js": failedCommand(1, "connecting\n"+testDuplicateColumnErrorMessage+"\n"),
			"create-leads.js": {
				result: execshell.ExecutionResult{TimedOut: true, ExitCode: -1},
				err:    execshell.CommandTimeoutError{Timeout: time.Minute},
			},
			"create-reviews.js": {
				err: execshell.CommandExecutionError{Cause: errors.New("exec: \"node\": executable file not found in $PATH")},
			},
		},
	}
	service := newTestService(testInstance, executor, zap.New(observerCore))

	executionPlan := []string{"create-users.js", "add-user-roles.js", "create-leads.js", "create-reviews.js", "seed-plans.js"}
	report := service.RunPlan(context.Background(), executionPlan, "/srv/backend/migrations")

	require.Equal(testInstance, executionPlan, executor.executedUnits())
	require.Len(testInstance, report.Outcomes, len(executionPlan))

	testCases := []struct {
		name           string
		expectedStatus migrate.OutcomeStatus
		expectedReason string
	}{
		{name: "create-users.js", expectedStatus: migrate.OutcomeSuccess},
		{name: "add-user-roles.js", expectedStatus: migrate.OutcomeFailure, expectedReason: "exited with code 1: connecting | " + testDuplicateColumnErrorMessage},
		{name: "create-leads.js", expectedStatus: migrate.OutcomeFailure, expectedReason: "timed out after 1m0s"},
		{name: "create-reviews.js", expectedStatus: migrate.OutcomeFailure, expectedReason: "could not be started: exec: \"node\": executable file not found in $PATH"},
		{name: "seed-plans.js", expectedStatus: migrate.OutcomeSuccess},
	}

	for index, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			outcome := report.Outcomes[index]
			require.Equal(testInstance, testCase.name, outcome.Name)
			require.Equal(testInstance, migrate.PhaseDirectory, outcome.Phase)
			require.Equal(testInstance, testCase.expectedStatus, outcome.Status)
			require.Equal(testInstance, testCase.expectedReason, outcome.Reason)
		})
	}

	failureLogs := observedLogs.FilterMessage(testUnitFailedLogMessage).All()
	require.Len(testInstance, failureLogs, 3)
	for _, entry := range failureLogs {
		require.Equal(testInstance, zapcore.WarnLevel, entry.Level)
	}
}

func TestServiceAppliesTimeoutsAndEnvironment(testInstance *testing.T) {
	executor := &scriptedExecutor{}
	service, serviceError := migrate.NewService(migrate.ServiceDependencies{
		Executor:             executor,
		Interpreter:          execshell.CommandShell,
		UnitTimeout:          5 * time.Second,
		EnvironmentOverrides: map[string]string{"NODE_TLS_REJECT_UNAUTHORIZED": "0"},
	})
	require.NoError(testInstance, serviceError)

	service.RunPlan(context.Background(), []string{"a.js"}, "/units")
	service.RunRootScripts(context.Background(), []string{"root.js"}, "/scripts")
	service.RunUnit(context.Background(), "b.js", "/units", 250*time.Millisecond)

	require.Len(testInstance, executor.commands, 3)
	require.Equal(testInstance, 5*time.Second, executor.commands[0].Details.Timeout)
	require.Equal(testInstance, time.Duration(0), executor.commands[1].Details.Timeout)
	require.Equal(testInstance, 250*time.Millisecond, executor.commands[2].Details.Timeout)
	require.Equal(testInstance, "/scripts/root.js", executor.commands[1].Details.Arguments[0])
	for _, command := range executor.commands {
		require.Equal(testInstance, execshell.CommandShell, command.Name)
		require.Equal(testInstance, map[string]string{"NODE_TLS_REJECT_UNAUTHORIZED": "0"}, command.Details.EnvironmentVariables)
	}
}

func TestServiceDefaultsUnitTimeout(testInstance *testing.T) {
	executor := &scriptedExecutor{}
	service := newTestService(testInstance, executor, nil)

	service.RunPlan(context.Background(), []string{"a.js"}, "/units")
	require.Equal(testInstance, migrate.DefaultUnitTimeout, executor.commands[0].Details.Timeout)
	require.Equal(testInstance, 60*time.Second, migrate.DefaultUnitTimeout)
	require.Nil(testInstance, executor.commands[0].Details.EnvironmentVariables)
}

func TestServiceRunReportsUnreadableDirectory(testInstance *testing.T) {
	executor := &scriptedExecutor{}
	service := newTestService(testInstance, executor, zap.NewNop())

	_, runError := service.Run(context.Background(), migrate.Options{
		Directory:   filepath.Join(testInstance.TempDir(), "absent"),
		Discovery:   units.DefaultDiscoveryOptions(),
		RootScripts: []string{testRootScriptConstant},
	})

	var directoryError *units.DirectoryReadError
	require.ErrorAs(testInstance, runError, &directoryError)
	require.Empty(testInstance, executor.commands)
}

func TestServiceRunReportsDependencyCycle(testInstance *testing.T) {
	directory := createUnitDirectory(testInstance, "a.js", "b.js")
	service := newTestService(testInstance, &scriptedExecutor{}, zap.NewNop())

	_, runError := service.Run(context.Background(), migrate.Options{
		Directory:    directory,
		Discovery:    units.DefaultDiscoveryOptions(),
		Dependencies: plan.Dependencies{"a.js": {"b.js"}, "b.js": {"a.js"}},
	})

	var cycleError *plan.DependencyCycleError
	require.ErrorAs(testInstance, runError, &cycleError)
}

func TestServicePlanUsesDependencies(testInstance *testing.T) {
	directory := createUnitDirectory(testInstance, "alter-users.js", "create-users.js", "seed.js")
	service := newTestService(testInstance, &scriptedExecutor{}, zap.NewNop())

	executionPlan, planError := service.Plan(migrate.Options{
		Directory:    directory,
		Discovery:    units.DefaultDiscoveryOptions(),
		Dependencies: plan.Dependencies{"alter-users.js": {"create-users.js"}},
	})
	require.NoError(testInstance, planError)
	require.Equal(testInstance, []string{"create-users.js", "alter-users.js", "seed.js"}, executionPlan)
}

func TestServiceStopsBetweenUnitsWhenCancelled(testInstance *testing.T) {
	observerCore, observedLogs := observer.New(zap.DebugLevel)
	executionContext, cancel := context.WithCancel(context.Background())
	defer cancel()

	directory := createUnitDirectory(testInstance, "a.js", "b.js", "c.js")
	executor := &scriptedExecutor{
		onExecute: func(unitName string) {
			if unitName == "a.js" {
				cancel()
			}
		},
	}
	service := newTestService(testInstance, executor, zap.New(observerCore))

	report, runError := service.Run(executionContext, migrate.Options{
		Directory:     directory,
		RootDirectory: directory,
		Discovery:     units.DefaultDiscoveryOptions(),
		RootScripts:   []string{testRootScriptConstant},
	})
	require.NoError(testInstance, runError)

	require.Equal(testInstance, []string{"a.js"}, executor.executedUnits())
	require.Len(testInstance, report.Succeeded(), 1)
	require.Empty(testInstance, report.Failed())
	skipped := report.Skipped()
	require.Len(testInstance, skipped, 3)
	require.Equal(testInstance, "b.js", skipped[0].Name)
	require.Equal(testInstance, testRootScriptConstant, skipped[2].Name)
	require.Equal(testInstance, migrate.PhaseRoot, skipped[2].Phase)
	require.Equal(testInstance, "run cancelled: context canceled", skipped[0].Reason)
	require.Equal(testInstance, 2, observedLogs.FilterMessage(testRunCancelledLogMessage).Len())
}

func TestServiceTreatsInterruptedUnitAsSkipped(testInstance *testing.T) {
	executionContext, cancel := context.WithCancel(context.Background())
	executor := &scriptedExecutor{
		outcomes: map[string]scriptedOutcome{
			"a.js": {err: execshell.CommandExecutionError{Cause: context.Canceled}},
		},
		onExecute: func(string) { cancel() },
	}
	service := newTestService(testInstance, executor, zap.NewNop())

	outcome := service.RunUnit(executionContext, "a.js", "/units", time.Minute)
	require.Equal(testInstance, migrate.OutcomeSkipped, outcome.Status)
	require.Equal(testInstance, "interrupted: context canceled", outcome.Reason)
}

func TestServiceRunsRealSubprocesses(testInstance *testing.T) {
	if runtime.GOOS == "windows" {
		testInstance.Skip("requires a POSIX shell")
	}

	directory := testInstance.TempDir()
	scripts := map[string]string{
		"01-ok.sh":      "echo \"tls=$NODE_TLS_REJECT_UNAUTHORIZED\"",
		"02-fail.sh":    "echo 'relation \"leads\" does not exist' >&2\nexit 2",
		"03-slow.sh":    "exec sleep 5",
		"04-after.sh":   "exit 0",
		"05-ignored.md": "not a unit",
	}
	for name, body := range scripts {
		require.NoError(testInstance, os.WriteFile(filepath.Join(directory, name), []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	}

	shellExecutor, executorError := execshell.NewShellExecutor(zap.NewNop(), execshell.NewOSCommandRunner())
	require.NoError(testInstance, executorError)

	var unitOutput lockedBuffer
	service, serviceError := migrate.NewService(migrate.ServiceDependencies{
		Executor:             shellExecutor,
		Interpreter:          execshell.CommandShell,
		UnitTimeout:          300 * time.Millisecond,
		EnvironmentOverrides: map[string]string{"NODE_TLS_REJECT_UNAUTHORIZED": "0"},
		StandardOutput:       &unitOutput,
		StandardError:        &unitOutput,
	})
	require.NoError(testInstance, serviceError)

	report, runError := service.Run(context.Background(), migrate.Options{
		Directory: directory,
		Discovery: units.DiscoveryOptions{Extensions: []string{".sh"}},
	})
	require.NoError(testInstance, runError)

	require.Len(testInstance, report.Outcomes, 4)
	require.Equal(testInstance, migrate.OutcomeSuccess, report.Outcomes[0].Status)
	require.Equal(testInstance, migrate.OutcomeFailure, report.Outcomes[1].Status)
	require.Equal(testInstance, "exited with code 2: relation \"leads\" does not exist", report.Outcomes[1].Reason)
	require.Equal(testInstance, migrate.OutcomeFailure, report.Outcomes[2].Status)
	require.Equal(testInstance, "timed out after 300ms", report.Outcomes[2].Reason)
	require.Equal(testInstance, migrate.OutcomeSuccess, report.Outcomes[3].Status)
	require.Contains(testInstance, unitOutput.String(), "tls=0")
	require.Empty(testInstance, os.Getenv("NODE_TLS_REJECT_UNAUTHORIZED"))
}

func TestServiceReportsMissingInterpreter(testInstance *testing.T) {
	shellExecutor, executorError := execshell.NewShellExecutor(zap.NewNop(), execshell.NewOSCommandRunner())
	require.NoError(testInstance, executorError)

	service, serviceError := migrate.NewService(migrate.ServiceDependencies{
		Executor:    shellExecutor,
		Interpreter: execshell.CommandName("propsync-missing-interpreter"),
	})
	require.NoError(testInstance, serviceError)

	outcome := service.RunUnit(context.Background(), "a.js", testInstance.TempDir(), time.Second)
	require.Equal(testInstance, migrate.OutcomeFailure, outcome.Status)
	require.Contains(testInstance, outcome.Reason, "could not be started")
}
