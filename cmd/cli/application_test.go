package cli_test

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/propertybuilder/propsync/cmd/cli"
	"github.com/propertybuilder/propsync/internal/migrate"
	"github.com/propertybuilder/propsync/internal/smtpcheck"
)

const (
	testConfigurationFileNameConstant      = "config.yaml"
	testSubscriptionCommandNameConstant    = "subscription-plan"
	testSubscriptionPlanIdentifier         = "ind_6m"
	testMigrateConfigurationTemplate       = "tools:\n  migrate:\n    directory: %s\n    root_directory: %s\n    interpreter: sh\n    unit_timeout: 5s\n    journal_dsn: %s\n    priority:\n      - create-users.js\n    root_scripts:\n      - create-site-visits-table.js\n"
	testUnitTimeoutEnvironmentNameConstant = "PROPSYNC_TOOLS_MIGRATE_UNIT_TIMEOUT"
	testPriorityEnvironmentNameConstant    = "PROPSYNC_TOOLS_MIGRATE_PRIORITY"
	testSMTPHostEnvironmentNameConstant    = "PROPSYNC_TOOLS_SMTP_HOST"
)

func isolateConfigurationHome(testInstance *testing.T) {
	testInstance.Helper()
	testInstance.Setenv("XDG_CONFIG_HOME", testInstance.TempDir())
}

func executeApplication(testInstance *testing.T, application *cli.Application, arguments ...string) (string, error) {
	testInstance.Helper()
	var output bytes.Buffer
	rootCommand := application.RootCommand()
	rootCommand.SetOut(&output)
	rootCommand.SetErr(&output)
	rootCommand.SetArgs(arguments)
	executionError := application.ExecuteContext(context.Background())
	return output.String(), executionError
}

func TestApplicationRegistersCommands(testInstance *testing.T) {
	isolateConfigurationHome(testInstance)
	application := cli.NewApplication()

	registered := map[string]bool{}
	for _, command := range application.RootCommand().Commands() {
		registered[command.Name()] = true
	}

	for _, expectedName := range []string{"migrate", "plan", "history", "smtp-check", "subscription-plan", "subtypes"} {
		require.True(testInstance, registered[expectedName], expectedName)
	}
}

func TestApplicationEmbeddedDefaultsMatchCommandDefaults(testInstance *testing.T) {
	isolateConfigurationHome(testInstance)
	application := cli.NewApplication()

	output, executionError := executeApplication(testInstance, application, testSubscriptionCommandNameConstant, testSubscriptionPlanIdentifier)
	require.NoError(testInstance, executionError)
	require.Contains(testInstance, output, "Individual 6 Months")

	configuration := application.Configuration()
	require.Equal(testInstance, "info", configuration.Common.LogLevel)
	require.Equal(testInstance, "structured", configuration.Common.LogFormat)
	require.Equal(testInstance, migrate.DefaultCommandConfiguration(), configuration.Tools.Migrate)

	expectedSMTP := smtpcheck.DefaultSettings()
	require.Equal(testInstance, expectedSMTP, configuration.Tools.SMTP)
}

func TestApplicationEnvironmentOverrides(testInstance *testing.T) {
	isolateConfigurationHome(testInstance)
	testInstance.Setenv(testUnitTimeoutEnvironmentNameConstant, "90s")
	testInstance.Setenv(testPriorityEnvironmentNameConstant, "create-users.js,seed.js")
	testInstance.Setenv(testSMTPHostEnvironmentNameConstant, "smtp.propertybuilder.test")

	application := cli.NewApplication()
	_, executionError := executeApplication(testInstance, application, testSubscriptionCommandNameConstant)
	require.NoError(testInstance, executionError)

	configuration := application.Configuration()
	require.Equal(testInstance, 90*time.Second, configuration.Tools.Migrate.UnitTimeout)
	require.Equal(testInstance, []string{"create-users.js", "seed.js"}, configuration.Tools.Migrate.Priority)
	require.Equal(testInstance, "smtp.propertybuilder.test", configuration.Tools.SMTP.Host)
}

func TestApplicationRejectsUnsupportedLogLevel(testInstance *testing.T) {
	isolateConfigurationHome(testInstance)
	application := cli.NewApplication()

	_, executionError := executeApplication(testInstance, application, "--log-level", "verbose", testSubscriptionCommandNameConstant)
	require.ErrorContains(testInstance, executionError, "unable to create logger")
}

func TestApplicationMigrateRecordsHistory(testInstance *testing.T) {
	if runtime.GOOS == "windows" {
		testInstance.Skip("requires a POSIX shell")
	}
	isolateConfigurationHome(testInstance)

	workspace := testInstance.TempDir()
	migrationsDirectory := filepath.Join(workspace, "migrations")
	require.NoError(testInstance, os.MkdirAll(migrationsDirectory, 0o755))

	unitBodies := map[string]string{
		"create-users.js":      "echo users created",
		"add-indexes.js":       "echo duplicate index >&2\nexit 2",
		"seed-plans.js":        "echo plans seeded",
		"sync-database.js":     "exit 9",
		"notes.txt":            "not a unit",
		"create-otp-tables.js": "echo otp tables created",
	}
	for name, body := range unitBodies {
		require.NoError(testInstance, os.WriteFile(filepath.Join(migrationsDirectory, name), []byte(body+"\n"), 0o644))
	}
	require.NoError(testInstance, os.WriteFile(filepath.Join(workspace, "create-site-visits-table.js"), []byte("echo visits\n"), 0o644))

	journalPath := filepath.Join(workspace, "journal.db")
	configurationPath := filepath.Join(workspace, testConfigurationFileNameConstant)
	configurationContent := fmt.Sprintf(testMigrateConfigurationTemplate, migrationsDirectory, workspace, journalPath)
	require.NoError(testInstance, os.WriteFile(configurationPath, []byte(configurationContent), 0o644))

	planOutput, planError := executeApplication(testInstance, cli.NewApplication(), "--config", configurationPath, "plan")
	require.NoError(testInstance, planError)
	require.Contains(testInstance, planOutput, "Execution plan for "+migrationsDirectory+" (4 units)")
	require.Contains(testInstance, planOutput, "  1. create-users.js  [priority 1]")
	require.NotContains(testInstance, planOutput, "sync-database.js")

	migrateOutput, migrateError := executeApplication(testInstance, cli.NewApplication(), "--config", configurationPath, "migrate")
	require.NoError(testInstance, migrateError)
	require.Contains(testInstance, migrateOutput, "4 succeeded, 1 failed, 0 skipped")

	historyOutput, historyError := executeApplication(testInstance, cli.NewApplication(), "--config", configurationPath, "history")
	require.NoError(testInstance, historyError)
	require.Contains(testInstance, historyOutput, "add-indexes.js")
	require.Contains(testInstance, historyOutput, "create-site-visits-table.js")
	require.Contains(testInstance, historyOutput, "failure")
}
