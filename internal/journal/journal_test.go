package journal_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/propertybuilder/propsync/internal/journal"
	"github.com/propertybuilder/propsync/internal/migrate"
)

func TestResolveConnection(testInstance *testing.T) {
	testCases := []struct {
		name               string
		dataSourceName     string
		expectedConnection journal.Connection
	}{
		{
			name:               "postgres_scheme",
			dataSourceName:     "postgres://app:secret@db:5432/app?sslmode=disable",
			expectedConnection: journal.Connection{DriverName: "postgres", ConnectionString: "postgres://app:secret@db:5432/app?sslmode=disable"},
		},
		{
			name:               "postgresql_scheme_any_case",
			dataSourceName:     " PostgreSQL://db/app ",
			expectedConnection: journal.Connection{DriverName: "postgres", ConnectionString: "PostgreSQL://db/app"},
		},
		{
			name:               "libsql_scheme",
			dataSourceName:     "libsql://propsync.turso.io?authToken=token",
			expectedConnection: journal.Connection{DriverName: "libsql", ConnectionString: "libsql://propsync.turso.io?authToken=token"},
		},
		{
			name:               "https_scheme",
			dataSourceName:     "https://127.0.0.1:8080",
			expectedConnection: journal.Connection{DriverName: "libsql", ConnectionString: "https://127.0.0.1:8080"},
		},
		{
			name:               "sqlite_scheme_is_stripped",
			dataSourceName:     "sqlite://./journal.db",
			expectedConnection: journal.Connection{DriverName: "sqlite", ConnectionString: "./journal.db"},
		},
		{
			name:               "bare_path",
			dataSourceName:     "/var/lib/propsync/journal.db",
			expectedConnection: journal.Connection{DriverName: "sqlite", ConnectionString: "/var/lib/propsync/journal.db"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectedConnection, journal.ResolveConnection(testCase.dataSourceName))
		})
	}
}

func TestOpenRejectsEmptyDataSourceName(testInstance *testing.T) {
	_, openError := journal.Open(context.Background(), "  ")
	require.ErrorIs(testInstance, openError, journal.ErrEmptyDataSourceName)
}

func TestJournalRecordsAndListsRuns(testInstance *testing.T) {
	executionContext := context.Background()
	journalPath := filepath.Join(testInstance.TempDir(), "journal.db")

	runJournal, openError := journal.Open(executionContext, journalPath)
	require.NoError(testInstance, openError)
	defer runJournal.Close()
	require.Equal(testInstance, "sqlite", runJournal.DriverName())

	firstFinishedAt := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	secondFinishedAt := firstFinishedAt.Add(24 * time.Hour)

	require.NoError(testInstance, runJournal.Record(executionContext, "run-1", migrate.RunReport{
		FinishedAt: firstFinishedAt,
		Outcomes: []migrate.UnitOutcome{
			{Name: "migrate.js", Phase: migrate.PhaseDirectory, Status: migrate.OutcomeSuccess, Duration: 1500 * time.Millisecond},
		},
	}))
	require.NoError(testInstance, runJournal.Record(executionContext, "run-2", migrate.RunReport{
		FinishedAt: secondFinishedAt,
		Outcomes: []migrate.UnitOutcome{
			{Name: "migrate.js", Phase: migrate.PhaseDirectory, Status: migrate.OutcomeSuccess, Duration: 900 * time.Millisecond},
			{Name: "add-user-roles.js", Phase: migrate.PhaseDirectory, Status: migrate.OutcomeFailure, Reason: "exited with code 1"},
			{Name: "create-site-visits-table.js", Phase: migrate.PhaseRoot, Status: migrate.OutcomeSkipped, Reason: "run cancelled: context canceled"},
		},
	}))

	entries, readError := runJournal.LastRuns(executionContext, 10)
	require.NoError(testInstance, readError)
	require.Len(testInstance, entries, 4)

	require.Equal(testInstance, "run-2", entries[0].RunID)
	require.Equal(testInstance, "migrate.js", entries[0].Unit)
	require.Equal(testInstance, 900*time.Millisecond, entries[0].Duration)
	require.True(testInstance, secondFinishedAt.Equal(entries[0].FinishedAt))
	require.Equal(testInstance, migrate.OutcomeFailure, entries[1].Status)
	require.Equal(testInstance, "exited with code 1", entries[1].Reason)
	require.Equal(testInstance, migrate.PhaseRoot, entries[2].Phase)
	require.Equal(testInstance, "run-1", entries[3].RunID)

	limited, limitedError := runJournal.LastRuns(executionContext, 2)
	require.NoError(testInstance, limitedError)
	require.Len(testInstance, limited, 2)

	none, noneError := runJournal.LastRuns(executionContext, 0)
	require.NoError(testInstance, noneError)
	require.Empty(testInstance, none)
}

func TestJournalPersistsAcrossConnections(testInstance *testing.T) {
	executionContext := context.Background()
	journalPath := filepath.Join(testInstance.TempDir(), "journal.db")

	recorder, openError := journal.OpenRecorder(executionContext, journalPath)
	require.NoError(testInstance, openError)
	require.NoError(testInstance, recorder.Record(executionContext, "run-1", migrate.RunReport{
		Outcomes: []migrate.UnitOutcome{{Name: "a.js", Phase: migrate.PhaseDirectory, Status: migrate.OutcomeSuccess}},
	}))
	require.NoError(testInstance, recorder.Close())

	reopened, reopenError := journal.Open(executionContext, journalPath)
	require.NoError(testInstance, reopenError)
	defer reopened.Close()

	entries, readError := reopened.LastRuns(executionContext, 5)
	require.NoError(testInstance, readError)
	require.Len(testInstance, entries, 1)
	require.False(testInstance, entries[0].FinishedAt.IsZero())
}

func TestHistoryCommand(testInstance *testing.T) {
	executionContext := context.Background()
	journalPath := filepath.Join(testInstance.TempDir(), "journal.db")

	runJournal, openError := journal.Open(executionContext, journalPath)
	require.NoError(testInstance, openError)
	require.NoError(testInstance, runJournal.Record(executionContext, "0f6c1d2e-aaaa-bbbb-cccc-000000000001", migrate.RunReport{
		FinishedAt: time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC),
		Outcomes: []migrate.UnitOutcome{
			{Name: "add-user-roles.js", Phase: migrate.PhaseDirectory, Status: migrate.OutcomeFailure, Reason: "timed out after 1m0s"},
		},
	}))
	require.NoError(testInstance, runJournal.Close())

	testCases := []struct {
		name             string
		provider         func() string
		arguments        []string
		expectedContains []string
		expectedError    error
	}{
		{
			name:             "configured_journal",
			provider:         func() string { return journalPath },
			expectedContains: []string{"RUN", "0f6c1d2e", "add-user-roles.js", "failure", "timed out after 1m0s"},
		},
		{
			name:             "flag_overrides_configuration",
			provider:         func() string { return "" },
			arguments:        []string{"--journal", journalPath, "--limit", "1"},
			expectedContains: []string{"add-user-roles.js"},
		},
		{
			name:             "empty_journal",
			provider:         func() string { return filepath.Join(testInstance.TempDir(), "empty.db") },
			expectedContains: []string{"No recorded migration runs."},
		},
		{
			name:          "missing_configuration",
			provider:      func() string { return "" },
			expectedError: journal.ErrJournalNotConfigured,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			builder := journal.CommandBuilder{DataSourceNameProvider: testCase.provider}
			command, buildError := builder.Build()
			require.NoError(testInstance, buildError)

			var output bytes.Buffer
			command.SetOut(&output)
			command.SetArgs(testCase.arguments)
			executionError := command.Execute()

			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, executionError, testCase.expectedError)
				return
			}
			require.NoError(testInstance, executionError)
			for _, expected := range testCase.expectedContains {
				require.Contains(testInstance, output.String(), expected)
			}
		})
	}
}
