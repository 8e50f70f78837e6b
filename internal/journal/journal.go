package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/propertybuilder/propsync/internal/migrate"
)

const (
	tableNameConstant               = "propsync_unit_runs"
	emptyDataSourceNameMessage      = "journal DSN must not be empty"
	openErrorTemplateConstant       = "unable to open journal (%s): %w"
	pingErrorTemplateConstant       = "unable to reach journal (%s): %w"
	schemaErrorTemplateConstant     = "unable to create journal table: %w"
	recordErrorTemplateConstant     = "unable to record run %s: %w"
	queryErrorTemplateConstant      = "unable to read journal: %w"
	scanErrorTemplateConstant       = "unable to decode journal entry: %w"
	timestampParseErrorTemplate     = "unable to parse journal timestamp %q: %w"
	timestampLayoutConstant         = "2006-01-02T15:04:05.000000000Z07:00"
	createTableStatementConstant    = "CREATE TABLE IF NOT EXISTS " + tableNameConstant + " (run_id TEXT NOT NULL, unit_index INTEGER NOT NULL, unit TEXT NOT NULL, phase TEXT NOT NULL, status TEXT NOT NULL, reason TEXT NOT NULL, duration_ms BIGINT NOT NULL, finished_at TEXT NOT NULL)"
	insertStatementTemplateConstant = "INSERT INTO " + tableNameConstant + " (run_id, unit_index, unit, phase, status, reason, duration_ms, finished_at) VALUES (%s)"
	selectStatementTemplateConstant = "SELECT run_id, unit, phase, status, reason, duration_ms, finished_at FROM " + tableNameConstant + " ORDER BY finished_at DESC, run_id, unit_index LIMIT %s"
	insertColumnCountConstant       = 8
	placeholderSeparatorConstant    = ", "
)

// ErrEmptyDataSourceName indicates that Open received a blank DSN.
var ErrEmptyDataSourceName = errors.New(emptyDataSourceNameMessage)

// Entry is one recorded unit outcome.
type Entry struct {
	RunID      string
	Unit       string
	Phase      migrate.Phase
	Status     migrate.OutcomeStatus
	Reason     string
	Duration   time.Duration
	FinishedAt time.Time
}

// Journal stores unit outcomes in a SQL database.
type Journal struct {
	database   *sql.DB
	connection Connection
	clock      func() time.Time
}

// Open connects to the journal at dataSourceName and ensures its table exists.
func Open(executionContext context.Context, dataSourceName string) (*Journal, error) {
	if len(strings.TrimSpace(dataSourceName)) == 0 {
		return nil, ErrEmptyDataSourceName
	}

	connection := ResolveConnection(dataSourceName)
	database, openError := sql.Open(connection.DriverName, connection.ConnectionString)
	if openError != nil {
		return nil, fmt.Errorf(openErrorTemplateConstant, connection.DriverName, openError)
	}

	if pingError := database.PingContext(executionContext); pingError != nil {
		_ = database.Close()
		return nil, fmt.Errorf(pingErrorTemplateConstant, connection.DriverName, pingError)
	}

	journal := &Journal{database: database, connection: connection, clock: time.Now}
	if schemaError := journal.EnsureSchema(executionContext); schemaError != nil {
		_ = database.Close()
		return nil, schemaError
	}
	return journal, nil
}

// OpenRecorder adapts Open to the recorder provider used by the migrate command.
func OpenRecorder(executionContext context.Context, dataSourceName string) (migrate.ReportRecorder, error) {
	journal, openError := Open(executionContext, dataSourceName)
	if openError != nil {
		return nil, openError
	}
	return journal, nil
}

// DriverName reports the database/sql driver backing the journal.
func (journal *Journal) DriverName() string {
	return journal.connection.DriverName
}

// EnsureSchema creates the journal table when it does not exist.
func (journal *Journal) EnsureSchema(executionContext context.Context) error {
	if _, execError := journal.database.ExecContext(executionContext, createTableStatementConstant); execError != nil {
		return fmt.Errorf(schemaErrorTemplateConstant, execError)
	}
	return nil
}

// Record stores every outcome of report under runIdentifier in a single transaction.
func (journal *Journal) Record(executionContext context.Context, runIdentifier string, report migrate.RunReport) error {
	finishedAt := report.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = journal.clock()
	}
	finishedAtText := finishedAt.UTC().Format(timestampLayoutConstant)

	transaction, beginError := journal.database.BeginTx(executionContext, nil)
	if beginError != nil {
		return fmt.Errorf(recordErrorTemplateConstant, runIdentifier, beginError)
	}

	statement := fmt.Sprintf(insertStatementTemplateConstant, journal.placeholders(insertColumnCountConstant))
	for position, outcome := range report.Outcomes {
		_, insertError := transaction.ExecContext(
			executionContext,
			statement,
			runIdentifier,
			position,
			outcome.Name,
			string(outcome.Phase),
			string(outcome.Status),
			outcome.Reason,
			outcome.Duration.Milliseconds(),
			finishedAtText,
		)
		if insertError != nil {
			_ = transaction.Rollback()
			return fmt.Errorf(recordErrorTemplateConstant, runIdentifier, insertError)
		}
	}

	if commitError := transaction.Commit(); commitError != nil {
		return fmt.Errorf(recordErrorTemplateConstant, runIdentifier, commitError)
	}
	return nil
}

// LastRuns returns up to limit entries, newest run first and in execution order within a run.
func (journal *Journal) LastRuns(executionContext context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(selectStatementTemplateConstant, journal.connection.placeholder(1))
	rows, queryError := journal.database.QueryContext(executionContext, query, limit)
	if queryError != nil {
		return nil, fmt.Errorf(queryErrorTemplateConstant, queryError)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry          Entry
			phase          string
			status         string
			durationMillis int64
			finishedAtText string
		)
		if scanError := rows.Scan(&entry.RunID, &entry.Unit, &phase, &status, &entry.Reason, &durationMillis, &finishedAtText); scanError != nil {
			return nil, fmt.Errorf(scanErrorTemplateConstant, scanError)
		}
		finishedAt, parseError := time.Parse(timestampLayoutConstant, finishedAtText)
		if parseError != nil {
			return nil, fmt.Errorf(timestampParseErrorTemplate, finishedAtText, parseError)
		}
		entry.Phase = migrate.Phase(phase)
		entry.Status = migrate.OutcomeStatus(status)
		entry.Duration = time.Duration(durationMillis) * time.Millisecond
		entry.FinishedAt = finishedAt
		entries = append(entries, entry)
	}
	if rowsError := rows.Err(); rowsError != nil {
		return nil, fmt.Errorf(queryErrorTemplateConstant, rowsError)
	}
	return entries, nil
}

// Close releases the database handle.
func (journal *Journal) Close() error {
	if journal == nil || journal.database == nil {
		return nil
	}
	return journal.database.Close()
}

func (journal *Journal) placeholders(count int) string {
	rendered := make([]string, 0, count)
	for position := 1; position <= count; position++ {
		rendered = append(rendered, journal.connection.placeholder(position))
	}
	return strings.Join(rendered, placeholderSeparatorConstant)
}
