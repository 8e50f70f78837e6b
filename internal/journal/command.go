package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

const (
	historyCommandUseConstant              = "history"
	historyCommandShortDescriptionConstant = "List recently recorded migration unit outcomes"
	journalFlagNameConstant                = "journal"
	journalFlagUsageConstant               = "Journal DSN (postgres://, libsql://, or a SQLite file)"
	limitFlagNameConstant                  = "limit"
	limitFlagUsageConstant                 = "Maximum number of outcomes to list"
	defaultHistoryLimitConstant            = 20
	missingJournalMessageConstant          = "no journal configured; set tools.migrate.journal_dsn or pass --journal"
	emptyHistoryMessageConstant            = "No recorded migration runs."
	historyTimestampLayoutConstant         = "2006-01-02 15:04:05"
	durationRoundingConstant               = 10 * time.Millisecond
	runIdentifierDisplayLengthConstant     = 8
	historyHeaderRunConstant               = "RUN"
	historyHeaderFinishedConstant          = "FINISHED"
	historyHeaderUnitConstant              = "UNIT"
	historyHeaderPhaseConstant             = "PHASE"
	historyHeaderStatusConstant            = "STATUS"
	historyHeaderDurationConstant          = "DURATION"
	historyHeaderReasonConstant            = "REASON"
)

// ErrJournalNotConfigured indicates that history was requested without a journal DSN.
var ErrJournalNotConfigured = errors.New(missingJournalMessageConstant)

// Opener opens a journal for reading.
type Opener func(executionContext context.Context, dataSourceName string) (*Journal, error)

// CommandBuilder assembles the history Cobra command.
type CommandBuilder struct {
	DataSourceNameProvider func() string
	Opener                 Opener
}

// Build constructs the history command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           historyCommandUseConstant,
		Short:         historyCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runHistory,
	}

	command.Flags().String(journalFlagNameConstant, "", journalFlagUsageConstant)
	command.Flags().Int(limitFlagNameConstant, defaultHistoryLimitConstant, limitFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) runHistory(command *cobra.Command, arguments []string) error {
	dataSourceName := ""
	if builder.DataSourceNameProvider != nil {
		dataSourceName = builder.DataSourceNameProvider()
	}
	if command.Flags().Changed(journalFlagNameConstant) {
		dataSourceName, _ = command.Flags().GetString(journalFlagNameConstant)
	}
	if len(strings.TrimSpace(dataSourceName)) == 0 {
		return ErrJournalNotConfigured
	}

	limit, _ := command.Flags().GetInt(limitFlagNameConstant)

	opener := builder.Opener
	if opener == nil {
		opener = Open
	}

	journal, openError := opener(command.Context(), dataSourceName)
	if openError != nil {
		return openError
	}
	defer journal.Close()

	entries, readError := journal.LastRuns(command.Context(), limit)
	if readError != nil {
		return readError
	}

	RenderHistory(command.OutOrStdout(), entries)
	return nil
}

// RenderHistory writes entries as a bordered table.
func RenderHistory(writer io.Writer, entries []Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(writer, emptyHistoryMessageConstant)
		return
	}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			shortRunIdentifier(entry.RunID),
			entry.FinishedAt.Local().Format(historyTimestampLayoutConstant),
			entry.Unit,
			string(entry.Phase),
			string(entry.Status),
			entry.Duration.Round(durationRoundingConstant).String(),
			entry.Reason,
		})
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	rendered := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(
			historyHeaderRunConstant,
			historyHeaderFinishedConstant,
			historyHeaderUnitConstant,
			historyHeaderPhaseConstant,
			historyHeaderStatusConstant,
			historyHeaderDurationConstant,
			historyHeaderReasonConstant,
		).
		Rows(rows...).
		StyleFunc(func(row int, column int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	fmt.Fprintln(writer, rendered.Render())
}

func shortRunIdentifier(runIdentifier string) string {
	if len(runIdentifier) <= runIdentifierDisplayLengthConstant {
		return runIdentifier
	}
	return runIdentifier[:runIdentifierDisplayLengthConstant]
}
