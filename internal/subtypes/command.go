package subtypes

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

const (
	commandUseConstant              = "subtypes"
	commandShortDescriptionConstant = "Render the mixed-use property sub-type cards"
	selectedFlagNameConstant        = "selected"
	selectedFlagUsageConstant       = "Comma-separated sub-type identifiers that are already selected"
	toggleFlagNameConstant          = "toggle"
	toggleFlagUsageConstant         = "Sub-type identifiers to toggle, applied in order"
	columnsFlagNameConstant         = "columns"
	columnsFlagUsageConstant        = "Cards per row"
	selectionSummaryTemplate        = "Selected (%d): %s\n"
	noSelectionPlaceholderConstant  = "none"
	selectionSummarySeparator       = ", "
)

// CommandBuilder assembles the subtypes Cobra command.
type CommandBuilder struct{}

// Build constructs the subtypes command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}
	command.Flags().StringSlice(selectedFlagNameConstant, nil, selectedFlagUsageConstant)
	command.Flags().StringSlice(toggleFlagNameConstant, nil, toggleFlagUsageConstant)
	command.Flags().Int(columnsFlagNameConstant, defaultColumnsConstant, columnsFlagUsageConstant)
	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	selectedIdentifiers, _ := command.Flags().GetStringSlice(selectedFlagNameConstant)
	toggledIdentifiers, _ := command.Flags().GetStringSlice(toggleFlagNameConstant)
	columns, _ := command.Flags().GetInt(columnsFlagNameConstant)

	selection := NewSelection(trimIdentifiers(selectedIdentifiers)...)
	for _, identifier := range trimIdentifiers(toggledIdentifiers) {
		selection = selection.Toggle(identifier)
	}

	catalog := Catalog()
	if validationError := selection.Validate(catalog); validationError != nil {
		return validationError
	}

	writer := command.OutOrStdout()
	fmt.Fprintln(writer, RenderCards(catalog, selection, columns))

	summary := noSelectionPlaceholderConstant
	if selection.Len() > 0 {
		summary = strings.Join(selection.IDs(), selectionSummarySeparator)
	}
	fmt.Fprintf(writer, selectionSummaryTemplate, selection.Len(), summary)
	return nil
}

func trimIdentifiers(identifiers []string) []string {
	trimmed := make([]string, 0, len(identifiers))
	for _, identifier := range identifiers {
		if value := strings.TrimSpace(identifier); len(value) > 0 {
			trimmed = append(trimmed, value)
		}
	}
	return trimmed
}
