package subscriptions

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	commandUseConstant              = "subscription-plan [plan-id]"
	commandShortDescriptionConstant = "Show one subscription plan or list them all"
	outputFlagNameConstant          = "output"
	outputFlagUsageConstant         = "Output format: text, yaml, or json"
	outputFormatTextConstant        = "text"
	outputFormatYAMLConstant        = "yaml"
	outputFormatJSONConstant        = "json"
	unknownPlanErrorTemplate        = "unknown subscription plan %q"
	unsupportedFormatErrorTemplate  = "unsupported output format %q"
	planLineTemplateConstant        = "%-12s %-22s %3d mo %7d %5d properties  %s\n"
	jsonIndentConstant              = "  "
)

// UnknownPlanError reports a lookup for an identifier missing from the catalog.
type UnknownPlanError struct {
	Identifier string
}

// Error names the missing identifier.
func (failure UnknownPlanError) Error() string {
	return fmt.Sprintf(unknownPlanErrorTemplate, failure.Identifier)
}

// CommandBuilder assembles the subscription-plan Cobra command.
type CommandBuilder struct{}

// Build constructs the subscription-plan command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MaximumNArgs(1),
		RunE:          builder.run,
	}
	command.Flags().String(outputFlagNameConstant, outputFormatTextConstant, outputFlagUsageConstant)
	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	format, _ := command.Flags().GetString(outputFlagNameConstant)

	plans := Plans()
	if len(arguments) == 1 {
		identifier := strings.TrimSpace(arguments[0])
		plan, found := PlanByID(identifier)
		if !found {
			return UnknownPlanError{Identifier: identifier}
		}
		plans = []Plan{plan}
	}

	return writePlans(command.OutOrStdout(), plans, strings.ToLower(strings.TrimSpace(format)))
}

func writePlans(writer io.Writer, plans []Plan, format string) error {
	switch format {
	case outputFormatTextConstant:
		for _, plan := range plans {
			fmt.Fprintf(writer, planLineTemplateConstant, plan.ID, plan.Name, plan.DurationMonths, plan.Price, plan.PropertiesAllowed, plan.UserType)
		}
		return nil
	case outputFormatYAMLConstant:
		encoder := yaml.NewEncoder(writer)
		defer encoder.Close()
		return encoder.Encode(plans)
	case outputFormatJSONConstant:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", jsonIndentConstant)
		return encoder.Encode(plans)
	default:
		return fmt.Errorf(unsupportedFormatErrorTemplate, format)
	}
}
