package smtpcheck

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	commandUseConstant              = "smtp-check"
	commandShortDescriptionConstant = "Verify the configured SMTP host accepts the configured credentials"
	hostFlagNameConstant            = "host"
	hostFlagUsageConstant           = "SMTP host"
	portFlagNameConstant            = "port"
	portFlagUsageConstant           = "SMTP port"
	usernameFlagNameConstant        = "username"
	usernameFlagUsageConstant       = "SMTP username (the password is read from tools.smtp.password)"
	timeoutFlagNameConstant         = "timeout"
	timeoutFlagUsageConstant        = "Connection and session timeout"
	requireTLSFlagNameConstant      = "require-tls"
	requireTLSFlagUsageConstant     = "Fail when the server does not offer STARTTLS"
	verificationFailedTemplate      = "SMTP verification failed: %w"
	verificationSucceededTemplate   = "SMTP verification succeeded for %s (%s)\n"
	tlsDescriptionConstant          = "tls"
	plaintextDescriptionConstant    = "plaintext"
	authenticatedDescription        = "authenticated"
	anonymousDescriptionConstant    = "anonymous"
	descriptionSeparatorConstant    = ", "
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// SettingsProvider supplies persisted SMTP settings.
type SettingsProvider func() Settings

// CommandBuilder assembles the smtp-check Cobra command.
type CommandBuilder struct {
	LoggerProvider   LoggerProvider
	SettingsProvider SettingsProvider
	CheckerProvider  func(logger *zap.Logger) *Checker
}

// Build constructs the smtp-check command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.run,
	}

	defaults := DefaultSettings()
	command.Flags().String(hostFlagNameConstant, "", hostFlagUsageConstant)
	command.Flags().Int(portFlagNameConstant, defaults.Port, portFlagUsageConstant)
	command.Flags().String(usernameFlagNameConstant, "", usernameFlagUsageConstant)
	command.Flags().Duration(timeoutFlagNameConstant, defaults.Timeout, timeoutFlagUsageConstant)
	command.Flags().Bool(requireTLSFlagNameConstant, false, requireTLSFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	settings := builder.resolveSettings()

	flags := command.Flags()
	if flags.Changed(hostFlagNameConstant) {
		settings.Host, _ = flags.GetString(hostFlagNameConstant)
	}
	if flags.Changed(portFlagNameConstant) {
		settings.Port, _ = flags.GetInt(portFlagNameConstant)
	}
	if flags.Changed(usernameFlagNameConstant) {
		settings.Username, _ = flags.GetString(usernameFlagNameConstant)
	}
	if flags.Changed(timeoutFlagNameConstant) {
		settings.Timeout, _ = flags.GetDuration(timeoutFlagNameConstant)
	}
	if flags.Changed(requireTLSFlagNameConstant) {
		settings.RequireTLS, _ = flags.GetBool(requireTLSFlagNameConstant)
	}

	logger := zap.NewNop()
	if builder.LoggerProvider != nil {
		if providedLogger := builder.LoggerProvider(); providedLogger != nil {
			logger = providedLogger
		}
	}

	checker := NewChecker(logger)
	if builder.CheckerProvider != nil {
		checker = builder.CheckerProvider(logger)
	}

	result, verifyError := checker.Verify(command.Context(), settings)
	if verifyError != nil {
		return fmt.Errorf(verificationFailedTemplate, verifyError)
	}

	fmt.Fprintf(command.OutOrStdout(), verificationSucceededTemplate, result.Address, describeResult(result))
	return nil
}

func (builder *CommandBuilder) resolveSettings() Settings {
	defaults := DefaultSettings()
	if builder.SettingsProvider == nil {
		return defaults
	}
	settings := builder.SettingsProvider()
	if settings.Port <= 0 {
		settings.Port = defaults.Port
	}
	if settings.Timeout <= 0 {
		settings.Timeout = defaults.Timeout
	}
	return settings
}

func describeResult(result Result) string {
	parts := []string{plaintextDescriptionConstant, anonymousDescriptionConstant}
	if result.TLS {
		parts[0] = tlsDescriptionConstant
	}
	if result.Authenticated {
		parts[1] = authenticatedDescription
	}
	return strings.Join(parts, descriptionSeparatorConstant)
}
