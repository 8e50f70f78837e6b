package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/propertybuilder/propsync/internal/dbcheck"
	"github.com/propertybuilder/propsync/internal/journal"
	"github.com/propertybuilder/propsync/internal/migrate"
	"github.com/propertybuilder/propsync/internal/smtpcheck"
	"github.com/propertybuilder/propsync/internal/subscriptions"
	"github.com/propertybuilder/propsync/internal/subtypes"
	"github.com/propertybuilder/propsync/internal/utils"
)

const (
	applicationNameConstant                       = "propsync"
	applicationShortDescriptionConstant           = "Database migration orchestrator and operator tools for the property builder platform"
	applicationLongDescriptionConstant            = "propsync runs the platform's migration units in a deterministic priority-first order, records their outcomes, and ships small operator checks for the surrounding services."
	configFileFlagNameConstant                    = "config"
	configFileFlagUsageConstant                   = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                      = "log-level"
	logLevelFlagUsageConstant                     = "Override the configured log level."
	logFormatFlagNameConstant                     = "log-format"
	logFormatFlagUsageConstant                    = "Override the configured log format (structured or console)."
	commonConfigurationKeyConstant                = "common"
	commonLogLevelConfigKeyConstant               = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant              = commonConfigurationKeyConstant + ".log_format"
	environmentPrefixConstant                     = "PROPSYNC"
	configurationNameConstant                     = "config"
	configurationTypeConstant                     = "yaml"
	configurationInitializedMessageConstant       = "configuration initialized"
	configurationLogLevelFieldConstant            = "log_level"
	configurationLogFormatFieldConstant           = "log_format"
	configurationFileFieldConstant                = "config_file"
	configurationLoadErrorTemplateConstant        = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant           = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant               = "unable to flush logger: %w"
	loggerNotInitializedMessageConstant           = "logger not initialized"
	commandRegistrationErrorTemplateConstant      = "unable to register command: %w"
	defaultConfigurationSearchPathConstant        = "."
	xdgConfigHomeEnvironmentNameConstant          = "XDG_CONFIG_HOME"
	userConfigurationDirectoryNameConstant        = ".config"
	applicationConfigurationDirectoryNameConstant = "propsync"
)

// Version is reported by --version and overridden at build time with -ldflags.
var Version = "dev"

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common ApplicationCommonConfiguration `mapstructure:"common"`
	Tools  ApplicationToolsConfiguration  `mapstructure:"tools"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationToolsConfiguration holds configuration for CLI subcommands grouped by tool family.
type ApplicationToolsConfiguration struct {
	Migrate migrate.CommandConfiguration `mapstructure:"migrate"`
	SMTP    smtpcheck.Settings           `mapstructure:"smtp"`
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	consoleLogger          *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	commandContextAccessor utils.CommandContextAccessor
	registrationError      error
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		configurationSearchPaths(),
	)
	embeddedConfiguration, embeddedConfigurationType := EmbeddedDefaultConfiguration()
	configurationLoader.SetEmbeddedConfiguration(embeddedConfiguration, embeddedConfigurationType)

	application := &Application{
		configurationLoader:    configurationLoader,
		loggerFactory:          utils.NewLoggerFactory(),
		logger:                 zap.NewNop(),
		consoleLogger:          zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	application.rootCommand = cobraCommand
	application.registerCommands()

	return application
}

func (application *Application) registerCommands() {
	migrationBuilder := migrate.CommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return application.logger
		},
		ConsoleLoggerProvider: func() *zap.Logger {
			return application.consoleLogger
		},
		ConfigurationProvider: func() migrate.CommandConfiguration {
			return application.configuration.Tools.Migrate
		},
		RecorderProvider: journal.OpenRecorder,
		PreflightChecker: dbcheck.Ping,
	}
	if workingDirectory, workingDirectoryError := os.Getwd(); workingDirectoryError == nil {
		migrationBuilder.WorkingDirectory = workingDirectory
	}

	historyBuilder := journal.CommandBuilder{
		DataSourceNameProvider: func() string {
			return application.configuration.Tools.Migrate.JournalDSN
		},
	}

	smtpBuilder := smtpcheck.CommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return application.logger
		},
		SettingsProvider: func() smtpcheck.Settings {
			return application.configuration.Tools.SMTP
		},
	}

	subscriptionBuilder := subscriptions.CommandBuilder{}
	subtypesBuilder := subtypes.CommandBuilder{}

	builders := []func() (*cobra.Command, error){
		migrationBuilder.Build,
		migrationBuilder.BuildPlan,
		historyBuilder.Build,
		smtpBuilder.Build,
		subscriptionBuilder.Build,
		subtypesBuilder.Build,
	}
	application.registrationError = application.addCommands(builders)
}

// addCommands attaches every successfully built subcommand and joins the build failures.
func (application *Application) addCommands(builders []func() (*cobra.Command, error)) error {
	var registrationErrors []error
	for _, build := range builders {
		command, buildError := build()
		if buildError != nil {
			registrationErrors = append(registrationErrors, fmt.Errorf(commandRegistrationErrorTemplateConstant, buildError))
			continue
		}
		application.rootCommand.AddCommand(command)
	}
	return errors.Join(registrationErrors...)
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	return application.ExecuteContext(context.Background())
}

// ExecuteContext runs the command hierarchy with the supplied context. Cancelling the context
// stops a migration run after the current unit is interrupted. A subcommand that failed to
// build is reported before anything runs.
func (application *Application) ExecuteContext(executionContext context.Context) error {
	if application.registrationError != nil {
		return application.registrationError
	}
	executionError := application.rootCommand.ExecuteContext(executionContext)
	if syncError := application.flushLogger(); syncError != nil && executionError == nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// RootCommand exposes the root command for embedding and tests.
func (application *Application) RootCommand() *cobra.Command {
	return application.rootCommand
}

// Configuration returns the configuration resolved by the most recent command invocation.
func (application *Application) Configuration() ApplicationConfiguration {
	return application.configuration
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute(executionContext context.Context) error {
	return NewApplication().ExecuteContext(executionContext)
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	loggerOutputs, loggerCreationError := application.loggerFactory.CreateLoggerOutputs(
		utils.LogLevel(strings.ToLower(strings.TrimSpace(application.configuration.Common.LogLevel))),
		utils.LogFormat(strings.ToLower(strings.TrimSpace(application.configuration.Common.LogFormat))),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = loggerOutputs.DiagnosticLogger
	application.consoleLogger = loggerOutputs.ConsoleLogger

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			command.Context(),
			application.configurationMetadata.ConfigFileUsed,
		)
		updatedContext = application.commandContextAccessor.WithLogLevel(updatedContext, application.configuration.Common.LogLevel)
		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil {
			rootCommand.SetContext(updatedContext)
		}
	}

	return nil
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.logger == nil {
		return errors.New(loggerNotInitializedMessageConstant)
	}
	return command.Help()
}

func (application *Application) flushLogger() error {
	if syncError := application.syncLoggerInstance(application.logger); syncError != nil {
		return syncError
	}
	return application.syncLoggerInstance(application.consoleLogger)
}

func (application *Application) syncLoggerInstance(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}

	syncError := logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	case errors.Is(syncError, syscall.ENOTTY):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}

func configurationSearchPaths() []string {
	searchPaths := []string{defaultConfigurationSearchPathConstant}

	configurationHome := strings.TrimSpace(os.Getenv(xdgConfigHomeEnvironmentNameConstant))
	if len(configurationHome) == 0 {
		if homeDirectory, homeError := os.UserHomeDir(); homeError == nil {
			configurationHome = filepath.Join(homeDirectory, userConfigurationDirectoryNameConstant)
		}
	}
	if len(configurationHome) > 0 {
		searchPaths = append(searchPaths, filepath.Join(configurationHome, applicationConfigurationDirectoryNameConstant))
	}
	return searchPaths
}
