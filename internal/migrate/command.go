package migrate

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/propertybuilder/propsync/internal/environment"
	"github.com/propertybuilder/propsync/internal/execshell"
	"github.com/propertybuilder/propsync/internal/plan"
	"github.com/propertybuilder/propsync/internal/ui"
	"github.com/propertybuilder/propsync/internal/units"
	"github.com/propertybuilder/propsync/internal/utils"
	pathutils "github.com/propertybuilder/propsync/internal/utils/path"
)

const (
	migrateCommandUseConstant                 = "migrate"
	migrateCommandShortDescriptionConstant    = "Run every migration unit, continuing past failures"
	migrateCommandLongDescriptionConstant     = "migrate discovers migration units, orders them priority-first, runs each one as a separate process with a timeout, then runs the root-level scripts. Unit failures are reported but never stop the run, and the command exits successfully unless the migration directory cannot be read."
	planCommandUseConstant                    = "plan"
	planCommandShortDescriptionConstant       = "Print the migration execution order"
	directoryFlagNameConstant                 = "directory"
	directoryFlagUsageConstant                = "Directory containing migration units"
	rootDirectoryFlagNameConstant             = "root-directory"
	rootDirectoryFlagUsageConstant            = "Directory containing the root-level scripts"
	timeoutFlagNameConstant                   = "timeout"
	timeoutFlagUsageConstant                  = "Per-unit timeout for directory units"
	dryRunFlagNameConstant                    = "dry-run"
	dryRunFlagUsageConstant                   = "Print the execution plan without running any unit"
	journalFlagNameConstant                   = "journal"
	journalFlagUsageConstant                  = "Record unit outcomes in the journal at this DSN (postgres://, libsql://, or a SQLite file)"
	dependenciesFlagNameConstant              = "dependencies"
	dependenciesFlagUsageConstant             = "Manifest declaring unit priority and dependencies (YAML, TOML, or JSON)"
	workingDirectoryErrorTemplateConstant     = "unable to determine working directory: %w"
	manifestLoadErrorTemplateConstant         = "unable to load migration manifest: %w"
	environmentErrorTemplateConstant          = "unable to prepare unit environment: %w"
	migrationRunErrorTemplateConstant         = "migration run failed: %w"
	migrationInterruptedErrorTemplate         = "migration run interrupted: %w"
	planHeaderTemplateConstant                = "Execution plan for %s (%d units)\n"
	planPriorityLineTemplateConstant          = "%3d. %s  [priority %d]\n"
	planLineTemplateConstant                  = "%3d. %s\n"
	planRootHeaderTemplateConstant            = "Root scripts in %s\n"
	planRootLineTemplateConstant              = "     %s\n"
	logMessagePreflightFailedConstant         = "Database preflight check failed; continuing"
	logMessagePreflightPassedConstant         = "Database preflight check passed"
	logMessageJournalUnavailableConstant      = "Run journal unavailable; outcomes not recorded"
	logMessageJournalRecordFailedConstant     = "Unable to record run outcomes"
	logMessageJournalCloseFailedConstant      = "Unable to close run journal"
	logMessageRunFinishedConstant             = "Migration run finished"
	logFieldRunIdentifierConstant             = "run_id"
	logFieldDurationConstant                  = "duration"
	journalRecordTimeoutConstant              = 30 * time.Second
	dependenciesFileLogFieldConstant          = "dependencies_file"
	logMessageManifestLoadedConstant          = "Migration manifest loaded"
	logFieldManifestPriorityConstant          = "manifest_priority"
	logFieldManifestDependencyCountConstant   = "manifest_dependency_count"
	logFieldManifestRootScriptCountConstant   = "manifest_root_script_count"
	executorCreationErrorTemplateConstant     = "unable to construct unit executor: %w"
	serviceCreationErrorTemplateConstant      = "unable to construct migration service: %w"
	migrationRunInterruptedLogMessageConstant = "Migration run interrupted"
	logMessageConfigurationResolvedConstant   = "Migration configuration resolved"
	logFieldConfigurationFileConstant         = "config_file"
	logFieldInterpreterConstant               = "interpreter"
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ReportRecorder persists the outcomes of a run.
type ReportRecorder interface {
	Record(executionContext context.Context, runIdentifier string, report RunReport) error
	Close() error
}

// ReportRecorderProvider opens a ReportRecorder for the supplied DSN.
type ReportRecorderProvider func(executionContext context.Context, dataSourceName string) (ReportRecorder, error)

// PreflightChecker verifies that the target database is reachable before units run.
type PreflightChecker func(executionContext context.Context, dataSourceName string, relaxTLS bool) error

// ServiceProvider constructs a migration service from dependencies.
type ServiceProvider func(dependencies ServiceDependencies) (*Service, error)

// CommandBuilder assembles the migrate and plan Cobra commands.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConsoleLoggerProvider LoggerProvider
	ConfigurationProvider func() CommandConfiguration
	WorkingDirectory      string
	Executor              UnitExecutor
	Discoverer            UnitDiscoverer
	ServiceProvider       ServiceProvider
	RecorderProvider      ReportRecorderProvider
	PreflightChecker      PreflightChecker
	RunIdentifierProvider func() string
	ColorEnabledProvider  func() bool
	UnitOutput            io.Writer
}

type commandOptions struct {
	configuration   CommandConfiguration
	dryRun          bool
	debugLogging    bool
	directory       string
	rootDirectory   string
	environmentFile string
}

// Build constructs the migrate command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           migrateCommandUseConstant,
		Short:         migrateCommandShortDescriptionConstant,
		Long:          migrateCommandLongDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runMigrate,
	}

	builder.registerPlanningFlags(command)
	command.Flags().String(rootDirectoryFlagNameConstant, "", rootDirectoryFlagUsageConstant)
	command.Flags().Duration(timeoutFlagNameConstant, 0, timeoutFlagUsageConstant)
	command.Flags().Bool(dryRunFlagNameConstant, false, dryRunFlagUsageConstant)
	command.Flags().String(journalFlagNameConstant, "", journalFlagUsageConstant)

	return command, nil
}

// BuildPlan constructs the plan command.
func (builder *CommandBuilder) BuildPlan() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           planCommandUseConstant,
		Short:         planCommandShortDescriptionConstant,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          builder.runPlan,
	}

	builder.registerPlanningFlags(command)
	command.Flags().String(rootDirectoryFlagNameConstant, "", rootDirectoryFlagUsageConstant)

	return command, nil
}

func (builder *CommandBuilder) registerPlanningFlags(command *cobra.Command) {
	command.Flags().String(directoryFlagNameConstant, "", directoryFlagUsageConstant)
	command.Flags().String(dependenciesFlagNameConstant, "", dependenciesFlagUsageConstant)
}

func (builder *CommandBuilder) runPlan(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger(options.debugLogging)
	service, serviceError := builder.resolveService(logger, options, nil)
	if serviceError != nil {
		return serviceError
	}

	runOptions, runOptionsError := builder.buildRunOptions(logger, options)
	if runOptionsError != nil {
		return runOptionsError
	}

	executionPlan, planError := service.Plan(runOptions)
	if planError != nil {
		return planError
	}

	printPlan(command.OutOrStdout(), runOptions, executionPlan)
	return nil
}

func (builder *CommandBuilder) runMigrate(command *cobra.Command, arguments []string) error {
	options, optionsError := builder.parseOptions(command)
	if optionsError != nil {
		return optionsError
	}

	logger := builder.resolveLogger(options.debugLogging)
	configurationFile, _ := utils.NewCommandContextAccessor().ConfigurationFilePath(command.Context())
	logger.Debug(
		logMessageConfigurationResolvedConstant,
		zap.String(logFieldConfigurationFileConstant, configurationFile),
		zap.String(logFieldInterpreterConstant, options.configuration.Interpreter),
	)

	runOptions, runOptionsError := builder.buildRunOptions(logger, options)
	if runOptionsError != nil {
		return runOptionsError
	}

	environmentSettings := options.configuration.EnvironmentSettings()
	environmentSettings.EnvironmentFile = options.environmentFile
	environmentOverrides, environmentError := environment.Build(environmentSettings)
	if environmentError != nil {
		return fmt.Errorf(environmentErrorTemplateConstant, environmentError)
	}

	service, serviceError := builder.resolveService(logger, options, environmentOverrides)
	if serviceError != nil {
		return serviceError
	}

	if options.dryRun {
		executionPlan, planError := service.Plan(runOptions)
		if planError != nil {
			return planError
		}
		printPlan(command.OutOrStdout(), runOptions, executionPlan)
		return nil
	}

	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}

	builder.runPreflight(executionContext, logger, options.configuration)

	report, runError := service.Run(executionContext, runOptions)
	if runError != nil {
		return fmt.Errorf(migrationRunErrorTemplateConstant, runError)
	}

	NewReportPrinter(command.OutOrStdout(), builder.colorEnabled()).Print(report)

	runIdentifier := builder.nextRunIdentifier()
	logger.Info(
		logMessageRunFinishedConstant,
		zap.String(logFieldRunIdentifierConstant, runIdentifier),
		zap.Int(logFieldSucceededCountConstant, len(report.Succeeded())),
		zap.Int(logFieldFailedCountConstant, len(report.Failed())),
		zap.Int(logFieldSkippedCountConstant, len(report.Skipped())),
		zap.Duration(logFieldDurationConstant, report.Duration()),
	)

	builder.recordReport(executionContext, logger, options.configuration.JournalDSN, runIdentifier, report)

	if cancellationError := executionContext.Err(); cancellationError != nil {
		logger.Warn(migrationRunInterruptedLogMessageConstant, zap.Error(cancellationError))
		return fmt.Errorf(migrationInterruptedErrorTemplate, cancellationError)
	}

	return nil
}

func (builder *CommandBuilder) parseOptions(command *cobra.Command) (commandOptions, error) {
	configuration := builder.resolveConfiguration()

	debugEnabled := false
	if command != nil {
		contextAccessor := utils.NewCommandContextAccessor()
		if logLevel, available := contextAccessor.LogLevel(command.Context()); available {
			debugEnabled = strings.EqualFold(logLevel, string(utils.LogLevelDebug))
		}
	}

	dryRun := false
	if command != nil {
		flags := command.Flags()
		if flags.Changed(directoryFlagNameConstant) {
			configuration.Directory, _ = flags.GetString(directoryFlagNameConstant)
		}
		if flags.Changed(rootDirectoryFlagNameConstant) {
			configuration.RootDirectory, _ = flags.GetString(rootDirectoryFlagNameConstant)
		}
		if flags.Changed(dependenciesFlagNameConstant) {
			configuration.DependenciesFile, _ = flags.GetString(dependenciesFlagNameConstant)
		}
		if flags.Changed(timeoutFlagNameConstant) {
			configuration.UnitTimeout, _ = flags.GetDuration(timeoutFlagNameConstant)
		}
		if flags.Changed(journalFlagNameConstant) {
			configuration.JournalDSN, _ = flags.GetString(journalFlagNameConstant)
		}
		if flags.Lookup(dryRunFlagNameConstant) != nil {
			dryRun, _ = flags.GetBool(dryRunFlagNameConstant)
		}
	}
	configuration = configuration.Sanitize()

	workingDirectory := strings.TrimSpace(builder.WorkingDirectory)
	if len(workingDirectory) == 0 {
		currentDirectory, workingDirectoryError := os.Getwd()
		if workingDirectoryError != nil {
			return commandOptions{}, fmt.Errorf(workingDirectoryErrorTemplateConstant, workingDirectoryError)
		}
		workingDirectory = currentDirectory
	}
	resolver := pathutils.NewDirectoryResolver(workingDirectory)

	if len(configuration.DependenciesFile) > 0 {
		configuration.DependenciesFile = resolver.Resolve(configuration.DependenciesFile)
	}

	environmentFile := ""
	if len(configuration.EnvironmentFile) > 0 {
		environmentFile = resolver.Resolve(configuration.EnvironmentFile)
	}

	return commandOptions{
		configuration:   configuration,
		dryRun:          dryRun,
		debugLogging:    debugEnabled,
		directory:       resolver.Resolve(configuration.Directory),
		rootDirectory:   resolver.Resolve(configuration.RootDirectory),
		environmentFile: environmentFile,
	}, nil
}

func (builder *CommandBuilder) buildRunOptions(logger *zap.Logger, options commandOptions) (Options, error) {
	configuration := options.configuration
	runOptions := Options{
		Directory:     options.directory,
		RootDirectory: options.rootDirectory,
		Discovery:     configuration.DiscoveryOptions(),
		Priority:      append([]string{}, configuration.Priority...),
		RootScripts:   append([]string{}, configuration.RootScripts...),
	}

	if len(configuration.DependenciesFile) == 0 {
		return runOptions, nil
	}

	manifest, manifestError := plan.LoadManifest(configuration.DependenciesFile)
	if manifestError != nil {
		return Options{}, fmt.Errorf(manifestLoadErrorTemplateConstant, manifestError)
	}
	logger.Debug(
		logMessageManifestLoadedConstant,
		zap.String(dependenciesFileLogFieldConstant, configuration.DependenciesFile),
		zap.Strings(logFieldManifestPriorityConstant, manifest.Priority),
		zap.Int(logFieldManifestDependencyCountConstant, len(manifest.Dependencies)),
		zap.Int(logFieldManifestRootScriptCountConstant, len(manifest.RootScripts)),
	)

	if len(manifest.Priority) == 0 {
		manifest.Priority = runOptions.Priority
	}
	if len(manifest.RootScripts) > 0 {
		runOptions.RootScripts = append([]string{}, manifest.RootScripts...)
	}
	runOptions.Priority = append([]string{}, manifest.Priority...)
	runOptions.Dependencies = manifest.EffectiveDependencies()

	return runOptions, nil
}

func (builder *CommandBuilder) resolveService(logger *zap.Logger, options commandOptions, environmentOverrides map[string]string) (*Service, error) {
	executor, executorError := builder.resolveExecutor(logger)
	if executorError != nil {
		return nil, fmt.Errorf(executorCreationErrorTemplateConstant, executorError)
	}

	unitOutput := builder.UnitOutput
	if unitOutput == nil {
		unitOutput = utils.NewFlushingWriter(os.Stdout)
	}

	dependencies := ServiceDependencies{
		Logger:               logger,
		Executor:             executor,
		Discoverer:           builder.resolveDiscoverer(),
		Interpreter:          execshell.CommandName(options.configuration.Interpreter),
		UnitTimeout:          options.configuration.UnitTimeout,
		EnvironmentOverrides: environmentOverrides,
		StandardOutput:       unitOutput,
		StandardError:        unitOutput,
	}

	if builder.ServiceProvider != nil {
		return builder.ServiceProvider(dependencies)
	}

	service, serviceError := NewService(dependencies)
	if serviceError != nil {
		return nil, fmt.Errorf(serviceCreationErrorTemplateConstant, serviceError)
	}
	return service, nil
}

func (builder *CommandBuilder) resolveExecutor(logger *zap.Logger) (UnitExecutor, error) {
	if builder.Executor != nil {
		return builder.Executor, nil
	}

	shellExecutor, creationError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
	if creationError != nil {
		return nil, creationError
	}

	var consoleLogger *zap.Logger
	if builder.ConsoleLoggerProvider != nil {
		consoleLogger = builder.ConsoleLoggerProvider()
	}
	shellExecutor.SetEventObserver(ui.NewConsoleCommandEventLogger(consoleLogger))
	return shellExecutor, nil
}

func (builder *CommandBuilder) resolveDiscoverer() UnitDiscoverer {
	if builder.Discoverer != nil {
		return builder.Discoverer
	}
	return units.NewFilesystemUnitDiscoverer()
}

func (builder *CommandBuilder) resolveLogger(enableDebug bool) *zap.Logger {
	var logger *zap.Logger
	if builder.LoggerProvider != nil {
		logger = builder.LoggerProvider()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if enableDebug {
		logger = logger.WithOptions(zap.IncreaseLevel(zapcore.DebugLevel))
	}
	return logger
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider()
}

func (builder *CommandBuilder) colorEnabled() bool {
	if builder.ColorEnabledProvider != nil {
		return builder.ColorEnabledProvider()
	}
	return ui.ColorSupported()
}

func (builder *CommandBuilder) nextRunIdentifier() string {
	if builder.RunIdentifierProvider != nil {
		return builder.RunIdentifierProvider()
	}
	return uuid.NewString()
}

func (builder *CommandBuilder) runPreflight(executionContext context.Context, logger *zap.Logger, configuration CommandConfiguration) {
	if len(configuration.PreflightDSN) == 0 || builder.PreflightChecker == nil {
		return
	}

	if preflightError := builder.PreflightChecker(executionContext, configuration.PreflightDSN, configuration.RelaxTLS); preflightError != nil {
		logger.Warn(logMessagePreflightFailedConstant, zap.Error(preflightError))
		return
	}
	logger.Info(logMessagePreflightPassedConstant)
}

func (builder *CommandBuilder) recordReport(executionContext context.Context, logger *zap.Logger, dataSourceName string, runIdentifier string, report RunReport) {
	if len(dataSourceName) == 0 || builder.RecorderProvider == nil {
		return
	}

	recordContext, cancel := context.WithTimeout(context.WithoutCancel(executionContext), journalRecordTimeoutConstant)
	defer cancel()

	recorder, recorderError := builder.RecorderProvider(recordContext, dataSourceName)
	if recorderError != nil {
		logger.Warn(logMessageJournalUnavailableConstant, zap.Error(recorderError))
		return
	}
	defer func() {
		if closeError := recorder.Close(); closeError != nil {
			logger.Warn(logMessageJournalCloseFailedConstant, zap.Error(closeError))
		}
	}()

	if recordError := recorder.Record(recordContext, runIdentifier, report); recordError != nil {
		logger.Warn(
			logMessageJournalRecordFailedConstant,
			zap.String(logFieldRunIdentifierConstant, runIdentifier),
			zap.Error(recordError),
		)
	}
}

func printPlan(writer io.Writer, runOptions Options, executionPlan []string) {
	fmt.Fprintf(writer, planHeaderTemplateConstant, runOptions.Directory, len(executionPlan))
	for index, unit := range units.Describe(executionPlan, runOptions.Priority) {
		if unit.IsPriority {
			fmt.Fprintf(writer, planPriorityLineTemplateConstant, index+1, unit.Name, unit.PriorityRank+1)
			continue
		}
		fmt.Fprintf(writer, planLineTemplateConstant, index+1, unit.Name)
	}

	if len(runOptions.RootScripts) == 0 {
		return
	}
	fmt.Fprintf(writer, planRootHeaderTemplateConstant, runOptions.RootDirectory)
	for _, name := range runOptions.RootScripts {
		fmt.Fprintf(writer, planRootLineTemplateConstant, name)
	}
}
