package migrate

import (
	"strings"
	"time"

	"github.com/propertybuilder/propsync/internal/environment"
	"github.com/propertybuilder/propsync/internal/execshell"
	"github.com/propertybuilder/propsync/internal/units"
)

const (
	defaultDirectoryConstant      = "migrations"
	defaultRootDirectoryConstant  = "."
	defaultUnitTimeoutConstant    = 60 * time.Second
	defaultRootScriptNameConstant = "create-site-visits-table.js"
)

// DefaultPriority lists units that must run before every other unit, in order.
var DefaultPriority = []string{
	"migrate.js",
	"create-otp-tables.js",
	"run-migration.js",
	"add-user-roles.js",
	"create-properties-table.js",
	"create-subscriptions-table.js",
}

// CommandConfiguration captures persisted configuration for the migrate and plan commands.
type CommandConfiguration struct {
	Directory           string        `mapstructure:"directory"`
	RootDirectory       string        `mapstructure:"root_directory"`
	Interpreter         string        `mapstructure:"interpreter"`
	Extensions          []string      `mapstructure:"extensions"`
	Exclude             []string      `mapstructure:"exclude"`
	Priority            []string      `mapstructure:"priority"`
	DependenciesFile    string        `mapstructure:"dependencies_file"`
	RootScripts         []string      `mapstructure:"root_scripts"`
	UnitTimeout         time.Duration `mapstructure:"unit_timeout"`
	EnvironmentFile     string        `mapstructure:"env_file"`
	RelaxTLS            bool          `mapstructure:"relax_tls"`
	TLSOverrideVariable string        `mapstructure:"tls_override_variable"`
	JournalDSN          string        `mapstructure:"journal_dsn"`
	PreflightDSN        string        `mapstructure:"preflight_dsn"`
}

// DefaultCommandConfiguration returns baseline configuration values for a migration run.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{
		Directory:           defaultDirectoryConstant,
		RootDirectory:       defaultRootDirectoryConstant,
		Interpreter:         string(execshell.CommandNode),
		Extensions:          append([]string{}, units.DefaultExtensions...),
		Exclude:             append([]string{}, units.DefaultExclusions...),
		Priority:            append([]string{}, DefaultPriority...),
		RootScripts:         []string{defaultRootScriptNameConstant},
		UnitTimeout:         defaultUnitTimeoutConstant,
		RelaxTLS:            true,
		TLSOverrideVariable: environment.DefaultTLSOverrideVariable,
	}
}

// Sanitize trims configured values, removes empty entries, and restores defaults for
// required values left blank.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	defaults := DefaultCommandConfiguration()
	sanitized := configuration

	sanitized.Directory = valueOrDefault(configuration.Directory, defaults.Directory)
	sanitized.RootDirectory = valueOrDefault(configuration.RootDirectory, defaults.RootDirectory)
	sanitized.Interpreter = valueOrDefault(configuration.Interpreter, defaults.Interpreter)
	sanitized.TLSOverrideVariable = valueOrDefault(configuration.TLSOverrideVariable, defaults.TLSOverrideVariable)
	sanitized.DependenciesFile = strings.TrimSpace(configuration.DependenciesFile)
	sanitized.EnvironmentFile = strings.TrimSpace(configuration.EnvironmentFile)
	sanitized.JournalDSN = strings.TrimSpace(configuration.JournalDSN)
	sanitized.PreflightDSN = strings.TrimSpace(configuration.PreflightDSN)
	sanitized.Extensions = sanitizeList(configuration.Extensions)
	sanitized.Exclude = sanitizeList(configuration.Exclude)
	sanitized.Priority = sanitizeList(configuration.Priority)
	sanitized.RootScripts = sanitizeList(configuration.RootScripts)

	if sanitized.UnitTimeout < 0 {
		sanitized.UnitTimeout = 0
	}

	return sanitized
}

// DiscoveryOptions converts the configuration into unit discovery options.
func (configuration CommandConfiguration) DiscoveryOptions() units.DiscoveryOptions {
	return units.DiscoveryOptions{
		Extensions: append([]string{}, configuration.Extensions...),
		Exclude:    append([]string{}, configuration.Exclude...),
	}
}

// EnvironmentSettings converts the configuration into per-unit environment settings.
func (configuration CommandConfiguration) EnvironmentSettings() environment.Settings {
	return environment.Settings{
		EnvironmentFile:     configuration.EnvironmentFile,
		RelaxTLS:            configuration.RelaxTLS,
		TLSOverrideVariable: configuration.TLSOverrideVariable,
	}
}

func valueOrDefault(value string, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallback
	}
	return trimmed
}

func sanitizeList(values []string) []string {
	sanitized := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if len(trimmed) == 0 {
			continue
		}
		sanitized = append(sanitized, trimmed)
	}
	return sanitized
}
