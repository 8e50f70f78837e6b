// Package utils exposes reusable helpers consumed by multiple commands.
//
// It houses the ConfigurationLoader and LoggerFactory abstractions that
// integrate Viper, environment variables, and zap logging for the propsync CLI,
// plus the FlushingWriter used to pass migration unit output through live.
package utils
