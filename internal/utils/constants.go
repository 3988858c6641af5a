package utils

const (
	// LoggerInitializationFailedMessageFormat wraps a logger construction failure.
	LoggerInitializationFailedMessageFormat = "failed to initialize logger: %w"
	// ApplicationExecutionFailedMessage prefixes a fatal command failure.
	ApplicationExecutionFailedMessage = "tokencount failed"
	// GitDirectoryName is the name of the Git repository directory.
	GitDirectoryName = ".git"
)

const (
	// GlobalConfigDirectoryName is the directory under the user's home holding global configuration.
	GlobalConfigDirectoryName = ".tokencount"
	// ConfigFileName is the name of configuration files, global and local.
	ConfigFileName = "config.yaml"
)
