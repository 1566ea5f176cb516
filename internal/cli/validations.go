package cli

import (
	"log/slog"
	"net/url"
)

// validateRootFlags validates the flags of the root command.
func validateRootFlags() string {
	if rootConfigPath == "" {
		return "A config file is required."
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(rootLogLevel)); err != nil {
		return "Invalid log level: " + rootLogLevel
	}

	if rootPyroscopeURL != "" {
		if u, err := url.Parse(rootPyroscopeURL); err != nil || u.Host == "" {
			return "Invalid Pyroscope URL: " + rootPyroscopeURL
		}
	}

	return ""
}

// validateBenchFlags validates the flags of the bench command.
func validateBenchFlags() string {
	// Root command flags are used by the bench command too.
	if message := validateRootFlags(); message != "" {
		return message
	}

	if benchDuration < 0 {
		return "Duration must not be negative."
	}

	if benchOutput != outputText && benchOutput != outputJSON {
		return "Output must be one of: text, json."
	}

	return ""
}

// validateWatchFlags validates the flags of the watch command.
func validateWatchFlags() string {
	if message := validateRootFlags(); message != "" {
		return message
	}

	if watchSource == "" {
		return "A source name is required."
	}

	if watchCount < 0 {
		return "Count must not be negative."
	}

	return ""
}
