package app

import (
	"strings"

	"github.com/charlesng35/reviewhub/pkg/logger"
)

// ConfigureLogging initialises the global logger with the provided level, defaulting to info.
func ConfigureLogging(level string) error {
	return ConfigureLoggingWithFormat(level, "")
}

// ConfigureLoggingWithFormat initialises the global logger using level and encoder format.
func ConfigureLoggingWithFormat(level, format string) error {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "info"
	}
	return logger.InitWithOptions(logger.Options{Level: level, Format: format})
}
