package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

const timeFormat = "15:04:05.000"

// InitLogger builds the application logger from the logging section
func InitLogger(config LoggingConfig) arbor.ILogger {
	logger := arbor.NewLogger()

	hasConsole := len(config.Output) == 0
	for _, output := range config.Output {
		switch output {
		case "console", "stdout":
			hasConsole = true
		case "file":
			logger = withFileWriter(logger, config.File)
		}
	}

	if hasConsole {
		logger = logger.WithConsoleWriter(models.WriterConfiguration{
			Type:       models.LogWriterTypeConsole,
			TimeFormat: timeFormat,
			TextOutput: true,
		})
	}

	level := config.Level
	if level == "" {
		level = "info"
	}
	return logger.WithLevelFromString(level)
}

func withFileWriter(logger arbor.ILogger, file string) arbor.ILogger {
	if file == "" {
		file = filepath.Join("logs", "promptqueue.log")
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create log directory: %v\n", err)
		return logger
	}
	return logger.WithFileWriter(models.WriterConfiguration{
		Type:       models.LogWriterTypeFile,
		FileName:   file,
		TimeFormat: timeFormat,
		MaxSize:    50 * 1024 * 1024,
		MaxBackups: 3,
		TextOutput: true,
	})
}

// NewTestLogger returns a logger without writers
func NewTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}
