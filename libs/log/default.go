package log

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// LogFormatPlain defines console-oriented plain-text output.
	LogFormatPlain string = "plain"

	// LogFormatJSON defines structured JSON output.
	LogFormatJSON string = "json"
)

const (
	LogLevelDebug string = "debug"
	LogLevelInfo  string = "info"
	LogLevelError string = "error"
)

var _ Logger = (*defaultLogger)(nil)

type defaultLogger struct {
	zerolog.Logger
}

// NewDefaultLogger returns a default logger that writes to os.Stderr in the
// given format at the given level. It returns an error if the format or
// level is invalid.
func NewDefaultLogger(format, level string) (Logger, error) {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level (%s): %w", level, err)
	}

	var logWriter zerolog.LevelWriter
	switch strings.ToLower(format) {
	case LogFormatPlain:
		logWriter = zerolog.MultiLevelWriter(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			NoColor:    true,
			TimeFormat: time.RFC3339,
		})

	case LogFormatJSON:
		logWriter = zerolog.MultiLevelWriter(os.Stderr)

	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}

	return defaultLogger{
		Logger: zerolog.New(logWriter).Level(logLevel).With().Timestamp().Logger(),
	}, nil
}

// MustNewDefaultLogger delegates to NewDefaultLogger, panicking on error.
func MustNewDefaultLogger(format, level string) Logger {
	logger, err := NewDefaultLogger(format, level)
	if err != nil {
		panic(err)
	}
	return logger
}

func (l defaultLogger) Debug(msg string, keyVals ...interface{}) {
	l.Logger.Debug().Fields(getLogFields(keyVals...)).Msg(msg)
}

func (l defaultLogger) Info(msg string, keyVals ...interface{}) {
	l.Logger.Info().Fields(getLogFields(keyVals...)).Msg(msg)
}

func (l defaultLogger) Error(msg string, keyVals ...interface{}) {
	l.Logger.Error().Fields(getLogFields(keyVals...)).Msg(msg)
}

func (l defaultLogger) With(keyVals ...interface{}) Logger {
	return defaultLogger{Logger: l.Logger.With().Fields(getLogFields(keyVals...)).Logger()}
}

func getLogFields(keyVals ...interface{}) map[string]interface{} {
	if len(keyVals)%2 != 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(keyVals))
	for i := 0; i < len(keyVals); i += 2 {
		fields[fmt.Sprint(keyVals[i])] = keyVals[i+1]
	}

	return fields
}
