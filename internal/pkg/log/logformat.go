package log

import (
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

// LogFormat selects the zap encoder of a service logger.
type LogFormat string

const (
	LogFormatConsole LogFormat = "console"
	LogFormatJSON    LogFormat = "json"
)

// NewLogFormat parses the value of the logFormat option.
// An unknown value returns an error together with the console format, so the caller can still log the error.
func NewLogFormat(value string) (LogFormat, error) {
	if f := LogFormat(value); f == LogFormatConsole || f == LogFormatJSON {
		return f, nil
	}
	return LogFormatConsole, errors.Errorf(`log format "%s" is not supported, use "console" or "json"`, value)
}
